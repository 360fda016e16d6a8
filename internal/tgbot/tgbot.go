package tgbot

import (
	"context"
	"errors"
	"log/slog"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/data/session"
	"github.com/KotFed0t/invest_ledger/internal/converter/telebotConverter"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/transport/telegram"
	customMW "github.com/KotFed0t/invest_ledger/internal/transport/telegram/middleware"
	"github.com/KotFed0t/invest_ledger/utils"
	tele "gopkg.in/telebot.v4"
	"gopkg.in/telebot.v4/middleware"
)

type Session interface {
	GetSession(ctx context.Context, chatID int64) (model.Session, error)
}

type TGBot struct {
	bot     *tele.Bot
	ctrl    *telegram.Controller
	session Session
}

func New(cfg *config.Config, ctrl *telegram.Controller, session Session) (*TGBot, error) {
	settings := tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: &tele.LongPoller{Timeout: cfg.Telegram.UpdTimeout},
		OnError: func(err error, c tele.Context) {
			slog.Error("tgbot handler error", slog.String("err", err.Error()))
		},
	}

	b, err := tele.NewBot(settings)
	if err != nil {
		return nil, err
	}

	return &TGBot{bot: b, ctrl: ctrl, session: session}, nil
}

func (b *TGBot) Start() {
	b.bot.Use(middleware.Recover(), customMW.Logger())

	b.setupRoutes()

	go b.bot.Start()
	slog.Info("tgbot started!")
}

func (b *TGBot) Stop() {
	slog.Info("start stopping tgbot")
	b.bot.Stop()
	slog.Info("tgbot stopped")
}

func (b *TGBot) setupRoutes() {
	b.bot.Handle(tele.OnText, b.routeText)

	b.bot.Handle("/start", b.ctrl.Start)
	b.bot.Handle("/portfolio", b.ctrl.ListPortfolios)
	b.bot.Handle("/create", b.ctrl.InitPortfolioCreation)
	b.bot.Handle("/holdings", b.ctrl.Holdings)
	b.bot.Handle("/buy", b.ctrl.Buy)
	b.bot.Handle("/sell", b.ctrl.Sell)
	b.bot.Handle("/lots", b.ctrl.Lots)
	b.bot.Handle("/options", b.ctrl.Options)
	b.bot.Handle("/stats", b.ctrl.Stats)
	b.bot.Handle("/report", b.ctrl.Report)

	b.bot.Handle(&tele.Btn{Unique: telebotConverter.SelectPortfolioUnique}, b.ctrl.SelectPortfolio)
}

// routeText picks the controller method by the step the chat is on.
func (b *TGBot) routeText(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := b.session.GetSession(ctx, c.Chat().ID)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send("что-то пошло не так...")
	}

	c.Set("session", chatSession)

	switch chatSession.Action {
	case model.ExpectingPortfolioName:
		return b.ctrl.ProcessPortfolioCreation(c)
	default:
		slog.Debug("text outside of any dialog", slog.String("rqID", rqID), slog.Any("action", chatSession.Action))
		return c.Send("сначала введите одну из команд, например /start")
	}
}
