package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/data/session"
	"github.com/KotFed0t/invest_ledger/internal/converter/telebotConverter"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/shopspring/decimal"
	tele "gopkg.in/telebot.v4"
)

const (
	internalErrMsg        = "что-то пошло не так..."
	noPortfolioMsg        = "Сначала выберите портфель: /portfolio"
	portfolioNotFoundMsg  = "Портфель не найден, выберите другой: /portfolio"
	startMsg              = "Привет! Я веду учет сделок по лотам.\n\n/portfolio - список портфелей\n/create - новый портфель\n/holdings - позиции\n/buy ТИКЕР КОЛ-ВО ЦЕНА [ВАЛЮТА] - покупка\n/sell ТИКЕР КОЛ-ВО ЦЕНА [ID ЛОТА] - продажа\n/lots ТИКЕР - доступные лоты\n/options - опционы\n/stats - статистика\n/report - отчет в xlsx"
	expectingPortfolioMsg = "Введите название портфеля:"
	buyUsageMsg           = "Формат: /buy AAPL 10 150.5 [USD]"
	sellUsageMsg          = "Формат: /sell AAPL 10 180 [id лота]"
)

type LedgerService interface {
	CreatePortfolio(ctx context.Context, name, baseCurrency, description string) (model.Portfolio, error)
	GetPortfolio(ctx context.Context, portfolioID string) (model.Portfolio, error)
	ListPortfolios(ctx context.Context) ([]model.Portfolio, error)
	GetHoldings(ctx context.Context, portfolioID string) ([]model.Holding, error)
	AddStockTransaction(ctx context.Context, in model.NewStockTransaction) (model.StockTransaction, error)
	GetAvailableLots(ctx context.Context, portfolioID, ticker string) ([]model.Lot, error)
	GetOptionHoldings(ctx context.Context, portfolioID string) ([]model.OptionHolding, error)
	GetStats(ctx context.Context, portfolioID string) (model.Stats, error)
	ExportPortfolioReport(ctx context.Context, portfolioID string) (downloadLink string, err error)
}

type Session interface {
	GetSession(ctx context.Context, chatID int64) (model.Session, error)
	SetSession(ctx context.Context, chatID int64, session model.Session) error
}

type Controller struct {
	cfg           *config.Config
	ledgerService LedgerService
	session       Session
}

func NewController(cfg *config.Config, ledgerService LedgerService, session Session) *Controller {
	return &Controller{
		cfg:           cfg,
		ledgerService: ledgerService,
		session:       session,
	}
}

func (ctrl *Controller) Start(c tele.Context) error {
	return c.Send(startMsg)
}

func (ctrl *Controller) ListPortfolios(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	portfolios, err := ctrl.ledgerService.ListPortfolios(ctx)
	if err != nil {
		slog.Error("got error from ledgerService.ListPortfolios", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.PortfoliosResponse(portfolios, chatSession.PortfolioID))
}

func (ctrl *Controller) SelectPortfolio(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)
	_ = c.Respond()

	portfolio, err := ctrl.ledgerService.GetPortfolio(ctx, c.Data())
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Send(portfolioNotFoundMsg)
		}
		slog.Error("got error from ledgerService.GetPortfolio", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.DefaultAction
	chatSession.PortfolioID = portfolio.ID
	if err = ctrl.session.SetSession(ctx, c.Chat().ID, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Edit(telebotConverter.PortfolioSelectedResponse(portfolio))
}

func (ctrl *Controller) InitPortfolioCreation(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	// ожидаем название портфеля следующим сообщением
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil && !errors.Is(err, session.ErrNotFound) {
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.ExpectingPortfolioName
	if err = ctrl.session.SetSession(ctx, c.Chat().ID, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(expectingPortfolioMsg)
}

func (ctrl *Controller) ProcessPortfolioCreation(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	rqID := utils.GetRequestIDFromCtx(ctx)

	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		return c.Send(internalErrMsg)
	}

	portfolio, err := ctrl.ledgerService.CreatePortfolio(ctx, strings.TrimSpace(c.Text()), ctrl.cfg.Ledger.BaseCurrency, "")
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.Send("Некорректное название, попробуйте еще раз:")
		}
		slog.Error("got error from ledgerService.CreatePortfolio", slog.String("rqID", rqID), slog.String("err", err.Error()))
		return c.Send(internalErrMsg)
	}

	chatSession.Action = model.DefaultAction
	chatSession.PortfolioID = portfolio.ID
	if err = ctrl.session.SetSession(ctx, c.Chat().ID, chatSession); err != nil {
		return c.Send(internalErrMsg)
	}

	return c.Send(telebotConverter.PortfolioSelectedResponse(portfolio))
}

func (ctrl *Controller) Holdings(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	portfolio, ok, err := ctrl.currentPortfolio(ctx, c)
	if !ok {
		return err
	}

	holdings, err := ctrl.ledgerService.GetHoldings(ctx, portfolio.ID)
	if err != nil {
		return ctrl.sendServiceErr(ctx, c, "GetHoldings", err)
	}

	return c.Send(telebotConverter.HoldingsResponse(portfolio, holdings))
}

// Buy books a purchase at the current time: /buy TICKER SHARES PRICE [CURRENCY].
func (ctrl *Controller) Buy(c tele.Context) error {
	return ctrl.addStockTransaction(c, model.Buy, buyUsageMsg)
}

// Sell books a sale at the current time: /sell TICKER SHARES PRICE [LOT_ID].
// Without a lot id the shares leave the oldest lots first.
func (ctrl *Controller) Sell(c tele.Context) error {
	return ctrl.addStockTransaction(c, model.Sell, sellUsageMsg)
}

func (ctrl *Controller) addStockTransaction(c tele.Context, txType model.TransactionType, usage string) error {
	ctx := utils.CreateCtxWithRqID(c)

	in, ok := parseStockTransactionArgs(c.Args(), txType)
	if !ok {
		return c.Send(usage)
	}

	portfolio, ok, err := ctrl.currentPortfolio(ctx, c)
	if !ok {
		return err
	}
	in.PortfolioID = portfolio.ID
	in.ExecutedAt = time.Now().UTC()

	tx, err := ctrl.ledgerService.AddStockTransaction(ctx, in)
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			return c.Send("Некорректные данные: " + err.Error() + "\n" + usage)
		}
		return ctrl.sendServiceErr(ctx, c, "AddStockTransaction", err)
	}

	return c.Send(telebotConverter.StockTransactionResponse(in.Ticker, tx))
}

func parseStockTransactionArgs(args []string, txType model.TransactionType) (model.NewStockTransaction, bool) {
	if len(args) < 3 || len(args) > 4 {
		return model.NewStockTransaction{}, false
	}

	shares, err := decimal.NewFromString(args[1])
	if err != nil {
		return model.NewStockTransaction{}, false
	}
	price, err := decimal.NewFromString(strings.ReplaceAll(args[2], ",", "."))
	if err != nil {
		return model.NewStockTransaction{}, false
	}

	in := model.NewStockTransaction{
		Ticker:        strings.ToUpper(args[0]),
		Type:          txType,
		Shares:        shares,
		PricePerShare: price,
	}
	if len(args) == 4 {
		if txType == model.Buy {
			in.Currency = strings.ToUpper(args[3])
		} else {
			in.SourceTransactionID = args[3]
		}
	}
	return in, true
}

func (ctrl *Controller) Lots(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)

	args := c.Args()
	if len(args) == 0 {
		return c.Send("Укажите тикер: /lots AAPL")
	}
	ticker := strings.ToUpper(args[0])

	portfolio, ok, err := ctrl.currentPortfolio(ctx, c)
	if !ok {
		return err
	}

	lots, err := ctrl.ledgerService.GetAvailableLots(ctx, portfolio.ID, ticker)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return c.Send("Не удалось найти указанный тикер")
		}
		return ctrl.sendServiceErr(ctx, c, "GetAvailableLots", err)
	}

	return c.Send(telebotConverter.LotsResponse(ticker, lots))
}

func (ctrl *Controller) Options(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	portfolio, ok, err := ctrl.currentPortfolio(ctx, c)
	if !ok {
		return err
	}

	holdings, err := ctrl.ledgerService.GetOptionHoldings(ctx, portfolio.ID)
	if err != nil {
		return ctrl.sendServiceErr(ctx, c, "GetOptionHoldings", err)
	}

	return c.Send(telebotConverter.OptionHoldingsResponse(holdings))
}

func (ctrl *Controller) Stats(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	portfolio, ok, err := ctrl.currentPortfolio(ctx, c)
	if !ok {
		return err
	}

	stats, err := ctrl.ledgerService.GetStats(ctx, portfolio.ID)
	if err != nil {
		return ctrl.sendServiceErr(ctx, c, "GetStats", err)
	}

	return c.Send(telebotConverter.StatsResponse(portfolio, stats))
}

func (ctrl *Controller) Report(c tele.Context) error {
	ctx := utils.CreateCtxWithRqID(c)
	portfolio, ok, err := ctrl.currentPortfolio(ctx, c)
	if !ok {
		return err
	}

	_ = c.Notify(tele.UploadingDocument)

	link, err := ctrl.ledgerService.ExportPortfolioReport(ctx, portfolio.ID)
	if err != nil {
		return ctrl.sendServiceErr(ctx, c, "ExportPortfolioReport", err)
	}

	return c.Send(telebotConverter.ReportResponse(link))
}

// currentPortfolio resolves the portfolio selected in the chat session.
// When ok is false the user has already been answered and err is the result of that reply.
func (ctrl *Controller) currentPortfolio(ctx context.Context, c tele.Context) (portfolio model.Portfolio, ok bool, err error) {
	chatSession, err := ctrl.getSessionFromTeleCtxOrStorage(ctx, c)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			return model.Portfolio{}, false, c.Send(noPortfolioMsg)
		}
		return model.Portfolio{}, false, c.Send(internalErrMsg)
	}
	if chatSession.PortfolioID == "" {
		return model.Portfolio{}, false, c.Send(noPortfolioMsg)
	}

	portfolio, err = ctrl.ledgerService.GetPortfolio(ctx, chatSession.PortfolioID)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return model.Portfolio{}, false, c.Send(portfolioNotFoundMsg)
		}
		return model.Portfolio{}, false, ctrl.sendServiceErr(ctx, c, "GetPortfolio", err)
	}
	return portfolio, true, nil
}

func (ctrl *Controller) sendServiceErr(ctx context.Context, c tele.Context, method string, err error) error {
	slog.Error(
		"got error from ledgerService",
		slog.String("rqID", utils.GetRequestIDFromCtx(ctx)),
		slog.String("method", method),
		slog.String("err", err.Error()),
	)
	if code, ok := service.Code(err); ok {
		return c.Send("Операция отклонена: " + string(code))
	}
	return c.Send(internalErrMsg)
}

func (ctrl *Controller) getSessionFromTeleCtxOrStorage(ctx context.Context, c tele.Context) (model.Session, error) {
	chatSession, ok := c.Get("session").(model.Session)
	if ok {
		return chatSession, nil
	}

	rqID := utils.GetRequestIDFromCtx(ctx)
	chatSession, err := ctrl.session.GetSession(ctx, c.Chat().ID)
	if err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			slog.Error("got error from session.GetSession", slog.String("rqID", rqID), slog.String("err", err.Error()))
		}
		return model.Session{}, err
	}
	return chatSession, nil
}
