package fxApi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/KotFed0t/invest_ledger/config"
	"github.com/KotFed0t/invest_ledger/internal/externalApi"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// ratesResponse is the body of a historical rates request,
// e.g. {"amount":1.0,"base":"USD","date":"2025-01-17","rates":{"CZK":24.31}}.
type ratesResponse struct {
	Amount decimal.Decimal            `json:"amount"`
	Base   string                     `json:"base"`
	Date   string                     `json:"date"`
	Rates  map[string]decimal.Decimal `json:"rates"`
}

// FxApi fetches daily reference rates from a Frankfurter-compatible service.
type FxApi struct {
	client *resty.Client
}

func New(cfg *config.Config) *FxApi {
	client := resty.New().
		SetDebug(cfg.API.Debug).
		SetTimeout(cfg.API.Timeout).
		SetBaseURL(cfg.API.FxApi.Url).
		SetRetryCount(2).
		SetRetryWaitTime(200 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= http.StatusInternalServerError
		})
	return &FxApi{client: client}
}

// GetRate returns how many units of `to` one unit of `from` was worth on date.
// Weekends and holidays resolve to the previous business day on the provider side.
func (a *FxApi) GetRate(ctx context.Context, from, to string, date time.Time) (decimal.Decimal, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	url := "/" + date.Format(time.DateOnly)

	slog.Debug("start FxApi.GetRate request", slog.String("rqID", rqID), slog.String("from", from), slog.String("to", to))

	result := ratesResponse{}
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{"from": from, "to": to}).
		SetResult(&result).
		Get(url)
	if err != nil {
		slog.Error("error while dialing FxApi", slog.String("err", err.Error()), slog.String("rqID", rqID))
		return decimal.Zero, err
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusUnprocessableEntity:
		return decimal.Zero, fmt.Errorf("%w: %s/%s on %s", externalApi.ErrNotFound, from, to, date.Format(time.DateOnly))
	case resp.IsError():
		slog.Error("FxApi returned error status", slog.Int("status", resp.StatusCode()), slog.String("rqID", rqID))
		return decimal.Zero, fmt.Errorf("fx api status %d", resp.StatusCode())
	}

	rate, ok := result.Rates[to]
	if !ok || !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s/%s missing in response", externalApi.ErrNotFound, from, to)
	}

	// the provider may quote for an amount other than 1
	if result.Amount.IsPositive() && !result.Amount.Equal(decimal.NewFromInt(1)) {
		rate = rate.Div(result.Amount)
	}

	slog.Debug("FxApi.GetRate request complete", slog.String("rqID", rqID), slog.String("rate", rate.String()))

	return rate, nil
}
