package ledgerService

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KotFed0t/invest_ledger/internal/accounting"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/shopspring/decimal"
)

var engineCodes = []struct {
	err  error
	code service.ConstraintCode
}{
	{accounting.ErrInsufficientShares, service.ErrInsufficientShares},
	{accounting.ErrUnknownSourceLot, service.ErrUnknownSourceLot},
	{accounting.ErrNoOpenPosition, service.ErrNoOpenPosition},
	{accounting.ErrInvalidClosingAction, service.ErrInvalidClosingAction},
	{accounting.ErrOverClose, service.ErrOverClose},
	{accounting.ErrMixedDirection, service.ErrMixedDirection},
	{accounting.ErrMissingSourceLot, service.ErrMissingSourceLot},
}

var engineValidation = []error{
	accounting.ErrInvalidTransaction,
	accounting.ErrMissingPremium,
	accounting.ErrInvalidOCCSymbol,
	accounting.ErrNotDeliveryAction,
}

// guardError converts an engine error into its caller-facing code.
func guardError(err error) error {
	if err == nil {
		return nil
	}
	for _, c := range engineCodes {
		if errors.Is(err, c.err) {
			return service.Violation(c.code, err)
		}
	}
	for _, v := range engineValidation {
		if errors.Is(err, v) {
			return fmt.Errorf("%w: %s", service.ErrValidation, err.Error())
		}
	}
	return err
}

// guardStockHistory replays a prospective stock history. Nothing may be
// written when it fails.
func guardStockHistory(stock model.Stock, history []model.StockTransaction) (accounting.HoldingReplay, error) {
	replay, err := accounting.AggregateHolding(stock, history)
	if err != nil {
		return accounting.HoldingReplay{}, guardError(err)
	}
	return replay, nil
}

func guardOptionHistory(history []model.OptionTransaction) (accounting.OptionReplay, error) {
	replay, err := accounting.CalculateOptionPosition(history)
	if err != nil {
		return accounting.OptionReplay{}, guardError(err)
	}
	return replay, nil
}

// guardBuyDeletion rejects deleting a lot that SELLs point to explicitly.
// deleting lists transactions removed in the same unit; their references do not count.
func (s *LedgerService) guardBuyDeletion(ctx context.Context, tx model.StockTransaction, deleting map[string]bool) error {
	if tx.Type != model.Buy {
		return nil
	}

	if len(deleting) == 0 {
		n, err := s.repo.CountDependentSells(ctx, tx.ID)
		if err != nil {
			return err
		}
		if n > 0 {
			return service.Violation(service.ErrHasDependentSells, fmt.Errorf("lot %s is the source of %d sell(s)", tx.ID, n))
		}
		return nil
	}

	history, err := s.repo.GetStockTransactions(ctx, tx.PortfolioID, tx.StockID)
	if err != nil {
		return err
	}
	for _, other := range history {
		if other.Type == model.Sell && other.SourceTransactionID == tx.ID && !deleting[other.ID] {
			return service.Violation(service.ErrHasDependentSells, fmt.Errorf("lot %s is the source of sell %s", tx.ID, other.ID))
		}
	}
	return nil
}

func without[T any](history []T, id func(T) string, ids map[string]bool) []T {
	res := make([]T, 0, len(history))
	for _, tx := range history {
		if !ids[id(tx)] {
			res = append(res, tx)
		}
	}
	return res
}

func stockTxID(tx model.StockTransaction) string   { return tx.ID }
func optionTxID(tx model.OptionTransaction) string { return tx.ID }

func validateNewStockTransaction(in model.NewStockTransaction) error {
	switch {
	case strings.TrimSpace(in.PortfolioID) == "":
		return service.Validationf("portfolio id is required")
	case strings.TrimSpace(in.Ticker) == "":
		return service.Validationf("ticker is required")
	case !in.Type.Valid():
		return service.Validationf("unknown transaction type %q", in.Type)
	case !in.Shares.IsPositive():
		return service.Validationf("shares must be positive, got %s", in.Shares)
	case in.PricePerShare.IsNegative():
		return service.Validationf("price per share must not be negative, got %s", in.PricePerShare)
	case in.Fees.IsNegative():
		return service.Validationf("fees must not be negative, got %s", in.Fees)
	case in.ExecutedAt.IsZero():
		return service.Validationf("executed at is required")
	case in.PriceScale != nil && !in.PriceScale.IsPositive():
		return service.Validationf("price scale must be positive, got %s", in.PriceScale)
	case in.Type == model.Buy && in.SourceTransactionID != "":
		return service.Validationf("source transaction can only be set on a SELL")
	}
	return validateFxRate(in.FxRateToBase)
}

func validateStockChanges(c model.StockTransactionChanges) error {
	switch {
	case c.IsEmpty():
		return service.Validationf("nothing to update")
	case c.Shares != nil && !c.Shares.IsPositive():
		return service.Validationf("shares must be positive, got %s", c.Shares)
	case c.PricePerShare != nil && c.PricePerShare.IsNegative():
		return service.Validationf("price per share must not be negative, got %s", c.PricePerShare)
	case c.Fees != nil && c.Fees.IsNegative():
		return service.Validationf("fees must not be negative, got %s", c.Fees)
	case c.ExecutedAt != nil && c.ExecutedAt.IsZero():
		return service.Validationf("executed at must not be empty")
	}
	return validateFxRate(c.FxRateToBase)
}

func validateNewOptionTransaction(in model.NewOptionTransaction) error {
	switch {
	case strings.TrimSpace(in.PortfolioID) == "":
		return service.Validationf("portfolio id is required")
	case strings.TrimSpace(in.Symbol) == "":
		return service.Validationf("underlying symbol is required")
	case !in.OptionType.Valid():
		return service.Validationf("unknown option type %q", in.OptionType)
	case !in.StrikePrice.IsPositive():
		return service.Validationf("strike price must be positive, got %s", in.StrikePrice)
	case in.ExpirationDate.IsZero():
		return service.Validationf("expiration date is required")
	case !in.Action.Valid():
		return service.Validationf("unknown option action %q", in.Action)
	case in.Action.CreatesStockTransaction():
		return service.Validationf("%s delivers the underlying, close the position instead", in.Action)
	case in.Date.IsZero():
		return service.Validationf("date is required")
	}
	if err := validateContracts(in.Contracts, in.Action, in.Premium, in.Fees); err != nil {
		return err
	}
	return validateFxRate(in.FxRateToBase)
}

func validateCloseRequest(req model.ClosePositionRequest) error {
	switch {
	case strings.TrimSpace(req.PortfolioID) == "":
		return service.Validationf("portfolio id is required")
	case strings.TrimSpace(req.OptionSymbol) == "":
		return service.Validationf("option symbol is required")
	case !req.Action.Valid() || req.Action.IsOpening():
		return service.Validationf("%q is not a closing action", req.Action)
	case req.CloseDate.IsZero():
		return service.Validationf("close date is required")
	}
	if err := validateContracts(req.Contracts, req.Action, req.Premium, req.Fees); err != nil {
		return err
	}
	return validateFxRate(req.FxRateToBase)
}

func validateOptionChanges(c model.OptionTransactionChanges) error {
	switch {
	case c.IsEmpty():
		return service.Validationf("nothing to update")
	case c.Contracts != nil && *c.Contracts <= 0:
		return service.Validationf("contracts must be positive, got %d", *c.Contracts)
	case c.Premium != nil && c.Premium.IsNegative():
		return service.Validationf("premium must not be negative, got %s", c.Premium)
	case c.Fees != nil && c.Fees.IsNegative():
		return service.Validationf("fees must not be negative, got %s", c.Fees)
	case c.Date != nil && c.Date.IsZero():
		return service.Validationf("date must not be empty")
	}
	return validateFxRate(c.FxRateToBase)
}

func validateContracts(contracts int64, action model.OptionAction, premium *decimal.Decimal, fees decimal.Decimal) error {
	switch {
	case contracts <= 0:
		return service.Validationf("contracts must be positive, got %d", contracts)
	case action.RequiresPremium() && premium == nil:
		return service.Validationf("premium is required for %s", action)
	case premium != nil && premium.IsNegative():
		return service.Validationf("premium must not be negative, got %s", premium)
	case fees.IsNegative():
		return service.Validationf("fees must not be negative, got %s", fees)
	}
	return nil
}

func validateFxRate(rate *decimal.Decimal) error {
	if rate != nil && !rate.IsPositive() {
		return service.Validationf("fx rate must be positive, got %s", rate)
	}
	return nil
}
