package ledgerService

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KotFed0t/invest_ledger/data/repository"
	"github.com/KotFed0t/invest_ledger/internal/accounting"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const defaultOptionCurrency = "USD"

// integrityFailure marks a storage error raised while the option close and
// its linked stock transaction were being written together.
func integrityFailure(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s", service.ErrIntegrityFailure, err.Error())
}

// syncOptionRows stores the realized P&L of every closing row and the
// resulting holding. dirtyID is written even when its total premium did not change.
func (s *LedgerService) syncOptionRows(ctx context.Context, portfolioID, optionSymbol string, rows []model.OptionTransaction, replay accounting.OptionReplay, dirtyID string) error {
	for _, tx := range rows {
		if !tx.Action.IsOpening() {
			pnl := replay.Realized[tx.ID]
			if tx.ID != dirtyID && tx.TotalPremium != nil && tx.TotalPremium.Equal(pnl) {
				continue
			}
			tx.TotalPremium = &pnl
		} else if tx.ID != dirtyID {
			continue
		}
		if err := s.repo.UpdateOptionTransaction(ctx, tx); err != nil {
			return err
		}
	}

	if len(rows) == 0 {
		return s.repo.DeleteOptionHolding(ctx, portfolioID, optionSymbol)
	}

	h := replay.Holding
	h.PortfolioID = portfolioID
	h.UpdatedAt = s.now()
	return s.repo.UpsertOptionHolding(ctx, h)
}

// deliveredStock returns the underlying that linked closing rows booked
// shares into. Every delivery of one option symbol goes to the same stock.
func (s *LedgerService) deliveredStock(ctx context.Context, rows []model.OptionTransaction) (model.Stock, error) {
	for _, tx := range rows {
		if tx.LinkedStockTxID == "" {
			continue
		}
		stockTx, err := s.repo.GetStockTransaction(ctx, tx.LinkedStockTxID)
		if err != nil {
			return model.Stock{}, notFound(err, "linked stock transaction "+tx.LinkedStockTxID)
		}
		stock, err := s.repo.GetStock(ctx, stockTx.StockID)
		if err != nil {
			return model.Stock{}, notFound(err, "stock "+stockTx.StockID)
		}
		return stock, nil
	}
	return model.Stock{}, nil
}

// relinkDeliveries reprices the stock transactions booked by assignment or
// exercise rows after an edit moved the average premium they were derived
// from, then recomputes the underlying holding. It reports whether a stock
// row changed. stock may be empty when no delivery was known before locking.
func (s *LedgerService) relinkDeliveries(ctx context.Context, portfolioID string, stock model.Stock, rows []model.OptionTransaction, replay accounting.OptionReplay) (bool, error) {
	prices := make(map[string]decimal.Decimal)
	stockID := ""
	for _, tx := range rows {
		if tx.LinkedStockTxID == "" {
			continue
		}
		stockTx, err := s.repo.GetStockTransaction(ctx, tx.LinkedStockTxID)
		if err != nil {
			return false, notFound(err, "linked stock transaction "+tx.LinkedStockTxID)
		}
		delivery, err := accounting.Link(tx.Action, tx.OptionType, replay.Before[tx.ID], tx.StrikePrice, tx.Contracts, stockTx.SourceTransactionID)
		if err != nil {
			return false, guardError(err)
		}
		if delivery.EffectivePrice.Equal(stockTx.PricePerShare) {
			continue
		}
		prices[stockTx.ID] = delivery.EffectivePrice
		stockID = stockTx.StockID
	}
	if len(prices) == 0 {
		return false, nil
	}

	if stock.ID != stockID {
		// option keys sort before stock keys, so taking it here keeps the lock order
		if err := s.repo.LockAggregate(ctx, stockKey(portfolioID, stockID)); err != nil {
			return false, err
		}
		var err error
		if stock, err = s.repo.GetStock(ctx, stockID); err != nil {
			return false, notFound(err, "stock "+stockID)
		}
	}

	history, err := s.repo.GetStockTransactions(ctx, portfolioID, stock.ID)
	if err != nil {
		return false, err
	}
	for i := range history {
		if price, ok := prices[history[i].ID]; ok {
			history[i].PricePerShare = price
		}
	}

	stockReplay, err := guardStockHistory(stock, history)
	if err != nil {
		return false, err
	}

	for _, tx := range history {
		if _, ok := prices[tx.ID]; !ok {
			continue
		}
		if err = s.repo.UpdateStockTransaction(ctx, tx); err != nil {
			return false, integrityFailure(err)
		}
	}
	if err = s.saveHolding(ctx, portfolioID, stock, history, stockReplay); err != nil {
		return false, integrityFailure(err)
	}
	return true, nil
}

func (s *LedgerService) AddOptionTransaction(ctx context.Context, in model.NewOptionTransaction) (model.OptionTransaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.AddOptionTransaction"

	slog.Debug("AddOptionTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", in.Symbol), slog.String("action", string(in.Action)))
	defer func() {
		slog.Debug("AddOptionTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("symbol", in.Symbol))
	}()

	if err := validateNewOptionTransaction(in); err != nil {
		return model.OptionTransaction{}, err
	}

	portfolio, err := s.GetPortfolio(ctx, in.PortfolioID)
	if err != nil {
		return model.OptionTransaction{}, err
	}

	currency := strings.ToUpper(in.Currency)
	if currency == "" {
		currency = defaultOptionCurrency
	}

	fxRate, err := s.resolveFxRate(ctx, in.FxRateToBase, currency, portfolio.BaseCurrency, in.Date)
	if err != nil {
		return model.OptionTransaction{}, err
	}

	symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
	tx := model.OptionTransaction{
		ID:             uuid.NewString(),
		PortfolioID:    portfolio.ID,
		Symbol:         symbol,
		OptionSymbol:   accounting.OCCSymbol(symbol, in.StrikePrice, in.ExpirationDate, in.OptionType),
		OptionType:     in.OptionType,
		StrikePrice:    in.StrikePrice,
		ExpirationDate: in.ExpirationDate,
		Action:         in.Action,
		Contracts:      in.Contracts,
		Premium:        in.Premium,
		Currency:       currency,
		FxRateToBase:   fxRate,
		Fees:           in.Fees,
		Date:           in.Date,
		Notes:          in.Notes,
		CreatedAt:      s.now(),
	}

	key := optionKey(portfolio.ID, tx.OptionSymbol)
	unlock := s.locks.Lock(key)
	defer unlock()

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := s.repo.LockAggregate(ctx, key); err != nil {
			return err
		}

		history, err := s.repo.GetOptionTransactions(ctx, portfolio.ID, tx.OptionSymbol)
		if err != nil {
			return err
		}

		replay, err := guardOptionHistory(append(history, tx))
		if err != nil {
			return err
		}

		if !tx.Action.IsOpening() {
			pnl := replay.Realized[tx.ID]
			tx.TotalPremium = &pnl
		}

		if err = s.repo.InsertOptionTransaction(ctx, tx); err != nil {
			return err
		}

		return s.syncOptionRows(ctx, portfolio.ID, tx.OptionSymbol, append(history, tx), replay, "")
	})
	if err != nil {
		slog.Error("can't add option transaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.OptionTransaction{}, err
	}

	return tx, nil
}

// CloseOptionPosition closes contracts of an open position. Assignment and
// exercise also book the delivered shares as a stock transaction; both rows
// and both recomputes are one unit.
func (s *LedgerService) CloseOptionPosition(ctx context.Context, req model.ClosePositionRequest) (model.ClosePositionResult, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.CloseOptionPosition"

	slog.Debug("CloseOptionPosition start", slog.String("rqID", rqID), slog.String("op", op), slog.String("optionSymbol", req.OptionSymbol), slog.String("action", string(req.Action)))
	defer func() {
		slog.Debug("CloseOptionPosition finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("optionSymbol", req.OptionSymbol))
	}()

	if err := validateCloseRequest(req); err != nil {
		return model.ClosePositionResult{}, err
	}

	portfolio, err := s.GetPortfolio(ctx, req.PortfolioID)
	if err != nil {
		return model.ClosePositionResult{}, err
	}

	optionSymbol := strings.ToUpper(strings.TrimSpace(req.OptionSymbol))
	history, err := s.repo.GetOptionTransactions(ctx, portfolio.ID, optionSymbol)
	if err != nil {
		return model.ClosePositionResult{}, err
	}
	if len(history) == 0 {
		return model.ClosePositionResult{}, fmt.Errorf("%w: option position %s", service.ErrNotFound, optionSymbol)
	}
	contract := history[0]

	delivers := req.Action.CreatesStockTransaction()
	if delivers && accounting.RequiresSourceLot(req.Action, contract.OptionType) && req.SourceTransactionID == "" {
		return model.ClosePositionResult{}, service.Violation(service.ErrMissingSourceLot,
			fmt.Errorf("%s of a %s sells the underlying, choose the lot to deliver", req.Action, contract.OptionType))
	}

	fxRate, err := s.resolveFxRate(ctx, req.FxRateToBase, contract.Currency, portfolio.BaseCurrency, req.CloseDate)
	if err != nil {
		return model.ClosePositionResult{}, err
	}

	keys := []string{optionKey(portfolio.ID, optionSymbol)}

	var (
		stock       model.Stock
		stockFxRate = fxRate
	)
	if delivers {
		stock, err = s.getOrCreateStock(ctx, contract.Symbol, "", contract.Currency, nil)
		if err != nil {
			return model.ClosePositionResult{}, err
		}
		if !strings.EqualFold(stock.Currency, contract.Currency) {
			stockFxRate, err = s.resolveFxRate(ctx, nil, stock.Currency, portfolio.BaseCurrency, req.CloseDate)
			if err != nil {
				return model.ClosePositionResult{}, err
			}
		}
		keys = append(keys, stockKey(portfolio.ID, stock.ID))
	}

	unlock := s.locks.Lock(keys...)
	defer unlock()

	closing := model.OptionTransaction{
		ID:             uuid.NewString(),
		PortfolioID:    portfolio.ID,
		Symbol:         contract.Symbol,
		OptionSymbol:   optionSymbol,
		OptionType:     contract.OptionType,
		StrikePrice:    contract.StrikePrice,
		ExpirationDate: contract.ExpirationDate,
		Action:         req.Action,
		Contracts:      req.Contracts,
		Premium:        req.Premium,
		Currency:       contract.Currency,
		FxRateToBase:   fxRate,
		Fees:           req.Fees,
		Date:           req.CloseDate,
		Notes:          req.Notes,
		CreatedAt:      s.now(),
	}

	var stockTx *model.StockTransaction

	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, key := range sortedKeys(keys) {
			if err := s.repo.LockAggregate(ctx, key); err != nil {
				return err
			}
		}

		history, err := s.repo.GetOptionTransactions(ctx, portfolio.ID, optionSymbol)
		if err != nil {
			return err
		}
		rows := append(history, closing)

		replay, err := guardOptionHistory(rows)
		if err != nil {
			return err
		}
		pnl := replay.Realized[closing.ID]
		closing.TotalPremium = &pnl

		if !delivers {
			if err = s.repo.InsertOptionTransaction(ctx, closing); err != nil {
				return err
			}
			return s.syncOptionRows(ctx, portfolio.ID, optionSymbol, rows, replay, "")
		}

		delivery, err := accounting.Link(req.Action, closing.OptionType, replay.Before[closing.ID], closing.StrikePrice, closing.Contracts, req.SourceTransactionID)
		if err != nil {
			return guardError(err)
		}

		tx := model.StockTransaction{
			ID:            uuid.NewString(),
			PortfolioID:   portfolio.ID,
			StockID:       stock.ID,
			Type:          delivery.Type,
			Shares:        delivery.Shares,
			PricePerShare: delivery.EffectivePrice,
			Currency:      stock.Currency,
			FxRateToBase:  stockFxRate,
			Fees:          decimal.Zero,
			ExecutedAt:    req.CloseDate,
			Notes:         fmt.Sprintf("%s %s", req.Action, optionSymbol),
			CreatedAt:     closing.CreatedAt,
		}
		if delivery.Type == model.Sell {
			tx.SourceTransactionID = req.SourceTransactionID
		}

		stockHistory, err := s.repo.GetStockTransactions(ctx, portfolio.ID, stock.ID)
		if err != nil {
			return err
		}
		stockHistory = append(stockHistory, tx)
		stockReplay, err := guardStockHistory(stock, stockHistory)
		if err != nil {
			return err
		}

		closing.LinkedStockTxID = tx.ID

		if err = s.repo.InsertStockTransaction(ctx, tx); err != nil {
			return integrityFailure(err)
		}
		if err = s.saveHolding(ctx, portfolio.ID, stock, stockHistory, stockReplay); err != nil {
			return integrityFailure(err)
		}
		if err = s.repo.InsertOptionTransaction(ctx, closing); err != nil {
			return integrityFailure(err)
		}
		if err = s.syncOptionRows(ctx, portfolio.ID, optionSymbol, rows, replay, ""); err != nil {
			return integrityFailure(err)
		}

		stockTx = &tx
		return nil
	})
	if err != nil {
		slog.Error("can't close option position", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.ClosePositionResult{}, err
	}

	if delivers {
		s.flushPortfolioCache(ctx, portfolio.ID)
	}

	return model.ClosePositionResult{OptionTransaction: closing, StockTransaction: stockTx}, nil
}

func applyOptionChanges(tx model.OptionTransaction, c model.OptionTransactionChanges) model.OptionTransaction {
	if c.Contracts != nil {
		tx.Contracts = *c.Contracts
	}
	if c.Premium != nil {
		tx.Premium = c.Premium
	}
	if c.FxRateToBase != nil {
		tx.FxRateToBase = *c.FxRateToBase
	}
	if c.Fees != nil {
		tx.Fees = *c.Fees
	}
	if c.Date != nil {
		tx.Date = *c.Date
	}
	if c.Notes != nil {
		tx.Notes = *c.Notes
	}
	return tx
}

func (s *LedgerService) UpdateOptionTransaction(ctx context.Context, id string, changes model.OptionTransactionChanges) (model.OptionTransaction, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.UpdateOptionTransaction"

	slog.Debug("UpdateOptionTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	defer func() {
		slog.Debug("UpdateOptionTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	}()

	if err := validateOptionChanges(changes); err != nil {
		return model.OptionTransaction{}, err
	}

	current, err := s.repo.GetOptionTransaction(ctx, id)
	if err != nil {
		return model.OptionTransaction{}, notFound(err, "option transaction "+id)
	}
	if current.LinkedStockTxID != "" {
		return model.OptionTransaction{}, service.Violation(service.ErrLinkedTransaction,
			fmt.Errorf("option transaction %s delivered stock transaction %s, delete it and close again", id, current.LinkedStockTxID))
	}

	history, err := s.repo.GetOptionTransactions(ctx, current.PortfolioID, current.OptionSymbol)
	if err != nil {
		return model.OptionTransaction{}, err
	}
	stock, err := s.deliveredStock(ctx, history)
	if err != nil {
		return model.OptionTransaction{}, err
	}

	keys := []string{optionKey(current.PortfolioID, current.OptionSymbol)}
	if stock.ID != "" {
		keys = append(keys, stockKey(current.PortfolioID, stock.ID))
	}
	unlock := s.locks.Lock(keys...)
	defer unlock()

	var (
		updated  model.OptionTransaction
		relinked bool
	)
	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, key := range sortedKeys(keys) {
			if err := s.repo.LockAggregate(ctx, key); err != nil {
				return err
			}
		}

		rows, err := s.repo.GetOptionTransactions(ctx, current.PortfolioID, current.OptionSymbol)
		if err != nil {
			return err
		}
		found := false
		for i := range rows {
			if rows[i].ID == id {
				rows[i] = applyOptionChanges(rows[i], changes)
				updated = rows[i]
				found = true
			}
		}
		if !found {
			return notFound(repository.ErrNotFound, "option transaction "+id)
		}
		if updated.Action.RequiresPremium() && updated.Premium == nil {
			return service.Validationf("premium is required for %s", updated.Action)
		}

		replay, err := guardOptionHistory(rows)
		if err != nil {
			return err
		}

		if err = s.syncOptionRows(ctx, current.PortfolioID, current.OptionSymbol, rows, replay, id); err != nil {
			return err
		}

		if relinked, err = s.relinkDeliveries(ctx, current.PortfolioID, stock, rows, replay); err != nil {
			return err
		}

		if !updated.Action.IsOpening() {
			pnl := replay.Realized[id]
			updated.TotalPremium = &pnl
		}
		return nil
	})
	if err != nil {
		slog.Error("can't update option transaction", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.OptionTransaction{}, err
	}

	if relinked {
		s.flushPortfolioCache(ctx, current.PortfolioID)
	}

	return updated, nil
}

func (s *LedgerService) DeleteOptionTransaction(ctx context.Context, id string) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.DeleteOptionTransaction"

	slog.Debug("DeleteOptionTransaction start", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	defer func() {
		slog.Debug("DeleteOptionTransaction finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("id", id))
	}()

	current, err := s.repo.GetOptionTransaction(ctx, id)
	if err != nil {
		return notFound(err, "option transaction "+id)
	}

	return s.deleteOptionTransactions(ctx, current.PortfolioID, current.OptionSymbol, map[string]bool{id: true})
}

// DeleteOptionTransactionsBySymbol removes a whole option position together
// with every stock transaction it delivered.
func (s *LedgerService) DeleteOptionTransactionsBySymbol(ctx context.Context, portfolioID, optionSymbol string) (int, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.DeleteOptionTransactionsBySymbol"

	slog.Debug("DeleteOptionTransactionsBySymbol start", slog.String("rqID", rqID), slog.String("op", op), slog.String("optionSymbol", optionSymbol))
	defer func() {
		slog.Debug("DeleteOptionTransactionsBySymbol finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("optionSymbol", optionSymbol))
	}()

	optionSymbol = strings.ToUpper(strings.TrimSpace(optionSymbol))
	history, err := s.repo.GetOptionTransactions(ctx, portfolioID, optionSymbol)
	if err != nil {
		return 0, err
	}
	if len(history) == 0 {
		return 0, fmt.Errorf("%w: option position %s", service.ErrNotFound, optionSymbol)
	}

	ids := make(map[string]bool, len(history))
	for _, tx := range history {
		ids[tx.ID] = true
	}

	if err = s.deleteOptionTransactions(ctx, portfolioID, optionSymbol, ids); err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (s *LedgerService) deleteOptionTransactions(ctx context.Context, portfolioID, optionSymbol string, ids map[string]bool) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.deleteOptionTransactions"

	history, err := s.repo.GetOptionTransactions(ctx, portfolioID, optionSymbol)
	if err != nil {
		return err
	}

	linked := make(map[string]bool)
	for _, tx := range history {
		if ids[tx.ID] && tx.LinkedStockTxID != "" {
			linked[tx.LinkedStockTxID] = true
		}
	}
	stock, err := s.deliveredStock(ctx, history)
	if err != nil {
		return err
	}

	keys := []string{optionKey(portfolioID, optionSymbol)}
	if stock.ID != "" {
		keys = append(keys, stockKey(portfolioID, stock.ID))
	}

	unlock := s.locks.Lock(keys...)
	defer unlock()

	relinked := false
	err = s.repo.WithinTransaction(ctx, func(ctx context.Context) error {
		for _, key := range sortedKeys(keys) {
			if err := s.repo.LockAggregate(ctx, key); err != nil {
				return err
			}
		}

		rows, err := s.repo.GetOptionTransactions(ctx, portfolioID, optionSymbol)
		if err != nil {
			return err
		}
		remaining := without(rows, optionTxID, ids)
		if len(rows)-len(remaining) != len(ids) {
			return notFound(repository.ErrNotFound, "option transaction")
		}

		replay, err := guardOptionHistory(remaining)
		if err != nil {
			return err
		}

		if len(linked) > 0 {
			// guards run before the first delete so a rejected unit writes nothing
			if err = s.deleteStockTransactions(ctx, stock, portfolioID, linked); err != nil {
				if errors.Is(err, service.ErrConstraintViolation) || errors.Is(err, service.ErrNotFound) {
					return err
				}
				return integrityFailure(err)
			}
		}

		for id := range ids {
			if err = s.repo.DeleteOptionTransaction(ctx, id); err != nil {
				if len(linked) > 0 {
					return integrityFailure(err)
				}
				return err
			}
		}

		err = s.syncOptionRows(ctx, portfolioID, optionSymbol, remaining, replay, "")
		if err != nil {
			if len(linked) > 0 {
				return integrityFailure(err)
			}
			return err
		}

		relinked, err = s.relinkDeliveries(ctx, portfolioID, stock, remaining, replay)
		return err
	})
	if err != nil {
		slog.Error("can't delete option transactions", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return err
	}

	if len(linked) > 0 || relinked {
		s.flushPortfolioCache(ctx, portfolioID)
	}

	return nil
}

func (s *LedgerService) ListOptionTransactions(ctx context.Context, portfolioID string) ([]model.OptionTransaction, error) {
	if _, err := s.GetPortfolio(ctx, portfolioID); err != nil {
		return nil, err
	}
	return s.repo.ListOptionTransactions(ctx, portfolioID)
}
