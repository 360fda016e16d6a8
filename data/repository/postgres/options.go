package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/invest_ledger/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/model/dbModel"
	"github.com/KotFed0t/invest_ledger/utils"
)

const optionTransactionColumns = `id, portfolio_id, symbol, option_symbol, option_type, strike_price,
	expiration_date, action, contracts, premium, currency, fx_rate_to_base, fees, date, notes,
	linked_stock_tx_id, total_premium, created_at`

func (r *Postgres) InsertOptionTransaction(ctx context.Context, tx model.OptionTransaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO option_transactions(` + optionTransactionColumns + `)
		VALUES(:id, :portfolio_id, :symbol, :option_symbol, :option_type, :strike_price,
			:expiration_date, :action, :contracts, :premium, :currency, :fx_rate_to_base, :fees, :date, :notes,
			:linked_stock_tx_id, :total_premium, :created_at)
		`

	slog.Debug("InsertOptionTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertOptionTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertOptionTransaction completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ToDbOptionTransaction(tx))
	return mapErr(err)
}

func (r *Postgres) UpdateOptionTransaction(ctx context.Context, tx model.OptionTransaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE option_transactions
		SET contracts = :contracts,
			premium = :premium,
			fx_rate_to_base = :fx_rate_to_base,
			fees = :fees,
			date = :date,
			notes = :notes,
			total_premium = :total_premium
		WHERE id = :id
		`

	slog.Debug("UpdateOptionTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateOptionTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateOptionTransaction completed", slog.String("rqID", rqID))
		}
	}()

	res, err := r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ToDbOptionTransaction(tx))
	if err != nil {
		return mapErr(err)
	}
	return mustAffect(res)
}

func (r *Postgres) DeleteOptionTransaction(ctx context.Context, id string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM option_transactions WHERE id = $1`

	slog.Debug("DeleteOptionTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteOptionTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteOptionTransaction completed", slog.String("rqID", rqID))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return mapErr(err)
	}
	return mustAffect(res)
}

func (r *Postgres) getOptionTransaction(ctx context.Context, op, query, arg string) (tx model.OptionTransaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Debug(op+" failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug(op+" completed", slog.String("rqID", rqID))
		}
	}()

	dbTx := dbModel.OptionTransaction{}
	if err = r.txOrDb(ctx).GetContext(ctx, &dbTx, query, arg); err != nil {
		return model.OptionTransaction{}, mapErr(err)
	}

	return dbConverter.ConvertOptionTransaction(dbTx), nil
}

func (r *Postgres) GetOptionTransaction(ctx context.Context, id string) (model.OptionTransaction, error) {
	query := `SELECT ` + optionTransactionColumns + ` FROM option_transactions WHERE id = $1`
	return r.getOptionTransaction(ctx, "GetOptionTransaction", query, id)
}

func (r *Postgres) GetOptionTransactionByLinkedStockTx(ctx context.Context, stockTxID string) (model.OptionTransaction, error) {
	query := `SELECT ` + optionTransactionColumns + ` FROM option_transactions WHERE linked_stock_tx_id = $1`
	return r.getOptionTransaction(ctx, "GetOptionTransactionByLinkedStockTx", query, stockTxID)
}

func (r *Postgres) selectOptionTransactions(ctx context.Context, op, query string, args ...any) (txs []model.OptionTransaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error(op+" failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug(op+" completed", slog.String("rqID", rqID), slog.Int("rows", len(txs)))
		}
	}()

	var rows []dbModel.OptionTransaction
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	txs = make([]model.OptionTransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, dbConverter.ConvertOptionTransaction(row))
	}

	return txs, nil
}

// GetOptionTransactions returns the history of one option position in replay order.
func (r *Postgres) GetOptionTransactions(ctx context.Context, portfolioID, optionSymbol string) ([]model.OptionTransaction, error) {
	query := `
		SELECT ` + optionTransactionColumns + `
		FROM option_transactions
		WHERE portfolio_id = $1
		AND option_symbol = $2
		ORDER BY date, created_at, id
		`
	return r.selectOptionTransactions(ctx, "GetOptionTransactions", query, portfolioID, optionSymbol)
}

func (r *Postgres) ListOptionTransactions(ctx context.Context, portfolioID string) ([]model.OptionTransaction, error) {
	query := `
		SELECT ` + optionTransactionColumns + `
		FROM option_transactions
		WHERE portfolio_id = $1
		ORDER BY date, created_at, id
		`
	return r.selectOptionTransactions(ctx, "ListOptionTransactions", query, portfolioID)
}

func (r *Postgres) UpsertOptionHolding(ctx context.Context, holding model.OptionHolding) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO option_holdings(portfolio_id, option_symbol, symbol, option_type, strike_price,
			expiration_date, position, contracts, avg_premium, total_cost, realized_pnl, currency, updated_at)
		VALUES(:portfolio_id, :option_symbol, :symbol, :option_type, :strike_price,
			:expiration_date, :position, :contracts, :avg_premium, :total_cost, :realized_pnl, :currency, :updated_at)
		ON CONFLICT (portfolio_id, option_symbol) DO UPDATE
		SET position = EXCLUDED.position,
			contracts = EXCLUDED.contracts,
			avg_premium = EXCLUDED.avg_premium,
			total_cost = EXCLUDED.total_cost,
			realized_pnl = EXCLUDED.realized_pnl,
			updated_at = EXCLUDED.updated_at
		`

	slog.Debug("UpsertOptionHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertOptionHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertOptionHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ToDbOptionHolding(holding))
	return mapErr(err)
}

func (r *Postgres) DeleteOptionHolding(ctx context.Context, portfolioID, optionSymbol string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM option_holdings WHERE portfolio_id = $1 AND option_symbol = $2`

	slog.Debug("DeleteOptionHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteOptionHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteOptionHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, portfolioID, optionSymbol)
	return err
}

func (r *Postgres) GetOptionHoldings(ctx context.Context, portfolioID string) (holdings []model.OptionHolding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT portfolio_id, option_symbol, symbol, option_type, strike_price, expiration_date, position,
			contracts, avg_premium, total_cost, realized_pnl, currency, updated_at
		FROM option_holdings
		WHERE portfolio_id = $1
		ORDER BY expiration_date, option_symbol
		`

	slog.Debug("GetOptionHoldings start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetOptionHoldings failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetOptionHoldings completed", slog.String("rqID", rqID))
		}
	}()

	var rows []dbModel.OptionHolding
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, portfolioID); err != nil {
		return nil, err
	}

	holdings = make([]model.OptionHolding, 0, len(rows))
	for _, row := range rows {
		holdings = append(holdings, dbConverter.ConvertOptionHolding(row))
	}

	return holdings, nil
}
