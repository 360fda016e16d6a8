package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/invest_ledger/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/model/dbModel"
	"github.com/KotFed0t/invest_ledger/utils"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
)

const stockTransactionColumns = `id, portfolio_id, stock_id, type, shares, price_per_share, currency,
	fx_rate_to_base, fees, executed_at, source_transaction_id, notes, created_at`

func (r *Postgres) InsertStock(ctx context.Context, stock model.Stock) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO stocks(id, ticker, name, currency, price_scale) VALUES($1, $2, $3, $4, $5)`

	slog.Debug("InsertStock start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertStock failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertStock completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, stock.ID, stock.Ticker, stock.Name, stock.Currency, stock.PriceScale)
	return mapErr(err)
}

func (r *Postgres) getStock(ctx context.Context, op, query string, arg any) (stock model.Stock, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Debug(op+" failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug(op+" completed", slog.String("rqID", rqID))
		}
	}()

	dbStock := dbModel.Stock{}
	if err = r.txOrDb(ctx).QueryRowxContext(ctx, query, arg).StructScan(&dbStock); err != nil {
		return model.Stock{}, mapErr(err)
	}

	return dbConverter.ConvertStock(dbStock), nil
}

func (r *Postgres) GetStock(ctx context.Context, id string) (model.Stock, error) {
	return r.getStock(ctx, "GetStock", `SELECT id, ticker, name, currency, price_scale FROM stocks WHERE id = $1`, id)
}

func (r *Postgres) GetStockByTicker(ctx context.Context, ticker string) (model.Stock, error) {
	return r.getStock(ctx, "GetStockByTicker", `SELECT id, ticker, name, currency, price_scale FROM stocks WHERE ticker = $1`, ticker)
}

func (r *Postgres) InsertStockTransaction(ctx context.Context, tx model.StockTransaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO stock_transactions(` + stockTransactionColumns + `)
		VALUES(:id, :portfolio_id, :stock_id, :type, :shares, :price_per_share, :currency,
			:fx_rate_to_base, :fees, :executed_at, :source_transaction_id, :notes, :created_at)
		`

	slog.Debug("InsertStockTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("InsertStockTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("InsertStockTransaction completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ToDbStockTransaction(tx))
	return mapErr(err)
}

func (r *Postgres) UpdateStockTransaction(ctx context.Context, tx model.StockTransaction) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		UPDATE stock_transactions
		SET shares = :shares,
			price_per_share = :price_per_share,
			fx_rate_to_base = :fx_rate_to_base,
			fees = :fees,
			executed_at = :executed_at,
			notes = :notes
		WHERE id = :id
		`

	slog.Debug("UpdateStockTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpdateStockTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpdateStockTransaction completed", slog.String("rqID", rqID))
		}
	}()

	res, err := r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ToDbStockTransaction(tx))
	if err != nil {
		return mapErr(err)
	}
	return mustAffect(res)
}

func (r *Postgres) DeleteStockTransaction(ctx context.Context, id string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM stock_transactions WHERE id = $1`

	slog.Debug("DeleteStockTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteStockTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteStockTransaction completed", slog.String("rqID", rqID))
		}
	}()

	res, err := r.txOrDb(ctx).ExecContext(ctx, query, id)
	if err != nil {
		return mapErr(err)
	}
	return mustAffect(res)
}

func (r *Postgres) GetStockTransaction(ctx context.Context, id string) (tx model.StockTransaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT ` + stockTransactionColumns + ` FROM stock_transactions WHERE id = $1`

	slog.Debug("GetStockTransaction start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Debug("GetStockTransaction failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetStockTransaction completed", slog.String("rqID", rqID))
		}
	}()

	dbTx := dbModel.StockTransaction{}
	if err = r.txOrDb(ctx).GetContext(ctx, &dbTx, query, id); err != nil {
		return model.StockTransaction{}, mapErr(err)
	}

	return dbConverter.ConvertStockTransaction(dbTx), nil
}

func (r *Postgres) selectStockTransactions(ctx context.Context, op, query string, args ...any) (txs []model.StockTransaction, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)

	slog.Debug(op+" start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error(op+" failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug(op+" completed", slog.String("rqID", rqID), slog.Int("rows", len(txs)))
		}
	}()

	var rows []dbModel.StockTransaction
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}

	txs = make([]model.StockTransaction, 0, len(rows))
	for _, row := range rows {
		txs = append(txs, dbConverter.ConvertStockTransaction(row))
	}

	return txs, nil
}

// GetStockTransactions returns the history of one position in replay order.
func (r *Postgres) GetStockTransactions(ctx context.Context, portfolioID, stockID string) ([]model.StockTransaction, error) {
	query := `
		SELECT ` + stockTransactionColumns + `
		FROM stock_transactions
		WHERE portfolio_id = $1
		AND stock_id = $2
		ORDER BY executed_at, created_at, id
		`
	return r.selectStockTransactions(ctx, "GetStockTransactions", query, portfolioID, stockID)
}

func (r *Postgres) ListStockTransactions(ctx context.Context, portfolioID string) ([]model.StockTransaction, error) {
	query := `
		SELECT ` + stockTransactionColumns + `
		FROM stock_transactions
		WHERE portfolio_id = $1
		ORDER BY executed_at, created_at, id
		`
	return r.selectStockTransactions(ctx, "ListStockTransactions", query, portfolioID)
}

func (r *Postgres) CountDependentSells(ctx context.Context, buyID string) (count int, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT count(*) FROM stock_transactions WHERE type = 'SELL' AND source_transaction_id = $1`

	slog.Debug("CountDependentSells start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CountDependentSells failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CountDependentSells completed", slog.String("rqID", rqID))
		}
	}()

	err = r.txOrDb(ctx).GetContext(ctx, &count, query, buyID)
	return count, err
}
