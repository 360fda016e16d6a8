package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/invest_ledger/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/model/dbModel"
	"github.com/KotFed0t/invest_ledger/utils"
)

func (r *Postgres) UpsertHolding(ctx context.Context, holding model.Holding) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		INSERT INTO holdings(portfolio_id, stock_id, shares, avg_cost_per_share, total_cost,
			total_invested_base, realized_pnl, updated_at)
		VALUES(:portfolio_id, :stock_id, :shares, :avg_cost_per_share, :total_cost,
			:total_invested_base, :realized_pnl, :updated_at)
		ON CONFLICT (portfolio_id, stock_id) DO UPDATE
		SET shares = EXCLUDED.shares,
			avg_cost_per_share = EXCLUDED.avg_cost_per_share,
			total_cost = EXCLUDED.total_cost,
			total_invested_base = EXCLUDED.total_invested_base,
			realized_pnl = EXCLUDED.realized_pnl,
			updated_at = EXCLUDED.updated_at
		`

	slog.Debug("UpsertHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("UpsertHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("UpsertHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).NamedExecContext(ctx, query, dbConverter.ToDbHolding(holding))
	return mapErr(err)
}

func (r *Postgres) DeleteHolding(ctx context.Context, portfolioID, stockID string) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `DELETE FROM holdings WHERE portfolio_id = $1 AND stock_id = $2`

	slog.Debug("DeleteHolding start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("DeleteHolding failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("DeleteHolding completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query, portfolioID, stockID)
	return err
}

func (r *Postgres) GetHoldings(ctx context.Context, portfolioID string) (holdings []model.Holding, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `
		SELECT h.portfolio_id, h.stock_id, s.ticker, s.name, s.currency, h.shares, h.avg_cost_per_share,
			h.total_cost, h.total_invested_base, h.realized_pnl, h.updated_at
		FROM holdings h
		JOIN stocks s ON s.id = h.stock_id
		WHERE h.portfolio_id = $1
		ORDER BY s.ticker
		`

	slog.Debug("GetHoldings start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("GetHoldings failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetHoldings completed", slog.String("rqID", rqID))
		}
	}()

	var rows []dbModel.Holding
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query, portfolioID); err != nil {
		return nil, err
	}

	holdings = make([]model.Holding, 0, len(rows))
	for _, row := range rows {
		holdings = append(holdings, dbConverter.ConvertHolding(row))
	}

	return holdings, nil
}
