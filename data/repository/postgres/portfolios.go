package postgres

import (
	"context"
	"log/slog"

	"github.com/KotFed0t/invest_ledger/internal/converter/dbConverter"
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/model/dbModel"
	"github.com/KotFed0t/invest_ledger/utils"
)

func (r *Postgres) CreatePortfolio(ctx context.Context, portfolio model.Portfolio) (err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `INSERT INTO portfolios(id, name, base_currency, description, created_at) VALUES($1, $2, $3, $4, $5)`

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("CreatePortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("CreatePortfolio completed", slog.String("rqID", rqID))
		}
	}()

	_, err = r.txOrDb(ctx).ExecContext(ctx, query,
		portfolio.ID, portfolio.Name, portfolio.BaseCurrency, portfolio.Description, portfolio.CreatedAt)
	return mapErr(err)
}

func (r *Postgres) GetPortfolio(ctx context.Context, id string) (portfolio model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, name, base_currency, description, created_at FROM portfolios WHERE id = $1`

	slog.Debug("GetPortfolio start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Debug("GetPortfolio failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("GetPortfolio completed", slog.String("rqID", rqID))
		}
	}()

	dbPortfolio := dbModel.Portfolio{}
	if err = r.txOrDb(ctx).GetContext(ctx, &dbPortfolio, query, id); err != nil {
		return model.Portfolio{}, mapErr(err)
	}

	return dbConverter.ConvertPortfolio(dbPortfolio), nil
}

func (r *Postgres) ListPortfolios(ctx context.Context) (portfolios []model.Portfolio, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	query := `SELECT id, name, base_currency, description, created_at FROM portfolios ORDER BY created_at`

	slog.Debug("ListPortfolios start", slog.String("rqID", rqID), slog.String("query", query))
	defer func() {
		if err != nil {
			slog.Error("ListPortfolios failed", slog.String("rqID", rqID), slog.String("err", err.Error()))
		} else {
			slog.Debug("ListPortfolios completed", slog.String("rqID", rqID))
		}
	}()

	var rows []dbModel.Portfolio
	if err = r.txOrDb(ctx).SelectContext(ctx, &rows, query); err != nil {
		return nil, err
	}

	portfolios = make([]model.Portfolio, 0, len(rows))
	for _, row := range rows {
		portfolios = append(portfolios, dbConverter.ConvertPortfolio(row))
	}

	return portfolios, nil
}
