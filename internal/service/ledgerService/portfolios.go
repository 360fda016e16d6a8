package ledgerService

import (
	"context"
	"log/slog"
	"strings"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/service"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/google/uuid"
)

func (s *LedgerService) CreatePortfolio(ctx context.Context, name, baseCurrency, description string) (model.Portfolio, error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.CreatePortfolio"

	slog.Debug("CreatePortfolio start", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name))
	defer func() {
		slog.Debug("CreatePortfolio finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("name", name))
	}()

	name = strings.TrimSpace(name)
	if name == "" {
		return model.Portfolio{}, service.Validationf("portfolio name is required")
	}

	baseCurrency = strings.ToUpper(strings.TrimSpace(baseCurrency))
	if baseCurrency == "" {
		baseCurrency = s.cfg.Ledger.BaseCurrency
	}

	portfolio := model.Portfolio{
		ID:           uuid.NewString(),
		Name:         name,
		BaseCurrency: baseCurrency,
		Description:  description,
		CreatedAt:    s.now(),
	}

	if err := s.repo.CreatePortfolio(ctx, portfolio); err != nil {
		slog.Error("got error from repo.CreatePortfolio", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return model.Portfolio{}, err
	}

	return portfolio, nil
}

func (s *LedgerService) GetPortfolio(ctx context.Context, portfolioID string) (model.Portfolio, error) {
	portfolio, err := s.repo.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return model.Portfolio{}, notFound(err, "portfolio "+portfolioID)
	}
	return portfolio, nil
}

func (s *LedgerService) ListPortfolios(ctx context.Context) ([]model.Portfolio, error) {
	return s.repo.ListPortfolios(ctx)
}
