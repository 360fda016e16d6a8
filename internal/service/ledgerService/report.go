package ledgerService

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/utils"
	"golang.org/x/sync/errgroup"
)

func (s *LedgerService) buildReport(ctx context.Context, portfolioID string) (model.PortfolioReport, error) {
	portfolio, err := s.GetPortfolio(ctx, portfolioID)
	if err != nil {
		return model.PortfolioReport{}, err
	}

	report := model.PortfolioReport{Portfolio: portfolio}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		report.Holdings, err = s.GetHoldings(gCtx, portfolioID)
		if err != nil {
			return err
		}
		for _, h := range report.Holdings {
			lots, err := s.GetAvailableLots(gCtx, portfolioID, h.Ticker)
			if err != nil {
				return err
			}
			report.Lots = append(report.Lots, lots...)
		}
		return nil
	})
	g.Go(func() (err error) {
		report.OptionHoldings, err = s.GetOptionHoldings(gCtx, portfolioID)
		return err
	})
	g.Go(func() (err error) {
		report.StockTransactions, err = s.repo.ListStockTransactions(gCtx, portfolioID)
		return err
	})
	g.Go(func() (err error) {
		report.OptionTransactions, err = s.repo.ListOptionTransactions(gCtx, portfolioID)
		return err
	})
	g.Go(func() (err error) {
		report.Stats, err = s.GetStats(gCtx, portfolioID)
		return err
	})
	if err = g.Wait(); err != nil {
		return model.PortfolioReport{}, err
	}

	return report, nil
}

// ExportPortfolioReport renders the ledger of a portfolio and uploads it, returning a download link.
func (s *LedgerService) ExportPortfolioReport(ctx context.Context, portfolioID string) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "LedgerService.ExportPortfolioReport"

	slog.Debug("ExportPortfolioReport start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	defer func() {
		slog.Debug("ExportPortfolioReport finished", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", portfolioID))
	}()

	report, err := s.buildReport(ctx, portfolioID)
	if err != nil {
		slog.Error("can't build report", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	fileBytes, ext, err := s.reportGenerator.Generate(ctx, report)
	if err != nil {
		slog.Error("got error from reportGenerator.Generate", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	filename := fmt.Sprintf("%s_%s_%s%s",
		s.cfg.Ledger.ReportPrefix,
		strings.ReplaceAll(report.Portfolio.Name, " ", "_"),
		s.now().Format("2006-01-02_15-04-05"),
		ext,
	)

	downloadLink, err = s.cloudStorage.UploadFile(ctx, bytes.NewReader(fileBytes), filename)
	if err != nil {
		slog.Error("got error from cloudStorage.UploadFile", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	return downloadLink, nil
}

// DeleteOldReports removes uploaded reports past their TTL. It runs as a scheduled job.
func (s *LedgerService) DeleteOldReports(ctx context.Context) error {
	return s.cloudStorage.DeleteOldFiles(ctx)
}
