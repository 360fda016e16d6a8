package xslsxGenerator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	holdingsSheet     = "Позиции"
	lotsSheet         = "Лоты"
	optionsSheet      = "Опционы"
	transactionsSheet = "Операции"
	statsSheet        = "Статистика"
)

type XSLSXGenerator struct{}

func New() *XSLSXGenerator {
	return &XSLSXGenerator{}
}

func (g *XSLSXGenerator) Generate(ctx context.Context, report model.PortfolioReport) (fileBytes []byte, fileExtension string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "XSLSXGenerator.Generate"

	if report.Portfolio.ID == "" {
		return nil, "", errors.New("empty portfolio")
	}

	slog.Debug("Generate start", slog.String("rqID", rqID), slog.String("op", op), slog.String("portfolioID", report.Portfolio.ID))

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			slog.Error("got error while closing file", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		}
	}()

	w := &sheetWriter{f: f}
	if err = w.initStyles(); err != nil {
		return nil, "", err
	}

	fillers := []func(*sheetWriter, model.PortfolioReport) error{
		fillHoldings,
		fillLots,
		fillOptions,
		fillTransactions,
		fillStats,
	}
	for _, fill := range fillers {
		if err = fill(w, report); err != nil {
			slog.Error("got error while filling sheet", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return nil, "", err
		}
	}

	// лист по умолчанию
	if err := f.DeleteSheet("Sheet1"); err != nil {
		slog.Error("got error while deleting Sheet1", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		slog.Error("got error while Saving file to bytes buffer", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return nil, "", err
	}

	slog.Debug("Generate completed", slog.String("rqID", rqID), slog.String("op", op))

	return buf.Bytes(), ".xlsx", nil
}

type sheetWriter struct {
	f           *excelize.File
	headerStyle int
	dateStyle   int
}

func (w *sheetWriter) initStyles() (err error) {
	w.headerStyle, err = w.f.NewStyle(&excelize.Style{
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{"#cfe2f3"}, // светло-голубой
		},
	})
	if err != nil {
		return fmt.Errorf("ошибка создания стиля: %w", err)
	}

	customDate := "yyyy-mm-dd"
	w.dateStyle, err = w.f.NewStyle(&excelize.Style{CustomNumFmt: &customDate})
	if err != nil {
		return fmt.Errorf("ошибка создания стиля: %w", err)
	}
	return nil
}

// newSheet creates a sheet with a styled header row.
func (w *sheetWriter) newSheet(name string, header ...string) error {
	if _, err := w.f.NewSheet(name); err != nil {
		return err
	}
	if err := w.f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(header), 1)
	if err != nil {
		return err
	}
	if err := w.f.SetCellStyle(name, "A1", last, w.headerStyle); err != nil {
		return fmt.Errorf("ошибка применения стиля: %w", err)
	}
	return w.f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// row writes values at the given 1-based row. Decimals become floats and dates get a date format.
func (w *sheetWriter) row(sheet string, rowNum int, values ...any) error {
	cells := make([]any, len(values))
	for i, v := range values {
		switch val := v.(type) {
		case decimal.Decimal:
			cells[i] = val.InexactFloat64()
		case *decimal.Decimal:
			if val != nil {
				cells[i] = val.InexactFloat64()
			}
		default:
			cells[i] = v
		}
	}

	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := w.f.SetSheetRow(sheet, cell, &cells); err != nil {
		return err
	}

	for i, v := range values {
		if _, ok := v.(time.Time); !ok {
			continue
		}
		c, _ := excelize.CoordinatesToCellName(i+1, rowNum)
		if err := w.f.SetCellStyle(sheet, c, c, w.dateStyle); err != nil {
			return err
		}
	}
	return nil
}

func fillHoldings(w *sheetWriter, report model.PortfolioReport) error {
	err := w.newSheet(holdingsSheet, "тикер", "название", "валюта", "кол-во", "средняя цена", "стоимость", "вложено в базовой валюте", "реализ. P&L")
	if err != nil {
		return err
	}
	for i, h := range report.Holdings {
		err = w.row(holdingsSheet, i+2, h.Ticker, h.Name, h.Currency, h.Shares, h.AvgCostPerShare, h.TotalCost, h.TotalInvestedBase, h.RealizedPnL)
		if err != nil {
			return err
		}
	}
	return nil
}

func fillLots(w *sheetWriter, report model.PortfolioReport) error {
	tickers := make(map[string]string, len(report.Holdings))
	for _, h := range report.Holdings {
		tickers[h.StockID] = h.Ticker
	}

	err := w.newSheet(lotsSheet, "тикер", "id покупки", "дата", "куплено", "остаток", "цена", "валюта", "курс", "себестоимость за акцию")
	if err != nil {
		return err
	}
	for i, lot := range report.Lots {
		err = w.row(lotsSheet, i+2,
			tickers[lot.StockID], lot.TransactionID, lot.ExecutedAt, lot.Shares, lot.RemainingShares,
			lot.PricePerShare, lot.Currency, lot.FxRateToBase, lot.BaseCostPerShare,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func fillOptions(w *sheetWriter, report model.PortfolioReport) error {
	err := w.newSheet(optionsSheet, "опцион", "базовый актив", "тип", "страйк", "экспирация", "позиция", "контракты", "средняя премия", "стоимость", "реализ. P&L")
	if err != nil {
		return err
	}
	for i, h := range report.OptionHoldings {
		err = w.row(optionsSheet, i+2,
			h.OptionSymbol, h.Symbol, string(h.OptionType), h.StrikePrice, h.ExpirationDate,
			string(h.Position), h.Contracts, h.AvgPremium, h.TotalCost, h.RealizedPnL,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// fillTransactions puts stock rows first and option rows below them, each in replay order.
func fillTransactions(w *sheetWriter, report model.PortfolioReport) error {
	tickers := make(map[string]string, len(report.Holdings))
	for _, h := range report.Holdings {
		tickers[h.StockID] = h.Ticker
	}

	err := w.newSheet(transactionsSheet, "дата", "инструмент", "операция", "кол-во", "цена", "валюта", "курс", "комиссия", "лот", "связь", "заметка")
	if err != nil {
		return err
	}

	rowNum := 2
	for _, tx := range report.StockTransactions {
		ticker, ok := tickers[tx.StockID]
		if !ok {
			ticker = tx.StockID
		}
		err = w.row(transactionsSheet, rowNum,
			tx.ExecutedAt, ticker, string(tx.Type), tx.Shares, tx.PricePerShare,
			tx.Currency, tx.FxRateToBase, tx.Fees, tx.SourceTransactionID, "", tx.Notes,
		)
		if err != nil {
			return err
		}
		rowNum++
	}
	for _, tx := range report.OptionTransactions {
		err = w.row(transactionsSheet, rowNum,
			tx.Date, tx.OptionSymbol, string(tx.Action), tx.Contracts, tx.Premium,
			tx.Currency, tx.FxRateToBase, tx.Fees, "", tx.LinkedStockTxID, tx.Notes,
		)
		if err != nil {
			return err
		}
		rowNum++
	}
	return nil
}

func fillStats(w *sheetWriter, report model.PortfolioReport) error {
	if err := w.newSheet(statsSheet, "показатель", "значение"); err != nil {
		return err
	}

	st := report.Stats
	rows := [][]any{
		{"портфель", report.Portfolio.Name},
		{"базовая валюта", report.Portfolio.BaseCurrency},
		{"позиций в акциях", st.HoldingsCount},
		{"стоимость акций", st.TotalCost},
		{"вложено в базовой валюте", st.TotalInvestedBase},
		{"реализ. P&L по акциям", st.StockRealizedPnL},
		{"опционных позиций", st.TotalPositions},
		{"длинных", st.LongPositions},
		{"коротких", st.ShortPositions},
		{"экспирация на этой неделе", st.ExpiringThisWeek},
		{"call", st.Calls},
		{"put", st.Puts},
		{"стоимость опционов", st.OptionsTotalCost},
		{"реализ. P&L по опционам", st.OptionRealizedPnL},
		{"реализ. P&L всего", st.TotalRealizedPnL},
	}
	for i, r := range rows {
		if err := w.row(statsSheet, i+2, r...); err != nil {
			return err
		}
	}
	return nil
}
