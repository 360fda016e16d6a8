package dbConverter

import (
	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/KotFed0t/invest_ledger/internal/model/dbModel"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

func optionalText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func optionalDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func ConvertPortfolio(p dbModel.Portfolio) model.Portfolio {
	return model.Portfolio{
		ID:           p.ID,
		Name:         p.Name,
		BaseCurrency: p.BaseCurrency,
		Description:  p.Description,
		CreatedAt:    p.CreatedAt,
	}
}

func ConvertStock(s dbModel.Stock) model.Stock {
	return model.Stock{
		ID:         s.ID,
		Ticker:     s.Ticker,
		Name:       s.Name,
		Currency:   s.Currency,
		PriceScale: s.PriceScale,
	}
}

func ConvertStockTransaction(tx dbModel.StockTransaction) model.StockTransaction {
	return model.StockTransaction{
		ID:                  tx.ID,
		PortfolioID:         tx.PortfolioID,
		StockID:             tx.StockID,
		Type:                model.TransactionType(tx.Type),
		Shares:              tx.Shares,
		PricePerShare:       tx.PricePerShare,
		Currency:            tx.Currency,
		FxRateToBase:        tx.FxRateToBase,
		Fees:                tx.Fees,
		ExecutedAt:          tx.ExecutedAt,
		SourceTransactionID: tx.SourceTransactionID.String,
		Notes:               tx.Notes,
		CreatedAt:           tx.CreatedAt,
	}
}

func ToDbStockTransaction(tx model.StockTransaction) dbModel.StockTransaction {
	return dbModel.StockTransaction{
		ID:                  tx.ID,
		PortfolioID:         tx.PortfolioID,
		StockID:             tx.StockID,
		Type:                string(tx.Type),
		Shares:              tx.Shares,
		PricePerShare:       tx.PricePerShare,
		Currency:            tx.Currency,
		FxRateToBase:        tx.FxRateToBase,
		Fees:                tx.Fees,
		ExecutedAt:          tx.ExecutedAt,
		SourceTransactionID: optionalText(tx.SourceTransactionID),
		Notes:               tx.Notes,
		CreatedAt:           tx.CreatedAt,
	}
}

func ConvertHolding(h dbModel.Holding) model.Holding {
	return model.Holding{
		PortfolioID:       h.PortfolioID,
		StockID:           h.StockID,
		Ticker:            h.Ticker,
		Name:              h.Name,
		Currency:          h.Currency,
		Shares:            h.Shares,
		AvgCostPerShare:   h.AvgCostPerShare,
		TotalCost:         h.TotalCost,
		TotalInvestedBase: h.TotalInvestedBase,
		RealizedPnL:       h.RealizedPnL,
		UpdatedAt:         h.UpdatedAt,
	}
}

func ToDbHolding(h model.Holding) dbModel.Holding {
	return dbModel.Holding{
		PortfolioID:       h.PortfolioID,
		StockID:           h.StockID,
		Ticker:            h.Ticker,
		Name:              h.Name,
		Currency:          h.Currency,
		Shares:            h.Shares,
		AvgCostPerShare:   h.AvgCostPerShare,
		TotalCost:         h.TotalCost,
		TotalInvestedBase: h.TotalInvestedBase,
		RealizedPnL:       h.RealizedPnL,
		UpdatedAt:         h.UpdatedAt,
	}
}

func ConvertOptionTransaction(tx dbModel.OptionTransaction) model.OptionTransaction {
	return model.OptionTransaction{
		ID:              tx.ID,
		PortfolioID:     tx.PortfolioID,
		Symbol:          tx.Symbol,
		OptionSymbol:    tx.OptionSymbol,
		OptionType:      model.OptionType(tx.OptionType),
		StrikePrice:     tx.StrikePrice,
		ExpirationDate:  tx.ExpirationDate,
		Action:          model.OptionAction(tx.Action),
		Contracts:       tx.Contracts,
		Premium:         decimalPtr(tx.Premium),
		Currency:        tx.Currency,
		FxRateToBase:    tx.FxRateToBase,
		Fees:            tx.Fees,
		Date:            tx.Date,
		Notes:           tx.Notes,
		LinkedStockTxID: tx.LinkedStockTxID.String,
		TotalPremium:    decimalPtr(tx.TotalPremium),
		CreatedAt:       tx.CreatedAt,
	}
}

func ToDbOptionTransaction(tx model.OptionTransaction) dbModel.OptionTransaction {
	return dbModel.OptionTransaction{
		ID:              tx.ID,
		PortfolioID:     tx.PortfolioID,
		Symbol:          tx.Symbol,
		OptionSymbol:    tx.OptionSymbol,
		OptionType:      string(tx.OptionType),
		StrikePrice:     tx.StrikePrice,
		ExpirationDate:  tx.ExpirationDate,
		Action:          string(tx.Action),
		Contracts:       tx.Contracts,
		Premium:         optionalDecimal(tx.Premium),
		Currency:        tx.Currency,
		FxRateToBase:    tx.FxRateToBase,
		Fees:            tx.Fees,
		Date:            tx.Date,
		Notes:           tx.Notes,
		LinkedStockTxID: optionalText(tx.LinkedStockTxID),
		TotalPremium:    optionalDecimal(tx.TotalPremium),
		CreatedAt:       tx.CreatedAt,
	}
}

func ConvertOptionHolding(h dbModel.OptionHolding) model.OptionHolding {
	return model.OptionHolding{
		PortfolioID:    h.PortfolioID,
		OptionSymbol:   h.OptionSymbol,
		Symbol:         h.Symbol,
		OptionType:     model.OptionType(h.OptionType),
		StrikePrice:    h.StrikePrice,
		ExpirationDate: h.ExpirationDate,
		Position:       model.Position(h.Position),
		Contracts:      h.Contracts,
		AvgPremium:     h.AvgPremium,
		TotalCost:      h.TotalCost,
		RealizedPnL:    h.RealizedPnL,
		Currency:       h.Currency,
		UpdatedAt:      h.UpdatedAt,
	}
}

func ToDbOptionHolding(h model.OptionHolding) dbModel.OptionHolding {
	return dbModel.OptionHolding{
		PortfolioID:    h.PortfolioID,
		OptionSymbol:   h.OptionSymbol,
		Symbol:         h.Symbol,
		OptionType:     string(h.OptionType),
		StrikePrice:    h.StrikePrice,
		ExpirationDate: h.ExpirationDate,
		Position:       string(h.Position),
		Contracts:      h.Contracts,
		AvgPremium:     h.AvgPremium,
		TotalCost:      h.TotalCost,
		RealizedPnL:    h.RealizedPnL,
		Currency:       h.Currency,
		UpdatedAt:      h.UpdatedAt,
	}
}
