package accounting

import (
	"fmt"
	"slices"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
)

// SellResult is the realized outcome of one SELL during a replay.
type SellResult struct {
	TransactionID string
	Disposal      Disposal
	Proceeds      decimal.Decimal
	RealizedPnL   decimal.Decimal
}

// HoldingReplay is the full state derived from one position's history.
type HoldingReplay struct {
	Holding model.Holding
	Lots    []model.Lot
	Sells   []SellResult
}

// SortStockTransactions orders a history the way it is replayed:
// by execution time, then insertion time, then id.
func SortStockTransactions(history []model.StockTransaction) {
	slices.SortStableFunc(history, func(a, b model.StockTransaction) int {
		if c := a.ExecutedAt.Compare(b.ExecutedAt); c != 0 {
			return c
		}
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}

// BaseCostPerShare converts a quoted price into base currency using the
// transaction's own FX snapshot.
func BaseCostPerShare(price, priceScale, fxRate decimal.Decimal) decimal.Decimal {
	if priceScale.IsZero() {
		priceScale = decimal.NewFromInt(1)
	}
	if fxRate.IsZero() {
		fxRate = decimal.NewFromInt(1)
	}
	return price.Mul(priceScale).Mul(fxRate)
}

// AggregateHolding replays the complete history of one (portfolio, stock)
// position from an empty state. It is a pure function of its input.
func AggregateHolding(stock model.Stock, history []model.StockTransaction) (HoldingReplay, error) {
	txs := slices.Clone(history)
	SortStockTransactions(txs)

	queue := NewLotQueue()
	realized := decimal.Zero
	sells := make([]SellResult, 0)

	for _, tx := range txs {
		if !tx.Shares.IsPositive() {
			return HoldingReplay{}, fmt.Errorf("%w: transaction %s has non-positive shares", ErrInvalidTransaction, tx.ID)
		}

		switch tx.Type {
		case model.Buy:
			queue.Push(model.Lot{
				TransactionID:    tx.ID,
				StockID:          tx.StockID,
				ExecutedAt:       tx.ExecutedAt,
				Shares:           tx.Shares,
				RemainingShares:  tx.Shares,
				PricePerShare:    tx.PricePerShare,
				Currency:         tx.Currency,
				FxRateToBase:     tx.FxRateToBase,
				BaseCostPerShare: BaseCostPerShare(tx.PricePerShare, stock.PriceScale, tx.FxRateToBase),
			})
		case model.Sell:
			d, err := queue.Match(tx.Shares, tx.SourceTransactionID)
			if err != nil {
				return HoldingReplay{}, fmt.Errorf("sell %s: %w", tx.ID, err)
			}
			proceeds := tx.Shares.Mul(tx.PricePerShare)
			pnl := proceeds.Sub(d.CostOfSold)
			realized = realized.Add(pnl)
			sells = append(sells, SellResult{
				TransactionID: tx.ID,
				Disposal:      d,
				Proceeds:      proceeds,
				RealizedPnL:   pnl,
			})
		default:
			return HoldingReplay{}, fmt.Errorf("%w: transaction %s has unknown type %q", ErrInvalidTransaction, tx.ID, tx.Type)
		}
	}

	lots := queue.Lots()
	h := model.Holding{
		StockID:           stock.ID,
		Ticker:            stock.Ticker,
		Name:              stock.Name,
		Currency:          stock.Currency,
		Shares:            decimal.Zero,
		AvgCostPerShare:   decimal.Zero,
		TotalCost:         decimal.Zero,
		TotalInvestedBase: decimal.Zero,
		RealizedPnL:       realized,
	}
	for _, l := range lots {
		h.Shares = h.Shares.Add(l.RemainingShares)
		h.TotalCost = h.TotalCost.Add(l.RemainingShares.Mul(l.PricePerShare))
		h.TotalInvestedBase = h.TotalInvestedBase.Add(l.RemainingShares.Mul(l.BaseCostPerShare))
	}
	if h.Shares.IsPositive() {
		h.AvgCostPerShare = h.TotalCost.Div(h.Shares)
	}
	if len(txs) > 0 {
		h.PortfolioID = txs[0].PortfolioID
	}

	return HoldingReplay{Holding: h, Lots: lots, Sells: sells}, nil
}
