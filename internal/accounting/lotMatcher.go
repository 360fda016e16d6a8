package accounting

import (
	"fmt"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
)

// Consumption is the part of one lot used to satisfy a sell.
type Consumption struct {
	LotID    string
	Shares   decimal.Decimal
	Cost     decimal.Decimal
	BaseCost decimal.Decimal
}

// Disposal is the outcome of matching one sell against the lot queue.
type Disposal struct {
	Shares         decimal.Decimal
	CostOfSold     decimal.Decimal
	CostOfSoldBase decimal.Decimal
	Consumed       []Consumption
}

// LotQueue is the ordered inventory of one (portfolio, stock) position.
// Lots are kept in the order they were pushed; exhausted lots stay in place
// so that an explicit source pointer to them is still recognised.
type LotQueue struct {
	lots  []*model.Lot
	index map[string]int
}

func NewLotQueue() *LotQueue {
	return &LotQueue{index: make(map[string]int)}
}

// Push appends a freshly bought lot. Callers push lots in execution order.
func (q *LotQueue) Push(lot model.Lot) {
	l := lot
	if l.RemainingShares.IsZero() {
		l.RemainingShares = l.Shares
	}
	q.index[l.TransactionID] = len(q.lots)
	q.lots = append(q.lots, &l)
}

// Available is the total number of shares still held across all lots.
func (q *LotQueue) Available() decimal.Decimal {
	total := decimal.Zero
	for _, l := range q.lots {
		total = total.Add(l.RemainingShares)
	}
	return total
}

// Lots returns a copy of the lots that still have remaining shares.
func (q *LotQueue) Lots() []model.Lot {
	res := make([]model.Lot, 0, len(q.lots))
	for _, l := range q.lots {
		if l.RemainingShares.IsPositive() {
			res = append(res, *l)
		}
	}
	return res
}

// Lot looks up a lot by its BUY transaction id, exhausted lots included.
func (q *LotQueue) Lot(id string) (model.Lot, bool) {
	i, ok := q.index[id]
	if !ok {
		return model.Lot{}, false
	}
	return *q.lots[i], true
}

// Match consumes shares from the queue. With a source id the named lot is
// drained first and FIFO covers whatever it cannot; without one the whole
// sell is FIFO. The queue is left untouched when an error is returned.
func (q *LotQueue) Match(shares decimal.Decimal, sourceID string) (Disposal, error) {
	if !shares.IsPositive() {
		return Disposal{}, fmt.Errorf("%w: shares to sell must be positive, got %s", ErrInvalidTransaction, shares)
	}

	if sourceID != "" {
		if _, ok := q.index[sourceID]; !ok {
			return Disposal{}, fmt.Errorf("%w: %s", ErrUnknownSourceLot, sourceID)
		}
	}

	if available := q.Available(); available.LessThan(shares) {
		return Disposal{}, fmt.Errorf("%w: want %s, open lots hold %s", ErrInsufficientShares, shares, available)
	}

	d := Disposal{Shares: shares, CostOfSold: decimal.Zero, CostOfSoldBase: decimal.Zero}
	toSell := shares

	if sourceID != "" {
		toSell = q.consume(q.lots[q.index[sourceID]], toSell, &d)
	}

	for _, l := range q.lots {
		if toSell.IsZero() {
			break
		}
		toSell = q.consume(l, toSell, &d)
	}

	return d, nil
}

func (q *LotQueue) consume(l *model.Lot, toSell decimal.Decimal, d *Disposal) decimal.Decimal {
	if !l.RemainingShares.IsPositive() || !toSell.IsPositive() {
		return toSell
	}

	taken := decimal.Min(l.RemainingShares, toSell)
	c := Consumption{
		LotID:    l.TransactionID,
		Shares:   taken,
		Cost:     taken.Mul(l.PricePerShare),
		BaseCost: taken.Mul(l.BaseCostPerShare),
	}

	l.RemainingShares = l.RemainingShares.Sub(taken)
	d.CostOfSold = d.CostOfSold.Add(c.Cost)
	d.CostOfSoldBase = d.CostOfSoldBase.Add(c.BaseCost)
	d.Consumed = append(d.Consumed, c)

	return toSell.Sub(taken)
}
