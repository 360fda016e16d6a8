package accounting

import (
	"fmt"
	"slices"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
)

// ContractMultiplier is the number of underlying shares per option contract.
const ContractMultiplier = 100

var multiplier = decimal.NewFromInt(ContractMultiplier)

var validClosingActions = map[model.Position][]model.OptionAction{
	model.Long:  {model.SellToClose, model.Expiration, model.Exercise},
	model.Short: {model.BuyToClose, model.Expiration, model.Assignment},
}

// ValidClosingActions lists the actions that may close a position of the given direction.
func ValidClosingActions(position model.Position) []model.OptionAction {
	return slices.Clone(validClosingActions[position])
}

// CheckClosingAction rejects actions that cannot close a position of the given direction.
func CheckClosingAction(position model.Position, action model.OptionAction) error {
	if !slices.Contains(validClosingActions[position], action) {
		return fmt.Errorf("%w: %s cannot close a %s position, valid actions: %v",
			ErrInvalidClosingAction, action, position, validClosingActions[position])
	}
	return nil
}

// OpeningPosition maps an opening action to the direction it opens.
func OpeningPosition(action model.OptionAction) (model.Position, bool) {
	switch action {
	case model.BuyToOpen:
		return model.Long, true
	case model.SellToOpen:
		return model.Short, true
	}
	return "", false
}

// RealizedPnL computes the P&L booked by one closing transaction.
// Assignment and exercise book nothing on the option: the premium moves
// into the linked stock transaction.
func RealizedPnL(action model.OptionAction, position model.Position, avgPremium decimal.Decimal, closingPremium *decimal.Decimal, contracts int64) (decimal.Decimal, error) {
	n := decimal.NewFromInt(contracts).Mul(multiplier)

	switch action {
	case model.BuyToClose:
		if closingPremium == nil {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingPremium, action)
		}
		return avgPremium.Sub(*closingPremium).Mul(n), nil
	case model.SellToClose:
		if closingPremium == nil {
			return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingPremium, action)
		}
		return closingPremium.Sub(avgPremium).Mul(n), nil
	case model.Expiration:
		if position == model.Short {
			return avgPremium.Mul(n), nil
		}
		return avgPremium.Mul(n).Neg(), nil
	case model.Assignment, model.Exercise:
		return decimal.Zero, nil
	}

	return decimal.Zero, fmt.Errorf("%w: %s is not a closing action", ErrInvalidTransaction, action)
}

// OptionState is the open position right before a given transaction.
type OptionState struct {
	Position   model.Position
	Contracts  int64
	AvgPremium decimal.Decimal
}

func (s OptionState) IsOpen() bool {
	return s.Contracts > 0
}

// OptionReplay is the full state derived from one option symbol's history.
type OptionReplay struct {
	Holding model.OptionHolding
	// Realized holds the P&L of every closing transaction, keyed by id.
	Realized map[string]decimal.Decimal
	// Before holds the position state each closing transaction acted on.
	Before map[string]OptionState
}

// SortOptionTransactions orders a history by trade date, then insertion time, then id.
func SortOptionTransactions(history []model.OptionTransaction) {
	slices.SortStableFunc(history, func(a, b model.OptionTransaction) int {
		if c := a.Date.Compare(b.Date); c != 0 {
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

// CalculateOptionPosition replays the history of one (portfolio, option
// symbol) aggregate. The average premium is weighted over the opening
// transactions of the current cycle only; once contracts reach zero the
// next opening transaction starts a fresh basis.
func CalculateOptionPosition(history []model.OptionTransaction) (OptionReplay, error) {
	txs := slices.Clone(history)
	SortOptionTransactions(txs)

	r := OptionReplay{
		Realized: make(map[string]decimal.Decimal),
		Before:   make(map[string]OptionState),
	}

	var (
		state         OptionState
		openedCost    = decimal.Zero
		openedCount   int64
		totalRealized = decimal.Zero
	)
	state.AvgPremium = decimal.Zero

	for _, tx := range txs {
		if tx.Contracts <= 0 {
			return OptionReplay{}, fmt.Errorf("%w: option transaction %s has non-positive contracts", ErrInvalidTransaction, tx.ID)
		}

		if pos, ok := OpeningPosition(tx.Action); ok {
			if tx.Premium == nil {
				return OptionReplay{}, fmt.Errorf("option transaction %s: %w: %s", tx.ID, ErrMissingPremium, tx.Action)
			}
			if state.IsOpen() && state.Position != pos {
				return OptionReplay{}, fmt.Errorf("option transaction %s: %w: %s while %s is open",
					tx.ID, ErrMixedDirection, tx.Action, state.Position)
			}
			if !state.IsOpen() {
				openedCost = decimal.Zero
				openedCount = 0
				state.Position = pos
			}
			openedCost = openedCost.Add(tx.Premium.Mul(decimal.NewFromInt(tx.Contracts)))
			openedCount += tx.Contracts
			state.Contracts += tx.Contracts
			state.AvgPremium = openedCost.Div(decimal.NewFromInt(openedCount))
			continue
		}

		if !tx.Action.Valid() {
			return OptionReplay{}, fmt.Errorf("%w: option transaction %s has unknown action %q", ErrInvalidTransaction, tx.ID, tx.Action)
		}
		if !state.IsOpen() {
			return OptionReplay{}, fmt.Errorf("option transaction %s: %w for %s", tx.ID, ErrNoOpenPosition, tx.OptionSymbol)
		}
		if err := CheckClosingAction(state.Position, tx.Action); err != nil {
			return OptionReplay{}, fmt.Errorf("option transaction %s: %w", tx.ID, err)
		}
		if tx.Contracts > state.Contracts {
			return OptionReplay{}, fmt.Errorf("option transaction %s: %w: closing %d, only %d open",
				tx.ID, ErrOverClose, tx.Contracts, state.Contracts)
		}

		pnl, err := RealizedPnL(tx.Action, state.Position, state.AvgPremium, tx.Premium, tx.Contracts)
		if err != nil {
			return OptionReplay{}, fmt.Errorf("option transaction %s: %w", tx.ID, err)
		}

		r.Before[tx.ID] = state
		r.Realized[tx.ID] = pnl
		totalRealized = totalRealized.Add(pnl)
		state.Contracts -= tx.Contracts
	}

	h := model.OptionHolding{
		Position:    state.Position,
		Contracts:   state.Contracts,
		AvgPremium:  decimal.Zero,
		TotalCost:   decimal.Zero,
		RealizedPnL: totalRealized,
	}
	if len(txs) > 0 {
		first := txs[0]
		h.PortfolioID = first.PortfolioID
		h.OptionSymbol = first.OptionSymbol
		h.Symbol = first.Symbol
		h.OptionType = first.OptionType
		h.StrikePrice = first.StrikePrice
		h.ExpirationDate = first.ExpirationDate
		h.Currency = first.Currency
	}
	if state.IsOpen() {
		h.AvgPremium = state.AvgPremium
		h.TotalCost = state.AvgPremium.Mul(decimal.NewFromInt(state.Contracts)).Mul(multiplier)
	}
	r.Holding = h

	return r, nil
}

// CurrentOptionState replays a history and returns the position it leaves open.
func CurrentOptionState(history []model.OptionTransaction) (OptionState, error) {
	r, err := CalculateOptionPosition(history)
	if err != nil {
		return OptionState{}, err
	}
	return OptionState{
		Position:   r.Holding.Position,
		Contracts:  r.Holding.Contracts,
		AvgPremium: r.Holding.AvgPremium,
	}, nil
}
