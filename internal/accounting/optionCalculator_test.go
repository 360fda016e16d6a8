package accounting

import (
	"testing"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateOptionPosition_RealizedPnL(t *testing.T) {
	testCases := []struct {
		name         string
		history      []model.OptionTransaction
		wantRealized string
		wantOpen     int64
	}{
		{
			name: "short expires worthless",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("2.50")),
				optionTx("c1", 10, model.Expiration, 1, nil),
			},
			wantRealized: "250",
		},
		{
			name: "short bought back",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("1.50")),
				optionTx("c1", 5, model.BuyToClose, 1, decPtr("0.50")),
			},
			wantRealized: "100",
		},
		{
			name: "long sold",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.BuyToOpen, 2, decPtr("3")),
				optionTx("c1", 5, model.SellToClose, 2, decPtr("4.25")),
			},
			wantRealized: "250",
		},
		{
			name: "long expires worthless",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.BuyToOpen, 3, decPtr("1.20")),
				optionTx("c1", 10, model.Expiration, 3, nil),
			},
			wantRealized: "-360",
		},
		{
			name: "short assigned",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("2")),
				optionTx("c1", 10, model.Assignment, 1, nil),
			},
			wantRealized: "0",
		},
		{
			name: "partial close keeps the rest open",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 5, decPtr("2")),
				optionTx("c1", 3, model.BuyToClose, 2, decPtr("1")),
			},
			wantRealized: "200",
			wantOpen:     3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r, err := CalculateOptionPosition(tc.history)
			require.NoError(t, err)

			assertDecimal(t, tc.wantRealized, r.Holding.RealizedPnL)
			assert.Equal(t, tc.wantOpen, r.Holding.Contracts)

			sum := decimal.Zero
			for _, pnl := range r.Realized {
				sum = sum.Add(pnl)
			}
			assertDecimal(t, r.Holding.RealizedPnL.String(), sum)
		})
	}
}

func TestCalculateOptionPosition_AveragePremiumOverOpeningsOnly(t *testing.T) {
	r, err := CalculateOptionPosition([]model.OptionTransaction{
		optionTx("o1", 0, model.SellToOpen, 1, decPtr("2")),
		optionTx("o2", 1, model.SellToOpen, 3, decPtr("3")),
		optionTx("c1", 2, model.BuyToClose, 2, decPtr("0.25")),
	})
	require.NoError(t, err)

	h := r.Holding
	assert.Equal(t, model.Short, h.Position)
	assert.Equal(t, int64(2), h.Contracts)
	assertDecimal(t, "2.75", h.AvgPremium)
	assertDecimal(t, "550", h.TotalCost)
	assertDecimal(t, "500", r.Realized["c1"])
	assert.Equal(t, int64(4), r.Before["c1"].Contracts)
	assert.Equal(t, "AAPL250117P00050000", h.OptionSymbol)
}

func TestCalculateOptionPosition_NewCycleStartsFreshBasis(t *testing.T) {
	r, err := CalculateOptionPosition([]model.OptionTransaction{
		optionTx("o1", 0, model.SellToOpen, 1, decPtr("5")),
		optionTx("c1", 1, model.BuyToClose, 1, decPtr("1")),
		optionTx("o2", 2, model.BuyToOpen, 1, decPtr("1")),
		optionTx("c2", 3, model.SellToClose, 1, decPtr("1.5")),
		optionTx("o3", 4, model.BuyToOpen, 2, decPtr("2")),
	})
	require.NoError(t, err)

	assert.Equal(t, model.Long, r.Holding.Position)
	assert.Equal(t, int64(2), r.Holding.Contracts)
	assertDecimal(t, "2", r.Holding.AvgPremium)
	assertDecimal(t, "400", r.Realized["c1"])
	assertDecimal(t, "50", r.Realized["c2"])
	assertDecimal(t, "450", r.Holding.RealizedPnL)
}

func TestCalculateOptionPosition_ClosedPositionHasNoCost(t *testing.T) {
	r, err := CalculateOptionPosition([]model.OptionTransaction{
		optionTx("o1", 0, model.BuyToOpen, 1, decPtr("5")),
		optionTx("c1", 1, model.Exercise, 1, nil),
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), r.Holding.Contracts)
	assertDecimal(t, "0", r.Holding.AvgPremium)
	assertDecimal(t, "0", r.Holding.TotalCost)
	assertDecimal(t, "0", r.Holding.RealizedPnL)
	assertDecimal(t, "5", r.Before["c1"].AvgPremium)
}

func TestCalculateOptionPosition_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		history []model.OptionTransaction
		wantErr error
	}{
		{
			name: "over-close",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 5, decPtr("1")),
				optionTx("c1", 1, model.BuyToClose, 10, decPtr("1")),
			},
			wantErr: ErrOverClose,
		},
		{
			name: "STC on a short position",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("1")),
				optionTx("c1", 1, model.SellToClose, 1, decPtr("1")),
			},
			wantErr: ErrInvalidClosingAction,
		},
		{
			name: "assignment on a long position",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.BuyToOpen, 1, decPtr("1")),
				optionTx("c1", 1, model.Assignment, 1, nil),
			},
			wantErr: ErrInvalidClosingAction,
		},
		{
			name:    "close with nothing open",
			history: []model.OptionTransaction{optionTx("c1", 0, model.Expiration, 1, nil)},
			wantErr: ErrNoOpenPosition,
		},
		{
			name: "close after the cycle ended",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("1")),
				optionTx("c1", 1, model.Expiration, 1, nil),
				optionTx("c2", 2, model.BuyToClose, 1, decPtr("1")),
			},
			wantErr: ErrNoOpenPosition,
		},
		{
			name: "opposite opening while open",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("1")),
				optionTx("o2", 1, model.BuyToOpen, 1, decPtr("1")),
			},
			wantErr: ErrMixedDirection,
		},
		{
			name:    "opening without premium",
			history: []model.OptionTransaction{optionTx("o1", 0, model.SellToOpen, 1, nil)},
			wantErr: ErrMissingPremium,
		},
		{
			name: "buy to close without premium",
			history: []model.OptionTransaction{
				optionTx("o1", 0, model.SellToOpen, 1, decPtr("1")),
				optionTx("c1", 1, model.BuyToClose, 1, nil),
			},
			wantErr: ErrMissingPremium,
		},
		{
			name:    "zero contracts",
			history: []model.OptionTransaction{optionTx("o1", 0, model.SellToOpen, 0, decPtr("1"))},
			wantErr: ErrInvalidTransaction,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := CalculateOptionPosition(tc.history)
			require.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestValidClosingActions(t *testing.T) {
	assert.ElementsMatch(t,
		[]model.OptionAction{model.SellToClose, model.Expiration, model.Exercise},
		ValidClosingActions(model.Long))
	assert.ElementsMatch(t,
		[]model.OptionAction{model.BuyToClose, model.Expiration, model.Assignment},
		ValidClosingActions(model.Short))

	require.NoError(t, CheckClosingAction(model.Short, model.Assignment))
	require.ErrorIs(t, CheckClosingAction(model.Long, model.BuyToClose), ErrInvalidClosingAction)
}
