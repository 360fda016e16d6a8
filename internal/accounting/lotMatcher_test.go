package accounting

import (
	"testing"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func twoLotQueue() *LotQueue {
	q := NewLotQueue()
	q.Push(model.Lot{TransactionID: "A", Shares: dec("10"), PricePerShare: dec("10"), BaseCostPerShare: dec("230")})
	q.Push(model.Lot{TransactionID: "B", Shares: dec("10"), PricePerShare: dec("20"), BaseCostPerShare: dec("440")})
	return q
}

func remaining(t *testing.T, q *LotQueue, id string) string {
	t.Helper()
	l, ok := q.Lot(id)
	require.True(t, ok, "lot %s", id)
	return l.RemainingShares.String()
}

func TestLotQueue_MatchFIFO(t *testing.T) {
	q := twoLotQueue()

	d, err := q.Match(dec("15"), "")
	require.NoError(t, err)

	assertDecimal(t, "200", d.CostOfSold)
	assertDecimal(t, "4500", d.CostOfSoldBase)
	require.Len(t, d.Consumed, 2)
	assert.Equal(t, "A", d.Consumed[0].LotID)
	assert.Equal(t, "B", d.Consumed[1].LotID)
	assert.Equal(t, "0", remaining(t, q, "A"))
	assert.Equal(t, "5", remaining(t, q, "B"))

	lots := q.Lots()
	require.Len(t, lots, 1)
	assert.Equal(t, "B", lots[0].TransactionID)
}

func TestLotQueue_MatchExplicitLot(t *testing.T) {
	q := twoLotQueue()

	d, err := q.Match(dec("5"), "B")
	require.NoError(t, err)

	assertDecimal(t, "100", d.CostOfSold)
	assert.Equal(t, "10", remaining(t, q, "A"))
	assert.Equal(t, "5", remaining(t, q, "B"))
}

func TestLotQueue_ExplicitLotSpillsIntoFIFO(t *testing.T) {
	q := twoLotQueue()

	d, err := q.Match(dec("13"), "B")
	require.NoError(t, err)

	// 10 from B at 20, then 3 from A at 10
	assertDecimal(t, "230", d.CostOfSold)
	require.Len(t, d.Consumed, 2)
	assert.Equal(t, "B", d.Consumed[0].LotID)
	assert.Equal(t, "A", d.Consumed[1].LotID)
	assert.Equal(t, "7", remaining(t, q, "A"))
	assert.Equal(t, "0", remaining(t, q, "B"))
}

func TestLotQueue_ExhaustedSourceFallsBackToFIFO(t *testing.T) {
	q := twoLotQueue()
	_, err := q.Match(dec("10"), "A")
	require.NoError(t, err)

	d, err := q.Match(dec("2"), "A")
	require.NoError(t, err)

	assertDecimal(t, "40", d.CostOfSold)
	assert.Equal(t, "8", remaining(t, q, "B"))
}

func TestLotQueue_MatchErrors(t *testing.T) {
	testCases := []struct {
		name    string
		shares  string
		source  string
		wantErr error
	}{
		{name: "over-sell", shares: "21", wantErr: ErrInsufficientShares},
		{name: "over-sell with source", shares: "25", source: "A", wantErr: ErrInsufficientShares},
		{name: "unknown source", shares: "1", source: "Z", wantErr: ErrUnknownSourceLot},
		{name: "zero shares", shares: "0", wantErr: ErrInvalidTransaction},
		{name: "negative shares", shares: "-3", wantErr: ErrInvalidTransaction},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			q := twoLotQueue()

			_, err := q.Match(dec(tc.shares), tc.source)
			require.ErrorIs(t, err, tc.wantErr)

			assert.Equal(t, "10", remaining(t, q, "A"))
			assert.Equal(t, "10", remaining(t, q, "B"))
			assertDecimal(t, "20", q.Available())
		})
	}
}
