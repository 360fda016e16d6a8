package accounting

import (
	"testing"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOCCSymbol(t *testing.T) {
	testCases := []struct {
		ticker     string
		strike     string
		expiration time.Time
		optionType model.OptionType
		want       string
	}{
		{"AAPL", "150", time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), model.Call, "AAPL250117C00150000"},
		{"TSLA", "200.50", time.Date(2025, 3, 21, 0, 0, 0, 0, time.UTC), model.Put, "TSLA250321P00200500"},
		{"f", "8.5", time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC), model.Call, "F250620C00008500"},
		{" spy ", "445.999", time.Date(2025, 1, 17, 0, 0, 0, 0, time.UTC), model.Put, "SPY250117P00445999"},
	}

	for _, tc := range testCases {
		t.Run(tc.want, func(t *testing.T) {
			got := OCCSymbol(tc.ticker, dec(tc.strike), tc.expiration, tc.optionType)
			assert.Equal(t, tc.want, got)

			parsed, err := ParseOCCSymbol(got)
			require.NoError(t, err)
			assert.Equal(t, tc.optionType, parsed.OptionType)
			assert.True(t, parsed.ExpirationDate.Equal(tc.expiration))
			assertDecimal(t, tc.strike, parsed.StrikePrice)
		})
	}
}

func TestParseOCCSymbol_Invalid(t *testing.T) {
	for _, symbol := range []string{"", "AAPL", "AAPL250117X00150000", "TOOLONGX250117C00150000", "AAPL2501C00150000", "AAPL251317C00150000"} {
		t.Run(symbol, func(t *testing.T) {
			_, err := ParseOCCSymbol(symbol)
			require.ErrorIs(t, err, ErrInvalidOCCSymbol)
		})
	}
}
