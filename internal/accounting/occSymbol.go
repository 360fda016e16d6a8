package accounting

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/KotFed0t/invest_ledger/internal/model"
	"github.com/shopspring/decimal"
)

// TICKER(1-6 letters) + YYMMDD + C|P + strike x1000 in 8 digits.
var reOCCSymbol = regexp.MustCompile(`^([A-Z]{1,6})(\d{6})([CP])(\d{8})$`)

var thousand = decimal.NewFromInt(1000)

type OCCContract struct {
	Underlying     string
	ExpirationDate time.Time
	OptionType     model.OptionType
	StrikePrice    decimal.Decimal
}

// OCCSymbol builds the OCC identifier, e.g. AAPL 150 call 2025-01-17 -> AAPL250117C00150000.
func OCCSymbol(ticker string, strike decimal.Decimal, expiration time.Time, optionType model.OptionType) string {
	typeChar := "P"
	if optionType == model.Call {
		typeChar = "C"
	}

	return fmt.Sprintf("%s%s%s%08d",
		strings.ToUpper(strings.TrimSpace(ticker)),
		expiration.Format("060102"),
		typeChar,
		strike.Mul(thousand).Round(0).IntPart(),
	)
}

func ParseOCCSymbol(symbol string) (OCCContract, error) {
	m := reOCCSymbol.FindStringSubmatch(strings.ToUpper(strings.TrimSpace(symbol)))
	if m == nil {
		return OCCContract{}, fmt.Errorf("%w: %q", ErrInvalidOCCSymbol, symbol)
	}

	exp, err := time.Parse("060102", m[2])
	if err != nil {
		return OCCContract{}, fmt.Errorf("%w: %q: %s", ErrInvalidOCCSymbol, symbol, err)
	}

	strikeMilli, err := strconv.ParseInt(m[4], 10, 64)
	if err != nil {
		return OCCContract{}, fmt.Errorf("%w: %q: %s", ErrInvalidOCCSymbol, symbol, err)
	}

	optionType := model.Put
	if m[3] == "C" {
		optionType = model.Call
	}

	return OCCContract{
		Underlying:     m[1],
		ExpirationDate: exp,
		OptionType:     optionType,
		StrikePrice:    decimal.NewFromInt(strikeMilli).Div(thousand),
	}, nil
}
