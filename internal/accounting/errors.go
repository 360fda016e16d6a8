package accounting

import "errors"

var (
	ErrInsufficientShares   = errors.New("not enough shares in open lots")
	ErrUnknownSourceLot     = errors.New("source lot is not a lot of this position")
	ErrInvalidTransaction   = errors.New("invalid transaction")
	ErrNoOpenPosition       = errors.New("no open option position")
	ErrInvalidClosingAction = errors.New("closing action does not match position direction")
	ErrOverClose            = errors.New("closing more contracts than open")
	ErrMixedDirection       = errors.New("opening action conflicts with open position direction")
	ErrMissingPremium       = errors.New("premium is required for this action")
	ErrMissingSourceLot     = errors.New("source lot is required to deliver shares")
	ErrNotDeliveryAction    = errors.New("action does not deliver the underlying")
	ErrInvalidOCCSymbol     = errors.New("invalid OCC option symbol")
)
