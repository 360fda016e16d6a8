package service

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the ledger service matches exactly one of them with errors.Is.
var (
	ErrValidation          = errors.New("validation error")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrNotFound            = errors.New("error not found")
	ErrIntegrityFailure    = errors.New("integrity failure")
)

// ConstraintCode is a caller-facing constraint violation code.
// It matches both itself and ErrConstraintViolation.
type ConstraintCode string

func (c ConstraintCode) Error() string {
	return string(c)
}

func (c ConstraintCode) Is(target error) bool {
	return target == ErrConstraintViolation
}

const (
	ErrHasDependentSells    ConstraintCode = "HasDependentSells"
	ErrOverClose            ConstraintCode = "OverClose"
	ErrInvalidClosingAction ConstraintCode = "InvalidClosingAction"
	ErrInsufficientShares   ConstraintCode = "InsufficientShares"
	ErrMissingSourceLot     ConstraintCode = "MissingSourceLot"
	ErrNoOpenPosition       ConstraintCode = "NoOpenPosition"
	ErrMixedDirection       ConstraintCode = "MixedDirection"
	ErrUnknownSourceLot     ConstraintCode = "UnknownSourceLot"
	ErrLinkedTransaction    ConstraintCode = "LinkedTransaction"
)

// Validationf builds an ErrValidation with a message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// Violation attaches details to a constraint code.
func Violation(code ConstraintCode, cause error) error {
	if cause == nil {
		return code
	}
	return fmt.Errorf("%w: %s", code, cause.Error())
}

// Code extracts the constraint code of err, if any.
func Code(err error) (ConstraintCode, bool) {
	var code ConstraintCode
	if errors.As(err, &code) {
		return code, true
	}
	return "", false
}
