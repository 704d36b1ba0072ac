package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/stage-ticketing/internal/model"
)

// Sentinel errors.  Every expected failure of the ticketing core matches
// exactly one of these through errors.Is; the typed errors below carry the
// details.
var (
	ErrValidation      = errors.New("validation failed")
	ErrSoldOut         = errors.New("sold out")
	ErrCodeNotFound    = errors.New("exchange code not found")
	ErrCodeAlreadyUsed = errors.New("exchange code already used")
	ErrInvalidState    = errors.New("invalid state")
	ErrInvalidOrder    = fmt.Errorf("%w: order is not paid", ErrInvalidState)
	ErrNotOnSale       = fmt.Errorf("%w: session is not on sale", ErrInvalidState)
	ErrNotFound        = errors.New("not found")
	ErrAlreadyUsed     = errors.New("ticket already used")
	ErrLedgerUnderflow = errors.New("inventory release exceeds sold count")

	ErrCodeSpaceExhausted = errors.New("could not generate a unique exchange code")
)

// ValidationError reports bad input detected before any state is touched.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// SoldOutError names the first tier that could not satisfy a reservation.
type SoldOutError struct {
	SessionID uint64
	Tier      model.Tier
	Requested int
	Available int
}

func (e *SoldOutError) Error() string {
	return fmt.Sprintf("sold out: session %d tier %s requested %d, available %d", e.SessionID, e.Tier, e.Requested, e.Available)
}

func (e *SoldOutError) Is(target error) bool { return target == ErrSoldOut }

// CodeError ties an exchange code failure to the offending code.
type CodeError struct {
	Code string
	Err  error // ErrCodeNotFound or ErrCodeAlreadyUsed
}

func (e *CodeError) Error() string { return fmt.Sprintf("%v: %s", e.Err, e.Code) }

func (e *CodeError) Unwrap() error { return e.Err }

// StateError reports an operation attempted from the wrong lifecycle state.
type StateError struct {
	OrderID uint64
	Status  model.OrderStatus
	Op      string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s order %d in status %s", e.Op, e.OrderID, e.Status)
}

func (e *StateError) Is(target error) bool { return target == ErrInvalidState }

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	Key    string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s %s not found", e.Entity, e.Key) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// AlreadyUsedError is returned when a ticket is scanned again.  UsedAt is
// the time of the first check-in when known.
type AlreadyUsedError struct {
	Code   string
	UsedAt *time.Time
}

func (e *AlreadyUsedError) Error() string { return "ticket already used: " + e.Code }

func (e *AlreadyUsedError) Is(target error) bool { return target == ErrAlreadyUsed }

// IsExpected reports whether err is one of the recoverable, caller-facing
// conditions rather than an internal failure.
func IsExpected(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrCodeNotFound) ||
		errors.Is(err, ErrCodeAlreadyUsed) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrAlreadyUsed)
}
