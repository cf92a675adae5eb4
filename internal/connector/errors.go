package connector

import (
	"fmt"
)

// Kind classifies a connect/disconnect failure.
type Kind string

const (
	KindInvalidParams       Kind = "invalid_params"
	KindCarrierAPI          Kind = "carrier_api"
	KindPhoneNumberNotFound Kind = "phone_number_not_found"
	KindMediaPlatformAPI    Kind = "media_platform_api"
	KindPersistence         Kind = "persistence"
	KindTimeout             Kind = "timeout"
	KindAccountConflict     Kind = "account_conflict"
)

// Kind sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrInvalidParams       = &Error{Kind: KindInvalidParams}
	ErrCarrierAPI          = &Error{Kind: KindCarrierAPI}
	ErrPhoneNumberNotFound = &Error{Kind: KindPhoneNumberNotFound}
	ErrMediaPlatformAPI    = &Error{Kind: KindMediaPlatformAPI}
	ErrPersistence         = &Error{Kind: KindPersistence}
	ErrTimeout             = &Error{Kind: KindTimeout}
	ErrAccountConflict     = &Error{Kind: KindAccountConflict}
)

// Error is the single error type returned by the Coordinator.
type Error struct {
	Kind Kind
	// Step is the workflow step that failed; empty for parameter errors.
	Step Step
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Step == "" && e.Err == nil:
		return "connector: " + string(e.Kind)
	case e.Step == "":
		return fmt.Sprintf("connector: %s: %v", e.Kind, e.Err)
	case e.Err == nil:
		return fmt.Sprintf("connector: %s at %s", e.Kind, e.Step)
	default:
		return fmt.Sprintf("connector: %s at %s: %v", e.Kind, e.Step, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
