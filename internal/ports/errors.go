package ports

import (
	"context"
	"errors"
	"fmt"

	"cryptoPositionWatch/internal/domain"
)

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown         = errors.New("unknown error occurred")
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("resource not found")
	ErrContextCanceled = errors.New("operation canceled via context")
	ErrPassInProgress  = errors.New("reconciliation pass already in progress")

	// ErrInvalidTransition is re-exported so callers only need ports.
	ErrInvalidTransition = domain.ErrInvalidTransition

	// Exchange gateway errors. All of them wrap ErrGateway.
	ErrGateway              = errors.New("exchange gateway error")
	ErrGatewayTimeout       = fmt.Errorf("%w: call timed out", ErrGateway)
	ErrGatewayRateLimited   = fmt.Errorf("%w: API rate limit exceeded", ErrGateway)
	ErrGatewayUnavailable   = fmt.Errorf("%w: exchange API is unavailable", ErrGateway)
	ErrOrderNotFound        = fmt.Errorf("%w: order not found on the exchange", ErrGateway)
	ErrAuthenticationFailed = fmt.Errorf("%w: exchange authentication failed (check API keys)", ErrGateway)
	ErrInvalidRequest       = fmt.Errorf("%w: invalid request parameters or format", ErrGateway)

	// Storage errors
	ErrPersistence = errors.New("persistence failed")

	// Notification errors
	ErrNotify = errors.New("notification delivery failed")
)

// Error kinds used in logs and metric labels.
const (
	KindValidation  = "validation"
	KindGateway     = "gateway"
	KindPersistence = "persistence"
	KindNotify      = "notify"
	KindCanceled    = "canceled"
	KindUnknown     = "unknown"
)

// ErrorKind classifies err into one of the Kind* values.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation), errors.Is(err, domain.ErrInvalidTransition):
		return KindValidation
	case errors.Is(err, ErrGateway):
		return KindGateway
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrNotify):
		return KindNotify
	case errors.Is(err, ErrContextCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	default:
		return KindUnknown
	}
}
