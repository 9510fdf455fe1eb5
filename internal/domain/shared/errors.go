package shared

import (
	"errors"

	"github.com/samber/oops"
)

// Domain error codes
const (
	ErrCodeInvalidInput = 1001
	ErrCodeNotFound     = 1002

	// Location errors (2000-2999)
	ErrCodeLocationUnavailable = 2001

	// Playback errors (3000-3999)
	ErrCodePlaybackFailure = 3001
	ErrCodeEngineReleased  = 3002

	// Route data errors (4000-4999)
	ErrCodeEmptyRouteData = 4001

	// Session errors (5000-5999)
	ErrCodeSessionNotFound = 5001
	ErrCodeSessionClosed   = 5002
)

// Sentinels wrapped by every domain error, so callers can match with errors.Is
var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("not found")
	ErrLocationUnavailable = errors.New("location unavailable")
	ErrPlaybackFailure     = errors.New("playback failure")
	ErrEngineReleased      = errors.New("audio engine released")
	ErrEmptyRouteData      = errors.New("empty route data")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionClosed       = errors.New("session closed")
)

var sentinels = map[int]error{
	ErrCodeInvalidInput:        ErrInvalidInput,
	ErrCodeNotFound:            ErrNotFound,
	ErrCodeLocationUnavailable: ErrLocationUnavailable,
	ErrCodePlaybackFailure:     ErrPlaybackFailure,
	ErrCodeEngineReleased:      ErrEngineReleased,
	ErrCodeEmptyRouteData:      ErrEmptyRouteData,
	ErrCodeSessionNotFound:     ErrSessionNotFound,
	ErrCodeSessionClosed:       ErrSessionClosed,
}

// NewDomainError creates a new domain error using oops
func NewDomainError(code int, message string) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Wrapf(sentinelFor(code), "%s", message)
}

// NewDomainErrorf creates a new domain error with formatted message
func NewDomainErrorf(code int, format string, args ...interface{}) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Wrapf(sentinelFor(code), format, args...)
}

// WrapDomainError wraps an existing error with domain context.
// The result matches both err and the code's sentinel.
func WrapDomainError(err error, code int, message string) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		With("cause", err.Error()).
		Wrapf(errors.Join(sentinelFor(code), err), "%s", message)
}

// CodeOf returns the domain error code carried by err, or 0
func CodeOf(err error) int {
	if err == nil {
		return 0
	}
	for code, sentinel := range sentinels {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return 0
}

func sentinelFor(code int) error {
	if s, ok := sentinels[code]; ok {
		return s
	}
	return errors.New("unknown domain error")
}

// codeToString converts int error code to string
func codeToString(code int) string {
	switch code {
	case ErrCodeInvalidInput:
		return "INVALID_INPUT"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeLocationUnavailable:
		return "LOCATION_UNAVAILABLE"
	case ErrCodePlaybackFailure:
		return "PLAYBACK_FAILURE"
	case ErrCodeEngineReleased:
		return "ENGINE_RELEASED"
	case ErrCodeEmptyRouteData:
		return "EMPTY_ROUTE_DATA"
	case ErrCodeSessionNotFound:
		return "SESSION_NOT_FOUND"
	case ErrCodeSessionClosed:
		return "SESSION_CLOSED"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Common domain error builders
func ErrInvalidInputf(format string, args ...interface{}) error {
	return NewDomainErrorf(ErrCodeInvalidInput, format, args...)
}

func ErrNotFoundf(resource string) error {
	return NewDomainErrorf(ErrCodeNotFound, "%s not found", resource)
}

func ErrSessionNotFoundf(owner string) error {
	return NewDomainErrorf(ErrCodeSessionNotFound, "no guide session for %s", owner)
}

func ErrSessionClosedf(sessionID string) error {
	return NewDomainErrorf(ErrCodeSessionClosed, "guide session %s is closed", sessionID)
}
