package domain

import "errors"

// Position source failures.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrTimeout             = errors.New("timed out waiting for a location fix")
)

// Registry and ranking failures.
var (
	ErrInvalidSpot = errors.New("invalid parking spot")
	ErrUnknownSpot = errors.New("unknown parking spot")
	ErrOutOfRange  = errors.New("availability out of range")
	ErrNoPosition  = errors.New("no user position")
)

// Engine lifecycle failures.
var (
	ErrNotTracking  = errors.New("engine is not tracking")
	ErrEngineClosed = errors.New("engine closed")
)

// Failure is the error descriptor published to presentation.
type Failure struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var failureCodes = []struct {
	err  error
	code string
}{
	{ErrPermissionDenied, "permission_denied"},
	{ErrPositionUnavailable, "position_unavailable"},
	{ErrTimeout, "timeout"},
	{ErrInvalidSpot, "invalid_spot"},
	{ErrUnknownSpot, "unknown_spot"},
	{ErrOutOfRange, "out_of_range"},
	{ErrNoPosition, "no_position"},
	{ErrNotTracking, "not_tracking"},
	{ErrEngineClosed, "engine_closed"},
}

// ErrorCode returns the stable code for err, or "internal" if it is not a domain error.
func ErrorCode(err error) string {
	for _, fc := range failureCodes {
		if errors.Is(err, fc.err) {
			return fc.code
		}
	}
	return "internal"
}

// FailureFrom builds the published descriptor for err. Nil in, nil out.
func FailureFrom(err error) *Failure {
	if err == nil {
		return nil
	}
	return &Failure{Code: ErrorCode(err), Message: err.Error()}
}

// PositionErrorFromCode maps a device failure code (as reported by the browser
// geolocation API) to a position source error.
func PositionErrorFromCode(code string) error {
	switch code {
	case "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrTimeout
	default:
		return ErrPositionUnavailable
	}
}
