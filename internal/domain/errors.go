package domain

import (
	"errors"
	"fmt"
)

// Error taxonomy of the synchronization engine.
var (
	// ErrTransientVenue is a timeout or network failure; the next cycle retries.
	ErrTransientVenue = errors.New("transient venue error")
	// ErrAccountUnhealthy skips the account for the tick.
	ErrAccountUnhealthy = errors.New("account unhealthy")
	// ErrCancelRejected halts the replacement of one id.
	ErrCancelRejected = errors.New("cancel rejected")
	// ErrPlaceRejected leaves one position unreplaced.
	ErrPlaceRejected = errors.New("place rejected")
	// ErrStatusCheckFailed is swallowed; the order is treated as pending.
	ErrStatusCheckFailed = errors.New("status check failed")
)

// VenueError carries the venue's own code for a failed call.
type VenueError struct {
	Op        string // status | quote | cancel | place
	Code      string
	Message   string
	Transient bool
}

func (e *VenueError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("venue %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("venue %s: %s (%s)", e.Op, e.Message, e.Code)
}

// Is maps the error onto the taxonomy sentinels.
func (e *VenueError) Is(target error) bool {
	switch target {
	case ErrTransientVenue:
		return e.Transient
	case ErrStatusCheckFailed:
		return e.Op == "status"
	case ErrCancelRejected:
		return e.Op == "cancel" && !e.Transient
	case ErrPlaceRejected:
		return e.Op == "place" && !e.Transient
	}
	return false
}

// ErrorCode extracts a venue code from err, or a generic code for its class.
func ErrorCode(err error) string {
	var ve *VenueError
	if errors.As(err, &ve) && ve.Code != "" {
		return ve.Code
	}
	switch {
	case errors.Is(err, ErrTransientVenue):
		return "transient"
	case errors.Is(err, ErrAccountUnhealthy):
		return "account_unhealthy"
	}
	return "error"
}
