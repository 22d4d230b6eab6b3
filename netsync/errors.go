package netsync

import (
	"errors"
	"fmt"
)

var (
	ErrUnableToConnect  = errors.New("unable to connect: no data received from host")
	ErrReadTimeout      = errors.New("read timed out")
	ErrHeartbeatTimeout = errors.New("heartbeat timed out")
)

// TerminationError ends a sync link. The outer retry loop inspects Reason
// with errors.Is and rebuilds the pipeline.
type TerminationError struct {
	Reason error
}

func (e *TerminationError) Error() string {
	return fmt.Sprintf("sync link terminated: %v", e.Reason)
}

func (e *TerminationError) Unwrap() error {
	return e.Reason
}

func terminate(reason error) error {
	var term *TerminationError
	if errors.As(reason, &term) {
		return reason
	}
	return &TerminationError{Reason: reason}
}
