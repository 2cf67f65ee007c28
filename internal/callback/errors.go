package callback

import (
	"errors"
	"fmt"

	"github.com/roach88/testworker/internal/domain"
)

// DeliveryError is returned when the collector answers with a status >= 300.
type DeliveryError struct {
	Event      domain.WorkerEvent
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver worker event %d: collector returned %d", e.Event.SequenceNumber, e.StatusCode)
}

// TransportError is returned when the HTTP request itself fails.
type TransportError struct {
	Event domain.WorkerEvent
	Err   error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("deliver worker event %d: %v", e.Event.SequenceNumber, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsDeliveryError reports whether err is a DeliveryError.
func IsDeliveryError(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}
