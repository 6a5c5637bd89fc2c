package push

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrMissingRecipient = errors.New("notification has no recipient")
	ErrSubscriptionGone = errors.New("push subscription gone")
	ErrNotConfigured    = errors.New("push credentials not configured")
)

// DeliveryError is a non-2xx answer from a push service.
type DeliveryError struct {
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service responded %d", e.StatusCode)
	}
	return fmt.Sprintf("push service responded %d: %s", e.StatusCode, e.Body)
}

// Gone reports whether the endpoint will never accept delivery again.
func (e *DeliveryError) Gone() bool {
	return e.StatusCode == http.StatusNotFound || e.StatusCode == http.StatusGone
}

func (e *DeliveryError) Is(target error) bool {
	return target == ErrSubscriptionGone && e.Gone()
}
