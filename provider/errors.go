package provider

import (
	"errors"
	"fmt"
)

// APIError is a definitive application-layer rejection: the provider
// received the request and answered with an error status. It is never a
// transport symptom, so callers may treat it as final without retrying.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("provider: %d: %s", e.Status, e.Message)
}

func asAPIError(err error, target **APIError) bool {
	return errors.As(err, target)
}
