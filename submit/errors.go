package submit

import (
	"context"
	"errors"
	"io"
	"net"
	"net/url"
	"strings"
	"syscall"

	"github.com/inkmill/sigprep/provider"
)

// transportSymptoms are error-text fragments from collaborator libraries
// that do not surface typed network errors.
var transportSymptoms = []string{
	"socket hang up",
	"connection reset",
	"connection refused",
	"broken pipe",
	"EOF",
	"timeout",
	"no such host",
}

// IsTransportError reports whether err is a network-layer symptom with no
// HTTP response received. Such symptoms are indistinguishable from "the
// request never arrived" AND from "the server processed it and the reply
// was lost", so they must never be treated as definitive failure.
//
// An *provider.APIError is the opposite: the server answered, the answer
// was no. That is always an application-layer failure.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		// url.Error from http.Client.Do always means no usable response.
		return true
	}

	msg := err.Error()
	for _, symptom := range transportSymptoms {
		if strings.Contains(msg, symptom) {
			return true
		}
	}
	return false
}
