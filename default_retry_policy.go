package connection

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// retryableMethods is the allow-list consulted by [DefaultRetryPolicy].
// POST is deliberately included: identity servers drop idle keep-alive
// connections, and a request sent on a stale connection fails before the
// server processes any of it.
var retryableMethods = map[string]struct{}{
	http.MethodGet:     {},
	http.MethodHead:    {},
	http.MethodOptions: {},
	http.MethodTrace:   {},
	http.MethodPut:     {},
	http.MethodDelete:  {},
	http.MethodPost:    {},
}

// DefaultRetryPolicy is the default retry condition used by [Manager]. It
// retries transport-level failures for the allow-listed methods only.
// Responses are never retried, whatever their status code; they belong to
// the caller. It does not retry on context cancellation, deadline
// exceeded, or DNS resolution failures.
//
// Supply a custom function via [WithRetryPolicy] to override this
// behaviour.
func DefaultRetryPolicy(r *resty.Response, err error) bool {
	if err == nil {
		return false
	}

	// Don't retry on context cancellation or deadline exceeded
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Don't retry on DNS resolution errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}

	// Without a request the method is unknown; decline rather than retry
	// something that may not be allow-listed.
	if r == nil || r.Request == nil {
		return false
	}
	_, ok := retryableMethods[r.Request.Method]
	return ok
}
