package connection

// Error is the single error kind returned for transport-level failures:
// refused connections, DNS failures, TLS handshake errors, timeouts. HTTP
// responses with error status codes are not failures at this layer and are
// returned to the caller as ordinary responses.
//
// Error wraps the underlying failure, so errors.Is and errors.As reach
// through to it.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	return "connection error: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}
