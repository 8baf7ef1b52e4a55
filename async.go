package connection

import (
	"context"
	"net/http"

	"github.com/go-resty/resty/v2"
)

// Result is the outcome of an asynchronous request. Exactly one of
// Response and Err is set.
type Result struct {
	Response *resty.Response
	Err      error
}

// GetAsync submits a GET request on the asynchronous client and returns
// immediately. The returned channel is buffered and receives exactly one
// [Result]; abandoning it does not leak the goroutine. Cancellation is
// driven by ctx.
func (m *Manager) GetAsync(ctx context.Context, path string, params QueryParams) <-chan Result {
	return m.dispatchAsync(ctx, http.MethodGet, path, nil, params)
}

// PostAsync submits a POST request on the asynchronous client. See
// [Manager.GetAsync] for the channel contract.
func (m *Manager) PostAsync(ctx context.Context, path string, body any, params QueryParams) <-chan Result {
	return m.dispatchAsync(ctx, http.MethodPost, path, body, params)
}

// PutAsync submits a PUT request on the asynchronous client. See
// [Manager.GetAsync] for the channel contract.
func (m *Manager) PutAsync(ctx context.Context, path string, body any, params QueryParams) <-chan Result {
	return m.dispatchAsync(ctx, http.MethodPut, path, body, params)
}

// DeleteAsync submits a DELETE request on the asynchronous client. The
// body is optional; nil sends no body. See [Manager.GetAsync] for the
// channel contract.
func (m *Manager) DeleteAsync(ctx context.Context, path string, body any, params QueryParams) <-chan Result {
	return m.dispatchAsync(ctx, http.MethodDelete, path, body, params)
}

func (m *Manager) dispatchAsync(ctx context.Context, method, path string, body any, params QueryParams) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		resp, err := m.doRequest(ctx, m.asyncClient, method, path, body, params)
		ch <- Result{Response: resp, Err: err}
	}()
	return ch
}
