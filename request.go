package connection

import (
	"context"
	"fmt"
	"net/http"
	neturl "net/url"

	"github.com/go-resty/resty/v2"
)

// QueryParams carries free-form query parameters for a request. Entries
// with a nil value are dropped before the query string is built, so an
// optional parameter can be passed unconditionally; every other value is
// stringified with fmt.Sprint.
type QueryParams map[string]any

// Get submits a GET request to path, resolved against the base URL.
// The response is returned raw, whatever its status code.
func (m *Manager) Get(ctx context.Context, path string, params QueryParams) (*resty.Response, error) {
	return m.doRequest(ctx, m.syncClient, http.MethodGet, path, nil, params)
}

// Post submits a POST request with the given body to path.
func (m *Manager) Post(ctx context.Context, path string, body any, params QueryParams) (*resty.Response, error) {
	return m.doRequest(ctx, m.syncClient, http.MethodPost, path, body, params)
}

// Put submits a PUT request with the given body to path.
func (m *Manager) Put(ctx context.Context, path string, body any, params QueryParams) (*resty.Response, error) {
	return m.doRequest(ctx, m.syncClient, http.MethodPut, path, body, params)
}

// Delete submits a DELETE request to path. The body is optional; nil sends
// no body at all.
func (m *Manager) Delete(ctx context.Context, path string, body any, params QueryParams) (*resty.Response, error) {
	return m.doRequest(ctx, m.syncClient, http.MethodDelete, path, body, params)
}

// doRequest is the single dispatch path shared by all eight request
// methods; the blocking methods and the asynchronous mirrors differ only
// in which client carries the request.
func (m *Manager) doRequest(
	ctx context.Context,
	client *resty.Client,
	method, path string,
	body any,
	params QueryParams,
) (*resty.Response, error) {
	target, err := joinURL(m.BaseURL(), path)
	if err != nil {
		m.options.requestLogger.Errorf("%s %s: %v", method, path, err)
		return nil, &Error{Err: err}
	}

	req := client.R().
		SetContext(ctx).
		SetHeaders(m.headerSnapshot()).
		SetQueryParams(filterQueryParams(params))
	if body != nil {
		req.SetBody(body)
	}

	m.options.requestLogger.Debugf("%s %s", method, target)

	resp, err := req.Execute(method, target)
	if err != nil {
		m.options.requestLogger.Errorf("%s %s: %v", method, target, err)
		return nil, &Error{Err: err}
	}
	return resp, nil
}

// joinURL resolves path against base with RFC 3986 reference resolution:
// an absolute path replaces the base path, a relative path is resolved
// against it.
func joinURL(base, path string) (string, error) {
	b, err := neturl.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base URL %q: %w", base, err)
	}
	p, err := neturl.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	return b.ResolveReference(p).String(), nil
}

// filterQueryParams drops nil-valued entries and stringifies the rest, so
// both request paths serialize the same query string for the same input.
func filterQueryParams(params QueryParams) map[string]string {
	filtered := make(map[string]string, len(params))
	for k, v := range params {
		if v == nil {
			continue
		}
		filtered[k] = fmt.Sprint(v)
	}
	return filtered
}
