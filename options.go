package connection

import (
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

type Option func(*Options)

type Options struct {
	headers          map[string]string
	timeout          time.Duration
	tlsVerify        bool
	caBundle         string
	certFile         string
	keyFile          string
	proxies          map[string]string
	maxRetries       int
	retryWaitTime    time.Duration
	retryMaxWaitTime time.Duration
	retryPolicy      func(*resty.Response, error) bool
	requestLogger    RequestLogger
}

func newOptions() *Options {
	return &Options{
		headers:          map[string]string{},
		timeout:          60 * time.Second,
		tlsVerify:        true,
		maxRetries:       1,
		retryWaitTime:    500 * time.Millisecond,
		retryMaxWaitTime: 3 * time.Second,
		retryPolicy:      DefaultRetryPolicy,
		requestLogger:    &NoopLogger{},
	}
}

// WithHeaders sets the initial shared header map. Entries are copied; a
// nil map leaves the default empty map in place.
func WithHeaders(headers map[string]string) Option {
	return func(o *Options) {
		for k, v := range headers {
			o.headers[k] = v
		}
	}
}

// WithHeader sets a single initial header. Empty keys are ignored.
func WithHeader(header, value string) Option {
	return func(o *Options) {
		header = strings.TrimSpace(header)
		if header == "" {
			return
		}
		o.headers[header] = value
	}
}

// WithTimeout sets the per-request timeout. Non-positive values are
// ignored and the 60 second default is retained.
func WithTimeout(timeout time.Duration) Option {
	return func(o *Options) {
		if timeout > 0 {
			o.timeout = timeout
		}
	}
}

// WithTLSVerify enables or disables server certificate verification.
func WithTLSVerify(verify bool) Option {
	return func(o *Options) {
		o.tlsVerify = verify
	}
}

// WithCABundle sets the path of a PEM bundle used as the certificate
// authority pool instead of the system pool.
func WithCABundle(path string) Option {
	return func(o *Options) {
		o.caBundle = path
	}
}

// WithClientCertificate sets the client certificate presented to the
// server. An empty keyFile means certFile carries the key as well.
func WithClientCertificate(certFile, keyFile string) Option {
	return func(o *Options) {
		if certFile == "" {
			return
		}
		o.certFile = certFile
		o.keyFile = keyFile
	}
}

// WithProxies sets the proxy URL to use per URL scheme, e.g.
// {"https": "http://proxy.internal:3128"}. Schemes not in the map connect
// directly.
func WithProxies(proxies map[string]string) Option {
	return func(o *Options) {
		o.proxies = proxies
	}
}

// WithMaxRetries sets how many times the synchronous client retries a
// failed request. Negative values are ignored; zero disables retries. The
// asynchronous client always retries at most once, regardless of this
// setting.
func WithMaxRetries(count int) Option {
	return func(o *Options) {
		if count >= 0 {
			o.maxRetries = count
		}
	}
}

func WithRetryWaitTime(waitTime time.Duration) Option {
	return func(o *Options) {
		if waitTime >= 100*time.Millisecond {
			o.retryWaitTime = waitTime
		}
	}
}

func WithRetryMaxWaitTime(maxWaitTime time.Duration) Option {
	return func(o *Options) {
		if maxWaitTime >= 100*time.Millisecond {
			o.retryMaxWaitTime = maxWaitTime
		}
	}
}

func WithRetryPolicy(policy func(*resty.Response, error) bool) Option {
	return func(o *Options) {
		if policy != nil {
			o.retryPolicy = policy
		}
	}
}

func WithRequestLogger(logger RequestLogger) Option {
	return func(o *Options) {
		if logger != nil {
			o.requestLogger = logger
		}
	}
}
