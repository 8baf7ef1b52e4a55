package connection

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net/http"
	neturl "net/url"
	"os"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// Manager holds the connection configuration for an identity server and
// dispatches raw HTTP requests against it. It owns one client for the
// blocking request methods and a second one for their asynchronous
// mirrors; both live for the lifetime of the Manager and are released by
// [Manager.Close].
//
// The header map is shared by every request through the Manager. Mutation
// is internally locked, and each request works on a snapshot taken when it
// is dispatched.
type Manager struct {
	options *Options

	mu       sync.RWMutex
	baseURL  string
	headers  map[string]string
	timeout  time.Duration
	verify   bool
	certFile string
	keyFile  string

	syncClient     *resty.Client
	asyncClient    *resty.Client
	syncTransport  *http.Transport
	asyncTransport *http.Transport
}

// New creates a Manager for the given base URL. The base URL must be
// absolute; relative request paths are resolved against it. Configuration
// is supplied as [Option] functions and defaults to a 60 second timeout,
// TLS verification enabled, and a single retry.
//
// New returns an error when the base URL does not parse, or when the CA
// bundle, client certificate, or proxy map cannot be loaded. The
// asynchronous client binds its TLS and proxy settings here, once; the
// synchronous client additionally honours later [Manager.SetVerify] and
// [Manager.SetCert] calls for connections it has not pooled yet.
func New(baseURL string, opts ...Option) (*Manager, error) {
	u, err := neturl.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if !u.IsAbs() {
		return nil, fmt.Errorf("base URL %q must be absolute", baseURL)
	}

	options := newOptions()
	for _, opt := range opts {
		opt(options)
	}

	m := &Manager{
		options:  options,
		baseURL:  baseURL,
		headers:  options.headers,
		timeout:  options.timeout,
		verify:   options.tlsVerify,
		certFile: options.certFile,
		keyFile:  options.keyFile,
	}

	tlsConfig, err := m.buildTLSConfig()
	if err != nil {
		return nil, err
	}

	proxy, err := proxySelector(options.proxies)
	if err != nil {
		return nil, err
	}

	m.syncTransport = newTransport(tlsConfig, proxy)
	m.syncClient = resty.New().
		SetTransport(m.syncTransport).
		SetTimeout(options.timeout).
		SetRetryCount(options.maxRetries).
		SetRetryWaitTime(options.retryWaitTime).
		SetRetryMaxWaitTime(options.retryMaxWaitTime).
		AddRetryCondition(options.retryPolicy)

	// The asynchronous client retries at most once regardless of the
	// configured maximum.
	m.asyncTransport = newTransport(tlsConfig.Clone(), proxy)
	m.asyncClient = resty.New().
		SetTransport(m.asyncTransport).
		SetTimeout(options.timeout).
		SetRetryCount(1).
		SetRetryWaitTime(options.retryWaitTime).
		SetRetryMaxWaitTime(options.retryMaxWaitTime).
		AddRetryCondition(options.retryPolicy)

	return m, nil
}

// Close releases the pooled connections held by both underlying clients.
// It is safe to call more than once, and a later call releases connections
// pooled by requests issued since the previous one.
func (m *Manager) Close() error {
	m.syncTransport.CloseIdleConnections()
	m.asyncTransport.CloseIdleConnections()
	return nil
}

// BaseURL returns the base URL requests are resolved against.
func (m *Manager) BaseURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseURL
}

// SetBaseURL replaces the base URL used for subsequent requests.
func (m *Manager) SetBaseURL(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseURL = baseURL
}

// Timeout returns the timeout applied to each request.
func (m *Manager) Timeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timeout
}

// SetTimeout replaces the request timeout on both underlying clients.
func (m *Manager) SetTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = timeout
	m.syncClient.SetTimeout(timeout)
	m.asyncClient.SetTimeout(timeout)
}

// Verify reports whether server certificates are verified.
func (m *Manager) Verify() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.verify
}

// SetVerify enables or disables server certificate verification on the
// synchronous client. Connections already pooled keep their original TLS
// state, and the asynchronous client is bound at construction time and is
// not affected.
func (m *Manager) SetVerify(verify bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = verify
	m.syncTransport.TLSClientConfig.InsecureSkipVerify = !verify
}

// Cert returns the configured client certificate and key file paths.
func (m *Manager) Cert() (certFile, keyFile string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.certFile, m.keyFile
}

// SetCert replaces the client certificate presented by the synchronous
// client. An empty keyFile means the certificate file carries the key as
// well. As with [Manager.SetVerify], pooled connections and the
// asynchronous client are not affected.
func (m *Manager) SetCert(certFile, keyFile string) error {
	cert, err := loadClientCertificate(certFile, keyFile)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.certFile = certFile
	m.keyFile = keyFile
	m.syncTransport.TLSClientConfig.Certificates = []tls.Certificate{cert}
	return nil
}

// Headers returns a copy of the shared header map.
func (m *Manager) Headers() map[string]string {
	return m.headerSnapshot()
}

// SetHeaders replaces the shared header map. A nil map stores an empty
// one; the map is never absent after construction.
func (m *Manager) SetHeaders(headers map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers = make(map[string]string, len(headers))
	for k, v := range headers {
		m.headers[k] = v
	}
}

// Header returns the value set for key, or the empty string when unset.
func (m *Manager) Header(key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headers[key]
}

// HasHeader reports whether key is present in the header map.
func (m *Manager) HasHeader(key string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.headers[key]
	return ok
}

// AddHeader sets a single header, overwriting any previous value.
func (m *Manager) AddHeader(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers[key] = value
}

// DelHeader removes a single header. Removing an absent key is a no-op.
func (m *Manager) DelHeader(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.headers, key)
}

// ClearHeaders removes every header.
func (m *Manager) ClearHeaders() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headers = map[string]string{}
}

func (m *Manager) headerSnapshot() map[string]string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snapshot := make(map[string]string, len(m.headers))
	for k, v := range m.headers {
		snapshot[k] = v
	}
	return snapshot
}

func (m *Manager) buildTLSConfig() (*tls.Config, error) {
	cfg := &tls.Config{InsecureSkipVerify: !m.verify}

	if m.options.caBundle != "" {
		pem, err := os.ReadFile(m.options.caBundle)
		if err != nil {
			return nil, fmt.Errorf("reading CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("CA bundle %s contains no usable certificates", m.options.caBundle)
		}
		cfg.RootCAs = pool
	}

	if m.certFile != "" {
		cert, err := loadClientCertificate(m.certFile, m.keyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

func loadClientCertificate(certFile, keyFile string) (tls.Certificate, error) {
	if keyFile == "" {
		keyFile = certFile
	}
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("loading client certificate: %w", err)
	}
	return cert, nil
}

func newTransport(tlsConfig *tls.Config, proxy func(*http.Request) (*neturl.URL, error)) *http.Transport {
	return &http.Transport{
		Proxy:               proxy,
		TLSClientConfig:     tlsConfig,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}
}

// proxySelector turns a scheme-to-proxy map into a transport proxy
// function. An empty map falls back to the process environment.
func proxySelector(proxies map[string]string) (func(*http.Request) (*neturl.URL, error), error) {
	if len(proxies) == 0 {
		return http.ProxyFromEnvironment, nil
	}

	parsed := make(map[string]*neturl.URL, len(proxies))
	for scheme, raw := range proxies {
		u, err := neturl.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL %q for scheme %s: %w", raw, scheme, err)
		}
		parsed[scheme] = u
	}

	return func(req *http.Request) (*neturl.URL, error) {
		return parsed[req.URL.Scheme], nil
	}, nil
}
