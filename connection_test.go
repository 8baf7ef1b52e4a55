package connection

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/auth/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	if m.BaseURL() != "http://keycloak.local/auth/" {
		t.Errorf("expected baseURL=http://keycloak.local/auth/, got %s", m.BaseURL())
	}

	if m.Timeout() != 60*time.Second {
		t.Errorf("expected timeout=60s, got %v", m.Timeout())
	}

	if !m.Verify() {
		t.Error("expected verify=true")
	}

	if m.Headers() == nil || len(m.Headers()) != 0 {
		t.Errorf("expected empty non-nil headers, got %v", m.Headers())
	}
}

func TestNew_InvalidBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		url  string
	}{
		{"unparsable", "http://keycloak.local/%zz"},
		{"relative", "keycloak.local/auth"},
		{"empty", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := New(tt.url); err == nil {
				t.Fatalf("expected error for base URL %q", tt.url)
			}
		})
	}
}

func TestNew_MissingClientCertificate(t *testing.T) {
	t.Parallel()

	_, err := New("http://keycloak.local/",
		WithClientCertificate("/no/such/cert.pem", "/no/such/key.pem"))

	if err == nil {
		t.Fatal("expected error for missing client certificate")
	}
}

func TestNew_BadCABundle(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := New("http://keycloak.local/", WithCABundle("/no/such/ca.pem"))
		if err == nil {
			t.Fatal("expected error for missing CA bundle")
		}
	})

	t.Run("no certificates", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "ca.pem")
		if err := os.WriteFile(path, []byte("not a certificate"), 0o600); err != nil {
			t.Fatal(err)
		}

		_, err := New("http://keycloak.local/", WithCABundle(path))
		if err == nil {
			t.Fatal("expected error for unusable CA bundle")
		}
	})
}

func TestNew_InvalidProxyURL(t *testing.T) {
	t.Parallel()

	_, err := New("http://keycloak.local/",
		WithProxies(map[string]string{"https": "http://proxy.local/%zz"}))

	if err == nil {
		t.Fatal("expected error for invalid proxy URL")
	}
}

func TestHeaders_RoundTrip(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	m.AddHeader("Authorization", "Bearer tok")

	if !m.HasHeader("Authorization") {
		t.Error("expected Authorization to exist")
	}

	if m.Header("Authorization") != "Bearer tok" {
		t.Errorf("expected Authorization='Bearer tok', got %s", m.Header("Authorization"))
	}

	m.AddHeader("Authorization", "Bearer other")

	if m.Header("Authorization") != "Bearer other" {
		t.Errorf("expected overwrite to 'Bearer other', got %s", m.Header("Authorization"))
	}

	m.DelHeader("Authorization")

	if m.HasHeader("Authorization") {
		t.Error("expected Authorization to be removed")
	}

	// Removing again is a no-op
	m.DelHeader("Authorization")
}

func TestClearHeaders(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/", WithHeader("X-A", "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	m.AddHeader("X-B", "2")
	m.ClearHeaders()

	if len(m.Headers()) != 0 {
		t.Errorf("expected empty headers after clear, got %v", m.Headers())
	}
}

func TestSetHeaders(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	m.SetHeaders(map[string]string{"Content-Type": "application/json"})

	if m.Header("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type=application/json, got %s", m.Header("Content-Type"))
	}

	m.SetHeaders(nil)

	if m.Headers() == nil || len(m.Headers()) != 0 {
		t.Errorf("expected empty non-nil headers after SetHeaders(nil), got %v", m.Headers())
	}
}

func TestHeaders_ReturnsCopy(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/", WithHeader("X-A", "1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	snapshot := m.Headers()
	snapshot["X-A"] = "changed"

	if m.Header("X-A") != "1" {
		t.Error("mutating the returned map must not affect the Manager")
	}
}

func TestAccessors(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/auth/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer m.Close()

	m.SetBaseURL("http://other.local/auth/")
	if m.BaseURL() != "http://other.local/auth/" {
		t.Errorf("expected baseURL=http://other.local/auth/, got %s", m.BaseURL())
	}

	m.SetTimeout(5 * time.Second)
	if m.Timeout() != 5*time.Second {
		t.Errorf("expected timeout=5s, got %v", m.Timeout())
	}

	m.SetVerify(false)
	if m.Verify() {
		t.Error("expected verify=false")
	}
	if !m.syncTransport.TLSClientConfig.InsecureSkipVerify {
		t.Error("expected sync transport to skip verification")
	}
	if m.asyncTransport.TLSClientConfig.InsecureSkipVerify {
		t.Error("async transport TLS state is bound at construction")
	}
}

func TestSetCert(t *testing.T) {
	t.Parallel()

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		m, err := New("http://keycloak.local/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer m.Close()

		if err := m.SetCert("/no/such/cert.pem", ""); err == nil {
			t.Fatal("expected error for missing certificate")
		}
	})

	t.Run("combined cert and key file", func(t *testing.T) {
		t.Parallel()

		path := writeSelfSignedCert(t)

		m, err := New("http://keycloak.local/")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer m.Close()

		if err := m.SetCert(path, ""); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		certFile, keyFile := m.Cert()
		if certFile != path || keyFile != "" {
			t.Errorf("expected cert=%s key=\"\", got %s/%s", path, certFile, keyFile)
		}

		if len(m.syncTransport.TLSClientConfig.Certificates) != 1 {
			t.Error("expected client certificate on the sync transport")
		}
	})
}

func TestClose_Twice(t *testing.T) {
	t.Parallel()

	m, err := New("http://keycloak.local/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("unexpected error on first close: %v", err)
	}

	if err := m.Close(); err != nil {
		t.Errorf("unexpected error on second close: %v", err)
	}
}

func TestClose_ReleasesPooledConnections(t *testing.T) {
	t.Parallel()

	server, openConns := newConnTrackingServer(t)

	m, err := New(server.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Get(context.Background(), "realms/master", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if openConns() == 0 {
		t.Fatal("expected the request to leave a pooled connection")
	}

	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForNoOpenConns(t, openConns)
}

func TestClose_AfterLateRequest(t *testing.T) {
	t.Parallel()

	server, openConns := newConnTrackingServer(t)

	m, err := New(server.URL + "/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := m.Get(context.Background(), "realms/master", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A request after Close pools a fresh connection; a later Close must
	// release that one too.
	if _, err := m.Get(context.Background(), "realms/master", nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForNoOpenConns(t, openConns)
}

// newConnTrackingServer starts an httptest server that counts its live
// client connections via ConnState, and returns it with a counter func.
func newConnTrackingServer(t *testing.T) (*httptest.Server, func() int) {
	t.Helper()

	var mu sync.Mutex
	open := map[net.Conn]struct{}{}

	server := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	server.Config.ConnState = func(c net.Conn, state http.ConnState) {
		mu.Lock()
		defer mu.Unlock()
		switch state {
		case http.StateNew:
			open[c] = struct{}{}
		case http.StateClosed, http.StateHijacked:
			delete(open, c)
		}
	}
	server.Start()
	t.Cleanup(server.Close)

	return server, func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(open)
	}
}

// waitForNoOpenConns polls until the server has observed every connection
// closing; the close is asynchronous on the server side.
func waitForNoOpenConns(t *testing.T, openConns func() int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for openConns() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d connection(s) still open after Close", openConns())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// writeSelfSignedCert writes a PEM file holding both a throwaway
// certificate and its key, and returns its path.
func writeSelfSignedCert(t *testing.T) string {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "test-client"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	var out []byte
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	out = append(out, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})...)

	path := filepath.Join(t.TempDir(), "client.pem")
	if err := os.WriteFile(path, out, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}
