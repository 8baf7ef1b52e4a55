// Package connection provides the transport layer of the Keycloak client.
//
// A [Manager] wraps two [github.com/go-resty/resty/v2] clients, one for
// blocking calls and one backing the asynchronous mirrors, configured from
// a single base URL with shared headers, timeout, TLS settings, proxies and
// a narrow retry policy. Every higher-level API call (user management,
// realm configuration, token endpoints) funnels through it.
//
// # Basic Usage
//
//	m, err := connection.New("https://keycloak.example.com/auth/",
//	    connection.WithTimeout(30*time.Second),
//	    connection.WithMaxRetries(2),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer m.Close()
//
//	resp, err := m.Get(ctx, "admin/realms", nil)
//
// Responses are returned raw, whatever their status code; the Manager never
// interprets status codes or bodies. Transport failures (refused
// connection, DNS, TLS, timeout) are returned as a single [*Error] kind.
//
// # Configuration
//
// All configuration is supplied as [Option] functions passed to [New].
// Invalid values are silently ignored and the default is retained. The base
// URL and any certificate material are validated by [New] itself.
//
// # Retry Behaviour
//
// [DefaultRetryPolicy] retries transport errors only; a response is always
// handed back to the caller, whatever its status. Context cancellation,
// deadline exceeded, and DNS resolution errors are never retried, and only
// an allow-listed method set is eligible. POST is deliberately on that
// list: identity servers tend to drop idle keep-alive connections, and the
// first request after reuse fails before the server reads any of it.
// Supply a custom function via [WithRetryPolicy] to override this
// behaviour. The synchronous client honours [WithMaxRetries]; the
// asynchronous client always retries at most once.
//
// # Authentication
//
// The Manager never injects credentials. Authorization and Content-Type
// headers are owned by the caller through [Manager.AddHeader] and friends;
// token acquisition lives in the layers above this package.
//
// # Asynchronous Calls
//
// [Manager.GetAsync] and its siblings dispatch the request on a goroutine
// and immediately return a buffered channel carrying a single [Result].
// Cancellation is the caller's context; the channel always receives exactly
// one value. Call [Manager.Close] when done with the Manager to release the
// pooled connections of both clients.
//
// # Logging
//
// Implement [RequestLogger] and supply it via [WithRequestLogger] to
// integrate with your logging library, or use [NewZerologLogger] for a
// ready-made zerolog binding. The default [NoopLogger] discards all log
// output.
package connection
