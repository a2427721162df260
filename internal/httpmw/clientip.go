package httpmw

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// unknownIP is used when the peer address cannot be parsed. All such requests
// share one rate limit bucket.
const unknownIP = "0.0.0.0"

type clientKey struct{}

type client struct {
	ip     string
	scheme string
}

// ClientIPOptions configures how far X-Forwarded-For is trusted.
type ClientIPOptions struct {
	// TrustedHops is the number of reverse proxies in front of the server.
	// 0 ignores X-Forwarded-For, 1 takes the rightmost entry (single ALB),
	// 2 the second from the right (CDN then ALB), and so on.
	TrustedHops int
}

// ClientIP resolves the client address with no trusted proxies.
func ClientIP(next http.Handler) http.Handler {
	return ClientIPWithOptions(ClientIPOptions{})(next)
}

// ClientIPWithOptions resolves the client address and scheme once per request and stores
// them for the rate limiter, logging and the pipeline. Forwarded headers are only honored
// when the peer is a private address and TrustedHops > 0; otherwise they are deleted so
// nothing downstream can read them by mistake.
func ClientIPWithOptions(opts ClientIPOptions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := resolveClient(r, opts.TrustedHops)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientKey{}, c)))
		})
	}
}

func resolveClient(r *http.Request, trustedHops int) client {
	peer, ok := peerAddr(r.RemoteAddr)
	c := client{ip: unknownIP, scheme: tlsScheme(r)}
	if !ok {
		stripForwarded(r)
		return c
	}
	c.ip = peer.String()

	if trustedHops <= 0 || !peer.IsPrivate() {
		stripForwarded(r)
		return c
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		i := len(hops) - trustedHops
		if i < 0 {
			// fewer hops than proxies, fail closed
			stripForwarded(r)
			return c
		}
		if a, err := netip.ParseAddr(strings.TrimSpace(hops[i])); err == nil {
			c.ip = a.Unmap().String()
		}
	}
	if p := forwardedProto(r.Header.Get("X-Forwarded-Proto")); p != "" {
		c.scheme = p
	}
	return c
}

func peerAddr(remote string) (netip.Addr, bool) {
	if remote == "" {
		return netip.Addr{}, false
	}
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	a, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

// forwardedProto returns the first X-Forwarded-Proto value if it is http or https.
func forwardedProto(v string) string {
	if i := strings.IndexByte(v, ','); i >= 0 {
		v = v[:i]
	}
	switch p := strings.ToLower(strings.TrimSpace(v)); p {
	case "http", "https":
		return p
	}
	return ""
}

func tlsScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func stripForwarded(r *http.Request) {
	r.Header.Del("X-Forwarded-For")
	r.Header.Del("X-Forwarded-Proto")
}

// ClientIPFromContext returns the resolved client address, or "" outside ClientIP.
func ClientIPFromContext(ctx context.Context) string {
	c, _ := ctx.Value(clientKey{}).(client)
	return c.ip
}

// SchemeFromContext returns "http" or "https" as resolved by ClientIP, or "".
func SchemeFromContext(ctx context.Context) string {
	c, _ := ctx.Value(clientKey{}).(client)
	return c.scheme
}

// WithClientIP stores ip as the resolved client address, keeping any resolved scheme.
func WithClientIP(ctx context.Context, ip string) context.Context {
	if ip == "" {
		return ctx
	}
	c, _ := ctx.Value(clientKey{}).(client)
	c.ip = ip
	return context.WithValue(ctx, clientKey{}, c)
}
