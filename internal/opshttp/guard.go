package opshttp

import (
	"net"
	"net/http"
	"net/netip"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
)

// requireInternalPeer only admits loopback, private and link-local peers that did not
// come through a proxy. The admin listener exposes pprof and metrics; a forwarded
// header here means a load balancer is pointed at the wrong port.
func requireInternalPeer(L log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if reason := rejectReason(r); reason != "" {
				L.Warn(r.Context(), "ops request rejected", "reason", reason, "remote_addr", r.RemoteAddr)
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rejectReason(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return "unparseable remote addr"
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return "invalid remote ip"
	}
	ip = ip.Unmap()
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsLinkLocalUnicast() {
		return "public network"
	}
	if r.Header.Get("X-Forwarded-For") != "" || r.Header.Get("Forwarded") != "" {
		return "proxied request"
	}
	return ""
}
