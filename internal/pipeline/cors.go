package pipeline

import (
	"net/http"
	"slices"
	"strings"
)

const (
	corsAllowMethods = "GET, PUT, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Origin, X-Requested-With, Content-Type, Accept, Authorization, X-XSRF-TOKEN, CSRF-Token, X-CSRF-Token"
)

// Cors negotiates cross-origin access. With no AllowedOrigins every declared origin is echoed
// back with credentials allowed; with a list, only listed origins are echoed.
type Cors struct {
	AllowedOrigins []string
}

func (Cors) Name() string { return "cors" }

func (s Cors) Run(rc *RequestContext) error {
	h := rc.Header()
	origin := rc.Request.Header.Get("Origin")
	rc.Origin = origin

	if origin != "" && s.allowed(origin) {
		h.Set("Access-Control-Allow-Origin", origin)
		addVary(h, "Origin")
	}
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	return nil
}

func (s Cors) allowed(origin string) bool {
	if len(s.AllowedOrigins) == 0 {
		return true
	}
	return slices.ContainsFunc(s.AllowedOrigins, func(o string) bool {
		return strings.EqualFold(o, origin)
	})
}

func addVary(h http.Header, v string) {
	for _, cur := range h.Values("Vary") {
		for _, part := range strings.Split(cur, ",") {
			if strings.EqualFold(strings.TrimSpace(part), v) {
				return
			}
		}
	}
	h.Add("Vary", v)
}
