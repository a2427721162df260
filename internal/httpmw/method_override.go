package httpmw

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// MethodOverrideHeader carries the real method for clients that can only send POST.
const MethodOverrideHeader = "X-HTTP-Method-Override"

// MethodOverride rewrites POST requests to PUT, PATCH or DELETE when asked to by the
// X-HTTP-Method-Override header or a "_method" form field. Place it after CSRF
// validation so the token is always checked against the method that was sent.
func MethodOverride(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			next.ServeHTTP(w, r)
			return
		}

		m := r.Header.Get(MethodOverrideHeader)
		if m == "" && isForm(r) {
			// ParseForm errors are left for the handler to surface
			_ = r.ParseForm()
			m = r.PostForm.Get("_method")
		}

		switch m = strings.ToUpper(strings.TrimSpace(m)); m {
		case http.MethodPut, http.MethodPatch, http.MethodDelete:
			r2 := r.Clone(r.Context())
			r2.Method = m
			// chi routes on the context's RouteMethod once a parent router has matched
			if rctx := chi.RouteContext(r2.Context()); rctx != nil {
				rctx.RouteMethod = m
			}
			next.ServeHTTP(w, r2)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

func isForm(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}
