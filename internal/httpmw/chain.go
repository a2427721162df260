package httpmw

import "net/http"

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Chain wraps h so that mws[0] is the outermost layer. Nil entries are skipped,
// which lets callers leave optional layers unset.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}

// If returns mw when enabled and nil otherwise, for use in Chain.
func If(enabled bool, mw Middleware) Middleware {
	if !enabled {
		return nil
	}
	return mw
}
