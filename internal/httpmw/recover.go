package httpmw

import (
	"net/http"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

// Recover guards the edge middleware. Panics inside the pipeline are translated there
// with an incident id; anything reaching this layer gets a bare 500. http.ErrAbortHandler
// is re-raised so net/http drops the connection quietly.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	if logger == nil {
		logger = log.Nop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				if onPanic != nil {
					onPanic()
				}

				var err error
				if e, ok := v.(error); ok {
					err = xerrors.Wrap(e, "panic")
				} else {
					err = xerrors.Newf("panic: %v", v)
				}
				logger.Error(r.Context(), err, "edge panic recovered",
					"http.request.method", r.Method,
					"url.path", r.URL.Path,
					"request_id", RequestIDFromContext(r.Context()),
				)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()
			next.ServeHTTP(w, r)
		})
	}
}
