package httpmw

import "net/http"

const bodyTooLargeJSON = `{"error":"request body too large"}`

// MaxBody caps request bodies at limit bytes. A declared Content-Length over the cap is
// rejected with 413 before any handler runs, so the pipeline never creates a session for
// it. Chunked bodies are wrapped in http.MaxBytesReader and fail when read past the cap.
func MaxBody(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Connection", "close")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte(bodyTooLargeJSON))
				return
			}
			if r.Body != nil && r.Body != http.NoBody {
				r.Body = http.MaxBytesReader(w, r.Body, limit)
			}
			next.ServeHTTP(w, r)
		})
	}
}
