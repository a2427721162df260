package sitehandler

import (
	"errors"
	"io/fs"
	"net/http"
)

var ErrInvalidOptions = errors.New("sitehandler: invalid options")

// Handler serves the static asset tree and renders the not-found page for everything else.
// It runs behind the request pipeline, so hardening headers are already set on w.
type Handler struct {
	opts Options
}

func New(opts Options) (*Handler, error) {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return nil, err
	}
	return &Handler{opts: opts}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// assets are read-only
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	file, redirectTo, found := resolvePath(r.URL.Path, h.opts.Static)
	if redirectTo != "" {
		http.Redirect(w, r, redirectTo, http.StatusPermanentRedirect)
		return
	}
	if !found {
		h.NotFound(w, r)
		return
	}

	http.ServeFileFS(w, r, h.opts.Static, file)
}

// NotFound writes the 404 page: the static tree's own copy, then the embedded fallback,
// then plain text.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	name := h.opts.NotFoundFile
	for _, fsys := range []fs.FS{h.opts.Static, h.opts.Fallback} {
		if fsys != nil && existsFile(fsys, name) {
			serveFileWithStatus(w, r, http.StatusNotFound, fsys, name)
			return
		}
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte("404 page not found"))
}

// http.ServeFileFS picks its own status, so the first WriteHeader is overridden here.
type statusOverrideWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusOverrideWriter) WriteHeader(code int) {
	if w.wroteHeader {
		w.ResponseWriter.WriteHeader(code)
		return
	}
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(w.status)
}

func (w *statusOverrideWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func serveFileWithStatus(w http.ResponseWriter, r *http.Request, status int, fsys fs.FS, name string) {
	sw := &statusOverrideWriter{ResponseWriter: w, status: status}
	http.ServeFileFS(sw, r, fsys, name)
}
