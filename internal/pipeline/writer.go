package pipeline

import (
	"net/http"
)

// guardWriter wraps the response writer handed to the handler.
//   - the session is committed before the first header or body byte leaves
//   - if the commit fails, a 503 goes out instead and later handler writes are dropped
//   - writes after the client went away are dropped silently
type guardWriter struct {
	http.ResponseWriter
	r *http.Request

	commit        func() error
	onCommitError func(w http.ResponseWriter, err error)

	committed bool
	started   bool
	discard   bool
	status    int
}

func (g *guardWriter) WriteHeader(code int) {
	if g.started || g.discard {
		return
	}
	if !g.commitOnce() {
		return
	}
	g.started = true
	g.status = code
	g.ResponseWriter.WriteHeader(code)
}

func (g *guardWriter) Write(b []byte) (int, error) {
	if !g.started {
		g.WriteHeader(http.StatusOK)
	}
	if g.discard || g.r.Context().Err() != nil {
		return len(b), nil
	}
	n, err := g.ResponseWriter.Write(b)
	if err != nil && g.r.Context().Err() != nil {
		return len(b), nil
	}
	return n, err
}

func (g *guardWriter) Flush() {
	if !g.started {
		g.WriteHeader(http.StatusOK)
	}
	if g.discard {
		return
	}
	if f, ok := g.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (g *guardWriter) Unwrap() http.ResponseWriter { return g.ResponseWriter }

// commitOnce persists the session. On failure the replacement response is written and
// the writer switches to discard mode. Reports whether the caller may proceed.
func (g *guardWriter) commitOnce() bool {
	if g.committed {
		return !g.discard
	}
	g.committed = true
	if g.commit == nil {
		return true
	}
	if err := g.commit(); err != nil {
		g.discard = true
		g.started = true
		g.status = SessionUnavailable.Status()
		if g.onCommitError != nil {
			g.onCommitError(g.ResponseWriter, err)
		}
		return false
	}
	return true
}

// finish commits the session when the handler returned without writing anything.
func (g *guardWriter) finish() {
	if g.started || g.discard {
		return
	}
	g.commitOnce()
}
