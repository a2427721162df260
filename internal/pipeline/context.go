package pipeline

import (
	"context"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/session"
)

// Locals holds per-request values exposed to views and handlers.
type Locals map[string]any

// RequestContext is the state shared by the stages and the downstream handler for one request.
// It is created when the request enters the pipeline and discarded when the response completes.
type RequestContext struct {
	Request   *http.Request
	Session   *session.Session
	Locals    Locals
	Origin    string
	Validated bool
	RequestID string

	w         http.ResponseWriter
	store     session.Store
	cookie    CookieOptions
	fault     error
	stage     string
	csrfToken string
	destroyed bool

	// stageHeader is the response header set as the stages left it
	stageHeader http.Header
}

type rcKey struct{}

func withRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, rcKey{}, rc)
}

// FromContext returns the RequestContext of the request, or nil outside the pipeline.
func FromContext(ctx context.Context) *RequestContext {
	rc, _ := ctx.Value(rcKey{}).(*RequestContext)
	return rc
}

// Header returns the response headers.
func (rc *RequestContext) Header() http.Header { return rc.w.Header() }

// SetCookie adds a Set-Cookie header to the response.
func (rc *RequestContext) SetCookie(c *http.Cookie) { http.SetCookie(rc.w, c) }

// Fail records a handler fault. Only the first one is kept; the pipeline translates it
// after the handler returns.
func (rc *RequestContext) Fail(err error) {
	if err != nil && rc.fault == nil {
		rc.fault = err
	}
}

// CSRFToken returns the token issued for this request, "" before the csrf stage ran.
func (rc *RequestContext) CSRFToken() string { return rc.csrfToken }

// Flash queues a message on the session for the next request that renders flashes.
func (rc *RequestContext) Flash(kind, msg string) {
	if rc.Session != nil {
		rc.Session.AddFlash(kind, msg)
	}
}

// DestroySession removes the session from the store and expires the cookie.
// Nothing is persisted for this request afterwards.
func (rc *RequestContext) DestroySession() error {
	if rc.Session == nil || rc.destroyed {
		return nil
	}
	if err := rc.store.Destroy(rc.Request.Context(), rc.Session.ID); err != nil {
		return newFault(SessionUnavailable, "session", err)
	}
	rc.destroyed = true
	rc.SetCookie(rc.cookie.expired())
	return nil
}
