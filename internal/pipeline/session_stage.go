package pipeline

import (
	"errors"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/session"
)

// DefaultCookieName is the session cookie name.
const DefaultCookieName = "session-id"

// CookieOptions control the session cookie.
type CookieOptions struct {
	Name   string
	Secure bool
}

func (o CookieOptions) name() string {
	if o.Name == "" {
		return DefaultCookieName
	}
	return o.Name
}

func (o CookieOptions) cookie(value string) *http.Cookie {
	return &http.Cookie{
		Name:     o.name(),
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (o CookieOptions) expired() *http.Cookie {
	c := o.cookie("")
	c.MaxAge = -1
	return c
}

// SessionResolver loads the session named by the signed cookie, or starts a new one.
// Forged, stale and unknown cookies all lead to a fresh session.
type SessionResolver struct {
	Store  session.Store
	Key    []byte
	Cookie CookieOptions

	OnCreated    func()
	OnStoreError func(op string)
}

func (SessionResolver) Name() string { return "session" }

func (s SessionResolver) Run(rc *RequestContext) error {
	ctx := rc.Request.Context()

	if c, err := rc.Request.Cookie(s.Cookie.name()); err == nil {
		if id, ok := session.VerifyCookie(s.Key, c.Value); ok {
			sess, err := s.Store.Get(ctx, id)
			switch {
			case err == nil:
				rc.Session = sess
				return nil
			case !errors.Is(err, session.ErrNotFound):
				s.storeError("get")
				return newFault(SessionUnavailable, s.Name(), err)
			}
		}
	}

	sess, err := s.Store.Create(ctx)
	if err != nil {
		s.storeError("create")
		return newFault(SessionUnavailable, s.Name(), err)
	}
	rc.Session = sess
	rc.SetCookie(s.Cookie.cookie(session.SignID(s.Key, sess.ID)))
	if s.OnCreated != nil {
		s.OnCreated()
	}
	return nil
}

func (s SessionResolver) storeError(op string) {
	if s.OnStoreError != nil {
		s.OnStoreError(op)
	}
}
