package pipeline

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"mime"
	"net/http"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/session"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

const (
	// CSRFCookieName is readable by scripts so SPAs can echo it back in a header.
	CSRFCookieName = "XSRF-TOKEN"
	// CSRFFormField is the form field carrying the token.
	CSRFFormField = "_csrf"

	// csrfSecretKey is the reserved session key holding the per-session secret.
	csrfSecretKey = "_csrf_secret"
	csrfSecretLen = 32
)

// maxMultipartMemory is how much of a multipart body is held in memory before spilling to
// temp files.
var maxMultipartMemory int64 = 8 << 20

var csrfHeaders = []string{"X-CSRF-Token", "X-XSRF-TOKEN", "CSRF-Token"}

// CSRFHeaders returns the request headers checked for a client token, in lookup order.
func CSRFHeaders() []string { return append([]string(nil), csrfHeaders...) }

var (
	errCSRFNoSecret = errors.New("csrf secret did not exist before this request")
	errCSRFMissing  = errors.New("csrf token missing")
	errCSRFMismatch = errors.New("csrf token mismatch")
)

// Csrf issues a per-session token on every request and validates it on unsafe methods.
type Csrf struct {
	CookieSecure bool
	OnRejected   func()
}

func (Csrf) Name() string { return "csrf" }

func (s Csrf) Run(rc *RequestContext) error {
	sess := rc.Session
	if sess == nil {
		return newFault(SessionUnavailable, s.Name(), errNoSession)
	}

	secret, existed := csrfSecret(sess)
	if !existed {
		var err error
		if secret, err = newCSRFSecret(); err != nil {
			return newFault(UnhandledFault, s.Name(), err)
		}
		sess.Set(csrfSecretKey, base64.RawStdEncoding.EncodeToString(secret))
	}

	token := Token(secret, sess.ID)
	rc.csrfToken = token
	rc.Locals["csrfToken"] = token
	rc.Locals["_csrf"] = token
	rc.SetCookie(&http.Cookie{
		Name:     CSRFCookieName,
		Value:    token,
		Path:     "/",
		Secure:   s.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if SafeMethod(rc.Request.Method) {
		return nil
	}

	if !existed {
		return s.reject(errCSRFNoSecret)
	}
	got, err := clientToken(rc.Request)
	if err != nil {
		return newFault(MalformedRequest, s.Name(), err)
	}
	if got == "" {
		return s.reject(errCSRFMissing)
	}
	if !hmac.Equal([]byte(got), []byte(token)) {
		return s.reject(errCSRFMismatch)
	}
	rc.Validated = true
	return nil
}

func (s Csrf) reject(cause error) error {
	if s.OnRejected != nil {
		s.OnRejected()
	}
	return newFault(CsrfValidationFailed, s.Name(), cause)
}

// Token derives the CSRF token for a session: base64url(HMAC-SHA256(secret, "csrf:"+sessionID)).
// It is stable for the life of the session and verifies only against that session's secret.
func Token(secret []byte, sessionID string) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte("csrf:"))
	h.Write([]byte(sessionID))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

// SafeMethod reports whether method is exempt from CSRF validation.
func SafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

func csrfSecret(sess *session.Session) ([]byte, bool) {
	v, ok := sess.Get(csrfSecretKey)
	if !ok {
		return nil, false
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil || len(b) != csrfSecretLen {
		return nil, false
	}
	return b, true
}

func newCSRFSecret() ([]byte, error) {
	b := make([]byte, csrfSecretLen)
	if _, err := rand.Read(b); err != nil {
		return nil, xerrors.Wrap(err, "csrf secret entropy")
	}
	return b, nil
}

// clientToken reads the token from the known headers, then from the form body.
func clientToken(r *http.Request) (string, error) {
	for _, h := range csrfHeaders {
		if v := r.Header.Get(h); v != "" {
			return v, nil
		}
	}

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return "", nil
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return "", xerrors.Wrap(err, "parse content type")
	}
	switch mt {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return "", xerrors.Wrap(err, "parse form")
		}
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
			return "", xerrors.Wrap(err, "parse multipart form")
		}
	default:
		return "", nil
	}
	return r.PostForm.Get(CSRFFormField), nil
}
