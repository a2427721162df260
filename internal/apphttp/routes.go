// Package apphttp holds the application routes that run behind the request pipeline.
package apphttp

import (
	"bytes"
	"encoding/json"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/pipeline"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

// MaxMessageLen bounds the demo message accepted by POST /submit, in runes.
const MaxMessageLen = 500

type Options struct {
	Logger log.Logger
	// Site serves static assets and the not-found page for anything no route claims.
	Site http.Handler
	// Templates must define form.html and messages.html.
	Templates fs.FS
}

type Routes struct {
	logger log.Logger
	site   http.Handler
	tmpl   *template.Template
}

func New(opts Options) (*Routes, error) {
	if opts.Templates == nil {
		return nil, xerrors.New("apphttp: Templates is nil")
	}
	tmpl, err := template.ParseFS(opts.Templates, "*.html")
	if err != nil {
		return nil, xerrors.Wrap(err, "apphttp: parse templates")
	}
	for _, name := range []string{"form.html", "messages.html"} {
		if tmpl.Lookup(name) == nil {
			return nil, xerrors.Newf("apphttp: template %q not defined", name)
		}
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	return &Routes{logger: opts.Logger, site: opts.Site, tmpl: tmpl}, nil
}

// RegisterRoutes mounts the application on r. The site handler becomes the fallback for
// unmatched paths and methods, so register this last.
func (rt *Routes) RegisterRoutes(r chi.Router) {
	r.Options("/*", preflight)

	r.Method(http.MethodGet, "/form", pipeline.HandlerFunc(rt.form))
	r.Method(http.MethodPost, "/submit", pipeline.HandlerFunc(rt.submit))
	r.Method(http.MethodGet, "/messages", pipeline.HandlerFunc(rt.messages))
	r.Method(http.MethodPost, "/logout", pipeline.HandlerFunc(rt.logout))
	// reached from HTML forms through method override
	r.Method(http.MethodDelete, "/session", pipeline.HandlerFunc(rt.logout))

	if rt.site != nil {
		r.NotFound(rt.site.ServeHTTP)
		r.MethodNotAllowed(rt.site.ServeHTTP)
	}
}

// preflight answers CORS preflight requests. The cors stage has already set the Access-Control
// headers by the time the router runs.
func preflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

type view struct {
	SiteName  string
	CSRFToken string
	RequestID string
	Flash     map[string][]string
}

func viewFrom(rc *pipeline.RequestContext) view {
	v := view{CSRFToken: rc.CSRFToken(), RequestID: rc.RequestID}
	v.SiteName, _ = rc.Locals["siteName"].(string)
	v.Flash, _ = rc.Locals["flash"].(map[string][]string)
	return v
}

func requestContext(r *http.Request) (*pipeline.RequestContext, error) {
	rc := pipeline.FromContext(r.Context())
	if rc == nil {
		return nil, xerrors.New("apphttp: request did not pass through the pipeline")
	}
	return rc, nil
}

func (rt *Routes) form(w http.ResponseWriter, r *http.Request) error {
	rc, err := requestContext(r)
	if err != nil {
		return err
	}
	return rt.render(w, "form.html", viewFrom(rc))
}

// submit follows post/redirect/get for browser forms. Script clients, which send the token
// in a header or ask for JSON, get a 200 JSON acknowledgement instead and may omit the message.
func (rt *Routes) submit(w http.ResponseWriter, r *http.Request) error {
	rc, err := requestContext(r)
	if err != nil {
		return err
	}

	msg := strings.TrimSpace(r.PostFormValue("message"))
	if scriptClient(r) {
		if utf8.RuneCountInString(msg) > MaxMessageLen {
			return writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error":      "message is too long",
				"request_id": rc.RequestID,
			})
		}
		if msg != "" {
			rc.Session.Set("last_message", msg)
			rc.Flash("info", "received: "+msg)
		}
		return writeJSON(w, http.StatusOK, map[string]string{
			"status":     "accepted",
			"request_id": rc.RequestID,
		})
	}

	switch {
	case msg == "":
		rc.Flash("error", "message is required")
		http.Redirect(w, r, "/form", http.StatusSeeOther)
		return nil
	case utf8.RuneCountInString(msg) > MaxMessageLen:
		rc.Flash("error", "message is too long")
		http.Redirect(w, r, "/form", http.StatusSeeOther)
		return nil
	}

	rc.Session.Set("last_message", msg)
	rc.Flash("info", "received: "+msg)
	log.FromContext(r.Context()).Debug(r.Context(), "message accepted", "length", len(msg))

	http.Redirect(w, r, "/messages", http.StatusSeeOther)
	return nil
}

func (rt *Routes) messages(w http.ResponseWriter, r *http.Request) error {
	rc, err := requestContext(r)
	if err != nil {
		return err
	}
	v := viewFrom(rc)

	if wantsJSON(r) {
		flash := v.Flash
		if flash == nil {
			flash = map[string][]string{}
		}
		return writeJSON(w, http.StatusOK, struct {
			Flash     map[string][]string `json:"flash"`
			RequestID string              `json:"request_id"`
		}{flash, v.RequestID})
	}
	return rt.render(w, "messages.html", v)
}

func (rt *Routes) logout(w http.ResponseWriter, r *http.Request) error {
	rc, err := requestContext(r)
	if err != nil {
		return err
	}
	if err := rc.DestroySession(); err != nil {
		return err
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
	return nil
}

// render executes into a buffer so a template error becomes a fault instead of a half-written page.
func (rt *Routes) render(w http.ResponseWriter, name string, v view) error {
	var buf bytes.Buffer
	if err := rt.tmpl.ExecuteTemplate(&buf, name, v); err != nil {
		return xerrors.Wrapf(err, "apphttp: render %s", name)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, err := buf.WriteTo(w)
	return err
}

func wantsJSON(r *http.Request) bool {
	a := r.Header.Get("Accept")
	return strings.Contains(a, "application/json") || strings.Contains(a, "+json")
}

// scriptClient reports whether r came from script rather than a plain form post.
func scriptClient(r *http.Request) bool {
	if wantsJSON(r) {
		return true
	}
	for _, h := range pipeline.CSRFHeaders() {
		if r.Header.Get(h) != "" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}
