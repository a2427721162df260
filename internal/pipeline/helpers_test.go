package pipeline

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/session"
)

var testKey = bytes.Repeat([]byte("k"), 32)

// flakyStore wraps a real store and injects failures per operation.
type flakyStore struct {
	session.Store

	mu         sync.Mutex
	getErr     error
	createErr  error
	persistErr error
	destroyErr error
	persists   int
}

func (f *flakyStore) Get(ctx context.Context, id string) (*session.Session, error) {
	f.mu.Lock()
	err := f.getErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Get(ctx, id)
}

func (f *flakyStore) Create(ctx context.Context) (*session.Session, error) {
	f.mu.Lock()
	err := f.createErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return f.Store.Create(ctx)
}

func (f *flakyStore) Persist(ctx context.Context, s *session.Session) error {
	f.mu.Lock()
	err := f.persistErr
	f.persists++
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Persist(ctx, s)
}

func (f *flakyStore) Destroy(ctx context.Context, id string) error {
	f.mu.Lock()
	err := f.destroyErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Store.Destroy(ctx, id)
}

func (f *flakyStore) set(fn func(f *flakyStore)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *flakyStore) persistCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.persists
}

// recordingSink collects reported faults.
type recordingSink struct {
	mu   sync.Mutex
	recs []FaultRecord
}

func (s *recordingSink) Report(_ context.Context, rec FaultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
}

func (s *recordingSink) records() []FaultRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FaultRecord(nil), s.recs...)
}

type harness struct {
	p     *Pipeline
	mem   *session.MemoryStore
	store *flakyStore
	sink  *recordingSink
}

func newHarness(t *testing.T, next http.Handler, mutate func(*Options)) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	mem := session.NewMemoryStore(ctx, time.Hour)
	store := &flakyStore{Store: mem}
	sink := &recordingSink{}

	opts := Options{Store: store, Key: testKey, Sink: sink, SiteName: "test site"}
	if mutate != nil {
		mutate(&opts)
	}
	p, err := New(next, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{p: p, mem: mem, store: store, sink: sink}
}

// browser replays cookies between requests like a user agent would.
type browser struct {
	t       *testing.T
	h       http.Handler
	cookies map[string]*http.Cookie
}

func newBrowser(t *testing.T, h http.Handler) *browser {
	return &browser{t: t, h: h, cookies: map[string]*http.Cookie{}}
}

func (b *browser) do(req *http.Request) *httptest.ResponseRecorder {
	b.t.Helper()
	for _, c := range b.cookies {
		req.AddCookie(&http.Cookie{Name: c.Name, Value: c.Value})
	}
	rec := httptest.NewRecorder()
	b.h.ServeHTTP(rec, req)
	for _, c := range rec.Result().Cookies() {
		if c.MaxAge < 0 {
			delete(b.cookies, c.Name)
			continue
		}
		b.cookies[c.Name] = c
	}
	return rec
}

func (b *browser) get(path string) *httptest.ResponseRecorder {
	return b.do(httptest.NewRequest(http.MethodGet, path, http.NoBody))
}

func (b *browser) token() string {
	if c, ok := b.cookies[CSRFCookieName]; ok {
		return c.Value
	}
	return ""
}

func postForm(path string, form string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// okHandler records whether it ran and answers 200 "ok".
type okHandler struct {
	mu    sync.Mutex
	calls int
	last  *RequestContext
}

func (h *okHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.calls++
	h.last = FromContext(r.Context())
	h.mu.Unlock()
	_, _ = w.Write([]byte("ok"))
}

func (h *okHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

// runStage executes a single stage against a fresh RequestContext.
func runStage(t *testing.T, s Stage, req *http.Request) (*RequestContext, *httptest.ResponseRecorder, error) {
	t.Helper()
	rec := httptest.NewRecorder()
	rc := &RequestContext{Request: req, Locals: Locals{}, w: rec}
	err := s.Run(rc)
	return rc, rec, err
}
