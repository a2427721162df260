package pipeline

import (
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestHeaderHardening_SetsHeaders(t *testing.T) {
	_, rec, err := runStage(t, HeaderHardening{}, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := map[string]string{
		"X-Powered-By":                      "The Force",
		"X-Content-Type-Options":            "nosniff",
		"X-XSS-Protection":                  "1; mode=block",
		"Cache-Control":                     "no-store, no-cache, must-revalidate, proxy-revalidate",
		"Pragma":                            "no-cache",
		"Expires":                           "0",
		"Surrogate-Control":                 "no-store",
		"X-Frame-Options":                   "DENY",
		"Referrer-Policy":                   "strict-origin-when-cross-origin",
		"X-Permitted-Cross-Domain-Policies": "none",
		"X-DNS-Prefetch-Control":            "off",
	}
	for k, v := range want {
		if got := rec.Header().Get(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("HSTS set without opt-in: %q", got)
	}
	if got := rec.Header().Get("Content-Security-Policy"); got != "" {
		t.Errorf("CSP set without a policy: %q", got)
	}
	if got := rec.Header().Get("Permissions-Policy"); got == "" {
		t.Error("Permissions-Policy missing")
	}
}

func TestHeaderHardening_CSP(t *testing.T) {
	s := HeaderHardening{ContentSecurityPolicy: DefaultContentSecurityPolicy}
	_, rec, _ := runStage(t, s, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if got := rec.Header().Get("Content-Security-Policy"); got != DefaultContentSecurityPolicy {
		t.Fatalf("CSP = %q", got)
	}
}

func TestHeaderHardening_ReplacesPoweredBy(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Powered-By", "Express")
	rc := &RequestContext{Request: req, Locals: Locals{}, w: rec}

	if err := (HeaderHardening{PoweredBy: "PHP/4.0.6"}).Run(rc); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := rec.Header().Values("X-Powered-By"); len(got) != 1 || got[0] != "PHP/4.0.6" {
		t.Fatalf("X-Powered-By = %v", got)
	}
}

func TestHeaderHardening_Idempotent(t *testing.T) {
	s := HeaderHardening{HSTS: true}
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rec := httptest.NewRecorder()
	rc := &RequestContext{Request: req, Locals: Locals{}, w: rec}

	_ = s.Run(rc)
	once := rec.Header().Clone()
	_ = s.Run(rc)

	if !reflect.DeepEqual(once, rec.Header()) {
		t.Fatalf("headers changed on second run:\nonce:  %v\ntwice: %v", once, rec.Header())
	}
}

func TestHeaderHardening_HSTS(t *testing.T) {
	_, rec, _ := runStage(t, HeaderHardening{HSTS: true}, httptest.NewRequest(http.MethodGet, "/", http.NoBody))
	if got := rec.Header().Get("Strict-Transport-Security"); got == "" {
		t.Fatal("HSTS missing")
	}
}
