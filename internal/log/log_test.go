package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

// newTestLogger builds a slogLogger writing to buf so output can be inspected.
func newTestLogger(t *testing.T, buf *bytes.Buffer, opts Options) *slogLogger {
	t.Helper()
	opts.Writer = buf
	l, err := newSlog(opts)
	if err != nil {
		t.Fatalf("newSlog: %v", err)
	}
	return l.(*slogLogger)
}

// lastJSON parses the last JSON line written to buf.
func lastJSON(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("parse log line: %v\nraw: %s", err, buf.String())
	}
	return m
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseLevel_Invalid(t *testing.T) {
	for _, in := range []string{"", "trace", "fatal", "verbose"} {
		_, err := ParseLevel(in)
		if err == nil {
			t.Fatalf("ParseLevel(%q) should fail", in)
		}
		if !strings.Contains(err.Error(), "debug|info|warn|error") {
			t.Fatalf("error %q should list valid levels", err.Error())
		}
	}
}

func TestNew_DefaultWriter(t *testing.T) {
	l, err := New(Options{App: "webapp"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var _ Logger = l
}

func TestNew_BaseAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{
		App:        "webapp",
		Version:    "1.2.3",
		Commit:     "abc123",
		JsonFormat: true,
	})
	l.Info(context.Background(), "started")

	m := lastJSON(t, &buf)
	if m["app"] != "webapp" || m["version"] != "1.2.3" || m["commit"] != "abc123" {
		t.Fatalf("base attrs = %v", m)
	}
	if _, ok := m["build_id"]; ok {
		t.Fatal("empty build_id should be omitted")
	}
	if _, ok := m["source"]; !ok {
		t.Fatal("source should be present")
	}
}

func TestNew_SourceIsCaller(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})
	l.Info(context.Background(), "where")

	m := lastJSON(t, &buf)
	src, _ := m["source"].(map[string]any)
	if fn, _ := src["function"].(string); !strings.HasSuffix(fn, "TestNew_SourceIsCaller") {
		t.Fatalf("source.function = %v, want the test function", src["function"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp"})
	l.Info(context.Background(), "plain text")
	if !strings.Contains(buf.String(), `msg="plain text"`) {
		t.Fatalf("expected logfmt output, got %s", buf.String())
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true, Level: slog.LevelWarn})
	ctx := context.Background()

	l.Debug(ctx, "d")
	l.Info(ctx, "i")
	if buf.Len() != 0 {
		t.Fatalf("debug/info should be filtered at warn, got %s", buf.String())
	}
	l.Warn(ctx, "w")
	l.Error(ctx, errors.New("e"), "e")
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("lines = %d, want 2", n)
	}
}

func TestNilContext(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})
	//nolint:staticcheck // nil context is tolerated
	l.Info(nil, "no ctx")
	if !strings.Contains(buf.String(), "no ctx") {
		t.Fatal("nil context should still log")
	}
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true, IncludeErrorLinks: true, MaxErrorLinks: 3})

	child := l.With("component", "pipeline", 42, "dropped", "orphan")
	child.Info(context.Background(), "child")
	m := lastJSON(t, &buf)
	if m["component"] != "pipeline" {
		t.Fatalf("component = %v", m["component"])
	}
	if _, ok := m["orphan"]; ok {
		t.Fatal("orphan key should be dropped")
	}

	buf.Reset()
	l.Info(context.Background(), "parent")
	if _, ok := lastJSON(t, &buf)["component"]; ok {
		t.Fatal("parent should not see child attrs")
	}

	c := child.(*slogLogger)
	if !c.includeErrorLinks || c.maxErrorLinks != 3 {
		t.Fatal("With should keep error link config")
	}
}

func TestWith_SiblingsIndependent(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})
	base := l.With("a", 1)
	x := base.With("b", 2)
	y := base.With("c", 3)

	y.Info(context.Background(), "y")
	m := lastJSON(t, &buf)
	if _, ok := m["b"]; ok {
		t.Fatal("sibling attrs leaked")
	}
	buf.Reset()
	x.Info(context.Background(), "x")
	m = lastJSON(t, &buf)
	if _, ok := m["c"]; ok {
		t.Fatal("sibling attrs leaked")
	}
}

func TestSync(t *testing.T) {
	var buf bytes.Buffer
	if err := newTestLogger(t, &buf, Options{}).Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
}
