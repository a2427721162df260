package log

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

type storeError struct{ op string }

func (e *storeError) Error() string { return "store " + e.op + " failed" }

func TestError_Enrichment(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true, IncludeErrorLinks: true})

	root := &storeError{op: "persist"}
	err := xerrors.Wrap(fmt.Errorf("commit: %w", root), "pipeline")
	l.Error(context.Background(), err, "request fault", "request_id", "r-1")

	m := lastJSON(t, &buf)
	if m["err"] != "pipeline: commit: store persist failed" {
		t.Fatalf("err = %v", m["err"])
	}
	if m["error_type"] != "*log.storeError" {
		t.Fatalf("error_type = %v, want first non-wrapper type", m["error_type"])
	}
	if m["cause_type"] != "*log.storeError" {
		t.Fatalf("cause_type = %v", m["cause_type"])
	}
	chain, _ := m["error_chain"].([]any)
	if len(chain) != 3 {
		t.Fatalf("error_chain = %v, want 3 entries", m["error_chain"])
	}
	links, _ := m["error_links"].([]any)
	if len(links) == 0 {
		t.Fatal("error_links missing")
	}
	first, _ := links[0].(map[string]any)
	if fn, _ := first["func"].(string); !strings.HasSuffix(fn, "TestError_Enrichment") {
		t.Fatalf("first link func = %v", first["func"])
	}
	if m["request_id"] != "r-1" {
		t.Fatal("extra kv lost")
	}
	if _, ok := m["stack"]; !ok {
		t.Fatal("error records carry a stack")
	}
}

func TestError_NilErr(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})
	l.Error(context.Background(), nil, "no cause")

	m := lastJSON(t, &buf)
	for _, k := range []string{"err", "error_type", "error_chain"} {
		if _, ok := m[k]; ok {
			t.Fatalf("%s should be absent for nil err", k)
		}
	}
}

func TestError_LinksDisabled(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})
	l.Error(context.Background(), errors.New("x"), "msg")
	if _, ok := lastJSON(t, &buf)["error_links"]; ok {
		t.Fatal("error_links should be absent when disabled")
	}
}

func TestStackHandler_UsesErrorStack(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})

	err := raiseWithStack()
	l.Error(context.Background(), err, "failed")

	stack, _ := lastJSON(t, &buf)["stack"].(string)
	if !strings.Contains(stack, "raiseWithStack") {
		t.Fatalf("stack should come from the error, got:\n%s", stack)
	}
	if strings.Contains(stack, "/internal/xerrors.") {
		t.Fatalf("stack should not start inside xerrors:\n%s", stack)
	}
}

func raiseWithStack() error { return xerrors.New("raised") }

func TestStackHandler_BelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})
	l.Warn(context.Background(), "warned")
	if _, ok := lastJSON(t, &buf)["stack"]; ok {
		t.Fatal("warn is below the default stacktrace level")
	}
}

func TestStackHandler_CustomLevel(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true, StacktraceLevel: slog.LevelWarn})
	l.Warn(context.Background(), "warned")
	stack, _ := lastJSON(t, &buf)["stack"].(string)
	if !strings.Contains(stack, "TestStackHandler_CustomLevel") {
		t.Fatalf("call-site stack should start at the caller, got:\n%s", stack)
	}
}

func TestOtelHandler(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(t, &buf, Options{App: "webapp", JsonFormat: true})

	l.Info(context.Background(), "untraced")
	if _, ok := lastJSON(t, &buf)["trace_id"]; ok {
		t.Fatal("no trace_id without a span")
	}

	tid, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	sid, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: tid, SpanID: sid, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	buf.Reset()
	l.Info(ctx, "traced")
	m := lastJSON(t, &buf)
	if m["trace_id"] != tid.String() || m["span_id"] != sid.String() {
		t.Fatalf("trace fields = %v / %v", m["trace_id"], m["span_id"])
	}
}

func TestErrorChain(t *testing.T) {
	if got := errorChain(nil); len(got) != 0 {
		t.Fatalf("nil chain = %v", got)
	}

	base := errors.New("eof")
	same := fmt.Errorf("%w", base) // identical message collapses
	got := errorChain(xerrors.Wrap(same, "read"))
	if len(got) != 2 || got[0] != "read: eof" || got[1] != "eof" {
		t.Fatalf("chain = %v", got)
	}

	joined := errors.Join(errors.New("a"), nil, errors.New("b"))
	got = errorChain(joined)
	if len(got) != 3 || got[1] != "a" || got[2] != "b" {
		t.Fatalf("joined chain = %v", got)
	}
}

func TestChainLinks_Max(t *testing.T) {
	err := errors.New("root")
	for i := 0; i < 10; i++ {
		err = xerrors.Wrapf(err, "layer %d", i)
	}
	if got := chainLinks(err, 3); len(got) != 3 {
		t.Fatalf("links = %d, want 3", len(got))
	}
	// 10 positioned wraps plus a plain root that is dropped
	if got := chainLinks(err, 0); len(got) != 10 {
		t.Fatalf("unbounded links = %d, want 10", len(got))
	}
}

func TestChainLinks_PlainErrorKept(t *testing.T) {
	got := chainLinks(errors.New("plain"), 8)
	if len(got) != 1 || got[0]["msg"] != "plain" {
		t.Fatalf("links = %v", got)
	}
	if _, ok := got[0]["func"]; ok {
		t.Fatal("plain error has no position")
	}
}

func TestClassifyTypes(t *testing.T) {
	if s, r := classifyTypes(nil); s != "" || r != "" {
		t.Fatal("nil should classify empty")
	}
	s, r := classifyTypes(xerrors.WithStack(errors.New("x")))
	if s != "*errors.errorString" || r != "*errors.errorString" {
		t.Fatalf("classify = %q, %q", s, r)
	}
	s, _ = classifyTypes(fmt.Errorf("w: %w", &storeError{}))
	if s != "*log.storeError" {
		t.Fatalf("fmt wrapper should be skipped, got %q", s)
	}
}

func TestFrameHelpers_Empty(t *testing.T) {
	if _, _, _, ok := frameFromPC(0); ok {
		t.Fatal("zero pc has no frame")
	}
	if _, _, _, ok := firstExtFrame(nil); ok {
		t.Fatal("empty pcs have no frame")
	}
	if renderStack(nil) != "" {
		t.Fatal("empty pcs render empty")
	}
}
