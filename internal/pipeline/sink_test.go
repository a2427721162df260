package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
)

// spyLogger captures Warn and Error calls for assertions.
type spyLogger struct {
	log.Logger
	mu    sync.Mutex
	warns []string
	errs  []error
}

func newSpyLogger() *spyLogger { return &spyLogger{Logger: log.Nop()} }

func (s *spyLogger) With(...any) log.Logger { return s }

func (s *spyLogger) Warn(_ context.Context, msg string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warns = append(s.warns, msg)
}

func (s *spyLogger) Error(_ context.Context, err error, _ string, _ ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, err)
}

func TestLogSink_Levels(t *testing.T) {
	spy := newSpyLogger()
	var kinds []string
	sink := NewLogSink(spy, func(kind string) { kinds = append(kinds, kind) })

	cause := errors.New("redis down")
	sink.Report(context.Background(), FaultRecord{Kind: SessionUnavailable, Status: 503, Err: cause})
	sink.Report(context.Background(), FaultRecord{Kind: CsrfValidationFailed, Status: 403, Err: errors.New("mismatch")})
	sink.Report(context.Background(), FaultRecord{Kind: ResponseAlreadyStarted, Err: errors.New("late")})

	if len(spy.errs) != 2 || !errors.Is(spy.errs[0], cause) {
		t.Fatalf("errors logged = %v", spy.errs)
	}
	if len(spy.warns) != 1 {
		t.Fatalf("warnings logged = %v", spy.warns)
	}
	want := []string{"session_unavailable", "csrf_validation_failed", "response_already_started"}
	if len(kinds) != len(want) {
		t.Fatalf("kinds = %v", kinds)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("kinds = %v, want %v", kinds, want)
		}
	}
}

func TestNewLogSink_NilLogger(t *testing.T) {
	sink := NewLogSink(nil, nil)
	sink.Report(context.Background(), FaultRecord{Kind: UnhandledFault, Status: 500, Err: errors.New("x")})
}
