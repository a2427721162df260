package pipeline

import (
	"context"
	"time"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
)

// FaultRecord describes one translated fault.
type FaultRecord struct {
	IncidentID string
	Time       time.Time
	Kind       Kind
	Status     int
	Stage      string
	RequestID  string
	Method     string
	Path       string
	Err        error
}

// FaultSink receives every fault the pipeline translates.
type FaultSink interface {
	Report(ctx context.Context, rec FaultRecord)
}

// LogSink reports faults through the structured logger. 5xx and aborted responses are
// logged at error level, client faults at warn.
type LogSink struct {
	Logger  log.Logger
	OnFault func(kind string)
}

// NewLogSink returns a LogSink. onFault may be nil.
func NewLogSink(logger log.Logger, onFault func(kind string)) *LogSink {
	if logger == nil {
		logger = log.Nop()
	}
	return &LogSink{Logger: logger, OnFault: onFault}
}

func (s *LogSink) Report(ctx context.Context, rec FaultRecord) {
	if s.OnFault != nil {
		s.OnFault(rec.Kind.String())
	}
	kv := []any{
		"incident_id", rec.IncidentID,
		"fault.kind", rec.Kind.String(),
		"fault.stage", rec.Stage,
		"request_id", rec.RequestID,
		"http.request.method", rec.Method,
		"url.path", rec.Path,
	}
	if rec.Status != 0 {
		kv = append(kv, "http.response.status_code", rec.Status)
	}
	if rec.Status == 0 || rec.Status >= 500 {
		s.Logger.Error(ctx, rec.Err, "request fault", kv...)
		return
	}
	if rec.Err != nil {
		kv = append(kv, "error", rec.Err.Error())
	}
	s.Logger.Warn(ctx, "request fault", kv...)
}
