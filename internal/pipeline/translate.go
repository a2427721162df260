package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
)

type faultBody struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// translate is the single place a fault becomes a response. At most one response is
// written per request; if headers are already out the connection is aborted instead.
func (p *Pipeline) translate(g *guardWriter, rc *RequestContext, err error) {
	ctx := rc.Request.Context()

	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		log.FromContext(ctx).Debug(ctx, "client went away", "pipeline.stage", rc.stage)
		return
	}

	f := classify(err, rc.stage)

	if g.started {
		if g.discard {
			// the commit failure already produced the response
			p.report(ctx, rc, f, f.Kind)
			return
		}
		p.report(ctx, rc, f, ResponseAlreadyStarted)
		panic(http.ErrAbortHandler)
	}

	p.report(ctx, rc, f, f.Kind)
	if f.Kind == SessionUnavailable {
		g.commit = nil
	}
	p.faultHeaders(g.Header(), rc)
	writeFault(g, rc, f)
}

// faultHeaders drops whatever the handler added to the response header and makes sure the
// cors decision is present even when the fault stopped the stages before cors ran.
func (p *Pipeline) faultHeaders(h http.Header, rc *RequestContext) {
	if rc.stageHeader != nil {
		clear(h)
		for k, v := range rc.stageHeader {
			h[k] = v
		}
	}
	if p.cors != nil {
		_ = p.cors.Run(rc)
	}
}

// commitFailed answers the request with a 503 when the session could not be persisted.
func (p *Pipeline) commitFailed(w http.ResponseWriter, rc *RequestContext, err error) {
	if p.onStoreError != nil {
		p.onStoreError("persist")
	}
	f := newFault(SessionUnavailable, "commit", err)
	p.report(rc.Request.Context(), rc, f, f.Kind)
	p.faultHeaders(w.Header(), rc)
	writeFault(w, rc, f)
}

func (p *Pipeline) report(ctx context.Context, rc *RequestContext, f *Fault, kind Kind) {
	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		span.RecordError(f)
		span.SetAttributes(attribute.String("pipeline.fault.kind", kind.String()))
		if st := kind.Status(); st == 0 || st >= 500 {
			span.SetStatus(codes.Error, kind.String())
		}
	}
	p.sink.Report(ctx, FaultRecord{
		IncidentID: uuid.NewString(),
		Time:       time.Now(),
		Kind:       kind,
		Status:     kind.Status(),
		Stage:      f.Stage,
		RequestID:  rc.RequestID,
		Method:     rc.Request.Method,
		Path:       rc.Request.URL.Path,
		Err:        f,
	})
}

func writeFault(w http.ResponseWriter, rc *RequestContext, f *Fault) {
	msg := f.Message
	if msg == "" {
		msg = f.Kind.Message()
	}

	h := w.Header()
	h.Del("Content-Length")
	h.Set("X-Content-Type-Options", "nosniff")

	var body []byte
	if wantsJSON(rc.Request) {
		h.Set("Content-Type", "application/json; charset=utf-8")
		body, _ = json.Marshal(faultBody{Error: msg, RequestID: rc.RequestID})
		body = append(body, '\n')
	} else {
		h.Set("Content-Type", "text/plain; charset=utf-8")
		body = []byte(msg + "\n")
	}

	w.WriteHeader(f.Kind.Status())
	_, _ = w.Write(body)
}

func wantsJSON(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") || strings.Contains(accept, "+json")
}
