package pipeline

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/otelx"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/session"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

// MinKeyBytes is the shortest accepted session signing key.
const MinKeyBytes = 32

type Options struct {
	Store  session.Store
	Key    []byte
	Cookie CookieOptions

	PoweredBy             string
	ReferrerPolicy        string
	ContentSecurityPolicy string
	HSTS                  bool

	SiteName string
	Locals   []LocalsFunc

	// AllowedOrigins restricts CORS echo. Empty echoes every origin.
	AllowedOrigins []string

	Logger log.Logger
	// Sink receives every fault. Defaults to a LogSink over Logger.
	Sink FaultSink

	OnSessionCreated func()
	OnCSRFRejected   func()
	OnStoreError     func(op string)
}

// Pipeline runs the security stages in order around the downstream handler.
type Pipeline struct {
	next   http.Handler
	stages []Stage
	store  session.Store
	cookie CookieOptions
	sink   FaultSink
	tracer trace.Tracer
	// cors is re-applied to fault responses that short-circuited before it ran
	cors   *Cors

	onStoreError func(op string)
}

// New builds the pipeline: harden, session, state, csrf, cors, then next.
func New(next http.Handler, opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, xerrors.New("pipeline: session store is required")
	}
	if len(opts.Key) < MinKeyBytes {
		return nil, xerrors.Newf("pipeline: session key is %d bytes, need at least %d", len(opts.Key), MinKeyBytes)
	}

	stages := []Stage{
		HeaderHardening{
			PoweredBy:             opts.PoweredBy,
			ReferrerPolicy:        opts.ReferrerPolicy,
			ContentSecurityPolicy: opts.ContentSecurityPolicy,
			HSTS:                  opts.HSTS,
		},
		SessionResolver{
			Store:        opts.Store,
			Key:          opts.Key,
			Cookie:       opts.Cookie,
			OnCreated:    opts.OnSessionCreated,
			OnStoreError: opts.OnStoreError,
		},
		StateInjection{SiteName: opts.SiteName, Funcs: opts.Locals},
		Csrf{CookieSecure: opts.Cookie.Secure, OnRejected: opts.OnCSRFRejected},
		Cors{AllowedOrigins: opts.AllowedOrigins},
	}

	sink := opts.Sink
	if sink == nil {
		sink = NewLogSink(opts.Logger, nil)
	}

	p := compose(next, opts.Store, sink, stages...)
	p.cookie = opts.Cookie
	p.onStoreError = opts.OnStoreError
	return p, nil
}

func compose(next http.Handler, store session.Store, sink FaultSink, stages ...Stage) *Pipeline {
	if next == nil {
		next = http.NotFoundHandler()
	}
	if sink == nil {
		sink = NewLogSink(nil, nil)
	}
	p := &Pipeline{
		next:   next,
		stages: stages,
		store:  store,
		sink:   sink,
		tracer: otelx.Tracer("pipeline"),
	}
	for _, s := range stages {
		if c, ok := s.(Cors); ok {
			p.cors = &c
		}
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rc := &RequestContext{
		Locals:    Locals{},
		RequestID: requestID(r),
		store:     p.store,
		cookie:    p.cookie,
	}
	g := &guardWriter{ResponseWriter: w}
	rc.w = g

	r = r.WithContext(withRequestContext(r.Context(), rc))
	rc.Request = r
	g.r = r
	g.commit = func() error { return p.commit(rc) }
	g.onCommitError = func(w http.ResponseWriter, err error) { p.commitFailed(w, rc, err) }

	// the csrf stage parses multipart bodies on this copy; net/http only cleans up its own
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	defer func() {
		if v := recover(); v != nil {
			if v == http.ErrAbortHandler {
				panic(v)
			}
			p.translate(g, rc, newFault(UnhandledFault, rc.stage, panicError(v)))
		}
	}()

	for _, s := range p.stages {
		rc.stage = s.Name()
		if err := p.runStage(s, rc); err != nil {
			p.translate(g, rc, err)
			return
		}
	}

	rc.stage = "handler"
	rc.stageHeader = g.Header().Clone()
	p.next.ServeHTTP(g, r)

	if rc.fault != nil {
		p.translate(g, rc, rc.fault)
		return
	}
	g.finish()
}

func (p *Pipeline) runStage(s Stage, rc *RequestContext) error {
	_, span := p.tracer.Start(rc.Request.Context(), "pipeline.stage",
		trace.WithAttributes(attribute.String("pipeline.stage", s.Name())),
	)
	defer span.End()

	err := s.Run(rc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, s.Name())
	}
	return err
}

// commit persists the session if anything changed. It outlives a client disconnect so
// state changes made by a completed handler are not lost.
func (p *Pipeline) commit(rc *RequestContext) error {
	if p.store == nil || rc.Session == nil || rc.destroyed || !rc.Session.IsModified() {
		return nil
	}
	ctx := context.WithoutCancel(rc.Request.Context())
	return p.store.Persist(ctx, rc.Session)
}

func requestID(r *http.Request) string {
	if id := httpmw.RequestIDFromContext(r.Context()); id != "" {
		return id
	}
	return uuid.NewString()
}
