package pipeline

import "net/http"

// Stage is one step of the pipeline. A non-nil error stops the chain; the handler never runs.
type Stage interface {
	Name() string
	Run(rc *RequestContext) error
}

// HandlerFunc is a downstream handler that reports failures by returning an error.
type HandlerFunc func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFunc) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}
	if rc := FromContext(r.Context()); rc != nil {
		rc.Fail(err)
		return
	}
	http.Error(w, UnhandledFault.Message(), UnhandledFault.Status())
}

// LocalsFunc contributes request-derived locals during state injection.
type LocalsFunc func(rc *RequestContext)
