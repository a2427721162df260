package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/health"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/httpmw"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/log"
	"github.com/keithlinneman/linnemanlabs-webapp/internal/pipeline"
)

// DefaultMaxBodyBytes caps request bodies when Options.MaxBodyBytes is zero.
const DefaultMaxBodyBytes = 1 << 20

type Options struct {
	Logger       log.Logger
	Port         int
	UseRecoverMW bool
	OnPanic      func()
	MetricsMW    func(http.Handler) http.Handler
	RateLimitMW  func(http.Handler) http.Handler
	ClientIPOpts httpmw.ClientIPOptions

	// Health and Readiness are served at /-/healthy and /-/ready, outside the pipeline.
	Health    health.Probe
	Readiness health.Probe

	MaxBodyBytes int64

	// Pipeline wraps every application route. Store and Key are required.
	Pipeline pipeline.Options
	// Routes registers the application on the router behind the pipeline.
	Routes func(r chi.Router)
}
