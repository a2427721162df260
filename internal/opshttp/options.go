package opshttp

import (
	"net/http"
	"time"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/health"
)

// DefaultPort is used when Options.Port is zero.
const DefaultPort = 9000

type Options struct {
	Port    int
	Metrics http.Handler
	// EnablePprof mounts the chi profiler under /debug. Off by default.
	EnablePprof bool
	Health      health.Probe
	// Readiness should include the session store ping so a lost backend drains the node.
	Readiness    health.Probe
	UseRecoverMW bool
	OnPanic      func()
	// ShutdownTimeout bounds Shutdown when the caller's context has no deadline. Default 5s.
	ShutdownTimeout time.Duration
}
