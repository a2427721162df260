package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// securityMetrics covers the request security pipeline and the session store.
type securityMetrics struct {
	faults         *prometheus.CounterVec
	sessions       prometheus.Counter
	csrfRejections prometheus.Counter
	storeErrors    *prometheus.CounterVec
}

func newSecurityMetrics() securityMetrics {
	return securityMetrics{
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pipeline_faults_total",
			Help: "Faults translated into error responses, by kind",
		}, []string{"kind"}),
		sessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Sessions created for first-contact clients",
		}),
		csrfRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "csrf_rejections_total",
			Help: "Unsafe requests rejected for a missing or mismatched token",
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "session_store_errors_total",
			Help: "Session store failures by operation",
		}, []string{"op"}),
	}
}

func (s securityMetrics) register(reg prometheus.Registerer) {
	reg.MustRegister(s.faults, s.sessions, s.csrfRejections, s.storeErrors)
}

// IncPipelineFault counts a translated fault. kind is a pipeline.Kind string.
func (m *ServerMetrics) IncPipelineFault(kind string) {
	m.security.faults.WithLabelValues(kind).Inc()
}

func (m *ServerMetrics) IncSessionCreated() { m.security.sessions.Inc() }

func (m *ServerMetrics) IncCSRFRejection() { m.security.csrfRejections.Inc() }

// IncSessionStoreError counts a failed store call; op is get, create, persist or destroy.
func (m *ServerMetrics) IncSessionStoreError(op string) {
	m.security.storeErrors.WithLabelValues(op).Inc()
}

// RegisterActiveSessions exposes sessions_active, sampled from fn at scrape time.
// Only the in-memory store can count cheaply; Redis deployments skip this.
func (m *ServerMetrics) RegisterActiveSessions(fn func() int) error {
	return m.reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "sessions_active",
		Help: "Sessions held by the in-memory store, expired entries included until swept",
	}, func() float64 { return float64(fn()) }))
}
