package pipeline

// DefaultPoweredBy replaces the framework banner in X-Powered-By.
const DefaultPoweredBy = "The Force"

// DefaultContentSecurityPolicy restricts resource loading to same origin.
const DefaultContentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self'; img-src 'self'; font-src 'self'; base-uri 'self'; form-action 'self'; frame-ancestors 'none'; object-src 'none'"

const permissionsPolicy = "accelerometer=(), camera=(), geolocation=(), gyroscope=(), magnetometer=(), microphone=(), payment=(), usb=()"

// HeaderHardening sets the security and no-cache response headers.
// Every header is Set, never Added, so running it twice equals running it once.
type HeaderHardening struct {
	PoweredBy      string
	ReferrerPolicy string
	// ContentSecurityPolicy is sent when non-empty.
	ContentSecurityPolicy string
	// HSTS adds Strict-Transport-Security. Only enable behind TLS.
	HSTS bool
}

func (HeaderHardening) Name() string { return "harden" }

func (s HeaderHardening) Run(rc *RequestContext) error {
	h := rc.Header()

	poweredBy := s.PoweredBy
	if poweredBy == "" {
		poweredBy = DefaultPoweredBy
	}
	referrer := s.ReferrerPolicy
	if referrer == "" {
		referrer = "strict-origin-when-cross-origin"
	}

	h.Set("X-Powered-By", poweredBy)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-XSS-Protection", "1; mode=block")
	h.Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
	h.Set("Surrogate-Control", "no-store")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Referrer-Policy", referrer)
	h.Set("X-Permitted-Cross-Domain-Policies", "none")
	h.Set("X-DNS-Prefetch-Control", "off")
	h.Set("Permissions-Policy", permissionsPolicy)
	if s.ContentSecurityPolicy != "" {
		h.Set("Content-Security-Policy", s.ContentSecurityPolicy)
	}
	if s.HSTS {
		h.Set("Strict-Transport-Security", "max-age=63072000; includeSubDomains")
	}
	return nil
}
