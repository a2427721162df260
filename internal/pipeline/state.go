package pipeline

import "errors"

var errNoSession = errors.New("no session on request")

// StateInjection drains the flash queue into locals and adds static and request-derived locals.
// Flash messages are read-once: a message queued during request N shows up in exactly one later request.
type StateInjection struct {
	SiteName string
	Funcs    []LocalsFunc
}

func (StateInjection) Name() string { return "state" }

func (s StateInjection) Run(rc *RequestContext) error {
	if rc.Session == nil {
		return newFault(SessionUnavailable, s.Name(), errNoSession)
	}
	rc.Locals["flash"] = rc.Session.DrainFlash()
	rc.Locals["siteName"] = s.SiteName
	rc.Locals["requestID"] = rc.RequestID
	rc.Locals["path"] = rc.Request.URL.Path
	for _, fn := range s.Funcs {
		fn(rc)
	}
	return nil
}
