// Package health composes liveness and readiness probes for the public and admin
// listeners. Readiness is the drain gate plus a bounded session store ping; both
// endpoints sit outside the request pipeline so probes never create sessions.
package health
