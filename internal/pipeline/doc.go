// Package pipeline is the request security pipeline that wraps the application router.
//
// Every request passes through an ordered list of stages before the downstream handler runs:
//
//	harden -> session -> state -> csrf -> cors -> handler
//
// A stage either mutates the shared RequestContext and the outgoing headers, or returns an error
// which short-circuits the rest of the chain. Errors from stages, errors returned by a HandlerFunc
// and panics all end up in one place (translate.go), which classifies them into a Fault, reports
// it to a FaultSink and writes exactly one sanitized response.
//
// The response writer handed to the handler is guarded: the session is persisted before the first
// byte of the response goes out, so a response is never sent for session state that was lost.
package pipeline
