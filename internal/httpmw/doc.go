// Package httpmw holds the edge middleware that runs in front of the security
// pipeline: request ids, client address resolution, body limits, access logging,
// trace annotation, method override and a last-resort panic guard.
//
// httpserver.NewHandler fixes the order. Anything that must hold before a session
// exists (rate limits, body caps) lives here rather than in the pipeline.
package httpmw
