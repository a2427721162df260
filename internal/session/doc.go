// Package session holds server-side session state keyed by an opaque
// identifier delivered in a signed cookie.
//
// A Session is owned by the store; callers always receive a private copy, so
// two in-flight requests for the same session never share memory. Writes are
// last-writer-wins, bounded only by the consistency of the backing store.
//
// Two stores are provided: MemoryStore for single-instance deployments and
// tests, and RedisStore for anything that runs more than one replica.
package session
