// Package ratelimit provides per-IP rate limiting with background eviction
// of stale entries.
//
// The limiter sits in front of the request security pipeline, so a flooding
// client is rejected before a session is created or a store round-trip is
// made on its behalf. The visitor map is capped; once full, previously unseen
// addresses are rejected until eviction frees room.
//
// This is a single-instance, in-memory rate limiter. It does not protect
// against distributed attacks or traffic that stays under the limit. Use an
// upstream WAF or CDN-level rate limiting for those.
package ratelimit
