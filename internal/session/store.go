package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned by Get when the id is unknown or expired.
	ErrNotFound = errors.New("session: not found")

	// ErrUnavailable wraps backend failures (network, decode, timeouts).
	ErrUnavailable = errors.New("session: store unavailable")
)

// DefaultTTL is used by stores constructed with a zero ttl.
const DefaultTTL = 24 * time.Hour

// Store persists sessions. Implementations must be safe for concurrent use
// and must hand out copies, never shared pointers.
type Store interface {
	// Get returns the session for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*Session, error)
	// Create returns a new unsaved session with a fresh id.
	Create(ctx context.Context) (*Session, error)
	// Persist saves the session and refreshes its expiry.
	Persist(ctx context.Context, s *Session) error
	// Destroy removes the session. Unknown ids are not an error.
	Destroy(ctx context.Context, id string) error
	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}
