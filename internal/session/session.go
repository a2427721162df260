package session

import (
	"crypto/rand"
	"encoding/base64"
	"maps"
	"time"

	"github.com/keithlinneman/linnemanlabs-webapp/internal/xerrors"
)

// idBytes is the entropy of a session identifier (256 bits).
const idBytes = 32

// Session is server-side state for one browser.
type Session struct {
	ID        string              `json:"id"`
	Values    map[string]string   `json:"values,omitempty"`
	Flash     map[string][]string `json:"flash,omitempty"`
	CreatedAt time.Time           `json:"created_at"`
	ExpiresAt time.Time           `json:"expires_at"`

	isNew    bool
	modified bool
}

// newSession builds an unsaved session with a fresh random identifier.
func newSession(ttl time.Duration) (*Session, error) {
	id, err := NewID()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Session{
		ID:        id,
		Values:    map[string]string{},
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		isNew:     true,
		modified:  true,
	}, nil
}

// NewID returns a random base64url session identifier.
func NewID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", xerrors.Wrap(err, "session id entropy")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IsNew reports whether the session was created during the current request.
func (s *Session) IsNew() bool { return s.isNew }

// IsModified reports whether the session has unsaved changes.
func (s *Session) IsModified() bool { return s.modified }

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

// Get returns a value from the session bag.
func (s *Session) Get(key string) (string, bool) {
	v, ok := s.Values[key]
	return v, ok
}

// Set stores a value in the session bag.
func (s *Session) Set(key, value string) {
	if s.Values == nil {
		s.Values = map[string]string{}
	}
	if cur, ok := s.Values[key]; ok && cur == value {
		return
	}
	s.Values[key] = value
	s.modified = true
}

// Delete removes a value from the session bag.
func (s *Session) Delete(key string) {
	if _, ok := s.Values[key]; !ok {
		return
	}
	delete(s.Values, key)
	s.modified = true
}

// AddFlash queues a message of the given kind for the next request that reads flashes.
func (s *Session) AddFlash(kind, msg string) {
	if s.Flash == nil {
		s.Flash = map[string][]string{}
	}
	s.Flash[kind] = append(s.Flash[kind], msg)
	s.modified = true
}

// DrainFlash returns all queued flash messages and clears the queue.
// A message is returned by exactly one call.
func (s *Session) DrainFlash() map[string][]string {
	if len(s.Flash) == 0 {
		return map[string][]string{}
	}
	out := s.Flash
	s.Flash = nil
	s.modified = true
	return out
}

// Touch extends the expiry to now+ttl.
func (s *Session) Touch(ttl time.Duration) {
	s.ExpiresAt = time.Now().Add(ttl)
	s.modified = true
}

// markSaved clears the dirty/new flags after a successful persist.
func (s *Session) markSaved() {
	s.isNew = false
	s.modified = false
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.Values = maps.Clone(s.Values)
	if s.Flash != nil {
		c.Flash = make(map[string][]string, len(s.Flash))
		for k, v := range s.Flash {
			c.Flash[k] = append([]string(nil), v...)
		}
	}
	return &c
}
