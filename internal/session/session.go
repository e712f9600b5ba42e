package session

// #region imports
import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// #endregion

// #region errors

// ErrConflict is returned when a user already has an active session and the
// caller did not ask to supersede it.
var ErrConflict = errors.New("active session already exists for user")

// #endregion

// #region session

// Session is one in-flight multi-turn interaction. At most one exists per
// user at any time; the registry enforces that invariant.
type Session struct {
	ID        string
	Owner     string // user identity
	Command   string
	Step      string
	Answers   map[string]string
	ReplyTo   string // message ID the next reply must quote
	CreatedAt time.Time
	ExpiresAt time.Time

	timer   *time.Timer
	claimed bool // a reply owns the session; expiry and further claims stand down
}

// Remaining reports how long until expiry, floored at zero.
func (s *Session) Remaining(now time.Time) time.Duration {
	if d := s.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// #endregion

// #region registry

// ExpiredFunc is invoked after a session is removed by timeout, outside the
// registry lock, so it may send the "session expired" notice.
type ExpiredFunc func(s *Session)

// Registry maps user identity to at most one active session.
//
// The timer-fire vs reply-arrival race is resolved under the lock: Claim
// rotates the session ID, so a timer callback that already fired fails its
// identity check and becomes a no-op; a timeout that deletes first makes
// the claim observe the session gone.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	ttl      time.Duration
	expired  ExpiredFunc
}

// NewRegistry creates a registry with the given session lifetime.
func NewRegistry(ttl time.Duration, expired ExpiredFunc) *Registry {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Registry{
		sessions: make(map[string]*Session),
		ttl:      ttl,
		expired:  expired,
	}
}

// #endregion

// #region create

// Create registers a new session for user. If one is already active it
// fails with ErrConflict unless supersede is true, in which case the old
// session is cancelled (timer stopped, no expiry notice) and replaced.
// Only the chat-registration path is expected to supersede.
func (r *Registry) Create(user, command, step, replyTo string, supersede bool) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.sessions[user]; ok {
		if !supersede {
			return nil, ErrConflict
		}
		old.timer.Stop()
		delete(r.sessions, user)
	}

	now := time.Now()
	s := &Session{
		ID:        uuid.New().String(),
		Owner:     user,
		Command:   command,
		Step:      step,
		Answers:   make(map[string]string),
		ReplyTo:   replyTo,
		CreatedAt: now,
		ExpiresAt: now.Add(r.ttl),
	}
	s.timer = time.AfterFunc(r.ttl, func() { r.expire(user, s.ID) })
	r.sessions[user] = s
	return s, nil
}

// expire removes the session on timeout, unless a reply already claimed it
// or a newer session replaced it (ID mismatch).
func (r *Registry) expire(user, id string) {
	r.mu.Lock()
	s, ok := r.sessions[user]
	if !ok || s.ID != id {
		r.mu.Unlock()
		return
	}
	delete(r.sessions, user)
	r.mu.Unlock()

	if r.expired != nil {
		r.expired(s)
	}
}

// #endregion

// #region claim

// Claim atomically looks up the session for user, verifies the reply
// targets its pending message, marks the session claimed and stops the
// expiry timer. A false second return means there was nothing to claim (no
// session, wrong reply target, already claimed, or the timeout won the
// race) and the caller must treat the reply as unrelated. The session
// stays registered so the continuation handler can advance or finish it.
//
// The ID is rotated under the lock: a timer callback that fired before
// Stop could cancel it then fails its identity check instead of deleting
// the session the reply now owns. The claimed flag keeps a duplicate reply
// quoting the same message from entering the continuation a second time
// while the first is still in flight.
func (r *Registry) Claim(user, replyTo string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[user]
	if !ok || s.claimed || s.ReplyTo != replyTo {
		return nil, false
	}
	s.claimed = true
	s.ID = uuid.New().String()
	s.timer.Stop()
	return s, true
}

// Advance updates the session's step and pending reply target and rearms
// the expiry timer for a fresh lifetime.
func (r *Registry) Advance(s *Session, step, replyTo string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.sessions[s.Owner]
	if !ok || cur.ID != s.ID {
		return
	}
	s.Step = step
	s.ReplyTo = replyTo
	s.claimed = false
	s.ExpiresAt = time.Now().Add(r.ttl)
	s.timer.Stop()
	s.timer = time.AfterFunc(r.ttl, func() { r.expire(s.Owner, s.ID) })
}

// #endregion

// #region get-delete

// Get returns the active session for user, if any.
func (r *Registry) Get(user string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[user]
	return s, ok
}

// Delete removes the session on completion or cancellation. Idempotent.
func (r *Registry) Delete(user string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[user]; ok {
		s.timer.Stop()
		delete(r.sessions, user)
	}
}

// Len reports the number of active sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Snapshot lists active sessions for the operator console.
func (r *Registry) Snapshot() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// #endregion
