package queue

import (
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/colligo/internal/common"
)

// Guard ensures only one instance of a named operation runs at a time
// within the process. It tracks the active flag, start time and a session
// identifier, and auto-expires an operation that exceeds its timeout. The
// expiry is purely logical: it frees the slot so a new run can start, it
// does not interrupt whatever the stuck call is doing.
type Guard struct {
	mu        sync.Mutex
	name      string
	active    bool
	startedAt time.Time
	sessionID string
	timeout   time.Duration
	logger    arbor.ILogger
}

// GuardState is a snapshot of the guard for diagnostics.
type GuardState struct {
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	StartedAt time.Time `json:"started_at,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
}

// NewGuard creates a guard for the named operation.
func NewGuard(name string, timeout time.Duration, logger arbor.ILogger) *Guard {
	return &Guard{
		name:    name,
		timeout: timeout,
		logger:  logger,
	}
}

// Start attempts to claim the operation slot. It returns the new session ID
// and true on success, or "" and false while another run is in flight.
// Callers must treat a false return as "skip this tick".
func (g *Guard) Start() (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active {
		elapsed := time.Since(g.startedAt)
		if elapsed < g.timeout {
			return "", false
		}

		// The previous run exceeded the timeout without finishing. Expire
		// it and let a fresh session claim the slot.
		g.logger.Warn().
			Str("operation", g.name).
			Str("session_id", g.sessionID).
			Dur("elapsed", elapsed).
			Dur("timeout", g.timeout).
			Msg("Operation guard expired stuck session")
	}

	g.active = true
	g.startedAt = time.Now()
	g.sessionID = common.NewSessionID()

	return g.sessionID, true
}

// Finish releases the slot. Only the session that claimed it may release
// it; a stale session finishing after expiry is ignored.
func (g *Guard) Finish(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.active || g.sessionID != sessionID {
		return
	}

	g.active = false
	g.sessionID = ""
	g.startedAt = time.Time{}
}

// State returns a snapshot of the guard.
func (g *Guard) State() GuardState {
	g.mu.Lock()
	defer g.mu.Unlock()

	return GuardState{
		Name:      g.name,
		Active:    g.active,
		StartedAt: g.startedAt,
		SessionID: g.sessionID,
	}
}
