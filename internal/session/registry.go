package session

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"saleregister/backend/internal/domain"
)

// Registry hands out one session per terminal. With an idle timeout set, a
// terminal untouched for that long is released and may be taken over.
type Registry struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	lastUsed    map[string]time.Time
	idleTimeout time.Duration
	now         func() time.Time
	catalog     Catalog
	committer   Committer
	logger      *slog.Logger
}

func NewRegistry(catalog Catalog, committer Committer, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:  make(map[string]*Session),
		lastUsed:  make(map[string]time.Time),
		now:       time.Now,
		catalog:   catalog,
		committer: committer,
		logger:    logger,
	}
}

// WithIdleTimeout sets how long a terminal may sit unused before it is
// released. Zero keeps sessions until they are closed.
func (r *Registry) WithIdleTimeout(d time.Duration) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.idleTimeout = d
	return r
}

func (r *Registry) idleLocked(terminalID string, now time.Time) bool {
	if r.idleTimeout <= 0 {
		return false
	}
	return now.Sub(r.lastUsed[terminalID]) >= r.idleTimeout
}

func (r *Registry) releaseLocked(terminalID string, reason string) {
	s, ok := r.sessions[terminalID]
	if !ok {
		return
	}
	delete(r.sessions, terminalID)
	delete(r.lastUsed, terminalID)
	r.logger.Info("sale session released", "terminal_id", terminalID, "cashier", s.cashierRef, "reason", reason)
}

// Open returns the terminal's session, creating it for cashierRef when none
// exists. A terminal held by another cashier is refused unless it has gone
// idle, in which case the old session and its cart are dropped.
func (r *Registry) Open(terminalID string, cashierRef string) (*Session, error) {
	terminalID = strings.TrimSpace(terminalID)
	cashierRef = strings.TrimSpace(cashierRef)
	if terminalID == "" || cashierRef == "" {
		return nil, domain.InvalidParameterf("terminal and cashier are required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if s, ok := r.sessions[terminalID]; ok {
		switch {
		case s.cashierRef == cashierRef:
			r.lastUsed[terminalID] = now
			return s, nil
		case r.idleLocked(terminalID, now):
			r.releaseLocked(terminalID, "idle")
		default:
			return nil, domain.InvalidParameterf("terminal %s is held by another cashier", terminalID)
		}
	}

	s := New(terminalID, cashierRef, r.catalog, r.committer, r.logger)
	r.sessions[terminalID] = s
	r.lastUsed[terminalID] = now
	r.logger.Info("sale session opened", "terminal_id", terminalID, "cashier", cashierRef)
	return s, nil
}

// Close releases the terminal. Only the owning cashier may close it.
func (r *Registry) Close(terminalID string, cashierRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[terminalID]
	if !ok {
		return nil
	}
	if s.cashierRef != cashierRef {
		return domain.InvalidParameterf("terminal %s is held by another cashier", terminalID)
	}
	r.releaseLocked(terminalID, "closed")
	return nil
}

// ReleaseIdle drops every session idle past the timeout and reports how many
// went.
func (r *Registry) ReleaseIdle() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	released := 0
	for terminalID := range r.sessions {
		if r.idleLocked(terminalID, now) {
			r.releaseLocked(terminalID, "idle")
			released++
		}
	}
	return released
}

// Sweep calls ReleaseIdle every interval until ctx is done.
func (r *Registry) Sweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.ReleaseIdle(); n > 0 {
				r.logger.Info("idle sale sessions released", "count", n)
			}
		}
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
