package policy

import (
	"slices"
	"sync"

	"go.uber.org/zap"
)

// Engine owns the blacklist and the toggle that enables enforcement.
//
// It is safe for concurrent use: IsBlocked may run on many connection
// goroutines while the admin interface mutates the set.
type Engine struct {
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]struct{}
	enabled bool
}

// New returns an empty Engine. A nil logger disables logging.
func New(logger *zap.Logger, enabled bool) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger:  logger,
		entries: make(map[string]struct{}),
		enabled: enabled,
	}
}

// SetEnabled toggles enforcement. While disabled every host is allowed
// regardless of the blacklist contents.
func (e *Engine) SetEnabled(enabled bool) {
	e.mu.Lock()
	e.enabled = enabled
	e.mu.Unlock()

	if enabled {
		e.logger.Info("blacklist mode enabled")
	} else {
		e.logger.Info("blacklist mode disabled")
	}
}

// Enabled reports whether enforcement is on.
func (e *Engine) Enabled() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.enabled
}

// Add inserts the normalized form of entry. It reports whether the set
// changed; adding a present entry, or one that normalizes to nothing, is a
// no-op.
func (e *Engine) Add(entry string) bool {
	key := Normalize(entry)
	if key == "" {
		return false
	}

	e.mu.Lock()
	_, exists := e.entries[key]
	e.entries[key] = struct{}{}
	e.mu.Unlock()

	if !exists {
		e.logger.Info("added blacklist entry", zap.String("entry", key))
	}
	return !exists
}

// Remove deletes the normalized form of entry and reports whether it was
// present. Removing an absent entry is a no-op.
func (e *Engine) Remove(entry string) bool {
	key := Normalize(entry)

	e.mu.Lock()
	_, exists := e.entries[key]
	delete(e.entries, key)
	e.mu.Unlock()

	if exists {
		e.logger.Info("removed blacklist entry", zap.String("entry", key))
	}
	return exists
}

// Entries returns a sorted snapshot of the blacklist.
func (e *Engine) Entries() []string {
	e.mu.RLock()
	out := make([]string, 0, len(e.entries))
	for k := range e.entries {
		out = append(out, k)
	}
	e.mu.RUnlock()

	slices.Sort(out)
	return out
}

// Contains reports whether the normalized form of entry is in the set,
// independent of the enabled toggle.
func (e *Engine) Contains(entry string) bool {
	key := Normalize(entry)

	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.entries[key]
	return ok
}

// IsBlocked reports whether host must be refused. It is always false while
// the engine is disabled.
func (e *Engine) IsBlocked(host string) bool {
	e.mu.RLock()
	if !e.enabled {
		e.mu.RUnlock()
		return false
	}
	key := Normalize(host)
	_, blocked := e.entries[key]
	e.mu.RUnlock()

	e.logger.Debug("checking domain", zap.String("domain", key))
	if blocked {
		e.logger.Info("domain blocked", zap.String("domain", key), zap.String("host", host))
	}
	return blocked
}
