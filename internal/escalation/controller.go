// Package escalation tracks repeat offenders and community panic state.
//
// Each subject carries a punishment multiplier that doubles on every new
// offense up to a hard cap. Communities enter panic mode when enough
// distinct raiders are confirmed inside the retention window; panic mode
// expires on its own or by an explicit moderator clear.
package escalation

import (
	"log/slog"
	"sync"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/config"
)

type panicState struct {
	ActivatedAt time.Time
	ExpiresAt   time.Time
	Reason      string
}

// Controller owns per-subject multipliers, confirmed raider marks, and
// per-community panic mode. All methods are safe for concurrent use.
type Controller struct {
	cfg    config.EscalationConfig
	clk    clock.Clock
	logger *slog.Logger

	mu          sync.RWMutex
	multipliers map[string]int       // communityID:subjectID -> multiplier
	raiders     map[string]time.Time // communityID:subjectID -> marked at
	panics      map[string]panicState
}

// NewController creates an escalation controller.
func NewController(cfg config.EscalationConfig, clk clock.Clock, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:         cfg,
		clk:         clk,
		logger:      logger,
		multipliers: make(map[string]int),
		raiders:     make(map[string]time.Time),
		panics:      make(map[string]panicState),
	}
}

func key(communityID, subjectID string) string {
	return communityID + ":" + subjectID
}

// GetMultiplier returns the subject's current punishment multiplier.
// Subjects with no recorded offenses are at 1.
func (c *Controller) GetMultiplier(communityID, subjectID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if m, ok := c.multipliers[key(communityID, subjectID)]; ok {
		return m
	}
	return 1
}

// Increase doubles the subject's multiplier and returns the new value.
// The multiplier never exceeds the configured cap.
func (c *Controller) Increase(communityID, subjectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key(communityID, subjectID)
	m, ok := c.multipliers[k]
	if !ok {
		m = 1
	}
	m *= 2
	if m > c.cfg.MultiplierCap {
		m = c.cfg.MultiplierCap
	}
	c.multipliers[k] = m
	return m
}

// Reset clears the subject's multiplier back to the baseline.
func (c *Controller) Reset(communityID, subjectID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.multipliers, key(communityID, subjectID))
}

// MarkRaider records the subject as a confirmed raid participant and
// returns the community's current raider count. Marks expire after the
// configured retention.
func (c *Controller) MarkRaider(communityID, subjectID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.raiders[key(communityID, subjectID)] = c.clk.Now()
	return c.raiderCountLocked(communityID)
}

// IsRaider reports whether the subject carries an unexpired raider mark.
func (c *Controller) IsRaider(communityID, subjectID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	at, ok := c.raiders[key(communityID, subjectID)]
	return ok && c.clk.Now().Sub(at) < c.cfg.RaiderRetention
}

// RaiderCount returns the community's unexpired raider marks.
func (c *Controller) RaiderCount(communityID string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.raiderCountLocked(communityID)
}

func (c *Controller) raiderCountLocked(communityID string) int {
	now := c.clk.Now()
	prefix := communityID + ":"
	n := 0
	for k, at := range c.raiders {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix && now.Sub(at) < c.cfg.RaiderRetention {
			n++
		}
	}
	return n
}

// TriggerPanicMode activates panic mode for a community when the caller's
// detected raider count has reached the configured minimum. The caller
// supplies the count so a single detection covering a whole cohort can flip
// panic mode at once. Returns true if panic mode is active after the call.
func (c *Controller) TriggerPanicMode(communityID string, raiderCount int, reason string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if raiderCount < c.cfg.PanicRaiders {
		return c.panicActiveLocked(communityID)
	}

	now := c.clk.Now()
	c.panics[communityID] = panicState{
		ActivatedAt: now,
		ExpiresAt:   now.Add(c.cfg.PanicDuration),
		Reason:      reason,
	}
	c.logger.Warn("panic mode activated",
		"community_id", communityID,
		"reason", reason,
		"expires_at", now.Add(c.cfg.PanicDuration))
	return true
}

// ForcePanicMode activates panic mode regardless of raider count. Used for
// manual moderator escalation.
func (c *Controller) ForcePanicMode(communityID, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	c.panics[communityID] = panicState{
		ActivatedAt: now,
		ExpiresAt:   now.Add(c.cfg.PanicDuration),
		Reason:      reason,
	}
	c.logger.Warn("panic mode forced", "community_id", communityID, "reason", reason)
}

// ClearPanicMode deactivates panic mode before its natural expiry.
func (c *Controller) ClearPanicMode(communityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.panics[communityID]; ok {
		delete(c.panics, communityID)
		c.logger.Info("panic mode cleared", "community_id", communityID)
	}
}

// PanicActive reports whether the community is currently in panic mode.
// Expired panic states are dropped lazily.
func (c *Controller) PanicActive(communityID string) bool {
	c.mu.RLock()
	st, ok := c.panics[communityID]
	c.mu.RUnlock()
	if !ok {
		return false
	}
	if c.clk.Now().Before(st.ExpiresAt) {
		return true
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok := c.panics[communityID]; ok && !c.clk.Now().Before(st.ExpiresAt) {
		delete(c.panics, communityID)
		c.logger.Info("panic mode expired", "community_id", communityID)
	}
	return false
}

func (c *Controller) panicActiveLocked(communityID string) bool {
	st, ok := c.panics[communityID]
	return ok && c.clk.Now().Before(st.ExpiresAt)
}

// Sweep drops expired raider marks. Intended to run periodically from the
// dispatcher's maintenance loop.
func (c *Controller) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clk.Now()
	removed := 0
	for k, at := range c.raiders {
		if now.Sub(at) >= c.cfg.RaiderRetention {
			delete(c.raiders, k)
			removed++
		}
	}
	return removed
}
