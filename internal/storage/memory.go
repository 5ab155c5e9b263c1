package storage

import (
	"context"
	"sync"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/schema"
)

// MemoryStore implements Store with in-process maps. It is the default
// backend for single-instance deployments and the fake used in tests.
type MemoryStore struct {
	mu      sync.RWMutex
	clk     clock.Clock
	actions map[string][]*schema.ActionRecord      // communityID:subjectID -> actions
	configs map[string]*schema.SensitivitySettings
	items   map[string]*schema.QueueItem           // item ID -> item
	reports map[string][]*schema.ThreatReport      // subjectID -> reports
	closed  bool
}

// NewMemoryStore creates an empty in-memory store using the real clock.
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithClock(clock.Real())
}

// NewMemoryStoreWithClock creates an in-memory store with an injected clock.
func NewMemoryStoreWithClock(clk clock.Clock) *MemoryStore {
	return &MemoryStore{
		clk:     clk,
		actions: make(map[string][]*schema.ActionRecord),
		configs: make(map[string]*schema.SensitivitySettings),
		items:   make(map[string]*schema.QueueItem),
		reports: make(map[string][]*schema.ThreatReport),
	}
}

func subjectKey(communityID, subjectID string) string {
	return communityID + ":" + subjectID
}

// RecordAction appends a moderation action.
func (m *MemoryStore) RecordAction(ctx context.Context, rec *schema.ActionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return wrap("RecordAction", "", ErrClosed)
	}

	cp := *rec
	cp.ID = nextID(cp.ID)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = m.clk.Now()
	}

	key := subjectKey(cp.CommunityID, cp.SubjectID)
	m.actions[key] = append(m.actions[key], &cp)
	return nil
}

// GetConfig returns the community's stored sensitivity settings.
func (m *MemoryStore) GetConfig(ctx context.Context, communityID string) (*schema.SensitivitySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg, ok := m.configs[communityID]
	if !ok {
		return nil, wrap("GetConfig", communityID, ErrNotFound)
	}
	cp := *cfg
	return &cp, nil
}

// SetConfig stores community sensitivity settings.
func (m *MemoryStore) SetConfig(ctx context.Context, communityID string, settings *schema.SensitivitySettings) error {
	if settings == nil || !settings.Valid() {
		return wrap("SetConfig", communityID, ErrInvalidData)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *settings
	m.configs[communityID] = &cp
	return nil
}

// GetWarningCount counts warn actions on record for the subject.
func (m *MemoryStore) GetWarningCount(ctx context.Context, communityID, subjectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.actions[subjectKey(communityID, subjectID)] {
		if rec.ActionType == schema.ActionWarn {
			count++
		}
	}
	return count, nil
}

// GetRecentActionCount counts actions within the window.
func (m *MemoryStore) GetRecentActionCount(ctx context.Context, communityID, subjectID string, window time.Duration) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.clk.Now().Add(-window)
	count := 0
	for _, rec := range m.actions[subjectKey(communityID, subjectID)] {
		if rec.CreatedAt.After(cutoff) {
			count++
		}
	}
	return count, nil
}

// SaveQueueItem inserts or updates a queue item.
func (m *MemoryStore) SaveQueueItem(ctx context.Context, item *schema.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return wrap("SaveQueueItem", "", ErrClosed)
	}

	cp := *item
	cp.ID = nextID(cp.ID)
	m.items[cp.ID.String()] = &cp
	return nil
}

// SaveThreatReport inserts or updates a report by ID.
func (m *MemoryStore) SaveThreatReport(ctx context.Context, report *schema.ThreatReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return wrap("SaveThreatReport", "", ErrClosed)
	}

	cp := *report
	cp.ID = nextID(cp.ID)

	existing := m.reports[cp.SubjectID]
	for i, r := range existing {
		if r.ID == cp.ID {
			existing[i] = &cp
			return nil
		}
	}
	m.reports[cp.SubjectID] = append(existing, &cp)
	return nil
}

// ListThreatReports returns all reports for a subject.
func (m *MemoryStore) ListThreatReports(ctx context.Context, subjectID string) ([]*schema.ThreatReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	reports := m.reports[subjectID]
	out := make([]*schema.ThreatReport, len(reports))
	for i, r := range reports {
		cp := *r
		out[i] = &cp
	}
	return out, nil
}

// Close marks the store closed.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
