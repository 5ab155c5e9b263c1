// Package modqueue holds moderation suggestions awaiting human review.
// Items carry a computed priority and a possibly upgraded action; a
// reviewer resolves each item exactly once.
package modqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"modsentry/internal/clock"
	"modsentry/internal/schema"
	"modsentry/internal/storage"
)

var (
	// ErrItemNotFound is returned when a queue item ID is unknown.
	ErrItemNotFound = errors.New("modqueue: item not found")

	// ErrAlreadyProcessed is returned when a reviewer resolves an item twice.
	ErrAlreadyProcessed = errors.New("modqueue: item already processed")
)

// EnqueueInput carries the signals that set an item's priority and
// suggested action.
type EnqueueInput struct {
	CommunityID string
	SubjectID   string
	ActionType  schema.ActionType
	Reason      string
	Context     map[string]any

	// ThreatScore is the subject's current threat assessment score.
	ThreatScore int

	// RiskScore is an independent risk-prediction signal, typically from
	// the threat-intelligence ledger.
	RiskScore int
}

// Queue is the pending-review backlog. In-memory state is authoritative;
// the Store copy is best effort.
type Queue struct {
	store  storage.Store
	clk    clock.Clock
	logger *slog.Logger

	mu    sync.RWMutex
	items map[uuid.UUID]*schema.QueueItem
}

// New creates a moderation queue backed by the given store.
func New(store storage.Store, clk clock.Clock, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	return &Queue{
		store:  store,
		clk:    clk,
		logger: logger,
		items:  make(map[uuid.UUID]*schema.QueueItem),
	}
}

// Enqueue creates a pending item. Priority and suggested action derive
// from the threat and risk signals; the larger of the two independent
// priority floors wins. Persistence failure is logged, never fatal.
func (q *Queue) Enqueue(ctx context.Context, in EnqueueInput) (*schema.QueueItem, error) {
	if in.ActionType == "" || !in.ActionType.IsValid() {
		return nil, fmt.Errorf("modqueue: invalid action type %q", in.ActionType)
	}

	item := &schema.QueueItem{
		ID:              uuid.New(),
		CommunityID:     in.CommunityID,
		SubjectID:       in.SubjectID,
		ActionType:      in.ActionType,
		Reason:          in.Reason,
		Priority:        priority(in),
		Context:         in.Context,
		SuggestedAction: suggestAction(in.ActionType, in.ThreatScore),
		CreatedAt:       q.clk.Now(),
	}

	q.mu.Lock()
	q.items[item.ID] = item
	q.mu.Unlock()

	if err := q.store.SaveQueueItem(ctx, item); err != nil {
		q.logger.Error("queue item persistence failed",
			"item_id", item.ID,
			"community_id", item.CommunityID,
			"error", err)
	}

	return item, nil
}

// priority computes the item's review priority. Threat and risk floors are
// independent; action bonuses apply after whichever floor won and may push
// the value past 100.
func priority(in EnqueueInput) int {
	p := 50

	switch {
	case in.ThreatScore >= 80:
		p = 90
	case in.ThreatScore >= 60:
		p = 70
	}

	switch {
	case in.RiskScore >= 70:
		if p < 75 {
			p = 75
		}
	case in.RiskScore >= 40:
		if p < 60 {
			p = 60
		}
	}

	switch in.ActionType {
	case schema.ActionBan:
		p += 10
	case schema.ActionKick:
		p += 5
	}

	return p
}

// suggestAction escalates the requested action when the threat score
// warrants more than the reporter asked for. Never de-escalates.
func suggestAction(requested schema.ActionType, threatScore int) schema.ActionType {
	if threatScore >= 80 && requested != schema.ActionBan {
		return schema.ActionBan
	}
	if threatScore >= 60 && requested == schema.ActionWarn {
		return schema.ActionKick
	}
	return requested
}

// Get returns a copy of an item by ID.
func (q *Queue) Get(id uuid.UUID) (*schema.QueueItem, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	item, ok := q.items[id]
	if !ok {
		return nil, ErrItemNotFound
	}
	cp := *item
	return &cp, nil
}

// Pending returns unprocessed items for a community, highest priority
// first. Ties break on creation time, oldest first.
func (q *Queue) Pending(communityID string) []*schema.QueueItem {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var out []*schema.QueueItem
	for _, item := range q.items {
		if item.CommunityID == communityID && !item.Processed() {
			cp := *item
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Process marks an item processed and appends the reviewer's decision to
// the moderation log. The transition is terminal.
func (q *Queue) Process(ctx context.Context, id uuid.UUID, reviewerID string, actionTaken schema.ActionType) error {
	if actionTaken == "" || !actionTaken.IsValid() {
		return fmt.Errorf("modqueue: invalid action type %q", actionTaken)
	}

	q.mu.Lock()
	item, ok := q.items[id]
	if !ok {
		q.mu.Unlock()
		return ErrItemNotFound
	}
	if item.Processed() {
		q.mu.Unlock()
		return ErrAlreadyProcessed
	}
	now := q.clk.Now()
	item.ProcessedAt = &now
	item.ProcessedBy = reviewerID
	cp := *item
	q.mu.Unlock()

	if err := q.store.SaveQueueItem(ctx, &cp); err != nil {
		q.logger.Error("processed item persistence failed", "item_id", id, "error", err)
	}

	rec := &schema.ActionRecord{
		CommunityID: cp.CommunityID,
		SubjectID:   cp.SubjectID,
		ActorID:     reviewerID,
		ActionType:  actionTaken,
		Reason:      fmt.Sprintf("queue review: %s", cp.Reason),
		CreatedAt:   now,
	}
	if err := q.store.RecordAction(ctx, rec); err != nil {
		q.logger.Error("moderation log write failed", "item_id", id, "error", err)
	}

	return nil
}
