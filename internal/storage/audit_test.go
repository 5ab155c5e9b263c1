package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/schema"
)

type capturePublisher struct {
	recs []*schema.ActionRecord
	err  error
}

func (c *capturePublisher) Publish(ctx context.Context, rec *schema.ActionRecord) error {
	if c.err != nil {
		return c.err
	}
	c.recs = append(c.recs, rec)
	return nil
}

func TestAuditStoreFansOut(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	inner := NewMemoryStoreWithClock(clk)
	pub := &capturePublisher{}
	store := NewAuditStore(inner, nil, pub, nil)

	rec := &schema.ActionRecord{
		CommunityID: "g1", SubjectID: "u1", ActorID: "auto",
		ActionType: schema.ActionTimeout, Reason: "test", CreatedAt: clk.Now(),
	}
	if err := store.RecordAction(context.Background(), rec); err != nil {
		t.Fatalf("record: %v", err)
	}

	n, _ := inner.GetRecentActionCount(context.Background(), "g1", "u1", time.Hour)
	if n != 1 {
		t.Errorf("inner store records = %d, want 1", n)
	}
	if len(pub.recs) != 1 {
		t.Errorf("published = %d, want 1", len(pub.recs))
	}
}

func TestAuditStorePublishFailureIsSoft(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	inner := NewMemoryStoreWithClock(clk)
	pub := &capturePublisher{err: errors.New("broker down")}
	store := NewAuditStore(inner, nil, pub, nil)

	rec := &schema.ActionRecord{
		CommunityID: "g1", SubjectID: "u1", ActorID: "auto",
		ActionType: schema.ActionWarn, Reason: "test", CreatedAt: clk.Now(),
	}
	if err := store.RecordAction(context.Background(), rec); err != nil {
		t.Errorf("publish failure surfaced: %v", err)
	}
}
