package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/schema"
)

func TestMemoryStore_ActionsAndWarnings(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	store := NewMemoryStoreWithClock(clk)
	ctx := context.Background()

	for _, at := range []schema.ActionType{schema.ActionWarn, schema.ActionWarn, schema.ActionTimeout} {
		err := store.RecordAction(ctx, &schema.ActionRecord{
			CommunityID: "g1",
			SubjectID:   "u1",
			ActorID:     "auto",
			ActionType:  at,
			Reason:      "test",
		})
		if err != nil {
			t.Fatalf("RecordAction: %v", err)
		}
	}

	warns, err := store.GetWarningCount(ctx, "g1", "u1")
	if err != nil || warns != 2 {
		t.Errorf("GetWarningCount = %d, %v; want 2, nil", warns, err)
	}

	recent, err := store.GetRecentActionCount(ctx, "g1", "u1", time.Hour)
	if err != nil || recent != 3 {
		t.Errorf("GetRecentActionCount = %d, %v; want 3, nil", recent, err)
	}

	// Advance past the window; nothing is recent anymore.
	clk.Advance(2 * time.Hour)
	recent, err = store.GetRecentActionCount(ctx, "g1", "u1", time.Hour)
	if err != nil || recent != 0 {
		t.Errorf("GetRecentActionCount after window = %d, %v; want 0, nil", recent, err)
	}

	// Different subject is isolated.
	warns, _ = store.GetWarningCount(ctx, "g1", "u2")
	if warns != 0 {
		t.Errorf("warning count leaked across subjects: %d", warns)
	}
}

func TestMemoryStore_Config(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.GetConfig(ctx, "g1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetConfig on empty store: err = %v, want ErrNotFound", err)
	}

	settings := &schema.SensitivitySettings{
		RiskThreshold: 40,
		SeverityWeights: map[schema.Severity]int{
			schema.SeverityCritical: 50,
		},
		RecentMultiplier: 5,
		RecentDays:       7,
	}
	if err := store.SetConfig(ctx, "g1", settings); err != nil {
		t.Fatalf("SetConfig: %v", err)
	}

	got, err := store.GetConfig(ctx, "g1")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if got.RiskThreshold != 40 {
		t.Errorf("RiskThreshold = %d, want 40", got.RiskThreshold)
	}

	// Out-of-range settings are rejected, not clamped.
	bad := &schema.SensitivitySettings{RiskThreshold: -1}
	if err := store.SetConfig(ctx, "g1", bad); !errors.Is(err, ErrInvalidData) {
		t.Errorf("SetConfig with negative threshold: err = %v, want ErrInvalidData", err)
	}
}

func TestMemoryStore_ThreatReports(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	rep := &schema.ThreatReport{
		SubjectID:         "u1",
		ThreatType:        "raid",
		Severity:          schema.SeverityHigh,
		SourceCommunityID: "g1",
		ReportedAt:        time.Now(),
	}
	if err := store.SaveThreatReport(ctx, rep); err != nil {
		t.Fatalf("SaveThreatReport: %v", err)
	}

	reports, err := store.ListThreatReports(ctx, "u1")
	if err != nil || len(reports) != 1 {
		t.Fatalf("ListThreatReports = %d reports, %v; want 1, nil", len(reports), err)
	}

	// Saving with the same ID updates in place.
	update := *reports[0]
	update.Verified = true
	if err := store.SaveThreatReport(ctx, &update); err != nil {
		t.Fatalf("SaveThreatReport update: %v", err)
	}

	reports, _ = store.ListThreatReports(ctx, "u1")
	if len(reports) != 1 || !reports[0].Verified {
		t.Errorf("update did not replace report: %d reports, verified=%v", len(reports), reports[0].Verified)
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	store := NewMemoryStore()
	store.Close()

	err := store.RecordAction(context.Background(), &schema.ActionRecord{
		CommunityID: "g1", SubjectID: "u1", ActionType: schema.ActionWarn,
	})
	if !errors.Is(err, ErrClosed) {
		t.Errorf("RecordAction after close: err = %v, want ErrClosed", err)
	}
}
