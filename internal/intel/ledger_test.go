package intel

import (
	"context"
	"testing"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/schema"
	"modsentry/internal/storage"
)

func newTestLedger(t *testing.T) (*Ledger, *storage.MemoryStore, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStoreWithClock(clk)
	return NewLedger(store, config.DefaultIntelConfig(), clk, nil), store, clk
}

func TestReportDedupAndVerify(t *testing.T) {
	l, store, clk := newTestLedger(t)
	ctx := context.Background()

	first, err := l.Report(ctx, "u1", "scam", schema.SeverityHigh, "g1", nil)
	if err != nil {
		t.Fatalf("first report: %v", err)
	}

	// Same subject and type inside the window: verify, don't duplicate.
	clk.Advance(2 * time.Hour)
	second, err := l.Report(ctx, "u1", "scam", schema.SeverityHigh, "g2", nil)
	if err != nil {
		t.Fatalf("second report: %v", err)
	}
	if second != first {
		t.Errorf("second report created new id %v, want %v", second, first)
	}

	reports, _ := store.ListThreatReports(ctx, "u1")
	if len(reports) != 1 {
		t.Fatalf("stored reports = %d, want 1", len(reports))
	}
	if !reports[0].Verified {
		t.Error("report not verified after duplicate")
	}

	// A different type is a separate report.
	third, err := l.Report(ctx, "u1", "raid", schema.SeverityCritical, "g3", nil)
	if err != nil {
		t.Fatalf("third report: %v", err)
	}
	if third == first {
		t.Error("different threat type deduplicated")
	}

	// Past the window a new report is filed even for the same type.
	clk.Advance(25 * time.Hour)
	fourth, err := l.Report(ctx, "u1", "scam", schema.SeverityHigh, "g4", nil)
	if err != nil {
		t.Fatalf("fourth report: %v", err)
	}
	if fourth == first {
		t.Error("stale report deduplicated past the verify window")
	}
}

func TestReportValidation(t *testing.T) {
	l, _, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := l.Report(ctx, "", "scam", schema.SeverityLow, "g1", nil); err == nil {
		t.Error("empty subject accepted")
	}
	if _, err := l.Report(ctx, "u1", "", schema.SeverityLow, "g1", nil); err == nil {
		t.Error("empty threat type accepted")
	}
	if _, err := l.Report(ctx, "u1", "scam", "apocalyptic", "g1", nil); err == nil {
		t.Error("invalid severity accepted")
	}
}

func TestCheckRiskScore(t *testing.T) {
	l, _, clk := newTestLedger(t)
	ctx := context.Background()

	res, err := l.Check(ctx, "clean", "")
	if err != nil {
		t.Fatalf("check clean: %v", err)
	}
	if res.HasThreat || res.RiskScore != 0 {
		t.Errorf("clean subject = %+v", res)
	}

	// One verified high report plus two recent reports.
	l.Report(ctx, "u1", "scam", schema.SeverityHigh, "g1", nil)
	clk.Advance(time.Hour)
	l.Report(ctx, "u1", "scam", schema.SeverityHigh, "g2", nil) // verifies
	l.Report(ctx, "u1", "spam", schema.SeverityLow, "g1", nil)

	res, err = l.Check(ctx, "u1", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	// Verified high = 30, recent count 2 at multiplier 5 = 10.
	if res.RiskScore != 40 {
		t.Errorf("risk score = %d, want 40 (%+v)", res.RiskScore, res)
	}
	if !res.HasThreat {
		t.Error("risk 40 not flagged at threshold 30")
	}
	if res.ThreatCount != 2 || res.VerifiedCount != 1 || res.RecentCount != 2 {
		t.Errorf("counts = %+v", res)
	}

	// Recency decays out after the window.
	clk.Advance(8 * 24 * time.Hour)
	res, err = l.Check(ctx, "u1", "")
	if err != nil {
		t.Fatalf("check after decay: %v", err)
	}
	if res.RiskScore != 30 {
		t.Errorf("aged risk score = %d, want 30", res.RiskScore)
	}
	if res.RecentCount != 0 {
		t.Errorf("recent count = %d, want 0", res.RecentCount)
	}
}

func TestCheckScoreClamped(t *testing.T) {
	l, _, clk := newTestLedger(t)
	ctx := context.Background()

	// Many verified criticals blow past 100 before the clamp.
	for i := 0; i < 5; i++ {
		name := string(rune('a' + i))
		l.Report(ctx, "u1", name, schema.SeverityCritical, "g1", nil)
		clk.Advance(time.Minute)
		l.Report(ctx, "u1", name, schema.SeverityCritical, "g2", nil)
	}

	res, err := l.Check(ctx, "u1", "")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.RiskScore != 100 {
		t.Errorf("risk score = %d, want clamped 100", res.RiskScore)
	}
}

func TestCheckCommunitySensitivity(t *testing.T) {
	l, store, clk := newTestLedger(t)
	ctx := context.Background()

	l.Report(ctx, "u1", "scam", schema.SeverityMedium, "g1", nil)
	clk.Advance(time.Hour)
	l.Report(ctx, "u1", "scam", schema.SeverityMedium, "g2", nil) // verifies

	// Defaults: verified medium 20 + recent 1*5 = 25 < threshold 30.
	res, _ := l.Check(ctx, "u1", "")
	if res.HasThreat {
		t.Errorf("default sensitivity flagged risk %d", res.RiskScore)
	}

	// A paranoid community lowers the threshold.
	err := store.SetConfig(ctx, "gstrict", &schema.SensitivitySettings{
		RiskThreshold: 20,
		SeverityWeights: map[schema.Severity]int{
			schema.SeverityCritical: 40, schema.SeverityHigh: 30,
			schema.SeverityMedium: 20, schema.SeverityLow: 10,
		},
		RecentMultiplier: 5,
		RecentDays:       7,
	})
	if err != nil {
		t.Fatalf("set config: %v", err)
	}

	res, _ = l.Check(ctx, "u1", "gstrict")
	if !res.HasThreat {
		t.Errorf("strict community did not flag risk %d", res.RiskScore)
	}

	// Unconfigured communities fall back to defaults.
	res, _ = l.Check(ctx, "u1", "gother")
	if res.HasThreat {
		t.Errorf("unconfigured community flagged risk %d", res.RiskScore)
	}
}
