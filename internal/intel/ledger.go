// Package intel maintains the cross-community threat reputation ledger.
// Reports about a subject accumulate across communities; repeated
// independent reports verify each other, and a weighted risk score
// summarizes the subject's record against per-community sensitivity.
package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/schema"
	"modsentry/internal/storage"
)

// verifyWindow is how long a prior report of the same type stays eligible
// for dedup-and-verify instead of a fresh insert.
const verifyWindow = 24 * time.Hour

// CheckResult summarizes a subject's ledger standing.
type CheckResult struct {
	HasThreat     bool `json:"has_threat"`
	RiskScore     int  `json:"risk_score"`
	ThreatCount   int  `json:"threat_count"`
	VerifiedCount int  `json:"verified_count"`
	RecentCount   int  `json:"recent_count"`
}

// Ledger is the threat-intelligence service. All state lives in the Store;
// the ledger itself is stateless apart from defaults and the clock.
type Ledger struct {
	store    storage.Store
	clk      clock.Clock
	logger   *slog.Logger
	defaults schema.SensitivitySettings
}

// NewLedger creates a ledger with default sensitivity from cfg.
func NewLedger(store storage.Store, cfg config.IntelConfig, clk clock.Clock, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		clk:    clk,
		logger: logger,
		defaults: schema.SensitivitySettings{
			RiskThreshold: cfg.RiskThreshold,
			SeverityWeights: map[schema.Severity]int{
				schema.SeverityCritical: cfg.CriticalWeight,
				schema.SeverityHigh:     cfg.HighWeight,
				schema.SeverityMedium:   cfg.MediumWeight,
				schema.SeverityLow:      cfg.LowWeight,
			},
			RecentMultiplier: cfg.RecentMultiplier,
			RecentDays:       cfg.RecentDays,
		},
	}
}

// Report files a threat report. If a report of the same type exists for the
// subject within the verify window, that report is marked verified and its
// ID returned instead of inserting a duplicate.
func (l *Ledger) Report(ctx context.Context, subjectID, threatType string, severity schema.Severity, sourceCommunityID string, data map[string]any) (uuid.UUID, error) {
	if subjectID == "" || threatType == "" {
		return uuid.Nil, fmt.Errorf("intel: subject and threat type are required")
	}
	if !severity.IsValid() {
		return uuid.Nil, fmt.Errorf("intel: invalid severity %q", severity)
	}

	now := l.clk.Now()

	existing, err := l.store.ListThreatReports(ctx, subjectID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		// Lookup failure degrades to a fresh insert.
		l.logger.Error("report lookup failed", "subject_id", subjectID, "error", err)
	}

	for _, rep := range existing {
		if rep.ThreatType != threatType {
			continue
		}
		if now.Sub(rep.ReportedAt) > verifyWindow {
			continue
		}
		if !rep.Verified {
			rep.Verified = true
			if err := l.store.SaveThreatReport(ctx, rep); err != nil {
				return uuid.Nil, fmt.Errorf("intel: verify report: %w", err)
			}
			l.logger.Info("threat report verified",
				"report_id", rep.ID,
				"subject_id", subjectID,
				"threat_type", threatType,
				"verifying_community", sourceCommunityID)
		}
		return rep.ID, nil
	}

	rep := &schema.ThreatReport{
		ID:                uuid.New(),
		SubjectID:         subjectID,
		ThreatType:        threatType,
		Severity:          severity,
		SourceCommunityID: sourceCommunityID,
		Data:              data,
		ReportedAt:        now,
	}
	if err := l.store.SaveThreatReport(ctx, rep); err != nil {
		return uuid.Nil, fmt.Errorf("intel: save report: %w", err)
	}

	l.logger.Info("threat report filed",
		"report_id", rep.ID,
		"subject_id", subjectID,
		"threat_type", threatType,
		"severity", severity,
		"source_community", sourceCommunityID)
	return rep.ID, nil
}

// Check computes the subject's risk standing. Verified reports contribute
// their severity weight; reports within the recency window add the recent
// multiplier each. With a communityID, that community's sensitivity
// settings apply; otherwise, or when the lookup fails, defaults do.
func (l *Ledger) Check(ctx context.Context, subjectID, communityID string) (CheckResult, error) {
	settings := l.settingsFor(ctx, communityID)

	reports, err := l.store.ListThreatReports(ctx, subjectID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return CheckResult{}, nil
		}
		return CheckResult{}, fmt.Errorf("intel: list reports: %w", err)
	}

	now := l.clk.Now()
	recentCutoff := now.Add(-time.Duration(settings.RecentDays) * 24 * time.Hour)

	res := CheckResult{ThreatCount: len(reports)}
	score := 0
	for _, rep := range reports {
		if rep.Verified {
			res.VerifiedCount++
			score += settings.SeverityWeights[rep.Severity]
		}
		if rep.ReportedAt.After(recentCutoff) {
			res.RecentCount++
		}
	}
	score += settings.RecentMultiplier * res.RecentCount

	if score > 100 {
		score = 100
	}
	res.RiskScore = score
	res.HasThreat = score >= settings.RiskThreshold
	return res, nil
}

// settingsFor resolves sensitivity settings for a community, falling back
// to defaults when the community is unset, unconfigured, or the read fails.
func (l *Ledger) settingsFor(ctx context.Context, communityID string) schema.SensitivitySettings {
	if communityID == "" {
		return l.defaults
	}

	settings, err := l.store.GetConfig(ctx, communityID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			l.logger.Warn("sensitivity lookup failed, using defaults",
				"community_id", communityID, "error", err)
		}
		return l.defaults
	}
	if settings == nil || !settings.Valid() {
		return l.defaults
	}

	merged := *settings
	if merged.SeverityWeights == nil {
		merged.SeverityWeights = l.defaults.SeverityWeights
	}
	return merged
}
