// Package raid detects coordinated join waves from short-window join
// cohorts. Four independent patterns contribute weighted shares to a
// 0..100 score; detection is advisory and never punishes on its own.
package raid

import (
	"sync"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/schema"
	"modsentry/internal/similarity"
)

// Pattern names a detected raid signature.
type Pattern string

const (
	PatternMassJoin     Pattern = "massJoin"
	PatternNewAccounts  Pattern = "newAccounts"
	PatternNoAvatars    Pattern = "noAvatars"
	PatternSimilarNames Pattern = "similarNames"
)

// Assessment is the outcome of one raid prediction over a join cohort.
// MemberIDs lists every subject in the evaluated cohort so callers can act
// on the whole wave, not just the join that crossed a level.
type Assessment struct {
	Score            int          `json:"score"`
	Level            schema.Level `json:"level"`
	DetectedPatterns []Pattern    `json:"detected_patterns"`
	Recommendations  []string     `json:"recommendations"`
	CohortSize       int          `json:"cohort_size"`
	MemberIDs        []string     `json:"member_ids"`
}

type join struct {
	subject schema.Subject
	at      time.Time
}

// Predictor buffers recent joins per community and evaluates them for raid
// signatures. Safe for concurrent use.
type Predictor struct {
	cfg config.RaidConfig
	clk clock.Clock

	mu      sync.Mutex
	cohorts map[string][]join
}

// NewPredictor creates a raid predictor.
func NewPredictor(cfg config.RaidConfig, clk clock.Clock) *Predictor {
	return &Predictor{
		cfg:     cfg,
		clk:     clk,
		cohorts: make(map[string][]join),
	}
}

// RecordJoin adds a join to the community's cohort buffer and returns the
// assessment over the current window. Old entries are pruned; the buffer
// never exceeds the configured maximum.
func (p *Predictor) RecordJoin(communityID string, subject schema.Subject) Assessment {
	now := p.clk.Now()

	p.mu.Lock()
	cohort := append(p.pruneLocked(communityID, now), join{subject: subject, at: now})
	if len(cohort) > p.cfg.MaxCohort {
		cohort = cohort[len(cohort)-p.cfg.MaxCohort:]
	}
	p.cohorts[communityID] = cohort
	subjects := make([]schema.Subject, len(cohort))
	for i, j := range cohort {
		subjects[i] = j.subject
	}
	p.mu.Unlock()

	return p.Predict(subjects)
}

// CohortSize returns the community's current in-window cohort size.
func (p *Predictor) CohortSize(communityID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cohort := p.pruneLocked(communityID, p.clk.Now())
	p.cohorts[communityID] = cohort
	return len(cohort)
}

// pruneLocked drops cohort entries outside the sliding window. Caller holds
// the mutex.
func (p *Predictor) pruneLocked(communityID string, now time.Time) []join {
	cohort := p.cohorts[communityID]
	cutoff := now.Add(-p.cfg.Window)
	i := 0
	for i < len(cohort) && cohort[i].at.Before(cutoff) {
		i++
	}
	return cohort[i:]
}

// Predict evaluates a join cohort for raid signatures.
func (p *Predictor) Predict(cohort []schema.Subject) Assessment {
	if len(cohort) == 0 {
		return Assessment{Level: schema.LevelSafe, DetectedPatterns: []Pattern{}, Recommendations: []string{}, MemberIDs: []string{}}
	}

	now := p.clk.Now()
	score := 0.0
	patterns := []Pattern{}

	if len(cohort) >= p.cfg.MassJoinCount {
		score += p.cfg.MassJoinWeight * 100
		patterns = append(patterns, PatternMassJoin)
	}

	newAccounts := 0
	noAvatars := 0
	for _, s := range cohort {
		if !s.CreatedAt.IsZero() && s.AccountAge(now) < p.cfg.NewAccountAge {
			newAccounts++
		}
		if !s.HasAvatar {
			noAvatars++
		}
	}
	n := float64(len(cohort))
	if float64(newAccounts)/n >= p.cfg.NewAccountRatio {
		score += p.cfg.NewAccountWeight * 100
		patterns = append(patterns, PatternNewAccounts)
	}
	if float64(noAvatars)/n >= p.cfg.NoAvatarRatio {
		score += p.cfg.NoAvatarWeight * 100
		patterns = append(patterns, PatternNoAvatars)
	}

	if p.similarNameRatio(cohort) >= p.cfg.SimilarPairRatio {
		score += p.cfg.SimilarWeight * 100
		patterns = append(patterns, PatternSimilarNames)
	}

	final := int(score)
	if final > 100 {
		final = 100
	}

	members := make([]string, len(cohort))
	for i, s := range cohort {
		members[i] = s.ID
	}

	level := classify(final)
	return Assessment{
		Score:            final,
		Level:            level,
		DetectedPatterns: patterns,
		Recommendations:  recommendations(level, patterns),
		CohortSize:       len(cohort),
		MemberIDs:        members,
	}
}

// similarNameRatio counts username pairs above the similarity cutoff,
// normalized by cohort size.
func (p *Predictor) similarNameRatio(cohort []schema.Subject) float64 {
	if len(cohort) < 2 {
		return 0
	}
	pairs := 0
	for i := 0; i < len(cohort); i++ {
		for j := i + 1; j < len(cohort); j++ {
			if similarity.Levenshtein(cohort[i].Username, cohort[j].Username) > p.cfg.NameSimilarity {
				pairs++
			}
		}
	}
	return float64(pairs) / float64(len(cohort))
}

func classify(score int) schema.Level {
	switch {
	case score >= 70:
		return schema.LevelCritical
	case score >= 50:
		return schema.LevelHigh
	case score >= 30:
		return schema.LevelMedium
	case score >= 10:
		return schema.LevelLow
	default:
		return schema.LevelSafe
	}
}

// recommendations builds the ordered advisory list for a detection result.
func recommendations(level schema.Level, patterns []Pattern) []string {
	recs := []string{}

	switch level {
	case schema.LevelCritical:
		recs = append(recs,
			"enable lockdown",
			"notify moderators immediately",
			"review recent joins for removal")
	case schema.LevelHigh:
		recs = append(recs,
			"notify moderators",
			"raise join verification level")
	case schema.LevelMedium:
		recs = append(recs, "watch join activity closely")
	}

	for _, pat := range patterns {
		switch pat {
		case PatternNewAccounts:
			recs = append(recs, "enable account-age verification")
		case PatternNoAvatars:
			recs = append(recs, "require avatar or phone verification")
		case PatternSimilarNames:
			recs = append(recs, "review accounts with near-identical usernames")
		case PatternMassJoin:
			recs = append(recs, "temporarily rate-limit new joins")
		}
	}

	return recs
}
