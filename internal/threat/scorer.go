// Package threat computes on-demand 0..100 threat assessments for subjects
// from static account signals and the subject's recent moderation record.
package threat

import (
	"regexp"
	"strconv"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/schema"
)

// Assessment is an ephemeral threat evaluation. Callers may log it but the
// engine never persists one.
type Assessment struct {
	Score             int               `json:"score"`
	Level             schema.Level      `json:"level"`
	RecommendedAction schema.ActionType `json:"recommended_action"`
	Signals           map[string]int    `json:"signals,omitempty"`
}

var (
	consecutiveDigits = regexp.MustCompile(`\d{4,}`)
	letterDigitsName  = regexp.MustCompile(`^[A-Za-z]+\d{3}$`)
)

// Scorer evaluates subjects. Stateless apart from the clock.
type Scorer struct {
	clk clock.Clock
}

// NewScorer creates a threat scorer.
func NewScorer(clk clock.Clock) *Scorer {
	return &Scorer{clk: clk}
}

// Assess combines account-age, naming, avatar, and history signals into a
// single clamped score with a recommended action. recentActions is the
// number of moderation actions against the subject in the last hour,
// warnings the subject's outstanding warning count, and heat the subject's
// current accumulated heat score.
func (s *Scorer) Assess(subject schema.Subject, recentActions, warnings int, heat float64) Assessment {
	signals := make(map[string]int)
	add := func(name string, v int) {
		if v != 0 {
			signals[name] += v
		}
	}

	if !subject.CreatedAt.IsZero() {
		switch age := subject.AccountAge(s.clk.Now()); {
		case age < 24*time.Hour:
			add("account_age", 30)
		case age < 7*24*time.Hour:
			add("account_age", 20)
		case age < 30*24*time.Hour:
			add("account_age", 10)
		}
	}

	if consecutiveDigits.MatchString(subject.Username) {
		add("username_digits", 15)
	}
	if letterDigitsName.MatchString(subject.Username) {
		add("username_pattern", 10)
	}
	if n := len([]rune(subject.Username)); n > 0 && n < 3 {
		add("username_short", 20)
	}

	if !subject.HasAvatar {
		add("no_avatar", 15)
	}
	if d, err := strconv.Atoi(subject.Discriminator); err == nil && d > 0 && d <= 100 {
		add("low_discriminator", 10)
	}

	add("recent_actions", 5*recentActions)
	add("warnings", 10*warnings)

	if heat > 0 {
		h := int(heat / 10)
		if h > 30 {
			h = 30
		}
		add("heat", h)
	}

	score := 0
	for _, v := range signals {
		score += v
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	level, action := classify(score)
	return Assessment{
		Score:             score,
		Level:             level,
		RecommendedAction: action,
		Signals:           signals,
	}
}

func classify(score int) (schema.Level, schema.ActionType) {
	switch {
	case score >= 80:
		return schema.LevelCritical, schema.ActionBan
	case score >= 60:
		return schema.LevelHigh, schema.ActionKick
	case score >= 40:
		return schema.LevelMedium, schema.ActionMute
	case score >= 20:
		return schema.LevelLow, schema.ActionWarn
	default:
		return schema.LevelSafe, schema.ActionNone
	}
}
