package schema

import (
	"time"

	"github.com/google/uuid"
)

// ActionRecord is a single moderation action taken against a subject,
// appended to the moderation log.
type ActionRecord struct {
	ID          uuid.UUID     `json:"id"`
	CommunityID string        `json:"community_id"`
	SubjectID   string        `json:"subject_id"`
	ActorID     string        `json:"actor_id"` // Moderator or "auto"
	ActionType  ActionType    `json:"action_type"`
	Reason      string        `json:"reason"`
	Duration    time.Duration `json:"duration,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// QueueItem is a pending human-reviewable moderation suggestion.
type QueueItem struct {
	ID              uuid.UUID      `json:"id"`
	CommunityID     string         `json:"community_id"`
	SubjectID       string         `json:"subject_id"`
	ActionType      ActionType     `json:"action_type"`
	Reason          string         `json:"reason"`
	Priority        int            `json:"priority"`
	Context         map[string]any `json:"context,omitempty"`
	SuggestedAction ActionType     `json:"suggested_action"`
	CreatedAt       time.Time      `json:"created_at"`
	ProcessedAt     *time.Time     `json:"processed_at,omitempty"`
	ProcessedBy     string         `json:"processed_by,omitempty"`
}

// Processed reports whether the item has reached its terminal state.
func (q *QueueItem) Processed() bool {
	return q.ProcessedAt != nil
}

// ThreatReport is a cross-community record of reported misbehavior.
type ThreatReport struct {
	ID                uuid.UUID      `json:"id"`
	SubjectID         string         `json:"subject_id"`
	ThreatType        string         `json:"threat_type"`
	Severity          Severity       `json:"severity"`
	Verified          bool           `json:"verified"`
	SourceCommunityID string         `json:"source_community_id"`
	Data              map[string]any `json:"data,omitempty"`
	ReportedAt        time.Time      `json:"reported_at"`
}

// SensitivitySettings are the per-community tunable weights for threat
// intelligence risk scoring.
type SensitivitySettings struct {
	RiskThreshold    int              `json:"risk_threshold"`
	SeverityWeights  map[Severity]int `json:"severity_weights"`
	RecentMultiplier int              `json:"recent_multiplier"`
	RecentDays       int              `json:"recent_days"`
}

// Valid checks the settings for out-of-range values.
func (s *SensitivitySettings) Valid() bool {
	if s.RiskThreshold < 0 || s.RiskThreshold > 100 {
		return false
	}
	if s.RecentMultiplier < 0 || s.RecentDays < 0 {
		return false
	}
	for _, w := range s.SeverityWeights {
		if w < 0 {
			return false
		}
	}
	return true
}
