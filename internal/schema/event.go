// Package schema defines the canonical platform event model for modsentry.
// All inbound platform events are normalized to this structure before they
// reach the detection engine.
package schema

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of platform event.
type EventType string

const (
	EventMessage EventType = "message"
	EventJoin    EventType = "join"
	EventAction  EventType = "action"
)

// IsValid checks if the event type is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventMessage, EventJoin, EventAction:
		return true
	}
	return false
}

// Event is the canonical event the engine consumes.
type Event struct {
	// Required fields
	EventID     uuid.UUID `json:"event_id" validate:"required"`
	Type        EventType `json:"type" validate:"required,oneof=message join action"`
	Timestamp   time.Time `json:"timestamp" validate:"required"`
	CommunityID string    `json:"community_id" validate:"required,max=64"`
	Subject     Subject   `json:"subject" validate:"required"`

	// Payloads, one per type
	Message *Message `json:"message,omitempty"`

	// Internal fields (set by system)
	ReceivedAt time.Time `json:"received_at"`
}

// Subject is the user an event is about.
type Subject struct {
	ID            string    `json:"id" validate:"required,max=64"`
	Username      string    `json:"username" validate:"max=256"`
	Discriminator string    `json:"discriminator,omitempty" validate:"max=8"`
	CreatedAt     time.Time `json:"created_at"`
	HasAvatar     bool      `json:"has_avatar"`
	Bot           bool      `json:"bot"`
}

// AccountAge returns how old the subject's account is at the given instant.
func (s Subject) AccountAge(now time.Time) time.Duration {
	if s.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(s.CreatedAt)
}

// Message carries the message payload of a message event.
type Message struct {
	ChannelID        string   `json:"channel_id" validate:"required,max=64"`
	Content          string   `json:"content" validate:"max=65536"`
	Mentions         []string `json:"mentions,omitempty"`
	MentionsEveryone bool     `json:"mentions_everyone"`
	EmojiCount       int      `json:"emoji_count" validate:"min=0"`
	Attachments      int      `json:"attachments" validate:"min=0"`
	Links            []string `json:"links,omitempty"`

	// LastChannelActivity is when the channel last saw a message before
	// this one. Zero means unknown and is treated as active.
	LastChannelActivity time.Time `json:"last_channel_activity,omitempty"`
}

// ActionType is a punitive or advisory moderation action.
type ActionType string

const (
	ActionNone    ActionType = "none"
	ActionWarn    ActionType = "warn"
	ActionMute    ActionType = "mute"
	ActionTimeout ActionType = "timeout"
	ActionKick    ActionType = "kick"
	ActionBan     ActionType = "ban"
)

// IsValid checks if the action type is a known value.
func (a ActionType) IsValid() bool {
	switch a {
	case ActionNone, ActionWarn, ActionMute, ActionTimeout, ActionKick, ActionBan:
		return true
	}
	return false
}

// Level is the 5-tier risk classification shared by the threat scorer and
// the raid predictor.
type Level string

const (
	LevelSafe     Level = "safe"
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Severity is the severity attached to a threat report.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// IsValid checks if the severity is a known value.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}
