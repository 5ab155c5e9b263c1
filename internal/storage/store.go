package storage

import (
	"context"
	"time"

	"modsentry/internal/schema"

	"github.com/google/uuid"
)

// Store is the persistence boundary the detection core depends on. Every
// call is fallible; the engine continues on cached in-memory values when a
// read fails and never rolls back in-memory state when a write fails.
type Store interface {
	// RecordAction appends a moderation action to the subject's record.
	RecordAction(ctx context.Context, rec *schema.ActionRecord) error

	// GetConfig returns per-community sensitivity settings, or ErrNotFound
	// when the community has never been configured.
	GetConfig(ctx context.Context, communityID string) (*schema.SensitivitySettings, error)

	// SetConfig stores per-community sensitivity settings. Invalid settings
	// are rejected with ErrInvalidData.
	SetConfig(ctx context.Context, communityID string, settings *schema.SensitivitySettings) error

	// GetWarningCount returns the number of warnings on record for a subject.
	GetWarningCount(ctx context.Context, communityID, subjectID string) (int, error)

	// GetRecentActionCount returns how many moderation actions were recorded
	// against the subject within the given window.
	GetRecentActionCount(ctx context.Context, communityID, subjectID string, window time.Duration) (int, error)

	// SaveQueueItem inserts or updates a moderation queue item.
	SaveQueueItem(ctx context.Context, item *schema.QueueItem) error

	// SaveThreatReport inserts or updates a threat report by ID.
	SaveThreatReport(ctx context.Context, report *schema.ThreatReport) error

	// ListThreatReports returns all reports on file for a subject.
	ListThreatReports(ctx context.Context, subjectID string) ([]*schema.ThreatReport, error)

	// Close releases backend resources.
	Close() error
}

// nextID is a helper for implementations that assign IDs on save.
func nextID(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}
