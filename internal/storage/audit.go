package storage

import (
	"context"
	"log/slog"

	"modsentry/internal/schema"
)

// ActionPublisher receives decided actions for downstream consumers.
type ActionPublisher interface {
	Publish(ctx context.Context, rec *schema.ActionRecord) error
}

// AuditStore decorates a Store so every recorded action also lands in the
// append-only audit log and, when configured, on the actions topic. The
// wrapped Store stays authoritative; audit sinks are best effort.
type AuditStore struct {
	Store

	writer    *BatchWriter
	publisher ActionPublisher
	logger    *slog.Logger
}

// NewAuditStore wraps inner with audit sinks. Either sink may be nil.
func NewAuditStore(inner Store, writer *BatchWriter, publisher ActionPublisher, logger *slog.Logger) *AuditStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditStore{
		Store:     inner,
		writer:    writer,
		publisher: publisher,
		logger:    logger,
	}
}

// RecordAction writes through to the inner store and fans out to the audit
// sinks. The inner store's error is the only one returned.
func (a *AuditStore) RecordAction(ctx context.Context, rec *schema.ActionRecord) error {
	err := a.Store.RecordAction(ctx, rec)

	if a.writer != nil {
		a.writer.Write(rec)
	}
	if a.publisher != nil {
		if pubErr := a.publisher.Publish(ctx, rec); pubErr != nil {
			a.logger.Warn("action publish failed",
				"community_id", rec.CommunityID,
				"subject_id", rec.SubjectID,
				"error", pubErr)
		}
	}

	return err
}
