// Package executor defines the boundary to the platform that actually
// applies punishments. The engine decides, the executor acts.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"modsentry/internal/schema"
)

// Executor applies engine-decided punishments on the platform. Queue items
// never reach an executor without human confirmation.
type Executor interface {
	Ban(ctx context.Context, communityID string, subject schema.Subject, reason string, purgeMessages bool) error
	Kick(ctx context.Context, communityID string, subject schema.Subject, reason string) error
	Timeout(ctx context.Context, communityID string, subject schema.Subject, d time.Duration, reason string) error
}

// ExecFailure reports a failed platform call. The engine's in-memory state
// is already updated by the time an executor runs; failures are logged and
// surfaced, never rolled back.
type ExecFailure struct {
	Action      schema.ActionType
	CommunityID string
	SubjectID   string
	Err         error
}

func (e *ExecFailure) Error() string {
	return fmt.Sprintf("executor: %s %s/%s: %v", e.Action, e.CommunityID, e.SubjectID, e.Err)
}

func (e *ExecFailure) Unwrap() error {
	return e.Err
}

// LogExecutor satisfies Executor by logging each action without touching
// any platform. Useful as a default and in dry-run deployments.
type LogExecutor struct {
	logger *slog.Logger
}

// NewLogExecutor creates a logging executor.
func NewLogExecutor(logger *slog.Logger) *LogExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExecutor{logger: logger}
}

func (l *LogExecutor) Ban(ctx context.Context, communityID string, subject schema.Subject, reason string, purgeMessages bool) error {
	l.logger.Info("executor ban",
		"community_id", communityID,
		"subject_id", subject.ID,
		"reason", reason,
		"purge_messages", purgeMessages)
	return nil
}

func (l *LogExecutor) Kick(ctx context.Context, communityID string, subject schema.Subject, reason string) error {
	l.logger.Info("executor kick",
		"community_id", communityID,
		"subject_id", subject.ID,
		"reason", reason)
	return nil
}

func (l *LogExecutor) Timeout(ctx context.Context, communityID string, subject schema.Subject, d time.Duration, reason string) error {
	l.logger.Info("executor timeout",
		"community_id", communityID,
		"subject_id", subject.ID,
		"duration", d,
		"reason", reason)
	return nil
}
