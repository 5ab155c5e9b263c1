package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"modsentry/internal/config"
	"modsentry/internal/schema"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// actionLogDDL creates the append-only moderation action log.
const actionLogDDL = `
CREATE TABLE IF NOT EXISTS moderation_actions (
    id           UUID,
    community_id String,
    subject_id   String,
    actor_id     String,
    action_type  LowCardinality(String),
    reason       String,
    duration_ms  Int64,
    created_at   DateTime64(3)
)
ENGINE = MergeTree()
PARTITION BY toYYYYMM(created_at)
ORDER BY (community_id, subject_id, created_at)
TTL toDateTime(created_at) + INTERVAL 90 DAY
`

// ActionLog is the ClickHouse-backed audit trail of moderation actions.
// It is append-only; archival and trimming are handled by table TTL.
type ActionLog struct {
	conn   driver.Conn
	config config.ClickHouseConfig
}

// NewActionLog connects to ClickHouse and ensures the action table exists.
func NewActionLog(cfg config.ClickHouseConfig) (*ActionLog, error) {
	opts := &clickhouse.Options{
		Addr: cfg.Hosts,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionZSTD,
		},
		DialTimeout:     cfg.DialTimeout,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}

	if cfg.TLSEnabled {
		opts.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, wrap("Open", "", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, wrap("Ping", "", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	if err := conn.Exec(ctx, actionLogDDL); err != nil {
		return nil, wrap("Migrate", "moderation_actions", err)
	}

	return &ActionLog{conn: conn, config: cfg}, nil
}

// InsertBatch writes a batch of action records.
func (l *ActionLog) InsertBatch(ctx context.Context, records []*schema.ActionRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := l.conn.PrepareBatch(ctx, "INSERT INTO moderation_actions")
	if err != nil {
		return wrap("PrepareBatch", "moderation_actions", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	for _, rec := range records {
		err := batch.Append(
			rec.ID,
			rec.CommunityID,
			rec.SubjectID,
			rec.ActorID,
			string(rec.ActionType),
			rec.Reason,
			rec.Duration.Milliseconds(),
			rec.CreatedAt,
		)
		if err != nil {
			return wrap("Append", "moderation_actions", err)
		}
	}

	if err := batch.Send(); err != nil {
		return wrap("Send", "moderation_actions", fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return nil
}

// Close closes the connection.
func (l *ActionLog) Close() error {
	return l.conn.Close()
}
