package storage

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/schema"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis, for multi-instance deployments
// where moderation state must survive process restarts.
type RedisStore struct {
	client *redis.Client
	clk    clock.Clock
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	opts := &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
	}

	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, wrap("Connect", cfg.Addr, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	return &RedisStore{client: client, clk: clock.Real()}, nil
}

func actionKey(communityID, subjectID string) string {
	return "act:" + communityID + ":" + subjectID
}

func warnKey(communityID, subjectID string) string {
	return "warn:" + communityID + ":" + subjectID
}

// RecordAction appends the action to the subject's sorted-by-time set and
// bumps the warning counter for warn actions.
func (r *RedisStore) RecordAction(ctx context.Context, rec *schema.ActionRecord) error {
	cp := *rec
	cp.ID = nextID(cp.ID)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = r.clk.Now()
	}

	data, err := json.Marshal(&cp)
	if err != nil {
		return wrap("RecordAction", cp.SubjectID, err)
	}

	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, actionKey(cp.CommunityID, cp.SubjectID), redis.Z{
		Score:  float64(cp.CreatedAt.UnixMilli()),
		Member: data,
	})
	if cp.ActionType == schema.ActionWarn {
		pipe.Incr(ctx, warnKey(cp.CommunityID, cp.SubjectID))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return wrap("RecordAction", cp.SubjectID, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return nil
}

// GetConfig reads the community's sensitivity settings.
func (r *RedisStore) GetConfig(ctx context.Context, communityID string) (*schema.SensitivitySettings, error) {
	data, err := r.client.Get(ctx, "cfg:"+communityID).Bytes()
	if err == redis.Nil {
		return nil, wrap("GetConfig", communityID, ErrNotFound)
	}
	if err != nil {
		return nil, wrap("GetConfig", communityID, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	var settings schema.SensitivitySettings
	if err := json.Unmarshal(data, &settings); err != nil {
		return nil, wrap("GetConfig", communityID, err)
	}
	return &settings, nil
}

// SetConfig stores community sensitivity settings.
func (r *RedisStore) SetConfig(ctx context.Context, communityID string, settings *schema.SensitivitySettings) error {
	if settings == nil || !settings.Valid() {
		return wrap("SetConfig", communityID, ErrInvalidData)
	}

	data, err := json.Marshal(settings)
	if err != nil {
		return wrap("SetConfig", communityID, err)
	}

	if err := r.client.Set(ctx, "cfg:"+communityID, data, 0).Err(); err != nil {
		return wrap("SetConfig", communityID, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return nil
}

// GetWarningCount reads the subject's warning counter.
func (r *RedisStore) GetWarningCount(ctx context.Context, communityID, subjectID string) (int, error) {
	n, err := r.client.Get(ctx, warnKey(communityID, subjectID)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, wrap("GetWarningCount", subjectID, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return n, nil
}

// GetRecentActionCount counts actions in the window via the time-scored set.
func (r *RedisStore) GetRecentActionCount(ctx context.Context, communityID, subjectID string, window time.Duration) (int, error) {
	cutoff := r.clk.Now().Add(-window).UnixMilli()

	n, err := r.client.ZCount(ctx, actionKey(communityID, subjectID),
		fmt.Sprintf("%d", cutoff), "+inf").Result()
	if err != nil {
		return 0, wrap("GetRecentActionCount", subjectID, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return int(n), nil
}

// SaveQueueItem stores a queue item by ID.
func (r *RedisStore) SaveQueueItem(ctx context.Context, item *schema.QueueItem) error {
	cp := *item
	cp.ID = nextID(cp.ID)

	data, err := json.Marshal(&cp)
	if err != nil {
		return wrap("SaveQueueItem", cp.ID.String(), err)
	}

	if err := r.client.Set(ctx, "qi:"+cp.ID.String(), data, 0).Err(); err != nil {
		return wrap("SaveQueueItem", cp.ID.String(), fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return nil
}

// SaveThreatReport stores a report in the subject's report hash.
func (r *RedisStore) SaveThreatReport(ctx context.Context, report *schema.ThreatReport) error {
	cp := *report
	cp.ID = nextID(cp.ID)

	data, err := json.Marshal(&cp)
	if err != nil {
		return wrap("SaveThreatReport", cp.ID.String(), err)
	}

	if err := r.client.HSet(ctx, "rep:"+cp.SubjectID, cp.ID.String(), data).Err(); err != nil {
		return wrap("SaveThreatReport", cp.ID.String(), fmt.Errorf("%w: %v", ErrUnavailable, err))
	}
	return nil
}

// ListThreatReports returns all reports for a subject.
func (r *RedisStore) ListThreatReports(ctx context.Context, subjectID string) ([]*schema.ThreatReport, error) {
	values, err := r.client.HVals(ctx, "rep:"+subjectID).Result()
	if err != nil {
		return nil, wrap("ListThreatReports", subjectID, fmt.Errorf("%w: %v", ErrUnavailable, err))
	}

	reports := make([]*schema.ThreatReport, 0, len(values))
	for _, v := range values {
		var rep schema.ThreatReport
		if err := json.Unmarshal([]byte(v), &rep); err != nil {
			continue // Skip corrupt entries rather than failing the read
		}
		reports = append(reports, &rep)
	}
	return reports, nil
}

// Close closes the Redis connection.
func (r *RedisStore) Close() error {
	return r.client.Close()
}
