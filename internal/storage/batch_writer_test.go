package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"modsentry/internal/config"
	"modsentry/internal/schema"

	"github.com/google/uuid"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]*schema.ActionRecord
	fail    bool
}

func (f *fakeSink) InsertBatch(ctx context.Context, records []*schema.ActionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("sink down")
	}
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeSink) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func testRecord() *schema.ActionRecord {
	return &schema.ActionRecord{
		ID:          uuid.New(),
		CommunityID: "g1",
		SubjectID:   "u1",
		ActorID:     "auto",
		ActionType:  schema.ActionTimeout,
		CreatedAt:   time.Now(),
	}
}

func TestBatchWriter_FlushesAtBatchSize(t *testing.T) {
	sink := &fakeSink{}
	bw := NewBatchWriter(sink, config.BatchWriterConfig{
		BatchSize:     3,
		FlushInterval: time.Hour, // Timer must not fire during the test
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	})
	defer bw.Close()

	bw.Write(testRecord())
	bw.Write(testRecord())
	if sink.batchCount() != 0 {
		t.Fatal("flushed before batch size reached")
	}

	bw.Write(testRecord())
	if sink.batchCount() != 1 {
		t.Fatalf("batch count = %d, want 1", sink.batchCount())
	}

	written, failed := bw.Stats()
	if written != 3 || failed != 0 {
		t.Errorf("stats = %d written, %d failed; want 3, 0", written, failed)
	}
}

func TestBatchWriter_CloseFlushesRemainder(t *testing.T) {
	sink := &fakeSink{}
	bw := NewBatchWriter(sink, config.BatchWriterConfig{
		BatchSize:     100,
		FlushInterval: time.Hour,
		MaxRetries:    0,
		RetryDelay:    time.Millisecond,
	})

	bw.Write(testRecord())
	bw.Close()

	if sink.batchCount() != 1 {
		t.Fatalf("batch count after close = %d, want 1", sink.batchCount())
	}

	// Writes after close are dropped silently.
	bw.Write(testRecord())
	if sink.batchCount() != 1 {
		t.Error("write after close reached sink")
	}
}

func TestBatchWriter_FailureCountsNotBlocks(t *testing.T) {
	sink := &fakeSink{fail: true}
	bw := NewBatchWriter(sink, config.BatchWriterConfig{
		BatchSize:     1,
		FlushInterval: time.Hour,
		MaxRetries:    1,
		RetryDelay:    time.Millisecond,
	})
	defer bw.Close()

	bw.Write(testRecord())

	written, failed := bw.Stats()
	if written != 0 || failed != 1 {
		t.Errorf("stats = %d written, %d failed; want 0, 1", written, failed)
	}
}
