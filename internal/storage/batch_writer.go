package storage

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"modsentry/internal/config"
	"modsentry/internal/schema"
)

// batchInserter is the sink a BatchWriter flushes to.
type batchInserter interface {
	InsertBatch(ctx context.Context, records []*schema.ActionRecord) error
}

// BatchWriter batches moderation action records before inserting them.
// Writes never block the detection path: a full or failing backend costs
// log lines and a failure counter, not events.
type BatchWriter struct {
	sink   batchInserter
	config config.BatchWriterConfig

	buffer []*schema.ActionRecord
	mu     sync.Mutex

	flushTimer *time.Timer
	closed     bool

	totalWritten uint64
	totalFailed  uint64
}

// NewBatchWriter creates a BatchWriter flushing to the given sink.
func NewBatchWriter(sink batchInserter, cfg config.BatchWriterConfig) *BatchWriter {
	bw := &BatchWriter{
		sink:   sink,
		config: cfg,
		buffer: make([]*schema.ActionRecord, 0, cfg.BatchSize),
	}
	bw.flushTimer = time.AfterFunc(cfg.FlushInterval, bw.timerFlush)
	return bw
}

// Write adds a record to the batch, flushing when the batch is full.
func (bw *BatchWriter) Write(rec *schema.ActionRecord) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return
	}

	bw.buffer = append(bw.buffer, rec)
	if len(bw.buffer) >= bw.config.BatchSize {
		bw.flushLocked()
	}
}

func (bw *BatchWriter) timerFlush() {
	bw.mu.Lock()
	if !bw.closed {
		bw.flushLocked()
		bw.flushTimer.Reset(bw.config.FlushInterval)
	}
	bw.mu.Unlock()
}

// flushLocked sends the current buffer with retries. Caller holds bw.mu.
func (bw *BatchWriter) flushLocked() {
	if len(bw.buffer) == 0 {
		return
	}

	batch := bw.buffer
	bw.buffer = make([]*schema.ActionRecord, 0, bw.config.BatchSize)

	var err error
	for attempt := 0; attempt <= bw.config.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(bw.config.RetryDelay)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err = bw.sink.InsertBatch(ctx, batch)
		cancel()

		if err == nil {
			atomic.AddUint64(&bw.totalWritten, uint64(len(batch)))
			return
		}
	}

	atomic.AddUint64(&bw.totalFailed, uint64(len(batch)))
	slog.Error("action log batch insert failed, dropping batch",
		"batch_size", len(batch),
		"retries", bw.config.MaxRetries,
		"error", err)
}

// Flush forces a flush of any buffered records.
func (bw *BatchWriter) Flush() {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.flushLocked()
}

// Close flushes remaining records and stops the timer.
func (bw *BatchWriter) Close() {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if bw.closed {
		return
	}
	bw.closed = true
	bw.flushTimer.Stop()
	bw.flushLocked()
}

// Stats returns written/failed counters.
func (bw *BatchWriter) Stats() (written, failed uint64) {
	return atomic.LoadUint64(&bw.totalWritten), atomic.LoadUint64(&bw.totalFailed)
}
