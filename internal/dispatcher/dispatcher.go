// Package dispatcher drains the event buffer into the detection engine.
// Events are partitioned across workers by a hash of (communityID,
// subjectID), so a single subject's events process in arrival order while
// distinct subjects run in parallel.
package dispatcher

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"modsentry/internal/config"
	"modsentry/internal/engine"
	"modsentry/internal/queue"
	"modsentry/internal/schema"
)

// sweepInterval is how often idle-record maintenance runs.
const sweepInterval = 5 * time.Minute

// scoreRetention is how long zero-score records linger before collection.
const scoreRetention = time.Hour

// Dispatcher routes buffered events to engine workers.
type Dispatcher struct {
	queue  *queue.RingBuffer
	engine *engine.Engine
	cfg    config.DispatcherConfig
	logger *slog.Logger

	lanes []chan *schema.Event
	wg    sync.WaitGroup
	done  chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a dispatcher over the given buffer and engine.
func New(q *queue.RingBuffer, eng *engine.Engine, cfg config.DispatcherConfig, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}

	lanes := make([]chan *schema.Event, cfg.Workers)
	for i := range lanes {
		lanes[i] = make(chan *schema.Event, 256)
	}

	return &Dispatcher{
		queue:  q,
		engine: eng,
		cfg:    cfg,
		logger: logger,
		lanes:  lanes,
		done:   make(chan struct{}),
	}
}

// Start launches the drain loop, the workers, and the maintenance ticker.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, lane := range d.lanes {
		d.wg.Add(1)
		go d.worker(ctx, i, lane)
	}

	d.wg.Add(1)
	go d.drain(ctx)

	d.wg.Add(1)
	go d.maintain(ctx)

	d.logger.Info("dispatcher started", "workers", d.cfg.Workers)
}

// drain pops from the buffer and routes each event to its subject's lane.
func (d *Dispatcher) drain(ctx context.Context) {
	defer d.wg.Done()
	defer func() {
		for _, lane := range d.lanes {
			close(lane)
		}
	}()

	for {
		event, err := d.queue.Pop()
		if err != nil {
			return
		}

		lane := d.lanes[laneFor(event.CommunityID, event.Subject.ID, len(d.lanes))]
		select {
		case lane <- event:
		case <-ctx.Done():
			return
		case <-d.done:
			return
		}
	}
}

// laneFor picks the worker lane for a subject. Same subject, same lane.
func laneFor(communityID, subjectID string, lanes int) int {
	h := fnv.New32a()
	h.Write([]byte(communityID))
	h.Write([]byte{':'})
	h.Write([]byte(subjectID))
	return int(h.Sum32() % uint32(lanes))
}

// worker processes one lane's events through the engine.
func (d *Dispatcher) worker(ctx context.Context, id int, lane <-chan *schema.Event) {
	defer d.wg.Done()

	for event := range lane {
		if err := d.handle(ctx, event); err != nil {
			d.failed.Add(1)
			d.logger.Error("event handling failed",
				"worker_id", id,
				"event_id", event.EventID,
				"type", event.Type,
				"error", err)
			continue
		}
		d.processed.Add(1)
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *schema.Event) error {
	switch event.Type {
	case schema.EventMessage:
		_, err := d.engine.HandleMessage(ctx, event)
		return err
	case schema.EventJoin:
		_, err := d.engine.HandleJoin(ctx, event)
		return err
	default:
		d.logger.Debug("ignoring event type", "type", event.Type)
		return nil
	}
}

// maintain periodically sweeps idle detection state.
func (d *Dispatcher) maintain(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.done:
			return
		case <-ticker.C:
			d.engine.Sweep(scoreRetention)
		}
	}
}

// Stop closes the buffer, waits for in-flight events, and gives up after
// the configured shutdown window.
func (d *Dispatcher) Stop() {
	d.queue.Close()
	close(d.done)

	finished := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		d.logger.Info("dispatcher stopped",
			"processed", d.processed.Load(),
			"failed", d.failed.Load())
	case <-time.After(d.cfg.ShutdownWait):
		d.logger.Warn("dispatcher shutdown timed out")
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Processed: d.processed.Load(),
		Failed:    d.failed.Load(),
	}
}
