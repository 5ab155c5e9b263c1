package queue

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"modsentry/internal/schema"
)

func testEvent(id string) *schema.Event {
	return &schema.Event{
		EventID:     uuid.New(),
		Type:        schema.EventMessage,
		CommunityID: "g1",
		Subject:     schema.Subject{ID: id},
	}
}

func TestPushPopOrder(t *testing.T) {
	rb := NewRingBuffer(8)

	for i := 0; i < 5; i++ {
		if err := rb.Push(testEvent(fmt.Sprintf("u%d", i))); err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
	}
	if rb.Len() != 5 {
		t.Fatalf("len = %d, want 5", rb.Len())
	}

	for i := 0; i < 5; i++ {
		ev, ok := rb.TryPop()
		if !ok {
			t.Fatalf("pop %d: empty", i)
		}
		if want := fmt.Sprintf("u%d", i); ev.Subject.ID != want {
			t.Errorf("pop %d = %s, want %s", i, ev.Subject.ID, want)
		}
	}
	if _, ok := rb.TryPop(); ok {
		t.Error("pop from empty buffer succeeded")
	}
}

func TestOverflowDropsOldest(t *testing.T) {
	rb := NewRingBuffer(3)

	for i := 0; i < 5; i++ {
		rb.Push(testEvent(fmt.Sprintf("u%d", i)))
	}

	stats := rb.Stats()
	if stats.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", stats.Dropped)
	}

	// Oldest two were evicted; u2..u4 survive in order.
	for i := 2; i < 5; i++ {
		ev, ok := rb.TryPop()
		if !ok {
			t.Fatalf("pop: empty")
		}
		if want := fmt.Sprintf("u%d", i); ev.Subject.ID != want {
			t.Errorf("pop = %s, want %s", ev.Subject.ID, want)
		}
	}
}

func TestCloseDrains(t *testing.T) {
	rb := NewRingBuffer(4)
	rb.Push(testEvent("u1"))
	rb.Close()

	if err := rb.Push(testEvent("u2")); !errors.Is(err, ErrClosed) {
		t.Errorf("push after close = %v, want ErrClosed", err)
	}

	ev, err := rb.Pop()
	if err != nil || ev.Subject.ID != "u1" {
		t.Errorf("pop after close = %v/%v, want buffered event", ev, err)
	}
	if _, err := rb.Pop(); !errors.Is(err, ErrClosed) {
		t.Errorf("pop drained closed buffer = %v, want ErrClosed", err)
	}
}

func TestConcurrentProducersConsumers(t *testing.T) {
	rb := NewRingBuffer(1024)
	const producers = 4
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				rb.Push(testEvent(fmt.Sprintf("p%d-%d", p, i)))
			}
		}(p)
	}

	var popped sync.WaitGroup
	var count int
	var mu sync.Mutex
	for c := 0; c < 2; c++ {
		popped.Add(1)
		go func() {
			defer popped.Done()
			for {
				if _, err := rb.Pop(); err != nil {
					return
				}
				mu.Lock()
				count++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	rb.Close()
	popped.Wait()

	if count != producers*perProducer {
		t.Errorf("consumed %d events, want %d", count, producers*perProducer)
	}
}
