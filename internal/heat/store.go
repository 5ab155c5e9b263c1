// Package heat implements per-subject decaying heat scores and the
// message-heat engine that feeds them.
package heat

import (
	"sync"
	"time"

	"modsentry/internal/clock"
)

const (
	// historyLimit bounds the per-record heat history.
	historyLimit = 50

	// decayRatePerMinute is the fraction of the current score shed per
	// idle minute. A domain invariant, not a tuning knob: ten idle
	// minutes always zero a score.
	decayRatePerMinute = 0.1

	// decayEffectCap is the maximum number of minutes a single decay
	// application accounts for.
	decayEffectCap = 10
)

// HistoryEntry records one heat addition.
type HistoryEntry struct {
	Amount    float64
	Reason    string
	Timestamp time.Time
}

// Record is the decaying score state for one (community, subject) pair.
type Record struct {
	Score       float64
	History     []HistoryEntry
	LastUpdated time.Time
}

// ScoreStore holds heat records keyed by (communityID, subjectID). Decay is
// applied lazily on read and write; the score never increases without an
// explicit Add and strictly decreases over idle whole minutes until zero.
type ScoreStore struct {
	mu      sync.Mutex
	clk     clock.Clock
	records map[string]*Record
}

// NewScoreStore creates a ScoreStore using the real clock.
func NewScoreStore() *ScoreStore {
	return NewScoreStoreWithClock(clock.Real())
}

// NewScoreStoreWithClock creates a ScoreStore with an injected clock.
func NewScoreStoreWithClock(clk clock.Clock) *ScoreStore {
	return &ScoreStore{
		clk:     clk,
		records: make(map[string]*Record),
	}
}

func key(communityID, subjectID string) string {
	return communityID + ":" + subjectID
}

// Add applies pending decay, adds amount, and returns the new score.
// The record is created on first use.
func (s *ScoreStore) Add(communityID, subjectID string, amount float64, reason string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	k := key(communityID, subjectID)

	rec, ok := s.records[k]
	if !ok {
		rec = &Record{LastUpdated: now}
		s.records[k] = rec
	}

	decay(rec, now)

	rec.Score += amount
	if rec.Score < 0 {
		rec.Score = 0
	}
	rec.LastUpdated = now

	rec.History = append(rec.History, HistoryEntry{
		Amount:    amount,
		Reason:    reason,
		Timestamp: now,
	})
	if len(rec.History) > historyLimit {
		rec.History = rec.History[len(rec.History)-historyLimit:]
	}

	return rec.Score
}

// Get applies pending decay and returns the current score. Unknown keys
// score zero.
func (s *ScoreStore) Get(communityID, subjectID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(communityID, subjectID)]
	if !ok {
		return 0
	}

	decay(rec, s.clk.Now())
	return rec.Score
}

// History returns a copy of the record's heat history.
func (s *ScoreStore) History(communityID, subjectID string) []HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[key(communityID, subjectID)]
	if !ok {
		return nil
	}
	out := make([]HistoryEntry, len(rec.History))
	copy(out, rec.History)
	return out
}

// decay reduces the score by decayRatePerMinute per elapsed whole minute,
// capped at decayEffectCap minutes of effect, floored at zero. The caller
// holds s.mu.
func decay(rec *Record, now time.Time) {
	if rec.Score <= 0 {
		rec.Score = 0
		return
	}

	minutes := int(now.Sub(rec.LastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	if minutes > decayEffectCap {
		minutes = decayEffectCap
	}

	rec.Score -= rec.Score * decayRatePerMinute * float64(minutes)
	if rec.Score < 0 {
		rec.Score = 0
	}
	rec.LastUpdated = now
}

// Sweep garbage-collects records whose score has decayed to zero and that
// have been idle longer than retention. The zero check and the idle check
// run under the same lock as Add, so a concurrent Add cannot race a delete.
func (s *ScoreStore) Sweep(retention time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clk.Now()
	removed := 0
	for k, rec := range s.records {
		decay(rec, now)
		if rec.Score == 0 && now.Sub(rec.LastUpdated) >= 0 && len(rec.History) > 0 {
			last := rec.History[len(rec.History)-1].Timestamp
			if now.Sub(last) > retention {
				delete(s.records, k)
				removed++
			}
		} else if rec.Score == 0 && len(rec.History) == 0 {
			delete(s.records, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live records.
func (s *ScoreStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
