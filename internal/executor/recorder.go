package executor

import (
	"context"
	"sync"
	"time"

	"modsentry/internal/schema"
)

// Call is one recorded executor invocation.
type Call struct {
	Action      schema.ActionType
	CommunityID string
	SubjectID   string
	Reason      string
	Duration    time.Duration
	Purge       bool
}

// Recorder is an Executor that captures calls for inspection. Setting Err
// makes every call fail with it.
type Recorder struct {
	mu    sync.Mutex
	calls []Call

	Err error
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Calls returns a snapshot of recorded invocations.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

func (r *Recorder) record(c Call) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return &ExecFailure{Action: c.Action, CommunityID: c.CommunityID, SubjectID: c.SubjectID, Err: r.Err}
	}
	r.calls = append(r.calls, c)
	return nil
}

func (r *Recorder) Ban(ctx context.Context, communityID string, subject schema.Subject, reason string, purgeMessages bool) error {
	return r.record(Call{Action: schema.ActionBan, CommunityID: communityID, SubjectID: subject.ID, Reason: reason, Purge: purgeMessages})
}

func (r *Recorder) Kick(ctx context.Context, communityID string, subject schema.Subject, reason string) error {
	return r.record(Call{Action: schema.ActionKick, CommunityID: communityID, SubjectID: subject.ID, Reason: reason})
}

func (r *Recorder) Timeout(ctx context.Context, communityID string, subject schema.Subject, d time.Duration, reason string) error {
	return r.record(Call{Action: schema.ActionTimeout, CommunityID: communityID, SubjectID: subject.ID, Reason: reason, Duration: d})
}
