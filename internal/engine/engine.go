// Package engine wires the detection components into the event-facing
// facade. Platform handlers call it with messages and joins; it decides,
// acts through the executor, and logs to the store. In-memory state is
// authoritative; every store and executor call is best effort.
package engine

import (
	"context"
	"log/slog"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/escalation"
	"modsentry/internal/executor"
	"modsentry/internal/heat"
	"modsentry/internal/intel"
	"modsentry/internal/modqueue"
	"modsentry/internal/raid"
	"modsentry/internal/schema"
	"modsentry/internal/storage"
	"modsentry/internal/threat"
)

// recentActionWindow bounds the history lookup feeding the threat scorer.
const recentActionWindow = time.Hour

// MessageOutcome reports what handling one message did.
type MessageOutcome struct {
	Heat       int
	Score      float64
	Punishment *heat.Punishment
	Queued     *schema.QueueItem
}

// JoinOutcome reports what handling one join did.
type JoinOutcome struct {
	Raid           raid.Assessment
	PanicTriggered bool
}

// Metrics is the instrumentation hook the engine reports into.
type Metrics interface {
	EventProcessed(eventType string)
	PunishmentIssued(action schema.ActionType)
	PanicActivated()
	RaidDetected(level schema.Level)
	StoreFailure(op string)
	ExecutorFailure(action schema.ActionType)
}

// Engine is the top-level moderation facade.
type Engine struct {
	cfg        *config.Config
	heat       *heat.Engine
	escalation *escalation.Controller
	raids      *raid.Predictor
	scorer     *threat.Scorer
	queue      *modqueue.Queue
	ledger     *intel.Ledger
	store      storage.Store
	exec       executor.Executor
	metrics    Metrics
	clk        clock.Clock
	logger     *slog.Logger
}

// Options carries the engine's collaborators. Nil Logger, Metrics, and
// Executor fall back to safe defaults.
type Options struct {
	Config   *config.Config
	Store    storage.Store
	Executor executor.Executor
	Metrics  Metrics
	Clock    clock.Clock
	Logger   *slog.Logger
}

// New assembles an engine and its components.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Executor == nil {
		opts.Executor = executor.NewLogExecutor(opts.Logger)
	}
	if opts.Metrics == nil {
		opts.Metrics = nopMetrics{}
	}

	cfg := opts.Config
	scores := heat.NewScoreStoreWithClock(opts.Clock)

	return &Engine{
		cfg:        cfg,
		heat:       heat.NewEngine(cfg.Heat, scores, opts.Clock),
		escalation: escalation.NewController(cfg.Escalation, opts.Clock, opts.Logger),
		raids:      raid.NewPredictor(cfg.Raid, opts.Clock),
		scorer:     threat.NewScorer(opts.Clock),
		queue:      modqueue.New(opts.Store, opts.Clock, opts.Logger),
		ledger:     intel.NewLedger(opts.Store, cfg.Intel, opts.Clock, opts.Logger),
		store:      opts.Store,
		exec:       opts.Executor,
		metrics:    opts.Metrics,
		clk:        opts.Clock,
		logger:     opts.Logger,
	}
}

// Queue exposes the moderation queue for review commands.
func (e *Engine) Queue() *modqueue.Queue { return e.queue }

// Ledger exposes the threat-intelligence ledger for report commands.
func (e *Engine) Ledger() *intel.Ledger { return e.ledger }

// Scores exposes the heat score store.
func (e *Engine) Scores() *heat.ScoreStore { return e.heat.Scores() }

// HandleMessage scores a message, accumulates heat, and applies any
// threshold punishment. Store and executor failures never unwind the
// in-memory update.
func (e *Engine) HandleMessage(ctx context.Context, ev *schema.Event) (MessageOutcome, error) {
	e.metrics.EventProcessed(string(ev.Type))

	msgHeat, score := e.heat.AddMessageHeat(ev.Subject, ev.CommunityID, ev.Message)
	out := MessageOutcome{Heat: msgHeat, Score: score}

	multiplier := e.escalation.GetMultiplier(ev.CommunityID, ev.Subject.ID)
	panicActive := e.escalation.PanicActive(ev.CommunityID)
	isRaider := e.escalation.IsRaider(ev.CommunityID, ev.Subject.ID)

	p := e.heat.CheckPunishment(score, multiplier, panicActive, isRaider)
	if p == nil {
		return out, nil
	}
	out.Punishment = p

	e.escalation.Increase(ev.CommunityID, ev.Subject.ID)
	e.applyPunishment(ctx, ev.CommunityID, ev.Subject, p)

	// A punished subject with a worrying wider profile also goes to the
	// review queue.
	assessment := e.assess(ctx, ev.CommunityID, ev.Subject)
	if assessment.Score >= 60 {
		risk := e.riskScore(ctx, ev.CommunityID, ev.Subject.ID)
		item, err := e.queue.Enqueue(ctx, modqueue.EnqueueInput{
			CommunityID: ev.CommunityID,
			SubjectID:   ev.Subject.ID,
			ActionType:  assessment.RecommendedAction,
			Reason:      p.Reason,
			Context: map[string]any{
				"heat_score":   score,
				"threat_score": assessment.Score,
			},
			ThreatScore: assessment.Score,
			RiskScore:   risk,
		})
		if err != nil {
			e.logger.Error("review enqueue failed",
				"community_id", ev.CommunityID,
				"subject_id", ev.Subject.ID,
				"error", err)
		} else {
			out.Queued = item
		}
	}

	return out, nil
}

// HandleJoin feeds the join into the raid cohort and reacts to the
// assessment. High and critical assessments mark the cohort raiders and may
// flip the community into panic mode.
func (e *Engine) HandleJoin(ctx context.Context, ev *schema.Event) (JoinOutcome, error) {
	e.metrics.EventProcessed(string(ev.Type))

	assessment := e.raids.RecordJoin(ev.CommunityID, ev.Subject)
	out := JoinOutcome{Raid: assessment}

	if assessment.Level == schema.LevelSafe || assessment.Level == schema.LevelLow {
		return out, nil
	}
	e.metrics.RaidDetected(assessment.Level)
	e.logger.Warn("raid signature detected",
		"community_id", ev.CommunityID,
		"score", assessment.Score,
		"level", assessment.Level,
		"patterns", assessment.DetectedPatterns,
		"cohort_size", assessment.CohortSize)

	if assessment.Level != schema.LevelHigh && assessment.Level != schema.LevelCritical {
		return out, nil
	}

	// The whole cohort is the raid, not just the join that crossed the
	// level. Every member gets the raider mark and the full count gates
	// panic mode.
	raiders := 0
	for _, id := range assessment.MemberIDs {
		raiders = e.escalation.MarkRaider(ev.CommunityID, id)
	}
	wasActive := e.escalation.PanicActive(ev.CommunityID)
	if e.escalation.TriggerPanicMode(ev.CommunityID, raiders, "raid detected") && !wasActive {
		out.PanicTriggered = true
		e.metrics.PanicActivated()
		e.logger.Warn("panic mode engaged",
			"community_id", ev.CommunityID,
			"raider_count", raiders)
	}

	return out, nil
}

// TriggerPanic is the manual moderator override.
func (e *Engine) TriggerPanic(communityID, reason string) {
	e.escalation.ForcePanicMode(communityID, reason)
	e.metrics.PanicActivated()
}

// ClearPanic lifts panic mode early.
func (e *Engine) ClearPanic(communityID string) {
	e.escalation.ClearPanicMode(communityID)
}

// Report files a threat-intelligence report on behalf of a community.
func (e *Engine) Report(ctx context.Context, subjectID, threatType string, severity schema.Severity, sourceCommunityID string, data map[string]any) error {
	_, err := e.ledger.Report(ctx, subjectID, threatType, severity, sourceCommunityID, data)
	return err
}

// CheckSubject returns the subject's current threat assessment and ledger
// standing.
func (e *Engine) CheckSubject(ctx context.Context, communityID string, subject schema.Subject) (threat.Assessment, intel.CheckResult) {
	assessment := e.assess(ctx, communityID, subject)
	standing, err := e.ledger.Check(ctx, subject.ID, communityID)
	if err != nil {
		e.metrics.StoreFailure("ListThreatReports")
		e.logger.Warn("ledger check failed",
			"subject_id", subject.ID, "error", err)
	}
	return assessment, standing
}

// Sweep runs periodic maintenance: idle score records and expired raider
// marks. Called from the dispatcher's maintenance loop.
func (e *Engine) Sweep(retention time.Duration) {
	e.heat.Scores().Sweep(retention)
	e.escalation.Sweep()
}

// assess gathers the store-backed history signals and runs the scorer.
// Either lookup failing degrades to zero, never blocks detection.
func (e *Engine) assess(ctx context.Context, communityID string, subject schema.Subject) threat.Assessment {
	recent, err := e.store.GetRecentActionCount(ctx, communityID, subject.ID, recentActionWindow)
	if err != nil {
		e.metrics.StoreFailure("GetRecentActionCount")
		e.logger.Warn("recent action lookup failed",
			"community_id", communityID, "subject_id", subject.ID, "error", err)
		recent = 0
	}
	warnings, err := e.store.GetWarningCount(ctx, communityID, subject.ID)
	if err != nil {
		e.metrics.StoreFailure("GetWarningCount")
		warnings = 0
	}

	return e.scorer.Assess(subject, recent, warnings, e.heat.Scores().Get(communityID, subject.ID))
}

// riskScore pulls the ledger's risk number, zero on failure.
func (e *Engine) riskScore(ctx context.Context, communityID, subjectID string) int {
	res, err := e.ledger.Check(ctx, subjectID, communityID)
	if err != nil {
		return 0
	}
	return res.RiskScore
}

// applyPunishment runs the executor and logs the action. Both calls are
// best effort.
func (e *Engine) applyPunishment(ctx context.Context, communityID string, subject schema.Subject, p *heat.Punishment) {
	var err error
	switch p.Action {
	case schema.ActionBan:
		err = e.exec.Ban(ctx, communityID, subject, p.Reason, p.PurgeMessages)
	case schema.ActionKick:
		err = e.exec.Kick(ctx, communityID, subject, p.Reason)
	default:
		err = e.exec.Timeout(ctx, communityID, subject, p.Duration, p.Reason)
	}
	if err != nil {
		e.metrics.ExecutorFailure(p.Action)
		e.logger.Error("punishment execution failed",
			"community_id", communityID,
			"subject_id", subject.ID,
			"action", p.Action,
			"error", err)
	} else {
		e.metrics.PunishmentIssued(p.Action)
	}

	rec := &schema.ActionRecord{
		CommunityID: communityID,
		SubjectID:   subject.ID,
		ActorID:     "auto",
		ActionType:  p.Action,
		Reason:      p.Reason,
		Duration:    p.Duration,
		CreatedAt:   e.clk.Now(),
	}
	if err := e.store.RecordAction(ctx, rec); err != nil {
		e.metrics.StoreFailure("RecordAction")
		e.logger.Error("action log write failed",
			"community_id", communityID,
			"subject_id", subject.ID,
			"error", err)
	}
}

type nopMetrics struct{}

func (nopMetrics) EventProcessed(string)              {}
func (nopMetrics) PunishmentIssued(schema.ActionType) {}
func (nopMetrics) PanicActivated()                    {}
func (nopMetrics) RaidDetected(schema.Level)          {}
func (nopMetrics) StoreFailure(string)                {}
func (nopMetrics) ExecutorFailure(schema.ActionType)  {}
