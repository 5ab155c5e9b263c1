package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/executor"
	"modsentry/internal/schema"
	"modsentry/internal/storage"
)

func newTestEngine(t *testing.T) (*Engine, *executor.Recorder, *storage.MemoryStore, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStoreWithClock(clk)
	rec := executor.NewRecorder()
	cfg := config.Default()
	e := New(Options{
		Config:   &cfg,
		Store:    store,
		Executor: rec,
		Clock:    clk,
	})
	return e, rec, store, clk
}

func messageEvent(clk *clock.Fake, communityID string, subject schema.Subject, msg *schema.Message) *schema.Event {
	return &schema.Event{
		EventID:     uuid.New(),
		Type:        schema.EventMessage,
		Timestamp:   clk.Now(),
		CommunityID: communityID,
		Subject:     subject,
		Message:     msg,
		ReceivedAt:  clk.Now(),
	}
}

func joinEvent(clk *clock.Fake, communityID string, subject schema.Subject) *schema.Event {
	return &schema.Event{
		EventID:     uuid.New(),
		Type:        schema.EventJoin,
		Timestamp:   clk.Now(),
		CommunityID: communityID,
		Subject:     subject,
		ReceivedAt:  clk.Now(),
	}
}

func TestHandleMessageBelowThreshold(t *testing.T) {
	e, rec, _, clk := newTestEngine(t)

	sub := schema.Subject{
		ID: "u1", Username: "calm_user",
		CreatedAt: clk.Now().Add(-365 * 24 * time.Hour), HasAvatar: true,
	}
	out, err := e.HandleMessage(context.Background(), messageEvent(clk, "g1", sub, &schema.Message{
		ChannelID: "c1", Content: "good morning everyone",
	}))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out.Punishment != nil {
		t.Errorf("punishment for calm message: %+v", out.Punishment)
	}
	if len(rec.Calls()) != 0 {
		t.Errorf("executor called: %v", rec.Calls())
	}
}

func TestHandleMessagePunishesAndEscalates(t *testing.T) {
	e, rec, store, clk := newTestEngine(t)
	ctx := context.Background()

	sub := schema.Subject{
		ID: "u1", Username: "spammer",
		CreatedAt: clk.Now().Add(-365 * 24 * time.Hour), HasAvatar: true,
	}
	spam := func() *schema.Event {
		return messageEvent(clk, "g1", sub, &schema.Message{
			ChannelID: "c1", Content: strings.Repeat("free nitro ", 20),
			MentionsEveryone: true,
		})
	}

	var punished *MessageOutcome
	for i := 0; i < 5; i++ {
		out, err := e.HandleMessage(ctx, spam())
		if err != nil {
			t.Fatalf("handle %d: %v", i, err)
		}
		if out.Punishment != nil {
			punished = &out
			break
		}
	}
	if punished == nil {
		t.Fatal("spam never crossed the threshold")
	}
	if punished.Punishment.Action != schema.ActionTimeout {
		t.Errorf("action = %v, want timeout", punished.Punishment.Action)
	}

	calls := rec.Calls()
	if len(calls) != 1 || calls[0].Action != schema.ActionTimeout {
		t.Fatalf("executor calls = %v", calls)
	}

	// The action reached the moderation log.
	n, err := store.GetRecentActionCount(ctx, "g1", "u1", time.Hour)
	if err != nil || n != 1 {
		t.Errorf("logged actions = %d (err %v), want 1", n, err)
	}

	// A second breach doubles the timeout via the multiplier.
	out2, _ := e.HandleMessage(ctx, spam())
	if out2.Punishment == nil {
		t.Fatal("second breach not punished")
	}
	if out2.Punishment.Duration != 2*punished.Punishment.Duration &&
		out2.Punishment.Duration != 28*24*time.Hour {
		t.Errorf("second duration = %v, first %v, want doubled or capped",
			out2.Punishment.Duration, punished.Punishment.Duration)
	}
}

func TestHandleMessageSurvivesStoreFailure(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	store := storage.NewMemoryStoreWithClock(clk)
	store.Close() // every call now fails
	rec := executor.NewRecorder()
	cfg := config.Default()
	e := New(Options{Config: &cfg, Store: store, Executor: rec, Clock: clk})

	sub := schema.Subject{
		ID: "u1", Username: "spammer",
		CreatedAt: clk.Now().Add(-365 * 24 * time.Hour), HasAvatar: true,
	}
	var punished bool
	for i := 0; i < 5; i++ {
		out, err := e.HandleMessage(context.Background(), messageEvent(clk, "g1", sub, &schema.Message{
			ChannelID: "c1", Content: strings.Repeat("spam ", 50), MentionsEveryone: true,
		}))
		if err != nil {
			t.Fatalf("handle with dead store: %v", err)
		}
		if out.Punishment != nil {
			punished = true
			break
		}
	}
	if !punished {
		t.Fatal("dead store blocked detection")
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("executor calls = %d, want 1", len(rec.Calls()))
	}
}

func TestHandleJoinRaidTriggersPanic(t *testing.T) {
	e, rec, _, clk := newTestEngine(t)
	ctx := context.Background()

	var panicTriggered bool
	for i := 0; i < 12; i++ {
		sub := schema.Subject{
			ID:        "r" + string(rune('a'+i)),
			Username:  "raider00" + string(rune('a'+i)),
			CreatedAt: clk.Now().Add(-time.Hour),
		}
		out, err := e.HandleJoin(ctx, joinEvent(clk, "g1", sub))
		if err != nil {
			t.Fatalf("join %d: %v", i, err)
		}
		if out.PanicTriggered {
			panicTriggered = true
		}
	}
	if !panicTriggered {
		t.Fatal("raid wave never triggered panic mode")
	}
	if !e.escalation.PanicActive("g1") {
		t.Fatal("panic mode not active after the wave")
	}

	// The whole cohort carries the raider mark, including members who
	// joined before the assessment crossed high.
	for _, id := range []string{"ra", "rb", "rc", "rl"} {
		if !e.escalation.IsRaider("g1", id) {
			t.Errorf("cohort member %s not flagged as raider", id)
		}
	}

	// A flagged raider crossing the heat threshold takes the panic branch.
	// The first joiner is as marked as the last.
	raider := schema.Subject{
		ID: "ra", Username: "raider00a", CreatedAt: clk.Now().Add(-time.Hour),
	}
	var out MessageOutcome
	for i := 0; i < 5; i++ {
		out, _ = e.HandleMessage(ctx, messageEvent(clk, "g1", raider, &schema.Message{
			ChannelID: "c1", Content: strings.Repeat("raid spam ", 30), MentionsEveryone: true,
		}))
		if out.Punishment != nil {
			break
		}
	}
	if out.Punishment == nil {
		t.Fatal("raider never punished")
	}
	if out.Punishment.Reason != "panic mode" {
		t.Errorf("reason = %q, want panic mode", out.Punishment.Reason)
	}
	if out.Punishment.Duration != 10*time.Minute {
		t.Errorf("duration = %v, want 10m", out.Punishment.Duration)
	}

	// Manual clear lifts the branch for later breaches.
	e.ClearPanic("g1")
	bystander := schema.Subject{
		ID: "u9", Username: "bystander",
		CreatedAt: clk.Now().Add(-365 * 24 * time.Hour), HasAvatar: true,
	}
	for i := 0; i < 5; i++ {
		out, _ = e.HandleMessage(ctx, messageEvent(clk, "g1", bystander, &schema.Message{
			ChannelID: "c1", Content: strings.Repeat("oops ", 60), MentionsEveryone: true,
		}))
		if out.Punishment != nil {
			break
		}
	}
	if out.Punishment == nil {
		t.Fatal("bystander never punished")
	}
	if out.Punishment.Reason == "panic mode" {
		t.Error("panic branch taken after clear")
	}
	_ = rec
}

func TestHandleJoinQuietIsSafe(t *testing.T) {
	e, _, _, clk := newTestEngine(t)

	sub := schema.Subject{
		ID: "u1", Username: "newcomer_jane",
		CreatedAt: clk.Now().Add(-200 * 24 * time.Hour), HasAvatar: true,
	}
	out, err := e.HandleJoin(context.Background(), joinEvent(clk, "g1", sub))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if out.Raid.Level != schema.LevelSafe && out.Raid.Level != schema.LevelLow {
		t.Errorf("single join level = %v", out.Raid.Level)
	}
	if out.PanicTriggered {
		t.Error("panic from a single join")
	}
}

func TestCheckSubject(t *testing.T) {
	e, _, _, clk := newTestEngine(t)
	ctx := context.Background()

	sub := schema.Subject{
		ID: "u1", Username: "x1234", CreatedAt: clk.Now().Add(-time.Hour),
	}
	if err := e.Report(ctx, "u1", "scam", schema.SeverityHigh, "gelsewhere", nil); err != nil {
		t.Fatalf("report: %v", err)
	}
	clk.Advance(time.Hour)
	if err := e.Report(ctx, "u1", "scam", schema.SeverityHigh, "gother", nil); err != nil {
		t.Fatalf("verify report: %v", err)
	}

	assessment, standing := e.CheckSubject(ctx, "g1", sub)
	if assessment.Level == schema.LevelSafe {
		t.Errorf("fresh suspicious account assessed safe: %+v", assessment)
	}
	if !standing.HasThreat {
		t.Errorf("verified high report not flagged: %+v", standing)
	}
}

func TestSweep(t *testing.T) {
	e, _, _, clk := newTestEngine(t)

	sub := schema.Subject{
		ID: "u1", Username: "drifter",
		CreatedAt: clk.Now().Add(-365 * 24 * time.Hour), HasAvatar: true,
	}
	e.HandleMessage(context.Background(), messageEvent(clk, "g1", sub, &schema.Message{
		ChannelID: "c1", Content: "hello",
	}))
	if e.Scores().Len() != 1 {
		t.Fatalf("score records = %d, want 1", e.Scores().Len())
	}

	clk.Advance(2 * time.Hour)
	e.Sweep(time.Hour)
	if e.Scores().Len() != 0 {
		t.Errorf("score records after sweep = %d, want 0", e.Scores().Len())
	}
}
