package heat

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"modsentry/internal/clock"
	"modsentry/internal/config"
	"modsentry/internal/schema"
	"modsentry/internal/similarity"
)

// maxPatternLength bounds user-supplied wildcard patterns. Longer patterns
// are treated as malformed and skipped.
const maxPatternLength = 128

// Punishment is a decided punitive action for a heat breach.
type Punishment struct {
	Action        schema.ActionType
	Duration      time.Duration
	Reason        string
	PurgeMessages bool
}

// Engine computes per-message heat and decides punishments by threshold.
type Engine struct {
	cfg    config.HeatConfig
	scores *ScoreStore
	clk    clock.Clock

	wordPatterns []*regexp.Regexp

	mu      sync.Mutex
	history map[string][]string // communityID:subjectID -> recent message contents
}

// NewEngine creates a heat engine over the given score store. Malformed
// blacklist patterns are skipped with a warning, never fatal.
func NewEngine(cfg config.HeatConfig, scores *ScoreStore, clk clock.Clock) *Engine {
	e := &Engine{
		cfg:     cfg,
		scores:  scores,
		clk:     clk,
		history: make(map[string][]string),
	}

	for _, word := range cfg.BlacklistedWords {
		re, err := compileWordPattern(word)
		if err != nil {
			slog.Warn("skipping malformed blacklist pattern", "pattern", word, "error", err)
			continue
		}
		e.wordPatterns = append(e.wordPatterns, re)
	}

	return e
}

// compileWordPattern turns a user-supplied word entry into a case-insensitive
// substring matcher. '*' acts as a wildcard; everything else is literal, so
// user input cannot produce a pathological pattern.
func compileWordPattern(word string) (*regexp.Regexp, error) {
	if word == "" || len(word) > maxPatternLength {
		return nil, fmt.Errorf("pattern length out of range")
	}
	if strings.Trim(word, "*") == "" {
		return nil, fmt.Errorf("pattern has no literal characters")
	}

	var b strings.Builder
	b.WriteString("(?i)")
	for _, part := range strings.Split(word, "*") {
		if b.Len() > 4 {
			b.WriteString(".*")
		}
		b.WriteString(regexp.QuoteMeta(part))
	}

	return regexp.Compile(b.String())
}

// Scores exposes the underlying score store.
func (e *Engine) Scores() *ScoreStore {
	return e.scores
}

// ComputeMessageHeat scores one message. The result is deterministic for a
// given subject history and floored to an integer.
func (e *Engine) ComputeMessageHeat(subject schema.Subject, communityID string, msg *schema.Message) int {
	cfg := e.cfg
	now := e.clk.Now()
	total := cfg.BaseWeight

	// Repetition against the subject's recent messages.
	best := e.bestSimilarity(communityID, subject.ID, msg.Content)
	switch {
	case best > cfg.RepetitionHighSim:
		total += cfg.RepetitionHighWeight
	case best > cfg.RepetitionLowSim:
		total += cfg.RepetitionLowWeight
	}

	total += float64(msg.EmojiCount) * cfg.EmojiWeight

	if over := len(msg.Content) - cfg.LengthLimit; over > 0 {
		total += float64(over/100) * cfg.LengthStepWeight
	}

	if newlines := strings.Count(msg.Content, "\n"); newlines > cfg.NewlineLimit {
		total += float64(newlines-cfg.NewlineLimit) * cfg.NewlineWeight
	}

	if msg.MentionsEveryone {
		total += cfg.EveryoneWeight
	} else {
		total += float64(distinctCount(msg.Mentions)) * cfg.MentionWeight
	}

	total += float64(msg.Attachments) * cfg.AttachmentWeight

	for _, link := range msg.Links {
		total += cfg.LinkWeight
		lower := strings.ToLower(link)
		if matchesDomain(lower, cfg.NSFWDomains) {
			total += cfg.NSFWLinkWeight
		}
		if matchesDomain(lower, cfg.MaliciousDomains) {
			total += cfg.MaliciousLinkWeight
		}
		if matchesDomain(lower, cfg.InviteDomains) {
			total += cfg.InviteLinkWeight
		}
		for _, bad := range cfg.BlacklistedLinks {
			if bad != "" && strings.Contains(lower, strings.ToLower(bad)) {
				total += cfg.BlacklistLinkWeight
			}
		}
	}

	for _, re := range e.wordPatterns {
		if re.MatchString(msg.Content) {
			total += cfg.BlacklistWordWeight
		}
	}

	if subject.AccountAge(now) < cfg.NewAccountAge && !subject.CreatedAt.IsZero() {
		total += cfg.NewAccountWeight
	}

	// Quiet channels get a discount on the running total.
	if !msg.LastChannelActivity.IsZero() && now.Sub(msg.LastChannelActivity) > cfg.InactiveChannelAge {
		total *= cfg.InactiveChannelFactor
	}

	e.remember(communityID, subject.ID, msg.Content)

	if total < 0 {
		return 0
	}
	return int(total)
}

// AddMessageHeat computes the message's heat and accumulates it into the
// score store. Returns the message heat and the subject's new total score.
func (e *Engine) AddMessageHeat(subject schema.Subject, communityID string, msg *schema.Message) (int, float64) {
	h := e.ComputeMessageHeat(subject, communityID, msg)
	score := e.scores.Add(communityID, subject.ID, float64(h), "message")
	return h, score
}

// CheckPunishment maps a heat score to a punitive decision, or nil when the
// score is below the threshold. The escalation multiplier stretches timeout
// durations; every duration is capped at the platform maximum.
func (e *Engine) CheckPunishment(score float64, multiplier int, panicActive, isRaider bool) *Punishment {
	cfg := e.cfg

	if score < cfg.Threshold {
		return nil
	}
	if multiplier < 1 {
		multiplier = 1
	}

	if panicActive && isRaider {
		return &Punishment{
			Action:   schema.ActionTimeout,
			Duration: capDuration(cfg.PanicTimeout, cfg.MaxTimeout),
			Reason:   "panic mode",
		}
	}

	if score >= cfg.Cap {
		return &Punishment{
			Action:        schema.ActionTimeout,
			Duration:      capDuration(cfg.CapTimeout*time.Duration(multiplier), cfg.MaxTimeout),
			Reason:        fmt.Sprintf("heat score %.0f exceeded cap %.0f", score, cfg.Cap),
			PurgeMessages: true,
		}
	}

	return &Punishment{
		Action:   schema.ActionTimeout,
		Duration: capDuration(cfg.FirstTimeout*time.Duration(multiplier), cfg.MaxTimeout),
		Reason:   fmt.Sprintf("heat score %.0f exceeded threshold %.0f", score, cfg.Threshold),
	}
}

func capDuration(d, max time.Duration) time.Duration {
	if d > max {
		return max
	}
	return d
}

// bestSimilarity returns the highest Jaccard similarity between content and
// the subject's recent messages.
func (e *Engine) bestSimilarity(communityID, subjectID, content string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	best := 0.0
	for _, prev := range e.history[key(communityID, subjectID)] {
		if sim := similarity.Jaccard(content, prev); sim > best {
			best = sim
		}
	}
	return best
}

// remember appends content to the subject's bounded message history.
func (e *Engine) remember(communityID, subjectID, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := key(communityID, subjectID)
	h := append(e.history[k], content)
	if len(h) > e.cfg.HistoryDepth {
		h = h[len(h)-e.cfg.HistoryDepth:]
	}
	e.history[k] = h
}

// ForgetSubject drops the subject's message history.
func (e *Engine) ForgetSubject(communityID, subjectID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.history, key(communityID, subjectID))
}

func matchesDomain(link string, domains []string) bool {
	for _, d := range domains {
		if d != "" && strings.Contains(link, strings.ToLower(d)) {
			return true
		}
	}
	return false
}

func distinctCount(items []string) int {
	if len(items) == 0 {
		return 0
	}
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		seen[it] = struct{}{}
	}
	return len(seen)
}
