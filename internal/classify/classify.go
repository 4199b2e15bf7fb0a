// Package classify implements the decision engine that maps a captured
// message onto CONTINUE/FORK/REACTIVATE/NEW_THREAD against the current
// thread set.
package classify

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/model"
)

const (
	continueThreshold    = 0.35
	reactivateThreshold  = 0.50
	reactivateTieLow     = 0.35
	coherenceForkHigh    = 0.60
	coherenceForkLow     = 0.30
	exactTopicMatchBoost = 0.15
)

// Client is the black-box chat call used for tie-breaking and coherence
// checks. Satisfied by internal/llmclient.Client.
type Client interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Classifier decides what to do with a newly captured, extracted message
// given the current thread population.
type Classifier struct {
	client Client
}

// New builds a Classifier. client may be nil: every ambiguous band then
// downgrades to the pure-embedding decision at the same thresholds.
func New(client Client) *Classifier {
	return &Classifier{client: client}
}

// PendingContext is the single in-memory coherence anchor kept per
// daemon: the most recent capture's thread and a digest of its content.
type PendingContext struct {
	ThreadID string
	Digest   string
	At       time.Time
}

// Expired reports whether the pending context is older than 10 minutes.
func (p PendingContext) Expired(now time.Time) bool {
	if p.ThreadID == "" {
		return true
	}
	return now.Sub(p.At) > 10*time.Minute
}

// Sim computes the combined content/thread similarity score defined by
// the decision policy: 0.7 cosine + 0.3 topic overlap, plus a 0.15 boost
// for any exact topic match, clamped to [0, 1].
func Sim(contentEmbedding []float32, subjects []string, t *model.Thread) float64 {
	cos := embed.Similarity(contentEmbedding, t.Embedding)
	overlap := topicOverlap(subjects, t.Topics)
	score := 0.7*cos + 0.3*overlap
	if exactTopicMatch(subjects, t.Topics) {
		score += exactTopicMatchBoost
	}
	return clamp01(score)
}

func topicOverlap(a, b []string) float64 {
	if len(a) == 0 {
		return 0
	}
	bSet := make(map[string]bool, len(b))
	for _, s := range b {
		bSet[strings.ToLower(s)] = true
	}
	var hits int
	for _, s := range a {
		if bSet[strings.ToLower(s)] {
			hits++
		}
	}
	return float64(hits) / float64(max(len(a), 1))
}

func exactTopicMatch(a, b []string) bool {
	bSet := make(map[string]bool, len(b))
	for _, s := range b {
		bSet[strings.ToLower(s)] = true
	}
	for _, s := range a {
		if bSet[strings.ToLower(s)] {
			return true
		}
	}
	return false
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// best returns the highest-scoring thread and its score, or nil if the
// candidate set is empty.
func best(content []float32, subjects []string, threads []*model.Thread) (*model.Thread, float64) {
	var bestT *model.Thread
	var bestS float64
	for _, t := range threads {
		s := Sim(content, subjects, t)
		if bestT == nil || s > bestS {
			bestT, bestS = t, s
		}
	}
	return bestT, bestS
}

// Decide applies the decision policy in order: active-thread continuation,
// suspended-thread reactivation (with LLM tie-break in the ambiguous
// band), then fork/new-thread against the pending coherence context.
func (c *Classifier) Decide(ctx context.Context, ex model.Extraction, content string, contentEmbedding []float32, active, suspended []*model.Thread, pending PendingContext) model.Decision {
	if bestActive, sA := best(contentEmbedding, ex.Subjects, active); bestActive != nil && sA >= continueThreshold {
		return model.Decision{Kind: model.DecisionContinue, TargetID: bestActive.ID, Score: sA}
	}

	if bestSusp, sS := best(contentEmbedding, ex.Subjects, suspended); bestSusp != nil {
		switch {
		case sS >= reactivateThreshold:
			return model.Decision{Kind: model.DecisionReactivate, TargetID: bestSusp.ID, Score: sS}
		case sS >= reactivateTieLow:
			if c.confirmReactivate(ctx, bestSusp, content) {
				return model.Decision{Kind: model.DecisionReactivate, TargetID: bestSusp.ID, Score: sS}
			}
		}
	}

	if !pending.Expired(time.Now()) {
		coherence, ok := c.coherence(ctx, pending, content)
		if !ok {
			// LLM unreachable: downgrade to a pure-embedding decision rather
			// than block or silently drop the capture.
			return model.Decision{Kind: model.DecisionNewThread}
		}
		switch {
		case coherence >= coherenceForkHigh:
			return model.Decision{Kind: model.DecisionFork, TargetID: pending.ThreadID, Score: coherence}
		case coherence >= coherenceForkLow:
			return model.Decision{Kind: model.DecisionNewThread, Score: coherence}
		default:
			return model.Decision{Kind: model.DecisionSkip, Score: coherence}
		}
	}

	return model.Decision{Kind: model.DecisionNewThread}
}

// confirmReactivate asks the LLM tie-breaker whether the incoming text
// belongs to a SUSPENDED thread whose score landed in the ambiguous band.
// An unavailable client downgrades to "no" — the pure-embedding threshold
// already decided against reactivation by not clearing 0.50.
func (c *Classifier) confirmReactivate(ctx context.Context, t *model.Thread, content string) bool {
	if c.client == nil {
		return false
	}
	prompt := "Suspended thread summary:\n" + t.Summary + "\n\nNew content:\n" + content + "\n\nDoes the new content continue this thread? Answer yes or no only."
	resp, err := c.client.Complete(ctx, tieBreakSystemPrompt, prompt)
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp)), "yes")
}

// coherence scores the new content against the pending-context digest.
// ok is false when the client is nil or Complete errors — an unreachable
// LLM, which callers must not treat the same as a score that came back low.
func (c *Classifier) coherence(ctx context.Context, pending PendingContext, content string) (score float64, ok bool) {
	if c.client == nil {
		return 0, false
	}
	prompt := "Prior content digest:\n" + pending.Digest + "\n\nNew content:\n" + content + "\n\nOn a scale of 0.00 to 1.00, how coherent/continuous is the new content with the prior digest? Respond with only the number."
	resp, err := c.client.Complete(ctx, coherenceSystemPrompt, prompt)
	if err != nil {
		return 0, false
	}
	return parseScore(resp), true
}

const tieBreakSystemPrompt = `You are deciding whether new captured content continues a suspended conversation thread. Answer with a single word: yes or no.`

const coherenceSystemPrompt = `You are scoring how coherent new content is with a prior context digest. Respond with only a decimal number between 0.00 and 1.00.`

var scorePattern = regexp.MustCompile(`-?\d+(\.\d+)?`)

func parseScore(s string) float64 {
	m := scorePattern.FindString(s)
	if m == "" {
		return 0
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0
	}
	return clamp01(f)
}
