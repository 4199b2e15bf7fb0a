// Package compact implements Compaction: at high context pressure it
// folds the active-thread set into a single Synthesis record the host
// can re-inject instead of the full working set.
package compact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ai-memoryd/memoryd/internal/extract"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
	"github.com/google/uuid"
)

// Strategy names how aggressively Compact folds the active set.
// "aggressive" also suspends every thread it summarizes, freeing quota;
// "gentle"/"normal" only persist the synthesis and leave threads alone.
type Strategy string

const (
	StrategyGentle     Strategy = "gentle"
	StrategyNormal     Strategy = "normal"
	StrategyAggressive Strategy = "aggressive"
)

// maxThreadsInSummary caps how many active threads are folded into one
// structured state summary before it's handed to the Extractor.
const maxThreadsInSummary = 30

// Compactor builds and persists Synthesis records.
type Compactor struct {
	store     *store.Store
	extractor *extract.Extractor
	manager   *threadmgr.Manager
}

// New builds a Compactor. manager is used only by the "aggressive"
// strategy to suspend the threads it just folded into the synthesis.
func New(st *store.Store, extractor *extract.Extractor, manager *threadmgr.Manager) *Compactor {
	return &Compactor{store: st, extractor: extractor, manager: manager}
}

// Report is the result handed back over the RPC surface.
type Report struct {
	Synthesis     *model.Synthesis
	ThreadsFolded int
	Suspended     int
	DryRun        bool
}

// Compact builds a structured state summary from the active thread set,
// extracts it into a Synthesis, and persists the record unless dryRun is
// set. "aggressive" additionally suspends the folded threads.
func (c *Compactor) Compact(ctx context.Context, strategy Strategy, dryRun bool) (*Report, error) {
	active := c.store.ThreadsByStatus(model.StatusActive)
	if len(active) > maxThreadsInSummary {
		active = active[:maxThreadsInSummary]
	}

	summaryText, decisions := buildStateSummary(active)
	extraction := c.extractor.Extract(ctx, summaryText, model.SourcePrompt)

	syn := &model.Synthesis{
		ID:            uuid.NewString(),
		GeneratedAt:   time.Now(),
		Summary:       firstNonEmpty(extraction.Summary, summaryText),
		ActiveThreads: threadIDs(active),
		Decisions:     decisions,
		OpenQuestions: extraction.Questions,
	}

	report := &Report{Synthesis: syn, ThreadsFolded: len(active), DryRun: dryRun}
	if dryRun {
		return report, nil
	}

	if err := c.store.PutSynthesis(syn); err != nil {
		return nil, fmt.Errorf("compact: persisting synthesis: %w", err)
	}

	if strategy == StrategyAggressive && c.manager != nil {
		for _, t := range active {
			if _, err := c.manager.Suspend(t.ID); err == nil {
				report.Suspended++
			}
		}
	}
	return report, nil
}

// buildStateSummary renders the active thread set as a structured text
// block (titles, summaries) suitable for the Extractor's prompt, and
// separately surfaces threads tagged "decision" for the Synthesis
// record's own Decisions field.
func buildStateSummary(threads []*model.Thread) (text string, decisions []string) {
	var b strings.Builder
	for _, t := range threads {
		fmt.Fprintf(&b, "## %s\n%s\n", t.Title, t.Summary)
		if t.HasTag("decision") {
			decisions = append(decisions, fmt.Sprintf("%s: %s", t.Title, t.Summary))
		}
	}
	return b.String(), decisions
}

func threadIDs(threads []*model.Thread) []string {
	ids := make([]string, len(threads))
	for i, t := range threads {
		ids[i] = t.ID
	}
	return ids
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
