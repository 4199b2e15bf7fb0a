package retrieve

import (
	"context"
	"fmt"
	"strings"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
	"github.com/dustin/go-humanize"
)

const (
	recallBudgetChars     = 8000
	recallReactivateFloor = 0.5
	maxRecallBridges      = 5
	summaryTruncateLen    = 100
)

// Retriever ranks threads and bridges against a query and renders the
// recall/injection payloads.
type Retriever struct {
	store    *store.Store
	embedder embed.Embedder
	manager  *threadmgr.Manager
}

// New builds a Retriever over the given store, embedder, and thread
// manager (used only to apply the reactivation side effect on recall).
func New(st *store.Store, embedder embed.Embedder, manager *threadmgr.Manager) *Retriever {
	return &Retriever{store: st, embedder: embedder, manager: manager}
}

// MatchedThread is one entry in a recall response: the thread plus the
// score it matched at and whether this recall reactivated it.
type MatchedThread struct {
	Thread      *model.Thread
	Score       float64
	Reactivated bool
}

// Recall embeds query, ranks ACTIVE threads (and SUSPENDED when
// includeSuspended), reactivates any SUSPENDED match scoring above
// recallReactivateFloor, and renders a Markdown block bounded to
// recallBudgetChars.
func (r *Retriever) Recall(ctx context.Context, query string, includeSuspended bool) (string, []MatchedThread, error) {
	queryEmbedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return "", nil, fmt.Errorf("retrieve: embedding recall query: %w", err)
	}

	candidates := r.store.ThreadsByStatus(model.StatusActive)
	if includeSuspended {
		candidates = append(candidates, r.store.ThreadsByStatus(model.StatusSuspended)...)
	}

	type scored struct {
		t     *model.Thread
		score float64
	}
	var all []scored
	for _, t := range candidates {
		all = append(all, scored{t: t, score: classify.Sim(queryEmbedding, nil, t)})
	}
	sortDesc(all)
	if len(all) > maxRankedThreads {
		all = all[:maxRankedThreads]
	}

	matched := make([]MatchedThread, 0, len(all))
	for _, s := range all {
		m := MatchedThread{Thread: s.t, Score: s.score}
		if s.t.Status == model.StatusSuspended && s.score > recallReactivateFloor && r.manager != nil {
			reactivated, rerr := r.manager.Reactivate(s.t.ID)
			if rerr == nil {
				m.Thread = reactivated
				m.Reactivated = true
			}
		}
		matched = append(matched, m)
	}

	return r.renderRecall(matched), matched, nil
}

func sortDesc(all []struct {
	t     *model.Thread
	score float64
}) {
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].score > all[j-1].score; j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
}

func (r *Retriever) renderRecall(matched []MatchedThread) string {
	var b strings.Builder
	b.WriteString("## Recall\n\n")
	for _, m := range matched {
		t := m.Thread
		fmt.Fprintf(&b, "### %s (%s, weight %.2f, score %.2f)\n", t.Title, t.Status, t.Weight, m.Score)
		if m.Reactivated {
			b.WriteString("_reactivated by this recall_\n")
		}
		if len(t.Topics) > 0 {
			fmt.Fprintf(&b, "Topics: %s\n", strings.Join(t.Topics, ", "))
		}
		fmt.Fprintf(&b, "%s\n", truncate(t.Summary, summaryTruncateLen))
		fmt.Fprintf(&b, "Last active: %s\n", humanize.Time(t.LastActive))

		bridges := r.store.LoadBridgesTouching(t.ID)
		if len(bridges) > maxRecallBridges {
			bridges = bridges[:maxRecallBridges]
		}
		for _, br := range bridges {
			fmt.Fprintf(&b, "- bridge %s (%s, weight %.2f)\n", otherEndpoint(br, t.ID), br.RelationType, br.Weight)
		}
		b.WriteString("\n")

		if b.Len() > recallBudgetChars {
			break
		}
	}

	out := b.String()
	if len(out) > recallBudgetChars {
		out = out[:recallBudgetChars]
	}
	return out
}

func otherEndpoint(b *model.ThinkBridge, known string) string {
	if b.SourceID == known {
		return b.TargetID
	}
	return b.SourceID
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
