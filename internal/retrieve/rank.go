// Package retrieve ranks threads against an upcoming prompt and assembles
// the injection payload and recall responses within a character budget.
package retrieve

import (
	"sort"
	"strings"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/model"
)

const (
	maxRankedThreads = 5
	priorityFloor    = 0.05
	maxFocusBoost    = 0.5
)

// Ranked pairs a thread with its computed priority.
type Ranked struct {
	Thread   *model.Thread
	Priority float64
}

// Rank scores every candidate thread against promptEmbedding and the
// currently focused topics, returning up to maxRankedThreads entries at or
// above priorityFloor, highest priority first.
func Rank(promptEmbedding []float32, threads []*model.Thread, focus []model.FocusEntry) []Ranked {
	out := make([]Ranked, 0, len(threads))
	for _, t := range threads {
		p := priority(promptEmbedding, t, focus)
		if p < priorityFloor {
			continue
		}
		out = append(out, Ranked{Thread: t, Priority: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Priority > out[j].Priority })
	if len(out) > maxRankedThreads {
		out = out[:maxRankedThreads]
	}
	return out
}

// priority implements priority(t) = sim(prompt,t)*t.weight*t.relevance_score
// + focus_boost(t). sim reuses the classifier's cosine+topic-overlap
// formula with no subjects, which degrades it to 0.7×cosine clamped to
// [0, 1] (topic overlap needs extracted subjects the raw prompt doesn't
// carry).
func priority(promptEmbedding []float32, t *model.Thread, focus []model.FocusEntry) float64 {
	sim := classify.Sim(promptEmbedding, nil, t)
	relevance := t.RelevanceScore
	if relevance == 0 {
		relevance = 1
	}
	return sim*t.Weight*relevance + focusBoost(t, focus)
}

// focusBoost sums the per-entry boosts defined by the injection contract,
// clamped to maxFocusBoost.
func focusBoost(t *model.Thread, focus []model.FocusEntry) float64 {
	var total float64
	titleLower := strings.ToLower(t.Title)
	for _, f := range focus {
		switch {
		case f.Topic == t.ID:
			total += f.Weight * 0.5
		case t.HasTopic(f.Topic):
			total += f.Weight * 0.3
		case strings.Contains(titleLower, strings.ToLower(f.Topic)):
			total += f.Weight * 0.2
		}
	}
	if total > maxFocusBoost {
		total = maxFocusBoost
	}
	return total
}
