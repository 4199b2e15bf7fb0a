package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/extract"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return embed.HashVector(text), nil
}

func setup(t *testing.T) (*Retriever, *store.Store, *threadmgr.Manager) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	mgr := threadmgr.New(st, fakeEmbedder{}, extract.New(nil), classify.New(nil), nil, log)
	return New(st, fakeEmbedder{}, mgr), st, mgr
}

func mkThread(id string, status model.Status, weight float64, topics []string, emb []float32) *model.Thread {
	return &model.Thread{
		ID: id, Status: status, Weight: weight, Topics: topics, Embedding: emb,
		RelevanceScore: 1, Title: id, Summary: "summary for " + id,
		CreatedAt: time.Now(), LastActive: time.Now(),
	}
}

func TestRankOrdersByPriority(t *testing.T) {
	emb := embed.HashVector("databases and migrations")
	a := mkThread("a", model.StatusActive, 1.0, []string{"db"}, emb)
	b := mkThread("b", model.StatusActive, 0.1, []string{"unrelated"}, embed.HashVector("completely different subject"))

	ranked := Rank(emb, []*model.Thread{a, b}, nil)
	require.NotEmpty(t, ranked)
	require.Equal(t, "a", ranked[0].Thread.ID)
}

func TestFocusBoostIsClampedAndApplied(t *testing.T) {
	emb := embed.HashVector("x")
	th := mkThread("t1", model.StatusActive, 0, []string{"infra"}, emb)
	focus := []model.FocusEntry{{Topic: "infra", Weight: 10}}

	ranked := Rank(emb, []*model.Thread{th}, focus)
	require.Len(t, ranked, 1)
	require.InDelta(t, maxFocusBoost, ranked[0].Priority, 1e-9) // weight=0 zeroes the sim term, leaving pure focus boost
}

func TestRecallReactivatesSuspendedAboveFloor(t *testing.T) {
	r, st, _ := setup(t)
	emb := embed.HashVector("solana validator configuration")
	susp := mkThread("s1", model.StatusSuspended, 0.08, []string{"solana"}, emb)
	require.NoError(t, st.PutThread(susp))

	_, matched, err := r.Recall(context.Background(), "solana validator configuration", true)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.True(t, matched[0].Reactivated)
	require.Equal(t, model.StatusActive, matched[0].Thread.Status)
	require.Greater(t, matched[0].Thread.Weight, 0.08)
}

func TestRecallExcludesSuspendedWhenFlagFalse(t *testing.T) {
	r, st, _ := setup(t)
	emb := embed.HashVector("solana validator configuration")
	susp := mkThread("s1", model.StatusSuspended, 0.08, []string{"solana"}, emb)
	require.NoError(t, st.PutThread(susp))

	_, matched, err := r.Recall(context.Background(), "solana validator configuration", false)
	require.NoError(t, err)
	require.Empty(t, matched)
}

func TestBuildInjectionIncludesRelevantThreadAndHeartbeat(t *testing.T) {
	r, st, _ := setup(t)
	emb := embed.HashVector("postgres connection pool tuning")
	active := mkThread("p1", model.StatusActive, 1, []string{"postgres"}, emb)
	require.NoError(t, st.PutThread(active))

	out, err := r.BuildInjection(context.Background(), "postgres connection pool tuning", SessionInfo{SessionID: "s1", Now: time.Now()}, "")
	require.NoError(t, err)
	require.Contains(t, out, "<system-reminder>")
	require.Contains(t, out, "Heartbeat")
}

func TestBuildInjectionCLIPassthroughSkipsSections(t *testing.T) {
	r, _, _ := setup(t)
	out, err := r.BuildInjection(context.Background(), "ai status", SessionInfo{SessionID: "s1", Now: time.Now()}, "/bin/echo")
	require.NoError(t, err)
	require.Contains(t, out, "<system-reminder>")
}

func TestTrimToBudgetDropsWholeSectionsLowestPriorityFirst(t *testing.T) {
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}
	sections := []section{
		{name: "rules", priority: 1, text: string(long)},
		{name: "focus", priority: 4, text: string(long)},
		{name: "heartbeat", priority: 7, text: "hb"},
	}
	out := trimToBudget(sections, 100)
	require.LessOrEqual(t, len(out), 100)
	require.Contains(t, out, "hb")
	require.NotContains(t, out, string(long))
}

func TestTrimToBudgetShrinksRelevanceEntryByEntry(t *testing.T) {
	ranked := []Ranked{
		{Thread: &model.Thread{ID: "t1", Title: "alpha", Summary: "first thread summary", Topics: []string{"a"}}},
		{Thread: &model.Thread{ID: "t2", Title: "beta", Summary: "second thread summary", Topics: []string{"b"}}},
		{Thread: &model.Thread{ID: "t3", Title: "gamma", Summary: "third thread summary", Topics: []string{"c"}}},
	}
	rel := relevanceSection(ranked)
	full := rel.text
	sections := []section{
		rel,
		{name: "heartbeat", priority: 7, text: "hb"},
	}

	budget := len(full) - 10
	out := trimToBudget(sections, budget)
	require.Contains(t, out, "alpha") // earliest (most relevant) entries survive
	require.NotContains(t, out, "gamma")
	require.Contains(t, out, "hb")
}
