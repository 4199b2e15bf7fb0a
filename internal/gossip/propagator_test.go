package gossip

import (
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func setupPropagator(t *testing.T) (*Propagator, *store.Store) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	return New(st, nil, nil, log), st
}

func mkThread(id string, emb []float32) *model.Thread {
	return &model.Thread{ID: id, Status: model.StatusActive, Embedding: emb, CreatedAt: time.Now(), LastActive: time.Now()}
}

func TestOnThreadModifiedCreatesBridgeForSimilarThreads(t *testing.T) {
	p, st := setupPropagator(t)
	a := mkThread("a", []float32{1, 0, 0})
	b := mkThread("b", []float32{0.95, 0.1, 0})
	require.NoError(t, st.PutThread(a))
	require.NoError(t, st.PutThread(b))

	p.ThreadModified(a)

	br := st.FindBridge("a", "b")
	require.NotNil(t, br)
	require.Equal(t, model.RelationExtends, br.RelationType)
}

func TestOnThreadModifiedSkipsDissimilarThreads(t *testing.T) {
	p, st := setupPropagator(t)
	a := mkThread("a", []float32{1, 0, 0})
	b := mkThread("b", []float32{0, 1, 0})
	require.NoError(t, st.PutThread(a))
	require.NoError(t, st.PutThread(b))

	p.ThreadModified(a)

	require.Nil(t, st.FindBridge("a", "b"))
}

func TestOnThreadModifiedBoostsExistingBridge(t *testing.T) {
	p, st := setupPropagator(t)
	a := mkThread("a", []float32{1, 0, 0})
	b := mkThread("b", []float32{0.95, 0.1, 0})
	require.NoError(t, st.PutThread(a))
	require.NoError(t, st.PutThread(b))

	p.ThreadModified(a)
	first := st.FindBridge("a", "b")
	require.NotNil(t, first)
	w1 := first.Weight

	p.ThreadModified(a)
	second := st.FindBridge("a", "b")
	require.Greater(t, second.Weight, w1-1e-9)
}

func TestOnBridgeUsedAppliesHebbianBoost(t *testing.T) {
	p, st := setupPropagator(t)
	br := &model.ThinkBridge{ID: "br1", SourceID: "a", TargetID: "b", Weight: 0.5, Confidence: 0.5}
	require.NoError(t, st.PutBridge(br))

	require.NoError(t, p.OnBridgeUsed(br))
	got, err := st.GetBridge("br1")
	require.NoError(t, err)
	require.InDelta(t, 0.6, got.Weight, 1e-9)
	require.Equal(t, 1, got.UseCount)
}

func TestDecayAllDeletesWeakBridges(t *testing.T) {
	p, st := setupPropagator(t)
	stale := &model.ThinkBridge{
		ID: "stale", SourceID: "a", TargetID: "b", Weight: 0.6, Confidence: 0.6,
		LastUsed: time.Now().Add(-5 * 24 * time.Hour),
	}
	fresh := &model.ThinkBridge{
		ID: "fresh", SourceID: "c", TargetID: "d", Weight: 0.6, Confidence: 0.6,
		LastUsed: time.Now(),
	}
	require.NoError(t, st.PutBridge(stale))
	require.NoError(t, st.PutBridge(fresh))

	deleted, err := p.DecayAll(HalfLifeBridge)
	require.NoError(t, err)
	require.Equal(t, 1, deleted)

	_, err = st.GetBridge("stale")
	require.Error(t, err)
	_, err = st.GetBridge("fresh")
	require.NoError(t, err)
}

func TestDecayAllUsesLowerThresholdForChildOf(t *testing.T) {
	p, st := setupPropagator(t)
	childOf := &model.ThinkBridge{
		ID: "child", SourceID: "parent", TargetID: "kid", Weight: 0.02, Confidence: 1,
		RelationType: model.RelationChildOf, LastUsed: time.Now(),
	}
	require.NoError(t, st.PutBridge(childOf))

	deleted, err := p.DecayAll(HalfLifeBridge)
	require.NoError(t, err)
	require.Equal(t, 0, deleted) // 0.02 >= 0.01 CHILD_OF death threshold, survives
}
