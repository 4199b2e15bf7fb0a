package threadmgr

import (
	"context"
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/extract"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return embed.HashVector(text), nil
}

func setupManager(t *testing.T) *Manager {
	t.Helper()
	logger := logrus.NewEntry(logrus.New())
	st, err := store.Open(t.TempDir(), logger)
	require.NoError(t, err)
	return New(st, fakeEmbedder{}, extract.New(nil), classify.New(nil), nil, logger)
}

func TestProcessInputCreatesNewThread(t *testing.T) {
	m := setupManager(t)
	th, decision, err := m.ProcessInput(context.Background(), "Let's rotate the JWT secret for the API.", model.SourceUser, nil)
	require.NoError(t, err)
	require.Equal(t, model.DecisionNewThread, decision.Kind)
	require.NotNil(t, th)
	require.Len(t, th.Messages, 1)
}

func TestProcessInputContinuesSameTopic(t *testing.T) {
	m := setupManager(t)
	first, _, err := m.ProcessInput(context.Background(), "Let's rotate the JWT secret for the API service.", model.SourceUser, nil)
	require.NoError(t, err)

	second, decision, err := m.ProcessInput(context.Background(), "Let's rotate the JWT secret for the API service.", model.SourceUser, nil)
	require.NoError(t, err)
	require.Equal(t, model.DecisionContinue, decision.Kind)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, second.Messages, 2)
}

func TestForkCreatesChildWithBridge(t *testing.T) {
	m := setupManager(t)
	parent, _, err := m.ProcessInput(context.Background(), "Planning the Q3 roadmap.", model.SourceUser, nil)
	require.NoError(t, err)

	child, err := m.Fork(context.Background(), parent.ID, "roadmap: mobile push", "", []string{"mobile"})
	require.NoError(t, err)
	require.Equal(t, parent.ID, child.ParentID)
	require.InDelta(t, parent.Weight*childWeightFactor, child.Weight, 1e-9)

	bridges := m.store.LoadBridgesTouching(parent.ID)
	require.Len(t, bridges, 1)
	require.Equal(t, model.RelationChildOf, bridges[0].RelationType)
}

func TestSuspendThenReactivate(t *testing.T) {
	m := setupManager(t)
	th, _, err := m.ProcessInput(context.Background(), "Investigating flaky CI runs.", model.SourceUser, nil)
	require.NoError(t, err)

	_, err = m.Suspend(th.ID)
	require.NoError(t, err)
	got, err := m.store.GetThread(th.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusSuspended, got.Status)

	reactivated, err := m.Reactivate(th.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, reactivated.Status)
	require.Equal(t, model.OriginReactivation, reactivated.OriginType)
}

func TestMergeRefusesSplitLockedAbsorbed(t *testing.T) {
	m := setupManager(t)
	a, _, err := m.ProcessInput(context.Background(), "thread a content", model.SourceUser, nil)
	require.NoError(t, err)
	b, _, err := m.ProcessInput(context.Background(), "billing export report", model.SourceUser, nil)
	require.NoError(t, err)

	b.SplitLocked = true
	require.NoError(t, m.store.PutThread(b))

	_, err = m.Merge(a.ID, b.ID)
	require.Error(t, err)
	var terr *Error
	require.ErrorAs(t, err, &terr)
	require.Equal(t, ErrInvalidState, terr.Kind)
}

func TestMergeCombinesMessagesAndWeight(t *testing.T) {
	m := setupManager(t)
	a, _, err := m.ProcessInput(context.Background(), "thread a content", model.SourceUser, nil)
	require.NoError(t, err)
	b, _, err := m.ProcessInput(context.Background(), "billing export report", model.SourceUser, nil)
	require.NoError(t, err)

	survivor, err := m.Merge(a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, survivor.Messages, 2)

	absorbed, err := m.store.GetThread(b.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusArchived, absorbed.Status)
	require.True(t, absorbed.HasTag("merged_into:"+survivor.ID))
}

func TestMergeSortsMessagesByTimestamp(t *testing.T) {
	m := setupManager(t)
	a, _, err := m.ProcessInput(context.Background(), "thread a content", model.SourceUser, nil)
	require.NoError(t, err)
	b, _, err := m.ProcessInput(context.Background(), "billing export report", model.SourceUser, nil)
	require.NoError(t, err)

	now := time.Now()
	a.Messages[0].Timestamp = now
	a.Messages[0].ID = "newer"
	require.NoError(t, m.store.PutThread(a))
	b.Messages[0].Timestamp = now.Add(-time.Hour)
	b.Messages[0].ID = "older"
	require.NoError(t, m.store.PutThread(b))

	survivor, err := m.Merge(a.ID, b.ID)
	require.NoError(t, err)
	require.Len(t, survivor.Messages, 2)
	require.Equal(t, "older", survivor.Messages[0].ID)
	require.Equal(t, "newer", survivor.Messages[1].ID)
}

func TestMergeRedirectsBridgeToSurvivor(t *testing.T) {
	m := setupManager(t)
	a, _, err := m.ProcessInput(context.Background(), "thread a content", model.SourceUser, nil)
	require.NoError(t, err)
	b, _, err := m.ProcessInput(context.Background(), "billing export report", model.SourceUser, nil)
	require.NoError(t, err)
	c, _, err := m.ProcessInput(context.Background(), "cache eviction policy", model.SourceUser, nil)
	require.NoError(t, err)

	bridge := &model.ThinkBridge{
		ID:           newID("bridge"),
		SourceID:     b.ID,
		TargetID:     c.ID,
		RelationType: model.RelationExtends,
		Confidence:   0.8,
		Weight:       0.8,
		CreatedAt:    time.Now(),
		LastUsed:     time.Now(),
	}
	require.NoError(t, m.store.PutBridge(bridge))

	survivor, err := m.Merge(a.ID, b.ID)
	require.NoError(t, err)

	require.Empty(t, m.store.LoadBridgesTouching(b.ID))
	redirected := m.store.FindBridge(survivor.ID, c.ID)
	require.NotNil(t, redirected)
}

func TestArchiveDeletesTouchingBridges(t *testing.T) {
	m := setupManager(t)
	parent, _, err := m.ProcessInput(context.Background(), "Planning the Q3 roadmap.", model.SourceUser, nil)
	require.NoError(t, err)
	child, err := m.Fork(context.Background(), parent.ID, "roadmap: mobile push", "", []string{"mobile"})
	require.NoError(t, err)
	require.NotEmpty(t, m.store.LoadBridgesTouching(parent.ID))

	_, err = m.Archive(parent.ID)
	require.NoError(t, err)
	require.Empty(t, m.store.LoadBridgesTouching(parent.ID))
	require.Empty(t, m.store.LoadBridgesTouching(child.ID))
}

func TestSplitTwoStepContract(t *testing.T) {
	m := setupManager(t)
	th, _, err := m.ProcessInput(context.Background(), "first topic message", model.SourceUser, nil)
	require.NoError(t, err)
	full, err := m.store.GetThread(th.ID)
	require.NoError(t, err)
	full.Messages = append(full.Messages, model.Message{ID: "extra_msg", Content: "second topic message"})
	require.NoError(t, m.store.PutThread(full))

	positions, err := m.PlanSplit(th.ID)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	groupA := []string{positions[0].MessageID}
	groupB := []string{positions[1].MessageID}
	children, err := m.ConfirmSplit(context.Background(), th.ID, []string{"part one", "part two"}, [][]string{groupA, groupB}, model.LockAgentRelease)
	require.NoError(t, err)
	require.Len(t, children, 2)
	for _, c := range children {
		require.True(t, c.SplitLocked)
		require.Equal(t, model.OriginSplit, c.OriginType)
	}

	src, err := m.store.GetThread(th.ID)
	require.NoError(t, err)
	require.Equal(t, model.StatusArchived, src.Status)
}

func TestUnlockClearsSplitLock(t *testing.T) {
	m := setupManager(t)
	th, _, err := m.ProcessInput(context.Background(), "locked thread", model.SourceUser, nil)
	require.NoError(t, err)
	th.SplitLocked = true
	th.SplitLockedUntil = model.LockCompaction
	require.NoError(t, m.store.PutThread(th))

	unlocked, err := m.Unlock(th.ID)
	require.NoError(t, err)
	require.False(t, unlocked.SplitLocked)
}

func TestPinBypassesClassifierAndSetsWeight(t *testing.T) {
	m := setupManager(t)
	th, err := m.Pin(context.Background(), "", "remember: prefer small PRs", "team conventions", []string{"process"}, 0.5)
	require.NoError(t, err)
	require.InDelta(t, 1.5, th.Weight, 1e-9)
	require.True(t, th.HasTag("pinned"))
}

func TestEnforceQuotaUnknownModeUsesDefaultQuota(t *testing.T) {
	m := setupManager(t)
	for _, content := range []string{"kubernetes ingress timeouts", "postgres vacuum tuning", "react hydration errors"} {
		_, _, err := m.ProcessInput(context.Background(), content, model.SourceUser, nil)
		require.NoError(t, err)
	}
	suspended, err := m.EnforceQuota(model.ThreadMode("bogus-defaults-to-normal-quota"))
	require.NoError(t, err)
	require.Equal(t, 0, suspended) // 3 active threads, default quota 50, nothing to suspend
}
