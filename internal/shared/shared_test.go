package shared

import (
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func setup(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	log := logrus.NewEntry(logrus.New())
	st, err := store.Open(t.TempDir(), log)
	require.NoError(t, err)
	return New(st), st
}

func TestPublishDoesNotLeakOriginalThreadID(t *testing.T) {
	m, _ := setup(t)
	th := &model.Thread{ID: "local-secret-id", Title: "auth redesign", Summary: "notes", Topics: []string{"auth"}}

	snap, err := m.Publish(th, "agent-a")
	require.NoError(t, err)
	require.NotEqual(t, th.ID, snap.SharedID)
	require.Equal(t, th.Title, snap.Title)
}

func TestSyncPullsSnapshotIntoSubscriptions(t *testing.T) {
	m, _ := setup(t)
	th := &model.Thread{ID: "t1", Title: "auth redesign", Summary: "notes"}
	snap, err := m.Publish(th, "agent-a")
	require.NoError(t, err)

	_, err = m.Sync(snap.SharedID)
	require.NoError(t, err)
	require.Len(t, m.Subscribed(), 1)
}

func TestAcceptCreatesBridgeAndClearsProposal(t *testing.T) {
	m, st := setup(t)
	p, err := m.Propose("local-1", "remote-shared-1", "related auth work")
	require.NoError(t, err)

	bridge, err := m.Accept(p.ID)
	require.NoError(t, err)
	require.Equal(t, "local-1", bridge.SourceID)
	require.Equal(t, "remote-shared-1", bridge.TargetID)

	_, err = st.GetProposal(p.ID)
	require.Error(t, err)
}

func TestAcceptRejectsExpiredProposal(t *testing.T) {
	m, st := setup(t)
	p := &model.BridgeProposal{
		ID: "stale", LocalID: "l1", RemoteID: "r1",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-24 * time.Hour),
	}
	require.NoError(t, st.PutProposal(p))

	_, err := m.Accept(p.ID)
	require.Error(t, err)

	_, err = st.GetProposal(p.ID)
	require.Error(t, err)
}

func TestRejectDeletesProposalWithoutBridge(t *testing.T) {
	m, st := setup(t)
	p, err := m.Propose("local-1", "remote-1", "maybe related")
	require.NoError(t, err)

	require.NoError(t, m.Reject(p.ID))
	_, err = st.GetProposal(p.ID)
	require.Error(t, err)
	require.Empty(t, st.AllBridges())
}

func TestExpirePendingRemovesOnlyExpired(t *testing.T) {
	m, st := setup(t)
	fresh, err := m.Propose("l1", "r1", "fresh")
	require.NoError(t, err)
	stale := &model.BridgeProposal{
		ID: "stale", LocalID: "l2", RemoteID: "r2",
		CreatedAt: time.Now().Add(-48 * time.Hour),
		ExpiresAt: time.Now().Add(-1 * time.Hour),
	}
	require.NoError(t, st.PutProposal(stale))

	expired, err := m.ExpirePending()
	require.NoError(t, err)
	require.Equal(t, 1, expired)

	_, err = st.GetProposal(fresh.ID)
	require.NoError(t, err)
	_, err = st.GetProposal(stale.ID)
	require.Error(t, err)
}
