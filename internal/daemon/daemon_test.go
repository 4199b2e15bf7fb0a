package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/compact"
	"github.com/ai-memoryd/memoryd/internal/config"
	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/extract"
	"github.com/ai-memoryd/memoryd/internal/gossip"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/retrieve"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/ai-memoryd/memoryd/internal/threadmgr"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	return embed.HashVector(text), nil
}

func newTestServer(t *testing.T) (*Server, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	log := logrus.NewEntry(logrus.New())

	st, err := store.Open(dir, log)
	require.NoError(t, err)

	prop := gossip.New(st, nil, nil, log)
	mgr := threadmgr.New(st, fakeEmbedder{}, extract.New(nil), classify.New(nil), prop, log)
	ret := retrieve.New(st, fakeEmbedder{}, mgr)
	cpt := compact.New(st, extract.New(nil), mgr)
	cfg := config.Default()

	s := New(filepath.Join(dir, "processor.sock"), filepath.Join(dir, "processor.pid"), st, mgr, classify.New(nil), prop, ret, cpt, cfg, log)
	return s, st
}

func TestDispatchPing(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"ping"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, true, rep["pong"])
}

func TestDispatchUnknownOp(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"nonsense"}`))
	require.Equal(t, "error", rep["status"])
	errBody := rep["error"].(map[string]string)
	require.Equal(t, string(store.ErrInvalidArg), errBody["kind"])
}

func TestDispatchMalformedRequest(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`not json`))
	require.Equal(t, "error", rep["status"])
}

func TestDispatchCaptureSkippedWhenAutoCaptureOff(t *testing.T) {
	s, _ := newTestServer(t)
	s.cfg.Settings.AutoCapture = false
	rep := s.dispatch(context.Background(), []byte(`{"op":"capture","tool":"write","content":"hello"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, "skipped", rep["action"])
}

func TestDispatchCaptureNewThread(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"capture","tool":"write","content":"implementing the new checkout flow for the payments service"}`))
	require.Equal(t, "ok", rep["status"])
	require.NotEmpty(t, rep["thread_id"])
}

func TestDispatchRateContextUnknownThread(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"rate_context","thread_id":"missing","useful":true}`))
	require.Equal(t, "error", rep["status"])
	errBody := rep["error"].(map[string]string)
	require.Equal(t, string(threadmgr.ErrNotFound), errBody["kind"])
}

func TestDispatchFocusThenUnfocus(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"focus","topic":"billing","weight":2}`))
	require.Equal(t, "ok", rep["status"])

	rep = s.dispatch(context.Background(), []byte(`{"op":"unfocus","topic":"billing"}`))
	require.Equal(t, "ok", rep["status"])
	active := rep["active_focus"].([]model.FocusEntry)
	require.Empty(t, active)
}

func TestDispatchCompactDryRun(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutThread(&model.Thread{
		ID: "t1", Status: model.StatusActive, Title: "payments", Summary: "billing migration",
		Weight: 1, RelevanceScore: 1, CreatedAt: time.Now(), LastActive: time.Now(),
	}))

	rep := s.dispatch(context.Background(), []byte(`{"op":"compact","strategy":"gentle","dry_run":true}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, true, rep["dry_run"])
	require.Equal(t, 1, rep["threads_folded"])
}

func TestDispatchSuggestions(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutThread(&model.Thread{
		ID: "t1", Status: model.StatusActive, Title: "big thread", RelevanceScore: 0.1,
		Weight: 1, CreatedAt: time.Now(), LastActive: time.Now(),
	}))

	rep := s.dispatch(context.Background(), []byte(`{"op":"suggestions"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, 1, rep["active_threads"])
}

func TestDispatchStatus(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"status"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, 0, rep["active_threads"])
}

func TestServerStartRefusesSecondInstance(t *testing.T) {
	s1, _ := newTestServer(t)
	require.NoError(t, s1.Start())
	defer s1.Shutdown(context.Background())
	go s1.Serve()

	s2 := New(s1.socketPath, s1.pidPath, s1.store, s1.manager, s1.classifier, s1.propagator, s1.retriever, s1.compactor, s1.cfg, s1.log)
	err := s2.Start()
	require.Error(t, err)
}

func TestServerServeRoundTrip(t *testing.T) {
	s, _ := newTestServer(t)
	require.NoError(t, s.Start())
	go s.Serve()
	defer s.Shutdown(context.Background())

	conn, err := net.DialTimeout("unix", s.socketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("{\"op\":\"ping\"}\n"))
	require.NoError(t, err)

	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)

	var rep map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rep))
	require.Equal(t, "ok", rep["status"])
}

func TestMaintenanceTickEnforcesQuota(t *testing.T) {
	s, st := newTestServer(t)
	s.cfg.Settings.ThreadMode = model.ModeLight
	quota := s.cfg.Settings.ThreadMode.Quota()

	for i := 0; i < quota+2; i++ {
		th := &model.Thread{
			ID: "t" + string(rune('a'+i)), Status: model.StatusActive,
			Weight: float64(i) + 1, RelevanceScore: 1,
			Title: "thread", CreatedAt: time.Now(), LastActive: time.Now(),
		}
		require.NoError(t, st.PutThread(th))
	}

	s.runMaintenanceTick()

	require.LessOrEqual(t, len(st.ThreadsByStatus(model.StatusActive)), quota)
}

func TestDispatchThreadsListAndGet(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutThread(&model.Thread{
		ID: "t1", Status: model.StatusActive, Title: "checkout work",
		Weight: 1, RelevanceScore: 1, CreatedAt: time.Now(), LastActive: time.Now(),
	}))

	rep := s.dispatch(context.Background(), []byte(`{"op":"threads"}`))
	require.Equal(t, "ok", rep["status"])
	threads := rep["threads"].([]map[string]any)
	require.Len(t, threads, 1)
	require.Equal(t, "t1", threads[0]["id"])

	rep = s.dispatch(context.Background(), []byte(`{"op":"thread_get","thread_id":"t1"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, "checkout work", rep["title"])
}

func TestDispatchThreadGetUnknown(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"thread_get","thread_id":"missing"}`))
	require.Equal(t, "error", rep["status"])
}

func TestDispatchBridgesListFiltersByThread(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutBridge(&model.ThinkBridge{
		ID: "b1", SourceID: "a", TargetID: "b", Weight: 0.5, Confidence: 0.8,
		RelationType: model.RelationExtends, CreatedAt: time.Now(), LastUsed: time.Now(),
	}))

	rep := s.dispatch(context.Background(), []byte(`{"op":"bridges","thread_id":"a"}`))
	require.Equal(t, "ok", rep["status"])
	require.Len(t, rep["bridges"].([]map[string]any), 1)

	rep = s.dispatch(context.Background(), []byte(`{"op":"bridges","thread_id":"nowhere"}`))
	require.Equal(t, "ok", rep["status"])
	require.Empty(t, rep["bridges"].([]map[string]any))
}

func TestDispatchHeartbeat(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"heartbeat"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, 0, rep["beat"])
}

func TestDispatchReindex(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"reindex"}`))
	require.Equal(t, "ok", rep["status"])
	require.Equal(t, true, rep["reindexed"])
}

func TestDispatchInject(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutThread(&model.Thread{
		ID: "t1", Status: model.StatusActive, Title: "payments work",
		Topics: []string{"payments"}, Weight: 1, RelevanceScore: 1,
		CreatedAt: time.Now(), LastActive: time.Now(),
	}))

	rep := s.dispatch(context.Background(), []byte(`{"op":"inject","prompt":"let's keep going on payments","session_id":"s1"}`))
	require.Equal(t, "ok", rep["status"])
	block, ok := rep["block"].(string)
	require.True(t, ok)
	require.Contains(t, block, "system-reminder")

	hb, err := st.GetHeartbeat()
	require.NoError(t, err)
	require.Equal(t, "s1", hb.LastSessionID)
}

func TestDispatchSharePublishSyncAndPropose(t *testing.T) {
	s, st := newTestServer(t)
	require.NoError(t, st.PutThread(&model.Thread{
		ID: "local1", Status: model.StatusActive, Title: "refactor plan",
		Weight: 1, RelevanceScore: 1, CreatedAt: time.Now(), LastActive: time.Now(),
	}))

	rep := s.dispatch(context.Background(), []byte(`{"op":"share_publish","thread_id":"local1","publisher_id":"agent-a"}`))
	require.Equal(t, "ok", rep["status"])
	sharedID, _ := rep["shared_id"].(string)
	require.NotEmpty(t, sharedID)

	rep = s.dispatch(context.Background(), []byte(`{"op":"share_sync","shared_id":"`+sharedID+`"}`))
	require.Equal(t, "ok", rep["status"])

	rep = s.dispatch(context.Background(), []byte(`{"op":"share_list"}`))
	require.Equal(t, "ok", rep["status"])
	require.Len(t, rep["snapshots"].([]map[string]any), 1)

	rep = s.dispatch(context.Background(), []byte(`{"op":"share_propose","local_id":"local1","remote_shared_id":"`+sharedID+`","reason":"related work"}`))
	require.Equal(t, "ok", rep["status"])
	proposalID, _ := rep["proposal_id"].(string)
	require.NotEmpty(t, proposalID)

	rep = s.dispatch(context.Background(), []byte(`{"op":"share_accept","proposal_id":"`+proposalID+`"}`))
	require.Equal(t, "ok", rep["status"])
	require.NotEmpty(t, rep["bridge_id"])
}

func TestDispatchShareAcceptUnknownProposal(t *testing.T) {
	s, _ := newTestServer(t)
	rep := s.dispatch(context.Background(), []byte(`{"op":"share_accept","proposal_id":"nope"}`))
	require.Equal(t, "error", rep["status"])
}

func TestMaintenanceTickArchivesStaleSuspended(t *testing.T) {
	s, st := newTestServer(t)
	old := &model.Thread{
		ID: "old", Status: model.StatusSuspended, Weight: 0.05, RelevanceScore: 1,
		Title: "stale", CreatedAt: time.Now().Add(-100 * time.Hour),
		LastActive: time.Now().Add(-100 * time.Hour),
	}
	require.NoError(t, st.PutThread(old))

	s.runMaintenanceTick()

	got, err := st.GetThread("old")
	require.NoError(t, err)
	require.Equal(t, model.StatusArchived, got.Status)
}
