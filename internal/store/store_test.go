package store

import (
	"os"
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func setupTest(t *testing.T) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(testWriter{t})
	s, err := Open(t.TempDir(), logrus.NewEntry(logger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestThreadRoundTrip(t *testing.T) {
	s := setupTest(t)
	th := &model.Thread{
		ID:         "thread_1",
		Title:      "jwt rotation with redis",
		Status:     model.StatusActive,
		Topics:     []string{"jwt", "redis"},
		Weight:     0.8,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
	}
	require.NoError(t, s.PutThread(th))

	got, err := s.GetThread(th.ID)
	require.NoError(t, err)
	require.Equal(t, th.Title, got.Title)
	require.Equal(t, th.Topics, got.Topics)
	require.InDelta(t, th.Weight, got.Weight, 1e-9)
}

func TestThreadStatusIndex(t *testing.T) {
	s := setupTest(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.PutThread(&model.Thread{ID: idx(i), Status: model.StatusActive}))
	}
	require.NoError(t, s.PutThread(&model.Thread{ID: "susp", Status: model.StatusSuspended}))

	active := s.ThreadsByStatus(model.StatusActive)
	require.Len(t, active, 3)
	suspended := s.ThreadsByStatus(model.StatusSuspended)
	require.Len(t, suspended, 1)

	// moving a thread's status must update the index, not duplicate it.
	th, err := s.GetThread(idx(0))
	require.NoError(t, err)
	th.Status = model.StatusSuspended
	require.NoError(t, s.PutThread(th))
	require.Len(t, s.ThreadsByStatus(model.StatusActive), 2)
	require.Len(t, s.ThreadsByStatus(model.StatusSuspended), 2)
}

func idx(i int) string {
	return "t" + string(rune('0'+i))
}

func TestGetMissingThreadIsNotFound(t *testing.T) {
	s := setupTest(t)
	_, err := s.GetThread("does-not-exist")
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ErrNotFound, serr.Kind)
}

func TestCorruptRecordIsQuarantinedNotFatal(t *testing.T) {
	s := setupTest(t)
	require.NoError(t, s.PutThread(&model.Thread{ID: "ok", Status: model.StatusActive}))

	path := s.pathFor(KindThread, "ok")
	require.NoError(t, os.WriteFile(path, []byte("{not valid json"), 0o600))

	_, err := s.GetThread("ok")
	require.Error(t, err)
	var serr *Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, ErrCorruption, serr.Kind)

	// the corrupt file should be gone from its original path (quarantined)
	// and the directory listing must not include "ok" via the normal path.
	ids, err := s.List(KindThread)
	require.NoError(t, err)
	require.NotContains(t, ids, "ok")
}

func TestBridgeAdjacencyIndex(t *testing.T) {
	s := setupTest(t)
	require.NoError(t, s.PutThread(&model.Thread{ID: "a", Status: model.StatusActive}))
	require.NoError(t, s.PutThread(&model.Thread{ID: "b", Status: model.StatusActive}))
	br := &model.ThinkBridge{ID: "br1", SourceID: "a", TargetID: "b", Weight: 0.5, Confidence: 0.5}
	require.NoError(t, s.PutBridge(br))

	require.Len(t, s.BridgesTouching("a"), 1)
	require.Len(t, s.BridgesTouching("b"), 1)
	require.Len(t, s.BridgesTouching("c"), 0)

	require.NoError(t, s.DeleteBridge(br.ID, br.SourceID, br.TargetID))
	require.Len(t, s.BridgesTouching("a"), 0)
}

func TestUserRulesBounded(t *testing.T) {
	s := setupTest(t)
	for i := 0; i < MaxUserRules+5; i++ {
		_, err := s.AddUserRule(model.UserRule{ID: idx(i % 10), Text: "rule", Timestamp: time.Now()})
		require.NoError(t, err)
	}
	rules, err := s.GetUserRules()
	require.NoError(t, err)
	require.Len(t, rules, MaxUserRules)
}

func TestIndexesSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	logger := logrus.NewEntry(logrus.New())

	s1, err := Open(dir, logger)
	require.NoError(t, err)
	require.NoError(t, s1.PutThread(&model.Thread{ID: "persisted", Status: model.StatusActive}))

	s2, err := Open(dir, logger)
	require.NoError(t, err)
	require.Len(t, s2.ThreadsByStatus(model.StatusActive), 1)
}
