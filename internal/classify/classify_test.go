package classify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/stretchr/testify/require"
)

var errCompleteFailed = errors.New("llm unreachable")

func thread(id string, topics []string, emb []float32) *model.Thread {
	return &model.Thread{ID: id, Topics: topics, Embedding: emb, Status: model.StatusActive}
}

func TestSimExactTopicBoost(t *testing.T) {
	content := []float32{1, 0, 0}
	t1 := thread("t1", []string{"jwt", "redis"}, []float32{1, 0, 0})
	s := Sim(content, []string{"jwt"}, t1)
	require.InDelta(t, 1.0, s, 1e-9) // 0.7*1 + 0.3*1 + 0.15 clamped to 1
}

func TestSimMismatchedTopicsLowerScore(t *testing.T) {
	content := []float32{1, 0, 0}
	t1 := thread("t1", []string{"birds"}, []float32{1, 0, 0})
	s := Sim(content, []string{"jwt"}, t1)
	require.InDelta(t, 0.7, s, 1e-9)
}

func TestDecideContinueOnStrongActiveMatch(t *testing.T) {
	c := New(nil)
	active := []*model.Thread{thread("a1", []string{"jwt"}, []float32{1, 0, 0})}
	d := c.Decide(context.Background(), model.Extraction{Subjects: []string{"jwt"}}, "x", []float32{1, 0, 0}, active, nil, PendingContext{})
	require.Equal(t, model.DecisionContinue, d.Kind)
	require.Equal(t, "a1", d.TargetID)
}

func TestDecideReactivateOnStrongSuspendedMatch(t *testing.T) {
	c := New(nil)
	suspended := []*model.Thread{thread("s1", []string{"jwt"}, []float32{1, 0, 0})}
	d := c.Decide(context.Background(), model.Extraction{Subjects: []string{"jwt"}}, "x", []float32{1, 0, 0}, nil, suspended, PendingContext{})
	require.Equal(t, model.DecisionReactivate, d.Kind)
}

func TestDecideAmbiguousSuspendedWithoutClientStaysNewThread(t *testing.T) {
	c := New(nil)
	// cosine ~0.6 alone lands sim in [0.35, 0.50) band without an exact
	// topic match or client to confirm -> falls through to new_thread.
	suspended := []*model.Thread{thread("s1", nil, []float32{1, 0, 0})}
	content := []float32{0.6, 0.8, 0}
	d := c.Decide(context.Background(), model.Extraction{}, "x", content, nil, suspended, PendingContext{})
	require.Equal(t, model.DecisionNewThread, d.Kind)
}

func TestDecideNoActiveOrSuspendedIsNewThread(t *testing.T) {
	c := New(nil)
	d := c.Decide(context.Background(), model.Extraction{}, "x", []float32{1, 0, 0}, nil, nil, PendingContext{})
	require.Equal(t, model.DecisionNewThread, d.Kind)
}

func TestDecideForkOnHighCoherence(t *testing.T) {
	client := stubClient{resp: "0.90"}
	c := New(client)
	pending := PendingContext{ThreadID: "p1", Digest: "deploy plan", At: time.Now()}
	d := c.Decide(context.Background(), model.Extraction{}, "more deploy details", nil, nil, nil, pending)
	require.Equal(t, model.DecisionFork, d.Kind)
	require.Equal(t, "p1", d.TargetID)
}

func TestDecideSkipOnLowCoherence(t *testing.T) {
	client := stubClient{resp: "0.10"}
	c := New(client)
	pending := PendingContext{ThreadID: "p1", Digest: "deploy plan", At: time.Now()}
	d := c.Decide(context.Background(), model.Extraction{}, "unrelated", nil, nil, nil, pending)
	require.Equal(t, model.DecisionSkip, d.Kind)
}

func TestDecideNewThreadWhenLLMUnreachable(t *testing.T) {
	// No client at all: an unreachable LLM must downgrade the ambiguous
	// band to NEW_THREAD, not skip the capture outright.
	c := New(nil)
	pending := PendingContext{ThreadID: "p1", Digest: "deploy plan", At: time.Now()}
	d := c.Decide(context.Background(), model.Extraction{}, "more deploy details", nil, nil, nil, pending)
	require.Equal(t, model.DecisionNewThread, d.Kind)
	require.Empty(t, d.TargetID)
}

func TestDecideNewThreadWhenLLMErrors(t *testing.T) {
	client := stubClient{err: errCompleteFailed}
	c := New(client)
	pending := PendingContext{ThreadID: "p1", Digest: "deploy plan", At: time.Now()}
	d := c.Decide(context.Background(), model.Extraction{}, "more deploy details", nil, nil, nil, pending)
	require.Equal(t, model.DecisionNewThread, d.Kind)
}

func TestPendingContextExpiresAfter10Minutes(t *testing.T) {
	p := PendingContext{ThreadID: "p1", At: time.Now().Add(-11 * time.Minute)}
	require.True(t, p.Expired(time.Now()))
	p2 := PendingContext{ThreadID: "p1", At: time.Now().Add(-5 * time.Minute)}
	require.False(t, p2.Expired(time.Now()))
}

func TestParseScoreVariants(t *testing.T) {
	require.InDelta(t, 0.9, parseScore("0.90"), 1e-9)
	require.InDelta(t, 1.0, parseScore("the score is 1.5"), 1e-9)
	require.InDelta(t, 0.0, parseScore("not a number"), 1e-9)
}

type stubClient struct {
	resp string
	err  error
}

func (s stubClient) Complete(context.Context, string, string) (string, error) {
	return s.resp, s.err
}
