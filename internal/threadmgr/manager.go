// Package threadmgr implements the thread lifecycle: the only writer of
// thread records, on top of internal/store.
package threadmgr

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ai-memoryd/memoryd/internal/classify"
	"github.com/ai-memoryd/memoryd/internal/embed"
	"github.com/ai-memoryd/memoryd/internal/extract"
	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// activationBoost is added to weight on any activation (continue, fork,
// reactivate), clamped to the [0, 2] range threads otherwise operate in.
const activationBoost = 0.1

// Notifier receives lifecycle events the GossipPropagator reacts to.
// Decoupled via an interface so threadmgr never imports internal/gossip.
type Notifier interface {
	ThreadModified(t *model.Thread)
}

type noopNotifier struct{}

func (noopNotifier) ThreadModified(*model.Thread) {}

// Manager is the ThreadManager: thread lifecycle operations guarded by
// per-thread-id locks, backed by a Store.
type Manager struct {
	store      *store.Store
	embedder   embed.Embedder
	extractor  *extract.Extractor
	classifier *classify.Classifier
	notifier   Notifier
	log        *logrus.Entry

	idLocks sync.Map // map[string]*sync.Mutex, keyed by thread id

	pendingMu sync.Mutex
	pending   classify.PendingContext
}

// New wires a Manager from its collaborators. notifier may be nil (tests,
// or a daemon not yet wired to the gossip bus).
func New(st *store.Store, embedder embed.Embedder, extractor *extract.Extractor, classifier *classify.Classifier, notifier Notifier, log *logrus.Entry) *Manager {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Manager{
		store:      st,
		embedder:   embedder,
		extractor:  extractor,
		classifier: classifier,
		notifier:   notifier,
		log:        log,
	}
}

// lock acquires the in-process mutex for a thread id, blocking. Used by
// operations that must serialize with any other in-flight op on the same
// thread within this daemon.
func (m *Manager) lock(id string) func() {
	v, _ := m.idLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// tryLock is the non-blocking counterpart: a caller that finds the lock
// already held reports Conflict and lets its own caller retry rather than
// queueing behind an unrelated in-flight write.
func (m *Manager) tryLock(id string) (func(), bool) {
	v, _ := m.idLocks.LoadOrStore(id, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	if !mu.TryLock() {
		return nil, false
	}
	return mu.Unlock, true
}

func newID(prefix string) string {
	return prefix + "_" + strconv.FormatInt(time.Now().UnixNano(), 10) + "_" + uuid.New().String()
}

func clampWeight(w float64) float64 {
	if w < 0 {
		return 0
	}
	if w > 2 {
		return 2
	}
	return w
}

// recomputeEmbedding follows §4.5: re-embed title + topics + a short
// summary suffix, so the vector tracks what the thread is about rather
// than just its most recent message.
func (m *Manager) recomputeEmbedding(ctx context.Context, t *model.Thread) {
	text := t.Title
	for _, topic := range t.Topics {
		text += " " + topic
	}
	summary := t.Summary
	if len(summary) > 200 {
		summary = summary[:200]
	}
	text += " " + summary

	v, err := m.embedder.Embed(ctx, text)
	if err != nil {
		m.log.WithError(err).WithField("thread_id", t.ID).Warn("embedding recompute failed")
		return
	}
	t.Embedding = v
}

// ProcessInput is the pipeline entrypoint: extract, embed, decide, apply.
func (m *Manager) ProcessInput(ctx context.Context, content string, source model.SourceType, metadata map[string]string) (*model.Thread, model.Decision, error) {
	ex := m.extractor.Extract(ctx, content, source)
	contentEmbedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		m.log.WithError(err).Warn("content embedding failed, proceeding with zero vector")
	}

	active := m.store.ThreadsByStatus(model.StatusActive)
	suspended := m.store.ThreadsByStatus(model.StatusSuspended)

	m.pendingMu.Lock()
	pending := m.pending
	m.pendingMu.Unlock()

	decision := m.classifier.Decide(ctx, ex, content, contentEmbedding, active, suspended, pending)

	msg := model.Message{
		ID:        newID("msg"),
		Content:   content,
		Source:    source,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}

	var thread *model.Thread
	switch decision.Kind {
	case model.DecisionContinue:
		thread, err = m.applyToExisting(ctx, decision.TargetID, ex, msg)
	case model.DecisionReactivate:
		thread, err = m.applyReactivate(ctx, decision.TargetID, ex, msg)
	case model.DecisionFork:
		thread, err = m.applyFork(ctx, decision.TargetID, ex, msg)
	case model.DecisionNewThread:
		thread, err = m.applyNew(ctx, ex, msg)
	case model.DecisionSkip:
		return nil, decision, nil
	}
	if err != nil {
		return nil, decision, err
	}

	m.pendingMu.Lock()
	m.pending = classify.PendingContext{ThreadID: thread.ID, Digest: digest(content), At: time.Now()}
	m.pendingMu.Unlock()

	return thread, decision, nil
}

func digest(content string) string {
	if len(content) > 300 {
		return content[:300]
	}
	return content
}

func (m *Manager) applyToExisting(ctx context.Context, id string, ex model.Extraction, msg model.Message) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	t.Messages = append(t.Messages, msg)
	t.Weight = clampWeight(t.Weight + activationBoost)
	t.LastActive = time.Now()
	t.ActivationCount++
	mergeTopics(t, ex.Topics)
	if ex.Summary != "" {
		t.Summary = ex.Summary
	}
	m.recomputeEmbedding(ctx, t)
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}

func (m *Manager) applyReactivate(ctx context.Context, id string, ex model.Extraction, msg model.Message) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	t.Status = model.StatusActive
	t.OriginType = model.OriginReactivation
	t.Messages = append(t.Messages, msg)
	t.Weight = clampWeight(t.Weight + activationBoost)
	t.LastActive = time.Now()
	t.ActivationCount++
	mergeTopics(t, ex.Topics)
	m.recomputeEmbedding(ctx, t)
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}

func (m *Manager) applyNew(ctx context.Context, ex model.Extraction, msg model.Message) (*model.Thread, error) {
	t := &model.Thread{
		ID:         newID("thread"),
		Title:      ex.Title,
		Status:     model.StatusActive,
		Messages:   []model.Message{msg},
		Summary:    ex.Summary,
		Topics:     ex.Topics,
		OriginType: sourceOrigin(msg.Source),
		Weight:     0.5,
		LastActive: time.Now(),
		CreatedAt:  time.Now(),
	}
	m.recomputeEmbedding(ctx, t)
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}

func sourceOrigin(s model.SourceType) model.OriginType {
	switch s {
	case model.SourceRead:
		return model.OriginFileRead
	case model.SourceTask:
		return model.OriginTask
	case model.SourceFetch:
		return model.OriginFetch
	default:
		return model.OriginPrompt
	}
}

func mergeTopics(t *model.Thread, topics []string) {
	seen := make(map[string]bool, len(t.Topics))
	for _, top := range t.Topics {
		seen[top] = true
	}
	for _, top := range topics {
		if !seen[top] {
			t.Topics = append(t.Topics, top)
			seen[top] = true
		}
	}
}
