package threadmgr

import (
	"context"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// childWeightFactor discounts inherited weight for forked/split children
// so a busy parent doesn't spawn children that instantly outrank it.
const childWeightFactor = 0.8

// Fork creates a child thread under parent, linked by a CHILD_OF bridge.
// Exported for direct API callers; ProcessInput uses applyFork internally
// to additionally append the triggering message.
func (m *Manager) Fork(ctx context.Context, parentID, title, summary string, topics []string) (*model.Thread, error) {
	unlockParent := m.lock(parentID)
	defer unlockParent()

	parent, err := m.store.GetThread(parentID)
	if err != nil {
		return nil, err
	}

	child := &model.Thread{
		ID:         newID("thread"),
		Title:      title,
		Status:     model.StatusActive,
		Summary:    summary,
		Topics:     topics,
		OriginType: model.OriginPrompt,
		ParentID:   parent.ID,
		Weight:     clampWeight(parent.Weight * childWeightFactor),
		LastActive: time.Now(),
		CreatedAt:  time.Now(),
	}
	m.recomputeEmbedding(ctx, child)
	if err := m.store.PutThread(child); err != nil {
		return nil, err
	}

	parent.ChildIDs = append(parent.ChildIDs, child.ID)
	if err := m.store.PutThread(parent); err != nil {
		return nil, err
	}

	bridge := &model.ThinkBridge{
		ID:            newID("bridge"),
		SourceID:      parent.ID,
		TargetID:      child.ID,
		RelationType:  model.RelationChildOf,
		Confidence:    1,
		Weight:        1,
		LastUsed:      time.Now(),
		CreatedAt:     time.Now(),
	}
	if err := m.store.PutBridge(bridge); err != nil {
		return nil, err
	}

	m.notifier.ThreadModified(parent)
	m.notifier.ThreadModified(child)
	return child, nil
}

func (m *Manager) applyFork(ctx context.Context, parentID string, ex model.Extraction, msg model.Message) (*model.Thread, error) {
	child, err := m.Fork(ctx, parentID, ex.Title, ex.Summary, ex.Topics)
	if err != nil {
		return nil, err
	}
	unlock := m.lock(child.ID)
	child.Messages = append(child.Messages, msg)
	child.Weight = clampWeight(child.Weight + activationBoost)
	child.LastActive = time.Now()
	child.ActivationCount++
	m.recomputeEmbedding(ctx, child)
	err = m.store.PutThread(child)
	unlock()
	if err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(child)
	return child, nil
}

// Reactivate is the direct-API counterpart to the decision-driven
// reactivation path: status ACTIVE, boost weight, record activation.
func (m *Manager) Reactivate(id string) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	t.Status = model.StatusActive
	t.OriginType = model.OriginReactivation
	t.Weight = clampWeight(t.Weight + activationBoost)
	t.LastActive = time.Now()
	t.ActivationCount++
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}

// Suspend moves a thread to SUSPENDED. Not deleted; embeddings kept.
func (m *Manager) Suspend(id string) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	t.Status = model.StatusSuspended
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}

// Archive moves a thread to ARCHIVED and deletes every bridge touching it,
// since it has no merge successor to redirect them onto (invariant 2).
func (m *Manager) Archive(id string) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	t.Status = model.StatusArchived
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	if err := m.redirectBridges(t.ID, ""); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}

// Unlock clears a thread's split lock.
func (m *Manager) Unlock(id string) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	if !t.SplitLocked {
		return t, nil
	}
	t.SplitLocked = false
	t.SplitLockedUntil = ""
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Rename changes a thread's title.
func (m *Manager) Rename(id, newTitle string) (*model.Thread, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	t.Title = newTitle
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	return t, nil
}

// maxPinBoost bounds Pin's boost argument per the contract (boost in
// [0, 0.5]).
const maxPinBoost = 0.5

// Pin creates or updates a thread with weight = 1 + boost, tagged
// "pinned", bypassing the classifier entirely.
func (m *Manager) Pin(ctx context.Context, existingID, content, title string, topics []string, boost float64) (*model.Thread, error) {
	if boost < 0 {
		boost = 0
	}
	if boost > maxPinBoost {
		boost = maxPinBoost
	}

	if existingID != "" {
		unlock := m.lock(existingID)
		defer unlock()
		t, err := m.store.GetThread(existingID)
		if err != nil {
			return nil, err
		}
		t.Weight = 1 + boost
		if title != "" {
			t.Title = title
		}
		mergeTopics(t, topics)
		if !t.HasTag("pinned") {
			t.Tags = append(t.Tags, "pinned")
		}
		if content != "" {
			t.Messages = append(t.Messages, model.Message{
				ID: newID("msg"), Content: content, Source: model.SourceAgentPin, Timestamp: time.Now(),
			})
		}
		if err := m.store.PutThread(t); err != nil {
			return nil, err
		}
		m.notifier.ThreadModified(t)
		return t, nil
	}

	t := &model.Thread{
		ID:         newID("thread"),
		Title:      title,
		Status:     model.StatusActive,
		Topics:     topics,
		OriginType: model.OriginPrompt,
		Weight:     1 + boost,
		LastActive: time.Now(),
		CreatedAt:  time.Now(),
		Tags:       []string{"pinned"},
	}
	if content != "" {
		t.Messages = []model.Message{{ID: newID("msg"), Content: content, Source: model.SourceAgentPin, Timestamp: time.Now()}}
	}
	m.recomputeEmbedding(ctx, t)
	if err := m.store.PutThread(t); err != nil {
		return nil, err
	}
	m.notifier.ThreadModified(t)
	return t, nil
}
