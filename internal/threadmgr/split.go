package threadmgr

import (
	"context"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// MessagePosition names one message's place in a thread for the caller
// proposing a split grouping.
type MessagePosition struct {
	MessageID string `json:"message_id"`
	Position  int    `json:"position"`
}

// PlanSplit is the first step of the two-step split contract: it returns
// every message id in order so the caller (classifier/LLM or operator)
// can propose groupings without mutating anything yet.
func (m *Manager) PlanSplit(id string) ([]MessagePosition, error) {
	unlock := m.lock(id)
	defer unlock()

	t, err := m.store.GetThread(id)
	if err != nil {
		return nil, err
	}
	out := make([]MessagePosition, len(t.Messages))
	for i, msg := range t.Messages {
		out[i] = MessagePosition{MessageID: msg.ID, Position: i}
	}
	return out, nil
}

// ConfirmSplit is the second step: it actually creates the children.
// titles and messageGroups must have matching length and order; every
// message id from the source thread must appear in exactly one group.
func (m *Manager) ConfirmSplit(ctx context.Context, srcID string, titles []string, messageGroups [][]string, lockMode model.LockMode) ([]*model.Thread, error) {
	if len(titles) != len(messageGroups) {
		return nil, invalidState("split: titles and message groups must have equal length")
	}
	if len(titles) == 0 {
		return nil, invalidState("split: at least one group is required")
	}

	unlock := m.lock(srcID)
	defer unlock()

	src, err := m.store.GetThread(srcID)
	if err != nil {
		return nil, err
	}
	if src.SplitLocked {
		return nil, invalidState("thread " + srcID + " is already split-locked")
	}

	byID := make(map[string]model.Message, len(src.Messages))
	for _, msg := range src.Messages {
		byID[msg.ID] = msg
	}

	children := make([]*model.Thread, 0, len(titles))
	for i, group := range messageGroups {
		msgs := make([]model.Message, 0, len(group))
		for _, mid := range group {
			msg, ok := byID[mid]
			if !ok {
				return nil, invalidState("split: message " + mid + " not found in source thread")
			}
			msgs = append(msgs, msg)
		}
		child := &model.Thread{
			ID:               newID("thread"),
			Title:            titles[i],
			Status:           model.StatusActive,
			Messages:         msgs,
			Topics:           append([]string(nil), src.Topics...),
			OriginType:       model.OriginSplit,
			ParentID:         src.ID,
			Weight:           clampWeight(src.Weight * childWeightFactor),
			LastActive:       time.Now(),
			CreatedAt:        time.Now(),
			SplitLocked:      true,
			SplitLockedUntil: lockMode,
		}
		m.recomputeEmbedding(ctx, child)
		if err := m.store.PutThread(child); err != nil {
			return nil, err
		}
		src.ChildIDs = append(src.ChildIDs, child.ID)
		children = append(children, child)
	}

	src.Status = model.StatusArchived
	if err := m.store.PutThread(src); err != nil {
		return nil, err
	}
	if err := m.redirectBridges(src.ID, ""); err != nil {
		return nil, err
	}

	m.notifier.ThreadModified(src)
	for _, c := range children {
		m.notifier.ThreadModified(c)
	}
	return children, nil
}
