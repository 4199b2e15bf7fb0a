package threadmgr

import (
	"sort"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// Merge absorbs `absorbed` into `survivor`: messages and topics combine,
// weight becomes max(a, b) + 0.1, and the absorbed thread is archived
// (tagged merged_into:<survivor>) rather than deleted; its bridges are
// re-pointed onto the survivor, folded into an existing survivor bridge to
// the same endpoint, or dropped where they would self-loop.
// Refuses a split-locked absorbed thread (invariant 6).
func (m *Manager) Merge(survivorID, absorbedID string) (*model.Thread, error) {
	if survivorID == absorbedID {
		return nil, invalidState("cannot merge a thread into itself")
	}

	unlockA := m.lock(survivorID)
	defer unlockA()
	unlockB := m.lock(absorbedID)
	defer unlockB()

	survivor, err := m.store.GetThread(survivorID)
	if err != nil {
		return nil, err
	}
	absorbed, err := m.store.GetThread(absorbedID)
	if err != nil {
		return nil, err
	}
	if absorbed.SplitLocked {
		return nil, invalidState("absorbed thread " + absorbedID + " is split-locked")
	}

	survivor.Messages = append(survivor.Messages, absorbed.Messages...)
	sort.SliceStable(survivor.Messages, func(i, j int) bool {
		return survivor.Messages[i].Timestamp.Before(survivor.Messages[j].Timestamp)
	})
	mergeTopics(survivor, absorbed.Topics)
	survivor.Weight = clampWeight(max64(survivor.Weight, absorbed.Weight) + 0.1)
	for _, tag := range absorbed.Tags {
		if !survivor.HasTag(tag) {
			survivor.Tags = append(survivor.Tags, tag)
		}
	}

	if err := m.store.PutThread(survivor); err != nil {
		return nil, err
	}

	absorbed.Status = model.StatusArchived
	mergedTag := "merged_into:" + survivor.ID
	if !absorbed.HasTag(mergedTag) {
		absorbed.Tags = append(absorbed.Tags, mergedTag)
	}
	if err := m.store.PutThread(absorbed); err != nil {
		return nil, err
	}
	if err := m.redirectBridges(absorbed.ID, survivor.ID); err != nil {
		return nil, err
	}

	m.notifier.ThreadModified(survivor)
	m.notifier.ThreadModified(absorbed)
	return survivor, nil
}

func max64(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
