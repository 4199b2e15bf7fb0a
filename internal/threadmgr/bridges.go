package threadmgr

import "github.com/ai-memoryd/memoryd/internal/model"

// otherEnd returns the endpoint of b that is not known.
func otherEnd(b *model.ThinkBridge, known string) string {
	if b.SourceID == known {
		return b.TargetID
	}
	return b.SourceID
}

// redirectBridges resolves every bridge touching archivedID per invariant
// 2: if survivorID is set (a merge), each bridge is re-pointed onto the
// survivor, merging into any bridge already there rather than duplicating
// it; if survivorID is empty (a plain archive or split), every touching
// bridge is simply deleted. Either way no live bridge is left with an
// endpoint on a non-ACTIVE thread.
func (m *Manager) redirectBridges(archivedID, survivorID string) error {
	for _, b := range m.store.LoadBridgesTouching(archivedID) {
		if err := m.store.DeleteBridge(b.ID, b.SourceID, b.TargetID); err != nil {
			return err
		}
		if survivorID == "" {
			continue
		}
		other := otherEnd(b, archivedID)
		if other == survivorID {
			continue
		}
		if existing := m.store.FindBridge(survivorID, other); existing != nil {
			if b.Weight > existing.Weight {
				existing.Weight = b.Weight
			}
			existing.UseCount += b.UseCount
			if err := m.store.PutBridge(existing); err != nil {
				return err
			}
			continue
		}
		redirected := *b
		redirected.ID = newID("bridge")
		if redirected.SourceID == archivedID {
			redirected.SourceID = survivorID
		} else {
			redirected.TargetID = survivorID
		}
		if err := m.store.PutBridge(&redirected); err != nil {
			return err
		}
	}
	return nil
}
