package store

import (
	"github.com/ai-memoryd/memoryd/internal/model"
)

// PutBridge persists b and updates the adjacency index for both endpoints.
// It only adds adjacency entries: if b replaces a prior version whose
// endpoints changed, the old endpoints keep stale entries until
// DeleteBridge or Reindex removes them.
func (s *Store) PutBridge(b *model.ThinkBridge) error {
	lock := s.lockFor(KindBridge, b.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.putLocked(KindBridge, b.ID, b); err != nil {
		return err
	}
	s.mu.Lock()
	s.indexBridgeLocked(b.ID, b.SourceID, b.TargetID)
	s.mu.Unlock()
	return nil
}

// GetBridge loads a single bridge by id.
func (s *Store) GetBridge(id string) (*model.ThinkBridge, error) {
	var b model.ThinkBridge
	lock := s.lockFor(KindBridge, id)
	lock.Lock()
	err := s.getLocked(KindBridge, id, &b)
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// DeleteBridge removes a bridge record and its adjacency-index entries.
func (s *Store) DeleteBridge(id, sourceID, targetID string) error {
	if err := s.Delete(KindBridge, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.removeBridgeIndexLocked(id, sourceID, targetID)
	s.mu.Unlock()
	return nil
}

// BridgesTouching returns every bridge id in the adjacency index that has
// threadID as one endpoint — O(deg) rather than a full directory scan.
func (s *Store) BridgesTouching(threadID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.bridgeAdj[threadID]
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return out
}

// LoadBridgesTouching resolves BridgesTouching into full records.
func (s *Store) LoadBridgesTouching(threadID string) []*model.ThinkBridge {
	ids := s.BridgesTouching(threadID)
	out := make([]*model.ThinkBridge, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBridge(id)
		if err != nil {
			s.log.WithError(err).WithField("id", id).Warn("skipping bridge")
			continue
		}
		out = append(out, b)
	}
	return out
}

// AllBridges loads every bridge record via a directory scan.
func (s *Store) AllBridges() []*model.ThinkBridge {
	ids, err := s.List(KindBridge)
	if err != nil {
		s.log.WithError(err).Warn("listing all bridges")
		return nil
	}
	out := make([]*model.ThinkBridge, 0, len(ids))
	for _, id := range ids {
		b, err := s.GetBridge(id)
		if err != nil {
			s.log.WithError(err).WithField("id", id).Warn("skipping bridge")
			continue
		}
		out = append(out, b)
	}
	return out
}

// FindBridge returns the bridge between a and b if one exists (endpoint
// order does not matter).
func (s *Store) FindBridge(a, b string) *model.ThinkBridge {
	for _, br := range s.LoadBridgesTouching(a) {
		s1, s2 := br.Endpoints()
		k1, k2 := a, b
		if k1 > k2 {
			k1, k2 = k2, k1
		}
		if s1 == k1 && s2 == k2 {
			return br
		}
	}
	return nil
}
