package store

import (
	"github.com/ai-memoryd/memoryd/internal/model"
)

// PutThread persists t and updates the status-partitioned hot index.
func (s *Store) PutThread(t *model.Thread) error {
	lock := s.lockFor(KindThread, t.ID)
	lock.Lock()
	defer lock.Unlock()
	if err := s.putLocked(KindThread, t.ID, t); err != nil {
		return err
	}
	s.mu.Lock()
	s.indexThreadLocked(t.ID, string(t.Status))
	s.mu.Unlock()
	return nil
}

// GetThread loads a single thread by id.
func (s *Store) GetThread(id string) (*model.Thread, error) {
	var t model.Thread
	lock := s.lockFor(KindThread, id)
	lock.Lock()
	err := s.getLocked(KindThread, id, &t)
	lock.Unlock()
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteThread removes a thread record and its index entry.
func (s *Store) DeleteThread(id string) error {
	if err := s.Delete(KindThread, id); err != nil {
		return err
	}
	s.mu.Lock()
	s.removeThreadIndexLocked(id)
	s.mu.Unlock()
	return nil
}

// ListThreadIDs returns every thread id, from the fast in-memory index
// when status is non-empty, else a directory scan.
func (s *Store) ListThreadIDs(status model.Status) ([]string, error) {
	if status == "" {
		return s.List(KindThread)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.threadsByStat[string(status)]
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids, nil
}

// LoadThreads resolves a list of ids into thread records, skipping (and
// logging) any that fail to load rather than aborting the whole batch —
// a single corrupt thread must not take down a listing of the other 199.
func (s *Store) LoadThreads(ids []string) []*model.Thread {
	out := make([]*model.Thread, 0, len(ids))
	for _, id := range ids {
		t, err := s.GetThread(id)
		if err != nil {
			s.log.WithError(err).WithField("id", id).Warn("skipping thread")
			continue
		}
		out = append(out, t)
	}
	return out
}

// ThreadsByStatus is a convenience wrapper combining ListThreadIDs+LoadThreads.
func (s *Store) ThreadsByStatus(status model.Status) []*model.Thread {
	ids, err := s.ListThreadIDs(status)
	if err != nil {
		s.log.WithError(err).Warn("listing threads by status")
		return nil
	}
	return s.LoadThreads(ids)
}

// AllThreads loads every thread record, regardless of status.
func (s *Store) AllThreads() []*model.Thread {
	ids, err := s.ListThreadIDs("")
	if err != nil {
		s.log.WithError(err).Warn("listing all threads")
		return nil
	}
	return s.LoadThreads(ids)
}
