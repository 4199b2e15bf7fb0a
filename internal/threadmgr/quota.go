package threadmgr

import (
	"sort"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// EnforceQuota suspends the lowest-weight ACTIVE threads until the ACTIVE
// count is within mode's quota. Threads tagged "pinned" are never
// suspended by quota enforcement.
func (m *Manager) EnforceQuota(mode model.ThreadMode) (int, error) {
	quota := mode.Quota()
	active := m.store.ThreadsByStatus(model.StatusActive)
	if len(active) <= quota {
		return 0, nil
	}

	candidates := make([]*model.Thread, 0, len(active))
	for _, t := range active {
		if !t.HasTag("pinned") {
			candidates = append(candidates, t)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Weight < candidates[j].Weight })

	toSuspend := len(active) - quota
	if toSuspend > len(candidates) {
		toSuspend = len(candidates)
	}

	var suspended int
	for i := 0; i < toSuspend; i++ {
		if _, err := m.Suspend(candidates[i].ID); err != nil {
			m.log.WithError(err).WithField("thread_id", candidates[i].ID).Warn("quota enforcement: suspend failed")
			continue
		}
		suspended++
	}
	return suspended, nil
}
