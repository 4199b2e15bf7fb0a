package threadmgr

import (
	"math"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// HalfLifeThread is the default thread weight half-life. Overridable via
// tuning.half_life_thread_days.
const HalfLifeThread = 36 * time.Hour // 1.5 days

// SuspendThreshold is the weight below which an ACTIVE thread is
// suspended during decay.
const SuspendThreshold = 0.1

// DecayThreads applies exponential decay to every ACTIVE thread's weight
// and suspends any that fall below SuspendThreshold. halfLife overrides
// HalfLifeThread when non-zero (tuning.half_life_thread_days).
func (m *Manager) DecayThreads(halfLife time.Duration) (suspended int, err error) {
	if halfLife <= 0 {
		halfLife = HalfLifeThread
	}
	now := time.Now()
	for _, t := range m.store.ThreadsByStatus(model.StatusActive) {
		unlock := m.lock(t.ID)
		fresh, gerr := m.store.GetThread(t.ID)
		if gerr != nil {
			unlock()
			continue
		}
		fresh.Weight = decayWeight(fresh.Weight, fresh.LastActive, now, halfLife)
		shouldSuspend := fresh.Weight < SuspendThreshold
		if shouldSuspend {
			fresh.Status = model.StatusSuspended
		}
		perr := m.store.PutThread(fresh)
		unlock()
		if perr != nil {
			err = perr
			continue
		}
		if shouldSuspend {
			suspended++
		}
	}
	return suspended, err
}

// decayWeight applies weight <- weight * 0.5^(Δdays/halfLife) where Δdays
// is measured from since to now.
func decayWeight(weight float64, since, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return weight
	}
	deltaDays := now.Sub(since).Hours() / 24
	halfLifeDays := halfLife.Hours() / 24
	if deltaDays <= 0 {
		return weight
	}
	return weight * math.Pow(0.5, deltaDays/halfLifeDays)
}
