package daemon

import (
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// archiveAfterBeats is how long a thread may sit SUSPENDED with no recall
// hit before maintenance archives it outright.
const archiveAfterBeats = 72

// maintenanceLoop runs the periodic decay/quota tick until stop is closed.
// Each tick ages thread and bridge weights, enforces the active-thread
// quota, and archives long-suspended threads nobody has recalled.
func (s *Server) maintenanceLoop() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.ticker.C:
			s.runMaintenanceTick()
		}
	}
}

func (s *Server) runMaintenanceTick() {
	log := s.log.WithField("component", "maintenance")

	hb, err := s.store.GetHeartbeat()
	if err != nil {
		log.WithError(err).Warn("loading heartbeat")
		return
	}
	hb.Beat++
	hb.LastBeatAt = time.Now()
	if err := s.store.PutHeartbeat(hb); err != nil {
		log.WithError(err).Warn("persisting heartbeat")
	}

	threadHalfLife := time.Duration(s.cfg.Tuning.HalfLifeThreadDays * float64(24*time.Hour))
	suspended, err := s.manager.DecayThreads(threadHalfLife)
	if err != nil {
		log.WithError(err).Warn("decaying threads")
	} else if suspended > 0 {
		log.WithField("suspended", suspended).Info("decay suspended threads")
	}

	bridgeHalfLife := time.Duration(s.cfg.Tuning.HalfLifeBridgeDays * float64(24*time.Hour))
	deletedBridges, err := s.propagator.DecayAll(bridgeHalfLife)
	if err != nil {
		log.WithError(err).Warn("decaying bridges")
	} else if deletedBridges > 0 {
		log.WithField("deleted", deletedBridges).Info("decay pruned bridges")
	}

	if reclaimed, err := s.manager.EnforceQuota(s.cfg.Settings.ThreadMode); err != nil {
		log.WithError(err).Warn("enforcing quota")
	} else if reclaimed > 0 {
		log.WithField("suspended", reclaimed).Info("quota enforcement")
	}

	s.archiveStaleThreads()

	if expired, err := s.shared.ExpirePending(); err != nil {
		log.WithError(err).Warn("expiring shared bridge proposals")
	} else if expired > 0 {
		log.WithField("expired", expired).Info("expired pending bridge proposals")
	}
}

// archiveStaleThreads archives SUSPENDED threads nobody has touched in
// archiveAfterBeats worth of wall-clock time, approximated from the
// maintenance tick interval since threads don't carry a suspended-since
// beat counter.
func (s *Server) archiveStaleThreads() {
	staleAfter := time.Duration(archiveAfterBeats) * maintenanceTick
	now := time.Now()
	for _, t := range s.store.ThreadsByStatus(model.StatusSuspended) {
		if now.Sub(t.LastActive) < staleAfter {
			continue
		}
		if _, err := s.manager.Archive(t.ID); err != nil {
			s.log.WithError(err).WithField("thread_id", t.ID).Warn("archiving stale suspended thread")
		}
	}
}
