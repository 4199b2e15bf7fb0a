package gossip

import "time"

// Subjects on the internal bus. The propagator publishes thread.modified
// and the bridge created/boosted/deleted subjects; the decayed, quota and
// compaction subjects are defined but nothing publishes them, and no
// daemon subsystem subscribes to any of them.
const (
	SubjectThreadModified   = "thread.modified"
	SubjectBridgeCreated    = "thread.bridge.created"
	SubjectBridgeBoosted    = "thread.bridge.boosted"
	SubjectBridgeDecayed    = "thread.bridge.decayed"
	SubjectBridgeDeleted    = "thread.bridge.deleted"
	SubjectQuotaEnforced    = "thread.quota.enforced"
	SubjectCompactionRun    = "compaction.run"
)

// ThreadModifiedEvent announces that a thread record changed, prompting
// the GossipPropagator to recompute its bridge neighborhood.
type ThreadModifiedEvent struct {
	ThreadID  string    `json:"thread_id"`
	Timestamp time.Time `json:"timestamp"`
}

// BridgeEvent announces bridge create/boost/delete; decay is not
// announced on the bus.
type BridgeEvent struct {
	BridgeID  string    `json:"bridge_id"`
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Weight    float64   `json:"weight"`
	Timestamp time.Time `json:"timestamp"`
}

// QuotaEnforcedEvent announces how many threads EnforceQuota suspended.
type QuotaEnforcedEvent struct {
	Mode      string    `json:"mode"`
	Suspended int       `json:"suspended"`
	Timestamp time.Time `json:"timestamp"`
}
