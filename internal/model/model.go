// Package model defines the thread/bridge graph entities shared by every
// subsystem: the Store persists them, the Classifier scores them, the
// ThreadManager mutates them, the GossipPropagator links them, and the
// Retriever ranks them.
package model

import "time"

// Status is a thread's lifecycle state.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusSuspended Status = "SUSPENDED"
	StatusArchived  Status = "ARCHIVED"
)

// OriginType records how a thread came into existence. Immutable.
type OriginType string

const (
	OriginPrompt       OriginType = "PROMPT"
	OriginFileRead     OriginType = "FILE_READ"
	OriginTask         OriginType = "TASK"
	OriginFetch        OriginType = "FETCH"
	OriginSplit        OriginType = "SPLIT"
	OriginReactivation OriginType = "REACTIVATION"
)

// SourceType classifies where a captured message came from. The
// tool-name -> SourceType mapping is a static table (see sourceForTool in
// internal/daemon/dispatch.go).
type SourceType string

const (
	SourceUser      SourceType = "user"
	SourceAssistant SourceType = "assistant"
	SourceAgentPin  SourceType = "agent_pin"
	SourceRead      SourceType = "read"
	SourceWrite     SourceType = "write"
	SourceTask      SourceType = "task"
	SourceFetch     SourceType = "fetch"
	SourceCommand   SourceType = "command"
	SourcePrompt    SourceType = "prompt"
)

// LockMode names who is allowed to release a split lock.
type LockMode string

const (
	LockCompaction   LockMode = "compaction"
	LockAgentRelease LockMode = "agent_release"
	LockForce        LockMode = "force"
)

// RelationType labels a ThinkBridge's semantic relationship.
type RelationType string

const (
	RelationExtends     RelationType = "EXTENDS"
	RelationDepends     RelationType = "DEPENDS"
	RelationContradicts RelationType = "CONTRADICTS"
	RelationReplaces    RelationType = "REPLACES"
	RelationChildOf     RelationType = "CHILD_OF"
	RelationSibling     RelationType = "SIBLING"
)

// BridgeStatus is a derived (not stored authoritatively) view of a bridge's
// health, computed from its weight at read time.
type BridgeStatus string

const (
	BridgeActive  BridgeStatus = "ACTIVE"
	BridgeWeak    BridgeStatus = "WEAK"
	BridgeInvalid BridgeStatus = "INVALID"
)

// Message is one append-only observation captured into a Thread.
type Message struct {
	ID        string            `json:"id"`
	Content   string            `json:"content"`
	Source    SourceType        `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Rating is one piece of explicit user feedback on a thread's usefulness.
type Rating struct {
	Useful    bool      `json:"useful"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

// Thread is the central entity: a topic-scoped stream of captured
// observations, connected to others by ThinkBridges.
type Thread struct {
	ID               string     `json:"id"`
	Title            string     `json:"title"`
	Status           Status     `json:"status"`
	Messages         []Message  `json:"messages"`
	Summary          string     `json:"summary"`
	Topics           []string   `json:"topics"`
	OriginType       OriginType `json:"origin_type"`
	ParentID         string     `json:"parent_id,omitempty"`
	ChildIDs         []string   `json:"child_ids,omitempty"`
	Weight           float64    `json:"weight"`
	LastActive       time.Time  `json:"last_active"`
	CreatedAt        time.Time  `json:"created_at"`
	ActivationCount  int        `json:"activation_count"`
	Embedding        []float32  `json:"embedding,omitempty"`
	Ratings          []Rating   `json:"ratings,omitempty"`
	RelevanceScore   float64    `json:"relevance_score"`
	SplitLocked      bool       `json:"split_locked"`
	SplitLockedUntil LockMode   `json:"split_locked_until,omitempty"`
	Tags             []string   `json:"tags,omitempty"`
}

// HasTag reports whether t carries the given tag.
func (t *Thread) HasTag(tag string) bool {
	for _, g := range t.Tags {
		if g == tag {
			return true
		}
	}
	return false
}

// HasTopic reports whether topic (case-insensitive) is in t.Topics.
func (t *Thread) HasTopic(topic string) bool {
	for _, g := range t.Topics {
		if equalFold(g, topic) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ThinkBridge is a weighted, semantic edge between two threads.
type ThinkBridge struct {
	ID               string       `json:"id"`
	SourceID         string       `json:"source_id"`
	TargetID         string       `json:"target_id"`
	RelationType     RelationType `json:"relation_type"`
	Reason           string       `json:"reason,omitempty"`
	SharedConcepts   []string     `json:"shared_concepts,omitempty"`
	Confidence       float64      `json:"confidence"`
	Weight           float64      `json:"weight"`
	UseCount         int          `json:"use_count"`
	LastUsed         time.Time    `json:"last_used"`
	CreatedAt        time.Time    `json:"created_at"`
	PropagatedFrom   string       `json:"propagated_from,omitempty"`
	PropagationDepth int          `json:"propagation_depth"`
}

// DerivedStatus computes the read-time bridge status from its weight.
func (b *ThinkBridge) DerivedStatus() BridgeStatus {
	if b.Weight < 0.3 {
		return BridgeWeak
	}
	return BridgeActive
}

// DeathThreshold returns the weight below which this bridge should be
// deleted. CHILD_OF edges get a much lower threshold so hierarchy survives
// ordinary decay.
func (b *ThinkBridge) DeathThreshold() float64 {
	if b.RelationType == RelationChildOf {
		return 0.01
	}
	return 0.05
}

// Endpoints returns the unordered pair key for this bridge, used to key
// per-pair locks and the adjacency index.
func (b *ThinkBridge) Endpoints() (string, string) {
	if b.SourceID <= b.TargetID {
		return b.SourceID, b.TargetID
	}
	return b.TargetID, b.SourceID
}

// Synthesis is a compact textual snapshot produced before high-pressure
// compaction, read-only once created.
type Synthesis struct {
	ID            string    `json:"id"`
	GeneratedAt   time.Time `json:"generated_at"`
	Summary       string    `json:"summary"`
	ActiveThreads []string  `json:"active_threads"`
	Decisions     []string  `json:"decisions,omitempty"`
	OpenQuestions []string  `json:"open_questions,omitempty"`
}

// Fresh reports whether the synthesis is still eligible for injection
// (younger than maxAge, default 2h).
func (s *Synthesis) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(s.GeneratedAt) < maxAge
}

// UserRule is a persistent imperative instruction the user asked the
// agent to always follow. A bounded set (<=20) is kept.
type UserRule struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Heartbeat is the single per-project coarse clock record.
type Heartbeat struct {
	Beat                int       `json:"beat"`
	StartedAt           time.Time `json:"started_at"`
	LastBeatAt          time.Time `json:"last_beat_at"`
	LastInteractionAt   time.Time `json:"last_interaction_at"`
	LastInteractionBeat int       `json:"last_interaction_beat"`
	LastSessionID       string    `json:"last_session_id,omitempty"`
	LastThreadID        string    `json:"last_thread_id,omitempty"`
	LastThreadTitle     string    `json:"last_thread_title,omitempty"`
}

// FocusEntry is a user-or-agent declared topic boost applied during
// retrieval ranking.
type FocusEntry struct {
	Topic  string    `json:"topic"`
	Weight float64   `json:"weight"`
	SetAt  time.Time `json:"set_at"`
}

// SharedSnapshot is a deep-copy of a thread published for cross-agent
// consumption. The original thread id never leaves the store boundary;
// the snapshot carries its own SharedID.
type SharedSnapshot struct {
	SharedID    string    `json:"shared_id"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	Topics      []string  `json:"topics"`
	Messages    []Message `json:"messages"`
	PublishedAt time.Time `json:"published_at"`
	PublisherID string    `json:"publisher_id,omitempty"`
}

// BridgeProposal is a bilateral-consent request to create a cross-agent
// bridge between a local thread and a remote shared snapshot. Expires
// after 24h if not accepted.
type BridgeProposal struct {
	ID        string    `json:"id"`
	LocalID   string    `json:"local_id"`
	RemoteID  string    `json:"remote_id"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the proposal's TTL has elapsed.
func (p *BridgeProposal) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// Extraction is the Extractor's output: the semantic features used by the
// Classifier and by Thread creation/continuation.
type Extraction struct {
	Title     string   `json:"title"`
	Summary   string   `json:"summary"`
	Topics    []string `json:"topics"`
	Subjects  []string `json:"subjects"`
	Intent    string   `json:"intent,omitempty"`
	Questions []string `json:"questions,omitempty"`
	Heuristic bool     `json:"heuristic"`
}

// DecisionKind tags the variant carried by a Decision.
type DecisionKind string

const (
	DecisionContinue   DecisionKind = "CONTINUE"
	DecisionFork       DecisionKind = "FORK"
	DecisionReactivate DecisionKind = "REACTIVATE"
	DecisionNewThread  DecisionKind = "NEW_THREAD"
	DecisionSkip       DecisionKind = "SKIP"
)

// Decision is the Classifier's tagged-variant verdict for one captured
// input. TargetID is the thread id for CONTINUE/FORK(parent)/REACTIVATE;
// empty for NEW_THREAD/SKIP.
type Decision struct {
	Kind     DecisionKind `json:"kind"`
	TargetID string       `json:"target_id,omitempty"`
	Score    float64      `json:"score"`
}

// ThreadMode names a thread-count quota tier.
type ThreadMode string

const (
	ModeLight  ThreadMode = "light"
	ModeNormal ThreadMode = "normal"
	ModeHeavy  ThreadMode = "heavy"
	ModeMax    ThreadMode = "max"
)

// Quota returns the active-thread ceiling for a mode.
func (m ThreadMode) Quota() int {
	switch m {
	case ModeLight:
		return 15
	case ModeHeavy:
		return 100
	case ModeMax:
		return 200
	default:
		return 50
	}
}
