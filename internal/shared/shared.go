// Package shared implements the optional, isolated shared-cognition
// surface: publishing/subscribing thread snapshots across agents, and
// bilateral-consent cross-agent bridge proposals.
package shared

import (
	"fmt"
	"time"

	"github.com/ai-memoryd/memoryd/internal/model"
	"github.com/ai-memoryd/memoryd/internal/store"
	"github.com/google/uuid"
)

// proposalTTL is how long an outgoing bridge proposal survives before it
// expires and is dropped unaccepted.
const proposalTTL = 24 * time.Hour

// Manager implements publish/subscribe snapshots and the propose/accept/
// reject bridge-consent workflow described by the shared-cognition
// invariants: original thread ids never leak across the shared boundary,
// and updates propagate only on explicit Sync.
type Manager struct {
	store *store.Store
}

// New builds a shared-cognition Manager.
func New(st *store.Store) *Manager {
	return &Manager{store: st}
}

// Publish deep-copies t into a SharedSnapshot under a fresh shared id and
// persists it for subscribers to pull. The original thread id is
// deliberately not carried into the snapshot.
func (m *Manager) Publish(t *model.Thread, publisherID string) (*model.SharedSnapshot, error) {
	snap := &model.SharedSnapshot{
		SharedID:    uuid.NewString(),
		Title:       t.Title,
		Summary:     t.Summary,
		Topics:      append([]string(nil), t.Topics...),
		Messages:    append([]model.Message(nil), t.Messages...),
		PublishedAt: time.Now(),
		PublisherID: publisherID,
	}
	if err := m.store.PutSharedSnapshot(snap); err != nil {
		return nil, fmt.Errorf("shared: publishing snapshot: %w", err)
	}
	return snap, nil
}

// Sync pulls the published snapshot identified by sharedID into the
// local subscription set. Subsequent calls overwrite the local copy,
// which is the only way updates propagate (no background polling).
func (m *Manager) Sync(sharedID string) (*model.SharedSnapshot, error) {
	snap, err := m.store.GetSharedSnapshot(sharedID)
	if err != nil {
		return nil, fmt.Errorf("shared: loading snapshot %s: %w", sharedID, err)
	}
	if err := m.store.SubscribeSnapshot(snap); err != nil {
		return nil, fmt.Errorf("shared: subscribing to %s: %w", sharedID, err)
	}
	return snap, nil
}

// Subscribed returns every snapshot pulled into the local subscription
// set, most relevant to injection's "shared snapshots" section.
func (m *Manager) Subscribed() []*model.SharedSnapshot {
	return m.store.SubscribedSnapshots()
}

// Propose creates an outgoing, 24h-TTL bilateral-consent request to
// bridge a local thread to a remote shared snapshot.
func (m *Manager) Propose(localID, remoteSharedID, reason string) (*model.BridgeProposal, error) {
	now := time.Now()
	p := &model.BridgeProposal{
		ID:        uuid.NewString(),
		LocalID:   localID,
		RemoteID:  remoteSharedID,
		Reason:    reason,
		CreatedAt: now,
		ExpiresAt: now.Add(proposalTTL),
	}
	if err := m.store.PutProposal(p); err != nil {
		return nil, fmt.Errorf("shared: persisting proposal: %w", err)
	}
	return p, nil
}

// Accept turns a still-pending proposal into a real cross-agent
// ThinkBridge and removes the proposal. Expired proposals are rejected
// as though they had never been accepted.
func (m *Manager) Accept(proposalID string) (*model.ThinkBridge, error) {
	p, err := m.store.GetProposal(proposalID)
	if err != nil {
		return nil, fmt.Errorf("shared: loading proposal %s: %w", proposalID, err)
	}
	if p.Expired(time.Now()) {
		_ = m.store.DeleteProposal(p.ID)
		return nil, fmt.Errorf("shared: proposal %s expired", proposalID)
	}

	bridge := &model.ThinkBridge{
		ID:           uuid.NewString(),
		SourceID:     p.LocalID,
		TargetID:     p.RemoteID,
		RelationType: model.RelationExtends,
		Reason:       "cross-agent: " + p.Reason,
		Confidence:   1,
		Weight:       1,
		CreatedAt:    time.Now(),
		LastUsed:     time.Now(),
	}
	if err := m.store.PutBridge(bridge); err != nil {
		return nil, fmt.Errorf("shared: persisting cross-agent bridge: %w", err)
	}
	if err := m.store.DeleteProposal(p.ID); err != nil {
		return nil, fmt.Errorf("shared: clearing accepted proposal: %w", err)
	}
	return bridge, nil
}

// Reject discards a pending proposal without creating a bridge.
func (m *Manager) Reject(proposalID string) error {
	return m.store.DeleteProposal(proposalID)
}

// ExpirePending deletes every outgoing proposal whose TTL has elapsed,
// meant to be called from the daemon's maintenance tick alongside thread
// and bridge decay.
func (m *Manager) ExpirePending() (expired int, err error) {
	now := time.Now()
	for _, p := range m.store.PendingProposals() {
		if !p.Expired(now) {
			continue
		}
		if err := m.store.DeleteProposal(p.ID); err != nil {
			return expired, fmt.Errorf("shared: expiring proposal %s: %w", p.ID, err)
		}
		expired++
	}
	return expired, nil
}
