package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/ai-memoryd/memoryd/internal/model"
)

// putSingleton atomically writes one of the project-root singleton files
// (user_rules.json, heartbeat.json, focus.json) using the same
// temp+fsync+rename discipline as the sharded records.
func (s *Store) putSingleton(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return transient("marshaling "+name, err)
	}
	target := filepath.Join(s.root, name)
	tmp, err := os.CreateTemp(s.root, "."+name+".tmp-*")
	if err != nil {
		return transient("creating temp file for "+name, err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return transient("writing "+name, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return transient("fsyncing "+name, err)
	}
	tmp.Close()
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return transient("renaming "+name, err)
	}
	return nil
}

func (s *Store) getSingleton(name string, v any) (bool, error) {
	path := filepath.Join(s.root, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, transient("reading "+name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		s.quarantine(path, err)
		return false, corrupt(name, err)
	}
	return true, nil
}

var heartbeatLock = "__heartbeat__"
var focusLock = "__focus__"
var rulesLock = "__user_rules__"

// GetHeartbeat loads the single per-project heartbeat record, returning a
// fresh zero-value if none has been written yet.
func (s *Store) GetHeartbeat() (*model.Heartbeat, error) {
	lock := s.lockFor(Kind(heartbeatLock), "")
	lock.Lock()
	defer lock.Unlock()
	var hb model.Heartbeat
	found, err := s.getSingleton("heartbeat.json", &hb)
	if err != nil {
		return nil, err
	}
	if !found {
		return &model.Heartbeat{}, nil
	}
	return &hb, nil
}

// PutHeartbeat persists the heartbeat record.
func (s *Store) PutHeartbeat(hb *model.Heartbeat) error {
	lock := s.lockFor(Kind(heartbeatLock), "")
	lock.Lock()
	defer lock.Unlock()
	return s.putSingleton("heartbeat.json", hb)
}

// GetFocus loads the current focus set.
func (s *Store) GetFocus() ([]model.FocusEntry, error) {
	lock := s.lockFor(Kind(focusLock), "")
	lock.Lock()
	defer lock.Unlock()
	var entries []model.FocusEntry
	if _, err := s.getSingleton("focus.json", &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// PutFocus replaces the focus set.
func (s *Store) PutFocus(entries []model.FocusEntry) error {
	lock := s.lockFor(Kind(focusLock), "")
	lock.Lock()
	defer lock.Unlock()
	return s.putSingleton("focus.json", entries)
}

// GetUserRules loads the stored imperative rules (newest last).
func (s *Store) GetUserRules() ([]model.UserRule, error) {
	lock := s.lockFor(Kind(rulesLock), "")
	lock.Lock()
	defer lock.Unlock()
	var rules []model.UserRule
	if _, err := s.getSingleton("user_rules.json", &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// MaxUserRules bounds the kept set per invariant (<=20).
const MaxUserRules = 20

// AddUserRule appends a rule, trimming the oldest if the bound is exceeded.
func (s *Store) AddUserRule(r model.UserRule) ([]model.UserRule, error) {
	lock := s.lockFor(Kind(rulesLock), "")
	lock.Lock()
	defer lock.Unlock()
	var rules []model.UserRule
	if _, err := s.getSingleton("user_rules.json", &rules); err != nil {
		return nil, err
	}
	rules = append(rules, r)
	if len(rules) > MaxUserRules {
		rules = rules[len(rules)-MaxUserRules:]
	}
	if err := s.putSingleton("user_rules.json", rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// PutSynthesis persists a synthesis snapshot under db/synthesis.
func (s *Store) PutSynthesis(syn *model.Synthesis) error {
	return s.Put(KindSynthesis, syn.ID, syn)
}

// LatestSynthesis returns the most recently generated synthesis record, if
// any exist.
func (s *Store) LatestSynthesis() (*model.Synthesis, error) {
	ids, err := s.List(KindSynthesis)
	if err != nil {
		return nil, err
	}
	var latest *model.Synthesis
	for _, id := range ids {
		var syn model.Synthesis
		if err := s.Get(KindSynthesis, id, &syn); err != nil {
			continue
		}
		if latest == nil || syn.GeneratedAt.After(latest.GeneratedAt) {
			cp := syn
			latest = &cp
		}
	}
	return latest, nil
}

// PutSharedSnapshot publishes a thread snapshot for cross-agent consumption.
func (s *Store) PutSharedSnapshot(snap *model.SharedSnapshot) error {
	return s.Put(KindShared, snap.SharedID, snap)
}

// GetSharedSnapshot loads a published snapshot by its shared id.
func (s *Store) GetSharedSnapshot(sharedID string) (*model.SharedSnapshot, error) {
	var snap model.SharedSnapshot
	if err := s.Get(KindShared, sharedID, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SubscribeSnapshot copies a published snapshot into the local
// subscriptions shard.
func (s *Store) SubscribeSnapshot(snap *model.SharedSnapshot) error {
	return s.Put(KindSubscribe, snap.SharedID, snap)
}

// SubscribedSnapshots lists every locally subscribed snapshot.
func (s *Store) SubscribedSnapshots() []*model.SharedSnapshot {
	ids, err := s.List(KindSubscribe)
	if err != nil {
		return nil
	}
	out := make([]*model.SharedSnapshot, 0, len(ids))
	for _, id := range ids {
		var snap model.SharedSnapshot
		if err := s.Get(KindSubscribe, id, &snap); err != nil {
			continue
		}
		out = append(out, &snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PublishedAt.Before(out[j].PublishedAt) })
	return out
}

// PutProposal persists an outgoing bridge proposal.
func (s *Store) PutProposal(p *model.BridgeProposal) error {
	return s.Put(KindProposal, p.ID, p)
}

// GetProposal loads an outgoing proposal by id.
func (s *Store) GetProposal(id string) (*model.BridgeProposal, error) {
	var p model.BridgeProposal
	if err := s.Get(KindProposal, id, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// DeleteProposal removes an outgoing proposal (accepted or expired).
func (s *Store) DeleteProposal(id string) error {
	return s.Delete(KindProposal, id)
}

// PendingProposals lists every still-outstanding outgoing proposal.
func (s *Store) PendingProposals() []*model.BridgeProposal {
	ids, err := s.List(KindProposal)
	if err != nil {
		return nil
	}
	out := make([]*model.BridgeProposal, 0, len(ids))
	for _, id := range ids {
		var p model.BridgeProposal
		if err := s.Get(KindProposal, id, &p); err != nil {
			continue
		}
		out = append(out, &p)
	}
	return out
}
