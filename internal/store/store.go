// Package store implements the append-only JSON file-shard persistence
// layer: one file per record under .ai/db/<kind>/<id>.json, written with a
// temp-file + fsync + rename sequence so a reader never observes a
// partially written record. Corrupt records are quarantined, never crash
// the process.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Kind names a record category; one subdirectory of db/ per kind.
type Kind string

const (
	KindThread    Kind = "threads"
	KindBridge    Kind = "bridges"
	KindSynthesis Kind = "synthesis"
	KindArchive   Kind = "archives"
	KindShared    Kind = "shared/published"
	KindSubscribe Kind = "shared/subscriptions"
	KindProposal  Kind = "shared/proposals/outgoing"
)

// ErrKind classifies a Store failure the way the rest of the system
// expects to report it (see internal/daemon's dispatch error mapping).
type ErrKind string

const (
	ErrNotFound    ErrKind = "NotFound"
	ErrConflict    ErrKind = "Conflict"
	ErrCorruption  ErrKind = "Corruption"
	ErrTransient   ErrKind = "TransientExternal"
	ErrInvalidArg  ErrKind = "InvalidState"
)

// Error is a classified Store failure.
type Error struct {
	Kind    ErrKind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("store: %s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("store: %s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Wrapped }

func notFound(msg string) *Error   { return &Error{Kind: ErrNotFound, Message: msg} }
func conflict(msg string) *Error   { return &Error{Kind: ErrConflict, Message: msg} }
func corrupt(msg string, err error) *Error {
	return &Error{Kind: ErrCorruption, Message: msg, Wrapped: err}
}
func transient(msg string, err error) *Error {
	return &Error{Kind: ErrTransient, Message: msg, Wrapped: err}
}

// Store is the single mutator of on-disk state for one project's .ai/
// directory. All exported methods are safe for concurrent use.
type Store struct {
	root string // project-local .ai directory
	log  *logrus.Entry

	idLocks sync.Map // map[string]*sync.Mutex, keyed by "<kind>/<id>"

	mu            sync.RWMutex // guards the indexes below
	threadsByStat map[string]map[string]bool // status -> set of thread ids
	bridgeAdj     map[string]map[string]bool // thread id -> set of bridge ids touching it
}

// Open creates (if needed) the directory layout under root and rebuilds
// the in-memory indexes from whatever is on disk.
func Open(root string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.New())
	}
	s := &Store{
		root:          root,
		log:           log,
		threadsByStat: map[string]map[string]bool{},
		bridgeAdj:     map[string]map[string]bool{},
	}
	for _, kind := range []Kind{KindThread, KindBridge, KindSynthesis, KindArchive, KindShared, KindSubscribe, KindProposal} {
		dir := s.dirFor(kind)
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, transient("creating shard directory", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "tmp", "recall"), 0o700); err != nil {
		return nil, transient("creating tmp directory", err)
	}
	if err := s.rebuildIndexes(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) dirFor(kind Kind) string {
	return filepath.Join(s.root, "db", filepath.FromSlash(string(kind)))
}

func (s *Store) pathFor(kind Kind, id string) string {
	return filepath.Join(s.dirFor(kind), id+".json")
}

func (s *Store) lockFor(kind Kind, id string) *sync.Mutex {
	key := string(kind) + "/" + id
	v, _ := s.idLocks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// Put atomically serializes record to a temp file in the shard directory,
// fsyncs it, and renames it over the target path. The per-id lock is held
// only across this call, never across an external call.
func (s *Store) Put(kind Kind, id string, record any) error {
	lock := s.lockFor(kind, id)
	lock.Lock()
	defer lock.Unlock()
	return s.putLocked(kind, id, record)
}

func (s *Store) putLocked(kind Kind, id string, record any) error {
	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return transient("marshaling record", err)
	}
	dir := s.dirFor(kind)
	target := s.pathFor(kind, id)
	tmp, err := os.CreateTemp(dir, "."+id+".tmp-*")
	if err != nil {
		return transient("creating temp file", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return transient("writing temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return transient("fsyncing temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return transient("closing temp file", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return transient("renaming into place", err)
	}
	return nil
}

// Get loads and unmarshals the record at kind/id into out (a pointer). A
// corrupt file is quarantined and reported as ErrCorruption; a missing
// file is ErrNotFound.
func (s *Store) Get(kind Kind, id string, out any) error {
	lock := s.lockFor(kind, id)
	lock.Lock()
	defer lock.Unlock()
	return s.getLocked(kind, id, out)
}

func (s *Store) getLocked(kind Kind, id string, out any) error {
	path := s.pathFor(kind, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound(fmt.Sprintf("%s/%s", kind, id))
		}
		return transient("reading record", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		s.quarantine(path, err)
		return corrupt(fmt.Sprintf("%s/%s", kind, id), err)
	}
	return nil
}

func (s *Store) quarantine(path string, cause error) {
	dest := fmt.Sprintf("%s.corrupt.%d", path, time.Now().UnixNano())
	if err := os.Rename(path, dest); err != nil {
		s.log.WithError(err).WithField("path", path).Error("failed to quarantine corrupt record")
		return
	}
	s.log.WithFields(logrus.Fields{"path": path, "quarantined_to": dest, "cause": cause}).Warn("quarantined corrupt record")
}

// Delete removes the record at kind/id. Deleting an absent record is not
// an error (idempotent).
func (s *Store) Delete(kind Kind, id string) error {
	lock := s.lockFor(kind, id)
	lock.Lock()
	defer lock.Unlock()
	path := s.pathFor(kind, id)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return transient("deleting record", err)
	}
	return nil
}

// List scans the shard directory for kind and returns every record id
// present (including ones currently locked), sorted for deterministic
// iteration order.
func (s *Store) List(kind Kind) ([]string, error) {
	entries, err := os.ReadDir(s.dirFor(kind))
	if err != nil {
		return nil, transient("listing shard directory", err)
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasPrefix(name, ".") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns per-kind record counts. For KindThread the count is
// further broken down by status using the in-memory hot index.
func (s *Store) Stats(kind Kind) (map[string]int, error) {
	if kind == KindThread {
		s.mu.RLock()
		defer s.mu.RUnlock()
		out := map[string]int{}
		for status, set := range s.threadsByStat {
			out[status] = len(set)
		}
		return out, nil
	}
	ids, err := s.List(kind)
	if err != nil {
		return nil, err
	}
	return map[string]int{"total": len(ids)}, nil
}

// Reindex rebuilds the in-memory thread/bridge indexes from whatever is
// currently on disk, the same pass Open does at startup. Exposed for the
// CLI's reindex subcommand to force recovery after manual file edits or
// a quarantine cleanup without restarting the daemon.
func (s *Store) Reindex() error {
	return s.rebuildIndexes()
}

func (s *Store) rebuildIndexes() error {
	ids, err := s.List(KindThread)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threadsByStat = map[string]map[string]bool{}
	for _, id := range ids {
		var rec rawStatus
		if err := s.getLocked(KindThread, id, &rec); err != nil {
			s.log.WithError(err).WithField("id", id).Warn("skipping unreadable thread on index rebuild")
			continue
		}
		s.indexThreadLocked(id, rec.Status)
	}

	bridgeIDs, err := s.List(KindBridge)
	if err != nil {
		return err
	}
	s.bridgeAdj = map[string]map[string]bool{}
	for _, id := range bridgeIDs {
		var rec rawEndpoints
		if err := s.getLocked(KindBridge, id, &rec); err != nil {
			s.log.WithError(err).WithField("id", id).Warn("skipping unreadable bridge on index rebuild")
			continue
		}
		s.indexBridgeLocked(id, rec.SourceID, rec.TargetID)
	}
	return nil
}

type rawStatus struct {
	Status string `json:"status"`
}

type rawEndpoints struct {
	SourceID string `json:"source_id"`
	TargetID string `json:"target_id"`
}

func (s *Store) indexThreadLocked(id, status string) {
	for st, set := range s.threadsByStat {
		if st != status {
			delete(set, id)
		}
	}
	set, ok := s.threadsByStat[status]
	if !ok {
		set = map[string]bool{}
		s.threadsByStat[status] = set
	}
	set[id] = true
}

func (s *Store) removeThreadIndexLocked(id string) {
	for _, set := range s.threadsByStat {
		delete(set, id)
	}
}

func (s *Store) indexBridgeLocked(id, sourceID, targetID string) {
	for _, tid := range []string{sourceID, targetID} {
		if tid == "" {
			continue
		}
		set, ok := s.bridgeAdj[tid]
		if !ok {
			set = map[string]bool{}
			s.bridgeAdj[tid] = set
		}
		set[id] = true
	}
}

func (s *Store) removeBridgeIndexLocked(id, sourceID, targetID string) {
	for _, tid := range []string{sourceID, targetID} {
		if set, ok := s.bridgeAdj[tid]; ok {
			delete(set, id)
		}
	}
}
