// Package staging keeps the rows of an imported table set on disk between
// import and export.
//
// Each session lives in its own directory under the store root, named by a
// ksid. The directory holds meta.json and one block file per table.
package staging

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/maruel/ksid"
)

const (
	metaFile = "meta.json"

	StatusActive = "active"
)

var ErrNotFound = errors.New("staging: session not found")

// Meta describes a session.
type Meta struct {
	ID         string    `json:"-"`
	PrefixCode string    `json:"prefix_code"`
	FarmName   string    `json:"farm_name"`
	CreatedAt  time.Time `json:"created_at"`
	Status     string    `json:"status"`
	DeviceID   string    `json:"device_id,omitempty"`
}

// Store manages the sessions under one directory.
type Store struct {
	dir string
	log *slog.Logger

	mu       sync.Mutex
	sessions map[ksid.ID]*Session
}

// NewStore creates dir if needed. A nil logger means slog.Default().
func NewStore(dir string, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	return &Store{dir: dir, log: log, sessions: make(map[ksid.ID]*Session)}, nil
}

// Dir returns the store root.
func (s *Store) Dir() string {
	return s.dir
}

// Create starts an empty session for prefix.
func (s *Store) Create(prefix string) (*Session, error) {
	id := ksid.NewID()
	dir := filepath.Join(s.dir, id.String())
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", id, err)
	}
	sess := &Session{
		id:  id,
		dir: dir,
		meta: Meta{
			ID:         id.String(),
			PrefixCode: prefix,
			CreatedAt:  time.Now().UTC(),
			Status:     StatusActive,
		},
	}
	if err := sess.saveMeta(); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.log.Debug("session created", "id", id, "prefix", prefix)
	return sess, nil
}

// Open returns the session with the given id.
func (s *Store) Open(id string) (*Session, error) {
	kid, err := ksid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[kid]; ok {
		return sess, nil
	}
	sess := &Session{id: kid, dir: filepath.Join(s.dir, kid.String())}
	if err := sess.loadMeta(); err != nil {
		return nil, err
	}
	s.sessions[kid] = sess
	return sess, nil
}

// Delete removes a session and all its tables. Deleting an unknown session
// is not an error.
func (s *Store) Delete(id string) error {
	kid, err := ksid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	s.mu.Lock()
	sess := s.sessions[kid]
	delete(s.sessions, kid)
	s.mu.Unlock()
	if sess != nil {
		// Wait for in-flight readers and writers.
		sess.mu.Lock()
		defer sess.mu.Unlock()
	}
	if err := os.RemoveAll(filepath.Join(s.dir, kid.String())); err != nil {
		return fmt.Errorf("failed to delete session %s: %w", kid, err)
	}
	s.log.Debug("session deleted", "id", kid)
	return nil
}

// List returns the metadata of every session visible to deviceID, newest
// first. An empty deviceID lists everything; sessions without a device are
// visible to all.
func (s *Store) List(deviceID string) ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	var out []Meta
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		sess, err := s.Open(e.Name())
		if err != nil {
			if !errors.Is(err, ErrNotFound) {
				s.log.Warn("skipping unreadable session", "dir", e.Name(), "err", err)
			}
			continue
		}
		m := sess.Meta()
		if deviceID != "" && m.DeviceID != "" && m.DeviceID != deviceID {
			continue
		}
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ExistsByPrefix reports whether a session visible to deviceID already holds
// prefix, and the farm name of the newest such session.
func (s *Store) ExistsByPrefix(prefix, deviceID string) (bool, string, error) {
	metas, err := s.List(deviceID)
	if err != nil {
		return false, "", err
	}
	for _, m := range metas {
		if m.PrefixCode == prefix {
			return true, m.FarmName, nil
		}
	}
	return false, "", nil
}

// SetDevice associates a session with a device.
func (s *Store) SetDevice(id, deviceID string) error {
	sess, err := s.Open(id)
	if err != nil {
		return err
	}
	return sess.update(func(m *Meta) { m.DeviceID = deviceID })
}

// SetFarmName records the farm name of a session.
func (s *Store) SetFarmName(id, name string) error {
	sess, err := s.Open(id)
	if err != nil {
		return err
	}
	return sess.SetFarmName(name)
}

func (sess *Session) loadMeta() error {
	b, err := os.ReadFile(filepath.Join(sess.dir, metaFile))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, sess.id)
		}
		return fmt.Errorf("failed to read session %s: %w", sess.id, err)
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return fmt.Errorf("failed to unmarshal session %s: %w", sess.id, err)
	}
	m.ID = sess.id.String()
	sess.meta = m
	return nil
}

func (sess *Session) saveMeta() error {
	b, err := json.MarshalIndent(&sess.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session %s: %w", sess.id, err)
	}
	tmp := filepath.Join(sess.dir, metaFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("failed to write session %s: %w", sess.id, err)
	}
	if err := os.Rename(tmp, filepath.Join(sess.dir, metaFile)); err != nil {
		return fmt.Errorf("failed to write session %s: %w", sess.id, err)
	}
	return nil
}
