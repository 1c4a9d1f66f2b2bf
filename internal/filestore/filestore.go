// Package filestore implements the file-backed variant of the turn store
// as an append-only JSON-lines log.
//
// Appends open the log in append mode and write one encoded line under a
// mutex; unlike a full load→mutate→save cycle there is no window in which
// a concurrent append can be lost. Reads scan the log; Clear compacts it
// by rewriting to a temp file and renaming over the original, which keeps
// the clear atomic with respect to crashed processes.
//
// This store is intended for single-process deployments without a
// relational database. The relational store remains the preferred backend.
package filestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/avramides/go-convo-proxy/internal/domain"
)

// Store is an append-only JSON-lines turn log. Safe for concurrent use
// within one process.
type Store struct {
	path string
	mu   sync.Mutex
}

// New constructs a Store writing to path. The file is created lazily on
// first append.
func New(path string) *Store {
	return &Store{path: path}
}

// record is the on-disk line format.
type record struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendTurn appends one turn as a single JSON line.
func (s *Store) AppendTurn(ctx context.Context, userID, role, content string) (*domain.Turn, error) {
	rec := record{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("filestore: marshal turn: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("filestore: open log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return nil, fmt.Errorf("filestore: append turn: %w", err)
	}
	return rec.turn(), nil
}

// RecentTurns returns up to limit turns for userID newest-first.
// limit <= 0 returns all of them.
func (s *Store) RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error) {
	turns, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	// newest first
	sort.Slice(turns, func(i, j int) bool {
		if !turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].CreatedAt.After(turns[j].CreatedAt)
		}
		return turns[i].ID > turns[j].ID
	})
	if limit > 0 && len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

// TurnsPage returns a chronological page of turns for userID.
func (s *Store) TurnsPage(ctx context.Context, userID string, offset, limit int) ([]domain.Turn, error) {
	turns, err := s.load(userID)
	if err != nil {
		return nil, err
	}
	sort.Slice(turns, func(i, j int) bool {
		if !turns[i].CreatedAt.Equal(turns[j].CreatedAt) {
			return turns[i].CreatedAt.Before(turns[j].CreatedAt)
		}
		return turns[i].ID < turns[j].ID
	})
	if offset < 0 {
		offset = 0
	}
	if offset >= len(turns) {
		return []domain.Turn{}, nil
	}
	turns = turns[offset:]
	if limit > 0 && len(turns) > limit {
		turns = turns[:limit]
	}
	return turns, nil
}

// CountTurns returns the number of turns stored for userID.
func (s *Store) CountTurns(ctx context.Context, userID string) (int64, error) {
	turns, err := s.load(userID)
	if err != nil {
		return 0, err
	}
	return int64(len(turns)), nil
}

// ClearTurns removes every turn for userID by compacting the log.
// Clearing when the log does not exist succeeds.
func (s *Store) ClearTurns(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("filestore: open log: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".turns-*")
	if err != nil {
		f.Close()
		return fmt.Errorf("filestore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	w := bufio.NewWriter(tmp)
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue // skip torn or foreign lines
		}
		if rec.UserID == userID {
			continue
		}
		w.Write(sc.Bytes())
		w.WriteByte('\n')
	}
	f.Close()
	if err := sc.Err(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: scan log: %w", err)
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("filestore: flush temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("filestore: replace log: %w", err)
	}
	return nil
}

// load reads all turns for userID from the log. A missing log file means
// zero turns, not an error.
func (s *Store) load(userID string) ([]domain.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("filestore: open log: %w", err)
	}
	defer f.Close()

	var out []domain.Turn
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var rec record
		if err := json.Unmarshal(sc.Bytes(), &rec); err != nil {
			continue
		}
		if rec.UserID != userID {
			continue
		}
		out = append(out, *rec.turn())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("filestore: scan log: %w", err)
	}
	return out, nil
}

// turn converts the on-disk record to the domain type.
func (r record) turn() *domain.Turn {
	return &domain.Turn{
		ID:        r.ID,
		UserID:    r.UserID,
		Role:      r.Role,
		Content:   r.Content,
		CreatedAt: r.CreatedAt,
	}
}
