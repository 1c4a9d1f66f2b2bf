// Package services – HistoryService
//
// This file implements HistoryService, which owns reading and writing
// conversation turns for one identity and rendering the recent window into
// the string injected into the prompt template.
//
// The formatted window is newest-first: callers must not assume
// chronological order in the rendered string.
package services

import (
	"context"
	"strings"

	"github.com/avramides/go-convo-proxy/internal/domain"
)

// DefaultHistoryLimit is the number of recent turns injected into the
// prompt when no explicit limit is configured.
const DefaultHistoryLimit = 10

// TurnStore is the persistence contract required by HistoryService.
// The relational store and the append-only file store both satisfy it.
type TurnStore interface {
	// AppendTurn durably appends one immutable turn with a
	// server-assigned timestamp.
	AppendTurn(ctx context.Context, userID, role, content string) (*domain.Turn, error)

	// RecentTurns returns up to limit turns newest-first.
	RecentTurns(ctx context.Context, userID string, limit int) ([]domain.Turn, error)

	// TurnsPage returns a chronological page of turns.
	TurnsPage(ctx context.Context, userID string, offset, limit int) ([]domain.Turn, error)

	// CountTurns returns the total number of turns for the user.
	CountTurns(ctx context.Context, userID string) (int64, error)

	// ClearTurns deletes every turn for the user. Clearing an empty
	// history succeeds.
	ClearTurns(ctx context.Context, userID string) error
}

// HistoryService reads and writes conversation turns for a given identity.
type HistoryService struct {
	Store TurnStore

	// Limit caps the number of turns rendered by FormatRecent.
	// Values <= 0 fall back to DefaultHistoryLimit.
	Limit int
}

// NewHistoryService constructs a HistoryService with the default window size.
func NewHistoryService(store TurnStore) *HistoryService {
	return &HistoryService{Store: store, Limit: DefaultHistoryLimit}
}

// Append stores one turn. Content is persisted verbatim; no truncation or
// escaping is applied.
func (s *HistoryService) Append(ctx context.Context, userID, role, content string) error {
	_, err := s.Store.AppendTurn(ctx, userID, role, content)
	return err
}

// FormatRecent renders the most recent turns as "{role}: {content}" lines
// joined by newlines, newest-first. An identity with zero turns yields the
// empty string, never an error.
func (s *HistoryService) FormatRecent(ctx context.Context, userID string) (string, error) {
	limit := s.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	turns, err := s.Store.RecentTurns(ctx, userID, limit)
	if err != nil {
		return "", err
	}
	if len(turns) == 0 {
		return "", nil
	}
	lines := make([]string, 0, len(turns))
	for _, t := range turns {
		lines = append(lines, t.Role+": "+t.Content)
	}
	return strings.Join(lines, "\n"), nil
}

// ListPage returns a chronological page of raw turns plus the total count.
// It applies defaults for invalid page/pageSize values.
func (s *HistoryService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Turn, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Store.CountTurns(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Turn{}, 0, nil
	}

	items, err := s.Store.TurnsPage(ctx, userID, offset, pageSize)
	return items, total, err
}

// Clear deletes all turns for userID. Idempotent.
func (s *HistoryService) Clear(ctx context.Context, userID string) error {
	return s.Store.ClearTurns(ctx, userID)
}
