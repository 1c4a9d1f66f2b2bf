// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Turn model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avramides/go-convo-proxy/internal/domain"
)

// CreateTurn inserts a new turn row with a server-assigned UTC timestamp.
// The insert is a single atomic statement, so concurrent appends for the
// same user cannot corrupt state.
func CreateTurn(ctx context.Context, db *gorm.DB, userID, role, content string) (*domain.Turn, error) {
	t := &domain.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
	return t, db.WithContext(ctx).Create(t).Error
}

// ListRecentTurns returns up to limit turns for userID ordered newest-first
// (CreatedAt DESC, ID DESC as a deterministic tiebreak). limit <= 0 returns
// all turns.
func ListRecentTurns(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.Turn, error) {
	var out []domain.Turn
	q := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ListTurnsPage returns a paginated slice of turns for userID in
// chronological order (CreatedAt ASC, ID ASC).
func ListTurnsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Turn, error) {
	var out []domain.Turn
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountTurns uses a raw COUNT so a missing table surfaces as an error.
func CountTurns(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Raw("SELECT COUNT(*) FROM turns WHERE user_id = ?", userID).
		Scan(&total).Error
	return total, err
}

// DeleteTurns removes every turn belonging to userID. Deleting for a user
// with no turns is a no-op and succeeds.
func DeleteTurns(ctx context.Context, db *gorm.DB, userID string) error {
	return db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&domain.Turn{}).Error
}
