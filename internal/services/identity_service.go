// Package services – IdentityService
//
// This file implements the resolve-or-create operation for anonymous
// cookie identities. The service only decides *who* the caller is; issuing
// the cookie is left to the HTTP boundary, driven by the returned
// "was newly created" flag.
package services

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/avramides/go-convo-proxy/internal/domain"
)

// UserStore is the persistence contract required by IdentityService.
type UserStore interface {
	// CreateUser mints and persists a fresh identity.
	CreateUser(ctx context.Context) (*domain.User, error)

	// UserExists reports whether an identity with the given ID is stored.
	UserExists(ctx context.Context, id string) (bool, error)
}

// IdentityService maps an opaque cookie value to a stable identity,
// creating one when absent.
type IdentityService struct {
	Store UserStore
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(store UserStore) *IdentityService {
	return &IdentityService{Store: store}
}

// Resolve returns the identity for token and whether it was newly created.
//
// A token is accepted only when it parses as a UUID and a matching record
// exists; anything else mints a fresh identity. Two near-simultaneous
// requests without a cookie each get their own identity; no deduplication
// is attempted.
func (s *IdentityService) Resolve(ctx context.Context, token string) (id string, created bool, err error) {
	if token != "" {
		if parsed, perr := uuid.Parse(token); perr == nil {
			exists, eerr := s.Store.UserExists(ctx, parsed.String())
			if eerr != nil && eerr != gorm.ErrRecordNotFound {
				return "", false, eerr
			}
			if exists {
				return parsed.String(), false, nil
			}
		}
	}

	u, err := s.Store.CreateUser(ctx)
	if err != nil {
		return "", false, err
	}
	return u.ID, true, nil
}
