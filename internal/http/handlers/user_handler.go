// User HTTP handlers.
//
// This file exposes the identity and history endpoints:
//   - GET    /api/user          (return the caller's identity, minting one if absent)
//   - GET    /api/user/history  (list the caller's persisted turns, paginated)
//   - DELETE /api/user/cookie   (expire the identity cookie only)
//   - DELETE /api/user/history  (delete all persisted turns for the caller)
//
// The two DELETE operations are deliberately independent: clearing the
// cookie keeps the stored turns (the identity row is never deleted), and
// clearing history keeps the cookie.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/avramides/go-convo-proxy/internal/domain"
	"github.com/avramides/go-convo-proxy/internal/http/middleware"
	"github.com/avramides/go-convo-proxy/internal/utils"
)

// GetUserResponse carries the caller's stable identity.
type GetUserResponse struct {
	UserID string `json:"userId"`
}

// MessageResponse is a minimal confirmation envelope.
type MessageResponse struct {
	Message string `json:"message"`
}

// Pagination describes the page window of a list response.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListHistoryResponse contains a chronological page of the caller's turns.
type ListHistoryResponse struct {
	Turns      []domain.Turn `json:"turns"`
	Pagination Pagination    `json:"pagination"`
}

// GetUser handles GET /api/user: returns the current identity from the
// cookie, creating (and issuing) one if none exists.
func (h *Handlers) GetUser(c *gin.Context) {
	id, err := h.resolveIdentity(c)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeIdentityFailed, "could not resolve identity")
		return
	}
	ok(c, http.StatusOK, GetUserResponse{UserID: id})
}

// ClearCookie handles DELETE /api/user/cookie: expires the identity cookie.
// The identity row and its turns remain stored.
func (h *Handlers) ClearCookie(c *gin.Context) {
	h.clearCookie(c)
	ok(c, http.StatusOK, MessageResponse{Message: "Cookie cleared."})
}

// ClearHistory handles DELETE /api/user/history: deletes every persisted
// turn for the caller. Requires a valid identity cookie; no fresh identity
// is minted for a delete.
func (h *Handlers) ClearHistory(c *gin.Context) {
	id, okID := h.cookieIdentity(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no valid user cookie found")
		return
	}
	if err := h.history.Clear(c.Request.Context(), id); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, "could not clear history")
		return
	}
	ok(c, http.StatusOK, MessageResponse{Message: "Chat history cleared."})
}

// ListHistory handles GET /api/user/history: returns a chronological page
// of the caller's turns. Requires a valid identity cookie.
func (h *Handlers) ListHistory(c *gin.Context) {
	id, okID := h.cookieIdentity(c)
	if !okID {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "no valid user cookie found")
		return
	}

	page, pageSize := clampPagination(c)
	items, total, err := h.history.ListPage(c.Request.Context(), id, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeHistoryFailed, "could not list history")
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListHistoryResponse{
		Turns: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// cookieIdentity reads the identity cookie and validates its shape. It
// never mints a new identity. The identity is attached to the Gin context
// for access logging when valid.
func (h *Handlers) cookieIdentity(c *gin.Context) (string, bool) {
	token, err := c.Cookie(h.cookie.Name)
	if err != nil || token == "" {
		return "", false
	}
	parsed, err := uuid.Parse(token)
	if err != nil {
		return "", false
	}
	c.Set(middleware.IdentityKey, parsed.String())
	return parsed.String(), true
}

// clampPagination parses page/page_size from query parameters, applies
// sane defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}
