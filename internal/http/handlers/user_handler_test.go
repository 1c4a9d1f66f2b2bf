package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/avramides/go-convo-proxy/internal/domain"
)

// ---------- GET /api/user ----------

func TestGetUser_FirstContact_MintsIdentity(t *testing.T) {
	e := newEnv(t)

	w := e.do(httptest.NewRequest(http.MethodGet, "/api/user", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	var resp GetUserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := uuid.Parse(resp.UserID); err != nil {
		t.Fatalf("userId should be a UUID, got %q", resp.UserID)
	}

	ck := identityCookie(w)
	if ck == nil || ck.Value != resp.UserID {
		t.Fatalf("issued cookie must carry the returned identity: %+v", ck)
	}
}

func TestGetUser_KnownCookie_ReturnsSameIdentity(t *testing.T) {
	e := newEnv(t)
	ck := e.seedIdentity(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(ck)
	w := e.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var resp GetUserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.UserID != ck.Value {
		t.Fatalf("expected %q, got %q", ck.Value, resp.UserID)
	}
	if identityCookie(w) != nil {
		t.Fatalf("no new cookie for a known identity")
	}
}

func TestGetUser_StaleCookie_MintsFreshIdentity(t *testing.T) {
	e := newEnv(t)
	stale := &http.Cookie{Name: "UserId", Value: uuid.NewString()} // valid shape, not stored

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.AddCookie(stale)
	w := e.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}

	var resp GetUserResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.UserID == stale.Value {
		t.Fatalf("stale cookie must not be resurrected")
	}
	if ck := identityCookie(w); ck == nil || ck.Value != resp.UserID {
		t.Fatalf("fresh identity must be issued as a cookie: %+v", ck)
	}
}

// ---------- DELETE /api/user/cookie ----------

func TestClearCookie_ExpiresCookieKeepsHistory(t *testing.T) {
	e := newEnv(t)
	ck := e.seedIdentity(t)
	if _, err := e.turns.AppendTurn(context.Background(), ck.Value, domain.RoleUser, "kept"); err != nil {
		t.Fatalf("seed turn: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/user/cookie", nil)
	req.AddCookie(ck)
	w := e.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	expired := identityCookie(w)
	if expired == nil || expired.MaxAge >= 0 || expired.Value != "" {
		t.Fatalf("cookie must be expired: %+v", expired)
	}

	var resp MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Cookie cleared." {
		t.Fatalf("message %q", resp.Message)
	}

	// stored turns survive a cookie clear
	if len(e.turns.turns) != 1 {
		t.Fatalf("history must survive cookie clearing: %+v", e.turns.turns)
	}
}

// ---------- DELETE /api/user/history ----------

func TestClearHistory_RequiresValidCookie(t *testing.T) {
	e := newEnv(t)

	// no cookie
	w := e.do(httptest.NewRequest(http.MethodDelete, "/api/user/history", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("no cookie: status %d", w.Code)
	}

	// malformed cookie value
	req := httptest.NewRequest(http.MethodDelete, "/api/user/history", nil)
	req.AddCookie(&http.Cookie{Name: "UserId", Value: "not-a-uuid"})
	w = e.do(req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("garbage cookie: status %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeBadRequest {
		t.Fatalf("code %q", resp.Code)
	}
}

func TestClearHistory_DeletesTurnsKeepsCookie(t *testing.T) {
	e := newEnv(t)
	ck := e.seedIdentity(t)
	ctx := context.Background()
	if _, err := e.turns.AppendTurn(ctx, ck.Value, domain.RoleUser, "bye"); err != nil {
		t.Fatalf("seed turn: %v", err)
	}
	if _, err := e.turns.AppendTurn(ctx, "other", domain.RoleUser, "keep"); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/user/history", nil)
	req.AddCookie(ck)
	w := e.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}
	var resp MessageResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Message != "Chat history cleared." {
		t.Fatalf("message %q", resp.Message)
	}
	if identityCookie(w) != nil {
		t.Fatalf("clearing history must not touch the cookie")
	}
	if len(e.turns.turns) != 1 || e.turns.turns[0].UserID != "other" {
		t.Fatalf("only the caller's turns are deleted: %+v", e.turns.turns)
	}

	// clearing again succeeds (idempotent)
	req = httptest.NewRequest(http.MethodDelete, "/api/user/history", nil)
	req.AddCookie(ck)
	if w := e.do(req); w.Code != http.StatusOK {
		t.Fatalf("repeat clear: status %d", w.Code)
	}
}

func TestClearHistory_StoreFailure_500(t *testing.T) {
	e := newEnv(t)
	ck := e.seedIdentity(t)
	e.turns.clearErr = errors.New("locked")

	buf := captureLogs(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/user/history", nil)
	req.AddCookie(ck)
	w := e.do(req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status %d", w.Code)
	}
	var resp ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Code != ErrCodeHistoryFailed {
		t.Fatalf("code %q", resp.Code)
	}
	if buf.Len() == 0 {
		t.Fatalf("5xx responses must be logged")
	}
}

// ---------- GET /api/user/history ----------

func TestListHistory_RequiresValidCookie(t *testing.T) {
	e := newEnv(t)
	w := e.do(httptest.NewRequest(http.MethodGet, "/api/user/history", nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d", w.Code)
	}
}

func TestListHistory_PaginatedChronological(t *testing.T) {
	e := newEnv(t)
	ck := e.seedIdentity(t)
	ctx := context.Background()
	for _, c := range []string{"one", "two", "three"} {
		if _, err := e.turns.AppendTurn(ctx, ck.Value, domain.RoleUser, c); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/user/history?page=1&page_size=2", nil)
	req.AddCookie(ck)
	w := e.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d body %s", w.Code, w.Body.String())
	}

	var resp ListHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Turns) != 2 || resp.Turns[0].Content != "one" || resp.Turns[1].Content != "two" {
		t.Fatalf("first page must be chronological: %+v", resp.Turns)
	}
	p := resp.Pagination
	if p.Page != 1 || p.PageSize != 2 || p.Total != 3 || p.TotalPages != 2 || !p.HasNext {
		t.Fatalf("pagination: %+v", p)
	}
}

func TestListHistory_ClampsPagination(t *testing.T) {
	e := newEnv(t)
	ck := e.seedIdentity(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user/history?page=-2&page_size=9999", nil)
	req.AddCookie(ck)
	w := e.do(req)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
	var resp ListHistoryResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Pagination.Page != 1 || resp.Pagination.PageSize != 100 {
		t.Fatalf("clamp: %+v", resp.Pagination)
	}
}
