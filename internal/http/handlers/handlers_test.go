package handlers

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/avramides/go-convo-proxy/internal/config"
	"github.com/avramides/go-convo-proxy/internal/domain"
	"github.com/avramides/go-convo-proxy/internal/services"
)

// ---------- test plumbing ----------

// memUserStore satisfies services.UserStore in memory.
type memUserStore struct {
	users     map[string]bool
	createErr error
}

func (m *memUserStore) CreateUser(context.Context) (*domain.User, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	id := uuid.NewString()
	if m.users == nil {
		m.users = map[string]bool{}
	}
	m.users[id] = true
	return &domain.User{ID: id, CreatedAt: time.Now().UTC()}, nil
}

func (m *memUserStore) UserExists(_ context.Context, id string) (bool, error) {
	return m.users[id], nil
}

// memTurnStore satisfies services.TurnStore in memory.
type memTurnStore struct {
	turns    []domain.Turn
	clearErr error
	countErr error
}

func (m *memTurnStore) AppendTurn(_ context.Context, userID, role, content string) (*domain.Turn, error) {
	turn := domain.Turn{
		ID:        uuid.NewString(),
		UserID:    userID,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC().Add(time.Duration(len(m.turns)) * time.Millisecond),
	}
	m.turns = append(m.turns, turn)
	return &turn, nil
}

func (m *memTurnStore) RecentTurns(_ context.Context, userID string, limit int) ([]domain.Turn, error) {
	out := m.forUser(userID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTurnStore) TurnsPage(_ context.Context, userID string, offset, limit int) ([]domain.Turn, error) {
	out := m.forUser(userID)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset >= len(out) {
		return []domain.Turn{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memTurnStore) CountTurns(_ context.Context, userID string) (int64, error) {
	if m.countErr != nil {
		return 0, m.countErr
	}
	return int64(len(m.forUser(userID))), nil
}

func (m *memTurnStore) ClearTurns(_ context.Context, userID string) error {
	if m.clearErr != nil {
		return m.clearErr
	}
	kept := m.turns[:0]
	for _, t := range m.turns {
		if t.UserID != userID {
			kept = append(kept, t)
		}
	}
	m.turns = kept
	return nil
}

func (m *memTurnStore) forUser(userID string) []domain.Turn {
	var out []domain.Turn
	for _, t := range m.turns {
		if t.UserID == userID {
			out = append(out, t)
		}
	}
	return out
}

// passthroughComposer renders "history||userText" so assertions can see
// exactly what reached the upstream call.
type passthroughComposer struct{}

func (passthroughComposer) Compose(history, userText string) (string, error) {
	return history + "||" + userText, nil
}

// stubCompletions returns a canned raw body or error and records the
// last composed input it was handed.
type stubCompletions struct {
	body      string
	err       error
	lastInput string
}

func (s *stubCompletions) CreateResponse(_ context.Context, input string) (string, error) {
	s.lastInput = input
	if s.err != nil {
		return "", s.err
	}
	return s.body, nil
}

// env bundles the handler set with its backing fakes.
type env struct {
	h     *Handlers
	users *memUserStore
	turns *memTurnStore
	compl *stubCompletions
	r     *gin.Engine
}

func newEnv(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &memUserStore{}
	turns := &memTurnStore{}
	compl := &stubCompletions{}

	identity := services.NewIdentityService(users)
	history := services.NewHistoryService(turns)
	messages := &services.MessageService{
		History:     history,
		Composer:    passthroughComposer{},
		Completions: compl,
	}
	cookie := config.CookieConfig{Name: "UserId", TTL: time.Hour}

	h := New(identity, history, messages, cookie)

	r := gin.New()
	r.POST("/api/message", h.PostMessage)
	r.GET("/api/user", h.GetUser)
	r.GET("/api/user/history", h.ListHistory)
	r.DELETE("/api/user/cookie", h.ClearCookie)
	r.DELETE("/api/user/history", h.ClearHistory)

	return &env{h: h, users: users, turns: turns, compl: compl, r: r}
}

// seedIdentity creates a stored identity and returns its cookie.
func (e *env) seedIdentity(t *testing.T) *http.Cookie {
	t.Helper()
	u, err := e.users.CreateUser(context.Background())
	if err != nil {
		t.Fatalf("seed identity: %v", err)
	}
	return &http.Cookie{Name: "UserId", Value: u.ID}
}

func (e *env) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.r.ServeHTTP(w, req)
	return w
}

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// identityCookie extracts the issued identity cookie from a response, if any.
func identityCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == "UserId" {
			return c
		}
	}
	return nil
}
