package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/avramides/go-convo-proxy/internal/config"
	"github.com/avramides/go-convo-proxy/internal/openai"
	"github.com/avramides/go-convo-proxy/internal/prompt"
	"github.com/avramides/go-convo-proxy/internal/repo"
)

// ---------- test plumbing ----------

func newRouterDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// fakeUpstream mimics the completion endpoint and records received inputs.
type fakeUpstream struct {
	inputs []string
	reply  string
}

func (f *fakeUpstream) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Input string `json:"input"`
		}
		_ = json.Unmarshal(body, &req)
		f.inputs = append(f.inputs, req.Input)

		w.Header().Set("Content-Type", "application/json")
		text, _ := json.Marshal(f.reply)
		fmt.Fprintf(w, `{"id":"resp_1","output":[{"id":"m1","type":"message","role":"assistant",`+
			`"content":[{"type":"output_text","text":%s}]}]}`, text)
	}
}

func testConfig() config.Config {
	return config.Config{
		APIBasePath:  "/api",
		HistoryLimit: 10,
		Cookie:       config.CookieConfig{Name: "UserId", TTL: time.Hour},
		RateRPS:      1000,
		RateBurst:    1000,
		OTEL:         config.OTELConfig{ServiceName: "router-test"},
	}
}

// newServer wires the full stack against a fake upstream and returns the
// engine plus the upstream recorder.
func newServer(t *testing.T) (*gin.Engine, *fakeUpstream) {
	t.Helper()
	return newServerWithConfig(t, testConfig())
}

func newServerWithConfig(t *testing.T, cfg config.Config) (*gin.Engine, *fakeUpstream) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newRouterDB(t)

	up := &fakeUpstream{reply: "hello from upstream"}
	srv := httptest.NewServer(up.handler())
	t.Cleanup(srv.Close)

	tplPath := filepath.Join(t.TempDir(), "Prompt.txt")
	tpl := "History:\n{history}\n\nUser says:\n{user.text}"
	if err := os.WriteFile(tplPath, []byte(tpl), 0o644); err != nil {
		t.Fatalf("write template: %v", err)
	}

	r := gin.New()
	RegisterRoutes(r, Deps{
		Users:       NewGormUserStore(db),
		Turns:       NewGormTurnStore(db),
		Completions: openai.NewClient(srv.URL, "sk-test", "gpt-4.1-mini"),
		Composer:    prompt.NewComposer(tplPath),
	}, cfg)
	return r, up
}

func do(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func firstCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ---------- tests ----------

func TestRouter_Health(t *testing.T) {
	r, _ := newServer(t)
	w := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"status":"ok"`) {
		t.Fatalf("health: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_Metrics(t *testing.T) {
	r, _ := newServer(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Accept-Encoding", "identity")
	w := do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics: %d", w.Code)
	}
}

func TestRouter_NoRouteAndNoMethod(t *testing.T) {
	r, _ := newServer(t)

	w := do(r, httptest.NewRequest(http.MethodGet, "/nope", nil))
	if w.Code != http.StatusNotFound || !strings.Contains(w.Body.String(), `"code":"not_found"`) {
		t.Fatalf("no route: %d %s", w.Code, w.Body.String())
	}

	w = do(r, httptest.NewRequest(http.MethodPut, "/api/message", nil))
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("no method: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_MessageRoundTrip_WithHistory(t *testing.T) {
	r, up := newServer(t)

	// first message: no cookie, identity is minted
	req := httptest.NewRequest(http.MethodPost, "/api/message",
		bytes.NewBufferString(`{"content":"what is Go?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "identity")
	w := do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("first message: %d %s", w.Code, w.Body.String())
	}
	ck := firstCookie(w, "UserId")
	if ck == nil {
		t.Fatalf("identity cookie not issued")
	}
	if !strings.Contains(w.Body.String(), "hello from upstream") {
		t.Fatalf("reply missing: %s", w.Body.String())
	}

	// the first upstream input rendered an empty history window
	if len(up.inputs) != 1 || !strings.Contains(up.inputs[0], "User says:\nwhat is Go?") {
		t.Fatalf("first upstream input: %+v", up.inputs)
	}
	if strings.Contains(up.inputs[0], "User: what is Go?") {
		t.Fatalf("first input must not contain history: %q", up.inputs[0])
	}

	// second message with the cookie: history carries the first exchange
	up.reply = "second reply"
	req = httptest.NewRequest(http.MethodPost, "/api/message",
		bytes.NewBufferString(`{"content":"and generics?"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept-Encoding", "identity")
	req.AddCookie(ck)
	w = do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("second message: %d %s", w.Code, w.Body.String())
	}
	if firstCookie(w, "UserId") != nil {
		t.Fatalf("known identity must not get a fresh cookie")
	}

	second := up.inputs[1]
	if !strings.Contains(second, "AI: hello from upstream") || !strings.Contains(second, "User: what is Go?") {
		t.Fatalf("second input missing history: %q", second)
	}
	// newest-first ordering inside the window
	if strings.Index(second, "AI: hello from upstream") > strings.Index(second, "User: what is Go?") {
		t.Fatalf("history must be newest-first: %q", second)
	}

	// the stored history is visible through the listing endpoint
	req = httptest.NewRequest(http.MethodGet, "/api/user/history", nil)
	req.Header.Set("Accept-Encoding", "identity")
	req.AddCookie(ck)
	w = do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("list history: %d %s", w.Code, w.Body.String())
	}
	var listing struct {
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &listing); err != nil {
		t.Fatalf("unmarshal listing: %v", err)
	}
	if listing.Pagination.Total != 4 {
		t.Fatalf("expected 4 stored turns, got %d", listing.Pagination.Total)
	}

	// clearing history, then the next window is empty again
	req = httptest.NewRequest(http.MethodDelete, "/api/user/history", nil)
	req.AddCookie(ck)
	if w := do(r, req); w.Code != http.StatusOK {
		t.Fatalf("clear history: %d %s", w.Code, w.Body.String())
	}
	req = httptest.NewRequest(http.MethodPost, "/api/message",
		bytes.NewBufferString(`{"content":"fresh start"}`))
	req.Header.Set("Content-Type", "application/json")
	req.AddCookie(ck)
	if w := do(r, req); w.Code != http.StatusOK {
		t.Fatalf("post after clear: %d %s", w.Code, w.Body.String())
	}
	if got := up.inputs[len(up.inputs)-1]; strings.Contains(got, "AI:") {
		t.Fatalf("window after clear must be empty: %q", got)
	}
}

func TestRouter_SecurityAndCorrelationHeaders(t *testing.T) {
	r, _ := newServer(t)
	w := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))

	h := w.Header()
	if h.Get("X-Request-ID") == "" {
		t.Fatalf("request id missing")
	}
	if h.Get("Cache-Control") != "no-store" {
		t.Fatalf("conversation responses must not be cacheable: %+v", h)
	}
	if h.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("nosniff missing")
	}
}

func TestRouter_GetUser_ThenClearCookie(t *testing.T) {
	r, _ := newServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("Accept-Encoding", "identity")
	w := do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("get user: %d %s", w.Code, w.Body.String())
	}
	ck := firstCookie(w, "UserId")
	if ck == nil {
		t.Fatalf("cookie not issued")
	}
	if _, err := uuid.Parse(ck.Value); err != nil {
		t.Fatalf("cookie value should be a UUID: %q", ck.Value)
	}

	req = httptest.NewRequest(http.MethodDelete, "/api/user/cookie", nil)
	req.AddCookie(ck)
	w = do(r, req)
	if w.Code != http.StatusOK {
		t.Fatalf("clear cookie: %d", w.Code)
	}
	if cleared := firstCookie(w, "UserId"); cleared == nil || cleared.Value != "" {
		t.Fatalf("cookie must be expired: %+v", cleared)
	}
}

func TestRouter_RateLimiterOffByDefault(t *testing.T) {
	cfg := testConfig()
	cfg.RateRPS = 0 // the Load default: no limiter in the chain
	r, _ := newServerWithConfig(t, cfg)

	for i := 0; i < 30; i++ {
		w := do(r, httptest.NewRequest(http.MethodGet, "/health", nil))
		if w.Code == http.StatusTooManyRequests {
			t.Fatalf("request %d throttled with RATE_RPS=0", i)
		}
		if w.Code != http.StatusOK {
			t.Fatalf("request %d: %d", i, w.Code)
		}
	}
}
