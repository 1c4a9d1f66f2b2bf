// Handler wiring and identity cookie helpers.
//
// Handlers are transport-thin: they resolve the caller's identity from the
// cookie, decode inputs, delegate to application services, and translate
// service errors into the HTTP error taxonomy. Cookie issuance stays here
// at the boundary; the identity service only reports whether an identity
// was newly created.
package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avramides/go-convo-proxy/internal/config"
	"github.com/avramides/go-convo-proxy/internal/http/middleware"
	"github.com/avramides/go-convo-proxy/internal/services"
)

// Handlers bundles the application services behind the HTTP endpoints.
type Handlers struct {
	identity *services.IdentityService
	history  *services.HistoryService
	messages *services.MessageService
	cookie   config.CookieConfig
}

// New constructs the handler set.
func New(identity *services.IdentityService, history *services.HistoryService, messages *services.MessageService, cookie config.CookieConfig) *Handlers {
	return &Handlers{
		identity: identity,
		history:  history,
		messages: messages,
		cookie:   cookie,
	}
}

// resolveIdentity resolves (or creates) the caller's identity from the
// request cookie. When a fresh identity was minted, the new cookie is
// issued on the response. The identity is attached to the Gin context for
// access logging.
func (h *Handlers) resolveIdentity(c *gin.Context) (string, error) {
	token, _ := c.Cookie(h.cookie.Name)
	id, created, err := h.identity.Resolve(c.Request.Context(), token)
	if err != nil {
		return "", err
	}
	if created {
		h.issueCookie(c, id)
	}
	c.Set(middleware.IdentityKey, id)
	return id, nil
}

// issueCookie writes the identity cookie: HTTP-only, Secure,
// SameSite=None (the SPA may be served from another origin), root path,
// long expiry.
func (h *Handlers) issueCookie(c *gin.Context, id string) {
	ttl := h.cookie.TTL
	if ttl <= 0 {
		ttl = 365 * 24 * time.Hour
	}
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(h.cookie.Name, id, int(ttl.Seconds()), "/", "", true, true)
}

// clearCookie expires the identity cookie with the same attributes it was
// issued under, so browsers actually drop it.
func (h *Handlers) clearCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteNoneMode)
	c.SetCookie(h.cookie.Name, "", -1, "/", "", true, true)
}
