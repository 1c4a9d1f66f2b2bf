// Message HTTP handler.
//
// POST /api/message runs one conversation round-trip: resolve the cookie
// identity, inject the recent history window into the prompt template,
// call the completion endpoint, extract the assistant reply, persist both
// turns, and return the reply.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/avramides/go-convo-proxy/internal/services"
)

// PostMessageRequest is the JSON payload for sending a user message.
// Content is forwarded downstream exactly as received, empty included.
type PostMessageRequest struct {
	Content string `json:"content"`
}

// PostMessageResponse is the JSON envelope for the assistant reply.
// Response is null when the upstream envelope carried no text output.
type PostMessageResponse struct {
	Response *string `json:"response"`
}

// PostMessage handles POST /api/message.
//
// Responses:
//   - 200 {"response": "..."} on success (both turns persisted)
//   - 200 {"response": null} when extraction yields nothing (no turns persisted)
//   - 400 with empty body when the upstream body is not well-formed JSON
//   - 400 envelope when the request body is not valid JSON
//   - 500 envelope for identity, storage, or upstream-call failures
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()

	userID, err := h.resolveIdentity(c)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeIdentityFailed, "could not resolve identity")
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid request body")
		return
	}

	reply, err := h.messages.Respond(ctx, userID, req.Content)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUpstreamMalformed):
			// Wire contract: bare 400, empty body, nothing persisted.
			c.AbortWithStatus(http.StatusBadRequest)
		default:
			fail(c, http.StatusInternalServerError, ErrCodeAnswerFailed, err.Error())
		}
		return
	}

	ok(c, http.StatusOK, PostMessageResponse{Response: reply})
}
