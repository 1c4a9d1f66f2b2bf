// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the message round-trip: read the recent history window, compose the
// prompt, call the completion endpoint, extract the assistant reply from
// the response envelope, and persist the exchanged pair of turns.
//
// Ordering is load-bearing: history is read BEFORE the new user turn is
// appended, so the template never contains the message currently being
// answered.
//
// Observability: the round-trip is OpenTelemetry-instrumented; spans carry
// the user identifier and reply presence.
package services

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/avramides/go-convo-proxy/internal/domain"
	"github.com/avramides/go-convo-proxy/internal/openai"
)

// PromptComposer renders the final prompt from the formatted history and
// the raw user text.
type PromptComposer interface {
	Compose(history, userText string) (string, error)
}

// CompletionClient performs the outbound completion call and returns the
// raw response body.
type CompletionClient interface {
	CreateResponse(ctx context.Context, input string) (string, error)
}

// MessageService orchestrates one conversation round-trip.
type MessageService struct {
	History     *HistoryService
	Composer    PromptComposer
	Completions CompletionClient
}

// Respond runs the full round-trip for one user message and returns the
// assistant reply, or nil when the envelope carried no text output.
//
// Content is forwarded to the composer and persisted exactly as received:
// no trimming, no escaping, no emptiness check.
//
// Persistence is strictly gated on a non-empty reply: on the success path
// exactly two turns are appended (the user's, then the assistant's); on
// every other path zero turns are appended. The two appends are best
// effort with respect to each other; if the second fails after the first
// succeeded, no compensation is attempted.
func (s *MessageService) Respond(ctx context.Context, userID, content string) (*string, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "Respond",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	// 1. History window, read before the new turn exists.
	history, err := s.History.FormatRecent(ctx, userID)
	if err != nil {
		return nil, err
	}

	// 2. Prompt composition.
	input, err := s.Composer.Compose(history, content)
	if err != nil {
		return nil, err
	}

	// 3. Outbound completion call.
	raw, err := s.Completions.CreateResponse(ctx, input)
	if err != nil {
		return nil, err
	}

	// 4. Envelope extraction.
	reply, err := openai.ExtractReply(raw)
	if err != nil {
		if errors.Is(err, openai.ErrMalformedBody) {
			return nil, ErrUpstreamMalformed
		}
		return nil, err
	}
	span.SetAttributes(attribute.Bool("reply.present", reply != ""))
	if reply == "" {
		// Absent reply is not an error; nothing is persisted.
		return nil, nil
	}

	// 5. Persist both turns of the exchange.
	if err := s.History.Append(ctx, userID, domain.RoleUser, content); err != nil {
		return nil, err
	}
	if err := s.History.Append(ctx, userID, domain.RoleAssistant, reply); err != nil {
		return nil, err
	}

	return &reply, nil
}
