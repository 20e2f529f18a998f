// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// SSE event names.
const (
	EventTextDelta = "text_delta"
	EventDone      = "done"
	EventError     = "error"
)

// SSEEvent represents a single server-sent event.
type SSEEvent struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

// ChatStreamRequest is the request body for the SSE streaming endpoint.
type ChatStreamRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

type errorPayload struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *Server) registerSSERoute() {
	s.router.Post("/api/v1/chat/stream", s.handleChatStream)

	// The streaming handler needs the raw ResponseWriter, so the chi route
	// above serves requests and the operation is added to the spec by hand.
	minLen := 1
	s.api.OpenAPI().AddOperation(&huma.Operation{
		OperationID: "chat-stream",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat/stream",
		Summary:     "Stream a chat response via SSE",
		Description: "Send a message and receive the scanned response as it is produced. " +
			"Set Accept: text/event-stream for SSE (text_delta, done and error events); " +
			"otherwise the collected events are returned as a JSON array.",
		Tags: []string{"chat"},
		RequestBody: &huma.RequestBody{
			Required: true,
			Content: map[string]*huma.MediaType{
				"application/json": {
					Schema: &huma.Schema{
						Type:     "object",
						Required: []string{"message"},
						Properties: map[string]*huma.Schema{
							"message": {
								Type:        "string",
								MinLength:   &minLen,
								Description: "User message",
							},
							"conversation_id": {
								Type:        "string",
								Description: "Conversation to continue; a new one is started when empty",
							},
						},
					},
				},
			},
		},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Streaming response (SSE or JSON depending on Accept header)",
				Content: map[string]*huma.MediaType{
					"text/event-stream": {
						Schema: &huma.Schema{
							Type:        "string",
							Description: "Server-sent event stream",
						},
					},
					"application/json": {
						Schema: &huma.Schema{
							Type: "object",
							Properties: map[string]*huma.Schema{
								"events": {
									Type:        "array",
									Description: "Collected events",
									Items:       &huma.Schema{Type: "object"},
								},
							},
						},
					},
				},
			},
			"400": {Description: "Malformed request body"},
			"422": {Description: "Validation error (missing message)"},
			"503": {Description: "Chat not configured"},
		},
	})
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, errorPayload{Error: "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusUnprocessableEntity, errorPayload{Error: "message is required"})
		return
	}
	if s.services.Chat == nil {
		writeError(w, http.StatusServiceUnavailable, errorPayload{Error: "chat not configured"})
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	id := conversationID(req.ConversationID)
	deltas, done := s.runTurn(ctx, id, req.Message)

	if strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
		s.writeSSE(w, id, deltas, done)
		return
	}
	s.writeJSON(w, id, deltas, done)
}

// runTurn starts the turn in its own goroutine. Each delta is handed over
// synchronously, so every delta has been received before done fires. The
// deltas channel is never closed; callers stop reading once done fires or
// ctx is cancelled.
func (s *Server) runTurn(ctx context.Context, id, message string) (<-chan string, <-chan error) {
	deltas := make(chan string)
	done := make(chan error, 1)
	go func() {
		done <- s.services.Chat.Run(ctx, id, message, func(text string) error {
			select {
			case deltas <- text:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return deltas, done
}

func (s *Server) writeSSE(w http.ResponseWriter, id string, deltas <-chan string, done <-chan error) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	// httptest.ResponseRecorder implements Flusher; other writers may not.
	flusher, _ := w.(http.Flusher)
	send := func(ev SSEEvent) error {
		data, err := json.Marshal(ev.Data)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Event, data); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	for {
		select {
		case text := <-deltas:
			if err := send(SSEEvent{Event: EventTextDelta, Data: map[string]string{"text": text}}); err != nil {
				// Client gone; the deferred cancel stops the turn.
				s.logger.Debug("sse write failed", "conversation_id", id, "error", err)
				return
			}
		case err := <-done:
			if err != nil {
				s.logger.Warn("chat stream failed", "conversation_id", id, "error", err)
				_ = send(SSEEvent{Event: EventError, Data: errorPayload{
					Error: err.Error(),
					Code:  string(aegiserr.CodeOf(err)),
				}})
				return
			}
			_ = send(SSEEvent{Event: EventDone, Data: map[string]string{"conversation_id": id}})
			return
		}
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, id string, deltas <-chan string, done <-chan error) {
	var (
		events []SSEEvent
		err    error
	)
collect:
	for {
		select {
		case text := <-deltas:
			events = append(events, SSEEvent{Event: EventTextDelta, Data: map[string]string{"text": text}})
		case err = <-done:
			break collect
		}
	}

	if err != nil {
		s.logger.Warn("chat stream failed", "conversation_id", id, "error", err)
		events = append(events, SSEEvent{Event: EventError, Data: errorPayload{
			Error: err.Error(),
			Code:  string(aegiserr.CodeOf(err)),
		}})
	} else {
		events = append(events, SSEEvent{Event: EventDone, Data: map[string]string{"conversation_id": id}})
	}

	w.Header().Set("Content-Type", "application/json")
	resp := struct {
		Events []SSEEvent `json:"events"`
	}{Events: events}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Debug("encoding stream response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body errorPayload) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
