// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/google/uuid"
	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/security/intercept"
	"github.com/sigil-dev/aegis/internal/store"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Tags:        []string{"system"},
	}, func(_ context.Context, _ *struct{}) (*healthOutput, error) {
		return &healthOutput{Body: HealthBody{Status: "ok"}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "gateway-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Gateway status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "security-metrics",
		Method:      http.MethodGet,
		Path:        "/api/v1/security/metrics",
		Summary:     "Scan counters and fail-safe policy",
		Tags:        []string{"security"},
	}, s.handleMetrics)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-audit-events",
		Method:      http.MethodGet,
		Path:        "/api/v1/audit",
		Summary:     "Recent scan events, newest first",
		Tags:        []string{"security"},
	}, s.handleAudit)

	huma.Register(s.api, huma.Operation{
		OperationID: "scan",
		Method:      http.MethodPost,
		Path:        "/api/v1/scan",
		Summary:     "Scan a prompt without running an agent",
		Tags:        []string{"security"},
	}, s.handleScan)

	huma.Register(s.api, huma.Operation{
		OperationID: "send-message",
		Method:      http.MethodPost,
		Path:        "/api/v1/chat",
		Summary:     "Send a message and wait for the full response",
		Tags:        []string{"chat"},
	}, s.handleSendMessage)
}

// --- Request/Response types for huma ---

// HealthBody is the JSON body of the health endpoint response.
type HealthBody struct {
	Status string `json:"status" example:"ok" doc:"Health status"`
}

type healthOutput struct {
	Body HealthBody
}

// StatusBody describes the running gateway.
type StatusBody struct {
	Status    string                     `json:"status" example:"ok" doc:"ok, or degraded when no model provider or the scan service is available"`
	Version   string                     `json:"version"`
	Providers []provider.Status          `json:"providers"`
	Security  *intercept.MetricsSnapshot `json:"security,omitempty"`
}

type statusOutput struct {
	Body StatusBody
}

type metricsOutput struct {
	Body intercept.MetricsSnapshot
}

type auditInput struct {
	ConversationID string `query:"conversation_id" doc:"Only events of this conversation"`
	Action         string `query:"action" doc:"allow, block or redact"`
	Direction      string `query:"direction" doc:"ingress or egress"`
	Limit          int    `query:"limit" minimum:"1" maximum:"1000" default:"50"`
}

type auditOutput struct {
	Body struct {
		Events []audit.Event `json:"events"`
	}
}

type scanInput struct {
	Body struct {
		Text           string `json:"text" minLength:"1" doc:"Prompt to scan"`
		ConversationID string `json:"conversation_id,omitempty" doc:"Recorded in the audit event"`
	}
}

// ScanBody is the outcome of a one-shot scan.
type ScanBody struct {
	ConversationID string       `json:"conversation_id"`
	Action         types.Action `json:"action" enum:"allow,block,redact"`
	Text           string       `json:"text" doc:"Prompt after the decision: unchanged, redacted, or the security notice"`
	Notice         string       `json:"notice,omitempty" doc:"Security notice or fail-open warning"`
}

type scanOutput struct {
	Body ScanBody
}

type sendMessageInput struct {
	Body struct {
		Message        string `json:"message" minLength:"1" doc:"User message"`
		ConversationID string `json:"conversation_id,omitempty" doc:"Conversation to continue; a new one is started when empty"`
	}
}

type sendMessageOutput struct {
	Body struct {
		ConversationID string `json:"conversation_id"`
		Response       string `json:"response" doc:"Scanned agent response"`
	}
}

// --- Handlers ---

func unavailable(what string) error {
	return huma.Error503ServiceUnavailable(what + " not configured")
}

// apiError maps a coded error onto its HTTP status.
func apiError(msg string, err error) error {
	return huma.NewError(aegiserr.HTTPStatus(err), msg, err)
}

func conversationID(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	out := &statusOutput{Body: StatusBody{Status: "ok", Version: s.cfg.Version, Providers: []provider.Status{}}}

	if s.services.Providers != nil {
		out.Body.Providers = s.services.Providers.Status(ctx)
		healthy := false
		for _, st := range out.Body.Providers {
			healthy = healthy || st.Available
		}
		if !healthy {
			out.Body.Status = "degraded"
		}
	}
	if s.services.Scanner != nil {
		m := s.services.Scanner.Metrics()
		out.Body.Security = &m
		if m.ScannerHealth != nil && !m.ScannerHealth.Available {
			out.Body.Status = "degraded"
		}
	}
	return out, nil
}

func (s *Server) handleMetrics(_ context.Context, _ *struct{}) (*metricsOutput, error) {
	if s.services.Scanner == nil {
		return nil, unavailable("scanner")
	}
	return &metricsOutput{Body: s.services.Scanner.Metrics()}, nil
}

func (s *Server) handleAudit(ctx context.Context, in *auditInput) (*auditOutput, error) {
	if s.services.Audit == nil {
		return nil, unavailable("audit log")
	}
	if in.Action != "" && !types.Action(in.Action).Valid() {
		return nil, huma.Error400BadRequest("action must be one of allow, block, redact")
	}
	if in.Direction != "" && !types.Direction(in.Direction).Valid() {
		return nil, huma.Error400BadRequest("direction must be one of ingress, egress")
	}

	events, err := audit.Recent(ctx, s.services.Audit, store.AuditFilter{
		ConversationID: in.ConversationID,
		Action:         in.Action,
		Direction:      in.Direction,
		Limit:          in.Limit,
	})
	if err != nil {
		return nil, apiError("listing audit events", err)
	}
	out := &auditOutput{}
	out.Body.Events = events
	return out, nil
}

func (s *Server) handleScan(ctx context.Context, in *scanInput) (*scanOutput, error) {
	if s.services.Scanner == nil {
		return nil, unavailable("scanner")
	}
	id := conversationID(in.Body.ConversationID)
	decision, text := s.services.Scanner.ScanBefore(ctx, in.Body.Text, id)
	return &scanOutput{Body: ScanBody{
		ConversationID: id,
		Action:         decision.Action,
		Text:           text,
		Notice:         decision.Notice,
	}}, nil
}

func (s *Server) handleSendMessage(ctx context.Context, in *sendMessageInput) (*sendMessageOutput, error) {
	if s.services.Chat == nil {
		return nil, unavailable("chat")
	}
	id := conversationID(in.Body.ConversationID)
	resp, err := s.services.Chat.Collect(ctx, id, in.Body.Message)
	if err != nil {
		s.logger.Warn("chat turn failed", "conversation_id", id, "error", err)
		return nil, apiError("chat turn failed", err)
	}
	out := &sendMessageOutput{}
	out.Body.ConversationID = id
	out.Body.Response = resp
	return out, nil
}
