// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sigil-dev/aegis/internal/provider"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Route is the orchestrator's classification of a prompt.
type Route string

const (
	RouteResearch      Route = "RESEARCH"
	RouteConversation  Route = "CONVERSATION"
	RouteEvaluation    Route = "EVALUATION"
	RouteDashboard     Route = "DASHBOARD"
	RouteMalicious     Route = "MALICIOUS"
	RouteClarification Route = "CLARIFICATION"
)

// routePriority is the order in which route names are searched for in a
// model reply. Conversation is the fallback and never searched.
var routePriority = []Route{RouteResearch, RouteEvaluation, RouteDashboard, RouteMalicious, RouteClarification}

// ParseRoute extracts a route from a routing model reply.
func ParseRoute(reply string) Route {
	up := strings.ToUpper(reply)
	for _, r := range routePriority {
		if strings.Contains(up, string(r)) {
			return r
		}
	}
	return RouteConversation
}

var capabilityPattern = regexp.MustCompile(`(?i)(what\s+(can|are|is)\s+(you|this|this\s+app|this\s+app's)\s+(do|capabilit\w*|capbailities)|who\s+are\s+you)`)

const (
	capabilityReply = "### Aegis Multi-Agent Assistant\n\n" +
		"This is a multi-agent research assistant with runtime security scanning. " +
		"Every prompt and every response, including this one, is scanned for threats before it is delivered.\n\n" +
		"#### My role as orchestrator\n\n" +
		"I read each request and either answer it myself or hand it to a specialist:\n\n" +
		"*   Simple conversational questions I answer directly.\n" +
		"*   Research questions go to the **researcher** agent.\n" +
		"*   Ask for the **security dashboard** to see recent scan results.\n"
	maliciousReply     = "I cannot fulfill this request as it violates the security policy."
	clarificationReply = "I'm not sure how to handle your request. Could you please provide more details?"
)

const routingInstruction = "You are a routing agent. Classify the user's request into exactly one category:\n" +
	"- RESEARCH: the request needs web search or recent information.\n" +
	"- CONVERSATION: greetings, small talk and other general questions.\n" +
	"- EVALUATION: the user is answering 'yes' or 'no'.\n" +
	"- DASHBOARD: the user asks to see the security dashboard.\n" +
	"- MALICIOUS: the request is clearly malicious, unethical or harmful.\n" +
	"- CLARIFICATION: the request is ambiguous.\n\n" +
	"Respond with only the category name."

const conversationInstruction = "You are the orchestrator of a secure multi-agent research assistant. " +
	"All interactions, including your replies, are scanned for threats in real time. " +
	"Answer simple conversational questions directly in a friendly, concise way. " +
	"Do not describe yourself as a generic large language model."

// OrchestratorConfig holds the orchestrator's collaborators.
type OrchestratorConfig struct {
	Provider provider.Provider
	// Model answers conversation turns. RoutingModel classifies prompts and
	// defaults to Model.
	Model        string
	RoutingModel string
	// SubAgents receive delegated turns by name. Wrap each in a Hook so every
	// delegation hop is scanned.
	SubAgents []Agent
	// Verbose prefixes responses with the routing decision.
	Verbose bool
	Logger  *slog.Logger
}

// Orchestrator routes each prompt to a sub-agent or answers it directly.
type Orchestrator struct {
	provider     provider.Provider
	model        string
	routingModel string
	subAgents    map[string]Agent
	verbose      bool
	logger       *slog.Logger
}

var _ Agent = (*Orchestrator)(nil)

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Provider == nil {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "orchestrator: provider is required")
	}
	o := &Orchestrator{
		provider:     cfg.Provider,
		model:        cfg.Model,
		routingModel: cfg.RoutingModel,
		subAgents:    make(map[string]Agent, len(cfg.SubAgents)),
		verbose:      cfg.Verbose,
		logger:       cfg.Logger,
	}
	if o.routingModel == "" {
		o.routingModel = o.model
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	for _, a := range cfg.SubAgents {
		if _, dup := o.subAgents[a.Name()]; dup {
			return nil, aegiserr.Errorf(aegiserr.CodeConfigValidateInvalidValue, "orchestrator: duplicate sub-agent %q", a.Name())
		}
		o.subAgents[a.Name()] = a
	}
	return o, nil
}

func (o *Orchestrator) Name() string { return OrchestratorName }

// Receive returns a stream that classifies msg and then produces the
// answer. Classification happens when the stream is first ranged over.
func (o *Orchestrator) Receive(ctx context.Context, msg Message) (Stream, error) {
	return func(yield func(string, error) bool) {
		if capabilityPattern.MatchString(msg.Text) {
			yield(capabilityReply, nil)
			return
		}

		route, err := o.classify(ctx, msg.Text)
		if err != nil {
			yield("", err)
			return
		}
		o.logger.Debug("routing decision",
			"conversation_id", msg.ConversationID,
			"route", route,
		)
		if o.verbose && !yield("_Routing decision: "+string(route)+"_\n\n", nil) {
			return
		}

		switch route {
		case RouteResearch:
			o.delegate(ctx, ResearcherName, msg, yield)
		case RouteEvaluation:
			o.delegate(ctx, EvaluationName, msg, yield)
		case RouteDashboard:
			o.delegate(ctx, DashboardName, msg, yield)
		case RouteMalicious:
			yield(maliciousReply, nil)
		case RouteClarification:
			yield(clarificationReply, nil)
		default:
			forward(provider.TextStream(ctx, o.provider, provider.ChatRequest{
				Model:        o.model,
				SystemPrompt: conversationInstruction,
				Messages:     []provider.Message{provider.UserMessage(msg.Text)},
			}), yield)
		}
	}, nil
}

// classify picks a route. Bare yes/no answers skip the routing model.
func (o *Orchestrator) classify(ctx context.Context, text string) (Route, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "yes", "no":
		return RouteEvaluation, nil
	}

	reply, err := provider.Complete(ctx, o.provider, provider.ChatRequest{
		Model:        o.routingModel,
		SystemPrompt: routingInstruction,
		Messages:     []provider.Message{provider.UserMessage(text)},
		Options:      provider.ChatOptions{MaxTokens: 16},
	})
	if err != nil {
		return "", aegiserr.Wrap(err, aegiserr.CodeAgentLoopFailure, "routing prompt", aegiserr.FieldAgent(OrchestratorName))
	}
	return ParseRoute(reply), nil
}

// delegate hands msg to the named sub-agent and forwards its stream.
func (o *Orchestrator) delegate(ctx context.Context, name string, msg Message, yield func(string, error) bool) {
	sub, ok := o.subAgents[name]
	if !ok {
		yield("", aegiserr.New(aegiserr.CodeAgentDelegateNotFound,
			"could not find sub-agent "+name, aegiserr.FieldAgent(name)))
		return
	}
	o.logger.Debug("delegating", "conversation_id", msg.ConversationID, "to", name)

	out, err := sub.Receive(ctx, msg)
	if err != nil {
		yield("", err)
		return
	}
	forward(out, yield)
}
