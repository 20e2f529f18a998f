// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

import (
	"context"

	"github.com/sigil-dev/aegis/internal/provider"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

const researchInstruction = "You are a specialized research agent. Answer the user's question using web search. " +
	"Summarize the top 3-5 key points in markdown with headings, bullet points and bold text. " +
	"Cite sources by including the URL at the end of relevant sentences. " +
	"Do not answer from memory alone. If search returns nothing useful, say that you were unable to find information on the topic."

// Researcher answers research questions with a search-grounded model.
type Researcher struct {
	provider provider.Provider
	model    string
}

var _ Agent = (*Researcher)(nil)

// NewResearcher creates a Researcher. An empty model uses the provider default.
func NewResearcher(p provider.Provider, model string) (*Researcher, error) {
	if p == nil {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "researcher: provider is required")
	}
	return &Researcher{provider: p, model: model}, nil
}

func (r *Researcher) Name() string { return ResearcherName }

// Receive streams the model's answer as it is generated.
func (r *Researcher) Receive(ctx context.Context, msg Message) (Stream, error) {
	return provider.TextStream(ctx, r.provider, provider.ChatRequest{
		Model:        r.model,
		SystemPrompt: researchInstruction,
		Messages:     []provider.Message{provider.UserMessage(msg.Text)},
		Options:      provider.ChatOptions{WebSearch: true},
	}), nil
}
