// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/sigil-dev/aegis/internal/agent"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingle(t *testing.T) {
	chunks, err := drain(t, agent.Single("only"))
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, chunks)
}

func TestResearcher_StreamsSearchGroundedAnswer(t *testing.T) {
	p := &scriptedProvider{reply: func(provider.ChatRequest) []string {
		return []string{"## Findings\n", "- point"}
	}}
	r, err := agent.NewResearcher(p, "search-model")
	require.NoError(t, err)
	assert.Equal(t, agent.ResearcherName, r.Name())

	chunks, err := ask(t, r, "what changed in go 1.25")
	require.NoError(t, err)
	assert.Equal(t, []string{"## Findings\n", "- point"}, chunks)

	calls := p.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "search-model", calls[0].Model)
	assert.True(t, calls[0].Options.WebSearch)
	assert.Contains(t, calls[0].SystemPrompt, "web search")
	assert.Equal(t, "what changed in go 1.25", calls[0].Messages[0].Content)
}

func TestNewResearcher_RequiresProvider(t *testing.T) {
	_, err := agent.NewResearcher(nil, "")
	require.Error(t, err)
}

func TestEvaluation_RecordsFeedback(t *testing.T) {
	gw := newGateway(t)
	e, err := agent.NewEvaluation(gw.Feedback())
	require.NoError(t, err)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	agent.SetNow(e, func() time.Time { return now })

	chunks, err := ask(t, e, "Yes")
	require.NoError(t, err)
	assert.Equal(t, []string{"Thank you for your feedback!"}, chunks)

	chunks, err = ask(t, e, "no")
	require.NoError(t, err)
	assert.Equal(t, []string{"Thank you for your feedback!"}, chunks)

	list, err := gw.Feedback().List(context.Background(), store.ListOpts{})
	require.NoError(t, err)
	require.Len(t, list, 2)

	ratings := []store.FeedbackRating{list[0].Rating, list[1].Rating}
	assert.ElementsMatch(t, []store.FeedbackRating{store.FeedbackPositive, store.FeedbackNegative}, ratings)
	for _, fb := range list {
		assert.Equal(t, "conv", fb.ConversationID)
		assert.NotEmpty(t, fb.ID)
		assert.True(t, fb.CreatedAt.Equal(now))
	}
}

func TestEvaluation_UnclearAnswer(t *testing.T) {
	gw := newGateway(t)
	e, err := agent.NewEvaluation(gw.Feedback())
	require.NoError(t, err)

	chunks, err := ask(t, e, "maybe")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Contains(t, chunks[0], "respond with 'yes' or 'no'")

	list, err := gw.Feedback().List(context.Background(), store.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestEvaluation_StoreError(t *testing.T) {
	gw := newGateway(t)
	e, err := agent.NewEvaluation(gw.Feedback())
	require.NoError(t, err)
	require.NoError(t, gw.Close())

	_, err = ask(t, e, "yes")
	require.Error(t, err)
}

func appendEvents(t *testing.T, log store.AuditStore, n int) {
	t.Helper()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range n {
		require.NoError(t, log.Append(context.Background(), &store.ScanEvent{
			ID:        fmt.Sprintf("ev-%03d", i),
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			Agent:     agent.ResearcherName,
			Direction: "egress",
			ScanID:    fmt.Sprintf("scan-%03d", i),
			Category:  "benign",
			Action:    "allow",
		}))
	}
}

func TestDashboard_NoEvents(t *testing.T) {
	d, err := agent.NewDashboard(newGateway(t).AuditLog(), 0)
	require.NoError(t, err)

	chunks, err := ask(t, d, "show dashboard")
	require.NoError(t, err)
	assert.Equal(t, []string{"No security events to display."}, chunks)
}

func TestDashboard_RendersNewestFirst(t *testing.T) {
	gw := newGateway(t)
	appendEvents(t, gw.AuditLog(), 3)
	require.NoError(t, gw.AuditLog().Append(context.Background(), &store.ScanEvent{
		ID:        "ev-fail",
		Timestamp: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC),
		Direction: "ingress",
		Category:  "unknown",
		Action:    "block",
		Failure:   "scan.client.timeout",
	}))

	d, err := agent.NewDashboard(gw.AuditLog(), 10)
	require.NoError(t, err)
	chunks, err := ask(t, d, "show dashboard")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	out := chunks[0]

	assert.True(t, strings.HasPrefix(out, "### Security Events\n\n"))
	assert.Equal(t, 4, strings.Count(out, "---\n"))
	assert.Contains(t, out, "- **Timestamp:** 2026-02-01 00:00:00\n- **Agent:** N/A\n")
	assert.Contains(t, out, "- **Failure:** scan.client.timeout\n")
	assert.Contains(t, out, "- **Scan ID:** N/A\n")

	first := strings.Index(out, "scan-002")
	last := strings.Index(out, "scan-000")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, last)
	assert.Less(t, strings.Index(out, "scan.client.timeout"), first)
	assert.Less(t, first, last)
}

func TestDashboard_DefaultHistorySize(t *testing.T) {
	gw := newGateway(t)
	appendEvents(t, gw.AuditLog(), agent.DefaultHistorySize+5)

	d, err := agent.NewDashboard(gw.AuditLog(), -1)
	require.NoError(t, err)
	chunks, err := ask(t, d, "dashboard")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, agent.DefaultHistorySize, strings.Count(chunks[0], "---\n"))
	assert.Contains(t, chunks[0], fmt.Sprintf("scan-%03d", agent.DefaultHistorySize+4))
	assert.NotContains(t, chunks[0], "scan-004\n")
}

func TestNewDashboard_RequiresStore(t *testing.T) {
	_, err := agent.NewDashboard(nil, 0)
	require.Error(t, err)
}
