// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package google_test

import (
	"context"
	"testing"

	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/provider/google"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGoogleProvider_MissingAPIKey(t *testing.T) {
	_, err := google.New(google.Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api_key")
	assert.True(t, aegiserr.IsInvalidInput(err), "missing API key should be CodeProviderRequestInvalid")
}

func TestGoogleProvider_Status(t *testing.T) {
	p := mustNewProvider(t)

	status, err := p.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "google", status.Provider)
	assert.True(t, status.Available)
	assert.True(t, p.Available(context.Background()))
	assert.NoError(t, p.Close())
}

func TestBuildConfig(t *testing.T) {
	temp := float32(0.5)
	cfg := google.BuildConfig(provider.ChatRequest{
		SystemPrompt: "You are a routing agent.",
		Options:      provider.ChatOptions{Temperature: &temp, MaxTokens: 8, StopSequences: []string{"\n"}, WebSearch: true},
	})

	require.NotNil(t, cfg.SystemInstruction)
	assert.Equal(t, "You are a routing agent.", cfg.SystemInstruction.Parts[0].Text)
	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.5, *cfg.Temperature, 0.0001)
	assert.Equal(t, int32(8), cfg.MaxOutputTokens)
	assert.Equal(t, []string{"\n"}, cfg.StopSequences)
	require.Len(t, cfg.Tools, 1)
	assert.NotNil(t, cfg.Tools[0].GoogleSearch)
}

func TestConvertMessages(t *testing.T) {
	contents, err := google.ConvertMessages([]provider.Message{
		{Role: provider.MessageRoleSystem, Content: "skipped"},
		provider.UserMessage("question"),
		{Role: provider.MessageRoleAssistant, Content: "answer"},
	})
	require.NoError(t, err)
	require.Len(t, contents, 2)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "question", contents[0].Parts[0].Text)
	assert.Equal(t, "model", contents[1].Role)

	_, err = google.ConvertMessages([]provider.Message{{Role: "tool"}})
	assert.True(t, aegiserr.IsInvalidInput(err))
}

func mustNewProvider(t *testing.T) *google.Provider {
	t.Helper()
	p, err := google.New(google.Config{APIKey: "test-key-not-real"})
	require.NoError(t, err)
	return p
}
