// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/sigil-dev/aegis/internal/config"
	"github.com/sigil-dev/aegis/internal/provider"
	"github.com/sigil-dev/aegis/internal/secrets"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir so config discovery and bootstrap never
// touch the real one, and silences the process log.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, env := range []string{"AIRS_API_KEY", "AIRS_API_PROFILE_NAME", "SECURITY_FAIL_OPEN", "GOOGLE_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"} {
		t.Setenv(env, "")
		require.NoError(t, os.Unsetenv(env))
	}

	oldLog := logOutput
	logOutput = io.Discard
	t.Cleanup(func() { logOutput = oldLog })
	return home
}

// localConfig writes a config using the local scanner and returns its path.
func localConfig(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "aegis.yaml")
	body := "data_dir: " + filepath.Join(dir, "data") + "\n" +
		"networking:\n  listen: 127.0.0.1:18080\n" +
		"scanner:\n  backend: local\n" + extra
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	out := new(bytes.Buffer)
	root.SetOut(out)
	root.SetErr(out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

// memSecrets is an in-memory secrets.Store.
type memSecrets struct {
	mu   sync.Mutex
	data map[string]string
}

var _ secrets.Store = (*memSecrets)(nil)

func useMemSecrets(t *testing.T, kv ...string) *memSecrets {
	t.Helper()
	m := &memSecrets{data: map[string]string{}}
	for i := 0; i+1 < len(kv); i += 2 {
		m.data[secrets.DefaultService+"/"+kv[i]] = kv[i+1]
	}
	old := secretStoreFactory
	secretStoreFactory = func() secrets.Store { return m }
	t.Cleanup(func() { secretStoreFactory = old })
	return m
}

func (m *memSecrets) Set(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[service+"/"+key] = value
	return nil
}

func (m *memSecrets) Get(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[service+"/"+key]
	if !ok {
		return "", aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	return v, nil
}

func (m *memSecrets) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[service+"/"+key]; !ok {
		return aegiserr.Errorf(aegiserr.CodeSecretNotFound, "secret %s/%s not found", service, key)
	}
	delete(m.data, service+"/"+key)
	return nil
}

func (m *memSecrets) List(service string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.data {
		if name, ok := strings.CutPrefix(k, service+"/"); ok {
			keys = append(keys, name)
		}
	}
	slices.Sort(keys)
	return keys, nil
}

// fakeLLM answers routing prompts (model "router") with route and every
// other request with chunks. It reports itself as google unless name is set.
type fakeLLM struct {
	name   string
	route  string
	chunks []string

	mu    sync.Mutex
	calls int
}

func (f *fakeLLM) Available(_ context.Context) bool { return true }
func (f *fakeLLM) Close() error                     { return nil }

func (f *fakeLLM) Name() string {
	if f.name != "" {
		return f.name
	}
	return string(provider.NameGoogle)
}

func (f *fakeLLM) Status(_ context.Context) (provider.Status, error) {
	return provider.Status{Provider: f.Name(), Available: true, Message: "fake"}, nil
}

func (f *fakeLLM) Chat(ctx context.Context, req provider.ChatRequest) (<-chan provider.ChatEvent, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	chunks := f.chunks
	if req.Model == "router" {
		chunks = []string{f.route}
	}
	ch := make(chan provider.ChatEvent, len(chunks)+1)
	go func() {
		defer close(ch)
		for _, c := range chunks {
			if !provider.Send(ctx, ch, provider.ChatEvent{Type: provider.EventTypeTextDelta, Text: c}) {
				return
			}
		}
		provider.Send(ctx, ch, provider.ChatEvent{Type: provider.EventTypeDone})
	}()
	return ch, nil
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// useFakeLLM routes the google provider factory to llm.
func useFakeLLM(t *testing.T, llm *fakeLLM) {
	t.Helper()
	old := builtinProviderFactories[provider.NameGoogle]
	builtinProviderFactories[provider.NameGoogle] = func(_ config.ProviderConfig) (provider.Provider, error) {
		return llm, nil
	}
	t.Cleanup(func() { builtinProviderFactories[provider.NameGoogle] = old })
}
