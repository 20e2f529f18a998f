// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"os"
	"testing"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigShow_MasksCredentials(t *testing.T) {
	isolate(t)
	useMemSecrets(t, "openai", "sk-proj-from-keyring")
	path := localConfig(t, "agents:\n  providers:\n"+
		"    google:\n      api_key: AIza-plain-text\n"+
		"    openai:\n      api_key: keyring://aegis/openai\n")

	out, err := execute(t, "", "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "# loaded from "+path)
	assert.Contains(t, out, "backend: local")
	assert.Contains(t, out, "listen: 127.0.0.1:18080")
	assert.NotContains(t, out, "AIza-plain-text")
	assert.NotContains(t, out, "sk-proj-from-keyring")
	assert.Contains(t, out, "[REDACTED]")
}

func TestConfigShow_MissingKeyringEntry(t *testing.T) {
	isolate(t)
	useMemSecrets(t)
	path := localConfig(t, "agents:\n  providers:\n    google:\n      api_key: keyring://aegis/google\n")

	_, err := execute(t, "", "config", "show", "--config", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "agents.providers.google.api_key")
}

func TestConfigValidate(t *testing.T) {
	isolate(t)

	out, err := execute(t, "", "config", "validate", "--config", localConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, "Configuration is valid.\n", out)
}

func TestConfigValidate_ReportsEveryProblem(t *testing.T) {
	isolate(t)
	path := localConfig(t, "audit:\n  queue_size: 0\nagents:\n  provider: cohere\n")
	require.NoError(t, os.Chmod(path, 0o644))

	out, err := execute(t, "", "config", "validate", "--config", path)
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeConfigValidateInvalidValue))
	assert.Contains(t, out, "audit.queue_size")
	assert.Contains(t, out, "agents.provider")
	assert.Contains(t, out, "readable by other users")
}
