// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package provider

import (
	"context"
	"io"
	"net/http"
	"net/url"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
)

// Name identifies a supported LLM provider.
type Name string

const (
	NameAnthropic Name = "anthropic"
	NameOpenAI    Name = "openai"
	NameGoogle    Name = "google"
)

// Valid reports whether n is a supported provider.
func (n Name) Valid() bool {
	switch n {
	case NameAnthropic, NameOpenAI, NameGoogle:
		return true
	}
	return false
}

// modelsURL is each provider's model listing endpoint.
var modelsURL = map[Name]string{
	NameAnthropic: "https://api.anthropic.com/v1/models",
	NameOpenAI:    "https://api.openai.com/v1/models",
	NameGoogle:    "https://generativelanguage.googleapis.com/v1/models",
}

// ValidateKey makes a lightweight call to the provider's models endpoint to
// confirm the API key is accepted.
func ValidateKey(ctx context.Context, client *http.Client, name Name, key string) error {
	return ValidateKeyAt(ctx, client, name, key, "")
}

// ValidateKeyAt is ValidateKey against an explicit endpoint. An empty
// endpoint uses the provider default.
func ValidateKeyAt(ctx context.Context, client *http.Client, name Name, key, endpoint string) error {
	if !name.Valid() {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyInvalid, "unknown provider: %s", name)
	}
	if endpoint == "" {
		endpoint = modelsURL[name]
	}

	headers := map[string]string{}
	switch name {
	case NameAnthropic:
		headers["x-api-key"] = key
		headers["anthropic-version"] = "2023-06-01"
	case NameOpenAI:
		headers["Authorization"] = "Bearer " + key
	case NameGoogle:
		// The Generative Language API only accepts the key as a query parameter.
		u, err := url.Parse(endpoint)
		if err != nil {
			return aegiserr.Errorf(aegiserr.CodeProviderKeyCheckFailed, "parsing %s endpoint: %w", name, err)
		}
		q := u.Query()
		q.Set("key", key)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyCheckFailed, "building validation request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		// The URL may carry the Google key; report the provider only.
		return aegiserr.Errorf(aegiserr.CodeProviderKeyCheckFailed, "validating %s key: request failed", name)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyInvalid, "invalid %s API key (HTTP %d)", name, resp.StatusCode)
	}
	if resp.StatusCode >= 400 {
		return aegiserr.Errorf(aegiserr.CodeProviderKeyCheckFailed, "%s validation failed (HTTP %d)", name, resp.StatusCode)
	}
	return nil
}
