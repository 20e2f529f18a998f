// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// defaultHTTPClient is used for request/response calls to the gateway.
// Overridden in tests via httptest.
var defaultHTTPClient = &http.Client{
	Timeout: 5 * time.Second,
}

// streamHTTPClient carries chat streams, which last as long as the turn.
// Cancellation comes from the command context.
var streamHTTPClient = &http.Client{}

// gatewayClient provides HTTP access to a running aegis gateway.
type gatewayClient struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// newGatewayClient creates a client targeting the given host:port address.
func newGatewayClient(addr string) *gatewayClient {
	return &gatewayClient{
		baseURL: "http://" + addr,
		http:    defaultHTTPClient,
		stream:  streamHTTPClient,
	}
}

// addAddressFlag registers --address on cmd. An empty address falls back to the
// configured listen address.
func addAddressFlag(cmd *cobra.Command) {
	cmd.Flags().String("address", "", "gateway address (defaults to networking.listen)")
}

func gatewayAddr(cmd *cobra.Command, v *viper.Viper) string {
	if addr, _ := cmd.Flags().GetString("address"); addr != "" {
		return addr
	}
	return v.GetString("networking.listen")
}

// getJSON performs a GET request and decodes the JSON response into dest.
func (c *gatewayClient) getJSON(ctx context.Context, path string, query url.Values, dest any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "building request: %w", err)
	}
	return c.do(c.http, req, dest)
}

// postJSON sends body as JSON and decodes the JSON response into dest.
func (c *gatewayClient) postJSON(ctx context.Context, path string, body, dest any) error {
	req, err := c.newPost(ctx, path, body)
	if err != nil {
		return err
	}
	return c.do(c.http, req, dest)
}

func (c *gatewayClient) newPost(ctx context.Context, path string, body any) (*http.Request, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return nil, aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func (c *gatewayClient) do(hc *http.Client, req *http.Request, dest any) error {
	resp, err := c.send(hc, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "invalid response: %w", err)
	}
	return nil
}

// send issues req and checks the status. The caller closes the body.
func (c *gatewayClient) send(hc *http.Client, req *http.Request) (*http.Response, error) {
	resp, err := hc.Do(req)
	if err != nil {
		if isDialError(err) {
			return nil, aegiserr.Errorf(aegiserr.CodeCLIGatewayNotRunning, "gateway at %s is not running (connection refused)", req.URL.Host)
		}
		return nil, aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer func() { _ = resp.Body.Close() }()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, aegiserr.Errorf(aegiserr.CodeCLIRequestFailure, "gateway returned status %d: %s",
			resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return resp, nil
}

// sseEvent is one decoded server-sent event.
type sseEvent struct {
	Event string
	Data  json.RawMessage
}

// streamChat posts a message to the SSE endpoint and calls onEvent for each
// event in arrival order. Returning an error from onEvent stops reading.
func (c *gatewayClient) streamChat(ctx context.Context, body any, onEvent func(sseEvent) error) error {
	req, err := c.newPost(ctx, "/api/v1/chat/stream", body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.send(c.stream, req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var cur sseEvent
	for sc.Scan() {
		line := sc.Text()
		switch {
		case strings.HasPrefix(line, "event:"):
			cur.Event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			cur.Data = json.RawMessage(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		case line == "":
			if cur.Event == "" {
				continue
			}
			if err := onEvent(cur); err != nil {
				return err
			}
			cur = sseEvent{}
		}
	}
	if err := sc.Err(); err != nil {
		return aegiserr.Errorf(aegiserr.CodeCLIResponseInvalid, "reading event stream: %w", err)
	}
	return nil
}

// isDialError returns true if err is a net dial error (connection refused, etc.).
func isDialError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial"
	}
	return false
}
