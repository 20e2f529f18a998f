// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package scanner

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/health"
	"github.com/sigil-dev/aegis/pkg/types"
)

const (
	// DefaultEndpoint is the public AI Runtime Security scan API.
	DefaultEndpoint = "https://service.api.aisecurity.paloaltonetworks.com"
	// DefaultTimeout bounds one Scan call, retries included.
	DefaultTimeout = 5 * time.Second
	// DefaultMaxRetries is the number of retries after the first attempt.
	DefaultMaxRetries = 2
	// DefaultBackoffBase is the delay before the first retry; each further
	// retry doubles it.
	DefaultBackoffBase = 200 * time.Millisecond

	scanPath = "/v1/scan/sync/request"
	// maxResponseBytes caps how much of a verdict body is read.
	maxResponseBytes = 1 << 20
)

// HTTPConfig configures the remote scanning client.
type HTTPConfig struct {
	Endpoint string
	APIKey   string
	Profile  string

	AppName string
	AppUser string
	AIModel string

	Timeout     time.Duration
	MaxRetries  int
	BackoffBase time.Duration

	// CABundle is a PEM file appended to the system trust store.
	CABundle           string
	InsecureSkipVerify bool
	UserAgent          string
}

// HTTPOption configures an HTTPClient.
type HTTPOption func(*HTTPClient)

// WithHTTPDoer replaces the underlying *http.Client. Used to point the client
// at test servers.
func WithHTTPDoer(hc *http.Client) HTTPOption {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// HTTPClient implements Client against the AI Runtime Security sync scan API.
// It holds no per-call state and is safe for concurrent use.
type HTTPClient struct {
	cfg     HTTPConfig
	url     string
	http    *http.Client
	sleep   func(ctx context.Context, d time.Duration) error
	tracker *health.Tracker
}

var (
	_ Client          = (*HTTPClient)(nil)
	_ health.Reporter = (*HTTPClient)(nil)
)

// NewHTTPClient validates cfg, applies defaults, and builds the TLS transport.
func NewHTTPClient(cfg HTTPConfig, opts ...HTTPOption) (*HTTPClient, error) {
	if cfg.APIKey == "" {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "scanner: missing api_key")
	}
	if cfg.Profile == "" {
		return nil, aegiserr.New(aegiserr.CodeConfigValidateInvalidValue, "scanner: missing profile")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultBackoffBase
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "aegis"
	}
	if cfg.AppName == "" {
		cfg.AppName = "aegis"
	}

	transport, err := buildTransport(cfg)
	if err != nil {
		return nil, err
	}

	c := &HTTPClient{
		cfg:     cfg,
		url:     strings.TrimRight(cfg.Endpoint, "/") + scanPath,
		http:    &http.Client{Transport: transport},
		sleep:   sleepContext,
		tracker: health.NewDefaultTracker(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func buildTransport(cfg HTTPConfig) (*http.Transport, error) {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, aegiserr.New(aegiserr.CodeScanTLSSetupFailure, "default transport is not *http.Transport")
	}
	t := base.Clone()
	t.MaxIdleConnsPerHost = 10

	if cfg.CABundle == "" && !cfg.InsecureSkipVerify {
		return t, nil
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if cfg.CABundle != "" {
		pem, err := os.ReadFile(cfg.CABundle)
		if err != nil {
			return nil, aegiserr.Errorf(aegiserr.CodeScanTLSSetupFailure, "reading CA bundle %s: %w", cfg.CABundle, err)
		}
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		if !pool.AppendCertsFromPEM(pem) {
			return nil, aegiserr.Errorf(aegiserr.CodeScanTLSSetupFailure, "CA bundle %s contains no certificates", cfg.CABundle)
		}
		tlsCfg.RootCAs = pool
		slog.Info("scanner using corporate CA bundle", "path", cfg.CABundle)
	}
	if cfg.InsecureSkipVerify {
		slog.Warn("scanner TLS verification disabled")
		tlsCfg.InsecureSkipVerify = true //nolint:gosec // operator opt-in for intercepting proxies
	}
	t.TLSClientConfig = tlsCfg
	return t, nil
}

// scanRequest is the wire body of a sync scan call.
type scanRequest struct {
	TrID      string              `json:"tr_id"`
	AIProfile scanProfile         `json:"ai_profile"`
	Metadata  scanMetadata        `json:"metadata"`
	Contents  []map[string]string `json:"contents"`
}

type scanProfile struct {
	ProfileName string `json:"profile_name"`
}

type scanMetadata struct {
	AppName string `json:"app_name"`
	AppUser string `json:"app_user,omitempty"`
	AIModel string `json:"ai_model,omitempty"`
}

// scanResponse is the subset of the sync scan response this client reads.
// Unknown fields are ignored.
type scanResponse struct {
	ScanID           string          `json:"scan_id"`
	ReportID         string          `json:"report_id"`
	TrID             string          `json:"tr_id"`
	ProfileName      string          `json:"profile_name"`
	Category         string          `json:"category"`
	Action           string          `json:"action"`
	Reason           string          `json:"reason"`
	PromptDetected   map[string]bool `json:"prompt_detected"`
	ResponseDetected map[string]bool `json:"response_detected"`
	Findings         []wireFinding   `json:"findings"`
}

type wireFinding struct {
	Type        string `json:"type"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Replacement string `json:"replacement"`
}

// statusError is a non-2xx response from the scan service.
type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("scan service returned status %d", e.code)
}

// Scan submits req and returns the service verdict. Transient network
// failures are retried with exponential backoff; a decoded verdict is never
// retried. The whole call, retries included, is bounded by the configured
// timeout.
func (c *HTTPClient) Scan(ctx context.Context, req Request) (Verdict, error) {
	if err := req.Validate(); err != nil {
		return Verdict{}, err
	}

	body, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return Verdict{}, aegiserr.Errorf(aegiserr.CodeScanRequestInvalid, "encoding scan request: %w", err)
	}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.cfg.BackoffBase << (attempt - 1)
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}

		verdict, err := c.post(ctx, body, req.Direction)
		if err == nil {
			slog.Debug("scan completed",
				"scan_id", verdict.ScanID,
				"category", verdict.Category,
				"attempts", attempt+1,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			c.tracker.RecordSuccess()
			return verdict, nil
		}

		lastErr = err
		if !isTransient(err) {
			break
		}
		slog.Debug("scan attempt failed, retrying",
			"attempt", attempt+1,
			"direction", req.Direction,
			"error", err,
		)
	}

	// A caller that gave up says nothing about the service.
	if parent.Err() == nil {
		c.tracker.RecordFailure()
	}
	return Verdict{}, classifyFailure(ctx, lastErr)
}

// Health reports whether the scan service answered the most recent call.
// Failures are counted after retries are exhausted.
func (c *HTTPClient) Health() *health.Metrics {
	return c.tracker.Metrics()
}

func (c *HTTPClient) buildRequest(req Request) scanRequest {
	return scanRequest{
		TrID:      "aegis-" + uuid.NewString(),
		AIProfile: scanProfile{ProfileName: c.cfg.Profile},
		Metadata: scanMetadata{
			AppName: c.cfg.AppName,
			AppUser: c.cfg.AppUser,
			AIModel: c.cfg.AIModel,
		},
		Contents: []map[string]string{{req.Direction.ContentKind(): req.Text}},
	}
}

func (c *HTTPClient) post(ctx context.Context, body []byte, dir types.Direction) (Verdict, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Verdict{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-pan-token", c.cfg.APIKey)
	httpReq.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Verdict{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return Verdict{}, &statusError{code: resp.StatusCode}
	}

	var sr scanResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&sr); err != nil {
		return Verdict{}, fmt.Errorf("decoding scan response: %w", err)
	}
	return sr.verdict(dir), nil
}

// verdict maps the service response onto the local category model.
func (sr scanResponse) verdict(dir types.Direction) Verdict {
	detected := sr.PromptDetected
	if dir == types.DirectionEgress {
		detected = sr.ResponseDetected
	}

	category := mapCategory(sr.Category)
	if category != types.CategoryMalicious && (detected["dlp"] || detected["pii"]) {
		category = types.CategorySensitiveData
	}
	if strings.EqualFold(sr.Action, "block") &&
		category != types.CategoryMalicious && category != types.CategorySensitiveData {
		category = types.CategoryMalicious
	}

	reason := sr.Reason
	if reason == "" {
		reason = detectedReason(detected)
	}

	findings := make([]Finding, 0, len(sr.Findings))
	for _, f := range sr.Findings {
		findings = append(findings, Finding{
			Type:        f.Type,
			Span:        Span{Start: f.Start, End: f.End},
			Replacement: f.Replacement,
		})
	}
	slices.SortStableFunc(findings, func(a, b Finding) int { return a.Span.Start - b.Span.Start })

	return Verdict{
		ScanID:     sr.ScanID,
		Category:   category,
		ReasonCode: reason,
		Findings:   findings,
	}
}

func mapCategory(raw string) types.Category {
	switch strings.ToLower(raw) {
	case "benign":
		return types.CategoryBenign
	case "malicious":
		return types.CategoryMalicious
	case "sensitive_data", "sensitive", "dlp":
		return types.CategorySensitiveData
	default:
		return types.CategoryUnknown
	}
}

// detectedReason joins the names of triggered detectors in sorted order.
func detectedReason(detected map[string]bool) string {
	var hits []string
	for name, hit := range detected {
		if hit {
			hits = append(hits, name)
		}
	}
	if len(hits) == 0 {
		return "none"
	}
	slices.Sort(hits)
	return strings.Join(hits, ",")
}

// isTransient reports whether a failed attempt may succeed on retry.
func isTransient(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var se *statusError
	if errors.As(err, &se) {
		switch se.code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsNotFound || dnsErr.IsTimeout
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// classifyFailure converts the last attempt error into a timeout or
// unavailable error.
func classifyFailure(ctx context.Context, err error) error {
	if err == nil {
		err = ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return aegiserr.Wrap(err, aegiserr.CodeScanClientTimeout, "scan deadline exceeded")
	}

	fields := []aegiserr.Attr{}
	var se *statusError
	if errors.As(err, &se) {
		fields = append(fields, aegiserr.Field("status", se.code))
	}
	return aegiserr.Wrap(err, aegiserr.CodeScanClientUnavailable, "scan service unavailable", fields...)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
