// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package audit_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sigil-dev/aegis/internal/audit"
	"github.com/sigil-dev/aegis/internal/store"
	"github.com/sigil-dev/aegis/internal/store/sqlite"
	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/sigil-dev/aegis/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// StoreSink
// ---------------------------------------------------------------------------

func TestStoreSink_PersistsAndRecent(t *testing.T) {
	gs, err := sqlite.NewGatewayStore(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = gs.Close() }()

	sink := audit.NewStoreSink(gs.AuditLog())
	assert.Equal(t, "store", sink.Name())

	first := testEvent("scan-1")
	first.Timestamp = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	second := testEvent("scan-2")
	second.Timestamp = first.Timestamp.Add(time.Second)
	second.Direction = types.DirectionEgress
	second.Action = types.ActionBlock
	second.Category = types.CategoryMalicious
	second.Failure = string(aegiserr.CodeScanClientTimeout)

	require.NoError(t, sink.Deliver(context.Background(), first))
	require.NoError(t, sink.Deliver(context.Background(), second))

	got, err := audit.Recent(context.Background(), gs.AuditLog(), store.AuditFilter{Limit: 10})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "scan-2", got[0].ScanID)
	assert.Equal(t, types.DirectionEgress, got[0].Direction)
	assert.Equal(t, types.ActionBlock, got[0].Action)
	assert.Equal(t, types.CategoryMalicious, got[0].Category)
	assert.Equal(t, string(aegiserr.CodeScanClientTimeout), got[0].Failure)
	assert.Equal(t, "scan-1", got[1].ScanID)
}

// ---------------------------------------------------------------------------
// LogSink
// ---------------------------------------------------------------------------

func TestLogSink_WritesStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	sink := audit.NewLogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	ev := testEvent("scan-log")
	require.NoError(t, sink.Deliver(context.Background(), ev))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "scan event", line["msg"])
	assert.Equal(t, "scan-log", line["scan_id"])
	assert.Equal(t, "ingress", line["direction"])
	assert.Equal(t, "allow", line["action"])
	assert.NotContains(t, line, "text")
}

// ---------------------------------------------------------------------------
// WebhookSink
// ---------------------------------------------------------------------------

func TestNewWebhookSink_RequiresURL(t *testing.T) {
	_, err := audit.NewWebhookSink("", nil, 0)
	assert.True(t, aegiserr.IsInvalidInput(err))
}

func TestWebhookSink_RetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var got audit.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Audit-Token"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	sink, err := audit.NewWebhookSink(srv.URL, map[string]string{"X-Audit-Token": "secret"}, time.Second)
	require.NoError(t, err)
	sink.SetBackoffs(time.Millisecond, time.Millisecond)

	ev := testEvent("scan-hook")
	require.NoError(t, sink.Deliver(context.Background(), ev))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, ev.ID, got.ID)
	assert.Equal(t, "scan-hook", got.ScanID)
}

func TestWebhookSink_GivesUp(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream down"))
	}))
	defer srv.Close()

	sink, err := audit.NewWebhookSink(srv.URL, nil, time.Second)
	require.NoError(t, err)
	sink.SetBackoffs(time.Millisecond, time.Millisecond)

	err = sink.Deliver(context.Background(), testEvent("x"))
	require.Error(t, err)
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeInterceptSinkFailure))
	assert.Contains(t, err.Error(), "status 502")
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookSink_CancelledContext(t *testing.T) {
	sink, err := audit.NewWebhookSink("http://127.0.0.1:1", nil, time.Second)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = sink.Deliver(ctx, testEvent("x"))
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeInterceptSinkFailure))
}
