// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := aegiserr.New(
		aegiserr.CodeConfigValidateInvalidValue,
		"missing scanner profile",
		aegiserr.FieldConversationID("conv-123"),
		aegiserr.Field("provider", "google"),
	)

	require.Error(t, err)
	assert.Equal(t, aegiserr.CodeConfigValidateInvalidValue, aegiserr.CodeOf(err))
	assert.True(t, aegiserr.HasCode(err, aegiserr.CodeConfigValidateInvalidValue))

	fields := aegiserr.FieldsOf(err)
	assert.Equal(t, "conv-123", fields["conversation_id"])
	assert.Equal(t, "google", fields["provider"])
}

func TestNewWithNoFields(t *testing.T) {
	err := aegiserr.New(aegiserr.CodeStoreDatabaseFailure, "connection lost")
	require.Error(t, err)
	assert.Equal(t, aegiserr.CodeStoreDatabaseFailure, aegiserr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := aegiserr.Errorf(aegiserr.CodeScanClientUnavailable, "posting to %s: attempt %d", "scan", 3)
	require.Error(t, err)
	assert.Equal(t, aegiserr.CodeScanClientUnavailable, aegiserr.CodeOf(err))
	assert.Contains(t, err.Error(), "posting to scan: attempt 3")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := aegiserr.Errorf(aegiserr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, aegiserr.CodeStoreDatabaseFailure, aegiserr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf / With
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("connection refused")
	err := aegiserr.Wrap(
		root,
		aegiserr.CodeScanClientUnavailable,
		"scanning prompt",
		aegiserr.FieldScanID("scan-42"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.True(t, aegiserr.IsScanUnavailable(err))
	assert.Equal(t, "scan-42", aegiserr.FieldsOf(err)["scan_id"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, aegiserr.Wrap(nil, aegiserr.CodeStoreDatabaseFailure, "x"))
}

func TestWrapfNilReturnsNil(t *testing.T) {
	assert.NoError(t, aegiserr.Wrapf(nil, aegiserr.CodeStoreDatabaseFailure, "x %d", 1))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("EOF")
	err := aegiserr.Wrapf(root, aegiserr.CodeScanResponseInvalid, "decoding verdict from %s", "airs")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "decoding verdict from airs")
}

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := aegiserr.New(aegiserr.CodeScanRedactConflict, "overlapping findings")
	withCtx := aegiserr.With(base, aegiserr.FieldAgent("researcher"))

	require.Error(t, withCtx)
	assert.Equal(t, aegiserr.CodeScanRedactConflict, aegiserr.CodeOf(withCtx))
	assert.Equal(t, "researcher", aegiserr.FieldsOf(withCtx)["agent"])
}

func TestWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, aegiserr.With(nil, aegiserr.FieldAgent("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	enriched := aegiserr.With(stderrors.New("something broke"), aegiserr.FieldProvider("openai"))

	require.Error(t, enriched)
	assert.Equal(t, aegiserr.CodeServerInternalFailure, aegiserr.CodeOf(enriched))
	assert.Equal(t, "openai", aegiserr.FieldsOf(enriched)["provider"])
}

// ---------------------------------------------------------------------------
// HasCode / CodeOf / FieldsOf
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code aegiserr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  aegiserr.New(aegiserr.CodeServerEntityNotFound, "gone"),
			code: aegiserr.CodeServerEntityNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  aegiserr.New(aegiserr.CodeServerEntityNotFound, "gone"),
			code: aegiserr.CodeStoreDatabaseFailure,
			want: false,
		},
		{
			name: "nil error",
			code: aegiserr.CodeServerEntityNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: aegiserr.CodeServerInternalFailure,
			want: false,
		},
		{
			name: "wrapped coded error returns innermost code",
			err: aegiserr.Wrap(
				aegiserr.New(aegiserr.CodeScanClientTimeout, "inner"),
				aegiserr.CodeServerInternalFailure, "outer",
			),
			code: aegiserr.CodeScanClientTimeout,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, aegiserr.HasCode(tt.err, tt.code))
		})
	}
}

func TestCodeOfNilAndPlain(t *testing.T) {
	assert.Equal(t, aegiserr.Code(""), aegiserr.CodeOf(nil))
	assert.Equal(t, aegiserr.Code(""), aegiserr.CodeOf(stderrors.New("plain")))
}

func TestFieldsOfNilAndPlain(t *testing.T) {
	assert.Nil(t, aegiserr.FieldsOf(nil))
	assert.Nil(t, aegiserr.FieldsOf(stderrors.New("plain")))
}

func TestTypedFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr aegiserr.Attr
		key  string
		val  string
	}{
		{"conversation_id", aegiserr.FieldConversationID("c-1"), "conversation_id", "c-1"},
		{"scan_id", aegiserr.FieldScanID("s-1"), "scan_id", "s-1"},
		{"agent", aegiserr.FieldAgent("dashboard"), "agent", "dashboard"},
		{"provider", aegiserr.FieldProvider("anthropic"), "provider", "anthropic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.val, tt.attr.Value)
		})
	}
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := aegiserr.New(aegiserr.CodeStoreDatabaseFailure, "oops",
		aegiserr.Field("", "should-be-dropped"),
		aegiserr.FieldAgent("kept"),
	)
	fields := aegiserr.FieldsOf(err)
	assert.Equal(t, "kept", fields["agent"])
	assert.NotContains(t, fields, "")
}

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := aegiserr.Wrap(mid, aegiserr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   aegiserr.Code
		status int
		check  func(error) bool
	}{
		{name: "entity not found", code: aegiserr.CodeServerEntityNotFound, status: 404, check: aegiserr.IsNotFound},
		{name: "delegate not found", code: aegiserr.CodeAgentDelegateNotFound, status: 404, check: aegiserr.IsNotFound},
		{name: "secret not found", code: aegiserr.CodeSecretNotFound, status: 404, check: aegiserr.IsNotFound},
		{name: "invalid value", code: aegiserr.CodeConfigValidateInvalidValue, status: 400, check: aegiserr.IsInvalidInput},
		{name: "invalid format", code: aegiserr.CodeConfigParseInvalidFormat, status: 400, check: aegiserr.IsInvalidInput},
		{name: "scan request invalid", code: aegiserr.CodeScanRequestInvalid, status: 400, check: aegiserr.IsInvalidInput},
		{name: "receive invalid", code: aegiserr.CodeAgentReceiveInvalidInput, status: 400, check: aegiserr.IsInvalidInput},
		{name: "queue full", code: aegiserr.CodeInterceptQueueFull, status: 429, check: aegiserr.IsExceeded},
		{name: "scan timeout", code: aegiserr.CodeScanClientTimeout, status: 504, check: aegiserr.IsTimeout},
		{name: "scan unavailable", code: aegiserr.CodeScanClientUnavailable, status: 503, check: aegiserr.IsScanUnavailable},
		{name: "scan upstream failure", code: aegiserr.CodeScanUpstreamFailure, status: 502, check: aegiserr.IsUpstreamFailure},
		{name: "provider upstream failure", code: aegiserr.CodeProviderUpstreamFailure, status: 502, check: aegiserr.IsUpstreamFailure},
		{name: "redaction conflict", code: aegiserr.CodeScanRedactConflict, status: 409, check: aegiserr.IsRedactionConflict},
		{name: "internal", code: aegiserr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !aegiserr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := aegiserr.New(tt.code, "boom")
			assert.Equal(t, tt.status, aegiserr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	for _, err := range []error{nil, stderrors.New("plain"), aegiserr.New(aegiserr.CodeStoreDatabaseFailure, "db")} {
		assert.False(t, aegiserr.IsNotFound(err))
		assert.False(t, aegiserr.IsConflict(err))
		assert.False(t, aegiserr.IsInvalidInput(err))
		assert.False(t, aegiserr.IsExceeded(err))
		assert.False(t, aegiserr.IsTimeout(err))
		assert.False(t, aegiserr.IsScanUnavailable(err))
		assert.False(t, aegiserr.IsRedactionConflict(err))
		assert.False(t, aegiserr.IsUpstreamFailure(err))
	}
}

func TestHTTPStatusDefaults(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, aegiserr.HTTPStatus(nil))
	assert.Equal(t, http.StatusInternalServerError, aegiserr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := aegiserr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, aegiserr.CodeServerInternalFailure, aegiserr.CodeOf(joined))
}
