// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

import (
	"testing"

	aegiserr "github.com/sigil-dev/aegis/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFailMode(t *testing.T) {
	tests := []struct {
		in   string
		want FailMode
	}{
		{"fail_open", FailOpen},
		{"FAIL_CLOSED", FailClosed},
		{"open", FailOpen},
		{"closed", FailClosed},
		{"fail-open", FailOpen},
		{" Fail_Closed ", FailClosed},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFailMode(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFailMode_RejectsUnknown(t *testing.T) {
	_, err := ParseFailMode("sometimes")
	require.Error(t, err)
	assert.True(t, aegiserr.IsInvalidInput(err))
}

func TestParseCategory(t *testing.T) {
	for _, in := range []string{"MALICIOUS", "sensitive_data", "Benign", "UNKNOWN"} {
		c, err := ParseCategory(in)
		require.NoError(t, err, in)
		assert.True(t, c.Valid())
	}

	_, err := ParseCategory("spicy")
	assert.True(t, aegiserr.IsInvalidInput(err))
}

func TestDirection(t *testing.T) {
	assert.True(t, DirectionIngress.Valid())
	assert.True(t, DirectionEgress.Valid())
	assert.False(t, Direction("sideways").Valid())
	assert.Equal(t, "prompt", DirectionIngress.ContentKind())
	assert.Equal(t, "response", DirectionEgress.ContentKind())
}

func TestAction_Valid(t *testing.T) {
	for _, a := range []Action{ActionAllow, ActionBlock, ActionRedact} {
		assert.True(t, a.Valid(), string(a))
	}
	assert.False(t, Action("flag").Valid())
}
