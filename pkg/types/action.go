// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

// Action is the outcome of a policy decision for one unit of text.
type Action string

const (
	ActionAllow  Action = "allow"
	ActionBlock  Action = "block"
	ActionRedact Action = "redact"
)

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	switch a {
	case ActionAllow, ActionBlock, ActionRedact:
		return true
	default:
		return false
	}
}
