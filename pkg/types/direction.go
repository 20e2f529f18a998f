// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package types

// Direction identifies which side of an agent boundary a scan covers.
type Direction string

const (
	// DirectionIngress is a prompt entering an agent.
	DirectionIngress Direction = "ingress"
	// DirectionEgress is response content leaving an agent.
	DirectionEgress Direction = "egress"
)

// Valid reports whether the direction is known.
func (d Direction) Valid() bool {
	switch d {
	case DirectionIngress, DirectionEgress:
		return true
	default:
		return false
	}
}

// ContentKind returns the scanning service's name for content in this
// direction: "prompt" for ingress and "response" for egress.
func (d Direction) ContentKind() string {
	if d == DirectionEgress {
		return "response"
	}
	return "prompt"
}
