// Package codectest provides small table-driven helpers for
// asserting that a value's wire encoding is byte-exact and that
// encode/decode round-trip without loss, mirroring the marshal/
// unmarshal table-test style used throughout this codebase's wire
// packages.
package codectest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Case pairs an encode step with the exact bytes it must produce.
type Case struct {
	Name   string
	Encode func() []byte
	Want   []byte
}

// RunEncode asserts each case's Encode function produces exactly Want.
func RunEncode(t *testing.T, cases []Case) {
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			got := c.Encode()
			assert.Equal(t, c.Want, got, "encoded bytes differ")
		})
	}
}

// RoundTrip pairs an input value's encoding with a decode step that
// should recover an equal value.
type RoundTrip struct {
	Name   string
	Encode func() []byte
	Decode func(b []byte) (any, error)
	Want   any
}

// RunRoundTrip asserts that decoding each case's encoded bytes
// recovers a value equal to Want, with no error.
func RunRoundTrip(t *testing.T, cases []RoundTrip) {
	for _, c := range cases {
		t.Run(c.Name, func(t *testing.T) {
			b := c.Encode()
			got, err := c.Decode(b)
			assert.NoError(t, err)
			assert.Equal(t, c.Want, got)
		})
	}
}
