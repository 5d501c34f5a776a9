// Package piglet is the core transport client for the instrument's
// wire protocol: connection lifecycle, the registration dance that
// discovers root objects, and the sole method-call entry point,
// Act. The framed transport, request multiplexer, and value codec
// live in the wire, mux, and codec subpackages respectively; this
// package re-exports the types an embedding application needs so it
// never has to import them directly.
package piglet

import (
	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/roboterr"
)

// ObjectAddress identifies an instrument object: (module_id, node_id,
// object_id).
type ObjectAddress = codec.ObjectAddress

// RobotError is one error the instrument reported for a call.
type RobotError = roboterr.RobotError

// CallError reports that the peer answered a call with a non-success
// code.
type CallError = roboterr.CallError

// ConnectionError wraps every failure that is not a peer-reported
// call failure.
type ConnectionError = roboterr.ConnectionError

// Disconnected reports that the connection closed while a call was in
// flight.
type Disconnected = roboterr.Disconnected

// Saturated reports that a destination's 256 request IDs are all in
// use.
type Saturated = roboterr.Saturated

// DeliveryError reports that the transport could not reach a
// destination address.
type DeliveryError = roboterr.DeliveryError

// DeliveryResultKind classifies a DeliveryError.
type DeliveryResultKind = roboterr.DeliveryResultKind

// AddressUnknown and GenericCommError are the two DeliveryResultKind
// values.
const (
	AddressUnknown   = roboterr.AddressUnknown
	GenericCommError = roboterr.GenericCommError
)

// WithContext attaches a call-site description to err, composing with
// any context already attached.
func WithContext(err error, ctx string) error {
	return roboterr.WithContext(err, ctx)
}

// ClientAddress returns the address a session identifies itself with
// once the handshake has assigned it clientID.
func ClientAddress(clientID uint16) ObjectAddress {
	return codec.ClientAddress(clientID)
}
