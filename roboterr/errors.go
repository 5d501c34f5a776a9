// Package roboterr defines the two error kinds the core surfaces to
// callers — CallError for a peer-reported failure, ConnectionError
// for everything else — plus the handful of typed causes a
// ConnectionError wraps and the context-stacking helper used to
// annotate either kind at a call site.
package roboterr

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/nimbusrobotics/piglet/codec"
)

// RobotError is one error the instrument reported for a call.
type RobotError struct {
	Source codec.ObjectAddress
	Code   uint16
}

func (e RobotError) Error() string {
	return fmt.Sprintf("Call to %s failed with code 0x%04X", e.Source, e.Code)
}

// CallError reports that the peer answered the call but with a
// non-success code; Errors is always non-empty.
type CallError struct {
	Context string
	Errors  []RobotError
	Source  codec.ObjectAddress
}

func (e *CallError) Error() string {
	var b strings.Builder

	if len(e.Errors) == 1 {
		b.WriteString(e.Errors[0].Error())
	} else {
		fmt.Fprintf(&b, "Call to %s failed with multiple errors:", e.Source)
		for _, sub := range e.Errors {
			fmt.Fprintf(&b, "\n - %s", sub)
		}
	}

	if e.Context != "" {
		fmt.Fprintf(&b, "\n\ncontext: %s", e.Context)
	}

	return b.String()
}

// ConnectionError wraps every failure that is not a peer-reported
// call failure: I/O, framing, decoding, protocol violations,
// request-ID exhaustion, and disconnection.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return e.Cause.Error()
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// Disconnected reports that the connection closed while a call was
// in flight.
type Disconnected struct{}

func (Disconnected) Error() string {
	return "disconnected: connection closed while call was in flight"
}

// Saturated reports that a destination's 256 request IDs are all in
// use.
type Saturated struct {
	Destination codec.ObjectAddress
}

func (e Saturated) Error() string {
	return fmt.Sprintf("request-id pool exhausted for destination %s", e.Destination)
}

// DeliveryResultKind classifies a transport-level delivery failure
// reported via option kind 1.
type DeliveryResultKind int

const (
	// AddressUnknown is DeliveryError.Result == 516: the destination
	// address does not exist on the instrument.
	AddressUnknown DeliveryResultKind = iota
	// GenericCommError is any other non-zero delivery result.
	GenericCommError
)

// DeliveryError reports that the transport could not reach a
// destination address.
type DeliveryError struct {
	Address codec.ObjectAddress
	Result  uint16
}

func (e DeliveryError) Kind() DeliveryResultKind {
	if e.Result == 516 {
		return AddressUnknown
	}
	return GenericCommError
}

func (e DeliveryError) Error() string {
	if e.Kind() == AddressUnknown {
		return fmt.Sprintf("delivery error: address %s is unknown to the instrument", e.Address)
	}
	return fmt.Sprintf("delivery error: communication failure reaching %s (result=%d)", e.Address, e.Result)
}

// WithContext attaches a call-site description to err, composing with
// any context already attached. It is a no-op (returns err unchanged)
// for any error that is neither a *CallError nor a *ConnectionError.
func WithContext(err error, ctx string) error {
	if err == nil {
		return nil
	}

	var ce *CallError
	if errors.As(err, &ce) {
		next := &CallError{
			Errors: ce.Errors,
			Source: ce.Source,
		}
		if ce.Context != "" {
			next.Context = fmt.Sprintf("%s\n\ncaused by: %s", ctx, ce.Context)
		} else {
			next.Context = ctx
		}
		return next
	}

	var conn *ConnectionError
	if errors.As(err, &conn) {
		return &ConnectionError{Cause: errors.WithMessage(conn.Cause, ctx)}
	}

	return err
}

// ParseRobotError parses the error-string grammar used in reply
// bodies: "<source>:<detail>" where source is three dot-separated
// "0x"-prefixed hex u16 words (module_id, node_id, object_id) and
// detail is three comma-separated "0x"-prefixed hex u16 words (an
// unused field, a call-type id, and the error code).
func ParseRobotError(s string) (RobotError, error) {
	source, detail, ok := strings.Cut(s, ":")
	if !ok {
		return RobotError{}, fmt.Errorf("roboterr: malformed error string %q: no ':' separator", s)
	}

	sourceWords, err := parseHexWords(source, ".", 3)
	if err != nil {
		return RobotError{}, fmt.Errorf("roboterr: malformed error source %q: %w", s, err)
	}

	detailWords, err := parseHexWords(detail, ",", 3)
	if err != nil {
		return RobotError{}, fmt.Errorf("roboterr: malformed error detail %q: %w", s, err)
	}

	return RobotError{
		Source: codec.ObjectAddress{
			ModuleID: sourceWords[0],
			NodeID:   sourceWords[1],
			ObjectID: sourceWords[2],
		},
		Code: detailWords[2],
	}, nil
}

// ParseRobotErrors splits a semicolon-delimited list of error strings
// (the code-21 multi-error form) and parses each one.
func ParseRobotErrors(s string) ([]RobotError, error) {
	parts := strings.Split(s, ";")
	out := make([]RobotError, 0, len(parts))
	for _, p := range parts {
		re, err := ParseRobotError(p)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

func parseHexWords(s, sep string, want int) ([3]uint16, error) {
	var out [3]uint16
	parts := strings.Split(s, sep)
	if len(parts) != want {
		return out, fmt.Errorf("expected %d words separated by %q, got %d", want, sep, len(parts))
	}
	for i, p := range parts {
		if !strings.HasPrefix(p, "0x") {
			return out, fmt.Errorf("word %q is missing the 0x prefix", p)
		}
		v, err := strconv.ParseUint(p[2:], 16, 16)
		if err != nil {
			return out, fmt.Errorf("word %q is not valid hex: %w", p, err)
		}
		out[i] = uint16(v)
	}
	return out, nil
}
