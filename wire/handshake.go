package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

const handshakeProtocol uint8 = 7

// Handshake parameter identifiers.
const (
	paramConnectionID   uint8 = 1
	paramConnectionType uint8 = 2
	paramTimeout        uint8 = 4
)

// connectionType and handshakeTimeout are accepted from the source
// protocol unchanged; their semantics beyond "expected magic numbers"
// are not documented anywhere this client has visibility into.
const (
	connectionType   uint16 = 0x1111
	handshakeTimeout uint16 = 300
)

// replyMeta and replyCode are the only accepted values for every
// record in a handshake reply.
const (
	replyMeta uint8  = 17
	replyCode uint16 = 0
)

// ProtocolError reports a handshake reply or an inbound inner frame
// that violated a fixed structural expectation of the wire protocol.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("wire: protocol error: %s", e.Detail)
}

// Handshake performs the one-time connection handshake over protocol
// 7 and returns the client_id the server assigned. Any failed check
// is fatal for the connection: the caller should close c.
func Handshake(c *Conn, timeout time.Duration) (clientID uint16, err error) {
	replies := c.Subscribe(handshakeProtocol)
	defer c.Unsubscribe(handshakeProtocol)

	if err := c.Write(handshakeProtocol, handshakeRequest()); err != nil {
		return 0, errors.Wrap(err, "wire: write handshake request")
	}

	select {
	case body, ok := <-replies:
		if !ok {
			return 0, &ProtocolError{Detail: "connection closed during handshake"}
		}
		return parseHandshakeReply(body)
	case <-time.After(timeout):
		return 0, &ProtocolError{Detail: "handshake timed out waiting for reply"}
	}
}

// handshakeRequest builds the fixed three-parameter handshake body:
// version(0), message_id(0), count(3), reserved(0), followed by one
// 6-byte record per parameter: id, meta=16, u16_le(0), u16_le(value).
func handshakeRequest() []byte {
	const requestMeta uint8 = 16

	buf := make([]byte, 0, 4+3*6)
	buf = append(buf, 0, 0, 3, 0)
	buf = appendParam(buf, paramConnectionID, requestMeta, 0)
	buf = appendParam(buf, paramConnectionType, requestMeta, connectionType)
	buf = appendParam(buf, paramTimeout, requestMeta, handshakeTimeout)
	return buf
}

func appendParam(buf []byte, id, meta uint8, value uint16) []byte {
	buf = append(buf, id, meta)
	var pad [2]byte
	buf = append(buf, pad[:]...)
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], value)
	return append(buf, v[:]...)
}

// parseHandshakeReply validates and extracts client_id from a
// handshake reply body: version(1), message_id(1, must be 0),
// count(1), reserved(1), then count 6-byte (parameter, meta, code,
// value) records.
func parseHandshakeReply(body []byte) (uint16, error) {
	if len(body) < 4 {
		return 0, &ProtocolError{Detail: "handshake reply shorter than header"}
	}

	messageID := body[1]
	if messageID != 0 {
		return 0, &ProtocolError{Detail: fmt.Sprintf("expected message id 0, got %d", messageID)}
	}

	count := int(body[2])
	records := body[4:]
	if len(records) != count*6 {
		return 0, &ProtocolError{Detail: fmt.Sprintf("handshake reply declares %d records but carries %d bytes", count, len(records))}
	}

	var clientID uint16
	var sawClientID bool

	for i := 0; i < count; i++ {
		rec := records[i*6 : i*6+6]
		parameter := rec[0]
		meta := rec[1]
		code := binary.LittleEndian.Uint16(rec[2:4])
		value := binary.LittleEndian.Uint16(rec[4:6])

		if meta != replyMeta {
			return 0, &ProtocolError{Detail: fmt.Sprintf("expected meta %d, got %d", replyMeta, meta)}
		}
		if code != replyCode {
			return 0, &ProtocolError{Detail: fmt.Sprintf("expected code %d, got %d", replyCode, code)}
		}

		if parameter == paramConnectionID {
			clientID = value
			sawClientID = true
		}
	}

	if !sawClientID {
		return 0, &ProtocolError{Detail: "handshake reply never carried a connection id"}
	}
	return clientID, nil
}
