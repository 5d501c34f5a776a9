// Package piglettest provides a scripted in-process TCP peer for
// exercising a Session (or a lower-level Conn/Mux) against literal,
// hand-built frame bytes, the same style of fixture the wire and mux
// packages use inline in their own tests but shared here for the
// end-to-end session scenarios.
package piglettest

import (
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nimbusrobotics/piglet/codec"
)

// Peer is the instrument side of a scripted TCP connection.
type Peer struct {
	t    *testing.T
	Addr string
	conn net.Conn
}

// Listen starts a loopback listener and returns its address; call
// Accept once the client under test has dialed it.
func Listen(t *testing.T) (*Peer, *net.TCPListener) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return &Peer{t: t, Addr: ln.Addr().String()}, ln.(*net.TCPListener)
}

// Accept blocks until the client connects, then returns the peer
// ready to read/write scripted frames.
func (p *Peer) Accept(ln *net.TCPListener) {
	p.t.Helper()
	conn, err := ln.Accept()
	require.NoError(p.t, err)
	p.conn = conn
}

// Close closes the peer's side of the connection.
func (p *Peer) Close() {
	if p.conn != nil {
		p.conn.Close()
	}
}

// ReadFrame reads one outer-framed message and returns its protocol
// byte and body.
func (p *Peer) ReadFrame() (uint8, []byte) {
	p.t.Helper()

	var lenBuf [2]byte
	_, err := io.ReadFull(p.conn, lenBuf[:])
	require.NoError(p.t, err)
	total := int(binary.LittleEndian.Uint16(lenBuf[:]))

	rest := make([]byte, total)
	_, err = io.ReadFull(p.conn, rest)
	require.NoError(p.t, err)

	return rest[0], rest[4:]
}

// WriteFrame writes one outer-framed message.
func (p *Peer) WriteFrame(version, protocol uint8, body []byte) {
	p.t.Helper()

	frame := make([]byte, 0, 6+len(body))
	frame = append(frame, byte(4+len(body)), 0)
	frame = append(frame, protocol, version, 0, 0)
	frame = append(frame, body...)

	_, err := p.conn.Write(frame)
	require.NoError(p.t, err)
}

// HandshakeReply builds a handshake reply body carrying clientID.
func HandshakeReply(clientID uint16) []byte {
	body := []byte{0, 0, 1, 0}
	body = append(body, 1 /* paramConnectionID */, 17 /* replyMeta */)
	body = append(body, 0, 0)
	var v [2]byte
	binary.LittleEndian.PutUint16(v[:], clientID)
	return append(body, v[:]...)
}

// RegistrationBareAck builds a registration reply body with response
// code 0 and no options, enough for the bare registration-message
// reply (which is never inspected for roots).
func RegistrationBareAck() []byte {
	body := make([]byte, 20)
	return body
}

// RegistrationRoots builds a registration reply body carrying the
// given root object IDs as a single option-kind-6 block.
func RegistrationRoots(roots []uint16) []byte {
	body := make([]byte, 20) // fixed header through option_count, all zero except option_count below
	binary.LittleEndian.PutUint16(body[18:20], 1)

	payload := make([]byte, 2+2*len(roots)) // pad + roots
	for i, r := range roots {
		binary.LittleEndian.PutUint16(payload[2+2*i:], r)
	}

	body = append(body, 6, byte(len(payload)))
	body = append(body, payload...)
	return body
}

// ActReply builds a method-call reply body, echoing the fixed header
// ahead of the given value payload.
func ActReply(interfaceID, callType uint8, callTypeID uint16, count uint8, values []byte) []byte {
	body := []byte{interfaceID, callType, byte(callTypeID), byte(callTypeID >> 8), 0, count}
	return append(body, values...)
}

// InnerFrame wraps body as a protocol-6/registration-style inner
// frame from source to destination, carrying requestID and code.
func InnerFrame(source, destination codec.ObjectAddress, requestID, subProtocol, code uint8, body []byte) []byte {
	const headerLen = 6 + 6 + 1 + 1 + 1 + 1 + 2 + 2 + 1 + 1

	frame := make([]byte, 0, headerLen+len(body))
	frame = append(frame, source.Bytes()...)
	frame = append(frame, destination.Bytes()...)
	frame = append(frame, requestID, 0, subProtocol, code)

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(headerLen+len(body)))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, 0, 0)
	frame = append(frame, 0, 0)
	frame = append(frame, body...)
	return frame
}
