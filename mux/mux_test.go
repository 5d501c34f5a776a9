package mux

import (
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/roboterr"
	"github.com/nimbusrobotics/piglet/wire"
)

// newMuxPair dials a loopback TCP connection and returns a Mux bound
// to the client side plus the raw peer socket playing the instrument.
func newMuxPair(t *testing.T) (*Mux, net.Conn, codec.ObjectAddress) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	peerCh := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err == nil {
			peerCh <- c
		}
	}()

	log := logrus.New()
	log.SetOutput(io.Discard)

	conn, err := wire.Dial("tcp", ln.Addr().String(), wire.DefaultVersion, log)
	require.NoError(t, err)

	peer := <-peerCh

	clientAddr := codec.ClientAddress(7)
	m := New(conn, clientAddr, log, nil)

	t.Cleanup(func() {
		m.Close()
		conn.Close()
		peer.Close()
	})

	return m, peer, clientAddr
}

// readOuterFrame reads one outer-framed payload off peer, returning
// its protocol byte and body.
func readOuterFrame(t *testing.T, peer net.Conn) (uint8, []byte) {
	t.Helper()

	var lenBuf [2]byte
	_, err := io.ReadFull(peer, lenBuf[:])
	require.NoError(t, err)
	total := int(binary.LittleEndian.Uint16(lenBuf[:]))

	rest := make([]byte, total)
	_, err = io.ReadFull(peer, rest)
	require.NoError(t, err)

	return rest[0], rest[4:]
}

func writeOuterFrame(t *testing.T, peer net.Conn, protocol uint8, body []byte) {
	t.Helper()

	frame := make([]byte, 0, 6+len(body))
	frame = append(frame, byte(4+len(body)), 0)
	frame = append(frame, protocol, wire.DefaultVersion, 0, 0)
	frame = append(frame, body...)

	_, err := peer.Write(frame)
	require.NoError(t, err)
}

// scriptedReply builds an inner-frame reply from destination back to
// the caller, echoing requestID, carrying code, and the given body.
func scriptedReply(destination, client codec.ObjectAddress, requestID, code uint8, body []byte) []byte {
	frame := make([]byte, 0, innerHeaderLen+len(body))
	frame = append(frame, destination.Bytes()...)
	frame = append(frame, client.Bytes()...)
	frame = append(frame, requestID, 0, actSubProtocol, code)

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(innerHeaderLen+len(body)))
	frame = append(frame, lenBuf[:]...)
	frame = append(frame, 0, 0) // option count
	frame = append(frame, 0, 0) // reserved
	frame = append(frame, body...)
	return frame
}

// actReplyBody builds the fixed echoed header an Act reply carries
// ahead of whatever the failure/success body needs.
func actReplyBody(interfaceID, callType uint8, callTypeID uint16, count uint8, rest []byte) []byte {
	body := []byte{interfaceID, callType, byte(callTypeID), byte(callTypeID >> 8), 0, count}
	return append(body, rest...)
}

func TestActReadSuccess(t *testing.T) {
	m, peer, clientAddr := newMuxPair(t)
	destination := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 384}

	resultCh := make(chan struct {
		count uint8
		body  []byte
		err   error
	}, 1)
	go func() {
		count, body, err := m.Act(destination, 5, 0, 100, nil)
		resultCh <- struct {
			count uint8
			body  []byte
			err   error
		}{count, body, err}
	}()

	protocol, reqBody := readOuterFrame(t, peer)
	require.Equal(t, uint8(6), protocol)
	requestID := reqBody[12]

	// The Act payload the instrument echoes back, plus two bytes of
	// returned value.
	replyBody := actReplyBody(5, 0, 100, 1, []byte{0xAB, 0xCD})
	writeOuterFrame(t, peer, 6, scriptedReply(destination, clientAddr, requestID, 1, replyBody))

	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		assert.Equal(t, uint8(1), r.count)
		assert.Equal(t, []byte{0xAB, 0xCD}, r.body)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Act result")
	}
}

func TestActWriteSuccess(t *testing.T) {
	m, peer, clientAddr := newMuxPair(t)
	destination := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 384}

	resultCh := make(chan error, 1)
	go func() {
		_, _, err := m.Act(destination, 5, 3, 200, []byte{0x01})
		resultCh <- err
	}()

	_, reqBody := readOuterFrame(t, peer)
	requestID := reqBody[12]

	replyBody := actReplyBody(5, 3, 200, 0, nil)
	writeOuterFrame(t, peer, 6, scriptedReply(destination, clientAddr, requestID, 4, replyBody))

	select {
	case err := <-resultCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Act result")
	}
}

func TestActSinglePeerError(t *testing.T) {
	m, peer, clientAddr := newMuxPair(t)
	destination := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 384}

	resultCh := make(chan error, 1)
	go func() {
		_, _, err := m.Act(destination, 5, 0, 100, nil)
		resultCh <- err
	}()

	_, reqBody := readOuterFrame(t, peer)
	requestID := reqBody[12]

	enc := codec.NewEncoder()
	enc.PutErrorCode(7)
	enc.PutString("0x0001.0x0001.0x0180:0x00,0x0001,0x0042")
	replyBody := actReplyBody(5, 0, 100, 0, enc.Bytes())
	writeOuterFrame(t, peer, 6, scriptedReply(destination, clientAddr, requestID, 0xFF, replyBody))

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var ce *roboterr.CallError
		require.ErrorAs(t, err, &ce)
		require.Len(t, ce.Errors, 1)
		assert.Equal(t, uint16(0x0042), ce.Errors[0].Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Act result")
	}
}

func TestActMultiPeerError(t *testing.T) {
	m, peer, clientAddr := newMuxPair(t)
	destination := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 384}

	resultCh := make(chan error, 1)
	go func() {
		_, _, err := m.Act(destination, 5, 0, 100, nil)
		resultCh <- err
	}()

	_, reqBody := readOuterFrame(t, peer)
	requestID := reqBody[12]

	enc := codec.NewEncoder()
	enc.PutErrorCode(21)
	enc.PutString("0x0001.0x0001.0x0180:0x00,0x0001,0x0042;0x0002.0x0002.0x0002:0x00,0x0002,0x0099")
	replyBody := actReplyBody(5, 0, 100, 0, enc.Bytes())
	writeOuterFrame(t, peer, 6, scriptedReply(destination, clientAddr, requestID, 0xFF, replyBody))

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var ce *roboterr.CallError
		require.ErrorAs(t, err, &ce)
		require.Len(t, ce.Errors, 2)
		assert.Equal(t, uint16(0x0042), ce.Errors[0].Code)
		assert.Equal(t, uint16(0x0099), ce.Errors[1].Code)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Act result")
	}
}

func TestConcurrentCallsMatchOutOfOrderReplies(t *testing.T) {
	m, peer, clientAddr := newMuxPair(t)
	destination := codec.ObjectAddress{ModuleID: 3, NodeID: 3, ObjectID: 3}

	const n = 8
	results := make(chan struct {
		idx  int
		body []byte
		err  error
	}, n)

	for i := 0; i < n; i++ {
		i := i
		go func() {
			_, body, err := m.Act(destination, 1, 0, uint16(i), nil)
			results <- struct {
				idx  int
				body []byte
				err  error
			}{i, body, err}
		}()
	}

	type seen struct {
		requestID  uint8
		callTypeID uint16
	}
	var requests []seen
	for i := 0; i < n; i++ {
		_, reqBody := readOuterFrame(t, peer)
		requests = append(requests, seen{
			requestID:  reqBody[12],
			callTypeID: binary.LittleEndian.Uint16(reqBody[innerHeaderLen+2 : innerHeaderLen+4]),
		})
	}

	// Reply in reverse order of receipt to prove replies correlate by
	// request id rather than send order.
	for i := len(requests) - 1; i >= 0; i-- {
		r := requests[i]
		replyBody := actReplyBody(1, 0, r.callTypeID, 0, []byte{byte(r.callTypeID)})
		writeOuterFrame(t, peer, 6, scriptedReply(destination, clientAddr, r.requestID, 1, replyBody))
	}

	seenIdx := make(map[int]bool)
	for i := 0; i < n; i++ {
		select {
		case r := <-results:
			require.NoError(t, r.err)
			require.Len(t, r.body, 1)
			assert.Equal(t, byte(r.idx), r.body[0])
			seenIdx[r.idx] = true
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for concurrent Act results")
		}
	}
	assert.Len(t, seenIdx, n)
}

func TestRequestFailsAfterMuxClose(t *testing.T) {
	m, peer, _ := newMuxPair(t)
	destination := codec.ObjectAddress{ModuleID: 4, NodeID: 4, ObjectID: 4}

	resultCh := make(chan error, 1)
	go func() {
		_, _, err := m.Act(destination, 1, 0, 1, nil)
		resultCh <- err
	}()

	readOuterFrame(t, peer) // drain the request so Write doesn't block

	m.Close()

	select {
	case err := <-resultCh:
		require.Error(t, err)
		var ce *roboterr.ConnectionError
		require.ErrorAs(t, err, &ce)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for disconnection error")
	}
}
