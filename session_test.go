package piglet

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/piglettest"
	"github.com/nimbusrobotics/piglet/roboterr"
	"github.com/nimbusrobotics/piglet/wire"
)

// runInstrument completes the handshake and registration dance with a
// fixed client id and root sets, then hands the resulting client
// address to fn for scenario-specific scripting.
func runInstrument(t *testing.T, peer *piglettest.Peer, clientID uint16, objects, globals []uint16, fn func(clientAddr codec.ObjectAddress)) {
	t.Helper()

	peer.ReadFrame() // handshake request
	peer.WriteFrame(wire.DefaultVersion, 7, piglettest.HandshakeReply(clientID))

	clientAddr := codec.ClientAddress(clientID)
	registrationAddr := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 65534}

	// Registration message: acknowledged, but its reply body is never
	// inspected for roots.
	_, regReq := peer.ReadFrame()
	peer.WriteFrame(wire.DefaultVersion, 6, piglettest.InnerFrame(registrationAddr, clientAddr, regReq[12], 3, 0, piglettest.RegistrationBareAck()))

	_, findObjReq := peer.ReadFrame()
	reqID := findObjReq[12]
	peer.WriteFrame(wire.DefaultVersion, 6, piglettest.InnerFrame(registrationAddr, clientAddr, reqID, 3, 0, piglettest.RegistrationRoots(objects)))

	_, findGlobReq := peer.ReadFrame()
	reqID = findGlobReq[12]
	peer.WriteFrame(wire.DefaultVersion, 6, piglettest.InnerFrame(registrationAddr, clientAddr, reqID, 3, 0, piglettest.RegistrationRoots(globals)))

	fn(clientAddr)
}

func TestDialAndActReadSuccess(t *testing.T) {
	peer, ln := piglettest.Listen(t)
	defer ln.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)

	resultCh := make(chan struct {
		s   *Session
		err error
	}, 1)
	go func() {
		s, err := Dial(context.Background(), peer.Addr, WithLogger(log), WithHandshakeTimeout(time.Second))
		resultCh <- struct {
			s   *Session
			err error
		}{s, err}
	}()

	peer.Accept(ln)

	destination := codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 384}
	var clientAddr codec.ObjectAddress
	runInstrument(t, peer, 42, []uint16{384}, []uint16{500}, func(ca codec.ObjectAddress) {
		clientAddr = ca
	})

	var s *Session
	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		s = r.s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Dial")
	}
	defer s.Close()

	require.Len(t, s.Objects(), 1)
	assert.Equal(t, uint16(384), s.Objects()[0].ObjectID)
	require.Len(t, s.Globals(), 1)
	assert.Equal(t, uint16(500), s.Globals()[0].ObjectID)

	actResult := make(chan struct {
		count uint8
		body  []byte
		err   error
	}, 1)
	go func() {
		count, body, err := s.Act(context.Background(), destination, 1, 0, 1, nil)
		actResult <- struct {
			count uint8
			body  []byte
			err   error
		}{count, body, err}
	}()

	_, reqBody := peer.ReadFrame()
	requestID := reqBody[12]

	replyValues := []byte{0x17, 0x00, 0x01, 0x00, 0x01} // bool true, tagged
	replyBody := piglettest.ActReply(1, 0, 1, 1, replyValues)
	peer.WriteFrame(wire.DefaultVersion, 6, piglettest.InnerFrame(destination, clientAddr, requestID, 2, 1, replyBody))

	select {
	case r := <-actResult:
		require.NoError(t, r.err)
		assert.Equal(t, uint8(1), r.count)
		dec := codec.NewDecoder(r.body)
		v, err := dec.Bool()
		require.NoError(t, err)
		assert.True(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Act result")
	}
}

func TestDialAndActUnreachableAddress(t *testing.T) {
	peer, ln := piglettest.Listen(t)
	defer ln.Close()

	log := logrus.New()
	log.SetOutput(io.Discard)

	resultCh := make(chan struct {
		s   *Session
		err error
	}, 1)
	go func() {
		s, err := Dial(context.Background(), peer.Addr, WithLogger(log), WithHandshakeTimeout(time.Second))
		resultCh <- struct {
			s   *Session
			err error
		}{s, err}
	}()

	peer.Accept(ln)

	var clientAddr codec.ObjectAddress
	runInstrument(t, peer, 7, nil, nil, func(ca codec.ObjectAddress) {
		clientAddr = ca
	})

	var s *Session
	select {
	case r := <-resultCh:
		require.NoError(t, r.err)
		s = r.s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Dial")
	}
	defer s.Close()

	destination := codec.ObjectAddress{ModuleID: 9, NodeID: 9, ObjectID: 9}

	actResult := make(chan struct {
		err error
	}, 1)
	go func() {
		_, _, err := s.Act(context.Background(), destination, 1, 0, 1, nil)
		actResult <- struct{ err error }{err}
	}()

	_, reqBody := peer.ReadFrame()
	requestID := reqBody[12]

	unreachable := codec.ObjectAddress{ModuleID: 9, NodeID: 9, ObjectID: 9}
	optBody := append(unreachable.Bytes(), 0, 0)
	optBody[6], optBody[7] = byte(516), byte(516>>8)

	frame := make([]byte, 0)
	frame = append(frame, destination.Bytes()...)
	frame = append(frame, clientAddr.Bytes()...)
	frame = append(frame, requestID, 0, 2, 0xFF)
	frameLen := 6 + 6 + 1 + 1 + 1 + 1 + 2 + 2 + 1 + 1 + 2 + len(optBody)
	frame = append(frame, byte(frameLen), byte(frameLen>>8))
	frame = append(frame, byte(2+len(optBody)), 0) // options block length in bytes
	frame = append(frame, 1, byte(len(optBody)))    // TLV kind 1, starting immediately after the field above
	frame = append(frame, optBody...)
	frame = append(frame, 0, 0) // trailing reserved bytes
	peer.WriteFrame(wire.DefaultVersion, 6, frame)

	select {
	case r := <-actResult:
		require.Error(t, r.err)
		var ce *roboterr.ConnectionError
		require.ErrorAs(t, r.err, &ce)
		var de roboterr.DeliveryError
		require.ErrorAs(t, r.err, &de)
		assert.Equal(t, roboterr.AddressUnknown, de.Kind())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Act result")
	}
}
