package piglet

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/mux"
	"github.com/nimbusrobotics/piglet/roboterr"
	"github.com/nimbusrobotics/piglet/wire"
)

// registrationAddress is the well-known destination the registration
// dance runs against.
var registrationAddress = codec.ObjectAddress{ModuleID: 1, NodeID: 1, ObjectID: 65534}

const (
	registrationSubProtocol uint8 = 3
	registrationCallType    uint8 = 3

	regMsgRegister uint16 = 0
	regMsgFind     uint16 = 12

	rootOptionKind uint8 = 6
)

// Session is one live connection to the instrument: the framed
// transport, the request multiplexer bound to it, and the roots
// discovered during the registration dance.
type Session struct {
	conn *wire.Conn
	mux  *mux.Mux
	log  logrus.FieldLogger

	clientAddr ObjectAddress
	globals    []ObjectAddress
	objects    []ObjectAddress
}

// Dial opens addr, performs the handshake and registration dance, and
// returns a Session ready to Act.
func Dial(ctx context.Context, addr string, opts ...Option) (*Session, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.dialTimeout)
	defer cancel()

	type dialResult struct {
		conn *wire.Conn
		err  error
	}
	dialCh := make(chan dialResult, 1)
	go func() {
		c, err := wire.Dial("tcp", addr, cfg.version, cfg.log)
		dialCh <- dialResult{c, err}
	}()

	var conn *wire.Conn
	select {
	case r := <-dialCh:
		if r.err != nil {
			return nil, &roboterr.ConnectionError{Cause: r.err}
		}
		conn = r.conn
	case <-dialCtx.Done():
		return nil, dialCtx.Err()
	}

	clientID, err := wire.Handshake(conn, cfg.handshakeTO)
	if err != nil {
		conn.Close()
		return nil, &roboterr.ConnectionError{Cause: err}
	}
	clientAddr := ClientAddress(clientID)
	cfg.log.WithField("client_id", clientID).Info("piglet: handshake complete")

	m := mux.New(conn, clientAddr, cfg.log, cfg.metricsReg)

	globals, objects, err := register(m, clientAddr)
	if err != nil {
		m.Close()
		conn.Close()
		return nil, err
	}
	cfg.log.WithFields(logrus.Fields{
		"globals": len(globals),
		"objects": len(objects),
	}).Info("piglet: registration complete")

	return &Session{
		conn:       conn,
		mux:        m,
		log:        cfg.log,
		clientAddr: clientAddr,
		globals:    globals,
		objects:    objects,
	}, nil
}

// Globals returns the global object roots discovered at connect time.
func (s *Session) Globals() []ObjectAddress { return s.globals }

// Objects returns the non-global object roots discovered at connect
// time.
func (s *Session) Objects() []ObjectAddress { return s.objects }

// Act invokes one method on destination, the sole method-call entry
// point a generated facade has to drive. params is the already-encoded
// concatenation of tagged parameter values; the returned bytes follow
// immediately after valueCount for sequential decode.
func (s *Session) Act(ctx context.Context, destination ObjectAddress, interfaceID, callType uint8, methodID uint16, params []byte) (valueCount uint8, reply []byte, err error) {
	callID := uuid.New().String()
	log := s.log.WithFields(logrus.Fields{
		"call_id":      callID,
		"destination":  destination.String(),
		"interface_id": interfaceID,
		"call_type":    callType,
		"method_id":    methodID,
	})
	log.Debug("piglet: act")

	type result struct {
		count uint8
		body  []byte
		err   error
	}
	done := make(chan result, 1)
	go func() {
		count, body, err := s.mux.Act(destination, interfaceID, callType, methodID, params)
		done <- result{count, body, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			log.WithError(r.err).Warn("piglet: act failed")
		}
		return r.count, r.body, r.err
	case <-ctx.Done():
		log.Warn("piglet: act abandoned by caller context")
		return 0, nil, ctx.Err()
	}
}

// Close stops the multiplexer, draining and failing every outstanding
// call with Disconnected, then closes the underlying connection.
func (s *Session) Close() error {
	s.mux.Close()
	s.log.Info("piglet: session closed")
	return s.conn.Close()
}

// register runs the fixed registration dance (registration message,
// find-objects, find-globals) against registrationAddress and returns
// the discovered object and global roots.
func register(m *mux.Mux, clientAddr ObjectAddress) (globals, objects []ObjectAddress, err error) {
	registerBody := buildRegistrationBody(clientAddr, regMsgRegister, nil)
	_, _, err = m.Request(registrationAddress, registrationSubProtocol, registrationCallType, false, registerBody)
	if err != nil {
		return nil, nil, &roboterr.ConnectionError{Cause: err}
	}
	// The registration message itself carries no response body worth
	// parsing: require_response is false, mirroring the source, which
	// never reads this reply's roots.

	findObjects := buildRegistrationBody(clientAddr, regMsgFind, []byte{5, 2, 2, 1})
	_, objectsBody, err := m.Request(registrationAddress, registrationSubProtocol, registrationCallType, true, findObjects)
	if err != nil {
		return nil, nil, &roboterr.ConnectionError{Cause: err}
	}
	objects, err = parseRegistrationReply(objectsBody)
	if err != nil {
		return nil, nil, &roboterr.ConnectionError{Cause: err}
	}

	findGlobals := buildRegistrationBody(clientAddr, regMsgFind, []byte{5, 2, 2, 2})
	_, globalsBody, err := m.Request(registrationAddress, registrationSubProtocol, registrationCallType, true, findGlobals)
	if err != nil {
		return nil, nil, &roboterr.ConnectionError{Cause: err}
	}
	globals, err = parseRegistrationReply(globalsBody)
	if err != nil {
		return nil, nil, &roboterr.ConnectionError{Cause: err}
	}

	return globals, objects, nil
}

// buildRegistrationBody assembles one registration-dance request
// body: a logical call-type word, a zeroed response code, two unknown
// bytes, the client address, a zero address, and an optional raw
// command payload.
func buildRegistrationBody(clientAddr ObjectAddress, callType uint16, command []byte) []byte {
	body := make([]byte, 0, 20+len(command))
	body = putU16(body, callType)
	body = putU16(body, 0) // response code
	body = append(body, 0, 0)
	body = append(body, clientAddr.Bytes()...)
	body = append(body, codec.ObjectAddress{}.Bytes()...)
	body = putU16(body, uint16(len(command)))
	body = append(body, command...)
	return body
}

// parseRegistrationReply validates a registration-dance reply body and
// extracts its discovered root addresses from the option-kind-6 TLV
// block. Every root shares module_id=1, node_id=1.
func parseRegistrationReply(body []byte) ([]ObjectAddress, error) {
	if len(body) < 20 {
		return nil, fmt.Errorf("piglet: registration reply shorter than its fixed header")
	}

	responseCode := binary.LittleEndian.Uint16(body[2:4])
	if responseCode != 0 {
		return nil, fmt.Errorf("piglet: registration request failed with code %d", responseCode)
	}

	optionCount := binary.LittleEndian.Uint16(body[18:20])
	cursor := 20

	var roots []ObjectAddress
	for i := uint16(0); i < optionCount; i++ {
		if cursor+2 > len(body) {
			return nil, fmt.Errorf("piglet: truncated registration option header")
		}
		kind := body[cursor]
		length := int(body[cursor+1])
		cursor += 2

		if kind != rootOptionKind {
			return nil, fmt.Errorf("piglet: unknown registration option kind %d", kind)
		}

		if length > 0 {
			if cursor+length > len(body) {
				return nil, fmt.Errorf("piglet: truncated registration option body")
			}
			pad := binary.LittleEndian.Uint16(body[cursor : cursor+2])
			if pad&0x8000 != 0 {
				return nil, fmt.Errorf("piglet: registration option pad has high bit set")
			}
			for off := cursor + 2; off+2 <= cursor+length; off += 2 {
				roots = append(roots, ObjectAddress{
					ModuleID: 1,
					NodeID:   1,
					ObjectID: binary.LittleEndian.Uint16(body[off : off+2]),
				})
			}
			cursor += length
		}

		if cursor >= len(body) {
			break
		}
	}

	return roots, nil
}

func putU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
