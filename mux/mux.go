// Package mux implements the request multiplexer: per-destination
// 8-bit request-ID allocation, a pending-call table keyed by
// (destination, request id), and correlation of inbound replies back
// to the caller awaiting them. It owns protocol 6 on the underlying
// wire.Conn.
package mux

import (
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/nimbusrobotics/piglet/codec"
	"github.com/nimbusrobotics/piglet/roboterr"
	"github.com/nimbusrobotics/piglet/wire"
)

const callProtocol uint8 = 6

// innerHeaderLen is the fixed portion of the inner frame preceding
// the body: two addresses, id, reserved, sub-protocol, call type,
// length, option length, two reserved bytes.
const innerHeaderLen = 6 + 6 + 1 + 1 + 1 + 1 + 2 + 2 + 1 + 1

const requireResponseFlag uint8 = 0x10

// reply is what the receive loop delivers to a waiting caller.
type reply struct {
	code uint8
	body []byte
	err  error
}

// destTable is the per-destination request-ID allocator and pending
// reply sinks.
type destTable struct {
	alloc *idAllocator

	mu      sync.Mutex
	pending map[uint8]chan reply
}

func newDestTable() *destTable {
	return &destTable{alloc: newIDAllocator(), pending: make(map[uint8]chan reply)}
}

// Mux multiplexes concurrent calls to many destinations across one
// wire.Conn.
type Mux struct {
	conn       *wire.Conn
	clientAddr codec.ObjectAddress
	log        logrus.FieldLogger
	metrics    *metrics

	frames <-chan []byte

	tablesMu sync.Mutex
	tables   map[codec.ObjectAddress]*destTable

	closeOnce sync.Once
	closed    chan struct{}
	loopDone  chan struct{}
}

// New creates a Mux bound to conn's protocol-6 stream, using
// clientAddr as the source address on every outbound frame.
func New(conn *wire.Conn, clientAddr codec.ObjectAddress, log logrus.FieldLogger, reg prometheus.Registerer) *Mux {
	if log == nil {
		log = logrus.StandardLogger()
	}
	m := &Mux{
		conn:       conn,
		clientAddr: clientAddr,
		log:        log,
		metrics:    newMetrics(reg),
		frames:     conn.Subscribe(callProtocol),
		tables:     make(map[codec.ObjectAddress]*destTable),
		closed:     make(chan struct{}),
		loopDone:   make(chan struct{}),
	}
	go m.receiveLoop()
	return m
}

func (m *Mux) tableFor(destination codec.ObjectAddress) *destTable {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	t, ok := m.tables[destination]
	if !ok {
		t = newDestTable()
		m.tables[destination] = t
	}
	return t
}

// Request sends one framed call to destination and blocks until its
// reply is delivered or the Mux closes. It has no cancellation of its
// own: a caller that stops waiting for it leaves it blocked until one
// of those two happens.
func (m *Mux) Request(destination codec.ObjectAddress, subProtocol, callType uint8, requireResponse bool, body []byte) (uint8, []byte, error) {
	start := time.Now()
	m.metrics.requestStarted()
	table := m.tableFor(destination)

	id, err := table.alloc.allocate(destination)
	if err != nil {
		m.metrics.saturated(destination.String())
		m.metrics.requestFinished("saturated", time.Since(start).Seconds())
		return 0, nil, &roboterr.ConnectionError{Cause: err}
	}

	sink := make(chan reply, 1)
	table.mu.Lock()
	table.pending[id] = sink
	table.mu.Unlock()

	frame := buildInnerFrame(m.clientAddr, destination, id, subProtocol, callType, requireResponse, body)

	if err := m.conn.Write(callProtocol, frame); err != nil {
		m.dropPending(table, id)
		m.metrics.requestFinished("io_error", time.Since(start).Seconds())
		return 0, nil, &roboterr.ConnectionError{Cause: err}
	}

	select {
	case r := <-sink:
		if r.err != nil {
			m.metrics.requestFinished("error", time.Since(start).Seconds())
			return 0, nil, &roboterr.ConnectionError{Cause: r.err}
		}
		m.metrics.requestFinished("ok", time.Since(start).Seconds())
		return r.code, r.body, nil

	case <-m.closed:
		m.dropPending(table, id)
		m.metrics.requestFinished("disconnected", time.Since(start).Seconds())
		return 0, nil, &roboterr.ConnectionError{Cause: roboterr.Disconnected{}}
	}
}

// dropPending removes id's sink from table without releasing the ID:
// per the cancellation discipline, an ID stays allocated until either
// a late reply lands (releasing it in the receive loop) or the
// connection closes.
func (m *Mux) dropPending(table *destTable, id uint8) {
	table.mu.Lock()
	delete(table.pending, id)
	table.mu.Unlock()
}

// Close stops the receive loop, fails every outstanding call with
// Disconnected, and unsubscribes from protocol 6. It does not close
// the underlying wire.Conn; the session owns that.
func (m *Mux) Close() {
	m.closeOnce.Do(func() {
		close(m.closed)
		m.conn.Unsubscribe(callProtocol)
		<-m.loopDone
		m.failAllPending()
	})
}

func (m *Mux) failAllPending() {
	m.tablesMu.Lock()
	defer m.tablesMu.Unlock()

	for _, table := range m.tables {
		table.mu.Lock()
		for id, sink := range table.pending {
			select {
			case sink <- reply{err: roboterr.Disconnected{}}:
			default:
			}
			delete(table.pending, id)
		}
		table.mu.Unlock()
	}
}

func (m *Mux) receiveLoop() {
	defer close(m.loopDone)

	for {
		select {
		case frame, ok := <-m.frames:
			if !ok {
				// The connection's frame stream ended: close so every
				// pending call fails with Disconnected.
				go m.Close()
				return
			}
			m.handleFrame(frame)
		case <-m.closed:
			return
		}
	}
}

func (m *Mux) handleFrame(frame []byte) {
	source, _, id, code, body, deliveryErr, err := parseInnerFrame(frame)
	if err != nil {
		// A framing or protocol violation is fatal for the connection:
		// close so every pending call fails with Disconnected.
		m.log.WithError(err).Warn("piglet/mux: malformed frame, closing multiplexer")
		go m.Close()
		return
	}

	m.tablesMu.Lock()
	table, ok := m.tables[source]
	m.tablesMu.Unlock()
	if !ok {
		m.log.WithField("source", source).Warn("piglet/mux: reply from unknown destination, dropping")
		return
	}

	table.mu.Lock()
	sink, ok := table.pending[id]
	if ok {
		delete(table.pending, id)
	}
	table.mu.Unlock()

	if !ok {
		table.alloc.release(id)
		m.log.WithFields(logrus.Fields{"source": source, "request_id": id}).
			Warn("piglet/mux: reply for unknown or abandoned request, dropping")
		return
	}

	table.alloc.release(id)

	r := reply{code: code, body: body}
	if deliveryErr != nil {
		r.err = deliveryErr
	}

	select {
	case sink <- r:
	default:
		// The caller's sink is buffered with capacity one and is
		// only ever read once; this never blocks in practice.
	}
}

// buildInnerFrame assembles one outbound call frame, header through
// body, ready to hand to wire.Conn.Write under protocol 6.
func buildInnerFrame(source, destination codec.ObjectAddress, id, subProtocol, callType uint8, requireResponse bool, body []byte) []byte {
	flags := callType
	if requireResponse {
		flags |= requireResponseFlag
	}

	frame := make([]byte, 0, innerHeaderLen+len(body))
	frame = append(frame, source.Bytes()...)
	frame = append(frame, destination.Bytes()...)
	frame = append(frame, id, 0, subProtocol, flags)

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(innerHeaderLen+len(body)))
	frame = append(frame, lenBuf[:]...)

	frame = append(frame, 0, 0) // option count
	frame = append(frame, 0, 0) // reserved
	frame = append(frame, body...)
	return frame
}

// parseInnerFrame decodes one inbound reply frame: source and
// destination addresses, request id, response code, the TLV options
// block (surfacing option kind 1 as deliveryErr), and the body that
// follows it.
func parseInnerFrame(frame []byte) (source, destination codec.ObjectAddress, id uint8, code uint8, body []byte, deliveryErr, err error) {
	if len(frame) < innerHeaderLen {
		return source, destination, 0, 0, nil, nil, &wire.FramingError{Detail: "inner frame shorter than its fixed header"}
	}

	source, err = codec.ParseObjectAddress(frame[0:6])
	if err != nil {
		return source, destination, 0, 0, nil, nil, err
	}
	destination, err = codec.ParseObjectAddress(frame[6:12])
	if err != nil {
		return source, destination, 0, 0, nil, nil, err
	}

	id = frame[12]
	// frame[13] is reserved.
	// frame[14] is sub_protocol, not needed by the caller.
	code = frame[15]

	declaredLen := int(binary.LittleEndian.Uint16(frame[16:18]))
	if declaredLen != len(frame) {
		return source, destination, 0, 0, nil, nil, &wire.FramingError{
			Detail: fmt.Sprintf("inner frame declares length %d but carries %d bytes", declaredLen, len(frame)),
		}
	}

	optionsLen := int(binary.LittleEndian.Uint16(frame[18:20]))
	cursor := 20

	for optionsLen > 0 {
		if cursor+2 > len(frame) {
			return source, destination, 0, 0, nil, nil, &wire.ProtocolError{Detail: "truncated TLV option header"}
		}
		kind := frame[cursor]
		optLen := int(frame[cursor+1])
		if cursor+2+optLen > len(frame) {
			return source, destination, 0, 0, nil, nil, &wire.ProtocolError{Detail: "truncated TLV option body"}
		}
		optBody := frame[cursor+2 : cursor+2+optLen]

		switch kind {
		case 1:
			if optLen != 8 {
				return source, destination, 0, 0, nil, nil, &wire.ProtocolError{Detail: "option kind 1 must carry 8 bytes"}
			}
			addr, aerr := codec.ParseObjectAddress(optBody[0:6])
			if aerr != nil {
				return source, destination, 0, 0, nil, nil, aerr
			}
			result := binary.LittleEndian.Uint16(optBody[6:8])
			deliveryErr = roboterr.DeliveryError{Address: addr, Result: result}
		default:
			return source, destination, 0, 0, nil, nil, &wire.ProtocolError{
				Detail: fmt.Sprintf("unknown TLV option kind %d", kind),
			}
		}

		consumed := 2 + optLen
		cursor += consumed
		optionsLen -= consumed
	}

	cursor += 2 // trailing reserved bytes
	if cursor > len(frame) {
		return source, destination, 0, 0, nil, nil, &wire.FramingError{Detail: "inner frame too short for trailing reserved bytes"}
	}

	body = frame[cursor:]
	return source, destination, id, code, body, deliveryErr, nil
}
