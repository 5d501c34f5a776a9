// Package wire owns the TCP socket and the outer length-prefixed
// frame that multiplexes several logical streams ("protocols") over
// one connection. It knows nothing about the inner frame layout used
// by any one protocol; that is each subscriber's business.
package wire

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultVersion is the outer-frame version byte used when no
// version is configured.
const DefaultVersion uint8 = 48

// outerHeaderLen is the number of bytes stripped before a frame's
// payload is handed to a subscriber: length(2) + protocol(1) +
// version(1) + reserved(2).
const outerHeaderLen = 6

// mailboxDepth bounds each per-protocol subscriber channel. A full
// mailbox suspends the read loop rather than drop a frame.
const mailboxDepth = 100

// FramingError reports a frame too short for its fixed header or
// whose declared length disagrees with the bytes it carries. The read
// loop here does not return it (a frame for a protocol with no
// subscriber is logged and dropped); the mux package reports it for
// inner frames.
type FramingError struct {
	Detail string
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("wire: framing error: %s", e.Detail)
}

// Conn is a framed TCP connection: it reassembles inbound bytes into
// whole outer frames and routes each one, by protocol byte, to the
// subscriber registered for it. It writes outbound frames atomically,
// so callers on different goroutines never interleave partial
// writes.
type Conn struct {
	rwc     net.Conn
	version uint8
	log     logrus.FieldLogger

	writeMu sync.Mutex
	bw      *bufio.Writer

	subMu sync.Mutex
	subs  map[uint8]chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	loopDone  chan struct{}
}

// Dial opens a TCP connection to addr and starts its read loop.
func Dial(network, addr string, version uint8, log logrus.FieldLogger) (*Conn, error) {
	rwc, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Conn{
		rwc:      rwc,
		version:  version,
		log:      log,
		bw:       bufio.NewWriter(rwc),
		subs:     make(map[uint8]chan []byte),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Subscribe registers ch to receive the payload of every inbound
// frame carrying the given protocol byte. A second call for the same
// protocol replaces the prior subscriber; its channel receives no
// further frames.
func (c *Conn) Subscribe(protocol uint8) <-chan []byte {
	ch := make(chan []byte, mailboxDepth)
	c.subMu.Lock()
	c.subs[protocol] = ch
	c.subMu.Unlock()
	return ch
}

// Unsubscribe removes the subscriber for protocol, if any.
func (c *Conn) Unsubscribe(protocol uint8) {
	c.subMu.Lock()
	delete(c.subs, protocol)
	c.subMu.Unlock()
}

// Write frames body under the given protocol byte and writes it to
// the socket as a single atomic write.
func (c *Conn) Write(protocol uint8, body []byte) error {
	var hdr [outerHeaderLen]byte
	binary.LittleEndian.PutUint16(hdr[0:], uint16(4+len(body)))
	hdr[2] = protocol
	hdr[3] = c.version
	hdr[4] = 0
	hdr[5] = 0

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if _, err := c.bw.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := c.bw.Write(body); err != nil {
		return err
	}
	return c.bw.Flush()
}

// Close stops the read loop, closes every subscriber channel, and
// closes the underlying socket.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.rwc.Close()
		<-c.loopDone

		c.subMu.Lock()
		for protocol, ch := range c.subs {
			close(ch)
			delete(c.subs, protocol)
		}
		c.subMu.Unlock()
	})
	return err
}

// SetDeadline forwards to the underlying socket.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.rwc.SetDeadline(t)
}

// readState is the outer-frame reassembly state machine: waitLen
// needs the 2-byte length prefix, waitPayload needs the remaining
// total-2 bytes of the frame.
type readState int

const (
	waitLen readState = iota
	waitPayload
)

func (c *Conn) readLoop() {
	defer close(c.loopDone)
	// Once the loop stops, Close the connection so every subscriber
	// channel closes; when Close is what stopped the loop, this second
	// call does nothing.
	defer func() { go c.Close() }()

	br := bufio.NewReader(c.rwc)
	state := waitLen
	var lenBuf [2]byte
	var payloadLen int

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		switch state {
		case waitLen:
			if _, err := readFull(br, lenBuf[:]); err != nil {
				c.logReadErr(err)
				return
			}
			payloadLen = int(binary.LittleEndian.Uint16(lenBuf[:]))
			state = waitPayload

		case waitPayload:
			frame := make([]byte, payloadLen)
			if _, err := readFull(br, frame); err != nil {
				c.logReadErr(err)
				return
			}
			c.deliver(frame)
			state = waitLen
		}
	}
}

// deliver routes one reassembled frame (everything after the length
// prefix) to its subscriber. frame[0] is the protocol byte; the
// caller-visible payload drops the remaining 4 header bytes.
func (c *Conn) deliver(frame []byte) {
	if len(frame) < outerHeaderLen-2 {
		c.log.WithField("length", len(frame)).Warn("piglet/wire: short frame, dropping")
		return
	}
	protocol := frame[0]
	payload := frame[outerHeaderLen-2:]

	c.subMu.Lock()
	ch, ok := c.subs[protocol]
	c.subMu.Unlock()

	if !ok {
		c.log.WithField("protocol", protocol).Warn("piglet/wire: no subscriber for protocol, dropping frame")
		return
	}

	select {
	case ch <- payload:
	case <-c.closed:
	}
}

func (c *Conn) logReadErr(err error) {
	select {
	case <-c.closed:
		// Closing the socket unblocks the pending read; this is
		// expected shutdown noise, not a framing failure.
	default:
		c.log.WithError(err).Warn("piglet/wire: read loop stopped")
	}
}

// readFull reads exactly len(buf) bytes, mirroring io.ReadFull but
// kept local so callers needn't pull in io for one call site.
func readFull(br *bufio.Reader, buf []byte) (int, error) {
	n := 0
	for n < len(buf) {
		m, err := br.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
