// Package codec implements the tagged value vocabulary used to encode
// method arguments, return values, and introspection replies on the
// wire. Every value is self-describing: a type byte, a flags byte, a
// 16-bit little-endian length, and that many bytes of payload.
//
// The codec is purely byte-oriented and synchronous; it never owns a
// socket, in the style of the frame transport's own separation of
// wire framing from connection management.
package codec

import (
	"encoding/binary"
	"fmt"
)

// TypeID identifies the wire representation of a value.
type TypeID uint8

const (
	TypeI8          TypeID = 1
	TypeI16         TypeID = 2
	TypeI32         TypeID = 3
	TypeU8          TypeID = 4
	TypeU16         TypeID = 5
	TypeU32         TypeID = 6
	TypeString      TypeID = 15
	TypeByteArray   TypeID = 22
	TypeBool        TypeID = 23
	TypeI16Array    TypeID = 25
	TypeU16Array    TypeID = 26
	TypeI32Array    TypeID = 27
	TypeU32Array    TypeID = 28
	TypeBoolArray   TypeID = 29
	TypeStruct      TypeID = 30
	TypeStructArray TypeID = 31
	TypeEnum        TypeID = 32
	TypeErrorCode   TypeID = 33
	TypeStringArray TypeID = 34
	TypeEnumArray   TypeID = 35
	TypeF32         TypeID = 40
)

func (t TypeID) String() string {
	switch t {
	case TypeI8:
		return "i8"
	case TypeI16:
		return "i16"
	case TypeI32:
		return "i32"
	case TypeU8:
		return "u8"
	case TypeU16:
		return "u16"
	case TypeU32:
		return "u32"
	case TypeString:
		return "string"
	case TypeByteArray:
		return "byte_array"
	case TypeBool:
		return "bool"
	case TypeI16Array:
		return "i16_array"
	case TypeU16Array:
		return "u16_array"
	case TypeI32Array:
		return "i32_array"
	case TypeU32Array:
		return "u32_array"
	case TypeBoolArray:
		return "bool_array"
	case TypeStruct:
		return "struct"
	case TypeStructArray:
		return "struct_array"
	case TypeEnum:
		return "enum"
	case TypeErrorCode:
		return "error_code"
	case TypeStringArray:
		return "string_array"
	case TypeEnumArray:
		return "enum_array"
	case TypeF32:
		return "f32"
	default:
		return fmt.Sprintf("type(%d)", uint8(t))
	}
}

// FlagPad is set on string, byte-array, bool-array, and string-array
// values when the encoder added a second padding byte (strings,
// string arrays) or a single padding byte (byte arrays, bool arrays)
// after the payload. The codec decodes both modes but always encodes
// with flags 0: strings and string arrays end in a single NUL, byte
// arrays and bool arrays carry no pad.
const FlagPad uint8 = 1

// DecodeErrorKind classifies why a Decode call failed.
type DecodeErrorKind int

const (
	// WrongType means the type byte on the wire did not match the
	// type being decoded.
	WrongType DecodeErrorKind = iota
	// InvalidEnum means an enum's raw i32 value is not a member of
	// the caller-supplied set of valid values.
	InvalidEnum
	// MalformedArray means a fixed-size-element array's payload
	// length was not a multiple of the element size.
	MalformedArray
	// ShortRead means fewer bytes remained than the declared length
	// required.
	ShortRead
	// TrailingBytes means a struct or struct-array element body was
	// not fully consumed by its field decoders.
	TrailingBytes
)

// DecodeError reports why a value failed to decode.
type DecodeError struct {
	Kind     DecodeErrorKind
	Expected TypeID
	Got      TypeID
	Value    int32
	Detail   string
}

func (e *DecodeError) Error() string {
	switch e.Kind {
	case WrongType:
		return fmt.Sprintf("codec: expected type %s, got %s", e.Expected, e.Got)
	case InvalidEnum:
		return fmt.Sprintf("codec: value %d is not a member of the declared enum", e.Value)
	case MalformedArray:
		return fmt.Sprintf("codec: array payload length is not divisible by the element size: %s", e.Detail)
	case ShortRead:
		return fmt.Sprintf("codec: short read: %s", e.Detail)
	case TrailingBytes:
		return fmt.Sprintf("codec: %s", e.Detail)
	default:
		return "codec: decode error"
	}
}

// Encoder accumulates the wire bytes of a sequence of tagged values.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the bytes written so far. The returned slice is owned
// by the Encoder; copy it if it must outlive further writes.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// writeTag appends a complete tagged value: type, flags, length, and
// payload.
func (e *Encoder) writeTag(t TypeID, flags uint8, payload []byte) {
	var hdr [4]byte
	hdr[0] = uint8(t)
	hdr[1] = flags
	binary.LittleEndian.PutUint16(hdr[2:], uint16(len(payload)))
	e.buf = append(e.buf, hdr[:]...)
	e.buf = append(e.buf, payload...)
}

// raw appends bytes without any tagging, used for the handful of
// wire structures (ObjectAddress, struct-array element prefixes) that
// are not part of the tagged value vocabulary.
func (e *Encoder) raw(b []byte) {
	e.buf = append(e.buf, b...)
}

// putU16Raw appends an untagged little-endian u16, used for the
// element length prefixes inside struct-array payloads.
func (e *Encoder) putU16Raw(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.raw(b[:])
}

// Decoder reads tagged values from a fixed byte slice, advancing a
// cursor. A Decoder never reads past the slice it was given: callers
// that need to bound a nested decode (struct fields, struct-array
// elements) construct a new Decoder over the relevant sub-slice.
type Decoder struct {
	buf []byte
	off int
}

// NewDecoder returns a Decoder reading from b.
func NewDecoder(b []byte) *Decoder {
	return &Decoder{buf: b}
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.off
}

// Bytes returns the unread tail of the buffer without consuming it.
func (d *Decoder) Bytes() []byte {
	return d.buf[d.off:]
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, &DecodeError{Kind: ShortRead, Detail: fmt.Sprintf("need %d bytes, have %d", n, d.Remaining())}
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// readTag reads a type/flags/length header and returns the payload
// slice (a view into the Decoder's buffer, not a copy).
func (d *Decoder) readTag(expected TypeID) (flags uint8, payload []byte, err error) {
	hdr, err := d.take(4)
	if err != nil {
		return 0, nil, err
	}

	got := TypeID(hdr[0])
	if got != expected {
		return 0, nil, &DecodeError{Kind: WrongType, Expected: expected, Got: got}
	}

	flags = hdr[1]
	length := int(binary.LittleEndian.Uint16(hdr[2:]))
	payload, err = d.take(length)
	return flags, payload, err
}

// takeU16Raw reads an untagged little-endian u16 from the front of
// the Decoder.
func (d *Decoder) takeU16Raw() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}
