package codec

import "encoding/binary"

// PutI8 encodes a signed 8-bit integer (type 1).
func (e *Encoder) PutI8(v int8) {
	e.writeTag(TypeI8, 0, []byte{byte(v)})
}

// I8 decodes a signed 8-bit integer (type 1).
func (d *Decoder) I8() (int8, error) {
	_, payload, err := d.readTag(TypeI8)
	if err != nil {
		return 0, err
	}
	return int8(payload[0]), nil
}

// PutI16 encodes a signed 16-bit integer (type 2), little-endian.
func (e *Encoder) PutI16(v int16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], uint16(v))
	e.writeTag(TypeI16, 0, b[:])
}

// I16 decodes a signed 16-bit integer (type 2).
func (d *Decoder) I16() (int16, error) {
	_, payload, err := d.readTag(TypeI16)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(payload)), nil
}

// PutI32 encodes a signed 32-bit integer (type 3), little-endian.
func (e *Encoder) PutI32(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.writeTag(TypeI32, 0, b[:])
}

// I32 decodes a signed 32-bit integer (type 3).
func (d *Decoder) I32() (int32, error) {
	_, payload, err := d.readTag(TypeI32)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(payload)), nil
}

// PutU8 encodes an unsigned 8-bit integer (type 4).
func (e *Encoder) PutU8(v uint8) {
	e.writeTag(TypeU8, 0, []byte{v})
}

// U8 decodes an unsigned 8-bit integer (type 4).
func (d *Decoder) U8() (uint8, error) {
	_, payload, err := d.readTag(TypeU8)
	if err != nil {
		return 0, err
	}
	return payload[0], nil
}

// PutU16 encodes an unsigned 16-bit integer (type 5), little-endian.
func (e *Encoder) PutU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.writeTag(TypeU16, 0, b[:])
}

// U16 decodes an unsigned 16-bit integer (type 5).
func (d *Decoder) U16() (uint16, error) {
	_, payload, err := d.readTag(TypeU16)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(payload), nil
}

// PutU32 encodes an unsigned 32-bit integer (type 6), little-endian.
func (e *Encoder) PutU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.writeTag(TypeU32, 0, b[:])
}

// U32 decodes an unsigned 32-bit integer (type 6).
func (d *Decoder) U32() (uint32, error) {
	_, payload, err := d.readTag(TypeU32)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(payload), nil
}
