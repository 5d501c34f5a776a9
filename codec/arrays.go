package codec

import "encoding/binary"

// PutI16Array encodes a fixed-width array of i16 (type 25).
func (e *Encoder) PutI16Array(vs []int16) {
	payload := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(payload[i*2:], uint16(v))
	}
	e.writeTag(TypeI16Array, 0, payload)
}

// I16Array decodes a fixed-width array of i16 (type 25).
func (d *Decoder) I16Array() ([]int16, error) {
	_, payload, err := d.readTag(TypeI16Array)
	if err != nil {
		return nil, err
	}
	if len(payload)%2 != 0 {
		return nil, &DecodeError{Kind: MalformedArray, Detail: "i16 array payload is not a multiple of 2 bytes"}
	}
	out := make([]int16, len(payload)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(payload[i*2:]))
	}
	return out, nil
}

// PutU16Array encodes a fixed-width array of u16 (type 26).
func (e *Encoder) PutU16Array(vs []uint16) {
	payload := make([]byte, len(vs)*2)
	for i, v := range vs {
		binary.LittleEndian.PutUint16(payload[i*2:], v)
	}
	e.writeTag(TypeU16Array, 0, payload)
}

// U16Array decodes a fixed-width array of u16 (type 26).
func (d *Decoder) U16Array() ([]uint16, error) {
	_, payload, err := d.readTag(TypeU16Array)
	if err != nil {
		return nil, err
	}
	if len(payload)%2 != 0 {
		return nil, &DecodeError{Kind: MalformedArray, Detail: "u16 array payload is not a multiple of 2 bytes"}
	}
	out := make([]uint16, len(payload)/2)
	for i := range out {
		out[i] = binary.LittleEndian.Uint16(payload[i*2:])
	}
	return out, nil
}

// PutI32Array encodes a fixed-width array of i32 (type 27).
func (e *Encoder) PutI32Array(vs []int32) {
	payload := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(payload[i*4:], uint32(v))
	}
	e.writeTag(TypeI32Array, 0, payload)
}

// I32Array decodes a fixed-width array of i32 (type 27).
func (d *Decoder) I32Array() ([]int32, error) {
	_, payload, err := d.readTag(TypeI32Array)
	if err != nil {
		return nil, err
	}
	if len(payload)%4 != 0 {
		return nil, &DecodeError{Kind: MalformedArray, Detail: "i32 array payload is not a multiple of 4 bytes"}
	}
	out := make([]int32, len(payload)/4)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return out, nil
}

// PutU32Array encodes a fixed-width array of u32 (type 28).
func (e *Encoder) PutU32Array(vs []uint32) {
	payload := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(payload[i*4:], v)
	}
	e.writeTag(TypeU32Array, 0, payload)
}

// U32Array decodes a fixed-width array of u32 (type 28).
func (d *Decoder) U32Array() ([]uint32, error) {
	_, payload, err := d.readTag(TypeU32Array)
	if err != nil {
		return nil, err
	}
	if len(payload)%4 != 0 {
		return nil, &DecodeError{Kind: MalformedArray, Detail: "u32 array payload is not a multiple of 4 bytes"}
	}
	out := make([]uint32, len(payload)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(payload[i*4:])
	}
	return out, nil
}

// PutBoolArray encodes an array of bool (type 29), one byte per
// element, unpadded.
func (e *Encoder) PutBoolArray(vs []bool) {
	payload := make([]byte, len(vs))
	for i, v := range vs {
		if v {
			payload[i] = 1
		}
	}
	e.writeTag(TypeBoolArray, 0, payload)
}

// BoolArray decodes an array of bool (type 29).
func (d *Decoder) BoolArray() ([]bool, error) {
	flags, payload, err := d.readTag(TypeBoolArray)
	if err != nil {
		return nil, err
	}
	if flags&FlagPad != 0 && len(payload) > 0 {
		payload = payload[:len(payload)-1]
	}
	out := make([]bool, len(payload))
	for i, b := range payload {
		out[i] = b != 0
	}
	return out, nil
}
