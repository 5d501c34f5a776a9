package codec

import "encoding/binary"

// PutEnum encodes an enum member (type 32) by its raw i32 wire value.
func (e *Encoder) PutEnum(v int32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	e.writeTag(TypeEnum, 0, b[:])
}

// Enum decodes an enum member (type 32) and validates it against the
// set of values the caller's Go enum type declares, since the wire
// carries no symbolic names, only the raw i32.
func (d *Decoder) Enum(valid ...int32) (int32, error) {
	_, payload, err := d.readTag(TypeEnum)
	if err != nil {
		return 0, err
	}
	v := int32(binary.LittleEndian.Uint32(payload))
	if len(valid) == 0 {
		return v, nil
	}
	for _, ok := range valid {
		if v == ok {
			return v, nil
		}
	}
	return 0, &DecodeError{Kind: InvalidEnum, Value: v}
}

// PutEnumArray encodes an array of enum members (type 35) as a
// concatenation of raw i32 wire values.
func (e *Encoder) PutEnumArray(vs []int32) {
	payload := make([]byte, len(vs)*4)
	for i, v := range vs {
		binary.LittleEndian.PutUint32(payload[i*4:], uint32(v))
	}
	e.writeTag(TypeEnumArray, 0, payload)
}

// EnumArray decodes an array of enum members (type 35), validating
// each one against valid when non-empty.
func (d *Decoder) EnumArray(valid ...int32) ([]int32, error) {
	_, payload, err := d.readTag(TypeEnumArray)
	if err != nil {
		return nil, err
	}
	if len(payload)%4 != 0 {
		return nil, &DecodeError{Kind: MalformedArray, Detail: "enum array payload is not a multiple of 4 bytes"}
	}
	out := make([]int32, len(payload)/4)
	for i := range out {
		v := int32(binary.LittleEndian.Uint32(payload[i*4:]))
		if len(valid) > 0 {
			ok := false
			for _, want := range valid {
				if v == want {
					ok = true
					break
				}
			}
			if !ok {
				return nil, &DecodeError{Kind: InvalidEnum, Value: v}
			}
		}
		out[i] = v
	}
	return out, nil
}
