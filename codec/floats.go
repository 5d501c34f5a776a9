package codec

import (
	"encoding/binary"
	"math"
)

// PutF32 encodes a 32-bit IEEE-754 float (type 40), little-endian.
func (e *Encoder) PutF32(v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	e.writeTag(TypeF32, 0, b[:])
}

// F32 decodes a 32-bit IEEE-754 float (type 40).
func (d *Decoder) F32() (float32, error) {
	_, payload, err := d.readTag(TypeF32)
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(binary.LittleEndian.Uint32(payload)), nil
}
