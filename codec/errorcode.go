package codec

import "encoding/binary"

// PutErrorCode encodes a result/error code (type 33) as a raw u16.
func (e *Encoder) PutErrorCode(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.writeTag(TypeErrorCode, 0, b[:])
}

// ErrorCode decodes a result/error code (type 33).
func (d *Decoder) ErrorCode() (uint16, error) {
	_, payload, err := d.readTag(TypeErrorCode)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(payload), nil
}
