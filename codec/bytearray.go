package codec

// PutByteArray encodes an opaque byte array (type 22) as raw bytes,
// unpadded. Unlike strings, byte arrays carry no padding by default;
// FlagPad is only ever set on values this codec decodes, never on
// ones it produces.
func (e *Encoder) PutByteArray(b []byte) {
	e.writeTag(TypeByteArray, 0, b)
}

// ByteArray decodes an opaque byte array (type 22), dropping the
// trailing padding byte when present. The returned slice is a copy;
// it does not alias the Decoder's buffer.
func (d *Decoder) ByteArray() ([]byte, error) {
	flags, payload, err := d.readTag(TypeByteArray)
	if err != nil {
		return nil, err
	}
	if flags&FlagPad != 0 && len(payload) > 0 {
		payload = payload[:len(payload)-1]
	}
	out := make([]byte, len(payload))
	copy(out, payload)
	return out, nil
}
