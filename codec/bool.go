package codec

// PutBool encodes a boolean (type 23) as a single unpadded byte.
func (e *Encoder) PutBool(v bool) {
	var b byte
	if v {
		b = 1
	}
	e.writeTag(TypeBool, 0, []byte{b})
}

// Bool decodes a boolean (type 23). Any nonzero payload byte is true.
func (d *Decoder) Bool() (bool, error) {
	_, payload, err := d.readTag(TypeBool)
	if err != nil {
		return false, err
	}
	if len(payload) == 0 {
		return false, &DecodeError{Kind: ShortRead, Detail: "bool payload is empty"}
	}
	return payload[0] != 0, nil
}
