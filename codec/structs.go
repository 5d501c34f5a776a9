package codec

// PutStruct encodes a struct (type 30) from a pre-built field
// encoder. The caller writes each field's tagged value to a fresh
// Encoder in declared field order, then hands its bytes here.
func (e *Encoder) PutStruct(fields *Encoder) {
	e.writeTag(TypeStruct, 0, fields.Bytes())
}

// Struct decodes a struct (type 30) and returns a Decoder bounded to
// exactly the struct's payload, so field decoders cannot read past
// the struct's own length even if the caller's field list is wrong.
func (d *Decoder) Struct() (*Decoder, error) {
	_, payload, err := d.readTag(TypeStruct)
	if err != nil {
		return nil, err
	}
	return NewDecoder(payload), nil
}

// PutStructArray encodes an array of structs (type 31). Each element
// is length-prefixed with its own u16_le so a reader can skip
// elements it does not understand.
func (e *Encoder) PutStructArray(elements []*Encoder) {
	inner := NewEncoder()
	for _, el := range elements {
		inner.putU16Raw(uint16(el.Len()))
		inner.raw(el.Bytes())
	}
	e.writeTag(TypeStructArray, 0, inner.Bytes())
}

// StructArray decodes an array of structs (type 31), returning one
// bounded Decoder per element in wire order.
func (d *Decoder) StructArray() ([]*Decoder, error) {
	_, payload, err := d.readTag(TypeStructArray)
	if err != nil {
		return nil, err
	}
	inner := NewDecoder(payload)
	var out []*Decoder
	for inner.Remaining() > 0 {
		n, err := inner.takeU16Raw()
		if err != nil {
			return nil, err
		}
		b, err := inner.take(int(n))
		if err != nil {
			return nil, err
		}
		out = append(out, NewDecoder(b))
	}
	return out, nil
}

// RequireEmpty reports a TrailingBytes DecodeError if the Decoder has
// unread bytes. Struct field decoders call this after consuming every
// declared field, so a malformed or mismatched schema is caught
// instead of silently ignored.
func (d *Decoder) RequireEmpty() error {
	if d.Remaining() != 0 {
		return &DecodeError{Kind: TrailingBytes, Detail: "struct payload has unread trailing bytes"}
	}
	return nil
}
