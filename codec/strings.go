package codec

// PutString encodes a UTF-8 string (type 15) with a single trailing
// NUL pad byte, the default mode.
func (e *Encoder) PutString(s string) {
	payload := make([]byte, len(s)+1)
	copy(payload, s)
	e.writeTag(TypeString, 0, payload)
}

// String decodes a UTF-8 string (type 15). The advertised length
// includes the trailing pad: 1 byte by default, 2 when flags&1 is
// set and the payload is non-empty.
func (d *Decoder) String() (string, error) {
	flags, payload, err := d.readTag(TypeString)
	if err != nil {
		return "", err
	}
	return trimPad(flags, payload), nil
}

// PutStringArray encodes a sequence of strings (type 34) as a
// NUL-delimited UTF-8 concatenation, one NUL terminator per entry
// including the last.
func (e *Encoder) PutStringArray(vs []string) {
	var payload []byte
	for _, s := range vs {
		payload = append(payload, s...)
		payload = append(payload, 0)
	}
	e.writeTag(TypeStringArray, 0, payload)
}

// StringArray decodes a sequence of strings (type 34) by splitting
// the payload at NUL bytes. An empty payload yields an empty
// sequence, not a one-element sequence holding an empty string.
func (d *Decoder) StringArray() ([]string, error) {
	flags, payload, err := d.readTag(TypeStringArray)
	if err != nil {
		return nil, err
	}
	if flags&FlagPad != 0 && len(payload) > 0 {
		payload = payload[:len(payload)-1]
	}
	if len(payload) == 0 {
		return nil, nil
	}
	if payload[len(payload)-1] == 0 {
		payload = payload[:len(payload)-1]
	}
	var out []string
	start := 0
	for i, b := range payload {
		if b == 0 {
			out = append(out, string(payload[start:i]))
			start = i + 1
		}
	}
	out = append(out, string(payload[start:]))
	return out, nil
}

// trimPad strips the trailing NUL pad from a string payload: 1 byte
// by default, 2 when FlagPad is set and the payload is non-empty.
func trimPad(flags uint8, payload []byte) string {
	if len(payload) == 0 {
		return ""
	}
	n := 1
	if flags&FlagPad != 0 {
		n = 2
	}
	if n > len(payload) {
		n = len(payload)
	}
	return string(payload[:len(payload)-n])
}
