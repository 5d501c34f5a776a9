package codec

import (
	"encoding/binary"
	"fmt"
)

// ObjectAddress is the three-16-bit-word identifier of an instrument
// object: (module_id, node_id, object_id), each little-endian on the
// wire. It is immutable, comparable, and used directly as a map key by
// the request multiplexer.
type ObjectAddress struct {
	ModuleID uint16
	NodeID   uint16
	ObjectID uint16
}

// AddressLen is the wire length of an ObjectAddress: three u16 words.
const AddressLen = 6

// ClientAddress returns the address the session identifies itself
// with, assigned during the connection handshake.
func ClientAddress(clientID uint16) ObjectAddress {
	return ObjectAddress{ModuleID: 2, NodeID: clientID, ObjectID: 65535}
}

// Bytes returns the little-endian wire encoding of the address.
func (a ObjectAddress) Bytes() []byte {
	b := make([]byte, AddressLen)
	binary.LittleEndian.PutUint16(b[0:], a.ModuleID)
	binary.LittleEndian.PutUint16(b[2:], a.NodeID)
	binary.LittleEndian.PutUint16(b[4:], a.ObjectID)
	return b
}

// PutAddress appends the wire encoding of a to e.
func (e *Encoder) PutAddress(a ObjectAddress) {
	e.raw(a.Bytes())
}

// ParseObjectAddress reads an ObjectAddress from the front of b.
func ParseObjectAddress(b []byte) (ObjectAddress, error) {
	if len(b) < AddressLen {
		return ObjectAddress{}, fmt.Errorf("codec: short object address: need %d bytes, have %d", AddressLen, len(b))
	}
	return ObjectAddress{
		ModuleID: binary.LittleEndian.Uint16(b[0:]),
		NodeID:   binary.LittleEndian.Uint16(b[2:]),
		ObjectID: binary.LittleEndian.Uint16(b[4:]),
	}, nil
}

// TakeAddress reads an ObjectAddress from the front of the Decoder.
func (d *Decoder) TakeAddress() (ObjectAddress, error) {
	b, err := d.take(AddressLen)
	if err != nil {
		return ObjectAddress{}, err
	}
	return ParseObjectAddress(b)
}

func (a ObjectAddress) String() string {
	return fmt.Sprintf("%d-%d-%d", a.ModuleID, a.NodeID, a.ObjectID)
}
