package wire

import (
	"encoding/binary"
	"fmt"
)

// Message is an opcode-tagged byte payload with independent write and read
// cursors. A sender builds one with the typed Write* methods (which append
// and advance the implicit write cursor, i.e. the buffer length); a
// receiver or handler consumes it with the typed Read* methods, which
// advance a separate read cursor. The invariant readCursor <= len(payload)
// holds at every call.
type Message struct {
	opcode  Opcode
	payload []byte
	readPos int
	massive bool
}

// NewMessage creates an empty message targeting opcode.
func NewMessage(opcode Opcode) *Message {
	return &Message{opcode: opcode}
}

// NewMessageWithCapacity creates an empty message with preallocated capacity.
func NewMessageWithCapacity(opcode Opcode, capacityHint int) *Message {
	return &Message{opcode: opcode, payload: make([]byte, 0, capacityHint)}
}

// NewMessageFromBytes wraps an already-decoded payload for reading. The
// read cursor starts at zero; the write cursor (len(payload)) is wherever
// the caller left it, so further Write* calls append after the existing
// bytes.
func NewMessageFromBytes(opcode Opcode, payload []byte) *Message {
	return &Message{opcode: opcode, payload: payload}
}

// ID returns the message's opcode.
func (m *Message) ID() Opcode { return m.opcode }

// SetID retargets the message to a different opcode.
func (m *Message) SetID(op Opcode) { m.opcode = op }

// Size returns the current payload length.
func (m *Message) Size() uint16 { return uint16(len(m.payload)) }

// Massive reports whether the sender requested MASSIVE fragmentation.
func (m *Message) Massive() bool { return m.massive }

// SetMassive marks the message for MASSIVE fragmentation on send.
func (m *Message) SetMassive(v bool) { m.massive = v }

// AsDataSpan returns a read-only view of the full payload, for codec use.
func (m *Message) AsDataSpan() []byte { return m.payload }

// AsDataSpanMut returns a mutable view of the full payload, for codec use.
func (m *Message) AsDataSpanMut() []byte { return m.payload }

// ResetRead rewinds the read cursor to the start of the payload.
func (m *Message) ResetRead() { m.readPos = 0 }

// Remaining returns the number of unread bytes.
func (m *Message) Remaining() int { return len(m.payload) - m.readPos }

func (m *Message) need(n int) error {
	if m.readPos+n > len(m.payload) {
		return fmt.Errorf("%w: read past end (need %d, have %d)", ErrMalformed, n, m.Remaining())
	}
	return nil
}

// WriteUint8 appends a single byte.
func (m *Message) WriteUint8(v uint8) { m.payload = append(m.payload, v) }

// WriteUint16 appends a little-endian u16.
func (m *Message) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	m.payload = append(m.payload, b[:]...)
}

// WriteUint32 appends a little-endian u32.
func (m *Message) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	m.payload = append(m.payload, b[:]...)
}

// WriteUint64 appends a little-endian u64.
func (m *Message) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	m.payload = append(m.payload, b[:]...)
}

// WriteBytes appends raw bytes verbatim.
func (m *Message) WriteBytes(b []byte) { m.payload = append(m.payload, b...) }

// WriteString appends a u16-length-prefixed UTF-8 string.
func (m *Message) WriteString(s string) {
	m.WriteUint16(uint16(len(s)))
	m.payload = append(m.payload, s...)
}

// ReadUint8 reads and consumes one byte.
func (m *Message) ReadUint8() (uint8, error) {
	if err := m.need(1); err != nil {
		return 0, err
	}
	v := m.payload[m.readPos]
	m.readPos++
	return v, nil
}

// ReadUint16 reads and consumes a little-endian u16.
func (m *Message) ReadUint16() (uint16, error) {
	if err := m.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(m.payload[m.readPos:])
	m.readPos += 2
	return v, nil
}

// ReadUint32 reads and consumes a little-endian u32.
func (m *Message) ReadUint32() (uint32, error) {
	if err := m.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(m.payload[m.readPos:])
	m.readPos += 4
	return v, nil
}

// ReadUint64 reads and consumes a little-endian u64.
func (m *Message) ReadUint64() (uint64, error) {
	if err := m.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(m.payload[m.readPos:])
	m.readPos += 8
	return v, nil
}

// ReadBytes reads and consumes n raw bytes.
func (m *Message) ReadBytes(n int) ([]byte, error) {
	if err := m.need(n); err != nil {
		return nil, err
	}
	b := m.payload[m.readPos : m.readPos+n]
	m.readPos += n
	return b, nil
}

// ReadString reads and consumes a u16-length-prefixed UTF-8 string.
func (m *Message) ReadString() (string, error) {
	n, err := m.ReadUint16()
	if err != nil {
		return "", err
	}
	b, err := m.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
