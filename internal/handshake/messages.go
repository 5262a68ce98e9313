package handshake

import "github.com/silkrelay/silkproto/internal/wire"

// setupTag distinguishes the four SETUP exchange messages; all of them
// share wire.OpcodeSetup since the field is spoken for before any handler
// registry exists to route on opcode alone.
type setupTag uint8

const (
	tagServerHello setupTag = 1
	tagClientKey   setupTag = 2
	tagServerKey   setupTag = 3
	tagAck         setupTag = 4
)

type serverHello struct {
	options   uint8
	prime     uint32
	generator uint32
	publicKey uint32
}

func encodeServerHello(h serverHello) *wire.Message {
	m := wire.NewMessage(wire.OpcodeSetup)
	m.WriteUint8(uint8(tagServerHello))
	m.WriteUint8(h.options)
	m.WriteUint32(h.prime)
	m.WriteUint32(h.generator)
	m.WriteUint32(h.publicKey)
	return m
}

func decodeServerHello(m *wire.Message) (serverHello, error) {
	var h serverHello
	tag, err := m.ReadUint8()
	if err != nil {
		return h, err
	}
	if setupTag(tag) != tagServerHello {
		return h, wire.ErrMalformed
	}
	if h.options, err = m.ReadUint8(); err != nil {
		return h, err
	}
	if h.prime, err = m.ReadUint32(); err != nil {
		return h, err
	}
	if h.generator, err = m.ReadUint32(); err != nil {
		return h, err
	}
	if h.publicKey, err = m.ReadUint32(); err != nil {
		return h, err
	}
	return h, nil
}

func encodeClientKey(publicKey uint32) *wire.Message {
	m := wire.NewMessage(wire.OpcodeSetup)
	m.WriteUint8(uint8(tagClientKey))
	m.WriteUint32(publicKey)
	return m
}

func decodeClientKey(m *wire.Message) (uint32, error) {
	tag, err := m.ReadUint8()
	if err != nil {
		return 0, err
	}
	if setupTag(tag) != tagClientKey {
		return 0, wire.ErrMalformed
	}
	return m.ReadUint32()
}

func encodeServerKey(challenge [8]byte) *wire.Message {
	m := wire.NewMessage(wire.OpcodeSetup)
	m.WriteUint8(uint8(tagServerKey))
	m.WriteBytes(challenge[:])
	return m
}

func decodeServerKey(m *wire.Message) ([8]byte, error) {
	var out [8]byte
	tag, err := m.ReadUint8()
	if err != nil {
		return out, err
	}
	if setupTag(tag) != tagServerKey {
		return out, wire.ErrMalformed
	}
	b, err := m.ReadBytes(8)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}

func encodeAck(response [8]byte) *wire.Message {
	m := wire.NewMessage(wire.OpcodeSetup)
	m.WriteUint8(uint8(tagAck))
	m.WriteBytes(response[:])
	return m
}

func decodeAck(m *wire.Message) ([8]byte, error) {
	var out [8]byte
	tag, err := m.ReadUint8()
	if err != nil {
		return out, err
	}
	if setupTag(tag) != tagAck {
		return out, wire.ErrMalformed
	}
	b, err := m.ReadBytes(8)
	if err != nil {
		return out, err
	}
	copy(out[:], b)
	return out, nil
}
