package session

import (
	"fmt"

	"github.com/silkrelay/silkproto/internal/wire"
)

// massiveFlag distinguishes the two frame kinds MASSIVE reassembly sees:
// one header frame announcing a chunk count and the wrapped opcode,
// followed by that many data frames.
const (
	massiveFlagHeader uint8 = 1
	massiveFlagData   uint8 = 0
)

// massiveState accumulates an in-progress MASSIVE reassembly. It belongs to
// exactly one Session and is only ever touched from that session's receive
// loop, so it needs no locking of its own.
type massiveState struct {
	active          bool
	innerOpcode     wire.Opcode
	remainingChunks uint16
	buf             []byte
}

func (ms *massiveState) reset() {
	ms.active = false
	ms.innerOpcode = 0
	ms.remainingChunks = 0
	ms.buf = nil
}

// absorbMassive feeds one decoded frame through MASSIVE reassembly. If m is
// not a MASSIVE frame it is returned unchanged. A MASSIVE header or a
// non-final data chunk consumes m and returns (nil, nil), meaning "wait for
// more". A final data chunk returns the fully reassembled inner message.
func (s *Session) absorbMassive(m *wire.Message) (*wire.Message, error) {
	if m.ID() != wire.OpcodeMassive {
		return m, nil
	}

	flag, err := m.ReadUint8()
	if err != nil {
		return nil, fmt.Errorf("session: massive frame missing flag: %w", err)
	}

	switch flag {
	case massiveFlagHeader:
		if s.massive.active {
			return nil, fmt.Errorf("session: %w: new MASSIVE header while one is pending", wire.ErrMalformed)
		}
		chunks, err := m.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("session: massive header missing chunk count: %w", err)
		}
		inner, err := m.ReadUint16()
		if err != nil {
			return nil, fmt.Errorf("session: massive header missing inner opcode: %w", err)
		}
		s.massive = massiveState{active: true, innerOpcode: wire.Opcode(inner), remainingChunks: chunks}
		if chunks == 0 {
			reassembled := wire.NewMessageFromBytes(s.massive.innerOpcode, nil)
			s.massive.reset()
			if s.metrics != nil {
				s.metrics.RecordMassiveReassembled()
			}
			return reassembled, nil
		}
		return nil, nil

	case massiveFlagData:
		if !s.massive.active {
			return nil, fmt.Errorf("session: %w: MASSIVE data chunk without a pending header", wire.ErrMalformed)
		}
		chunk, err := m.ReadBytes(m.Remaining())
		if err != nil {
			return nil, fmt.Errorf("session: massive data chunk: %w", err)
		}
		s.massive.buf = append(s.massive.buf, chunk...)
		if s.metrics != nil {
			s.metrics.RecordMassiveChunk()
		}
		s.massive.remainingChunks--
		if s.massive.remainingChunks == 0 {
			reassembled := wire.NewMessageFromBytes(s.massive.innerOpcode, s.massive.buf)
			s.massive.reset()
			if s.metrics != nil {
				s.metrics.RecordMassiveReassembled()
			}
			return reassembled, nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("session: %w: unknown MASSIVE flag %d", wire.ErrMalformed, flag)
	}
}

// sendMassive splits m's payload across a MASSIVE header frame and N data
// frames, each within wire.PayloadMax once the one-byte flag is accounted
// for.
func (s *Session) sendMassive(m *wire.Message) error {
	payload := m.AsDataSpan()
	const chunkSize = wire.PayloadMax - 1 // 1 byte reserved for the data flag
	total := len(payload)

	numChunks := total / chunkSize
	if total%chunkSize != 0 {
		numChunks++
	}
	if numChunks > 0xFFFF {
		return fmt.Errorf("session: message too large for MASSIVE framing (%d chunks)", numChunks)
	}

	header := wire.NewMessage(wire.OpcodeMassive)
	header.WriteUint8(massiveFlagHeader)
	header.WriteUint16(uint16(numChunks))
	header.WriteUint16(uint16(m.ID()))
	if err := s.sendFrame(header); err != nil {
		return fmt.Errorf("session: send MASSIVE header: %w", err)
	}

	if total == 0 {
		return nil
	}

	for off := 0; off < total; off += chunkSize {
		end := off + chunkSize
		if end > total {
			end = total
		}
		chunk := wire.NewMessage(wire.OpcodeMassive)
		chunk.WriteUint8(massiveFlagData)
		chunk.WriteBytes(payload[off:end])
		if err := s.sendFrame(chunk); err != nil {
			return fmt.Errorf("session: send MASSIVE chunk: %w", err)
		}
	}
	return nil
}
