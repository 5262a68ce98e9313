// Package wire defines the primitive building blocks of the Silkroad-style
// session protocol: opcodes, the mutable message buffer, and the Blowfish/
// checksum primitives used by the frame codec. Nothing in this package
// depends on connection or handshake state — it is pure data and math.
package wire

import (
	"errors"
	"fmt"
)

// Opcode identifies a message's payload schema and routing.
type Opcode uint16

const (
	// OpcodeSetup carries handshake frames. The exact numeric value used by
	// a given Silkroad-derived peer is deployment-specific; this core
	// defines one fixed value so every component agrees on it. Swapping in
	// a different peer's reserved value is a one-constant change.
	OpcodeSetup Opcode = 0x5000

	// OpcodeMassive carries fragmented-message envelopes (see package session).
	OpcodeMassive Opcode = 0x5001
)

// PayloadMax is the largest payload a single non-MASSIVE frame may carry.
// 4096 minus the codec's header overhead, matching existing peers.
const PayloadMax = 4089

// ErrMalformed is the sentinel wrapped by every frame-level decode and
// bounds-check failure. It is always fatal to the session that observes it.
var ErrMalformed = errors.New("malformed message")

// ErrFrameTooLarge is a specialization of ErrMalformed for oversized frames.
var ErrFrameTooLarge = fmt.Errorf("%w: frame payload exceeds maximum size", ErrMalformed)
