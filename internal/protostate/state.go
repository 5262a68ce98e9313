// Package protostate holds the per-session protocol state shared between
// the frame codec and the handshake service: negotiated options, the
// derived Blowfish key, the count/CRC seeds, and the top-level state enum.
// It is written only by the handshake service and the codec's
// count-advance step, both on the session's single receive/send task —
// never concurrently (see spec §5).
package protostate

import "github.com/silkrelay/silkproto/internal/wire"

// Phase is the top-level handshake/session state.
type Phase int

const (
	PhaseWaitSetup Phase = iota
	PhaseHandshakeBegin
	PhaseHandshakeChallenge
	PhaseReady
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseWaitSetup:
		return "WAIT_SETUP"
	case PhaseHandshakeBegin:
		return "HANDSHAKE_BEGIN"
	case PhaseHandshakeChallenge:
		return "HANDSHAKE_CHALLENGE"
	case PhaseReady:
		return "READY"
	case PhaseClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Options is the bitset of negotiated handshake features.
type Options uint8

const (
	OptEncryption Options = 1 << iota
	OptErrorDetection
	OptKeyExchange
	OptKeyChallenge
)

// Has reports whether flag is set.
func (o Options) Has(flag Options) bool { return o&flag != 0 }

func (o Options) String() string {
	if o == 0 {
		return "none"
	}
	s := ""
	add := func(flag Options, name string) {
		if o.Has(flag) {
			if s != "" {
				s += "|"
			}
			s += name
		}
	}
	add(OptEncryption, "encryption")
	add(OptErrorDetection, "error_detection")
	add(OptKeyExchange, "key_exchange")
	add(OptKeyChallenge, "key_challenge")
	return s
}

// Role distinguishes the two handshake sides.
type Role int

const (
	RoleResponder Role = iota
	RoleInitiator
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// sequence is a deterministic per-frame byte generator. Two sequences
// seeded with the same byte always emit the same stream, which is what
// lets a sender's outgoing count and a receiver's expected count stay in
// lockstep across a reliable, ordered transport.
type sequence struct {
	v byte
}

func newSequence(seed byte) *sequence { return &sequence{v: seed} }

func (s *sequence) next() byte {
	s.v = s.v*171 + 13
	return s.v
}

// State is the mutable protocol state for one session.
type State struct {
	Role    Role
	Phase   Phase
	Options Options

	key     [8]byte
	haveKey bool
	cipher  *wire.Cipher

	countSeed byte
	crcSeed   byte
	sendSeq   *sequence
	recvSeq   *sequence
}

// NewResponder creates protocol state for the listening side of a session.
func NewResponder() *State {
	return &State{Role: RoleResponder, Phase: PhaseHandshakeBegin}
}

// NewInitiator creates protocol state for the dialing side of a session.
func NewInitiator() *State {
	return &State{Role: RoleInitiator, Phase: PhaseWaitSetup}
}

// InstallKey derives and installs the Blowfish cipher from the session key
// agreed during the handshake, and turns on the Encryption option.
func (s *State) InstallKey(key [8]byte) error {
	c, err := wire.NewCipher(key)
	if err != nil {
		return err
	}
	s.key = key
	s.cipher = c
	s.haveKey = true
	s.Options |= OptEncryption
	return nil
}

// InstallSeeds installs the count and CRC seeds scheduled from the shared
// secret and turns on ErrorDetection.
func (s *State) InstallSeeds(countSeed, crcSeed byte) {
	s.countSeed = countSeed
	s.crcSeed = crcSeed
	s.sendSeq = newSequence(countSeed)
	s.recvSeq = newSequence(countSeed)
	s.Options |= OptErrorDetection
}

// HasKey reports whether a Blowfish key has been installed.
func (s *State) HasKey() bool { return s.haveKey }

// Cipher returns the installed Blowfish cipher, or nil if none is set.
func (s *State) Cipher() *wire.Cipher { return s.cipher }

// CrcSeed returns the installed CRC seed.
func (s *State) CrcSeed() byte { return s.crcSeed }

// NextSendCount advances and returns the next outgoing count byte.
func (s *State) NextSendCount() byte { return s.sendSeq.next() }

// NextRecvCount advances and returns the next expected incoming count byte.
func (s *State) NextRecvCount() byte { return s.recvSeq.next() }

// Ready reports whether the handshake has completed.
func (s *State) Ready() bool { return s.Phase == PhaseReady }

// Close transitions to Closed and scrubs key material. Idempotent.
func (s *State) Close() {
	s.Phase = PhaseClosed
	wire.ZeroKey(&s.key)
	s.cipher = nil
	s.haveKey = false
}
