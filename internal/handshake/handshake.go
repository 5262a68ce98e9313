// Package handshake implements the SETUP exchange that brings a session
// from WaitSetup to Ready: a Diffie-Hellman-like key agreement over a
// 32-bit modular field followed by a challenge/response that proves both
// sides derived the same secret, all carried as four wire.OpcodeSetup
// messages (spec Testable Property 6).
package handshake

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/silkrelay/silkproto/internal/frame"
	"github.com/silkrelay/silkproto/internal/protostate"
	"github.com/silkrelay/silkproto/internal/wire"
)

const (
	challengeTagResponder byte = 0xAA
	challengeTagInitiator byte = 0xBB
)

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("handshake: read random exponent: %w", err)
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

// RunResponder drives the listening side of the handshake to completion,
// negotiating the options the caller chose to offer. On success st.Phase
// is PhaseReady and the requested key/seed material is installed.
func RunResponder(fr *frame.Reader, fw *frame.Writer, st *protostate.State, options protostate.Options) error {
	if st.Role != protostate.RoleResponder {
		return fmt.Errorf("handshake: RunResponder requires a responder state")
	}

	priv, err := randomUint32()
	if err != nil {
		return err
	}
	pub := modPow(DefaultGenerator, priv, DefaultPrime)

	if err := fw.WriteMessage(encodeServerHello(serverHello{
		options:   uint8(options),
		prime:     DefaultPrime,
		generator: DefaultGenerator,
		publicKey: pub,
	})); err != nil {
		return fmt.Errorf("handshake: send ServerHello: %w", err)
	}
	st.Phase = protostate.PhaseHandshakeChallenge

	cm, err := fr.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake: recv ClientKey: %w", err)
	}
	clientPub, err := decodeClientKey(cm)
	if err != nil {
		return fmt.Errorf("handshake: decode ClientKey: %w", err)
	}

	shared := modPow(clientPub, priv, DefaultPrime)
	initSeed := pub ^ clientPub
	key, countSeed, crcSeed := deriveKeys(shared, initSeed)
	if options.Has(protostate.OptEncryption) {
		if err := st.InstallKey(key); err != nil {
			return err
		}
	}
	if options.Has(protostate.OptErrorDetection) {
		st.InstallSeeds(countSeed, crcSeed)
	}

	challenge := challengeTag(shared, initSeed, challengeTagResponder)
	if err := fw.WriteMessage(encodeServerKey(challenge)); err != nil {
		return fmt.Errorf("handshake: send ServerKey: %w", err)
	}

	am, err := fr.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake: recv Ack: %w", err)
	}
	response, err := decodeAck(am)
	if err != nil {
		return fmt.Errorf("handshake: decode Ack: %w", err)
	}
	if want := challengeTag(shared, initSeed, challengeTagInitiator); response != want {
		return fmt.Errorf("handshake: %w: ack response mismatch", wire.ErrMalformed)
	}

	st.Phase = protostate.PhaseReady
	return nil
}

// RunInitiator drives the dialing side of the handshake to completion,
// adopting whatever options the responder's ServerHello offers.
func RunInitiator(fr *frame.Reader, fw *frame.Writer, st *protostate.State) error {
	if st.Role != protostate.RoleInitiator {
		return fmt.Errorf("handshake: RunInitiator requires an initiator state")
	}

	hm, err := fr.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake: recv ServerHello: %w", err)
	}
	hello, err := decodeServerHello(hm)
	if err != nil {
		return fmt.Errorf("handshake: decode ServerHello: %w", err)
	}
	options := protostate.Options(hello.options)
	st.Phase = protostate.PhaseHandshakeBegin

	priv, err := randomUint32()
	if err != nil {
		return err
	}
	pub := modPow(hello.generator, priv, hello.prime)
	if err := fw.WriteMessage(encodeClientKey(pub)); err != nil {
		return fmt.Errorf("handshake: send ClientKey: %w", err)
	}
	st.Phase = protostate.PhaseHandshakeChallenge

	shared := modPow(hello.publicKey, priv, hello.prime)
	initSeed := hello.publicKey ^ pub
	key, countSeed, crcSeed := deriveKeys(shared, initSeed)
	if options.Has(protostate.OptEncryption) {
		if err := st.InstallKey(key); err != nil {
			return err
		}
	}
	if options.Has(protostate.OptErrorDetection) {
		st.InstallSeeds(countSeed, crcSeed)
	}

	km, err := fr.ReadMessage()
	if err != nil {
		return fmt.Errorf("handshake: recv ServerKey: %w", err)
	}
	challenge, err := decodeServerKey(km)
	if err != nil {
		return fmt.Errorf("handshake: decode ServerKey: %w", err)
	}
	if want := challengeTag(shared, initSeed, challengeTagResponder); challenge != want {
		return fmt.Errorf("handshake: %w: server challenge mismatch", wire.ErrMalformed)
	}

	response := challengeTag(shared, initSeed, challengeTagInitiator)
	if err := fw.WriteMessage(encodeAck(response)); err != nil {
		return fmt.Errorf("handshake: send Ack: %w", err)
	}

	st.Phase = protostate.PhaseReady
	return nil
}
