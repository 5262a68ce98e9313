package handshake

import (
	"net"
	"testing"
	"time"

	"github.com/silkrelay/silkproto/internal/frame"
	"github.com/silkrelay/silkproto/internal/protostate"
)

func runPair(t *testing.T, options protostate.Options) (*protostate.State, *protostate.State) {
	t.Helper()
	respConn, initConn := net.Pipe()
	defer respConn.Close()
	defer initConn.Close()

	respState := protostate.NewResponder()
	initState := protostate.NewInitiator()

	respFr := frame.NewReader(respConn, respState)
	respFw := frame.NewWriter(respConn, respState)
	initFr := frame.NewReader(initConn, initState)
	initFw := frame.NewWriter(initConn, initState)

	errc := make(chan error, 2)
	go func() { errc <- RunResponder(respFr, respFw, respState, options) }()
	go func() { errc <- RunInitiator(initFr, initFw, initState) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errc:
			if err != nil {
				t.Fatalf("handshake side returned error: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("handshake timed out")
		}
	}
	return respState, initState
}

func TestHandshakeFullOptionsConverge(t *testing.T) {
	opts := protostate.OptEncryption | protostate.OptErrorDetection | protostate.OptKeyExchange | protostate.OptKeyChallenge
	resp, init := runPair(t, opts)

	if resp.Phase != protostate.PhaseReady || init.Phase != protostate.PhaseReady {
		t.Fatalf("phases = %v, %v; want both Ready", resp.Phase, init.Phase)
	}
	if !resp.HasKey() || !init.HasKey() {
		t.Fatal("expected both sides to install a session key")
	}
	if resp.CrcSeed() != init.CrcSeed() {
		t.Fatalf("crc seeds diverged: %x vs %x", resp.CrcSeed(), init.CrcSeed())
	}
	// Independently advancing sequences derived from the same seed agree.
	for i := 0; i < 8; i++ {
		if resp.NextSendCount() != init.NextRecvCount() {
			t.Fatal("count sequences diverged after handshake")
		}
	}
}

func TestHandshakeTrivialOptionsConverge(t *testing.T) {
	resp, init := runPair(t, 0)
	if resp.Phase != protostate.PhaseReady || init.Phase != protostate.PhaseReady {
		t.Fatalf("phases = %v, %v; want both Ready", resp.Phase, init.Phase)
	}
	if resp.HasKey() || init.HasKey() {
		t.Fatal("options=0 handshake should not install a key")
	}
}

func TestHandshakeEncryptionOnlyNoErrorDetection(t *testing.T) {
	resp, init := runPair(t, protostate.OptEncryption)
	if !resp.HasKey() || !init.HasKey() {
		t.Fatal("expected key installed")
	}
	if resp.Options.Has(protostate.OptErrorDetection) {
		t.Fatal("error detection should not be active")
	}
}
