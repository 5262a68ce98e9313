package frame

import (
	"bytes"
	"testing"

	"github.com/silkrelay/silkproto/internal/protostate"
	"github.com/silkrelay/silkproto/internal/wire"
)

func pairedStates(t *testing.T) (*protostate.State, *protostate.State) {
	t.Helper()
	a := protostate.NewResponder()
	b := protostate.NewInitiator()
	key := [8]byte{1, 2, 3, 4, 5, 6, 7, 8}
	if err := a.InstallKey(key); err != nil {
		t.Fatal(err)
	}
	if err := b.InstallKey(key); err != nil {
		t.Fatal(err)
	}
	a.InstallSeeds(0x77, 0x11)
	b.InstallSeeds(0x77, 0x11)
	return a, b
}

func TestEncodeDecodeRoundTripPlain(t *testing.T) {
	send := protostate.NewResponder()
	recv := protostate.NewInitiator()

	m := wire.NewMessage(0x1234)
	m.WriteString("hello")

	buf, err := Encode(m, send)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(bytes.NewReader(buf), recv)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.ID() != m.ID() {
		t.Fatalf("opcode mismatch: got %#x want %#x", got.ID(), m.ID())
	}
	s, err := got.ReadString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadString() = %q, %v", s, err)
	}
}

func TestEncodeDecodeRoundTripEncryptedWithErrorDetection(t *testing.T) {
	send, recv := pairedStates(t)

	for i := 0; i < 4; i++ {
		m := wire.NewMessage(0x42)
		m.WriteUint32(uint32(i))
		buf, err := Encode(m, send)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		got, err := Decode(bytes.NewReader(buf), recv)
		if err != nil {
			t.Fatalf("Decode frame %d: %v", i, err)
		}
		v, _ := got.ReadUint32()
		if v != uint32(i) {
			t.Fatalf("frame %d: got %d want %d", i, v, i)
		}
	}
}

func TestEncodeEmptyPayloadEncrypted(t *testing.T) {
	send, recv := pairedStates(t)
	m := wire.NewMessage(0x01)
	buf, err := Encode(m, send)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(bytes.NewReader(buf), recv)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", got.Remaining())
	}
}

func TestDecodeDetectsCountTamper(t *testing.T) {
	send, recv := pairedStates(t)
	m := wire.NewMessage(0x42)
	buf, err := Encode(m, send)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Skip one count advance on the receiver to desync the sequence.
	recv.NextRecvCount()
	if _, err := Decode(bytes.NewReader(buf), recv); err == nil {
		t.Fatal("expected count mismatch error")
	}
}

func TestDecodeDetectsCrcTamper(t *testing.T) {
	send, recv := pairedStates(t)
	m := wire.NewMessage(0x42)
	m.WriteBytes([]byte{1, 2, 3, 4, 5, 6, 7, 8})
	buf, err := Encode(m, send)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Flip one bit of the last ciphertext byte; decryption garbles that
	// whole block, so the payload no longer matches its crc.
	buf[len(buf)-1] ^= 0x01
	if _, err := Decode(bytes.NewReader(buf), recv); err == nil {
		t.Fatal("expected decode error on tampered frame")
	}
}

func TestErrorDetectionOffSkipsValidation(t *testing.T) {
	send := protostate.NewResponder()
	recv := protostate.NewInitiator()
	m := wire.NewMessage(0x99)
	buf, err := Encode(m, send)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	// Header bytes 2-3 of the inner envelope (count, crc) must be zero.
	if buf[4] != 0 || buf[5] != 0 {
		t.Fatalf("expected zero count/crc bytes, got %x %x", buf[4], buf[5])
	}
	if _, err := Decode(bytes.NewReader(buf), recv); err != nil {
		t.Fatalf("Decode: %v", err)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	send := protostate.NewResponder()
	m := wire.NewMessage(0x01)
	m.WriteBytes(make([]byte, wire.PayloadMax+1))
	if _, err := Encode(m, send); err == nil {
		t.Fatal("expected error for oversized payload")
	}
}

func TestEncodeMatchesWorkedVectors(t *testing.T) {
	cases := []struct {
		name    string
		opcode  wire.Opcode
		payload []byte
		want    []byte
	}{
		{"plain ping", 0x2001, nil, []byte{0x00, 0x00, 0x01, 0x20, 0x00, 0x00}},
		{"plain echo", 0x2002, []byte("hi"), []byte{0x02, 0x00, 0x02, 0x20, 0x00, 0x00, 0x68, 0x69}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			st := protostate.NewResponder()
			m := wire.NewMessageFromBytes(c.opcode, c.payload)
			got, err := Encode(m, st)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if !bytes.Equal(got, c.want) {
				t.Fatalf("Encode() = % x, want % x", got, c.want)
			}
		})
	}
}

func TestReaderWriterRoundTrip(t *testing.T) {
	send, recv := pairedStates(t)
	var buf bytes.Buffer
	w := NewWriter(&buf, send)
	r := NewReader(&buf, recv)

	m := wire.NewMessage(0x77)
	m.WriteString("ping")
	if err := w.WriteMessage(m); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
	got, err := r.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	s, _ := got.ReadString()
	if s != "ping" {
		t.Fatalf("got %q, want ping", s)
	}
}
