// Package frame implements the wire framing codec: the 2-byte size header,
// the 4-byte opcode/count/crc envelope, and the optional Blowfish-ECB
// encryption layer over it. It knows nothing about handshakes or sessions;
// it only turns a *wire.Message into bytes and back given a *protostate.State
// describing which options are active.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/silkrelay/silkproto/internal/protostate"
	"github.com/silkrelay/silkproto/internal/wire"
)

const (
	headerSize  = 2
	envelopeLen = 4 // opcode(2) + count(1) + crc(1)
	sizeMask    = 0x7FFF
	encFlagBit  = 0x8000
)

// Encode serializes m into a frame under st's currently negotiated options.
// The wire header carries data_size, the payload length, never the encoded
// envelope/ciphertext length — see spec worked examples in §8.
func Encode(m *wire.Message, st *protostate.State) ([]byte, error) {
	payload := m.AsDataSpan()
	dataSize := len(payload)
	if dataSize > wire.PayloadMax {
		return nil, fmt.Errorf("frame: %w: payload %d exceeds max %d", wire.ErrFrameTooLarge, dataSize, wire.PayloadMax)
	}
	if dataSize > sizeMask {
		return nil, fmt.Errorf("frame: %w: payload %d exceeds header field width", wire.ErrFrameTooLarge, dataSize)
	}

	inner := make([]byte, envelopeLen+dataSize)
	binary.LittleEndian.PutUint16(inner[0:2], uint16(m.ID()))
	copy(inner[envelopeLen:], payload)
	if st.Options.Has(protostate.OptErrorDetection) {
		inner[2] = st.NextSendCount()
		// inner[3] (crc) is still zero here; checksum covers opcode|count|0|payload.
		inner[3] = wire.ChecksumByte(inner, st.CrcSeed())
	}

	var body []byte
	var encFlag uint16
	if st.Options.Has(protostate.OptEncryption) {
		if st.Cipher() == nil {
			return nil, fmt.Errorf("frame: encryption option set without an installed key")
		}
		padded := wire.PaddedLen(len(inner))
		buf := make([]byte, padded)
		copy(buf, inner)
		body = st.Cipher().EncryptBlocks(buf)
		encFlag = encFlagBit
	} else {
		body = inner
	}

	out := make([]byte, headerSize+len(body))
	binary.LittleEndian.PutUint16(out[0:2], uint16(dataSize)|encFlag)
	copy(out[headerSize:], body)
	return out, nil
}

// Decode reads exactly one frame from r, validating count/crc if
// ErrorDetection is active, and returns the enclosed message. The header's
// data_size field is the payload length; the bytes actually read off the
// wire are data_size+envelopeLen, rounded up to a Blowfish block when
// encrypted.
func Decode(r io.Reader, st *protostate.State) (*wire.Message, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	h := binary.LittleEndian.Uint16(hdr[:])
	dataSize := int(h & sizeMask)
	encrypted := h&encFlagBit != 0

	bodyLen := envelopeLen + dataSize
	if encrypted {
		bodyLen = wire.PaddedLen(bodyLen)
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("frame: short read of %d byte body: %w", bodyLen, err)
	}

	inner := body
	if encrypted {
		if st.Cipher() == nil {
			return nil, fmt.Errorf("frame: %w: encrypted frame with no installed key", wire.ErrMalformed)
		}
		inner = st.Cipher().DecryptBlocks(body)
	}

	if len(inner) < envelopeLen+dataSize {
		return nil, fmt.Errorf("frame: %w: body shorter than envelope", wire.ErrMalformed)
	}

	opcode := wire.Opcode(binary.LittleEndian.Uint16(inner[0:2]))
	count := inner[2]
	crc := inner[3]
	payload := inner[envelopeLen : envelopeLen+dataSize]

	if st.Options.Has(protostate.OptErrorDetection) {
		if want := st.NextRecvCount(); count != want {
			return nil, fmt.Errorf("frame: %w: count mismatch (got %#x want %#x)", wire.ErrMalformed, count, want)
		}
		envelope := make([]byte, envelopeLen+dataSize)
		copy(envelope, inner[:envelopeLen+dataSize])
		envelope[3] = 0
		if want := wire.ChecksumByte(envelope, st.CrcSeed()); crc != want {
			return nil, fmt.Errorf("frame: %w: crc mismatch (got %#x want %#x)", wire.ErrMalformed, crc, want)
		}
	}

	return wire.NewMessageFromBytes(opcode, payload), nil
}

// Reader decodes a stream of frames from an underlying io.Reader.
type Reader struct {
	r  io.Reader
	st *protostate.State
}

// NewReader wraps r for frame-at-a-time decoding under st.
func NewReader(r io.Reader, st *protostate.State) *Reader {
	return &Reader{r: r, st: st}
}

// ReadMessage decodes and returns the next frame.
func (fr *Reader) ReadMessage() (*wire.Message, error) {
	return Decode(fr.r, fr.st)
}

// Writer encodes a stream of frames onto an underlying io.Writer.
type Writer struct {
	w  io.Writer
	st *protostate.State
}

// NewWriter wraps w for frame-at-a-time encoding under st.
func NewWriter(w io.Writer, st *protostate.State) *Writer {
	return &Writer{w: w, st: st}
}

// WriteMessage encodes and writes m as a single frame.
func (fw *Writer) WriteMessage(m *wire.Message) error {
	buf, err := Encode(m, fw.st)
	if err != nil {
		return err
	}
	_, err = fw.w.Write(buf)
	return err
}
