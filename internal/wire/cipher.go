package wire

import (
	"fmt"

	"golang.org/x/crypto/blowfish"
)

// BlockSize is the Blowfish block size in bytes.
const BlockSize = 8

// Cipher wraps a Blowfish block cipher configured with the session key and
// exposes whole-buffer ECB encrypt/decrypt, matching the black-box
// encrypt_block/decrypt_block contract this protocol assumes.
type Cipher struct {
	bf *blowfish.Cipher
}

// NewCipher derives a Blowfish cipher from an 8-byte session key.
func NewCipher(key [8]byte) (*Cipher, error) {
	bf, err := blowfish.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("wire: invalid blowfish key: %w", err)
	}
	return &Cipher{bf: bf}, nil
}

// EncryptBlocks ECB-encrypts data block by block into a new slice, leaving
// data unchanged. len(data) must be a multiple of BlockSize; callers pad
// with PaddedLen first.
func (c *Cipher) EncryptBlocks(data []byte) []byte {
	out := make([]byte, len(data))
	for off := 0; off+BlockSize <= len(data); off += BlockSize {
		c.bf.Encrypt(out[off:off+BlockSize], data[off:off+BlockSize])
	}
	return out
}

// DecryptBlocks ECB-decrypts data block by block. len(data) must be a
// multiple of BlockSize.
func (c *Cipher) DecryptBlocks(data []byte) []byte {
	out := make([]byte, len(data))
	for off := 0; off+BlockSize <= len(data); off += BlockSize {
		c.bf.Decrypt(out[off:off+BlockSize], data[off:off+BlockSize])
	}
	return out
}

// PaddedLen rounds n up to the next multiple of BlockSize.
func PaddedLen(n int) int {
	return (n + BlockSize - 1) / BlockSize * BlockSize
}

// ZeroBytes overwrites b with zeros, used to scrub ephemeral key material.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ZeroKey overwrites an 8-byte session key array.
func ZeroKey(k *[8]byte) {
	for i := range k {
		k[i] = 0
	}
}

// checksumTable is the byte-substitution table behind ChecksumByte. The
// real Silkroad table is reference data this core doesn't have access to
// (see DESIGN.md); this one is generated deterministically so every build
// of this module agrees with itself, and is isolated behind one function so
// the real table can be dropped in without touching any caller.
var checksumTable = buildChecksumTable()

func buildChecksumTable() [256]byte {
	var t [256]byte
	for i := range t {
		v := byte(i)
		v ^= v << 3
		v += byte(i) * 17
		v ^= v >> 2
		t[i] = v
	}
	return t
}

// ChecksumByte computes a reproducible one-byte checksum over a frame's
// plaintext envelope, parameterized by the session's CRC seed. Each byte is
// chained through checksumTable (acc = table[acc^b]), starting from the
// seed; it is not an additive sum of table entries.
func ChecksumByte(data []byte, seed byte) byte {
	acc := seed
	for _, b := range data {
		acc = checksumTable[acc^b]
	}
	return acc
}
