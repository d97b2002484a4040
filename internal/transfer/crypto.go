package transfer

import (
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Cipher seals or opens transfer chunks with ChaCha20-Poly1305. The key is
// derived from the session token, so only the paired peer can read the
// stream. The nonce is a little-endian chunk counter: both sides must
// process chunks in the same order, which the single-connection framed
// stream guarantees. A Cipher is single-stream; mint one per transfer.
type Cipher struct {
	aead    cipher.AEAD
	counter uint64
}

// NewCipher derives a chunk cipher from the opaque session token.
func NewCipher(sessionToken string) (*Cipher, error) {
	if sessionToken == "" {
		return nil, errors.New("transfer: encryption requires a session token")
	}
	key := sha256.Sum256([]byte(sessionToken))
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func (c *Cipher) nextNonce() []byte {
	nonce := make([]byte, chacha20poly1305.NonceSize)
	binary.LittleEndian.PutUint64(nonce, c.counter)
	c.counter++
	return nonce
}

// Seal encrypts one chunk.
func (c *Cipher) Seal(chunk []byte) []byte {
	return c.aead.Seal(nil, c.nextNonce(), chunk, nil)
}

// Open decrypts one chunk. Fails on tampering or out-of-order delivery.
func (c *Cipher) Open(chunk []byte) ([]byte, error) {
	plain, err := c.aead.Open(nil, c.nextNonce(), chunk, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt chunk: %w", err)
	}
	return plain, nil
}

// Overhead is the per-chunk ciphertext expansion.
func (c *Cipher) Overhead() int {
	return c.aead.Overhead()
}
