package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed envelope layout:
//
//	version(1) | salt(32) | memory(4) | iterations(4) | parallelism(1) | nonce(24) | ciphertext
//
// The AEAD additional data is the header followed by the caller's binding,
// so neither the KDF parameters nor the envelope's owner can be swapped
// without failing authentication.
const (
	envelopeVersion = 2
	SaltSize        = 32
	headerSize      = 1 + SaltSize + 4 + 4 + 1

	// maxMemory caps the Argon2 cost an envelope may demand on open (4 GiB).
	maxMemory = 4 * 1024 * 1024
)

// Envelope errors.
var (
	ErrWrongPassword       = errors.New("wrong password or envelope bound elsewhere")
	ErrUnsupportedEnvelope = errors.New("unsupported envelope")
	ErrInvalidParams       = errors.New("invalid key derivation params")
)

// EncryptionParams holds Argon2id parameters.
type EncryptionParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultParams returns the Argon2id cost used for new wallets.
func DefaultParams() EncryptionParams {
	return EncryptionParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

// Validate rejects parameters argon2 cannot run or that would exhaust memory.
func (p EncryptionParams) Validate() error {
	switch {
	case p.Iterations == 0 || p.Parallelism == 0:
		return fmt.Errorf("%w: zero iterations or parallelism", ErrInvalidParams)
	case p.Memory < 8*uint32(p.Parallelism):
		return fmt.Errorf("%w: memory %d KiB below 8 KiB per lane", ErrInvalidParams, p.Memory)
	case p.Memory > maxMemory:
		return fmt.Errorf("%w: memory %d KiB above %d", ErrInvalidParams, p.Memory, maxMemory)
	}
	return nil
}

// Seal encrypts secret under password with Argon2id and XChaCha20-Poly1305.
// binding names what the envelope belongs to; Open must be given the same
// binding.
func Seal(secret, password, binding []byte, params EncryptionParams) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	header := make([]byte, 0, headerSize)
	header = append(header, envelopeVersion)
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	header = append(header, salt...)
	header = binary.LittleEndian.AppendUint32(header, params.Memory)
	header = binary.LittleEndian.AppendUint32(header, params.Iterations)
	header = append(header, params.Parallelism)

	key := deriveKey(password, salt, params)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	out := make([]byte, 0, len(header)+len(nonce)+len(secret)+aead.Overhead())
	out = append(out, header...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, secret, additionalData(header, binding)), nil
}

// Open decrypts an envelope produced by Seal with the same binding.
func Open(envelope, password, binding []byte) ([]byte, error) {
	minSize := headerSize + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead
	if len(envelope) < minSize {
		return nil, fmt.Errorf("%w: %d bytes, need at least %d", ErrUnsupportedEnvelope, len(envelope), minSize)
	}
	if envelope[0] != envelopeVersion {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedEnvelope, envelope[0])
	}

	header := envelope[:headerSize]
	salt := header[1 : 1+SaltSize]
	params := EncryptionParams{
		Memory:      binary.LittleEndian.Uint32(header[1+SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(header[1+SaltSize+4:]),
		Parallelism: header[1+SaltSize+8],
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	nonce := envelope[headerSize : headerSize+chacha20poly1305.NonceSizeX]
	ciphertext := envelope[headerSize+chacha20poly1305.NonceSizeX:]

	key := deriveKey(password, salt, params)
	defer zero(key)
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData(header, binding))
	if err != nil {
		return nil, ErrWrongPassword
	}
	return plaintext, nil
}

func deriveKey(password, salt []byte, params EncryptionParams) []byte {
	return argon2.IDKey(password, salt, params.Iterations, params.Memory, params.Parallelism, chacha20poly1305.KeySize)
}

func additionalData(header, binding []byte) []byte {
	ad := make([]byte, 0, len(header)+len(binding))
	ad = append(ad, header...)
	return append(ad, binding...)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
