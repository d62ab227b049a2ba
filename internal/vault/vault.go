package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Envelope wire format: [1-byte version tag][12-byte nonce][ciphertext‖tag],
// base64url-encoded for storage in a text column.
const (
	// VersionLegacy envelopes were sealed with ChaCha20-Poly1305 and no
	// associated data. Decrypt still accepts them; Migrate rewrites them.
	VersionLegacy byte = 0x01

	// VersionCurrent envelopes use AES-256-GCM with deterministic
	// associated data.
	VersionCurrent byte = 0x02

	keySize   = 32
	nonceSize = 12
)

var (
	ErrInvalidKey = errors.New("encryption key must be exactly 32 bytes")
	ErrDecryption = errors.New("credential envelope failed authentication")
)

// aadLabel is bound into the authentication tag of current-version
// envelopes. Associated data must be reproducible byte-for-byte at decrypt
// time, so it is a fixed label: never a clock reading, never anything
// computed at call time. A timestamp that needs to travel with a credential
// belongs inside the encrypted payload.
var aadLabel = []byte("finsync/credential")

// Vault seals and opens credential envelopes with a single process-lifetime
// key. Construct one at startup and inject it; key provisioning and rotation
// live outside this package.
type Vault struct {
	current cipher.AEAD // AES-256-GCM, VersionCurrent
	legacy  cipher.AEAD // ChaCha20-Poly1305, VersionLegacy
}

// New creates a Vault from a 32-byte symmetric key.
func New(key string) (*Vault, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	legacy, err := chacha20poly1305.New([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create legacy cipher: %w", err)
	}

	return &Vault{current: gcm, legacy: legacy}, nil
}

// currentAAD returns the associated data for current-version envelopes: the
// version tag followed by the static context label.
func currentAAD() []byte {
	return append([]byte{VersionCurrent}, aadLabel...)
}

// Encrypt seals plaintext into a current-version envelope. Empty input
// encrypts to the empty string.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	envelope := make([]byte, 0, 1+nonceSize+len(plaintext)+v.current.Overhead())
	envelope = append(envelope, VersionCurrent)
	envelope = append(envelope, nonce...)
	envelope = v.current.Seal(envelope, nonce, []byte(plaintext), currentAAD())

	return base64.RawURLEncoding.EncodeToString(envelope), nil
}

// Decrypt opens an envelope of any known version. Tag mismatch, truncated
// input, and unrecognized version tags all surface as ErrDecryption.
func (v *Vault) Decrypt(envelope string) (string, error) {
	if envelope == "" {
		return "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(envelope)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryption)
	}
	if len(raw) < 1+nonceSize {
		return "", fmt.Errorf("%w: truncated envelope", ErrDecryption)
	}

	version := raw[0]
	nonce := raw[1 : 1+nonceSize]
	ciphertext := raw[1+nonceSize:]

	var plaintext []byte
	switch version {
	case VersionCurrent:
		plaintext, err = v.current.Open(nil, nonce, ciphertext, currentAAD())
	case VersionLegacy:
		plaintext, err = v.legacy.Open(nil, nonce, ciphertext, nil)
	default:
		return "", fmt.Errorf("%w: unknown envelope version 0x%02x", ErrDecryption, version)
	}
	if err != nil {
		return "", ErrDecryption
	}

	return string(plaintext), nil
}

// Migrate re-encrypts an older-version envelope to the current version. When
// the envelope is already current (or empty) it is returned unchanged and
// migrated is false.
func (v *Vault) Migrate(envelope string) (out string, migrated bool, err error) {
	if envelope == "" {
		return envelope, false, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(envelope)
	if err != nil {
		return "", false, fmt.Errorf("%w: invalid encoding", ErrDecryption)
	}
	if len(raw) >= 1 && raw[0] == VersionCurrent {
		return envelope, false, nil
	}

	plaintext, err := v.Decrypt(envelope)
	if err != nil {
		return "", false, err
	}

	reencrypted, err := v.Encrypt(plaintext)
	if err != nil {
		return "", false, err
	}
	return reencrypted, true, nil
}
