package vault

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
)

const testKey = "01234567890123456789012345678901" // 32 bytes for AES-256

func TestNew_ValidKey(t *testing.T) {
	v, err := New(testKey)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if v == nil {
		t.Fatal("New() returned nil")
	}
}

func TestNew_InvalidKeyLength(t *testing.T) {
	_, err := New("too-short")
	if err != ErrInvalidKey {
		t.Errorf("New() error = %v, want %v", err, ErrInvalidKey)
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New() expected error for empty key, got nil")
	}
}

func TestEncryptDecrypt_Roundtrip(t *testing.T) {
	v, _ := New(testKey)

	plaintext := "access-token-9f8e7d6c"
	envelope, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}
	if envelope == plaintext {
		t.Error("Encrypt() returned plaintext")
	}

	decrypted, err := v.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if decrypted != plaintext {
		t.Errorf("Decrypt() = %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptDecrypt_RandomPayloads(t *testing.T) {
	v, _ := New(testKey)

	for i := 0; i < 1000; i++ {
		buf := make([]byte, 1+i%64)
		if _, err := rand.Read(buf); err != nil {
			t.Fatalf("rand.Read() failed: %v", err)
		}
		plaintext := base64.StdEncoding.EncodeToString(buf)

		envelope, err := v.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt() failed on payload %d: %v", i, err)
		}
		decrypted, err := v.Decrypt(envelope)
		if err != nil {
			t.Fatalf("Decrypt() failed on payload %d: %v", i, err)
		}
		if decrypted != plaintext {
			t.Fatalf("roundtrip mismatch on payload %d", i)
		}
	}
}

func TestEncrypt_EmptyString(t *testing.T) {
	v, _ := New(testKey)

	envelope, err := v.Encrypt("")
	if err != nil {
		t.Fatalf("Encrypt() failed: %v", err)
	}
	if envelope != "" {
		t.Errorf("Encrypt(\"\") = %q, want empty string", envelope)
	}
}

func TestEncrypt_DifferentEnvelopes(t *testing.T) {
	v, _ := New(testKey)

	e1, _ := v.Encrypt("same credential")
	e2, _ := v.Encrypt("same credential")
	if e1 == e2 {
		t.Error("Encrypt() produced identical envelopes for same plaintext (nonce should differ)")
	}
}

func TestEncrypt_EnvelopeLayout(t *testing.T) {
	v, _ := New(testKey)

	envelope, _ := v.Encrypt("layout check")
	raw, err := base64.RawURLEncoding.DecodeString(envelope)
	if err != nil {
		t.Fatalf("envelope is not base64url: %v", err)
	}
	if raw[0] != VersionCurrent {
		t.Errorf("version tag = 0x%02x, want 0x%02x", raw[0], VersionCurrent)
	}
	// version + nonce + ciphertext + 16-byte tag
	if want := 1 + nonceSize + len("layout check") + 16; len(raw) != want {
		t.Errorf("envelope length = %d, want %d", len(raw), want)
	}
}

// Tampering with any single byte of the envelope must fail authentication.
func TestDecrypt_TamperedEnvelope(t *testing.T) {
	v, _ := New(testKey)

	envelope, _ := v.Encrypt("secret credential")
	raw, _ := base64.RawURLEncoding.DecodeString(envelope)

	for i := range raw {
		tampered := make([]byte, len(raw))
		copy(tampered, raw)
		tampered[i] ^= 0x01

		_, err := v.Decrypt(base64.RawURLEncoding.EncodeToString(tampered))
		if err == nil {
			t.Fatalf("Decrypt() accepted envelope with byte %d flipped", i)
		}
	}
}

// Decryption success must depend only on the envelope bytes and the key,
// never on when decryption happens.
func TestDecrypt_DelayIndependent(t *testing.T) {
	v, _ := New(testKey)

	envelope, _ := v.Encrypt("time-independent credential")

	if _, err := v.Decrypt(envelope); err != nil {
		t.Fatalf("immediate Decrypt() failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)
	if _, err := v.Decrypt(envelope); err != nil {
		t.Fatalf("delayed Decrypt() failed: %v", err)
	}

	// A second vault built from the same key shares no state with the
	// encrypting one; it must still open the envelope.
	v2, _ := New(testKey)
	got, err := v2.Decrypt(envelope)
	if err != nil {
		t.Fatalf("independent vault Decrypt() failed: %v", err)
	}
	if got != "time-independent credential" {
		t.Errorf("independent vault Decrypt() = %q", got)
	}
}

func TestDecrypt_InvalidBase64(t *testing.T) {
	v, _ := New(testKey)

	if _, err := v.Decrypt("not-valid-base64!!!"); err == nil {
		t.Error("Decrypt() accepted invalid base64")
	}
}

func TestDecrypt_Truncated(t *testing.T) {
	v, _ := New(testKey)

	if _, err := v.Decrypt("YQ"); err == nil {
		t.Error("Decrypt() accepted envelope shorter than header")
	}

	envelope, _ := v.Encrypt("truncation target")
	raw, _ := base64.RawURLEncoding.DecodeString(envelope)
	short := base64.RawURLEncoding.EncodeToString(raw[:len(raw)-4])
	if _, err := v.Decrypt(short); err == nil {
		t.Error("Decrypt() accepted truncated ciphertext")
	}
}

func TestDecrypt_UnknownVersion(t *testing.T) {
	v, _ := New(testKey)

	envelope, _ := v.Encrypt("versioned payload")
	raw, _ := base64.RawURLEncoding.DecodeString(envelope)
	raw[0] = 0x7f

	_, err := v.Decrypt(base64.RawURLEncoding.EncodeToString(raw))
	if err == nil {
		t.Error("Decrypt() accepted unknown version tag")
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	v1, _ := New(testKey)
	v2, _ := New("98765432109876543210987654321098")

	envelope, _ := v1.Encrypt("sealed with key one")
	if _, err := v2.Decrypt(envelope); err == nil {
		t.Error("Decrypt() succeeded with wrong key")
	}
}

func TestDecrypt_EmptyString(t *testing.T) {
	v, _ := New(testKey)

	plaintext, err := v.Decrypt("")
	if err != nil {
		t.Fatalf("Decrypt() failed: %v", err)
	}
	if plaintext != "" {
		t.Errorf("Decrypt(\"\") = %q, want empty string", plaintext)
	}
}

func TestEncryptDecrypt_LongContent(t *testing.T) {
	v, _ := New(testKey)

	plaintext := strings.Repeat("long credential material ", 1000)
	envelope, err := v.Encrypt(plaintext)
	if err != nil {
		t.Fatalf("Encrypt() failed with long content: %v", err)
	}
	decrypted, err := v.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt() failed with long content: %v", err)
	}
	if decrypted != plaintext {
		t.Error("long content roundtrip failed")
	}
}

// legacyEnvelope builds a VersionLegacy envelope the way the previous
// encryption scheme did: ChaCha20-Poly1305, no associated data.
func legacyEnvelope(t *testing.T, key, plaintext string) string {
	t.Helper()

	aead, err := chacha20poly1305.New([]byte(key))
	if err != nil {
		t.Fatalf("chacha20poly1305.New() failed: %v", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		t.Fatalf("rand.Read() failed: %v", err)
	}

	raw := append([]byte{VersionLegacy}, nonce...)
	raw = aead.Seal(raw, nonce, []byte(plaintext), nil)
	return base64.RawURLEncoding.EncodeToString(raw)
}

func TestDecrypt_LegacyEnvelope(t *testing.T) {
	v, _ := New(testKey)

	envelope := legacyEnvelope(t, testKey, "legacy credential")
	decrypted, err := v.Decrypt(envelope)
	if err != nil {
		t.Fatalf("Decrypt() failed on legacy envelope: %v", err)
	}
	if decrypted != "legacy credential" {
		t.Errorf("Decrypt() = %q, want %q", decrypted, "legacy credential")
	}
}

func TestMigrate_LegacyToCurrent(t *testing.T) {
	v, _ := New(testKey)

	legacy := legacyEnvelope(t, testKey, "migrating credential")
	migrated, changed, err := v.Migrate(legacy)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if !changed {
		t.Fatal("Migrate() did not report migration of a legacy envelope")
	}

	raw, _ := base64.RawURLEncoding.DecodeString(migrated)
	if raw[0] != VersionCurrent {
		t.Errorf("migrated version tag = 0x%02x, want 0x%02x", raw[0], VersionCurrent)
	}

	decrypted, err := v.Decrypt(migrated)
	if err != nil {
		t.Fatalf("Decrypt() failed on migrated envelope: %v", err)
	}
	if decrypted != "migrating credential" {
		t.Errorf("Decrypt() = %q, want %q", decrypted, "migrating credential")
	}
}

func TestMigrate_CurrentIsNoop(t *testing.T) {
	v, _ := New(testKey)

	envelope, _ := v.Encrypt("already current")
	migrated, changed, err := v.Migrate(envelope)
	if err != nil {
		t.Fatalf("Migrate() failed: %v", err)
	}
	if changed {
		t.Error("Migrate() reported migration for a current envelope")
	}
	if migrated != envelope {
		t.Error("Migrate() changed a current envelope")
	}
}

func TestMigrate_TamperedLegacy(t *testing.T) {
	v, _ := New(testKey)

	legacy := legacyEnvelope(t, testKey, "tamper target")
	raw, _ := base64.RawURLEncoding.DecodeString(legacy)
	raw[len(raw)-1] ^= 0x01

	_, _, err := v.Migrate(base64.RawURLEncoding.EncodeToString(raw))
	if err == nil {
		t.Error("Migrate() accepted tampered legacy envelope")
	}
}
