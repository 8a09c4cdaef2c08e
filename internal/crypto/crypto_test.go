package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt error: %v", err)
	}
	key, err := DeriveKey("correct horse battery staple", salt)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}

	plaintext := []byte("discord_token_value")
	blob, err := Encrypt(plaintext, key.Bytes())
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if bytes.Contains(blob, plaintext) {
		t.Fatal("ciphertext contains plaintext")
	}

	got, err := Decrypt(blob, key.Bytes())
	if err != nil {
		t.Fatalf("Decrypt error: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q", got)
	}
}

func TestEncryptNonceUniqueness(t *testing.T) {
	t.Parallel()
	salt, _ := GenerateSalt()
	key, err := DeriveKey("passphrase", salt)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}

	a, err := Encrypt([]byte("same plaintext"), key.Bytes())
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	b, err := Encrypt([]byte("same plaintext"), key.Bytes())
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatal("identical ciphertexts for repeated encryption of the same plaintext")
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	t.Parallel()
	salt, _ := GenerateSalt()
	key, err := DeriveKey("passphrase one", salt)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}
	other, err := DeriveKey("passphrase two", salt)
	if err != nil {
		t.Fatalf("DeriveKey error: %v", err)
	}

	blob, err := Encrypt([]byte("secret"), key.Bytes())
	if err != nil {
		t.Fatalf("Encrypt error: %v", err)
	}
	if _, err := Decrypt(blob, other.Bytes()); !errors.Is(err, ErrDecryption) {
		t.Fatalf("expected ErrDecryption, got %v", err)
	}
}

func TestDecryptMalformedBlob(t *testing.T) {
	t.Parallel()
	salt, _ := GenerateSalt()
	key, _ := DeriveKey("passphrase", salt)

	for _, blob := range [][]byte{nil, {}, {1, 2, 3}, make([]byte, nonceSize)} {
		if _, err := Decrypt(blob, key.Bytes()); !errors.Is(err, ErrDecryption) {
			t.Fatalf("blob of %d bytes: expected ErrDecryption, got %v", len(blob), err)
		}
	}
}

func TestDeriveKeyRejectsBadSalt(t *testing.T) {
	t.Parallel()
	if _, err := DeriveKey("pass", []byte("short")); !errors.Is(err, ErrKeyDerivation) {
		t.Fatalf("expected ErrKeyDerivation, got %v", err)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	t.Parallel()
	salt, _ := GenerateSalt()
	a, _ := DeriveKey("pass", salt)
	b, _ := DeriveKey("pass", salt)
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("same passphrase and salt derived different keys")
	}
}

func TestSecretKeyZero(t *testing.T) {
	t.Parallel()
	salt, _ := GenerateSalt()
	key, _ := DeriveKey("pass", salt)

	raw := key.Bytes()
	if len(raw) != KeySize {
		t.Fatalf("key length = %d, want %d", len(raw), KeySize)
	}
	key.Zero()
	if key.Bytes() != nil {
		t.Fatal("Bytes() should be nil after Zero()")
	}
	for i, b := range raw {
		if b != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
	// Second Zero must be a no-op.
	key.Zero()
}

func TestGenerateSaltLength(t *testing.T) {
	t.Parallel()
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt error: %v", err)
	}
	if len(salt) != SaltSize {
		t.Fatalf("salt length = %d, want %d", len(salt), SaltSize)
	}
}
