package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"eule/internal/crypto"
	logx "eule/pkg/logx"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "eule.db"), logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("Get missing = (ok=%v, err=%v), want absent", ok, err)
	}

	if err := s.Set(ctx, "greeting", []byte("hello")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	got, ok, err := s.Get(ctx, "greeting")
	if err != nil || !ok || !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("Get = (%q, ok=%v, err=%v)", got, ok, err)
	}

	// Overwrite.
	if err := s.Set(ctx, "greeting", []byte("hallo")); err != nil {
		t.Fatalf("Set overwrite error: %v", err)
	}
	got, _, _ = s.Get(ctx, "greeting")
	if !bytes.Equal(got, []byte("hallo")) {
		t.Fatalf("overwrite not visible: %q", got)
	}

	if err := s.Delete(ctx, "greeting"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "greeting"); ok {
		t.Fatal("value still present after Delete")
	}

	// Deleting an absent key is fine.
	if err := s.Delete(ctx, "greeting"); err != nil {
		t.Fatalf("Delete absent error: %v", err)
	}
}

func TestPersistsAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "eule.db")
	ctx := context.Background()

	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := s.Set(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close error: %v", err)
	}

	s2, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	got, ok, err := s2.Get(ctx, "k")
	if err != nil || !ok || !bytes.Equal(got, []byte("v")) {
		t.Fatalf("Get after reopen = (%q, ok=%v, err=%v)", got, ok, err)
	}
}

func TestSensitiveValueEncryptedAtRest(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InitializeEncryption("hunter2"); err != nil {
		t.Fatalf("InitializeEncryption error: %v", err)
	}

	token := []byte("Bot abc.def.ghi")
	if err := s.Set(ctx, "discord_token", token); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// The round trip returns the original plaintext...
	got, ok, err := s.Get(ctx, "discord_token")
	if err != nil || !ok || !bytes.Equal(got, token) {
		t.Fatalf("Get = (%q, ok=%v, err=%v)", got, ok, err)
	}

	// ...while the stored bytes differ from it.
	raw := rawValue(t, s, "discord_token")
	if bytes.Equal(raw, token) || bytes.Contains(raw, token) {
		t.Fatal("sensitive value stored as plaintext")
	}
}

func TestTamperedCiphertextFailsClosed(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InitializeEncryption("hunter2"); err != nil {
		t.Fatalf("InitializeEncryption error: %v", err)
	}
	if err := s.Set(ctx, "discord_token", []byte("original")); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	raw := rawValue(t, s, "discord_token")
	raw[len(raw)-1] ^= 0x01
	if _, err := s.db.ExecContext(ctx,
		`UPDATE kv SET value = ? WHERE key = ?`, raw, "discord_token"); err != nil {
		t.Fatalf("tamper update error: %v", err)
	}

	if _, _, err := s.Get(ctx, "discord_token"); !errors.Is(err, crypto.ErrDecryption) {
		t.Fatalf("expected ErrDecryption after tampering, got %v", err)
	}
}

func TestSensitiveKeyUsableBeforeInitialization(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// Before any credential exists the store must still work; sensitive
	// values simply go in as plaintext.
	if err := s.Set(ctx, "discord_token", []byte("plain")); err != nil {
		t.Fatalf("Set before init error: %v", err)
	}
	got, ok, err := s.Get(ctx, "discord_token")
	if err != nil || !ok || !bytes.Equal(got, []byte("plain")) {
		t.Fatalf("Get = (%q, ok=%v, err=%v)", got, ok, err)
	}
	raw := rawValue(t, s, "discord_token")
	if !bytes.Equal(raw, []byte("plain")) {
		t.Fatalf("uninitialized store should keep plaintext, got %q", raw)
	}
}

func TestSaltIsStableAcrossReopen(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "eule.db")
	ctx := context.Background()

	s, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if err := s.InitializeEncryption("pass"); err != nil {
		t.Fatalf("InitializeEncryption error: %v", err)
	}
	if err := s.Set(ctx, "discord_token", []byte("tok")); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	salt1 := rawValue(t, s, "encryption_salt")
	_ = s.Close()

	s2, err := Open(path, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error: %v", err)
	}
	defer s2.Close()
	if err := s2.InitializeEncryption("pass"); err != nil {
		t.Fatalf("InitializeEncryption after reopen error: %v", err)
	}
	salt2 := rawValue(t, s2, "encryption_salt")
	if !bytes.Equal(salt1, salt2) {
		t.Fatal("salt changed across reopen")
	}

	// Same passphrase and salt: the old ciphertext must still open.
	got, ok, err := s2.Get(ctx, "discord_token")
	if err != nil || !ok || !bytes.Equal(got, []byte("tok")) {
		t.Fatalf("Get after reopen = (%q, ok=%v, err=%v)", got, ok, err)
	}
}

func TestInitializeEncryptionIsWriteOnce(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.InitializeEncryption("first"); err != nil {
		t.Fatalf("InitializeEncryption error: %v", err)
	}
	if err := s.Set(ctx, "discord_token", []byte("tok")); err != nil {
		t.Fatalf("Set error: %v", err)
	}

	// A second call with a different passphrase must not replace the key.
	if err := s.InitializeEncryption("second"); err != nil {
		t.Fatalf("repeated InitializeEncryption error: %v", err)
	}
	got, ok, err := s.Get(ctx, "discord_token")
	if err != nil || !ok || !bytes.Equal(got, []byte("tok")) {
		t.Fatalf("Get after repeated init = (%q, ok=%v, err=%v)", got, ok, err)
	}
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	_ = s.Close()

	ctx := context.Background()
	if _, _, err := s.Get(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Get on closed store: %v", err)
	}
	if err := s.Set(ctx, "k", nil); !errors.Is(err, ErrClosed) {
		t.Fatalf("Set on closed store: %v", err)
	}
	if err := s.Delete(ctx, "k"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Delete on closed store: %v", err)
	}
	if err := s.InitializeEncryption("p"); !errors.Is(err, ErrClosed) {
		t.Fatalf("InitializeEncryption on closed store: %v", err)
	}
}

// rawValue reads the stored bytes for key without going through Get.
func rawValue(t *testing.T, s *Store, key string) []byte {
	t.Helper()
	var raw []byte
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		t.Fatalf("raw read of %q: %v", key, err)
	}
	return raw
}
