package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"eule/internal/crypto"
	logx "eule/pkg/logx"
)

var (
	ErrClosed         = errors.New("store: closed")
	ErrNotInitialized = errors.New("store: encryption not initialized")
)

// saltKey holds the random key-derivation salt, generated once per store.
const saltKey = "encryption_salt"

// sensitiveKeys are encrypted at rest once encryption is initialized.
// The set is fixed; everything else is stored as plaintext bytes.
var sensitiveKeys = map[string]struct{}{
	"discord_token": {},
}

// Store is a durable key/value store with selective encryption at rest.
//
// Every mutation is committed to disk before the call returns, so a crash
// immediately after a successful Set or Delete never loses that write.
// A store without an initialized encryption key stays usable: sensitive
// values are then stored in plaintext (the pre-credential bootstrap case).
type Store struct {
	db  *sql.DB
	log logx.Logger

	mu  sync.Mutex
	key *crypto.SecretKey // nil until InitializeEncryption; write-once
}

// Open opens (or creates) the store at path.
func Open(path string, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store: path is required")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	_, _ = db.Exec("PRAGMA busy_timeout = 5000")
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	// FULL keeps the durable-before-return contract even across power loss.
	_, _ = db.Exec("PRAGMA synchronous = FULL")

	s := &Store{db: db, log: log}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx,
		`CREATE TABLE IF NOT EXISTS kv (
			key   TEXT PRIMARY KEY,
			value BLOB NOT NULL
		)`)
	return err
}

// Close erases the in-memory master key and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	if s.key != nil {
		s.key.Zero()
		s.key = nil
	}
	db := s.db
	s.db = nil
	s.mu.Unlock()

	if db == nil {
		return nil
	}
	return db.Close()
}

// Get returns the value stored under key, or ok=false if absent.
// Sensitive values are decrypted transparently once encryption is
// initialized; decryption failures are returned as-is, never papered over.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	db, k := s.handle()
	if db == nil {
		return nil, false, ErrClosed
	}

	var value []byte
	err := db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("store: get %q: %w", key, err)
	}

	if isSensitive(key) && k != nil {
		plaintext, err := crypto.Decrypt(value, k.Bytes())
		if err != nil {
			return nil, false, err
		}
		return plaintext, true, nil
	}
	return value, true, nil
}

// Set stores value under key, encrypting it first when the key is sensitive
// and encryption has been initialized. The write is durable on return.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	db, k := s.handle()
	if db == nil {
		return ErrClosed
	}

	stored := value
	if isSensitive(key) && k != nil {
		enc, err := crypto.Encrypt(value, k.Bytes())
		if err != nil {
			return err
		}
		stored = enc
	}

	_, err := db.ExecContext(ctx,
		`INSERT INTO kv(key, value) VALUES(?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, stored,
	)
	if err != nil {
		return fmt.Errorf("store: set %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	db, _ := s.handle()
	if db == nil {
		return ErrClosed
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("store: delete %q: %w", key, err)
	}
	return nil
}

// InitializeEncryption derives the master key from the passphrase and the
// store's salt (generated on first use, reused afterwards). Once set, the
// key is immutable for the process lifetime; repeated calls are no-ops.
func (s *Store) InitializeEncryption(passphrase string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return ErrClosed
	}
	if s.key != nil {
		return nil
	}

	salt, err := s.loadOrCreateSaltLocked()
	if err != nil {
		return err
	}
	key, err := crypto.DeriveKey(passphrase, salt)
	if err != nil {
		return err
	}
	s.key = key
	s.log.Info("store encryption initialized")
	return nil
}

// EncryptionReady reports whether a master key is present.
func (s *Store) EncryptionReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key != nil
}

func (s *Store) loadOrCreateSaltLocked() ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var salt []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, saltKey).Scan(&salt)
	if err == nil {
		if len(salt) != crypto.SaltSize {
			return nil, fmt.Errorf("%w: stored salt has %d bytes", crypto.ErrKeyDerivation, len(salt))
		}
		return salt, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("store: load salt: %w", err)
	}

	salt, err = crypto.GenerateSalt()
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO kv(key, value) VALUES(?, ?)`, saltKey, salt); err != nil {
		return nil, fmt.Errorf("store: persist salt: %w", err)
	}
	return salt, nil
}

func (s *Store) handle() (*sql.DB, *crypto.SecretKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db, s.key
}

func isSensitive(key string) bool {
	_, ok := sensitiveKeys[key]
	return ok
}
