package credential

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// ErrDecrypt is returned when an encrypted credential file cannot be opened
// with the configured passphrase.
var ErrDecrypt = errors.New("credential: cannot decrypt credential file")

const (
	sealedVersion = 1
	saltSize      = 16

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// sealedFile is the on-disk layout of an encrypted credential file.
type sealedFile struct {
	Version    int    `json:"version"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// FileStore persists the pair as a JSON file readable only by the owner.
// With a passphrase the pair is sealed with XChaCha20-Poly1305 under an
// argon2id-derived key.
type FileStore struct {
	path       string
	passphrase []byte
	mu         sync.Mutex
}

// FileStoreOption configures a FileStore
type FileStoreOption func(*FileStore)

// WithPassphrase enables encryption of the credential file.
func WithPassphrase(passphrase string) FileStoreOption {
	return func(s *FileStore) {
		if passphrase != "" {
			s.passphrase = []byte(passphrase)
		}
	}
}

// NewFileStore creates a store backed by the file at path.
func NewFileStore(path string, opts ...FileStoreOption) (*FileStore, error) {
	if path == "" {
		return nil, errors.New("credential: file path is required")
	}
	s := &FileStore{path: path}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Get reads the pair from disk. A missing file yields a zero Pair.
func (s *FileStore) Get(_ context.Context) (Pair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Pair{}, nil
		}
		return Pair{}, fmt.Errorf("reading credential file: %w", err)
	}

	if s.passphrase != nil {
		data, err = s.open(data)
		if err != nil {
			return Pair{}, err
		}
	}

	var pair Pair
	if err := json.Unmarshal(data, &pair); err != nil {
		return Pair{}, fmt.Errorf("parsing credential file: %w", err)
	}
	return pair, nil
}

// Set writes the pair atomically (temp file + rename).
func (s *FileStore) Set(_ context.Context, pair Pair) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}
	if s.passphrase != nil {
		data, err = s.seal(data)
		if err != nil {
			return err
		}
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating credential directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".credentials-*")
	if err != nil {
		return fmt.Errorf("creating credential file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing credential file: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("securing credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing credential file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replacing credential file: %w", err)
	}
	return nil
}

// Clear deletes the credential file. Clearing an absent file is not an error.
func (s *FileStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing credential file: %w", err)
	}
	return nil
}

func (s *FileStore) deriveKey(salt []byte) []byte {
	return argon2.IDKey(s.passphrase, salt, argonTime, argonMemory, argonThreads, chacha20poly1305.KeySize)
}

func (s *FileStore) seal(plaintext []byte) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	aead, err := chacha20poly1305.NewX(s.deriveKey(salt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return json.Marshal(sealedFile{
		Version:    sealedVersion,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: aead.Seal(nil, nonce, plaintext, nil),
	})
}

func (s *FileStore) open(data []byte) ([]byte, error) {
	var sealed sealedFile
	if err := json.Unmarshal(data, &sealed); err != nil || sealed.Version != sealedVersion {
		return nil, ErrDecrypt
	}
	aead, err := chacha20poly1305.NewX(s.deriveKey(sealed.Salt))
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	if len(sealed.Nonce) != aead.NonceSize() {
		return nil, ErrDecrypt
	}
	plaintext, err := aead.Open(nil, sealed.Nonce, sealed.Ciphertext, nil)
	if err != nil {
		return nil, ErrDecrypt
	}
	return plaintext, nil
}

var _ Store = (*FileStore)(nil)
