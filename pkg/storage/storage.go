// Package storage provides file storage for enrollment samples and the
// trained face model. Files are encrypted at rest using NaCl secretbox.
//
// Layout under the data directory:
//
//	users/<identity>/<index>.jpg[.enc]
//	model.json[.enc]
package storage

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/MrCodeEU/lpad/pkg/logging"
	"github.com/MrCodeEU/lpad/pkg/recognition"
	"github.com/MrCodeEU/lpad/pkg/userid"
)

const (
	// NonceSize is the size of the nonce used for encryption
	NonceSize = 24
	// KeySize is the size of the encryption key
	KeySize = 32
)

const (
	sampleExt    = ".jpg"
	encryptedExt = ".enc"
	modelName    = "model.json"
)

// ErrUserNotFound is returned when the user has no samples.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidIdentity is returned for identities that cannot be used as a
// directory name.
var ErrInvalidIdentity = userid.ErrInvalid

// ErrEncryption is returned when encryption/decryption fails.
var ErrEncryption = errors.New("encryption error")

// ErrModelNotFound is returned when no model has been trained.
var ErrModelNotFound = recognition.ErrModelNotFound

// FileStorage implements recognition.SampleStore on the local file system.
type FileStorage struct {
	dataDir           string
	encryptionEnabled bool
	encryptionKey     [KeySize]byte
}

var _ recognition.SampleStore = (*FileStorage)(nil)

// NewFileStorage creates a new FileStorage instance.
func NewFileStorage(dataDir string, encryptionEnabled bool) (*FileStorage, error) {
	fs := &FileStorage{
		dataDir:           dataDir,
		encryptionEnabled: encryptionEnabled,
	}

	// Derive encryption key from machine-specific information
	if encryptionEnabled {
		key, err := deriveKey()
		if err != nil {
			return nil, fmt.Errorf("failed to derive encryption key: %w", err)
		}
		fs.encryptionKey = key
	}

	if err := os.MkdirAll(fs.usersDir(), 0700); err != nil {
		return nil, fmt.Errorf("failed to create users directory: %w", err)
	}

	return fs, nil
}

// deriveKey derives an encryption key from machine-specific information.
// This ties the encrypted data to this specific machine.
func deriveKey() ([KeySize]byte, error) {
	var key [KeySize]byte

	var identity strings.Builder

	// Machine ID (Linux specific)
	if machineID, err := os.ReadFile("/etc/machine-id"); err == nil {
		identity.Write(machineID)
	}

	if hostname, err := os.Hostname(); err == nil {
		identity.WriteString(hostname)
	}

	identity.WriteString(strconv.Itoa(os.Getuid()))
	identity.WriteString("lpad-v1-salt")

	hash := sha256.Sum256([]byte(identity.String()))
	copy(key[:], hash[:])

	return key, nil
}

// DataDir returns the storage root.
func (fs *FileStorage) DataDir() string {
	return fs.dataDir
}

func (fs *FileStorage) usersDir() string {
	return filepath.Join(fs.dataDir, "users")
}

func (fs *FileStorage) userDir(identity string) string {
	return filepath.Join(fs.usersDir(), identity)
}

func (fs *FileStorage) modelPath() string {
	name := modelName
	if fs.encryptionEnabled {
		name += encryptedExt
	}
	return filepath.Join(fs.dataDir, name)
}

// ValidateIdentity checks that identity is usable as a directory name.
func ValidateIdentity(identity string) error {
	return userid.Validate(identity)
}

// SaveSample writes one enrollment image for identity.
func (fs *FileStorage) SaveSample(identity string, index int, jpeg []byte) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	if index < 0 {
		return fmt.Errorf("invalid sample index %d", index)
	}

	dir := fs.userDir(identity)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create user directory: %w", err)
	}

	name := strconv.Itoa(index) + sampleExt
	data := jpeg
	if fs.encryptionEnabled {
		var err error
		data, err = fs.encrypt(jpeg)
		if err != nil {
			return fmt.Errorf("failed to encrypt sample: %w", err)
		}
		name += encryptedExt
	}

	if err := writeFileAtomic(filepath.Join(dir, name), data); err != nil {
		return fmt.Errorf("failed to write sample: %w", err)
	}

	logging.Debugf("Saved sample %d for: %s", index, identity)
	return nil
}

// LoadSamples returns identity's samples ordered by index. Encrypted
// samples that cannot be decrypted are skipped.
func (fs *FileStorage) LoadSamples(identity string) ([]recognition.Sample, error) {
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fs.userDir(identity))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}

	type indexed struct {
		index int
		name  string
	}
	var files []indexed
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if idx, ok := sampleIndex(entry.Name()); ok {
			files = append(files, indexed{idx, entry.Name()})
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].index < files[j].index })

	samples := make([]recognition.Sample, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(filepath.Join(fs.userDir(identity), f.name))
		if err != nil {
			return nil, fmt.Errorf("failed to read sample %s: %w", f.name, err)
		}
		if strings.HasSuffix(f.name, encryptedExt) {
			data, err = fs.decrypt(data)
			if err != nil {
				logging.Warnf("Skipping sample %s/%s: %v", identity, f.name, err)
				continue
			}
		}
		samples = append(samples, recognition.Sample{Name: f.name, JPEG: data})
	}

	return samples, nil
}

// sampleIndex parses "<index>.jpg" and "<index>.jpg.enc".
func sampleIndex(name string) (int, bool) {
	name = strings.TrimSuffix(name, encryptedExt)
	if !strings.HasSuffix(name, sampleExt) {
		return 0, false
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(name, sampleExt))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

// SampleCount returns the number of stored samples of identity.
func (fs *FileStorage) SampleCount(identity string) int {
	entries, err := os.ReadDir(fs.userDir(identity))
	if err != nil {
		return 0
	}
	n := 0
	for _, entry := range entries {
		if _, ok := sampleIndex(entry.Name()); ok && !entry.IsDir() {
			n++
		}
	}
	return n
}

// DeleteUser removes all samples of identity.
func (fs *FileStorage) DeleteUser(identity string) error {
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	dir := fs.userDir(identity)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrUserNotFound
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete user data: %w", err)
	}

	logging.Infof("Deleted user data for: %s", identity)
	return nil
}

// ListUsers returns the sorted identities that have a sample directory.
func (fs *FileStorage) ListUsers() ([]string, error) {
	entries, err := os.ReadDir(fs.usersDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	users := []string{}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		users = append(users, entry.Name())
	}
	sort.Strings(users)

	return users, nil
}

// UserExists checks if identity has a sample directory.
func (fs *FileStorage) UserExists(identity string) bool {
	if ValidateIdentity(identity) != nil {
		return false
	}
	info, err := os.Stat(fs.userDir(identity))
	return err == nil && info.IsDir()
}

// SaveModel writes the trained model.
func (fs *FileStorage) SaveModel(m *recognition.Model) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal model: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.encrypt(data)
		if err != nil {
			return fmt.Errorf("failed to encrypt model: %w", err)
		}
	}

	if err := writeFileAtomic(fs.modelPath(), data); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}

	logging.Debugf("Saved model with %d embeddings", len(m.Embeddings))
	return nil
}

// LoadModel reads the trained model.
func (fs *FileStorage) LoadModel() (*recognition.Model, error) {
	data, err := os.ReadFile(fs.modelPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrModelNotFound
		}
		return nil, fmt.Errorf("failed to read model: %w", err)
	}

	if fs.encryptionEnabled {
		data, err = fs.decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt model: %w", err)
		}
	}

	var m recognition.Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal model: %w", err)
	}
	return &m, nil
}

// DeleteModel removes the trained model.
func (fs *FileStorage) DeleteModel() error {
	if err := os.Remove(fs.modelPath()); err != nil {
		if os.IsNotExist(err) {
			return ErrModelNotFound
		}
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return nil
}

// encrypt encrypts data using NaCl secretbox.
func (fs *FileStorage) encrypt(plaintext []byte) ([]byte, error) {
	var nonce [NonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}

	encrypted := secretbox.Seal(nonce[:], plaintext, &nonce, &fs.encryptionKey)
	return encrypted, nil
}

// decrypt decrypts data using NaCl secretbox.
func (fs *FileStorage) decrypt(ciphertext []byte) ([]byte, error) {
	if !fs.encryptionEnabled || len(ciphertext) < NonceSize {
		return nil, ErrEncryption
	}

	var nonce [NonceSize]byte
	copy(nonce[:], ciphertext[:NonceSize])

	plaintext, ok := secretbox.Open(nil, ciphertext[NonceSize:], &nonce, &fs.encryptionKey)
	if !ok {
		return nil, ErrEncryption
	}

	return plaintext, nil
}

// writeFileAtomic writes data to a temporary file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
