package persistence

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/suhana-ai/appsecurity"
)

// Verify FileStore implements the KeyStore and SaltStore interfaces.
var (
	_ appsecurity.KeyStore  = (*FileStore)(nil)
	_ appsecurity.SaltStore = (*FileStore)(nil)
)

// SaltFileSuffix is appended to the key store path to name the sibling file
// holding the per-installation KDF salt.
const SaltFileSuffix = ".salt"

// FileStore persists the key ring as a JSON array of key records, newest
// first, at a configured path. Every write replaces the whole file via a
// temp-file rename, so a crash mid-write cannot leave a partially written
// store.
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore backed by the file at path. Parent
// directories are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load retrieves the stored ring. A missing file is an empty store, not an
// error.
func (s *FileStore) Load(_ context.Context) ([]appsecurity.StoredKey, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, errors.Wrapf(err, "error reading key store %s", s.path)
	}

	var keys []appsecurity.StoredKey
	if err := json.Unmarshal(data, &keys); err != nil {
		return nil, errors.Wrapf(err, "error parsing key store %s", s.path)
	}

	return keys, nil
}

// Store atomically replaces the stored ring.
func (s *FileStore) Store(_ context.Context, keys []appsecurity.StoredKey) error {
	data, err := json.Marshal(keys)
	if err != nil {
		return errors.Wrap(err, "error serializing key store")
	}

	return s.writeAtomic(s.path, data, 0o600)
}

// LoadSalt retrieves the per-installation KDF salt, or nil if none has been
// stored.
func (s *FileStore) LoadSalt(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.path + SaltFileSuffix)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, errors.Wrap(err, "error reading salt file")
	}

	salt, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return nil, errors.Wrap(err, "error decoding salt file")
	}

	return salt, nil
}

// StoreSalt persists the per-installation KDF salt beside the key store.
func (s *FileStore) StoreSalt(_ context.Context, salt []byte) error {
	encoded := base64.StdEncoding.EncodeToString(salt)

	return s.writeAtomic(s.path+SaltFileSuffix, []byte(encoded), 0o600)
}

func (s *FileStore) writeAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "error creating key store directory %s", dir)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp")
	if err != nil {
		return errors.Wrap(err, "error creating temp file")
	}

	_, werr := tmp.Write(data)

	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}

	if werr == nil {
		werr = os.Chmod(tmp.Name(), mode)
	}

	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}

	if werr != nil {
		_ = os.Remove(tmp.Name())
		return errors.Wrapf(werr, "error writing %s", path)
	}

	return nil
}
