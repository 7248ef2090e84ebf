package oauth2

import (
	"context"
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"restify/internal/common/errors"
	"restify/internal/common/logging"
	"restify/internal/crypto"
)

// FileStore keeps the State sealed in a file readable only by the current user.
//
// A file that cannot be read or opened with the store key is treated as
// empty, so a corrupt or foreign file leads to a fresh authorization instead
// of a failure.
type FileStore struct {
	path   string
	sealer *crypto.Sealer
	logger logging.Logger
	mu     sync.Mutex
}

// NewFileStore creates a store backed by path. The directory is created on first write.
func NewFileStore(path string, sealer *crypto.Sealer) (*FileStore, error) {
	if path == "" {
		return nil, errors.ValidationError("file store path is required")
	}
	if sealer == nil {
		return nil, errors.ValidationError("file store requires a sealer")
	}

	return &FileStore{
		path:   path,
		sealer: sealer,
		logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "store", Value: path}),
	}, nil
}

// Path returns the file the State is written to.
func (f *FileStore) Path() string {
	return f.path
}

func (f *FileStore) TryRestore(context.Context) (*State, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sealed, err := os.ReadFile(f.path)
	if err != nil {
		if !stderrors.Is(err, fs.ErrNotExist) {
			f.logger.Warn("Failed to read authorization state, ignoring it", logging.Err(err))
		}
		return nil, false, nil
	}

	var state State
	if err := f.sealer.OpenJSON(sealed, &state); err != nil {
		f.logger.Warn("Failed to open authorization state, ignoring it", logging.Err(err))
		return nil, false, nil
	}
	if state.Scopes == nil {
		state.Scopes = []string{}
	}

	return &state, true, nil
}

func (f *FileStore) Store(_ context.Context, state *State) error {
	if state == nil {
		return errors.ValidationError("state cannot be nil")
	}

	sealed, err := f.sealer.SealJSON(state)
	if err != nil {
		return errors.InternalError("failed to seal authorization state", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0700); err != nil {
		return errors.InternalError("failed to create store directory", err)
	}

	// Write next to the target and rename, so a crash never leaves half a file behind
	tmp, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return errors.InternalError("failed to create temporary state file", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return errors.InternalError("failed to restrict state file permissions", err)
	}
	if _, err := tmp.Write(sealed); err != nil {
		tmp.Close()
		return errors.InternalError("failed to write authorization state", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.InternalError("failed to write authorization state", err)
	}

	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return errors.InternalError("failed to replace authorization state", err)
	}
	return nil
}

func (f *FileStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.Remove(f.path); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return errors.InternalError("failed to remove authorization state", err)
	}
	return nil
}
