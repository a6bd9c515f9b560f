package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Persister stores the full contact-id → session mapping between restarts.
// SaveAll failures are logged by the store, never surfaced to callers;
// in-memory state stays authoritative for the process lifetime.
type Persister interface {
	LoadAll(ctx context.Context) (map[string]*ContactSession, error)
	SaveAll(ctx context.Context, sessions map[string]*ContactSession) error
}

// FilePersister keeps the session mapping in a single JSON file.
type FilePersister struct {
	path string
}

// NewFilePersister creates a persister writing to the given path.
func NewFilePersister(path string) *FilePersister {
	return &FilePersister{path: path}
}

// LoadAll reads the persisted mapping. A missing file is not an error and
// yields an empty map.
func (p *FilePersister) LoadAll(ctx context.Context) (map[string]*ContactSession, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(p.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*ContactSession{}, nil
		}
		return nil, fmt.Errorf("session: failed to read %s: %w", p.path, err)
	}

	sessions := map[string]*ContactSession{}
	if err := json.Unmarshal(data, &sessions); err != nil {
		return nil, fmt.Errorf("session: corrupt session file %s: %w", p.path, err)
	}
	return sessions, nil
}

// SaveAll writes the mapping atomically via a temp file and rename.
func (p *FilePersister) SaveAll(ctx context.Context, sessions map[string]*ContactSession) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("session: failed to encode sessions: %w", err)
	}

	dir := filepath.Dir(p.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(p.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("session: failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("session: failed to write sessions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, p.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("session: failed to replace %s: %w", p.path, err)
	}
	return nil
}
