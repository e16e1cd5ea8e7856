package recent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend stores the list in a JSON file as {"mintdash.recent_mints": [...]}.
// Other keys in the file are preserved.
type FileBackend struct {
	path string
}

// NewFileBackend stores the list at path, creating parent directories on save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (f *FileBackend) readAll() (map[string]json.RawMessage, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]json.RawMessage{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]json.RawMessage{}, nil
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	if doc == nil {
		doc = map[string]json.RawMessage{}
	}
	return doc, nil
}

func (f *FileBackend) Load(ctx context.Context) ([]string, error) {
	doc, err := f.readAll()
	if err != nil {
		return nil, err
	}

	raw, ok := doc[StorageKey]
	if !ok {
		return nil, nil
	}
	var mints []string
	if err := json.Unmarshal(raw, &mints); err != nil {
		return nil, fmt.Errorf("parse %s in %s: %w", StorageKey, f.path, err)
	}
	return mints, nil
}

func (f *FileBackend) Save(ctx context.Context, mints []string) error {
	doc, err := f.readAll()
	if err != nil {
		// Corrupt files are overwritten.
		doc = map[string]json.RawMessage{}
	}

	raw, err := json.Marshal(mints)
	if err != nil {
		return err
	}
	doc[StorageKey] = raw

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(f.path), err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replace %s: %w", f.path, err)
	}
	return nil
}
