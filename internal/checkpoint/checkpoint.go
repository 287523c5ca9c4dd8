package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klimeurt/repohealth-collector/internal/record"
)

// Store persists the full record set to a JSON file. Persist writes a
// temporary file in the target directory and renames it over the old
// checkpoint, so an interrupted write leaves either the previous or the new
// file intact, never a torn one.
type Store struct {
	Path string
}

// New creates a Store for the given checkpoint path.
func New(path string) *Store {
	return &Store{Path: path}
}

// Load reads the checkpoint. A missing file is a cold start and returns an
// empty record set.
func (s *Store) Load() ([]*record.Record, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", s.Path, err)
	}

	var records []*record.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse checkpoint %s: %w", s.Path, err)
	}
	return records, nil
}

// Persist writes the full record set, replacing any previous checkpoint.
func (s *Store) Persist(records []*record.Record) error {
	if records == nil {
		records = []*record.Record{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temporary checkpoint: %w", err)
	}

	if err := os.Rename(tmpName, s.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace checkpoint: %w", err)
	}
	return nil
}
