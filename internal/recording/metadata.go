package recording

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Metadata describes one recording file.
type Metadata struct {
	ID            string    `json:"id"`
	Host          string    `json:"host"`
	Filename      string    `json:"filename"`
	StartTime     time.Time `json:"start_time"`
	Duration      float64   `json:"duration"` // seconds
	Frames        uint64    `json:"frames"`
	Keyframes     uint64    `json:"keyframes"`
	Bytes         int64     `json:"bytes"`
	Missed        uint64    `json:"missed,omitempty"`
	Resolution    string    `json:"resolution,omitempty"`
	FPS           int       `json:"fps,omitempty"`
	RecordingPath string    `json:"recording_path"`
}

// Store keeps an index of recordings in a JSON file next to them.
type Store struct {
	recordingsDir string
	metadataFile  string
}

// NewStore opens (and creates) the recordings directory dir.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recordings directory: %w", err)
	}
	return &Store{
		recordingsDir: dir,
		metadataFile:  filepath.Join(dir, "metadata.json"),
	}, nil
}

// Dir returns the recordings directory.
func (s *Store) Dir() string {
	return s.recordingsDir
}

// PathFor returns the file path a new recording with id should use.
func (s *Store) PathFor(id string) string {
	return filepath.Join(s.recordingsDir, id+Extension)
}

// Save inserts or replaces the entry for meta.ID. Entries are kept newest
// first.
func (s *Store) Save(meta Metadata) error {
	all, err := s.LoadAll()
	if err != nil {
		return fmt.Errorf("failed to load existing metadata: %w", err)
	}

	replaced := false
	for i := range all {
		if all[i].ID == meta.ID {
			all[i] = meta
			replaced = true
			break
		}
	}
	if !replaced {
		all = append(all, meta)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].StartTime.After(all[j].StartTime)
	})
	return s.write(all)
}

// LoadAll returns every entry, newest first.
func (s *Store) LoadAll() ([]Metadata, error) {
	data, err := os.ReadFile(s.metadataFile)
	if err != nil {
		if os.IsNotExist(err) {
			return []Metadata{}, nil
		}
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}
	var all []Metadata
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
	}
	return all, nil
}

// Get returns the entry for id. A unique id prefix is accepted.
func (s *Store) Get(id string) (*Metadata, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var match *Metadata
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
		if strings.HasPrefix(all[i].ID, id) {
			if match != nil {
				return nil, fmt.Errorf("recording id %q is ambiguous", id)
			}
			match = &all[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("metadata not found for recording %s", id)
	}
	return match, nil
}

// Delete removes the entry and its file.
func (s *Store) Delete(id string) error {
	meta, err := s.Get(id)
	if err != nil {
		return err
	}
	all, err := s.LoadAll()
	if err != nil {
		return err
	}
	kept := make([]Metadata, 0, len(all))
	for _, m := range all {
		if m.ID != meta.ID {
			kept = append(kept, m)
		}
	}
	if err := os.Remove(meta.RecordingPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove recording: %w", err)
	}
	return s.write(kept)
}

// Scan lists recording files present in the directory, indexed or not.
func (s *Store) Scan() ([]string, error) {
	entries, err := os.ReadDir(s.recordingsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}
	files := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
			files = append(files, filepath.Join(s.recordingsDir, entry.Name()))
		}
	}
	return files, nil
}

func (s *Store) write(all []Metadata) error {
	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(s.metadataFile, data, 0o644); err != nil {
		return fmt.Errorf("failed to write metadata file: %w", err)
	}
	return nil
}
