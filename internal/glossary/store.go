package glossary

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"doctrans/internal/domain"
	"doctrans/internal/storage"
)

// Info describes one stored glossary. The CSV content itself is opaque to
// the service; only the engine reads it.
type Info struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	TargetLang string    `json:"target_lang"`
	CreatedAt  time.Time `json:"created_at"`
	EntryCount int       `json:"entry_count"`
}

// Store keeps glossary CSV files plus a JSON info sidecar per glossary in
// the file store's glossaries/ prefix.
type Store struct {
	files *storage.FileStore
}

// NewStore creates a glossary store backed by files.
func NewStore(files *storage.FileStore) *Store {
	return &Store{files: files}
}

// Save stores the CSV bytes under a fresh identifier and writes the
// sidecar metadata. The entry count is the number of non-empty lines
// minus the header.
func (s *Store) Save(ctx context.Context, name, targetLang string, data []byte) (Info, error) {
	info := Info{
		ID:         uuid.NewString(),
		Name:       name,
		TargetLang: targetLang,
		CreatedAt:  time.Now().UTC(),
		EntryCount: countEntries(data),
	}

	if _, err := s.files.Write(ctx, s.csvKey(info.ID), data); err != nil {
		return Info{}, fmt.Errorf("glossary: store csv: %w", err)
	}
	meta, err := json.Marshal(info)
	if err != nil {
		return Info{}, fmt.Errorf("glossary: encode info: %w", err)
	}
	if _, err := s.files.Write(ctx, s.infoKey(info.ID), meta); err != nil {
		return Info{}, fmt.Errorf("glossary: store info: %w", err)
	}
	return info, nil
}

// Get returns the metadata for one glossary.
func (s *Store) Get(id string) (Info, error) {
	raw, err := s.files.Read(s.infoKey(id))
	if err != nil {
		return Info{}, domain.ErrNotFound
	}
	var info Info
	if err := json.Unmarshal(raw, &info); err != nil {
		return Info{}, fmt.Errorf("glossary: decode info %s: %w", id, err)
	}
	return info, nil
}

// List returns all glossaries, newest first.
func (s *Store) List() ([]Info, error) {
	keys, err := s.files.List(storage.GlossariesPrefix, ".json")
	if err != nil {
		return nil, err
	}
	out := make([]Info, 0, len(keys))
	for _, key := range keys {
		raw, err := s.files.Read(key)
		if err != nil {
			continue
		}
		var info Info
		if err := json.Unmarshal(raw, &info); err != nil {
			continue
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a glossary and its sidecar. Unknown ids fail with
// ErrNotFound.
func (s *Store) Delete(id string) error {
	if !s.files.Exists(s.csvKey(id)) {
		return domain.ErrNotFound
	}
	if err := s.files.Remove(s.csvKey(id)); err != nil {
		return err
	}
	return s.files.Remove(s.infoKey(id))
}

// Exists reports whether a glossary id refers to a stored CSV. Used to
// validate attachments before a task is created.
func (s *Store) Exists(id string) bool {
	return s.files.Exists(s.csvKey(id))
}

// Path resolves the absolute CSV path for handing to the engine.
func (s *Store) Path(id string) (string, error) {
	if !s.files.Exists(s.csvKey(id)) {
		return "", domain.ErrNotFound
	}
	return s.files.Resolve(s.csvKey(id))
}

func (s *Store) csvKey(id string) string {
	return path.Join(storage.GlossariesPrefix, id+".csv")
}

func (s *Store) infoKey(id string) string {
	return path.Join(storage.GlossariesPrefix, id+".json")
}

func countEntries(data []byte) int {
	lines := 0
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) != "" {
			lines++
		}
	}
	if lines <= 1 {
		return 0
	}
	return lines - 1
}
