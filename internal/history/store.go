package history

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"doctrans/internal/domain"
	"doctrans/internal/infra"
	"doctrans/internal/storage"
)

// Record is one task's durable history entry. It survives process
// restarts, unlike the registry's in-memory state.
type Record struct {
	TaskID     string               `json:"task_id"`
	Status     domain.TaskStatus    `json:"status"`
	FileID     string               `json:"file_id"`
	SourceLang string               `json:"source_lang"`
	TargetLang string               `json:"target_lang"`
	Model      string               `json:"model"`
	StartTime  time.Time            `json:"start_time"`
	EndTime    time.Time            `json:"end_time,omitempty"`
	Progress   float64              `json:"progress"`
	Stage      string               `json:"stage,omitempty"`
	Failure    string               `json:"failure,omitempty"`
	Artifacts  []domain.ArtifactRef `json:"artifacts,omitempty"`
}

// FileStatus annotates a listed record with on-disk artifact state.
type FileStatus struct {
	MonoExists bool  `json:"mono_exists"`
	DualExists bool  `json:"dual_exists"`
	MonoSize   int64 `json:"mono_size"`
	DualSize   int64 `json:"dual_size"`
}

// ListedRecord is a Record plus its artifact file status.
type ListedRecord struct {
	Record
	FileStatus FileStatus `json:"file_status"`
}

// Store keeps the translation history in a single JSON file, mirroring
// every registry transition it is told about.
type Store struct {
	mu      sync.Mutex
	path    string
	files   *storage.FileStore
	logger  infra.Logger
	records []Record
}

// NewStore loads (or initializes) the history file at path.
func NewStore(path string, files *storage.FileStore, logger infra.Logger) (*Store, error) {
	s := &Store{path: path, files: files, logger: logger}
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("history: read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, &s.records); err != nil {
		// A corrupt history file should not keep the service down.
		logger.Warn().Err(err).Str("path", path).Msg("history file unreadable, starting empty")
		s.records = nil
	}
	return s, nil
}

// Record upserts the task's history entry. Implements task.Recorder.
func (s *Store) Record(t domain.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := Record{
		TaskID:     t.ID,
		Status:     t.Status,
		FileID:     t.Config.FileID,
		SourceLang: t.Config.LangIn,
		TargetLang: t.Config.LangOut,
		Model:      t.Config.Model,
		StartTime:  t.CreatedAt,
		EndTime:    t.FinishedAt,
		Progress:   t.Percent,
		Stage:      t.Stage,
		Failure:    t.Failure,
		Artifacts:  t.Artifacts,
	}

	replaced := false
	for i := range s.records {
		if s.records[i].TaskID == t.ID {
			s.records[i] = rec
			replaced = true
			break
		}
	}
	if !replaced {
		s.records = append(s.records, rec)
	}
	s.persistLocked()
}

// List returns all records, newest first, annotated with artifact file
// status.
func (s *Store) List() []ListedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ListedRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, ListedRecord{Record: rec, FileStatus: s.fileStatus(rec)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return out
}

// Delete removes one record. Fails with ErrNotFound for unknown ids.
func (s *Store) Delete(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].TaskID == taskID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			s.persistLocked()
			return nil
		}
	}
	return domain.ErrNotFound
}

// DeleteMany removes the given records and reports how many were found.
func (s *Store) DeleteMany(taskIDs []string) int {
	drop := make(map[string]struct{}, len(taskIDs))
	for _, id := range taskIDs {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.records[:0]
	deleted := 0
	for _, rec := range s.records {
		if _, ok := drop[rec.TaskID]; ok {
			deleted++
			continue
		}
		kept = append(kept, rec)
	}
	s.records = kept
	if deleted > 0 {
		s.persistLocked()
	}
	return deleted
}

// OrphanRecord identifies a completed record whose outputs are gone.
type OrphanRecord struct {
	TaskID      string `json:"task_id"`
	FileID      string `json:"file_id"`
	MonoMissing bool   `json:"mono_missing"`
	DualMissing bool   `json:"dual_missing"`
}

// CleanupResult reports what a cleanup pass found and removed.
type CleanupResult struct {
	OrphanFiles    []string       `json:"orphan_files"`
	OrphanRecords  []OrphanRecord `json:"orphan_records"`
	DeletedFiles   int            `json:"deleted_files"`
	DeletedRecords int            `json:"deleted_records"`
	Errors         []string       `json:"errors"`
}

// Cleanup scans the outputs tree against the history. Orphan files exist
// on disk but belong to no record; orphan records are completed entries
// whose artifact files are missing. Deletion of either is opt-in.
func (s *Store) Cleanup(deleteFiles, deleteRecords bool) (CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := CleanupResult{
		OrphanFiles:   []string{},
		OrphanRecords: []OrphanRecord{},
		Errors:        []string{},
	}

	referenced := make(map[string]struct{})
	for _, rec := range s.records {
		for _, ref := range rec.Artifacts {
			referenced[ref.Key] = struct{}{}
		}
	}

	onDisk, err := s.files.List(storage.OutputsPrefix, ".pdf")
	if err != nil {
		return result, err
	}
	for _, key := range onDisk {
		if _, ok := referenced[key]; !ok {
			result.OrphanFiles = append(result.OrphanFiles, key)
		}
	}

	for _, rec := range s.records {
		if rec.Status != domain.TaskStatusCompleted {
			continue
		}
		orphan := OrphanRecord{TaskID: rec.TaskID, FileID: rec.FileID}
		for _, ref := range rec.Artifacts {
			if s.files.Exists(ref.Key) {
				continue
			}
			switch ref.Kind {
			case domain.ArtifactMono:
				orphan.MonoMissing = true
			case domain.ArtifactDual:
				orphan.DualMissing = true
			}
		}
		if orphan.MonoMissing || orphan.DualMissing {
			result.OrphanRecords = append(result.OrphanRecords, orphan)
		}
	}

	if deleteFiles {
		for _, key := range result.OrphanFiles {
			if err := s.files.Remove(key); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.DeletedFiles++
		}
	}
	if deleteRecords && len(result.OrphanRecords) > 0 {
		drop := make(map[string]struct{}, len(result.OrphanRecords))
		for _, orphan := range result.OrphanRecords {
			drop[orphan.TaskID] = struct{}{}
		}
		kept := s.records[:0]
		for _, rec := range s.records {
			if _, ok := drop[rec.TaskID]; ok {
				result.DeletedRecords++
				continue
			}
			kept = append(kept, rec)
		}
		s.records = kept
		s.persistLocked()
	}
	return result, nil
}

// StatusStats aggregates counts and artifact sizes for one status.
type StatusStats struct {
	Count int   `json:"count"`
	Size  int64 `json:"size"`
}

// Stats summarizes stored artifacts across the history.
type Stats struct {
	TotalFiles int                    `json:"total_files"`
	TotalSize  int64                  `json:"total_size"`
	ByStatus   map[string]StatusStats `json:"by_status"`
}

// Stats walks the history and sums artifact files that still exist.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{ByStatus: map[string]StatusStats{
		string(domain.TaskStatusCompleted): {},
		string(domain.TaskStatusRunning):   {},
		string(domain.TaskStatusFailed):    {},
	}}
	for _, rec := range s.records {
		entry := stats.ByStatus[string(rec.Status)]
		entry.Count++
		if rec.Status == domain.TaskStatusCompleted {
			for _, ref := range rec.Artifacts {
				size, err := s.files.Stat(ref.Key)
				if err != nil {
					continue
				}
				entry.Size += size
				stats.TotalSize += size
				stats.TotalFiles++
			}
		}
		stats.ByStatus[string(rec.Status)] = entry
	}
	return stats
}

// persistLocked writes the history file. Caller holds s.mu. Persistence
// failures are logged, not propagated: the in-memory view stays correct.
func (s *Store) persistLocked() {
	raw, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		s.logger.Error().Err(err).Msg("history: encode failed")
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Error().Err(err).Msg("history: ensure directory failed")
		return
	}
	if err := os.WriteFile(s.path, raw, 0o644); err != nil {
		s.logger.Error().Err(err).Str("path", s.path).Msg("history: write failed")
	}
}

func (s *Store) fileStatus(rec Record) FileStatus {
	var status FileStatus
	if rec.Status != domain.TaskStatusCompleted {
		return status
	}
	for _, ref := range rec.Artifacts {
		size, err := s.files.Stat(ref.Key)
		if err != nil {
			continue
		}
		switch ref.Kind {
		case domain.ArtifactMono:
			status.MonoExists = true
			status.MonoSize = size
		case domain.ArtifactDual:
			status.DualExists = true
			status.DualSize = size
		}
	}
	return status
}
