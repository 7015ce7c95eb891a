// Package journal records purification batches to the filesystem.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jamesainslie/purify/pkg/purify/types"
)

// Entry represents a single journal entry covering one batch.
type Entry struct {
	ID        string      `json:"id"`
	Timestamp time.Time   `json:"timestamp"`
	Jobs      []JobRecord `json:"jobs"`
	Summary   Summary     `json:"summary"`
}

// JobRecord represents one processed APK in the journal.
type JobRecord struct {
	Input      string             `json:"input"`
	Output     string             `json:"output,omitempty"`
	Backup     string             `json:"backup,omitempty"`
	State      types.JobState     `json:"state"`
	Risk       types.RiskLevel    `json:"risk,omitempty"`
	Size       int64              `json:"size"`
	Duration   time.Duration      `json:"duration"`
	Patch      *types.PatchResult `json:"patch,omitempty"`
	Signed     bool               `json:"signed"`
	Notes      []string           `json:"notes,omitempty"`
	FailureMsg string             `json:"failure,omitempty"`
}

// Summary contains batch totals.
type Summary struct {
	TotalJobs  int   `json:"total_jobs"`
	Succeeded  int   `json:"succeeded"`
	Failed     int   `json:"failed"`
	Cancelled  int   `json:"cancelled"`
	TotalBytes int64 `json:"total_bytes"`
}

// Journal manages batch logging to the filesystem.
type Journal struct {
	dir string
	mu  sync.Mutex
}

// New creates a new Journal with the given directory.
// The directory is not created until EnsureDir is called.
func New(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("journal directory cannot be empty")
	}
	return &Journal{dir: dir}, nil
}

// EnsureDir creates the journal directory if it does not exist.
func (j *Journal) EnsureDir() error {
	return os.MkdirAll(j.dir, 0o755)
}

// Log creates and persists a journal entry for the given batch.
func (j *Journal) Log(jobs []JobRecord) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	now := time.Now().UTC()

	var summary Summary
	summary.TotalJobs = len(jobs)
	for _, rec := range jobs {
		summary.TotalBytes += rec.Size
		switch rec.State {
		case types.StateDone:
			summary.Succeeded++
		case types.StateFailed:
			summary.Failed++
		case types.StateCancelled:
			summary.Cancelled++
		}
	}

	entry := &Entry{
		ID:        generateID(now),
		Timestamp: now,
		Jobs:      jobs,
		Summary:   summary,
	}

	if err := j.writeEntry(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// writeEntry writes an entry to disk atomically via a temp file rename.
func (j *Journal) writeEntry(entry *Entry) error {
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal journal entry: %w", err)
	}

	final := filepath.Join(j.dir, entry.ID+".json")
	tmp := final + ".tmp"

	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("finalize journal entry: %w", err)
	}
	return nil
}

// List returns journal entries sorted newest first.
// If limit is positive, at most that many entries are returned.
func (j *Journal) List(limit int) ([]*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read journal directory: %w", err)
	}

	var entries []*Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		entry, err := j.readEntryFile(filepath.Join(j.dir, f.Name()))
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}

	sort.Slice(entries, func(a, b int) bool {
		return entries[a].Timestamp.After(entries[b].Timestamp)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Get returns the entry with the given ID.
func (j *Journal) Get(id string) (*Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entry, err := j.readEntryFile(filepath.Join(j.dir, id+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("journal entry not found: %s", id)
		}
		return nil, err
	}
	return entry, nil
}

func (j *Journal) readEntryFile(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("parse journal entry %s: %w", filepath.Base(path), err)
	}
	return &entry, nil
}

// Cleanup removes entries older than the given retention period.
// It returns the number of removed entries.
func (j *Journal) Cleanup(retentionDays int) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if retentionDays <= 0 {
		return 0, nil
	}

	files, err := os.ReadDir(j.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read journal directory: %w", err)
	}

	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)
	removed := 0
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(j.dir, f.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// generateID builds a unique entry ID from a timestamp and a random suffix.
func generateID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]
	return fmt.Sprintf("batch-%s-%s", now.Format("2006-01-02T15-04-05"), suffix)
}
