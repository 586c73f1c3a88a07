package rollback

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"medallion/internal/common"
	"medallion/pkg/errors"
	"medallion/pkg/models"
)

const (
	runPrefix        = "run-"
	activationPrefix = "activation-"
)

// HistoryManager keeps run results and snapshot activations as JSON files
type HistoryManager struct {
	storageDir    string
	mu            sync.RWMutex
	runs          map[string]*RunRecord
	activations   map[string]*Activation
	maxHistory    int
	retentionDays int
	now           func() time.Time
}

// NewHistoryManager creates a history manager backed by storageDir
func NewHistoryManager(storageDir string) (*HistoryManager, error) {
	if err := os.MkdirAll(storageDir, common.DirPermissionNormal); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to create history directory").
			WithContext("path", storageDir)
	}

	hm := &HistoryManager{
		storageDir:    storageDir,
		runs:          make(map[string]*RunRecord),
		activations:   make(map[string]*Activation),
		maxHistory:    100,
		retentionDays: 30,
		now:           time.Now,
	}

	if err := hm.loadHistory(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to load history").
			WithContext("path", storageDir)
	}

	return hm, nil
}

// Dir returns the storage directory
func (hm *HistoryManager) Dir() string {
	return hm.storageDir
}

// RecordRun persists a finished run
func (hm *HistoryManager) RecordRun(result *models.RunResult) error {
	if result == nil || result.RunID == "" {
		return errors.New(errors.ErrCodeInvalidInput, "run result has no id")
	}

	hm.mu.Lock()
	defer hm.mu.Unlock()

	record := &RunRecord{
		RunResult:  *result,
		RecordedAt: hm.now(),
	}
	hm.runs[record.RunID] = record

	if err := hm.save(runPrefix+record.RunID, record); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	hm.cleanup()
	return nil
}

// RecordActivation persists a manual activation
func (hm *HistoryManager) RecordActivation(a *Activation) error {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	hm.activations[a.ID] = a
	if err := hm.save(activationPrefix+a.ID, a); err != nil {
		return fmt.Errorf("failed to save activation: %w", err)
	}
	return nil
}

// GetRun retrieves a run by id
func (hm *HistoryManager) GetRun(id string) (*RunRecord, error) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	record, exists := hm.runs[id]
	if !exists {
		return nil, errors.New(errors.ErrCodeInvalidInput, "run not found in history").
			WithContext("run_id", id)
	}
	return record, nil
}

// Runs returns recorded runs, newest first
func (hm *HistoryManager) Runs(limit int) []*RunRecord {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	runs := make([]*RunRecord, 0, len(hm.runs))
	for _, r := range hm.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].Started.Equal(runs[j].Started) {
			return runs[i].RunID > runs[j].RunID
		}
		return runs[i].Started.After(runs[j].Started)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs
}

// LastSuccessful returns the newest run that published a snapshot
func (hm *HistoryManager) LastSuccessful() (*RunRecord, error) {
	for _, r := range hm.Runs(0) {
		if r.Status == models.RunSucceeded {
			return r, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNoSnapshot, "no successful runs recorded")
}

// Activations returns recorded activations, newest first
func (hm *HistoryManager) Activations(limit int) []*Activation {
	hm.mu.RLock()
	defer hm.mu.RUnlock()

	out := make([]*Activation, 0, len(hm.activations))
	for _, a := range hm.activations {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Time.After(out[j].Time)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (hm *HistoryManager) loadHistory() error {
	files, err := filepath.Glob(filepath.Join(hm.storageDir, "*.json"))
	if err != nil {
		return err
	}

	for _, file := range files {
		name := filepath.Base(file)
		switch {
		case strings.HasPrefix(name, runPrefix):
			var r RunRecord
			if err := hm.load(file, &r); err != nil || r.RunID == "" {
				continue
			}
			hm.runs[r.RunID] = &r
		case strings.HasPrefix(name, activationPrefix):
			var a Activation
			if err := hm.load(file, &a); err != nil || a.ID == "" {
				continue
			}
			hm.activations[a.ID] = &a
		}
	}
	return nil
}

func (hm *HistoryManager) save(name string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(hm.path(name), data, common.FilePermissionSecure)
}

func (hm *HistoryManager) load(path string, v interface{}) error {
	validated, err := common.ValidatePath(path, hm.storageDir)
	if err != nil {
		return fmt.Errorf("invalid file path: %w", err)
	}

	data, err := os.ReadFile(validated) // #nosec G304 - path is validated
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func (hm *HistoryManager) path(name string) string {
	return filepath.Join(hm.storageDir, name+".json")
}

// cleanup drops runs older than the retention window and caps the count
func (hm *HistoryManager) cleanup() {
	cutoff := hm.now().AddDate(0, 0, -hm.retentionDays)

	for id, r := range hm.runs {
		if r.Started.Before(cutoff) {
			hm.removeRun(id)
		}
	}

	if len(hm.runs) <= hm.maxHistory {
		return
	}

	runs := make([]*RunRecord, 0, len(hm.runs))
	for _, r := range hm.runs {
		runs = append(runs, r)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Started.Before(runs[j].Started)
	})
	for _, r := range runs[:len(runs)-hm.maxHistory] {
		hm.removeRun(r.RunID)
	}
}

func (hm *HistoryManager) removeRun(id string) {
	delete(hm.runs, id)
	_ = os.Remove(hm.path(runPrefix + id))
}
