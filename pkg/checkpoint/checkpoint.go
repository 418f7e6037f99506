package checkpoint

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"wxexport/pkg/logger"
	"wxexport/pkg/models"
)

const currentVersion = 1

// Checkpoint is the catalog collected so far for one account
type Checkpoint struct {
	Account         string              `json:"account"`
	FakeID          string              `json:"fakeid"`
	Window          string              `json:"window"`
	NextOffset      int                 `json:"next_offset"`
	Pages           int                 `json:"pages"`
	Complete        bool                `json:"complete"`
	LastStop        string              `json:"last_stop,omitempty"`
	Articles        []models.ArticleRef `json:"articles"`
	TotalDownloaded int                 `json:"total_downloaded"`
	TotalSkipped    int                 `json:"total_skipped"`
	CreatedAt       time.Time           `json:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at"`
	Version         int                 `json:"version"`
}

// Manager handles checkpoint operations for one account
type Manager struct {
	mu             sync.Mutex
	checkpointPath string
	logger         logger.Logger
}

// NewManager creates a manager for account. An empty dir selects the
// platform data directory.
func NewManager(account, dir string) (*Manager, error) {
	if dir == "" {
		dataDir, err := getDataDirectory()
		if err != nil {
			return nil, fmt.Errorf("failed to get data directory: %w", err)
		}
		dir = filepath.Join(dataDir, "checkpoints")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	checkpointPath := filepath.Join(dir, fmt.Sprintf("%s.checkpoint.json", models.SanitizeTitle(account)))

	return &Manager{
		checkpointPath: checkpointPath,
		logger:         logger.GetLogger(),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Create starts a fresh checkpoint, replacing any existing one
func (m *Manager) Create(account, fakeid string, window *models.DateWindow) (*Checkpoint, error) {
	now := time.Now()
	checkpoint := &Checkpoint{
		Account:   account,
		FakeID:    fakeid,
		Window:    window.String(),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   currentVersion,
	}

	if err := m.Save(checkpoint); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint created", map[string]interface{}{
		"account": account,
		"path":    m.checkpointPath,
	})

	return checkpoint, nil
}

// Load reads the checkpoint. It returns nil, nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	if err := json.NewDecoder(file).Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if checkpoint.Version > currentVersion {
		return nil, fmt.Errorf("checkpoint version %d is newer than supported version %d", checkpoint.Version, currentVersion)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"account":     checkpoint.Account,
		"articles":    len(checkpoint.Articles),
		"next_offset": checkpoint.NextOffset,
		"complete":    checkpoint.Complete,
		"updated_at":  checkpoint.UpdatedAt,
	})

	return &checkpoint, nil
}

// Save writes the checkpoint atomically
func (m *Manager) Save(checkpoint *Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	checkpoint.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(checkpoint); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"account":     checkpoint.Account,
		"articles":    len(checkpoint.Articles),
		"next_offset": checkpoint.NextOffset,
	})

	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// BackupPath returns where BackupCheckpoint copies the checkpoint
func (m *Manager) BackupPath() string {
	return m.checkpointPath + ".backup"
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// Resumable reports whether cp can continue a run for the same account
// and date window
func (cp *Checkpoint) Resumable(fakeid string, window *models.DateWindow) bool {
	return cp != nil && cp.FakeID == fakeid && cp.Window == window.String()
}

// UpdateCatalog appends newly collected articles, skipping links already
// recorded, and moves the resume offset forward
func (m *Manager) UpdateCatalog(cp *Checkpoint, articles []models.ArticleRef, nextOffset, pages int, complete bool, stop string) error {
	seen := make(map[string]bool, len(cp.Articles))
	for _, a := range cp.Articles {
		seen[a.Link] = true
	}
	for _, a := range articles {
		if seen[a.Link] {
			continue
		}
		seen[a.Link] = true
		cp.Articles = append(cp.Articles, a)
	}

	cp.NextOffset = nextOffset
	cp.Pages += pages
	cp.Complete = complete
	cp.LastStop = stop
	return m.Save(cp)
}

// RecordExport stores the counts of the last download phase
func (m *Manager) RecordExport(cp *Checkpoint, downloaded, skipped int) error {
	cp.TotalDownloaded = downloaded
	cp.TotalSkipped = skipped
	return m.Save(cp)
}

// GetCheckpointInfo returns a summary of the checkpoint
func (m *Manager) GetCheckpointInfo() (map[string]interface{}, error) {
	checkpoint, err := m.Load()
	if err != nil {
		return nil, err
	}
	if checkpoint == nil {
		return nil, nil
	}

	return map[string]interface{}{
		"account":          checkpoint.Account,
		"articles":         len(checkpoint.Articles),
		"next_offset":      checkpoint.NextOffset,
		"complete":         checkpoint.Complete,
		"total_downloaded": checkpoint.TotalDownloaded,
		"created_at":       checkpoint.CreatedAt,
		"updated_at":       checkpoint.UpdatedAt,
		"age":              time.Since(checkpoint.UpdatedAt),
	}, nil
}

// BackupCheckpoint copies the current checkpoint next to itself
func (m *Manager) BackupCheckpoint() error {
	if !m.Exists() {
		return nil
	}

	backupPath := m.BackupPath()

	src, err := os.Open(m.checkpointPath)
	if err != nil {
		return fmt.Errorf("failed to open checkpoint for backup: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(backupPath)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to copy checkpoint to backup: %w", err)
	}

	m.logger.Debug("Checkpoint backed up")
	return nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "linux":
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "wxexport")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "wxexport")
		}
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "wxexport")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "wxexport")
	default:
		return "", fmt.Errorf("unsupported operating system: %s", runtime.GOOS)
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}

	return dataDir, nil
}
