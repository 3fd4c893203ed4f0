package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/xaenox/relay-bot/internal/models"
	"go.uber.org/zap"
)

// DefaultStatePath is used when the file driver gets no path.
const DefaultStatePath = "relay_state.json"

const fileFormatVersion = 1

type fileState struct {
	Version  int             `json:"version"`
	Snapshot models.Snapshot `json:"snapshot"`
}

// FileStorage keeps the snapshot in a single JSON file that is replaced
// by rename, so a crash mid-write leaves the previous file intact.
type FileStorage struct {
	path   string
	logger *zap.Logger
}

func NewFileStorage(path string, logger *zap.Logger) (*FileStorage, error) {
	if path == "" {
		path = DefaultStatePath
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: create state directory: %w", err)
	}
	return &FileStorage{path: path, logger: logger}, nil
}

// Path returns the state file location.
func (s *FileStorage) Path() string {
	return s.path
}

func (s *FileStorage) Load(ctx context.Context) (models.Snapshot, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("No state file, starting fresh", zap.String("path", s.path))
		return models.Snapshot{}, nil
	}
	if err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: read %s: %w", s.path, err)
	}

	var state fileState
	if err := json.Unmarshal(data, &state); err != nil {
		return models.Snapshot{}, fmt.Errorf("storage: decode %s: %w", s.path, err)
	}
	if state.Version != fileFormatVersion {
		return models.Snapshot{}, fmt.Errorf("storage: %s has unsupported version %d", s.path, state.Version)
	}
	state.Snapshot.Normalize()
	return state.Snapshot, nil
}

func (s *FileStorage) Save(ctx context.Context, snapshot models.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(fileState{Version: fileFormatVersion, Snapshot: snapshot}, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode state: %w", err)
	}
	data = append(data, '\n')

	tmpFile, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("storage: write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("storage: sync temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("storage: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("storage: rename state file into place: %w", err)
	}
	success = true

	// Make the rename itself durable.
	if dir, err := os.Open(filepath.Dir(s.path)); err == nil {
		dir.Sync()
		dir.Close()
	}
	return nil
}

func (s *FileStorage) Close() error {
	return nil
}
