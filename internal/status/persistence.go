// Package status provides per-consumer check status tracking and persistence.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

//go:generate mockgen -destination=mocks/mock_status_persistence.go -package=mocks -source=persistence.go StatusPersistence

const (
	// StatusFileName is the name of the status file
	StatusFileName = "status.json"

	// lockFileName guards status.json against concurrent checker processes
	lockFileName = ".status.lock"

	lockRetryDelay = 50 * time.Millisecond
)

// StatusPersistence defines the interface for consumer status persistence
//
//nolint:revive // This name is fine
type StatusPersistence interface {
	// SaveStatus saves the status of a specific consumer
	SaveStatus(ctx context.Context, consumer string, status *ConsumerStatus) error

	// LoadStatus loads the status of a specific consumer
	// Returns nil without error if nothing was saved yet (first run)
	LoadStatus(ctx context.Context, consumer string) (*ConsumerStatus, error)

	// LoadAllStatus loads the status of every consumer
	LoadAllStatus(ctx context.Context) (map[string]*ConsumerStatus, error)
}

// fileStatusPersistence implements StatusPersistence using local filesystem
type fileStatusPersistence struct {
	basePath string
}

// NewFileStatusPersistence creates a new file-based status persistence
// basePath is the base directory where per-consumer status files will be stored
func NewFileStatusPersistence(basePath string) StatusPersistence {
	return &fileStatusPersistence{
		basePath: basePath,
	}
}

// SaveStatus saves the status to a JSON file in a consumer-specific directory
func (f *fileStatusPersistence) SaveStatus(ctx context.Context, consumer string, status *ConsumerStatus) error {
	consumerDir := filepath.Join(f.basePath, consumer)
	if err := os.MkdirAll(consumerDir, 0750); err != nil {
		return fmt.Errorf("failed to create status directory for consumer '%s': %w", consumer, err)
	}

	unlock, err := f.lock(ctx, consumerDir, false)
	if err != nil {
		return fmt.Errorf("failed to lock status for consumer '%s': %w", consumer, err)
	}
	defer unlock()

	filePath := filepath.Join(consumerDir, StatusFileName)

	// Marshal status to JSON with pretty printing for readability
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal status data for consumer '%s': %w", consumer, err)
	}

	// Write to temporary file first for atomic operation
	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary status file for consumer '%s': %w", consumer, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename status file for consumer '%s': %w", consumer, err)
	}

	return nil
}

// LoadStatus loads the status from a JSON file for a specific consumer
func (f *fileStatusPersistence) LoadStatus(ctx context.Context, consumer string) (*ConsumerStatus, error) {
	consumerDir := filepath.Join(f.basePath, consumer)
	filePath := filepath.Join(consumerDir, StatusFileName)

	if _, err := os.Stat(consumerDir); os.IsNotExist(err) {
		return nil, nil
	}

	unlock, err := f.lock(ctx, consumerDir, true)
	if err != nil {
		return nil, fmt.Errorf("failed to lock status for consumer '%s': %w", consumer, err)
	}
	defer unlock()

	// #nosec G304 -- filePath is built from basePath and a sanitized consumer key
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read status file for consumer '%s': %w", consumer, err)
	}

	var status ConsumerStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status data for consumer '%s': %w", consumer, err)
	}

	return &status, nil
}

// LoadAllStatus loads the status of every consumer directory under basePath
func (f *fileStatusPersistence) LoadAllStatus(ctx context.Context) (map[string]*ConsumerStatus, error) {
	result := make(map[string]*ConsumerStatus)

	entries, err := os.ReadDir(f.basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return result, nil
		}
		return nil, fmt.Errorf("failed to read status directory: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		consumer := entry.Name()
		status, err := f.LoadStatus(ctx, consumer)
		if err != nil {
			// Keep partial results if some consumers fail to load
			slog.WarnContext(ctx, "Skipping unreadable consumer status", "consumer", consumer, "error", err)
			continue
		}
		if status == nil {
			continue
		}

		result[consumer] = status
	}

	return result, nil
}

// lock takes the per-consumer file lock, shared for reads
func (*fileStatusPersistence) lock(ctx context.Context, dir string, shared bool) (func(), error) {
	fileLock := flock.New(filepath.Join(dir, lockFileName))

	var (
		locked bool
		err    error
	)
	if shared {
		locked, err = fileLock.TryRLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = fileLock.TryLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, fmt.Errorf("lock %s not acquired", fileLock.Path())
	}

	return func() {
		_ = fileLock.Unlock()
	}, nil
}
