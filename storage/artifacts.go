package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"

	"adpulse/core"
)

// ArtifactStore manages per-run staging directories and the published
// canonical tree.
//
//	<staging>/<run-id>/...            intermediate + final artifacts
//	<published>/<client>/<as-of>/...  canonical, only ever swapped in whole
//
// Downstream consumers read only the published tree; they can never observe
// a half-written run.
type ArtifactStore struct {
	stagingDir   string
	publishedDir string
	logger       *zap.SugaredLogger
}

// NewArtifactStore creates the store, making both roots.
func NewArtifactStore(stagingDir, publishedDir string, logger *zap.SugaredLogger) (*ArtifactStore, error) {
	for _, dir := range []string{stagingDir, publishedDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory %s: %w", dir, err)
		}
	}
	return &ArtifactStore{stagingDir: stagingDir, publishedDir: publishedDir, logger: logger}, nil
}

// StageDir returns (creating if needed) the staging directory for a run.
func (s *ArtifactStore) StageDir(runID string) (string, error) {
	dir := filepath.Join(s.stagingDir, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create staging directory: %w", err)
	}
	return dir, nil
}

// WriteStaged writes an intermediate artifact (cleaned records, feature
// rows) into the run's staging directory as msgpack.
func (s *ArtifactStore) WriteStaged(runID, name string, v interface{}) error {
	dir, err := s.StageDir(runID)
	if err != nil {
		return err
	}
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode staged artifact %s: %w", name, err)
	}
	path := filepath.Join(dir, name+".msgpack")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write staged artifact %s: %w", name, err)
	}
	return nil
}

// ReadStaged reads an intermediate artifact back.
func (s *ArtifactStore) ReadStaged(runID, name string, out interface{}) error {
	path := filepath.Join(s.stagingDir, runID, name+".msgpack")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read staged artifact %s: %w", name, err)
	}
	if err := msgpack.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode staged artifact %s: %w", name, err)
	}
	return nil
}

// PublishedDir returns the canonical directory for a client/as-of slot.
func (s *ArtifactStore) PublishedDir(clientID string, asOf string) string {
	return filepath.Join(s.publishedDir, clientID, asOf)
}

func (s *ArtifactStore) lockPath(clientID, asOf string) string {
	return filepath.Join(s.publishedDir, clientID, asOf+".lock")
}

// AcquirePublishLock takes the publish lock for a canonical slot. The lock
// file is created exclusively; a second concurrent run for the same slot
// gets ErrPublicationConflict, never a corrupted canonical tree.
func (s *ArtifactStore) AcquirePublishLock(clientID, asOf, runID string) error {
	if err := os.MkdirAll(filepath.Join(s.publishedDir, clientID), 0755); err != nil {
		return fmt.Errorf("failed to create client directory: %w", err)
	}
	f, err := os.OpenFile(s.lockPath(clientID, asOf), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return core.ErrPublicationConflict
		}
		return fmt.Errorf("failed to create publish lock: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(runID + "\n"); err != nil {
		return fmt.Errorf("failed to write publish lock: %w", err)
	}
	return nil
}

// ReleasePublishLock removes the lock file.
func (s *ArtifactStore) ReleasePublishLock(clientID, asOf string) error {
	if err := os.Remove(s.lockPath(clientID, asOf)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove publish lock: %w", err)
	}
	return nil
}

// Publish atomically swaps the run's staging directory into the canonical
// slot. The caller must hold the publish lock. A previously published slot
// is displaced in one rename and removed only after the new tree is in
// place, so readers always see either the old complete tree or the new one.
func (s *ArtifactStore) Publish(runID, clientID, asOf string) error {
	stageDir := filepath.Join(s.stagingDir, runID)
	if _, err := os.Stat(stageDir); err != nil {
		return fmt.Errorf("staging directory missing for run %s: %w", runID, err)
	}

	target := s.PublishedDir(clientID, asOf)
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create client directory: %w", err)
	}

	displaced := ""
	if _, err := os.Stat(target); err == nil {
		displaced = target + ".prev." + runID
		if err := os.Rename(target, displaced); err != nil {
			return fmt.Errorf("failed to displace previous publication: %w", err)
		}
	}

	if err := os.Rename(stageDir, target); err != nil {
		// Put the previous publication back; canonical must stay intact.
		if displaced != "" {
			if rollbackErr := os.Rename(displaced, target); rollbackErr != nil {
				return fmt.Errorf("publish failed (%v) and rollback failed: %w", err, rollbackErr)
			}
		}
		return fmt.Errorf("failed to publish run %s: %w", runID, err)
	}

	if displaced != "" {
		if err := os.RemoveAll(displaced); err != nil {
			s.logger.Warnw("failed to remove displaced publication", "path", displaced, "error", err)
		}
	}

	s.logger.Infow("published run", "run_id", runID, "client_id", clientID, "as_of", asOf)
	return nil
}

// Discard removes a run's staging directory. Called on FAILED or CANCELLED;
// the canonical tree is untouched.
func (s *ArtifactStore) Discard(runID string) error {
	if err := os.RemoveAll(filepath.Join(s.stagingDir, runID)); err != nil {
		return fmt.Errorf("failed to discard staging for run %s: %w", runID, err)
	}
	return nil
}
