package model

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"adpulse/core"
)

// Registry is the append-only model store. Layout on disk:
//
//	<dir>/<family>/<family>_v<version>.gob.gz       artifact (gob, gzipped)
//	<dir>/<family>/<family>_v<version>_metadata.json training metadata sidecar
//
// A registered version is immutable; re-registering it is an error. Which
// version a run scores with comes from client configuration, never from
// "latest" resolution inside the pipeline.
type Registry struct {
	dir    string
	logger *zap.SugaredLogger
	mu     sync.RWMutex
}

// NewRegistry opens (creating if needed) a registry rooted at dir.
func NewRegistry(dir string, logger *zap.SugaredLogger) (*Registry, error) {
	if dir == "" {
		return nil, fmt.Errorf("model directory cannot be empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create model directory: %w", err)
	}
	return &Registry{dir: dir, logger: logger}, nil
}

func (r *Registry) artifactPath(ref Ref) string {
	return filepath.Join(r.dir, ref.Family, fmt.Sprintf("%s_v%s.gob.gz", ref.Family, ref.Version))
}

func (r *Registry) metadataPath(ref Ref) string {
	return filepath.Join(r.dir, ref.Family, fmt.Sprintf("%s_v%s_metadata.json", ref.Family, ref.Version))
}

// Register stores a new artifact version with its metadata. Fails if the
// version already exists: corrections get a new version, never an overwrite.
func (r *Registry) Register(artifact *Artifact, meta *Metadata) error {
	if err := artifact.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ref := Ref{Family: artifact.Family, Version: artifact.Version}
	path := r.artifactPath(ref)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("model %s already registered; registry is append-only", ref)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create family directory: %w", err)
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(artifact); err != nil {
		return fmt.Errorf("failed to encode artifact %s: %w", ref, err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress artifact %s: %w", ref, err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write artifact file: %w", err)
	}

	if meta != nil {
		jsonData, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal metadata: %w", err)
		}
		if err := os.WriteFile(r.metadataPath(ref), jsonData, 0600); err != nil {
			return fmt.Errorf("failed to write metadata file: %w", err)
		}
	}

	r.logger.Infow("registered model", "family", artifact.Family, "version", artifact.Version,
		"inputs", len(artifact.Inputs))
	return nil
}

// Load reads an artifact from disk. Returns ErrModelNotFound for an absent
// version so the pipeline can record the failure as a scoring-stage fault.
func (r *Registry) Load(ref Ref) (*Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.artifactPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", ref, core.ErrModelNotFound)
		}
		return nil, fmt.Errorf("failed to read artifact %s: %w", ref, err)
	}

	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decompress artifact %s: %w", ref, err)
	}
	defer gz.Close()

	var artifact Artifact
	if err := gob.NewDecoder(gz).Decode(&artifact); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", ref, err)
	}
	return &artifact, nil
}

// LoadMetadata reads the training metadata sidecar for a version.
func (r *Registry) LoadMetadata(ref Ref) (*Metadata, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	data, err := os.ReadFile(r.metadataPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s metadata: %w", ref, core.ErrModelNotFound)
		}
		return nil, fmt.Errorf("failed to read metadata %s: %w", ref, err)
	}

	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metadata %s: %w", ref, err)
	}
	return &meta, nil
}

// Families lists the model families present, sorted.
func (r *Registry) Families() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}
	var families []string
	for _, e := range entries {
		if e.IsDir() {
			families = append(families, e.Name())
		}
	}
	return families, nil
}

// ListVersions returns a family's versions, newest first.
func (r *Registry) ListVersions(family string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries, err := os.ReadDir(filepath.Join(r.dir, family))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("family %s: %w", family, core.ErrModelNotFound)
		}
		return nil, fmt.Errorf("failed to read family directory: %w", err)
	}

	var versions []string
	prefix := family + "_v"
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".gob.gz") {
			continue
		}
		versions = append(versions, strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".gob.gz"))
	}
	return SortVersions(versions)
}

// LatestVersion returns the newest registered version of a family. Used by
// the models CLI only; runs always pin versions through client config.
func (r *Registry) LatestVersion(family string) (string, error) {
	versions, err := r.ListVersions(family)
	if err != nil {
		return "", err
	}
	if len(versions) == 0 {
		return "", fmt.Errorf("family %s: %w", family, core.ErrModelNotFound)
	}
	return versions[0], nil
}
