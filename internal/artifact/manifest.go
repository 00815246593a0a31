package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestEntry describes one persisted artifact.
type ManifestEntry struct {
	SizeBytes int64  `json:"sizeBytes"`
	SHA256    string `json:"sha256"`
}

// Manifest indexes a dataset directory: every required artifact with its
// size and digest, plus a dataset ID derived from the file hashes so
// downstream consumers can cache-bust on content rather than mtime.
type Manifest struct {
	GeneratedAt string                   `json:"generatedAt"`
	Files       map[string]ManifestEntry `json:"files"`
	DatasetID   string                   `json:"datasetId"`
}

// BuildManifest hashes the required files in dir. A missing file is an
// error: a manifest must never describe a partial dataset.
func BuildManifest(dir string, required []string, generatedAt time.Time) (*Manifest, error) {
	files := make(map[string]ManifestEntry, len(required))
	for _, name := range required {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("manifest requires %s: %w", path, err)
		}
		sum := sha256.Sum256(data)
		files[name] = ManifestEntry{
			SizeBytes: int64(len(data)),
			SHA256:    hex.EncodeToString(sum[:]),
		}
	}

	// json.Marshal sorts map keys, so the ID is stable for identical
	// file contents.
	idSource, err := json.Marshal(files)
	if err != nil {
		return nil, fmt.Errorf("encode manifest files: %w", err)
	}
	idSum := sha256.Sum256(idSource)

	return &Manifest{
		GeneratedAt: generatedAt.UTC().Format(time.RFC3339),
		Files:       files,
		DatasetID:   hex.EncodeToString(idSum[:])[:16],
	}, nil
}

// WriteManifest persists the manifest as indented JSON next to the
// artifacts it describes.
func WriteManifest(dir string, manifest *Manifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, ManifestFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
