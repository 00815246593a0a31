// Package artifact persists and reads back the pipeline's binary outputs:
// the reconciled log, run summary, flags, and frame index, all
// msgpack-encoded, plus the dataset manifest that ties them together.
package artifact

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"
)

// Default artifact file names inside an output directory.
const (
	EventsFile     = "treaty_changes_reconciled.msgpack"
	SummaryFile    = "treaty_changes_reconciled_summary.msgpack"
	FlagsFile      = "treaty_changes_reconciled_flags.msgpack"
	FrameIndexFile = "treaty_frame_index_v1.msgpack"
	ManifestFile   = "manifest.json"
)

// SizeError reports an artifact exceeding the configured maximum. It is a
// fatal configuration error: nothing is written, not even partially.
type SizeError struct {
	Path     string
	Size     int64
	MaxBytes int64
}

func (e *SizeError) Error() string {
	return fmt.Sprintf("artifact %s is %d bytes, exceeds configured maximum %d", e.Path, e.Size, e.MaxBytes)
}

// Writer persists msgpack artifacts under a size ceiling.
type Writer struct {
	// MaxBytes caps each encoded artifact; 0 disables the check.
	MaxBytes int64
}

// WriteSet encodes every artifact in outputs, keyed by file name under dir,
// and checks each against the size ceiling before the first byte lands on
// disk. A size violation (or any encoding failure) leaves the directory
// exactly as it was: a dataset is written whole or not at all. Map keys are
// sorted so identical inputs produce byte-identical artifacts.
func (w Writer) WriteSet(dir string, outputs map[string]any) error {
	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	encoded := make(map[string][]byte, len(outputs))
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := Marshal(outputs[name])
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		if w.MaxBytes > 0 && int64(len(data)) > w.MaxBytes {
			return &SizeError{Path: path, Size: int64(len(data)), MaxBytes: w.MaxBytes}
		}
		encoded[name] = data
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("write %s: %w", dir, err)
	}
	for _, name := range names {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, encoded[name], 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		slog.Debug("artifact written", "path", path, "bytes", len(encoded[name]))
	}
	return nil
}

// Marshal encodes v as deterministic msgpack (sorted map keys).
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes msgpack produced by Marshal.
func Unmarshal(data []byte, v any) error {
	return msgpack.Unmarshal(data, v)
}
