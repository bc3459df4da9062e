package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Artifact names inside a turn directory.
const (
	FileModelOutput   = "vlm_output.json"
	FileRawScreenshot = "screenshot_raw.png"
	FileAnnotated     = "screenshot_annotated.png"
	FileModelResponse = "vlm_response.txt"
	runDirPrefix      = "run_"
	runDirPermissions = 0o755
	fileWritePerms    = 0o644
)

// turnOutput is the vlm_output.json document.
type turnOutput struct {
	Turn        int                   `json:"turn"`
	Observation string                `json:"observation"`
	BBoxes      []schemas.BoundingBox `json:"bboxes"`
	Actions     []schemas.Action      `json:"actions"`
}

// FileRecorder writes each turn under runs/run_NNNN/turn_NNNN/.
type FileRecorder struct {
	fs     afero.Fs
	runDir string
	log    *zap.Logger
	mu     sync.Mutex
}

var _ schemas.TurnRecorder = (*FileRecorder)(nil)

// NewFileRecorder creates the next numbered run directory under base.
func NewFileRecorder(fs afero.Fs, base string, logger *zap.Logger) (*FileRecorder, error) {
	if fs == nil {
		return nil, errors.New("filesystem cannot be nil")
	}
	if err := fs.MkdirAll(base, runDirPermissions); err != nil {
		return nil, fmt.Errorf("creating runs directory: %w", err)
	}

	entries, err := afero.ReadDir(fs, base)
	if err != nil {
		return nil, fmt.Errorf("listing runs directory: %w", err)
	}
	existing := 0
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), runDirPrefix) {
			existing++
		}
	}

	runDir := filepath.Join(base, fmt.Sprintf("%s%04d", runDirPrefix, existing+1))
	if err := fs.MkdirAll(runDir, runDirPermissions); err != nil {
		return nil, fmt.Errorf("creating run directory: %w", err)
	}

	log := logger.Named("store.fs")
	log.Info("Recording run.", zap.String("run_dir", runDir))
	return &FileRecorder{fs: fs, runDir: runDir, log: log}, nil
}

// TurnDir returns the directory for the given turn.
func (r *FileRecorder) TurnDir(turn int) string {
	return filepath.Join(r.runDir, fmt.Sprintf("turn_%04d", turn))
}

// Record writes the artifacts carried by the event. A screenshot that fails
// to decode is logged and skipped.
func (r *FileRecorder) Record(ctx context.Context, ev schemas.TurnEvent) error {
	switch ev.Type {
	case schemas.EventTurnCaptured, schemas.EventTurnAnnotated, schemas.EventTurnInferred:
	default:
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.TurnDir(ev.Turn)
	if err := r.fs.MkdirAll(dir, runDirPermissions); err != nil {
		return fmt.Errorf("creating turn directory: %w", err)
	}

	switch ev.Type {
	case schemas.EventTurnCaptured:
		doc := turnOutput{
			Turn:        ev.Turn,
			Observation: ev.Observation,
			BBoxes:      ev.BBoxes,
			Actions:     ev.Actions,
		}
		if doc.BBoxes == nil {
			doc.BBoxes = []schemas.BoundingBox{}
		}
		if doc.Actions == nil {
			doc.Actions = []schemas.Action{}
		}
		b, err := jsonAPI.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding %s: %w", FileModelOutput, err)
		}
		if err := afero.WriteFile(r.fs, filepath.Join(dir, FileModelOutput), b, fileWritePerms); err != nil {
			return fmt.Errorf("writing %s: %w", FileModelOutput, err)
		}
		return r.writePNG(dir, FileRawScreenshot, ev.ImageB64)
	case schemas.EventTurnAnnotated:
		return r.writePNG(dir, FileAnnotated, ev.ImageB64)
	default:
		if err := afero.WriteFile(r.fs, filepath.Join(dir, FileModelResponse), []byte(ev.RawText), fileWritePerms); err != nil {
			return fmt.Errorf("writing %s: %w", FileModelResponse, err)
		}
		return nil
	}
}

func (r *FileRecorder) writePNG(dir, name, b64 string) error {
	if b64 == "" {
		return nil
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		r.log.Warn("Screenshot is not valid base64; skipping.", zap.String("file", name), zap.Error(err))
		return nil
	}
	if err := afero.WriteFile(r.fs, filepath.Join(dir, name), data, fileWritePerms); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close is a no-op; files are written synchronously.
func (r *FileRecorder) Close() error {
	return nil
}
