package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/observability"
)

// ScriptWriter persists generated scripts
type ScriptWriter interface {
	// EnsureDir creates dir and its parents
	EnsureDir(ctx context.Context, dir string) error
	// WriteFile writes content to path, replacing any existing file
	WriteFile(ctx context.Context, path, content string) error
}

// FSWriter writes scripts to the local file system
type FSWriter struct {
	metrics *observability.Metrics
}

// NewFSWriter creates a file system writer; metrics may be nil
func NewFSWriter(metrics *observability.Metrics) *FSWriter {
	return &FSWriter{metrics: metrics}
}

func (w *FSWriter) EnsureDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}
	return nil
}

func (w *FSWriter) WriteFile(ctx context.Context, path, content string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := w.EnsureDir(ctx, filepath.Dir(path)); err != nil {
		w.metrics.RecordScriptWrite("file", err)
		return err
	}
	// temp file plus rename keeps the replace atomic
	tmp, err := os.CreateTemp(filepath.Dir(path), ".script-*")
	if err != nil {
		w.metrics.RecordScriptWrite("file", err)
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		w.metrics.RecordScriptWrite("file", err)
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		w.metrics.RecordScriptWrite("file", err)
		return fmt.Errorf("closing %s: %w", path, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		w.metrics.RecordScriptWrite("file", err)
		return fmt.Errorf("chmod %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		w.metrics.RecordScriptWrite("file", err)
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	w.metrics.RecordScriptWrite("file", nil)
	return nil
}

// archiver is the part of ScriptArchive the mirror needs
type archiver interface {
	PutScript(ctx context.Context, key, content string) (string, error)
}

// MirroredWriter writes through to a primary writer and then uploads the
// same content to the archive. Archive failures are logged, never returned.
type MirroredWriter struct {
	primary     ScriptWriter
	archive     archiver
	projectRoot string
	archiveKey  string
	logger      *zap.Logger
	metrics     *observability.Metrics
}

type archiveKeyCtx struct{}

// WithArchiveKey scopes the archive key (usually the project id) for writes
// made with the returned context
func WithArchiveKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, archiveKeyCtx{}, key)
}

func archiveKeyFrom(ctx context.Context, fallback string) string {
	if k, ok := ctx.Value(archiveKeyCtx{}).(string); ok && k != "" {
		return k
	}
	return fallback
}

// NewMirroredWriter mirrors writes under projectRoot into archive. Keys are
// scoped by the context's archive key, or archiveKey when none is set.
func NewMirroredWriter(primary ScriptWriter, archive archiver, projectRoot, archiveKey string, logger *zap.Logger, metrics *observability.Metrics) *MirroredWriter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MirroredWriter{
		primary:     primary,
		archive:     archive,
		projectRoot: projectRoot,
		archiveKey:  archiveKey,
		logger:      logger,
		metrics:     metrics,
	}
}

func (w *MirroredWriter) EnsureDir(ctx context.Context, dir string) error {
	return w.primary.EnsureDir(ctx, dir)
}

func (w *MirroredWriter) WriteFile(ctx context.Context, path, content string) error {
	if err := w.primary.WriteFile(ctx, path, content); err != nil {
		return err
	}

	rel, err := filepath.Rel(w.projectRoot, path)
	if err != nil {
		rel = filepath.Base(path)
	}
	key := ScriptKey(archiveKeyFrom(ctx, w.archiveKey), filepath.ToSlash(rel))
	uri, err := w.archive.PutScript(ctx, key, content)
	w.metrics.RecordScriptWrite("archive", err)
	if err != nil {
		w.logger.Warn("failed to archive script", zap.String("key", key), zap.Error(err))
		return nil
	}
	w.logger.Debug("script archived", zap.String("uri", uri))
	return nil
}
