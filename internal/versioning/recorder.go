// Package versioning snapshots test cases after mutations and restores
// earlier snapshots.
package versioning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/consolidation"
	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/observability"
)

// DefaultDebounceWindow suppresses snapshots of rapid successive edits
const DefaultDebounceWindow = 30 * time.Second

// RecordOptions tunes a single Record call
type RecordOptions struct {
	// Version overrides the version string stored; empty uses the test
	// case's current version
	Version string
	// Force bypasses the debounce window
	Force bool
}

// Config for the recorder
type Config struct {
	Window time.Duration
	// Now is the clock; nil uses time.Now
	Now func() time.Time
}

// Recorder writes immutable version snapshots. One Recorder is created per
// process; its debounce state lives as long as it does.
type Recorder struct {
	testCases domain.TestCaseRepository
	steps     domain.TestStepRepository
	versions  domain.VersionRepository
	window    time.Duration
	now       func() time.Time
	logger    *zap.Logger
	metrics   *observability.Metrics

	mu   sync.Mutex
	last map[uuid.UUID]time.Time
}

// NewRecorder creates a recorder with empty debounce state
func NewRecorder(
	testCases domain.TestCaseRepository,
	steps domain.TestStepRepository,
	versions domain.VersionRepository,
	cfg Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
) *Recorder {
	if cfg.Window <= 0 {
		cfg.Window = DefaultDebounceWindow
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		testCases: testCases,
		steps:     steps,
		versions:  versions,
		window:    cfg.Window,
		now:       cfg.Now,
		logger:    logger,
		metrics:   metrics,
		last:      make(map[uuid.UUID]time.Time),
	}
}

// claim reserves the snapshot slot for id. It fails when a snapshot was
// written, or is being written, within the window. release undoes the claim
// after a failed write.
func (r *Recorder) claim(id uuid.UUID, force bool) (release func(), ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	prev, had := r.last[id]
	if !force && had && now.Sub(prev) < r.window {
		return nil, false
	}
	r.last[id] = now
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.last[id].Equal(now) {
			return
		}
		if had {
			r.last[id] = prev
		} else {
			delete(r.last, id)
		}
	}, true
}

// Record snapshots the current state of the test case. It returns nil
// without error when the call falls inside the debounce window.
func (r *Recorder) Record(ctx context.Context, testCaseID uuid.UUID, userID string, opts RecordOptions) (*domain.TestCaseVersion, error) {
	release, ok := r.claim(testCaseID, opts.Force)
	if !ok {
		r.metrics.RecordVersion(false, true, nil)
		return nil, nil
	}

	tc, err := r.testCases.GetByID(ctx, testCaseID)
	if err != nil {
		release()
		r.metrics.RecordVersion(false, false, err)
		return nil, fmt.Errorf("load test case: %w", err)
	}
	steps, err := r.steps.ListByTestCase(ctx, testCaseID)
	if err != nil {
		release()
		r.metrics.RecordVersion(false, false, err)
		return nil, fmt.Errorf("load steps: %w", err)
	}
	return r.write(ctx, tc, steps, userID, opts.Version, release)
}

// RecordSnapshot snapshots an already loaded test case and its full step
// list. The debounce rules are the same as Record.
func (r *Recorder) RecordSnapshot(ctx context.Context, tc *domain.TestCase, steps []*domain.TestStep, userID string, opts RecordOptions) (*domain.TestCaseVersion, error) {
	release, ok := r.claim(tc.ID, opts.Force)
	if !ok {
		r.metrics.RecordVersion(false, true, nil)
		return nil, nil
	}
	return r.write(ctx, tc, steps, userID, opts.Version, release)
}

func (r *Recorder) write(ctx context.Context, tc *domain.TestCase, steps []*domain.TestStep, userID, version string, release func()) (*domain.TestCaseVersion, error) {
	ordered := append([]*domain.TestStep(nil), steps...)
	consolidation.SortSteps(ordered)

	v := domain.NewTestCaseVersion(tc, ordered, version, userID)
	v.CreatedAt = r.now().UTC()
	if err := r.versions.Create(ctx, v); err != nil {
		release()
		r.metrics.RecordVersion(false, false, err)
		return nil, fmt.Errorf("create version: %w", err)
	}
	r.metrics.RecordVersion(true, false, nil)

	r.logger.Debug("version recorded",
		zap.String("test_case_id", tc.ID.String()),
		zap.String("version_id", v.ID.String()),
		zap.String("version", v.Version),
		zap.Int("steps", len(v.Steps)),
	)
	return v, nil
}

// RecordQuietly records and logs any failure instead of returning it, for
// use after a mutation that must not fail because snapshotting did
func (r *Recorder) RecordQuietly(ctx context.Context, testCaseID uuid.UUID, userID string, opts RecordOptions) *domain.TestCaseVersion {
	v, err := r.Record(ctx, testCaseID, userID, opts)
	if err != nil {
		r.logger.Warn("failed to record version",
			zap.String("test_case_id", testCaseID.String()),
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return nil
	}
	return v
}

// List returns the versions of a test case, newest first
func (r *Recorder) List(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestCaseVersion, error) {
	if _, err := r.testCases.GetByID(ctx, testCaseID); err != nil {
		return nil, err
	}
	return r.versions.ListByTestCase(ctx, testCaseID)
}

// Get returns one version with its steps, checking it belongs to the test
// case. A version of another test case is reported as not found.
func (r *Recorder) Get(ctx context.Context, testCaseID, versionID uuid.UUID) (*domain.TestCaseVersion, error) {
	v, err := r.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	if v.TestCaseID != testCaseID {
		return nil, domain.NotFoundError("version", versionID.String())
	}
	return v, nil
}

// Restore overwrites the live test case and steps with the given version.
// The version itself is left untouched. A forced snapshot of the restored
// state is recorded afterwards so the history shows the rollback.
func (r *Recorder) Restore(ctx context.Context, testCaseID, versionID uuid.UUID, userID string) (*domain.TestCase, error) {
	v, err := r.Get(ctx, testCaseID, versionID)
	if err != nil {
		return nil, err
	}
	if err := r.versions.Restore(ctx, v); err != nil {
		return nil, fmt.Errorf("restore version: %w", err)
	}
	r.metrics.RecordRestore()

	r.logger.Info("version restored",
		zap.String("test_case_id", testCaseID.String()),
		zap.String("version_id", versionID.String()),
		zap.String("version", v.Version),
		zap.String("user_id", userID),
	)

	r.RecordQuietly(ctx, testCaseID, userID, RecordOptions{Force: true})

	return r.testCases.GetByID(ctx, testCaseID)
}
