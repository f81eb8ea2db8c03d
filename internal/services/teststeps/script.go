package teststeps

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/consolidation"
	"github.com/thinhdnn/ai-test-management/internal/domain"
	redisrepo "github.com/thinhdnn/ai-test-management/internal/repository/redis"
	"github.com/thinhdnn/ai-test-management/internal/storage"
	"github.com/thinhdnn/ai-test-management/internal/versioning"
)

// ConsolidateResult is the outcome of a full consolidation
type ConsolidateResult struct {
	TestCase *domain.TestCase `json:"test_case"`
	Script   string           `json:"script"`
	Path     string           `json:"path"`
	// NoActiveSteps is set when the test case legitimately has nothing to
	// run yet
	NoActiveSteps bool `json:"no_active_steps"`
	ActiveSteps   int  `json:"active_steps"`
	// Generated counts steps whose code came from the generator
	Generated int `json:"generated"`
	// Fallbacks counts steps whose generation failed
	Fallbacks int                     `json:"fallbacks"`
	Cached    bool                    `json:"cached"`
	Version   *domain.TestCaseVersion `json:"version,omitempty"`
}

// loadFixtures resolves the fixtures referenced by the active steps
func (s *Service) loadFixtures(ctx context.Context, steps []*domain.TestStep) (consolidation.FixtureMap, error) {
	ids := consolidation.ReferencedFixtureIDs(consolidation.ActiveSteps(steps))
	if len(ids) == 0 {
		return consolidation.FixtureMap{}, nil
	}
	fixtures, err := s.repos.Fixtures.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load fixtures: %w", err)
	}
	return consolidation.ResolveFixtures(fixtures, s.logger), nil
}

// writeScript writes the script file of tc
func (s *Service) writeScript(ctx context.Context, tc *domain.TestCase, script string) (string, error) {
	path := s.ScriptPath(tc)
	ctx = storage.WithArchiveKey(ctx, tc.ProjectID.String())
	if err := s.writer.WriteFile(ctx, path, script); err != nil {
		return path, domain.ErrScriptWrite(path, err)
	}
	return path, nil
}

func (s *Service) publish(ctx context.Context, tc *domain.TestCase, path, mode string) {
	if s.events == nil {
		return
	}
	err := s.events.PublishScriptEvent(ctx, redisrepo.ScriptEvent{
		TestCaseID: tc.ID,
		Version:    tc.Version,
		Path:       path,
		Mode:       mode,
		At:         time.Now().UTC(),
	})
	if err != nil {
		s.logger.Debug("failed to publish script event", zap.String("test_case_id", tc.ID.String()), zap.Error(err))
	}
}

// refresh regenerates the script after a mutation in live mode, bumps the
// PATCH version when bump is set, persists and writes it, and records a
// debounced version. File and version failures are logged only.
func (s *Service) refresh(ctx context.Context, testCaseID uuid.UUID, userID string, bump bool) (*domain.TestCase, error) {
	tc, err := s.repos.TestCases.GetByID(ctx, testCaseID)
	if err != nil {
		return nil, err
	}
	steps, err := s.repos.Steps.ListByTestCase(ctx, testCaseID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	fixtures, err := s.loadFixtures(ctx, steps)
	if err != nil {
		return nil, err
	}

	opts := s.options(consolidation.LiveOptions())
	result := s.assembler.Assemble(tc, steps, fixtures, opts)

	tc.Script = result.Script
	if bump {
		tc.BumpVersion()
	} else {
		tc.UpdatedAt = time.Now().UTC()
	}
	if err := s.repos.TestCases.Update(ctx, tc); err != nil {
		return nil, fmt.Errorf("save script: %w", err)
	}

	path, err := s.writeScript(ctx, tc, result.Script)
	if err != nil {
		s.logger.Warn("failed to write script file",
			zap.String("test_case_id", tc.ID.String()),
			zap.String("path", path),
			zap.Error(err),
		)
	} else {
		s.publish(ctx, tc, path, opts.Mode())
	}

	s.recorder.RecordQuietly(ctx, tc.ID, userID, versioning.RecordOptions{})
	return tc, nil
}

// Consolidate rebuilds the script of a test case from all of its steps in
// bulk mode, writes it to disk and records a forced version. Steps without
// code are sent to the generator when one is configured; generation
// failures fall back to a placeholder and never abort the consolidation.
// A failed file write is returned to the caller.
func (s *Service) Consolidate(ctx context.Context, testCaseID uuid.UUID, userID string) (*ConsolidateResult, error) {
	start := time.Now()

	tc, err := s.repos.TestCases.GetByID(ctx, testCaseID)
	if err != nil {
		return nil, err
	}
	steps, err := s.repos.Steps.ListByTestCase(ctx, testCaseID)
	if err != nil {
		return nil, fmt.Errorf("load steps: %w", err)
	}
	fixtures, err := s.loadFixtures(ctx, steps)
	if err != nil {
		return nil, err
	}

	out := &ConsolidateResult{}
	steps = s.fillMissingCode(ctx, tc, steps, fixtures, out)

	opts := s.options(consolidation.BulkOptions())
	script := s.assembleCached(ctx, tc, steps, fixtures, opts, out)

	path, err := s.writeScript(ctx, tc, script)
	if err != nil {
		s.logger.Error("failed to write script file",
			zap.String("test_case_id", tc.ID.String()),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	if tc.Script != script {
		tc.Script = script
		tc.BumpVersion()
		if err := s.repos.TestCases.Update(ctx, tc); err != nil {
			return nil, fmt.Errorf("save script: %w", err)
		}
	}

	out.TestCase = tc
	out.Script = script
	out.Path = path
	out.Version = s.recorder.RecordQuietly(ctx, tc.ID, userID, versioning.RecordOptions{Force: true})
	s.publish(ctx, tc, path, opts.Mode())

	s.logger.Info("test case consolidated",
		zap.String("test_case_id", tc.ID.String()),
		zap.String("path", path),
		zap.Int("active_steps", out.ActiveSteps),
		zap.Bool("no_active_steps", out.NoActiveSteps),
		zap.Int("generated", out.Generated),
		zap.Int("fallbacks", out.Fallbacks),
		zap.Bool("cached", out.Cached),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// fillMissingCode returns steps where every active step without code and
// without a resolvable fixture carries generated code. Successful
// generations are saved on the step; failures get the error fallback for
// this assembly only.
func (s *Service) fillMissingCode(ctx context.Context, tc *domain.TestCase, steps []*domain.TestStep, fixtures consolidation.FixtureMap, out *ConsolidateResult) []*domain.TestStep {
	if s.generator == nil || !s.cfg.GenerateMissing {
		return steps
	}

	filled := make([]*domain.TestStep, len(steps))
	for i, step := range steps {
		filled[i] = step
		if step.Disabled || step.HasCode() {
			continue
		}
		if step.FixtureID != nil {
			if _, ok := fixtures[*step.FixtureID]; ok {
				continue
			}
		}

		cp := *step
		gen, err := s.generator.GenerateCodeFromStep(ctx, step.Action, step.Data, step.Expected)
		if err != nil {
			s.logger.Warn("code generation failed, using fallback",
				zap.String("test_case_id", tc.ID.String()),
				zap.String("step_id", step.ID.String()),
				zap.Error(err),
			)
			s.metrics.RecordFallback("generation_error")
			cp.PlaywrightCode = consolidation.FallbackForError(step.Action, err)
			filled[i] = &cp
			out.Fallbacks++
			continue
		}

		cp.PlaywrightCode = gen.PlaywrightCode
		if cp.Selector == "" {
			cp.Selector = gen.Selector
		}
		cp.UpdatedAt = time.Now().UTC()
		if err := s.repos.Steps.Update(ctx, &cp); err != nil {
			s.logger.Warn("failed to save generated code",
				zap.String("step_id", step.ID.String()),
				zap.Error(err),
			)
		}
		filled[i] = &cp
		out.Generated++
	}
	return filled
}

// assembleCached looks the script up by fingerprint before assembling
func (s *Service) assembleCached(ctx context.Context, tc *domain.TestCase, steps []*domain.TestStep, fixtures consolidation.FixtureMap, opts consolidation.Options, out *ConsolidateResult) string {
	out.ActiveSteps = len(consolidation.ActiveSteps(steps))
	out.NoActiveSteps = out.ActiveSteps == 0

	var key string
	if s.cache != nil {
		key = consolidation.Fingerprint(tc, steps, fixtures, opts)
		script, ok, err := s.cache.GetScript(ctx, key)
		if err != nil {
			s.logger.Debug("script cache lookup failed", zap.Error(err))
		}
		s.metrics.RecordCacheLookup(ok)
		if ok {
			out.Cached = true
			return script
		}
	}

	result := s.assembler.Assemble(tc, steps, fixtures, opts)

	if s.cache != nil {
		if err := s.cache.SetScript(ctx, key, result.Script); err != nil {
			s.logger.Debug("script cache store failed", zap.Error(err))
		}
	}
	return result.Script
}
