package teststeps

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/consolidation"
	"github.com/thinhdnn/ai-test-management/internal/domain"
)

// CreateTestCaseInput contains input for creating a test case. Tags accepts
// any shape the tag normalizer understands.
type CreateTestCaseInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Tags        any    `json:"tags"`
}

// UpdateTestCaseInput contains the fields to change; nil leaves a field as is
type UpdateTestCaseInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Tags        any     `json:"tags"`
}

// StepInput contains input for creating a step
type StepInput struct {
	Action         string     `json:"action"`
	Data           string     `json:"data"`
	Expected       string     `json:"expected"`
	Selector       string     `json:"selector"`
	PlaywrightCode string     `json:"playwright_code"`
	Disabled       bool       `json:"disabled"`
	FixtureID      *uuid.UUID `json:"fixture_id"`
}

// UpdateStepInput contains the step fields to change; nil leaves a field as
// is. ClearFixture removes the fixture reference.
type UpdateStepInput struct {
	Action         *string    `json:"action"`
	Data           *string    `json:"data"`
	Expected       *string    `json:"expected"`
	Selector       *string    `json:"selector"`
	PlaywrightCode *string    `json:"playwright_code"`
	Disabled       *bool      `json:"disabled"`
	FixtureID      *uuid.UUID `json:"fixture_id"`
	ClearFixture   bool       `json:"clear_fixture"`
}

// StepChange is the result of a step mutation: the affected step (nil on
// delete) and the test case with its regenerated script
type StepChange struct {
	Step     *domain.TestStep `json:"step,omitempty"`
	TestCase *domain.TestCase `json:"test_case"`
}

// CreateTestCase creates a test case with normalized tags and writes its
// initial, empty script
func (s *Service) CreateTestCase(ctx context.Context, projectID uuid.UUID, input CreateTestCaseInput, userID string) (*domain.TestCase, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ValidationError("name", "is required")
	}
	if _, err := s.repos.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	tags := consolidation.EncodeTags(consolidation.NormalizeTags(input.Tags))
	tc := domain.NewTestCase(projectID, name, input.Description, tags)
	if err := s.repos.TestCases.Create(ctx, tc); err != nil {
		return nil, fmt.Errorf("create test case: %w", err)
	}

	s.logger.Info("test case created",
		zap.String("test_case_id", tc.ID.String()),
		zap.String("project_id", projectID.String()),
		zap.String("user_id", userID),
	)
	return s.refresh(ctx, tc.ID, userID, false)
}

// GetTestCase returns a test case
func (s *Service) GetTestCase(ctx context.Context, id uuid.UUID) (*domain.TestCase, error) {
	return s.repos.TestCases.GetByID(ctx, id)
}

// ListTestCases returns the test cases of a project
func (s *Service) ListTestCases(ctx context.Context, projectID uuid.UUID) ([]*domain.TestCase, error) {
	if _, err := s.repos.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repos.TestCases.ListByProject(ctx, projectID)
}

// UpdateTestCase changes name, description or tags and regenerates the
// script. A renamed test case is written to its new path; the old file is
// left in place.
func (s *Service) UpdateTestCase(ctx context.Context, id uuid.UUID, input UpdateTestCaseInput, userID string) (*domain.TestCase, error) {
	tc, err := s.repos.TestCases.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		name := strings.TrimSpace(*input.Name)
		if name == "" {
			return nil, domain.ValidationError("name", "must not be empty")
		}
		tc.Name = name
	}
	if input.Description != nil {
		tc.Description = *input.Description
	}
	if input.Tags != nil {
		tc.Tags = consolidation.EncodeTags(consolidation.NormalizeTags(input.Tags))
	}
	tc.UpdatedAt = time.Now().UTC()

	if err := s.repos.TestCases.Update(ctx, tc); err != nil {
		return nil, fmt.Errorf("update test case: %w", err)
	}
	return s.refresh(ctx, id, userID, true)
}

// ListSteps returns every step of the test case, disabled ones included, in
// script order
func (s *Service) ListSteps(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestStep, error) {
	if _, err := s.repos.TestCases.GetByID(ctx, testCaseID); err != nil {
		return nil, err
	}
	return s.repos.Steps.ListByTestCase(ctx, testCaseID)
}

// CreateStep appends a step to the test case
func (s *Service) CreateStep(ctx context.Context, testCaseID uuid.UUID, input StepInput, userID string) (*StepChange, error) {
	action := strings.TrimSpace(input.Action)
	if action == "" {
		return nil, domain.ValidationError("action", "is required")
	}
	tc, err := s.repos.TestCases.GetByID(ctx, testCaseID)
	if err != nil {
		return nil, err
	}
	if err := s.checkFixture(ctx, tc, input.FixtureID); err != nil {
		return nil, err
	}

	step := domain.NewTestStep(testCaseID, action, input.Data, input.Expected)
	step.Selector = input.Selector
	step.PlaywrightCode = input.PlaywrightCode
	step.Disabled = input.Disabled
	step.FixtureID = input.FixtureID
	if err := s.repos.Steps.Create(ctx, step); err != nil {
		return nil, fmt.Errorf("create step: %w", err)
	}

	s.logger.Debug("step created",
		zap.String("test_case_id", testCaseID.String()),
		zap.String("step_id", step.ID.String()),
		zap.Int("order", step.Order),
	)
	return s.changed(ctx, testCaseID, step, userID)
}

// UpdateStep edits a step in place
func (s *Service) UpdateStep(ctx context.Context, testCaseID, stepID uuid.UUID, input UpdateStepInput, userID string) (*StepChange, error) {
	tc, err := s.repos.TestCases.GetByID(ctx, testCaseID)
	if err != nil {
		return nil, err
	}
	step, err := s.stepOf(ctx, testCaseID, stepID)
	if err != nil {
		return nil, err
	}

	if input.Action != nil {
		action := strings.TrimSpace(*input.Action)
		if action == "" {
			return nil, domain.ValidationError("action", "must not be empty")
		}
		step.Action = action
	}
	if input.Data != nil {
		step.Data = *input.Data
	}
	if input.Expected != nil {
		step.Expected = *input.Expected
	}
	if input.Selector != nil {
		step.Selector = *input.Selector
	}
	if input.PlaywrightCode != nil {
		step.PlaywrightCode = *input.PlaywrightCode
	}
	if input.Disabled != nil {
		step.Disabled = *input.Disabled
	}
	switch {
	case input.ClearFixture:
		step.FixtureID = nil
	case input.FixtureID != nil:
		if err := s.checkFixture(ctx, tc, input.FixtureID); err != nil {
			return nil, err
		}
		step.FixtureID = input.FixtureID
	}
	step.UpdatedAt = time.Now().UTC()

	if err := s.repos.Steps.Update(ctx, step); err != nil {
		return nil, fmt.Errorf("update step: %w", err)
	}
	return s.changed(ctx, testCaseID, step, userID)
}

// ToggleStep flips the disabled flag of a step
func (s *Service) ToggleStep(ctx context.Context, testCaseID, stepID uuid.UUID, userID string) (*StepChange, error) {
	step, err := s.stepOf(ctx, testCaseID, stepID)
	if err != nil {
		return nil, err
	}
	step.Disabled = !step.Disabled
	step.UpdatedAt = time.Now().UTC()
	if err := s.repos.Steps.Update(ctx, step); err != nil {
		return nil, fmt.Errorf("toggle step: %w", err)
	}
	return s.changed(ctx, testCaseID, step, userID)
}

// DeleteStep removes a step; the remaining steps are re-sequenced 1..N
func (s *Service) DeleteStep(ctx context.Context, testCaseID, stepID uuid.UUID, userID string) (*StepChange, error) {
	if _, err := s.repos.TestCases.GetByID(ctx, testCaseID); err != nil {
		return nil, err
	}
	if err := s.repos.Steps.Delete(ctx, testCaseID, stepID); err != nil {
		return nil, err
	}
	return s.changed(ctx, testCaseID, nil, userID)
}

// ReorderSteps rewrites the order so that orderedIDs[i] becomes step i+1.
// orderedIDs must list every step of the test case exactly once.
func (s *Service) ReorderSteps(ctx context.Context, testCaseID uuid.UUID, orderedIDs []uuid.UUID, userID string) (*StepChange, error) {
	if _, err := s.repos.TestCases.GetByID(ctx, testCaseID); err != nil {
		return nil, err
	}
	if err := s.repos.Steps.Reorder(ctx, testCaseID, orderedIDs); err != nil {
		return nil, err
	}
	return s.changed(ctx, testCaseID, nil, userID)
}

// ImportSteps analyzes Playwright code and appends the resulting steps, in
// source order
func (s *Service) ImportSteps(ctx context.Context, testCaseID uuid.UUID, code, userID string) ([]*domain.TestStep, *domain.TestCase, error) {
	if s.generator == nil {
		return nil, nil, errGenerationDisabled()
	}
	if _, err := s.repos.TestCases.GetByID(ctx, testCaseID); err != nil {
		return nil, nil, err
	}

	analyzed, err := s.generator.AnalyzeCode(ctx, code)
	if err != nil {
		return nil, nil, err
	}

	created := make([]*domain.TestStep, 0, len(analyzed))
	for _, a := range analyzed {
		step := domain.NewTestStep(testCaseID, a.Action, a.Data, a.Expected)
		step.Selector = a.Selector
		step.PlaywrightCode = a.PlaywrightCode
		if err := s.repos.Steps.Create(ctx, step); err != nil {
			return nil, nil, fmt.Errorf("create imported step: %w", err)
		}
		created = append(created, step)
	}

	s.logger.Info("steps imported from code",
		zap.String("test_case_id", testCaseID.String()),
		zap.Int("steps", len(created)),
	)

	tc, err := s.refresh(ctx, testCaseID, userID, len(created) > 0)
	if err != nil {
		return nil, nil, err
	}
	return created, tc, nil
}

func (s *Service) changed(ctx context.Context, testCaseID uuid.UUID, step *domain.TestStep, userID string) (*StepChange, error) {
	tc, err := s.refresh(ctx, testCaseID, userID, true)
	if err != nil {
		return nil, err
	}
	return &StepChange{Step: step, TestCase: tc}, nil
}

// stepOf loads a step and checks it belongs to the test case
func (s *Service) stepOf(ctx context.Context, testCaseID, stepID uuid.UUID) (*domain.TestStep, error) {
	step, err := s.repos.Steps.GetByID(ctx, stepID)
	if err != nil {
		return nil, err
	}
	if step.TestCaseID == nil || *step.TestCaseID != testCaseID {
		return nil, domain.NotFoundError("test step", stepID.String())
	}
	return step, nil
}

// checkFixture verifies a referenced fixture exists in the test case's
// project
func (s *Service) checkFixture(ctx context.Context, tc *domain.TestCase, fixtureID *uuid.UUID) error {
	if fixtureID == nil {
		return nil
	}
	f, err := s.repos.Fixtures.GetByID(ctx, *fixtureID)
	if err != nil {
		return err
	}
	if f.ProjectID != tc.ProjectID {
		return domain.ValidationError("fixture_id", "fixture belongs to another project")
	}
	return nil
}
