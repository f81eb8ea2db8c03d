package teststeps

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/versioning"
)

// CreateProjectInput contains input for creating a project
type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	BaseURL     string `json:"base_url"`
}

// CreateProject creates a project
func (s *Service) CreateProject(ctx context.Context, input CreateProjectInput) (*domain.Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ValidationError("name", "is required")
	}
	p := domain.NewProject(name, input.Description, input.BaseURL)
	if err := s.repos.Projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return p, nil
}

// GetProject returns a project
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	return s.repos.Projects.GetByID(ctx, id)
}

// CreateFixtureInput contains input for creating a fixture. Content may be
// a JSON string or an object with exportName, path and filename.
type CreateFixtureInput struct {
	Name    string             `json:"name"`
	Type    domain.FixtureType `json:"type"`
	Content json.RawMessage    `json:"content"`
}

// CreateFixture creates a fixture in a project
func (s *Service) CreateFixture(ctx context.Context, projectID uuid.UUID, input CreateFixtureInput) (*domain.Fixture, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.ValidationError("name", "is required")
	}
	if input.Type == "" {
		input.Type = domain.FixtureTypeSetup
	}
	if !input.Type.IsValid() {
		return nil, domain.ValidationError("type", "must be setup, teardown or data")
	}
	if _, err := s.repos.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}

	f := domain.NewFixture(projectID, name, input.Type, fixtureContent(input.Content))
	if err := s.repos.Fixtures.Create(ctx, f); err != nil {
		return nil, fmt.Errorf("create fixture: %w", err)
	}
	return f, nil
}

// fixtureContent stores objects as their JSON text and strings as-is.
// Malformed content is kept; the resolver falls back to derived values.
func fixtureContent(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var str string
	if err := json.Unmarshal(raw, &str); err == nil {
		return str
	}
	return string(raw)
}

// ListFixtures returns the fixtures of a project
func (s *Service) ListFixtures(ctx context.Context, projectID uuid.UUID) ([]*domain.Fixture, error) {
	if _, err := s.repos.Projects.GetByID(ctx, projectID); err != nil {
		return nil, err
	}
	return s.repos.Fixtures.ListByProject(ctx, projectID)
}

// ListVersions returns the version history of a test case, newest first
func (s *Service) ListVersions(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestCaseVersion, error) {
	return s.recorder.List(ctx, testCaseID)
}

// GetVersion returns one version with its steps
func (s *Service) GetVersion(ctx context.Context, testCaseID, versionID uuid.UUID) (*domain.TestCaseVersion, error) {
	return s.recorder.Get(ctx, testCaseID, versionID)
}

// RecordVersion snapshots the test case on demand, bypassing the debounce
// window
func (s *Service) RecordVersion(ctx context.Context, testCaseID uuid.UUID, version, userID string) (*domain.TestCaseVersion, error) {
	return s.recorder.Record(ctx, testCaseID, userID, versioning.RecordOptions{Version: version, Force: true})
}

// RestoreVersion overwrites the live test case and steps with a version and
// writes the restored script back to disk. A failed file write is logged.
func (s *Service) RestoreVersion(ctx context.Context, testCaseID, versionID uuid.UUID, userID string) (*domain.TestCase, error) {
	tc, err := s.recorder.Restore(ctx, testCaseID, versionID, userID)
	if err != nil {
		return nil, err
	}

	path, err := s.writeScript(ctx, tc, tc.Script)
	if err != nil {
		s.logger.Warn("failed to write restored script",
			zap.String("test_case_id", tc.ID.String()),
			zap.String("path", path),
			zap.Error(err),
		)
		return tc, nil
	}
	s.publish(ctx, tc, path, "restore")
	return tc, nil
}
