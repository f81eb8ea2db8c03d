package domain

import (
	"context"

	"github.com/google/uuid"
)

// FixtureType classifies what a fixture does for a test
type FixtureType string

const (
	FixtureTypeSetup    FixtureType = "setup"
	FixtureTypeTeardown FixtureType = "teardown"
	FixtureTypeData     FixtureType = "data"
)

func (t FixtureType) IsValid() bool {
	switch t {
	case FixtureTypeSetup, FixtureTypeTeardown, FixtureTypeData:
		return true
	}
	return false
}

// Fixture is a reusable piece of test setup that is composed into a
// generated script through imports.
type Fixture struct {
	ID        uuid.UUID   `json:"id" db:"id"`
	ProjectID uuid.UUID   `json:"project_id" db:"project_id"`
	Name      string      `json:"name" db:"name"`
	Type      FixtureType `json:"type" db:"type"`
	// Content is a JSON blob of the form {exportName, path, filename}
	Content string `json:"content" db:"content"`
	Timestamps
}

// FixtureContent is the decoded form of Fixture.Content
type FixtureContent struct {
	ExportName string `json:"exportName"`
	Path       string `json:"path"`
	Filename   string `json:"filename"`
}

// NewFixture creates a new fixture
func NewFixture(projectID uuid.UUID, name string, fixtureType FixtureType, content string) *Fixture {
	f := &Fixture{
		ID:        uuid.New(),
		ProjectID: projectID,
		Name:      name,
		Type:      fixtureType,
		Content:   content,
	}
	f.SetTimestamps()
	return f
}

// FixtureRepository defines data access for fixtures
type FixtureRepository interface {
	Create(ctx context.Context, f *Fixture) error
	GetByID(ctx context.Context, id uuid.UUID) (*Fixture, error)
	// GetByIDs returns the fixtures that exist among ids; missing ids are
	// silently skipped.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Fixture, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*Fixture, error)
}
