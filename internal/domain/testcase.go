package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TestCase is an automated browser test composed of ordered steps
type TestCase struct {
	ID          uuid.UUID `json:"id" db:"id"`
	ProjectID   uuid.UUID `json:"project_id" db:"project_id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	// Tags holds the raw tag field as stored; it may be a JSON array, a
	// comma separated list or a single tag. Normalize before use.
	Tags    string `json:"tags" db:"tags"`
	Version string `json:"version" db:"version"`
	// Script is the currently materialized script, empty until consolidated
	Script string `json:"script,omitempty" db:"script"`
	Timestamps
}

// NewTestCase creates a new test case at the initial version
func NewTestCase(projectID uuid.UUID, name, description, tags string) *TestCase {
	now := time.Now().UTC()
	return &TestCase{
		ID:          uuid.New(),
		ProjectID:   projectID,
		Name:        name,
		Description: description,
		Tags:        tags,
		Version:     InitialVersion,
		Timestamps: Timestamps{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// BumpVersion increments the PATCH component after a mutation
func (tc *TestCase) BumpVersion() {
	tc.Version = BumpPatch(tc.Version)
	tc.UpdatedAt = time.Now().UTC()
}

// TestCaseRepository defines data access for test cases
type TestCaseRepository interface {
	Create(ctx context.Context, tc *TestCase) error
	GetByID(ctx context.Context, id uuid.UUID) (*TestCase, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*TestCase, error)
	Update(ctx context.Context, tc *TestCase) error
}

// ApplyVersion overwrites the live fields captured by a version snapshot
func (tc *TestCase) ApplyVersion(v *TestCaseVersion) {
	tc.Name = v.Name
	tc.Description = v.Description
	tc.Tags = v.Tags
	tc.Script = v.Script
	tc.Version = v.Version
	tc.UpdatedAt = time.Now().UTC()
}
