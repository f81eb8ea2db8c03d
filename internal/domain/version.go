package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TestCaseVersion is an immutable snapshot of a test case and all of its
// steps. Restoring a version overwrites live rows, never the snapshot.
type TestCaseVersion struct {
	ID          uuid.UUID         `json:"id" db:"id"`
	TestCaseID  uuid.UUID         `json:"test_case_id" db:"test_case_id"`
	Version     string            `json:"version" db:"version"`
	Name        string            `json:"name" db:"name"`
	Description string            `json:"description" db:"description"`
	Tags        string            `json:"tags" db:"tags"`
	Script      string            `json:"script" db:"script"`
	CreatedBy   string            `json:"created_by" db:"created_by"`
	CreatedAt   time.Time         `json:"created_at" db:"created_at"`
	Steps       []TestStepVersion `json:"steps,omitempty" db:"-"`
}

// TestStepVersion is the snapshot of one step inside a TestCaseVersion.
// Position is its index in the snapshot; Order may repeat across steps.
type TestStepVersion struct {
	ID             uuid.UUID  `json:"id" db:"id"`
	VersionID      uuid.UUID  `json:"version_id" db:"version_id"`
	Position       int        `json:"position" db:"position"`
	Order          int        `json:"order" db:"step_order"`
	Action         string     `json:"action" db:"action"`
	Data           string     `json:"data,omitempty" db:"data"`
	Expected       string     `json:"expected,omitempty" db:"expected"`
	Selector       string     `json:"selector,omitempty" db:"selector"`
	PlaywrightCode string     `json:"playwright_code,omitempty" db:"playwright_code"`
	Disabled       bool       `json:"disabled" db:"disabled"`
	FixtureID      *uuid.UUID `json:"fixture_id,omitempty" db:"fixture_id"`
}

// NewTestCaseVersion snapshots tc and steps. Steps are copied in the order
// given; callers pass them already ordered.
func NewTestCaseVersion(tc *TestCase, steps []*TestStep, version, createdBy string) *TestCaseVersion {
	if version == "" {
		version = tc.Version
	}
	v := &TestCaseVersion{
		ID:          uuid.New(),
		TestCaseID:  tc.ID,
		Version:     version,
		Name:        tc.Name,
		Description: tc.Description,
		Tags:        tc.Tags,
		Script:      tc.Script,
		CreatedBy:   createdBy,
		CreatedAt:   time.Now().UTC(),
		Steps:       make([]TestStepVersion, 0, len(steps)),
	}
	for i, s := range steps {
		v.Steps = append(v.Steps, TestStepVersion{
			ID:             uuid.New(),
			VersionID:      v.ID,
			Position:       i,
			Order:          s.Order,
			Action:         s.Action,
			Data:           s.Data,
			Expected:       s.Expected,
			Selector:       s.Selector,
			PlaywrightCode: s.PlaywrightCode,
			Disabled:       s.Disabled,
			FixtureID:      copyUUID(s.FixtureID),
		})
	}
	return v
}

// LiveSteps rebuilds live test steps from the snapshot, preserving the
// recorded order. New identifiers are assigned.
func (v *TestCaseVersion) LiveSteps() []*TestStep {
	steps := make([]*TestStep, 0, len(v.Steps))
	now := time.Now().UTC()
	for i, sv := range v.Steps {
		tcID := v.TestCaseID
		steps = append(steps, &TestStep{
			ID:             uuid.New(),
			TestCaseID:     &tcID,
			Order:          sv.Order,
			Action:         sv.Action,
			Data:           sv.Data,
			Expected:       sv.Expected,
			Selector:       sv.Selector,
			PlaywrightCode: sv.PlaywrightCode,
			Disabled:       sv.Disabled,
			FixtureID:      copyUUID(sv.FixtureID),
			// keep creation order stable for equal Order values
			Timestamps: Timestamps{
				CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
				UpdatedAt: now,
			},
		})
	}
	return steps
}

func copyUUID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	c := *id
	return &c
}

// VersionRepository defines data access for version snapshots
type VersionRepository interface {
	// Create writes the version row and one row per step atomically
	Create(ctx context.Context, v *TestCaseVersion) error
	// GetByID returns the version with its steps
	GetByID(ctx context.Context, id uuid.UUID) (*TestCaseVersion, error)
	// ListByTestCase returns versions newest first, without steps
	ListByTestCase(ctx context.Context, testCaseID uuid.UUID) ([]*TestCaseVersion, error)
	// Restore overwrites the live test case and replaces all of its steps
	// with the snapshot, atomically. The version row is left untouched.
	Restore(ctx context.Context, v *TestCaseVersion) error
}
