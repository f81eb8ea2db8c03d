package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TestStep is a single browser action belonging to a test case or to a
// fixture, never both.
type TestStep struct {
	ID uuid.UUID `json:"id" db:"id"`
	// TestCaseID is set when the step belongs to a test case
	TestCaseID *uuid.UUID `json:"test_case_id,omitempty" db:"test_case_id"`
	// OwnerFixtureID is set when the step belongs to a fixture
	OwnerFixtureID *uuid.UUID `json:"owner_fixture_id,omitempty" db:"owner_fixture_id"`
	// Order is the 1-based position; ties are broken by CreatedAt
	Order          int    `json:"order" db:"step_order"`
	Action         string `json:"action" db:"action"`
	Data           string `json:"data,omitempty" db:"data"`
	Expected       string `json:"expected,omitempty" db:"expected"`
	Selector       string `json:"selector,omitempty" db:"selector"`
	PlaywrightCode string `json:"playwright_code,omitempty" db:"playwright_code"`
	Disabled       bool   `json:"disabled" db:"disabled"`
	// FixtureID marks the step as "this fixture is already applied"
	FixtureID *uuid.UUID `json:"fixture_id,omitempty" db:"fixture_id"`
	Timestamps
}

// NewTestStep creates a step for a test case. Order is assigned by the
// repository on insert.
func NewTestStep(testCaseID uuid.UUID, action, data, expected string) *TestStep {
	now := time.Now().UTC()
	id := testCaseID
	return &TestStep{
		ID:         uuid.New(),
		TestCaseID: &id,
		Action:     action,
		Data:       data,
		Expected:   expected,
		Timestamps: Timestamps{
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// HasCode reports whether the step carries an executable fragment
func (s *TestStep) HasCode() bool {
	return strings.TrimSpace(s.PlaywrightCode) != ""
}

// GeneratedStep is the result of turning a natural-language step into code
type GeneratedStep struct {
	PlaywrightCode string `json:"playwrightCode"`
	Action         string `json:"action,omitempty"`
	Expected       string `json:"expected,omitempty"`
	Selector       string `json:"selector,omitempty"`
	Data           string `json:"data,omitempty"`
}

// TestStepRepository defines data access for test steps
type TestStepRepository interface {
	// ListByTestCase returns every step of the test case, disabled ones
	// included, ordered by Order then CreatedAt.
	ListByTestCase(ctx context.Context, testCaseID uuid.UUID) ([]*TestStep, error)
	GetByID(ctx context.Context, id uuid.UUID) (*TestStep, error)
	// Create inserts the step and assigns it the next Order value for its
	// test case atomically.
	Create(ctx context.Context, step *TestStep) error
	Update(ctx context.Context, step *TestStep) error
	// Delete removes the step and re-sequences its siblings to 1..N
	Delete(ctx context.Context, testCaseID, stepID uuid.UUID) error
	// Reorder rewrites Order so that orderedIDs[i] gets i+1
	Reorder(ctx context.Context, testCaseID uuid.UUID, orderedIDs []uuid.UUID) error
}

// ValidateReorder checks that orderedIDs is a permutation of the ids in
// current
func ValidateReorder(current []*TestStep, orderedIDs []uuid.UUID) error {
	if len(orderedIDs) != len(current) {
		return ValidationError("step_ids", "must list every step of the test case exactly once")
	}
	known := make(map[uuid.UUID]bool, len(current))
	for _, s := range current {
		known[s.ID] = true
	}
	seen := make(map[uuid.UUID]bool, len(orderedIDs))
	for _, id := range orderedIDs {
		if !known[id] || seen[id] {
			return ValidationError("step_ids", "must list every step of the test case exactly once")
		}
		seen[id] = true
	}
	return nil
}
