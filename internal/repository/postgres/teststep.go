package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

const testStepColumns = `id, test_case_id, owner_fixture_id, step_order, action, data, expected,
	selector, playwright_code, disabled, fixture_id, created_at, updated_at`

// TestStepRepository implements domain.TestStepRepository with PostgreSQL
type TestStepRepository struct {
	db *DB
}

// NewTestStepRepository creates a new test step repository
func NewTestStepRepository(db *DB) *TestStepRepository {
	return &TestStepRepository{db: db}
}

// ListByTestCase retrieves every step of a test case in script order
func (r *TestStepRepository) ListByTestCase(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestStep, error) {
	return listSteps(ctx, r.db, testCaseID)
}

func listSteps(ctx context.Context, q querier, testCaseID uuid.UUID) ([]*domain.TestStep, error) {
	query := `
		SELECT ` + testStepColumns + `
		FROM test_steps
		WHERE test_case_id = $1
		ORDER BY step_order, created_at
	`

	var steps []*domain.TestStep
	if err := q.SelectContext(ctx, &steps, query, testCaseID); err != nil {
		return nil, err
	}
	return steps, nil
}

// GetByID retrieves a step by ID
func (r *TestStepRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestStep, error) {
	query := `SELECT ` + testStepColumns + ` FROM test_steps WHERE id = $1`

	var step domain.TestStep
	if err := r.db.GetContext(ctx, &step, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("test step", id)
		}
		return nil, err
	}
	return &step, nil
}

// Create inserts a step at the end of its test case. The parent row is
// locked so concurrent inserts never share an order value.
func (r *TestStepRepository) Create(ctx context.Context, step *domain.TestStep) error {
	if step.TestCaseID == nil {
		return domain.ValidationError("test_case_id", "is required")
	}
	testCaseID := *step.TestCaseID

	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		err := tx.GetContext(ctx, &locked, `SELECT id FROM test_cases WHERE id = $1 FOR UPDATE`, testCaseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundError("test case", testCaseID)
			}
			return err
		}

		query := `
			INSERT INTO test_steps (id, test_case_id, owner_fixture_id, step_order, action, data, expected,
				selector, playwright_code, disabled, fixture_id, created_at, updated_at)
			SELECT $1::uuid, $2::uuid, $3::uuid, COALESCE(MAX(step_order), 0) + 1, $4::text, $5::text, $6::text,
				$7::text, $8::text, $9::boolean, $10::uuid, $11::timestamptz, $12::timestamptz
			FROM test_steps
			WHERE test_case_id = $2
			RETURNING step_order
		`
		var order int
		err = tx.GetContext(ctx, &order, query,
			step.ID,
			testCaseID,
			step.OwnerFixtureID,
			step.Action,
			step.Data,
			step.Expected,
			step.Selector,
			step.PlaywrightCode,
			step.Disabled,
			step.FixtureID,
			step.CreatedAt,
			step.UpdatedAt,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return domain.ValidationError("fixture_id", "references a missing fixture")
			}
			return err
		}
		step.Order = order
		return nil
	})
}

// Update updates a step's content and flags; its position is left alone
func (r *TestStepRepository) Update(ctx context.Context, step *domain.TestStep) error {
	query := `
		UPDATE test_steps
		SET action = $2, data = $3, expected = $4, selector = $5, playwright_code = $6,
			disabled = $7, fixture_id = $8, updated_at = $9
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		step.ID,
		step.Action,
		step.Data,
		step.Expected,
		step.Selector,
		step.PlaywrightCode,
		step.Disabled,
		step.FixtureID,
		step.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ValidationError("fixture_id", "references a missing fixture")
		}
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NotFoundError("test step", step.ID)
	}
	return nil
}

// Delete removes a step and closes the gap it leaves in the order
func (r *TestStepRepository) Delete(ctx context.Context, testCaseID, stepID uuid.UUID) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx,
			`DELETE FROM test_steps WHERE id = $1 AND test_case_id = $2`, stepID, testCaseID)
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.NotFoundError("test step", stepID)
		}
		return resequence(ctx, tx, testCaseID)
	})
}

// Reorder assigns orderedIDs[i] the position i+1
func (r *TestStepRepository) Reorder(ctx context.Context, testCaseID uuid.UUID, orderedIDs []uuid.UUID) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		var locked uuid.UUID
		err := tx.GetContext(ctx, &locked, `SELECT id FROM test_cases WHERE id = $1 FOR UPDATE`, testCaseID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return domain.NotFoundError("test case", testCaseID)
			}
			return err
		}

		current, err := listSteps(ctx, tx, testCaseID)
		if err != nil {
			return err
		}
		if err := domain.ValidateReorder(current, orderedIDs); err != nil {
			return err
		}

		for i, id := range orderedIDs {
			_, err := tx.ExecContext(ctx,
				`UPDATE test_steps SET step_order = $2, updated_at = NOW() WHERE id = $1 AND step_order <> $2`,
				id, i+1)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
