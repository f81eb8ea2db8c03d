package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

const testCaseColumns = `id, project_id, name, description, tags, version, script, created_at, updated_at`

// TestCaseRepository implements domain.TestCaseRepository with PostgreSQL
type TestCaseRepository struct {
	db *sqlx.DB
}

// NewTestCaseRepository creates a new test case repository
func NewTestCaseRepository(db *sqlx.DB) *TestCaseRepository {
	return &TestCaseRepository{db: db}
}

// Create inserts a new test case
func (r *TestCaseRepository) Create(ctx context.Context, tc *domain.TestCase) error {
	query := `
		INSERT INTO test_cases (` + testCaseColumns + `)
		VALUES (:id, :project_id, :name, :description, :tags, :version, :script, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, tc); err != nil {
		if isForeignKeyViolation(err) {
			return domain.NotFoundError("project", tc.ProjectID)
		}
		return err
	}
	return nil
}

// GetByID retrieves a test case by ID
func (r *TestCaseRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestCase, error) {
	return getTestCase(ctx, r.db, id)
}

func getTestCase(ctx context.Context, q querier, id uuid.UUID) (*domain.TestCase, error) {
	query := `SELECT ` + testCaseColumns + ` FROM test_cases WHERE id = $1`

	var tc domain.TestCase
	if err := q.GetContext(ctx, &tc, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("test case", id)
		}
		return nil, err
	}
	return &tc, nil
}

// ListByProject retrieves the test cases of a project, oldest first
func (r *TestCaseRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.TestCase, error) {
	query := `
		SELECT ` + testCaseColumns + `
		FROM test_cases
		WHERE project_id = $1
		ORDER BY created_at, id
	`

	var testCases []*domain.TestCase
	if err := r.db.SelectContext(ctx, &testCases, query, projectID); err != nil {
		return nil, err
	}
	return testCases, nil
}

// Update updates the mutable fields of a test case
func (r *TestCaseRepository) Update(ctx context.Context, tc *domain.TestCase) error {
	return updateTestCase(ctx, r.db, tc)
}

func updateTestCase(ctx context.Context, q querier, tc *domain.TestCase) error {
	query := `
		UPDATE test_cases
		SET name = $2, description = $3, tags = $4, version = $5, script = $6, updated_at = $7
		WHERE id = $1
	`

	result, err := q.ExecContext(ctx, query,
		tc.ID,
		tc.Name,
		tc.Description,
		tc.Tags,
		tc.Version,
		tc.Script,
		tc.UpdatedAt,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return domain.NotFoundError("test case", tc.ID)
	}
	return nil
}
