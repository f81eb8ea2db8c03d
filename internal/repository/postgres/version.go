package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

const versionColumns = `id, test_case_id, version, name, description, tags, script, created_by, created_at`

const stepVersionColumns = `id, version_id, position, step_order, action, data, expected, selector,
	playwright_code, disabled, fixture_id`

// VersionRepository implements domain.VersionRepository with PostgreSQL
type VersionRepository struct {
	db *DB
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *DB) *VersionRepository {
	return &VersionRepository{db: db}
}

// Create writes the version and its step snapshots in one transaction
func (r *VersionRepository) Create(ctx context.Context, v *domain.TestCaseVersion) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO test_case_versions (` + versionColumns + `)
			VALUES (:id, :test_case_id, :version, :name, :description, :tags, :script, :created_by, :created_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, v); err != nil {
			if isForeignKeyViolation(err) {
				return domain.NotFoundError("test case", v.TestCaseID)
			}
			return err
		}

		if len(v.Steps) == 0 {
			return nil
		}
		stepQuery := `
			INSERT INTO test_step_versions (` + stepVersionColumns + `)
			VALUES (:id, :version_id, :position, :step_order, :action, :data, :expected, :selector,
				:playwright_code, :disabled, :fixture_id)
		`
		if _, err := tx.NamedExecContext(ctx, stepQuery, v.Steps); err != nil {
			return err
		}
		return nil
	})
}

// GetByID retrieves a version with its steps
func (r *VersionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestCaseVersion, error) {
	var v domain.TestCaseVersion
	query := `SELECT ` + versionColumns + ` FROM test_case_versions WHERE id = $1`
	if err := r.db.GetContext(ctx, &v, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("version", id)
		}
		return nil, err
	}

	stepQuery := `
		SELECT ` + stepVersionColumns + `
		FROM test_step_versions
		WHERE version_id = $1
		ORDER BY position
	`
	if err := r.db.SelectContext(ctx, &v.Steps, stepQuery, id); err != nil {
		return nil, err
	}
	return &v, nil
}

// ListByTestCase retrieves the versions of a test case, newest first
func (r *VersionRepository) ListByTestCase(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestCaseVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM test_case_versions
		WHERE test_case_id = $1
		ORDER BY created_at DESC, id
	`

	var versions []*domain.TestCaseVersion
	if err := r.db.SelectContext(ctx, &versions, query, testCaseID); err != nil {
		return nil, err
	}
	return versions, nil
}

// Restore overwrites the live test case with the snapshot and replaces its
// steps, in one transaction
func (r *VersionRepository) Restore(ctx context.Context, v *domain.TestCaseVersion) error {
	return r.db.Transaction(ctx, func(tx *sqlx.Tx) error {
		tc, err := getTestCase(ctx, tx, v.TestCaseID)
		if err != nil {
			return err
		}
		tc.ApplyVersion(v)
		if err := updateTestCase(ctx, tx, tc); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM test_steps WHERE test_case_id = $1`, v.TestCaseID); err != nil {
			return err
		}

		steps := v.LiveSteps()
		if len(steps) == 0 {
			return nil
		}
		query := `
			INSERT INTO test_steps (` + testStepColumns + `)
			VALUES (:id, :test_case_id, :owner_fixture_id, :step_order, :action, :data, :expected,
				:selector, :playwright_code, :disabled, :fixture_id, :created_at, :updated_at)
		`
		if _, err := tx.NamedExecContext(ctx, query, steps); err != nil {
			if isForeignKeyViolation(err) {
				return domain.ValidationError("fixture_id", "snapshot references a deleted fixture")
			}
			return err
		}
		return nil
	})
}
