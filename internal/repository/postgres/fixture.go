package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

const fixtureColumns = `id, project_id, name, type, content, created_at, updated_at`

// FixtureRepository implements domain.FixtureRepository with PostgreSQL
type FixtureRepository struct {
	db *sqlx.DB
}

// NewFixtureRepository creates a new fixture repository
func NewFixtureRepository(db *sqlx.DB) *FixtureRepository {
	return &FixtureRepository{db: db}
}

// Create inserts a new fixture
func (r *FixtureRepository) Create(ctx context.Context, f *domain.Fixture) error {
	query := `
		INSERT INTO fixtures (` + fixtureColumns + `)
		VALUES (:id, :project_id, :name, :type, :content, :created_at, :updated_at)
	`

	if _, err := r.db.NamedExecContext(ctx, query, f); err != nil {
		if isUniqueViolation(err) {
			return domain.AlreadyExistsError("fixture", "name", f.Name)
		}
		if isForeignKeyViolation(err) {
			return domain.NotFoundError("project", f.ProjectID)
		}
		return err
	}
	return nil
}

// GetByID retrieves a fixture by ID
func (r *FixtureRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fixture, error) {
	query := `SELECT ` + fixtureColumns + ` FROM fixtures WHERE id = $1`

	var f domain.Fixture
	if err := r.db.GetContext(ctx, &f, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundError("fixture", id)
		}
		return nil, err
	}
	return &f, nil
}

// GetByIDs retrieves the fixtures that exist among ids
func (r *FixtureRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Fixture, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}

	query := `SELECT ` + fixtureColumns + ` FROM fixtures WHERE id = ANY($1::uuid[]) ORDER BY name`

	var fixtures []*domain.Fixture
	if err := r.db.SelectContext(ctx, &fixtures, query, pq.Array(keys)); err != nil {
		return nil, err
	}
	return fixtures, nil
}

// ListByProject retrieves the fixtures of a project ordered by name
func (r *FixtureRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Fixture, error) {
	query := `SELECT ` + fixtureColumns + ` FROM fixtures WHERE project_id = $1 ORDER BY name`

	var fixtures []*domain.Fixture
	if err := r.db.SelectContext(ctx, &fixtures, query, projectID); err != nil {
		return nil, err
	}
	return fixtures, nil
}
