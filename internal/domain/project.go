package domain

import (
	"context"

	"github.com/google/uuid"
)

// Project groups test cases and fixtures. Generated scripts for a project
// live under <project root>/tests.
type Project struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	BaseURL     string    `json:"base_url" db:"base_url"`
	Timestamps
}

// NewProject creates a new project
func NewProject(name, description, baseURL string) *Project {
	p := &Project{
		ID:          uuid.New(),
		Name:        name,
		Description: description,
		BaseURL:     baseURL,
	}
	p.SetTimestamps()
	return p
}

// ProjectRepository defines data access for projects
type ProjectRepository interface {
	Create(ctx context.Context, p *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
}
