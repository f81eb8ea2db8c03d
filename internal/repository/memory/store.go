// Package memory provides in-process implementations of the domain
// repositories. They back unit tests and the API when no database is
// configured.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

// Store holds every entity behind one lock so multi-entity operations such
// as Restore stay atomic.
type Store struct {
	mu        sync.RWMutex
	projects  map[uuid.UUID]domain.Project
	testCases map[uuid.UUID]domain.TestCase
	steps     map[uuid.UUID]domain.TestStep
	fixtures  map[uuid.UUID]domain.Fixture
	versions  map[uuid.UUID]domain.TestCaseVersion
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		projects:  make(map[uuid.UUID]domain.Project),
		testCases: make(map[uuid.UUID]domain.TestCase),
		steps:     make(map[uuid.UUID]domain.TestStep),
		fixtures:  make(map[uuid.UUID]domain.Fixture),
		versions:  make(map[uuid.UUID]domain.TestCaseVersion),
	}
}

func (s *Store) Projects() domain.ProjectRepository   { return projectRepo{s} }
func (s *Store) TestCases() domain.TestCaseRepository { return testCaseRepo{s} }
func (s *Store) Steps() domain.TestStepRepository     { return stepRepo{s} }
func (s *Store) Fixtures() domain.FixtureRepository   { return fixtureRepo{s} }
func (s *Store) Versions() domain.VersionRepository   { return versionRepo{s} }

// Projects

type projectRepo struct{ s *Store }

func (r projectRepo) Create(ctx context.Context, p *domain.Project) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.projects[p.ID]; ok {
		return domain.AlreadyExistsError("project", "id", p.ID.String())
	}
	r.s.projects[p.ID] = *p
	return nil
}

func (r projectRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Project, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	p, ok := r.s.projects[id]
	if !ok {
		return nil, domain.NotFoundError("project", id.String())
	}
	return &p, nil
}

// Test cases

type testCaseRepo struct{ s *Store }

func (r testCaseRepo) Create(ctx context.Context, tc *domain.TestCase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.testCases[tc.ID]; ok {
		return domain.AlreadyExistsError("test case", "id", tc.ID.String())
	}
	r.s.testCases[tc.ID] = *tc
	return nil
}

func (r testCaseRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestCase, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	tc, ok := r.s.testCases[id]
	if !ok {
		return nil, domain.NotFoundError("test case", id.String())
	}
	return &tc, nil
}

func (r testCaseRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.TestCase, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.TestCase
	for _, tc := range r.s.testCases {
		if tc.ProjectID == projectID {
			c := tc
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (r testCaseRepo) Update(ctx context.Context, tc *domain.TestCase) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.testCases[tc.ID]; !ok {
		return domain.NotFoundError("test case", tc.ID.String())
	}
	r.s.testCases[tc.ID] = *tc
	return nil
}

// Steps

type stepRepo struct{ s *Store }

func (r stepRepo) ListByTestCase(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestStep, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.stepsOf(testCaseID), nil
}

// stepsOf returns copies ordered by Order then CreatedAt; caller holds the lock
func (s *Store) stepsOf(testCaseID uuid.UUID) []*domain.TestStep {
	var out []*domain.TestStep
	for _, st := range s.steps {
		if st.TestCaseID != nil && *st.TestCaseID == testCaseID {
			c := st
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (r stepRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestStep, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	st, ok := r.s.steps[id]
	if !ok {
		return nil, domain.NotFoundError("test step", id.String())
	}
	return &st, nil
}

func (r stepRepo) Create(ctx context.Context, step *domain.TestStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if step.TestCaseID != nil {
		if _, ok := r.s.testCases[*step.TestCaseID]; !ok {
			return domain.NotFoundError("test case", step.TestCaseID.String())
		}
		max := 0
		for _, st := range r.s.stepsOf(*step.TestCaseID) {
			if st.Order > max {
				max = st.Order
			}
		}
		step.Order = max + 1
	}
	r.s.steps[step.ID] = *step
	return nil
}

func (r stepRepo) Update(ctx context.Context, step *domain.TestStep) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.steps[step.ID]; !ok {
		return domain.NotFoundError("test step", step.ID.String())
	}
	r.s.steps[step.ID] = *step
	return nil
}

func (r stepRepo) Delete(ctx context.Context, testCaseID, stepID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	st, ok := r.s.steps[stepID]
	if !ok || st.TestCaseID == nil || *st.TestCaseID != testCaseID {
		return domain.NotFoundError("test step", stepID.String())
	}
	delete(r.s.steps, stepID)
	now := time.Now().UTC()
	for i, sib := range r.s.stepsOf(testCaseID) {
		if sib.Order != i+1 {
			sib.Order = i + 1
			sib.UpdatedAt = now
			r.s.steps[sib.ID] = *sib
		}
	}
	return nil
}

func (r stepRepo) Reorder(ctx context.Context, testCaseID uuid.UUID, orderedIDs []uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current := r.s.stepsOf(testCaseID)
	if err := domain.ValidateReorder(current, orderedIDs); err != nil {
		return err
	}
	now := time.Now().UTC()
	for i, id := range orderedIDs {
		st := r.s.steps[id]
		if st.Order != i+1 {
			st.Order = i + 1
			st.UpdatedAt = now
			r.s.steps[id] = st
		}
	}
	return nil
}

// Fixtures

type fixtureRepo struct{ s *Store }

func (r fixtureRepo) Create(ctx context.Context, f *domain.Fixture) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.fixtures[f.ID]; ok {
		return domain.AlreadyExistsError("fixture", "id", f.ID.String())
	}
	for _, other := range r.s.fixtures {
		if other.ProjectID == f.ProjectID && other.Name == f.Name {
			return domain.AlreadyExistsError("fixture", "name", f.Name)
		}
	}
	r.s.fixtures[f.ID] = *f
	return nil
}

func (r fixtureRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Fixture, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	f, ok := r.s.fixtures[id]
	if !ok {
		return nil, domain.NotFoundError("fixture", id.String())
	}
	return &f, nil
}

func (r fixtureRepo) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*domain.Fixture, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Fixture
	for _, id := range ids {
		if f, ok := r.s.fixtures[id]; ok {
			out = append(out, &f)
		}
	}
	return out, nil
}

func (r fixtureRepo) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*domain.Fixture, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.Fixture
	for _, f := range r.s.fixtures {
		if f.ProjectID == projectID {
			c := f
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Versions

type versionRepo struct{ s *Store }

func (r versionRepo) Create(ctx context.Context, v *domain.TestCaseVersion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.versions[v.ID]; ok {
		return domain.AlreadyExistsError("version", "id", v.ID.String())
	}
	c := *v
	c.Steps = append([]domain.TestStepVersion(nil), v.Steps...)
	r.s.versions[v.ID] = c
	return nil
}

func (r versionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.TestCaseVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	v, ok := r.s.versions[id]
	if !ok {
		return nil, domain.NotFoundError("version", id.String())
	}
	v.Steps = append([]domain.TestStepVersion(nil), v.Steps...)
	return &v, nil
}

func (r versionRepo) ListByTestCase(ctx context.Context, testCaseID uuid.UUID) ([]*domain.TestCaseVersion, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*domain.TestCaseVersion
	for _, v := range r.s.versions {
		if v.TestCaseID == testCaseID {
			c := v
			c.Steps = nil
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r versionRepo) Restore(ctx context.Context, v *domain.TestCaseVersion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tc, ok := r.s.testCases[v.TestCaseID]
	if !ok {
		return domain.NotFoundError("test case", v.TestCaseID.String())
	}
	tc.ApplyVersion(v)
	r.s.testCases[tc.ID] = tc

	for id, st := range r.s.steps {
		if st.TestCaseID != nil && *st.TestCaseID == v.TestCaseID {
			delete(r.s.steps, id)
		}
	}
	for _, st := range v.LiveSteps() {
		r.s.steps[st.ID] = *st
	}
	return nil
}
