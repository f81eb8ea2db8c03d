package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinhdnn/ai-test-management/internal/domain"
)

func seed(t *testing.T, s *Store) *domain.TestCase {
	t.Helper()
	ctx := context.Background()
	p := domain.NewProject("Shop", "", "")
	require.NoError(t, s.Projects().Create(ctx, p))
	tc := domain.NewTestCase(p.ID, "Checkout", "", "")
	require.NoError(t, s.TestCases().Create(ctx, tc))
	return tc
}

func addSteps(t *testing.T, s *Store, tcID uuid.UUID, actions ...string) []*domain.TestStep {
	t.Helper()
	out := make([]*domain.TestStep, 0, len(actions))
	for _, a := range actions {
		st := domain.NewTestStep(tcID, a, "", "")
		require.NoError(t, s.Steps().Create(context.Background(), st))
		out = append(out, st)
	}
	return out
}

func actions(steps []*domain.TestStep) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = s.Action
	}
	return out
}

func TestStore_StepOrdering(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tc := seed(t, s)

	steps := addSteps(t, s, tc.ID, "open", "fill", "submit")
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].Order, steps[1].Order, steps[2].Order})

	require.NoError(t, s.Steps().Delete(ctx, tc.ID, steps[0].ID))
	listed, err := s.Steps().ListByTestCase(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"fill", "submit"}, actions(listed))
	assert.Equal(t, 1, listed[0].Order)
	assert.Equal(t, 2, listed[1].Order)

	require.NoError(t, s.Steps().Reorder(ctx, tc.ID, []uuid.UUID{steps[2].ID, steps[1].ID}))
	listed, err = s.Steps().ListByTestCase(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"submit", "fill"}, actions(listed))

	err = s.Steps().Reorder(ctx, tc.ID, []uuid.UUID{steps[2].ID})
	assert.True(t, domain.IsValidationError(err))

	err = s.Steps().Delete(ctx, uuid.New(), steps[1].ID)
	assert.True(t, domain.IsNotFoundError(err))
}

func TestStore_StepCreateUnknownTestCase(t *testing.T) {
	s := NewStore()
	err := s.Steps().Create(context.Background(), domain.NewTestStep(uuid.New(), "open", "", ""))
	assert.True(t, domain.IsNotFoundError(err))
}

func TestStore_ConcurrentCreate(t *testing.T) {
	s := NewStore()
	tc := seed(t, s)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Steps().Create(context.Background(), domain.NewTestStep(tc.ID, "step", "", "")))
		}()
	}
	wg.Wait()

	listed, err := s.Steps().ListByTestCase(context.Background(), tc.ID)
	require.NoError(t, err)
	require.Len(t, listed, 20)
	for i, st := range listed {
		assert.Equal(t, i+1, st.Order)
	}
}

func TestStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tc := seed(t, s)

	got, err := s.TestCases().GetByID(ctx, tc.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := s.TestCases().GetByID(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checkout", again.Name)
}

func TestStore_Fixtures(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tc := seed(t, s)

	login := domain.NewFixture(tc.ProjectID, "login", domain.FixtureTypeSetup, "")
	data := domain.NewFixture(tc.ProjectID, "data", domain.FixtureTypeData, "")
	require.NoError(t, s.Fixtures().Create(ctx, login))
	require.NoError(t, s.Fixtures().Create(ctx, data))

	err := s.Fixtures().Create(ctx, domain.NewFixture(tc.ProjectID, "login", domain.FixtureTypeSetup, ""))
	assert.ErrorIs(t, err, domain.ErrAlreadyExistsVal)

	got, err := s.Fixtures().GetByIDs(ctx, []uuid.UUID{login.ID, uuid.New(), data.ID})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	listed, err := s.Fixtures().ListByProject(ctx, tc.ProjectID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "data", listed[0].Name)
	assert.Equal(t, "login", listed[1].Name)
}

func TestStore_VersionsAndRestore(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	tc := seed(t, s)
	steps := addSteps(t, s, tc.ID, "open", "submit")

	v := domain.NewTestCaseVersion(tc, steps, "", "alice")
	require.NoError(t, s.Versions().Create(ctx, v))

	later := domain.NewTestCaseVersion(tc, nil, "1.0.9", "bob")
	later.CreatedAt = v.CreatedAt.Add(time.Second)
	require.NoError(t, s.Versions().Create(ctx, later))

	listed, err := s.Versions().ListByTestCase(ctx, tc.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, later.ID, listed[0].ID)
	assert.Nil(t, listed[1].Steps)

	addSteps(t, s, tc.ID, "extra")
	tc.Name = "Renamed"
	require.NoError(t, s.TestCases().Update(ctx, tc))

	loaded, err := s.Versions().GetByID(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Steps, 2)
	require.NoError(t, s.Versions().Restore(ctx, loaded))

	restored, err := s.TestCases().GetByID(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, "Checkout", restored.Name)

	live, err := s.Steps().ListByTestCase(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"open", "submit"}, actions(live))
	assert.NotEqual(t, steps[0].ID, live[0].ID)

	_, err = s.Versions().GetByID(ctx, uuid.New())
	assert.True(t, domain.IsNotFoundError(err))
}
