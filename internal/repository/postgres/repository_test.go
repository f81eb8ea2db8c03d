package postgres

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/repository/postgres/pgtest"
)

// schemaTables lists every table, children first
var schemaTables = []string{
	"test_step_versions",
	"test_case_versions",
	"test_steps",
	"fixtures",
	"test_cases",
	"projects",
}

func TestRepositories(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := pgtest.Start(t, schemaTables...)

	repos := NewRepositories(&DB{DB: testDB.DB})
	ctx := context.Background()

	seed := func(t *testing.T) (*domain.Project, *domain.TestCase) {
		t.Helper()
		project := domain.NewProject("Shop", "storefront", "https://shop.example.com")
		require.NoError(t, repos.Projects.Create(ctx, project))

		tc := domain.NewTestCase(project.ID, "Checkout", "pay for a cart", `["smoke"]`)
		require.NoError(t, repos.TestCases.Create(ctx, tc))
		return project, tc
	}

	t.Run("Projects", func(t *testing.T) {
		testDB.Truncate(t)
		project, _ := seed(t)

		got, err := repos.Projects.GetByID(ctx, project.ID)
		require.NoError(t, err)
		assert.Equal(t, "Shop", got.Name)
		assert.Equal(t, "https://shop.example.com", got.BaseURL)

		_, err = repos.Projects.GetByID(ctx, uuid.New())
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("TestCases", func(t *testing.T) {
		testDB.Truncate(t)
		project, tc := seed(t)

		tc.Script = "test('Checkout', async ({ page }) => {\n});\n"
		tc.BumpVersion()
		require.NoError(t, repos.TestCases.Update(ctx, tc))

		got, err := repos.TestCases.GetByID(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, "1.0.1", got.Version)
		assert.Equal(t, tc.Script, got.Script)
		assert.Equal(t, `["smoke"]`, got.Tags)

		list, err := repos.TestCases.ListByProject(ctx, project.ID)
		require.NoError(t, err)
		assert.Len(t, list, 1)

		err = repos.TestCases.Create(ctx, domain.NewTestCase(uuid.New(), "orphan", "", ""))
		assert.True(t, domain.IsNotFoundError(err))

		err = repos.TestCases.Update(ctx, domain.NewTestCase(project.ID, "missing", "", ""))
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("StepOrdering", func(t *testing.T) {
		testDB.Truncate(t)
		_, tc := seed(t)

		var ids []uuid.UUID
		for _, action := range []string{"open cart", "pay", "confirm"} {
			step := domain.NewTestStep(tc.ID, action, "", "")
			require.NoError(t, repos.Steps.Create(ctx, step))
			ids = append(ids, step.ID)
			assert.Equal(t, len(ids), step.Order)
		}

		require.NoError(t, repos.Steps.Delete(ctx, tc.ID, ids[1]))
		steps, err := repos.Steps.ListByTestCase(ctx, tc.ID)
		require.NoError(t, err)
		require.Len(t, steps, 2)
		assert.Equal(t, []int{1, 2}, []int{steps[0].Order, steps[1].Order})
		assert.Equal(t, "confirm", steps[1].Action)

		err = repos.Steps.Delete(ctx, tc.ID, ids[1])
		assert.True(t, domain.IsNotFoundError(err))

		err = repos.Steps.Reorder(ctx, tc.ID, []uuid.UUID{ids[2]})
		assert.True(t, domain.IsValidationError(err))

		require.NoError(t, repos.Steps.Reorder(ctx, tc.ID, []uuid.UUID{ids[2], ids[0]}))
		steps, err = repos.Steps.ListByTestCase(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, ids[2], steps[0].ID)
		assert.Equal(t, ids[0], steps[1].ID)

		next := domain.NewTestStep(tc.ID, "logout", "", "")
		require.NoError(t, repos.Steps.Create(ctx, next))
		assert.Equal(t, 3, next.Order)
	})

	t.Run("ConcurrentCreate", func(t *testing.T) {
		testDB.Truncate(t)
		_, tc := seed(t)

		const n = 8
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- repos.Steps.Create(ctx, domain.NewTestStep(tc.ID, "click", "", ""))
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		steps, err := repos.Steps.ListByTestCase(ctx, tc.ID)
		require.NoError(t, err)
		require.Len(t, steps, n)
		for i, s := range steps {
			assert.Equal(t, i+1, s.Order)
		}
	})

	t.Run("StepUpdate", func(t *testing.T) {
		testDB.Truncate(t)
		project, tc := seed(t)

		f := domain.NewFixture(project.ID, "Logged In", domain.FixtureTypeSetup, `{"exportName":"loggedIn"}`)
		require.NoError(t, repos.Fixtures.Create(ctx, f))

		step := domain.NewTestStep(tc.ID, "log in", "", "")
		require.NoError(t, repos.Steps.Create(ctx, step))

		step.FixtureID = &f.ID
		step.Disabled = true
		step.PlaywrightCode = "await page.goto('/login');"
		require.NoError(t, repos.Steps.Update(ctx, step))

		got, err := repos.Steps.GetByID(ctx, step.ID)
		require.NoError(t, err)
		require.NotNil(t, got.FixtureID)
		assert.Equal(t, f.ID, *got.FixtureID)
		assert.True(t, got.Disabled)
		assert.Equal(t, step.PlaywrightCode, got.PlaywrightCode)
		assert.Nil(t, got.OwnerFixtureID)

		missing := uuid.New()
		step.FixtureID = &missing
		err = repos.Steps.Update(ctx, step)
		assert.True(t, domain.IsValidationError(err))

		_, err = repos.Steps.GetByID(ctx, uuid.New())
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("Fixtures", func(t *testing.T) {
		testDB.Truncate(t)
		project, _ := seed(t)

		a := domain.NewFixture(project.ID, "Admin", domain.FixtureTypeSetup, "")
		b := domain.NewFixture(project.ID, "Cart Data", domain.FixtureTypeData, `{"path":"fixtures/cart"}`)
		require.NoError(t, repos.Fixtures.Create(ctx, a))
		require.NoError(t, repos.Fixtures.Create(ctx, b))

		err := repos.Fixtures.Create(ctx, domain.NewFixture(project.ID, "Admin", domain.FixtureTypeSetup, ""))
		assert.Error(t, err)

		got, err := repos.Fixtures.GetByIDs(ctx, []uuid.UUID{b.ID, uuid.New(), a.ID})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Admin", got[0].Name)

		list, err := repos.Fixtures.ListByProject(ctx, project.ID)
		require.NoError(t, err)
		assert.Len(t, list, 2)

		_, err = repos.Fixtures.GetByID(ctx, uuid.New())
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("VersionsAndRestore", func(t *testing.T) {
		testDB.Truncate(t)
		_, tc := seed(t)

		for _, action := range []string{"open cart", "pay"} {
			require.NoError(t, repos.Steps.Create(ctx, domain.NewTestStep(tc.ID, action, "", "")))
		}
		tc.Script = "snapshot script"
		require.NoError(t, repos.TestCases.Update(ctx, tc))

		steps, err := repos.Steps.ListByTestCase(ctx, tc.ID)
		require.NoError(t, err)
		v := domain.NewTestCaseVersion(tc, steps, "", "alice")
		require.NoError(t, repos.Versions.Create(ctx, v))

		// diverge from the snapshot
		tc.Name = "Checkout v2"
		tc.Script = "live script"
		tc.BumpVersion()
		require.NoError(t, repos.TestCases.Update(ctx, tc))
		require.NoError(t, repos.Steps.Create(ctx, domain.NewTestStep(tc.ID, "extra", "", "")))

		later := domain.NewTestCaseVersion(tc, nil, "", "bob")
		later.CreatedAt = v.CreatedAt.Add(time.Second)
		require.NoError(t, repos.Versions.Create(ctx, later))

		list, err := repos.Versions.ListByTestCase(ctx, tc.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, later.ID, list[0].ID)
		assert.Empty(t, list[0].Steps)

		got, err := repos.Versions.GetByID(ctx, v.ID)
		require.NoError(t, err)
		require.Len(t, got.Steps, 2)
		assert.Equal(t, "alice", got.CreatedBy)
		assert.Equal(t, "open cart", got.Steps[0].Action)

		require.NoError(t, repos.Versions.Restore(ctx, got))

		restored, err := repos.TestCases.GetByID(ctx, tc.ID)
		require.NoError(t, err)
		assert.Equal(t, "Checkout", restored.Name)
		assert.Equal(t, "snapshot script", restored.Script)
		assert.Equal(t, domain.InitialVersion, restored.Version)

		live, err := repos.Steps.ListByTestCase(ctx, tc.ID)
		require.NoError(t, err)
		require.Len(t, live, 2)
		assert.Equal(t, "pay", live[1].Action)

		_, err = repos.Versions.GetByID(ctx, uuid.New())
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("VersionStepsKeepSnapshotOrderOnTies", func(t *testing.T) {
		testDB.Truncate(t)
		_, tc := seed(t)

		var steps []*domain.TestStep
		for _, action := range []string{"first", "second", "third", "fourth"} {
			s := domain.NewTestStep(tc.ID, action, "", "")
			s.Order = 1
			steps = append(steps, s)
		}
		v := domain.NewTestCaseVersion(tc, steps, "", "alice")
		require.NoError(t, repos.Versions.Create(ctx, v))

		for i := 0; i < 3; i++ {
			got, err := repos.Versions.GetByID(ctx, v.ID)
			require.NoError(t, err)
			require.Len(t, got.Steps, 4)
			for pos, want := range []string{"first", "second", "third", "fourth"} {
				assert.Equal(t, want, got.Steps[pos].Action)
				assert.Equal(t, pos, got.Steps[pos].Position)
			}
		}
	})
}
