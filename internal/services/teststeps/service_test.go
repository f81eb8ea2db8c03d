package teststeps

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/repository/memory"
	redisrepo "github.com/thinhdnn/ai-test-management/internal/repository/redis"
	"github.com/thinhdnn/ai-test-management/internal/storage"
	"github.com/thinhdnn/ai-test-management/internal/versioning"
)

type fakeGenerator struct {
	code     map[string]string
	err      error
	analyzed []domain.GeneratedStep
	calls    int
}

func (g *fakeGenerator) GenerateCodeFromStep(ctx context.Context, action, data, expected string) (*domain.GeneratedStep, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	return &domain.GeneratedStep{PlaywrightCode: g.code[action], Action: action}, nil
}

func (g *fakeGenerator) AnalyzeCode(ctx context.Context, code string) ([]domain.GeneratedStep, error) {
	if g.err != nil {
		return nil, g.err
	}
	return g.analyzed, nil
}

type mapCache struct {
	scripts map[string]string
	hits    int
}

func (c *mapCache) GetScript(ctx context.Context, fingerprint string) (string, bool, error) {
	s, ok := c.scripts[fingerprint]
	if ok {
		c.hits++
	}
	return s, ok, nil
}

func (c *mapCache) SetScript(ctx context.Context, fingerprint, script string) error {
	c.scripts[fingerprint] = script
	return nil
}

type recordingPublisher struct {
	events []redisrepo.ScriptEvent
}

func (p *recordingPublisher) PublishScriptEvent(ctx context.Context, ev redisrepo.ScriptEvent) error {
	p.events = append(p.events, ev)
	return nil
}

// failingWriter fails every write
type failingWriter struct{}

func (failingWriter) EnsureDir(ctx context.Context, dir string) error { return nil }
func (failingWriter) WriteFile(ctx context.Context, path, content string) error {
	return errors.New("disk full")
}

type harness struct {
	svc     *Service
	store   *memory.Store
	root    string
	now     time.Time
	project *domain.Project
	logs    *observer.ObservedLogs
}

func newHarness(t *testing.T, writer storage.ScriptWriter, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		store: memory.NewStore(),
		root:  t.TempDir(),
		now:   time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	core, logs := observer.New(zapcore.WarnLevel)
	h.logs = logs
	logger := zap.New(core)

	if writer == nil {
		writer = storage.NewFSWriter(nil)
	}
	repos := Repositories{
		Projects:  h.store.Projects(),
		TestCases: h.store.TestCases(),
		Steps:     h.store.Steps(),
		Fixtures:  h.store.Fixtures(),
		Versions:  h.store.Versions(),
	}
	recorder := versioning.NewRecorder(repos.TestCases, repos.Steps, repos.Versions,
		versioning.Config{Now: func() time.Time { return h.now }}, logger, nil)

	h.svc = NewService(repos, recorder, writer, Config{
		ProjectRoot:     h.root,
		ScriptExtension: "ts",
		GenerateMissing: true,
	}, logger, nil, opts...)

	p, err := h.svc.CreateProject(context.Background(), CreateProjectInput{Name: "Shop"})
	require.NoError(t, err)
	h.project = p
	return h
}

func (h *harness) readScript(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(h.root, "tests", name))
	require.NoError(t, err)
	return string(data)
}

func (h *harness) versions(t *testing.T, id uuid.UUID) []*domain.TestCaseVersion {
	t.Helper()
	vs, err := h.svc.ListVersions(context.Background(), id)
	require.NoError(t, err)
	return vs
}

func TestCreateTestCase(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Login Test", Tags: "smoke, @auth"}, "u1")
	require.NoError(t, err)

	assert.Equal(t, `["smoke","auth"]`, tc.Tags)
	assert.Equal(t, domain.InitialVersion, tc.Version)

	want := "import { test, expect } from '@playwright/test';\n" +
		"test('Login Test', { tag: ['@smoke', '@auth'] }, async ({ page }) => {\n" +
		"  // No active steps defined for this test case yet\n" +
		"});\n"
	assert.Equal(t, want, tc.Script)
	assert.Equal(t, want, h.readScript(t, "login-test.spec.ts"))
	assert.Len(t, h.versions(t, tc.ID), 1)
}

func TestCreateTestCase_Validation(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	_, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "  "}, "u1")
	assert.True(t, domain.IsValidationError(err))

	_, err = h.svc.CreateTestCase(ctx, uuid.New(), CreateTestCaseInput{Name: "x"}, "u1")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestStepMutations(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Login Test"}, "u1")
	require.NoError(t, err)

	first, err := h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "navigate", PlaywrightCode: "await page.goto('/login');"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, first.Step.Order)
	assert.Equal(t, "1.0.1", first.TestCase.Version)

	second, err := h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "fill", Data: "#user >> alice"}, "u1")
	require.NoError(t, err)
	assert.Equal(t, 2, second.Step.Order)
	assert.Equal(t, "1.0.2", second.TestCase.Version)

	// live mode: the first step navigates, so no bootstrap; the second is
	// synthesized from its action keyword
	script := h.readScript(t, "login-test.spec.ts")
	assert.NotContains(t, script, "await page.goto('/');")
	assert.Contains(t, script, "  // Step 1: navigate\n  await page.goto('/login');\n")
	assert.Contains(t, script, "  // Step 2: fill - Data: #user >> alice\n  await page.fill('#user', 'alice');\n")

	t.Run("Toggle", func(t *testing.T) {
		change, err := h.svc.ToggleStep(ctx, tc.ID, first.Step.ID, "u1")
		require.NoError(t, err)
		assert.True(t, change.Step.Disabled)
		assert.NotContains(t, change.TestCase.Script, "Step 2:")
		assert.Contains(t, change.TestCase.Script, "// Step 1: fill")

		_, err = h.svc.ToggleStep(ctx, tc.ID, first.Step.ID, "u1")
		require.NoError(t, err)
	})

	t.Run("Reorder", func(t *testing.T) {
		_, err := h.svc.ReorderSteps(ctx, tc.ID, []uuid.UUID{second.Step.ID}, "u1")
		assert.True(t, domain.IsValidationError(err))

		change, err := h.svc.ReorderSteps(ctx, tc.ID, []uuid.UUID{second.Step.ID, first.Step.ID}, "u1")
		require.NoError(t, err)
		assert.Less(t,
			strings.Index(change.TestCase.Script, "// Step 1: fill"),
			strings.Index(change.TestCase.Script, "// Step 2: navigate"),
		)
	})

	t.Run("UpdateStep", func(t *testing.T) {
		code := "await page.getByLabel('User').fill('bob');"
		change, err := h.svc.UpdateStep(ctx, tc.ID, second.Step.ID, UpdateStepInput{PlaywrightCode: &code}, "u1")
		require.NoError(t, err)
		assert.Contains(t, change.TestCase.Script, "  "+code+"\n")

		empty := " "
		_, err = h.svc.UpdateStep(ctx, tc.ID, second.Step.ID, UpdateStepInput{Action: &empty}, "u1")
		assert.True(t, domain.IsValidationError(err))
	})

	t.Run("StepOfAnotherTestCase", func(t *testing.T) {
		other, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Other"}, "u1")
		require.NoError(t, err)
		_, err = h.svc.ToggleStep(ctx, other.ID, first.Step.ID, "u1")
		assert.True(t, domain.IsNotFoundError(err))
	})

	t.Run("Delete", func(t *testing.T) {
		_, err := h.svc.DeleteStep(ctx, tc.ID, second.Step.ID, "u1")
		require.NoError(t, err)

		steps, err := h.svc.ListSteps(ctx, tc.ID)
		require.NoError(t, err)
		require.Len(t, steps, 1)
		assert.Equal(t, first.Step.ID, steps[0].ID)
		assert.Equal(t, 1, steps[0].Order)
	})

	// every mutation above fell inside the debounce window of the first
	// snapshot taken at creation
	assert.Len(t, h.versions(t, tc.ID), 1)
}

func TestCreateStep_Fixture(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Cart"}, "u1")
	require.NoError(t, err)

	f, err := h.svc.CreateFixture(ctx, h.project.ID, CreateFixtureInput{
		Name:    "Logged In",
		Content: []byte(`{"exportName":"loggedIn","path":"fixtures/auth"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.FixtureTypeSetup, f.Type)

	change, err := h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "log in", FixtureID: &f.ID}, "u1")
	require.NoError(t, err)
	assert.Contains(t, change.TestCase.Script, "import { test as loggedInTest } from '../fixtures/auth';")
	assert.Contains(t, change.TestCase.Script, "async ({ page, loggedIn }) => {")

	otherProject, err := h.svc.CreateProject(ctx, CreateProjectInput{Name: "Other"})
	require.NoError(t, err)
	foreign, err := h.svc.CreateFixture(ctx, otherProject.ID, CreateFixtureInput{Name: "Foreign"})
	require.NoError(t, err)

	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "x", FixtureID: &foreign.ID}, "u1")
	assert.True(t, domain.IsValidationError(err))

	missing := uuid.New()
	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "x", FixtureID: &missing}, "u1")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestNewService_ZeroConfigKeepsImports(t *testing.T) {
	store := memory.NewStore()
	repos := Repositories{
		Projects:  store.Projects(),
		TestCases: store.TestCases(),
		Steps:     store.Steps(),
		Fixtures:  store.Fixtures(),
		Versions:  store.Versions(),
	}
	recorder := versioning.NewRecorder(repos.TestCases, repos.Steps, repos.Versions, versioning.Config{}, nil, nil)
	svc := NewService(repos, recorder, storage.NewFSWriter(nil), Config{ProjectRoot: t.TempDir()}, nil, nil)
	ctx := context.Background()

	p, err := svc.CreateProject(ctx, CreateProjectInput{Name: "Shop"})
	require.NoError(t, err)
	tc, err := svc.CreateTestCase(ctx, p.ID, CreateTestCaseInput{Name: "Login Test"}, "u1")
	require.NoError(t, err)
	_, err = svc.CreateStep(ctx, tc.ID, StepInput{Action: "click", Selector: "#login"}, "u1")
	require.NoError(t, err)

	res, err := svc.Consolidate(ctx, tc.ID, "u1")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Script, "import { test, expect } from '@playwright/test';\n"), res.Script)

	f, err := svc.CreateFixture(ctx, p.ID, CreateFixtureInput{
		Name:    "Logged In",
		Content: []byte(`{"exportName":"loggedIn","path":"fixtures/auth"}`),
	})
	require.NoError(t, err)
	change, err := svc.CreateStep(ctx, tc.ID, StepInput{Action: "log in", FixtureID: &f.ID}, "u1")
	require.NoError(t, err)
	assert.Contains(t, change.TestCase.Script, "import { expect } from '@playwright/test';")
	assert.Contains(t, change.TestCase.Script, "import { test as loggedInTest } from '../fixtures/auth';")
	assert.Contains(t, change.TestCase.Script, "const test = loggedInTest;")
}

func TestMutation_FileWriteFailureIsLogged(t *testing.T) {
	h := newHarness(t, failingWriter{})
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Login"}, "u1")
	require.NoError(t, err)
	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "click", Selector: "#go"}, "u1")
	require.NoError(t, err)

	assert.GreaterOrEqual(t, h.logs.FilterMessage("failed to write script file").Len(), 2)
}

func TestConsolidate(t *testing.T) {
	gen := &fakeGenerator{code: map[string]string{"open home": "await page.goto('/home');"}}
	cache := &mapCache{scripts: map[string]string{}}
	events := &recordingPublisher{}
	h := newHarness(t, nil, WithGenerator(gen), WithScriptCache(cache), WithEventPublisher(events))
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Home"}, "u1")
	require.NoError(t, err)
	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "open home"}, "u1")
	require.NoError(t, err)

	res, err := h.svc.Consolidate(ctx, tc.ID, "u1")
	require.NoError(t, err)

	want := "import { test, expect } from '@playwright/test';\n" +
		"test('Home', async ({ page }) => {\n" +
		"  page.setDefaultTimeout(30000);\n" +
		"  await page.goto('/');\n" +
		"\n" +
		"  // Step 1: open home\n" +
		"  await page.goto('/home');\n" +
		"\n" +
		"});\n"
	assert.Equal(t, want, res.Script)
	assert.Equal(t, want, h.readScript(t, "home.spec.ts"))
	assert.Equal(t, filepath.Join(h.root, "tests", "home.spec.ts"), res.Path)
	assert.False(t, res.NoActiveSteps)
	assert.Equal(t, 1, res.ActiveSteps)
	assert.Equal(t, 1, res.Generated)
	assert.False(t, res.Cached)
	require.NotNil(t, res.Version, "consolidation forces a snapshot")

	steps, err := h.svc.ListSteps(ctx, tc.ID)
	require.NoError(t, err)
	assert.Equal(t, "await page.goto('/home');", steps[0].PlaywrightCode, "generated code is saved")

	again, err := h.svc.Consolidate(ctx, tc.ID, "u1")
	require.NoError(t, err)
	assert.True(t, again.Cached)
	assert.Equal(t, res.Script, again.Script)
	assert.Equal(t, res.TestCase.Version, again.TestCase.Version, "unchanged script keeps the version")
	assert.Equal(t, 1, gen.calls)
	assert.NotEmpty(t, events.events)
}

func TestConsolidate_GenerationFailureFallsBack(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("model overloaded")}
	h := newHarness(t, nil, WithGenerator(gen))
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Search"}, "u1")
	require.NoError(t, err)
	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "search for shoes"}, "u1")
	require.NoError(t, err)

	res, err := h.svc.Consolidate(ctx, tc.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Fallbacks)
	assert.Contains(t, res.Script, "  // Step 1: search for shoes\n  // TODO: Implement \"search for shoes\" step\n  // Code generation failed: model overloaded\n")
	assert.Equal(t, 1, h.logs.FilterMessage("code generation failed, using fallback").Len())

	steps, err := h.svc.ListSteps(ctx, tc.ID)
	require.NoError(t, err)
	assert.Empty(t, steps[0].PlaywrightCode, "fallback is not saved on the step")
}

func TestConsolidate_NoActiveSteps(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Empty"}, "u1")
	require.NoError(t, err)
	change, err := h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "click", Disabled: true}, "u1")
	require.NoError(t, err)
	require.True(t, change.Step.Disabled)

	res, err := h.svc.Consolidate(ctx, tc.ID, "u1")
	require.NoError(t, err)
	assert.True(t, res.NoActiveSteps)
	assert.Contains(t, res.Script, "No active steps defined for this test case yet")
	assert.NotContains(t, res.Script, "// Step")
}

func TestConsolidate_FileWriteFailureIsReturned(t *testing.T) {
	h := newHarness(t, failingWriter{})
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Login"}, "u1")
	require.NoError(t, err)

	_, err = h.svc.Consolidate(ctx, tc.ID, "u1")
	require.Error(t, err)
	appErr, ok := domain.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeScriptWrite, appErr.Code)

	_, err = h.svc.Consolidate(ctx, uuid.New(), "u1")
	assert.True(t, domain.IsNotFoundError(err))
}

func TestImportSteps(t *testing.T) {
	ctx := context.Background()

	t.Run("WithoutGenerator", func(t *testing.T) {
		h := newHarness(t, nil)
		tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Import"}, "u1")
		require.NoError(t, err)

		_, _, err = h.svc.ImportSteps(ctx, tc.ID, "await page.goto('/');", "u1")
		appErr, ok := domain.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, domain.ErrCodeGenerationFailed, appErr.Code)
	})

	t.Run("AppendsInOrder", func(t *testing.T) {
		gen := &fakeGenerator{analyzed: []domain.GeneratedStep{
			{Action: "open login", PlaywrightCode: "await page.goto('/login');"},
			{Action: "submit", PlaywrightCode: "await page.click('#submit');"},
		}}
		h := newHarness(t, nil, WithGenerator(gen))
		tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Import"}, "u1")
		require.NoError(t, err)
		_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "existing", PlaywrightCode: "// existing"}, "u1")
		require.NoError(t, err)

		created, updated, err := h.svc.ImportSteps(ctx, tc.ID, "...", "u1")
		require.NoError(t, err)
		require.Len(t, created, 2)
		assert.Equal(t, 2, created[0].Order)
		assert.Equal(t, 3, created[1].Order)
		assert.Contains(t, updated.Script, "// Step 3: submit")
	})
}

func TestRestoreVersion(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	tc, err := h.svc.CreateTestCase(ctx, h.project.ID, CreateTestCaseInput{Name: "Profile"}, "u1")
	require.NoError(t, err)
	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "open profile", PlaywrightCode: "await page.goto('/me');"}, "u1")
	require.NoError(t, err)

	snap, err := h.svc.RecordVersion(ctx, tc.ID, "", "u1")
	require.NoError(t, err)
	require.Len(t, snap.Steps, 1)

	_, err = h.svc.CreateStep(ctx, tc.ID, StepInput{Action: "edit name", PlaywrightCode: "await page.fill('#name', 'x');"}, "u1")
	require.NoError(t, err)

	restored, err := h.svc.RestoreVersion(ctx, tc.ID, snap.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, snap.Version, restored.Version)
	assert.Equal(t, snap.Script, restored.Script)
	assert.Equal(t, snap.Script, h.readScript(t, "profile.spec.ts"))

	steps, err := h.svc.ListSteps(ctx, tc.ID)
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "open profile", steps[0].Action)

	_, err = h.svc.RestoreVersion(ctx, uuid.New(), snap.ID, "u1")
	assert.True(t, domain.IsNotFoundError(err))
}
