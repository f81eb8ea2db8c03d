package bootstrap

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/config"
	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
)

func memoryConfig(t *testing.T) *config.Config {
	return &config.Config{
		Env:      config.EnvDevelopment,
		Database: config.DatabaseConfig{Driver: "memory"},
		Consolidation: config.ConsolidationConfig{
			ProjectRoot:     filepath.Join(t.TempDir(), "playwright"),
			ScriptExtension: "ts",
			ActionTimeoutMs: 30000,
			VersionDebounce: 30 * time.Second,
			PreserveImports: true,
		},
	}
}

func TestNew_InMemory(t *testing.T) {
	cfg := memoryConfig(t)

	app, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.DB)
	assert.Nil(t, app.Cache)
	require.NotNil(t, app.Service)
	require.NotNil(t, app.Metrics)

	ctx := context.Background()
	p, err := app.Service.CreateProject(ctx, teststeps.CreateProjectInput{Name: "Shop"})
	require.NoError(t, err)

	tc, err := app.Service.CreateTestCase(ctx, p.ID, teststeps.CreateTestCaseInput{Name: "Checkout Flow"}, "alice")
	require.NoError(t, err)

	_, err = app.Service.CreateStep(ctx, tc.ID, teststeps.StepInput{
		Action:         "Open home",
		PlaywrightCode: "await page.goto('/');",
	}, "alice")
	require.NoError(t, err)

	res, err := app.Service.Consolidate(ctx, tc.ID, "alice")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Consolidation.ProjectRoot, "tests", "checkout-flow.spec.ts"), res.Path)

	written, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, res.Script, string(written))
	assert.Contains(t, res.Script, "await page.goto('/');")
}

func TestNew_RedisUnavailable(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Redis = config.RedisConfig{
		Enabled:     true,
		Host:        "127.0.0.1",
		Port:        1,
		DialTimeout: 100 * time.Millisecond,
	}

	app, err := New(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.Cache)
}

func TestInitLogger(t *testing.T) {
	logger := InitLogger("production", "warn")
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
	assert.True(t, logger.Core().Enabled(zap.WarnLevel))

	logger = InitLogger("development", "nonsense")
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
