// Package bootstrap wires configuration into a ready test step service.
// Both the API server and the consolidate command start from here.
package bootstrap

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/thinhdnn/ai-test-management/internal/config"
	"github.com/thinhdnn/ai-test-management/internal/llm"
	"github.com/thinhdnn/ai-test-management/internal/observability"
	"github.com/thinhdnn/ai-test-management/internal/repository/memory"
	"github.com/thinhdnn/ai-test-management/internal/repository/postgres"
	rediscache "github.com/thinhdnn/ai-test-management/internal/repository/redis"
	"github.com/thinhdnn/ai-test-management/internal/resilience"
	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
	"github.com/thinhdnn/ai-test-management/internal/storage"
	"github.com/thinhdnn/ai-test-management/internal/versioning"
)

// App holds the wired service and the optional backends behind it
type App struct {
	Service *teststeps.Service
	Metrics *observability.Metrics
	// DB is nil when the in-memory store is selected
	DB *postgres.DB
	// Cache is nil when Redis is disabled or unreachable
	Cache   *rediscache.Cache
	closers []func() error
}

// Close releases every backend connection
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// InitLogger creates a configured zap logger
func InitLogger(env, level string) *zap.Logger {
	zapLevel, err := zapcore.ParseLevel(level)
	if err != nil {
		zapLevel = zapcore.InfoLevel
	}

	var cfg zap.Config
	if env == string(config.EnvProduction) {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to basic logger
		logger, _ = zap.NewProduction()
	}
	return logger
}

// New connects the configured backends and builds the service. Redis,
// object storage and Claude are optional: a failure to reach them is logged
// and the feature is disabled. The database is required.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{Metrics: observability.NewMetrics("testmgmt")}

	repos, err := app.repositories(cfg, logger)
	if err != nil {
		app.Close()
		return nil, err
	}

	var opts []teststeps.Option

	if cfg.Redis.Enabled {
		cache, err := rediscache.New(cfg.Redis, cfg.Consolidation.ScriptCacheTTL)
		if err != nil {
			logger.Warn("Failed to connect to Redis, caching disabled", zap.Error(err))
		} else {
			app.Cache = cache
			app.closers = append(app.closers, cache.Close)
			opts = append(opts, teststeps.WithScriptCache(cache), teststeps.WithEventPublisher(cache))
			logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))
		}
	}

	if err := os.MkdirAll(cfg.Consolidation.ProjectRoot, 0o755); err != nil {
		app.Close()
		return nil, fmt.Errorf("creating project root: %w", err)
	}
	var writer storage.ScriptWriter = storage.NewFSWriter(app.Metrics)
	if cfg.Storage.Enabled {
		archive, err := storage.NewScriptArchive(storage.MinIOConfig{
			Endpoint:        cfg.Storage.Endpoint,
			AccessKeyID:     cfg.Storage.AccessKey,
			SecretAccessKey: cfg.Storage.SecretKey,
			UseSSL:          cfg.Storage.UseSSL,
			BucketName:      cfg.Storage.Bucket,
		})
		if err == nil {
			err = archive.EnsureBucket(ctx)
		}
		if err != nil {
			logger.Warn("Failed to initialize script archive, archiving disabled", zap.Error(err))
		} else {
			writer = storage.NewMirroredWriter(writer, archive, cfg.Consolidation.ProjectRoot, "shared", logger.Named("archive"), app.Metrics)
			logger.Info("Script archive enabled", zap.String("bucket", cfg.Storage.Bucket))
		}
	}

	if cfg.Claude.Enabled() {
		gen, err := codeGenerator(cfg.Claude, logger, app.Metrics)
		if err != nil {
			logger.Warn("Failed to initialize Claude client, code generation disabled", zap.Error(err))
		} else {
			opts = append(opts, teststeps.WithGenerator(gen))
			logger.Info("Code generation enabled", zap.String("model", cfg.Claude.Model))
		}
	} else {
		logger.Info("ANTHROPIC_API_KEY not set, steps without code use fallback placeholders")
	}

	recorder := versioning.NewRecorder(repos.TestCases, repos.Steps, repos.Versions,
		versioning.Config{Window: cfg.Consolidation.VersionDebounce},
		logger.Named("versions"), app.Metrics,
	)

	app.Service = teststeps.NewService(repos, recorder, writer, teststeps.Config{
		ProjectRoot:     cfg.Consolidation.ProjectRoot,
		ScriptExtension: cfg.Consolidation.ScriptExtension,
		ActionTimeoutMs: cfg.Consolidation.ActionTimeoutMs,
		OmitImports:     !cfg.Consolidation.PreserveImports,
		GenerateMissing: cfg.Consolidation.GenerateMissing,
	}, logger.Named("teststeps"), app.Metrics, opts...)

	return app, nil
}

func (a *App) repositories(cfg *config.Config, logger *zap.Logger) (teststeps.Repositories, error) {
	if cfg.Database.InMemory() {
		logger.Warn("Using in-memory store, data is lost on exit")
		store := memory.NewStore()
		return teststeps.Repositories{
			Projects:  store.Projects(),
			TestCases: store.TestCases(),
			Steps:     store.Steps(),
			Fixtures:  store.Fixtures(),
			Versions:  store.Versions(),
		}, nil
	}

	db, err := postgres.New(cfg.Database)
	if err != nil {
		return teststeps.Repositories{}, fmt.Errorf("connecting to database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.Database.Host),
		zap.Int("port", cfg.Database.Port),
	)

	pg := postgres.NewRepositories(db)
	return teststeps.Repositories{
		Projects:  pg.Projects,
		TestCases: pg.TestCases,
		Steps:     pg.Steps,
		Fixtures:  pg.Fixtures,
		Versions:  pg.Versions,
	}, nil
}

func codeGenerator(cfg config.ClaudeConfig, logger *zap.Logger, metrics *observability.Metrics) (*llm.CodeGenerator, error) {
	client, err := llm.NewClaudeClient(llm.Config{
		APIKey:       cfg.APIKey,
		URL:          cfg.BaseURL,
		Model:        cfg.Model,
		MaxTokens:    cfg.MaxTokens,
		Timeout:      cfg.Timeout,
		RateLimitRPM: cfg.RateLimitRPM,
	})
	if err != nil {
		return nil, err
	}

	breaker := resilience.New(resilience.Config{
		Name:         "claude",
		MaxFailures:  cfg.MaxFailures,
		ResetTimeout: cfg.ResetTimeout,
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return llm.NewCodeGenerator(client, breaker, logger.Named("codegen"), metrics), nil
}
