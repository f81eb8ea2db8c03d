// Package teststeps owns every change to a test case and its steps and keeps
// the materialized script and version history in step with them.
package teststeps

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/consolidation"
	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/observability"
	redisrepo "github.com/thinhdnn/ai-test-management/internal/repository/redis"
	"github.com/thinhdnn/ai-test-management/internal/storage"
	"github.com/thinhdnn/ai-test-management/internal/versioning"
)

// CodeGenerator is the AI collaborator
type CodeGenerator interface {
	GenerateCodeFromStep(ctx context.Context, action, data, expected string) (*domain.GeneratedStep, error)
	AnalyzeCode(ctx context.Context, code string) ([]domain.GeneratedStep, error)
}

// ScriptCache stores assembled scripts by input fingerprint
type ScriptCache interface {
	GetScript(ctx context.Context, fingerprint string) (string, bool, error)
	SetScript(ctx context.Context, fingerprint, script string) error
}

// EventPublisher announces regenerated scripts
type EventPublisher interface {
	PublishScriptEvent(ctx context.Context, ev redisrepo.ScriptEvent) error
}

// Repositories groups the persistence collaborators
type Repositories struct {
	Projects  domain.ProjectRepository
	TestCases domain.TestCaseRepository
	Steps     domain.TestStepRepository
	Fixtures  domain.FixtureRepository
	Versions  domain.VersionRepository
}

// Config controls where scripts go and how they are assembled
type Config struct {
	ProjectRoot     string
	ScriptExtension string
	ActionTimeoutMs int
	// OmitImports drops the import and fixture composition section; the
	// zero value keeps it
	OmitImports bool
	// GenerateMissing asks the generator for code of steps that have none
	// during consolidation
	GenerateMissing bool
}

// Service is the single entry point for test case and step mutations
type Service struct {
	repos     Repositories
	assembler *consolidation.Assembler
	recorder  *versioning.Recorder
	writer    storage.ScriptWriter
	generator CodeGenerator
	cache     ScriptCache
	events    EventPublisher
	cfg       Config
	logger    *zap.Logger
	metrics   *observability.Metrics
}

// Option configures optional collaborators
type Option func(*Service)

// WithGenerator enables AI code generation and code import
func WithGenerator(g CodeGenerator) Option {
	return func(s *Service) { s.generator = g }
}

// WithScriptCache enables the fingerprint cache for consolidation
func WithScriptCache(c ScriptCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithEventPublisher enables script change notifications
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// NewService creates the service
func NewService(
	repos Repositories,
	recorder *versioning.Recorder,
	writer storage.ScriptWriter,
	cfg Config,
	logger *zap.Logger,
	metrics *observability.Metrics,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ScriptExtension == "" {
		cfg.ScriptExtension = consolidation.DefaultScriptExtension
	}
	if cfg.ActionTimeoutMs <= 0 {
		cfg.ActionTimeoutMs = consolidation.DefaultActionTimeoutMs
	}
	s := &Service{
		repos:     repos,
		assembler: consolidation.NewAssembler(logger.Named("assembler"), metrics),
		recorder:  recorder,
		writer:    writer,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScriptPath is where the script of tc is written
func (s *Service) ScriptPath(tc *domain.TestCase) string {
	return consolidation.ScriptPath(s.cfg.ProjectRoot, tc.Name, s.cfg.ScriptExtension)
}

func (s *Service) options(base consolidation.Options) consolidation.Options {
	base.PreserveImports = !s.cfg.OmitImports
	base.ActionTimeoutMs = s.cfg.ActionTimeoutMs
	return base
}

// errGenerationDisabled is returned by operations that need the generator
func errGenerationDisabled() error {
	return domain.NewError(domain.ErrCodeGenerationFailed, "Code generation is not configured", http.StatusServiceUnavailable)
}
