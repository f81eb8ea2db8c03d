package consolidation

import (
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/observability"
)

const (
	// DefaultActionTimeoutMs is the page default timeout set by the bootstrap
	DefaultActionTimeoutMs = 30000
	// DefaultBootstrapPath is where every full script navigates first
	DefaultBootstrapPath = "/"

	playwrightModule  = "@playwright/test"
	noActiveStepsNote = "No active steps defined for this test case yet"
)

// NavigationMode controls the bootstrap navigation line
type NavigationMode int

const (
	// AlwaysBootstrap navigates to the root path unconditionally
	AlwaysBootstrap NavigationMode = iota
	// DetectExisting skips the bootstrap when a step already navigates
	DetectExisting
)

// SynthesisMode controls what is emitted for steps without code
type SynthesisMode int

const (
	// FallbackOnly emits the TODO placeholder
	FallbackOnly SynthesisMode = iota
	// BestEffort derives a code line from the action keyword first
	BestEffort
)

// Options configures one assembly
type Options struct {
	PreserveImports bool
	Navigation      NavigationMode
	Synthesis       SynthesisMode
	ActionTimeoutMs int
	BootstrapPath   string
}

// BulkOptions is used by full consolidation
func BulkOptions() Options {
	return Options{
		PreserveImports: true,
		Navigation:      AlwaysBootstrap,
		Synthesis:       FallbackOnly,
		ActionTimeoutMs: DefaultActionTimeoutMs,
		BootstrapPath:   DefaultBootstrapPath,
	}
}

// LiveOptions is used when regenerating after a single step mutation
func LiveOptions() Options {
	return Options{
		PreserveImports: true,
		Navigation:      DetectExisting,
		Synthesis:       BestEffort,
		ActionTimeoutMs: DefaultActionTimeoutMs,
		BootstrapPath:   DefaultBootstrapPath,
	}
}

// Mode names the options for logs and metrics
func (o Options) Mode() string {
	if o.Navigation == DetectExisting || o.Synthesis == BestEffort {
		return "live"
	}
	return "bulk"
}

func (o Options) withDefaults() Options {
	if o.ActionTimeoutMs <= 0 {
		o.ActionTimeoutMs = DefaultActionTimeoutMs
	}
	if o.BootstrapPath == "" {
		o.BootstrapPath = DefaultBootstrapPath
	}
	return o
}

// Result is the outcome of one assembly
type Result struct {
	Script string
	// NoActiveSteps distinguishes a legitimately empty test case from a
	// failure
	NoActiveSteps bool
	ActiveSteps   int
	// Fixtures lists the composed fixtures in import order
	Fixtures []FixtureMeta
}

// Assembler turns a test case and its steps into one script
type Assembler struct {
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAssembler creates an assembler; metrics may be nil
func NewAssembler(logger *zap.Logger, metrics *observability.Metrics) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{logger: logger, metrics: metrics}
}

// ActiveSteps drops disabled steps and orders the rest by Order, keeping
// creation order for ties. The input slice is not modified.
func ActiveSteps(steps []*domain.TestStep) []*domain.TestStep {
	active := make([]*domain.TestStep, 0, len(steps))
	for _, s := range steps {
		if s != nil && !s.Disabled {
			active = append(active, s)
		}
	}
	SortSteps(active)
	return active
}

// SortSteps sorts in place by Order, then CreatedAt
func SortSteps(steps []*domain.TestStep) {
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].Order != steps[j].Order {
			return steps[i].Order < steps[j].Order
		}
		return steps[i].CreatedAt.Before(steps[j].CreatedAt)
	})
}

// Assemble renders the script. It never fails: missing code, unresolvable
// fixtures and malformed tags all degrade to placeholders or defaults.
func (a *Assembler) Assemble(tc *domain.TestCase, steps []*domain.TestStep, fixtures FixtureMap, opts Options) *Result {
	opts = opts.withDefaults()
	log := a.logger.With(zap.String("test_case_id", tc.ID.String()), zap.String("mode", opts.Mode()))

	tagInput := ParseTagInput(tc.Tags)
	if tagInput.Degraded() {
		log.Warn("unexpected tag format, using fallback",
			zap.String("kind", tagInput.Kind.String()),
			zap.Error(tagInput.Err),
		)
	}
	tagBlock := tagMetadata(tagInput.Tags)

	active := ActiveSteps(steps)
	if len(active) == 0 {
		a.metrics.RecordAssembly(opts.Mode(), true)
		return &Result{Script: emptyScript(tc.Name, tagBlock), NoActiveSteps: true}
	}

	used := usedFixtures(active, fixtures)

	var b scriptBuilder
	if opts.PreserveImports {
		writeImports(&b, used)
	}

	params := []string{"page"}
	for _, f := range used {
		params = append(params, f.ExportName)
	}
	b.line(0, testDeclaration(tc.Name, tagBlock, params))

	b.line(1, "page.setDefaultTimeout("+strconv.Itoa(opts.ActionTimeoutMs)+");")
	if opts.Navigation == AlwaysBootstrap || !anyNavigation(active, fixtures) {
		b.line(1, "await page.goto("+quoteJS(opts.BootstrapPath)+");")
	}
	b.blank()

	for i, step := range active {
		a.writeStep(&b, i+1, step, fixtures, opts, log)
	}

	b.line(0, "});")

	a.metrics.RecordAssembly(opts.Mode(), false)
	return &Result{
		Script:      b.String(),
		ActiveSteps: len(active),
		Fixtures:    used,
	}
}

func (a *Assembler) writeStep(b *scriptBuilder, n int, step *domain.TestStep, fixtures FixtureMap, opts Options, log *zap.Logger) {
	if step.FixtureID != nil {
		if f, ok := fixtures[*step.FixtureID]; ok {
			b.comment(1, stepHeader(n, step.Action, "")+" (fixture: "+f.Name+")")
			b.comment(1, "Applied through the "+f.ExportName+" fixture parameter")
			b.blank()
			a.metrics.RecordStepEmitted(observability.StepFormFixture)
			return
		}
		log.Warn("step references an unresolved fixture, emitting it as a regular step",
			zap.String("step_id", step.ID.String()),
			zap.String("fixture_id", step.FixtureID.String()),
		)
	}

	b.comment(1, stepHeader(n, step.Action, step.Data))
	switch {
	case step.HasCode():
		b.block(1, step.PlaywrightCode)
		a.metrics.RecordStepEmitted(observability.StepFormCode)
	default:
		if opts.Synthesis == BestEffort {
			if code, ok := Synthesize(step); ok {
				b.line(1, code)
				a.metrics.RecordStepEmitted(observability.StepFormSynthesized)
				break
			}
		}
		b.line(1, FallbackCode(step.Action))
		a.metrics.RecordStepEmitted(observability.StepFormPlaceholder)
		a.metrics.RecordFallback("missing_code")
	}
	b.blank()
}

func stepHeader(n int, action, data string) string {
	h := "Step " + strconv.Itoa(n) + ": " + action
	if strings.TrimSpace(data) != "" {
		h += " - Data: " + data
	}
	return h
}

func testDeclaration(name, tagBlock string, params []string) string {
	args := quoteJS(name)
	if tagBlock != "" {
		args += ", " + tagBlock
	}
	return "test(" + args + ", async ({ " + strings.Join(params, ", ") + " }) => {"
}

func emptyScript(name, tagBlock string) string {
	var b scriptBuilder
	b.line(0, "import { test, expect } from "+quoteJS(playwrightModule)+";")
	b.line(0, testDeclaration(name, tagBlock, []string{"page"}))
	b.comment(1, noActiveStepsNote)
	b.line(0, "});")
	return b.String()
}

// usedFixtures returns the distinct resolvable fixtures in first-appearance
// order among the active steps
func usedFixtures(active []*domain.TestStep, fixtures FixtureMap) []FixtureMeta {
	var used []FixtureMeta
	for _, id := range ReferencedFixtureIDs(active) {
		if f, ok := fixtures[id]; ok {
			used = append(used, f)
		}
	}
	return used
}

func writeImports(b *scriptBuilder, used []FixtureMeta) {
	if len(used) == 0 {
		b.line(0, "import { test, expect } from "+quoteJS(playwrightModule)+";")
		return
	}
	b.line(0, "import { expect } from "+quoteJS(playwrightModule)+";")
	for _, f := range used {
		b.line(0, "import { test as "+f.TestBinding()+" } from "+quoteJS(f.ImportPath())+";")
	}
	composed := used[0].TestBinding()
	for _, f := range used[1:] {
		composed += ".extend(" + f.TestBinding() + ")"
	}
	b.line(0, "const test = "+composed+";")
}

// anyNavigation reports whether an emitted step already navigates.
// Fixture-backed steps emit no code and are ignored.
func anyNavigation(active []*domain.TestStep, fixtures FixtureMap) bool {
	for _, s := range active {
		if s.FixtureID != nil {
			if _, ok := fixtures[*s.FixtureID]; ok {
				continue
			}
		}
		if isNavigation(s) {
			return true
		}
	}
	return false
}
