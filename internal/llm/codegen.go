package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/observability"
	"github.com/thinhdnn/ai-test-management/internal/resilience"
)

// ServiceName labels code generation failures in errors and logs
const ServiceName = "code-generation"

// Completer is the JSON completion surface the generator needs
type Completer interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string, result any) (Usage, error)
}

// CodeGenerator turns step descriptions into Playwright code and existing
// Playwright code into step descriptions.
type CodeGenerator struct {
	client  Completer
	breaker *resilience.CircuitBreaker
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewCodeGenerator creates a generator. breaker may be nil.
func NewCodeGenerator(client Completer, breaker *resilience.CircuitBreaker, logger *zap.Logger, metrics *observability.Metrics) *CodeGenerator {
	return &CodeGenerator{
		client:  client,
		breaker: breaker,
		logger:  logger.Named("codegen"),
		metrics: metrics,
	}
}

const generateSystemPrompt = `You are a senior QA automation engineer writing Playwright tests in TypeScript.
Convert ONE natural-language test step into Playwright code that runs inside
an async test body where "page" and "expect" are in scope.

Rules:
- Output only statements for the body, no imports and no test() wrapper.
- Prefer getByRole, getByLabel and getByText locators over CSS selectors.
- Use await on every Playwright call.
- When the step states an expected result, add an expect() assertion.

Respond with a JSON object:
{"playwrightCode": "...", "action": "...", "expected": "...", "selector": "...", "data": "..."}`

const analyzeSystemPrompt = `You are a senior QA automation engineer.
Split the given Playwright test code into an ordered list of test steps.
Each step has a short natural-language action, the data it uses, the expected
result if the code asserts one, the selector it targets and the exact
Playwright statements that implement it.

Respond with a JSON array:
[{"action": "...", "data": "...", "expected": "...", "selector": "...", "playwrightCode": "..."}]`

// GenerateCodeFromStep asks the model for the code of a single step
func (g *CodeGenerator) GenerateCodeFromStep(ctx context.Context, action, data, expected string) (*domain.GeneratedStep, error) {
	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Action: %s\n", action)
	if data != "" {
		fmt.Fprintf(&prompt, "Data: %s\n", data)
	}
	if expected != "" {
		fmt.Fprintf(&prompt, "Expected result: %s\n", expected)
	}

	var out domain.GeneratedStep
	err := g.call(ctx, "generate", generateSystemPrompt, prompt.String(), &out)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out.PlaywrightCode) == "" {
		return nil, domain.ErrExternalAPI(ServiceName, fmt.Errorf("model returned no code for %q", action))
	}
	if out.Action == "" {
		out.Action = action
	}
	return &out, nil
}

// AnalyzeCode splits Playwright code into steps, in source order
func (g *CodeGenerator) AnalyzeCode(ctx context.Context, code string) ([]domain.GeneratedStep, error) {
	if strings.TrimSpace(code) == "" {
		return nil, domain.ValidationError("code", "is required")
	}

	var raw json.RawMessage
	if err := g.call(ctx, "analyze", analyzeSystemPrompt, "```ts\n"+code+"\n```", &raw); err != nil {
		return nil, err
	}

	steps, err := decodeSteps(raw)
	if err != nil {
		return nil, domain.ErrExternalAPI(ServiceName, err)
	}
	return steps, nil
}

// decodeSteps accepts either a bare array or an object with a "steps" field
func decodeSteps(raw json.RawMessage) ([]domain.GeneratedStep, error) {
	var steps []domain.GeneratedStep
	if err := json.Unmarshal(raw, &steps); err != nil {
		var wrapped struct {
			Steps []domain.GeneratedStep `json:"steps"`
		}
		if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
			return nil, fmt.Errorf("decoding steps: %w", err)
		}
		steps = wrapped.Steps
	}

	out := steps[:0]
	for _, s := range steps {
		s.Action = strings.TrimSpace(s.Action)
		if s.Action == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

func (g *CodeGenerator) call(ctx context.Context, op, system, prompt string, result any) error {
	start := time.Now()
	var usage Usage

	run := func(ctx context.Context) error {
		var err error
		usage, err = g.client.CompleteJSON(ctx, system, prompt, result)
		return err
	}

	var err error
	if g.breaker != nil {
		err = g.breaker.Execute(ctx, run)
	} else {
		err = run(ctx)
	}

	g.metrics.RecordCodeGen(op, err, time.Since(start), usage.InputTokens, usage.OutputTokens)
	if err != nil {
		g.logger.Debug("code generation call failed",
			zap.String("operation", op),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return domain.ErrExternalAPI(ServiceName, err)
	}
	return nil
}
