package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"

	"github.com/thinhdnn/ai-test-management/internal/bootstrap"
	"github.com/thinhdnn/ai-test-management/internal/config"
	"github.com/thinhdnn/ai-test-management/internal/domain"
	"github.com/thinhdnn/ai-test-management/internal/services/teststeps"
)

var (
	green  = color.New(color.FgGreen, color.Bold)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow, color.Bold)
	cyan   = color.New(color.FgCyan, color.Bold)
	dim    = color.New(color.Faint)
)

type summary struct {
	consolidated int
	empty        int
	generated    int
	fallbacks    int
	cached       int
	failed       []string
}

func main() {
	godotenv.Load()

	projectFlag := flag.String("project", "", "Project ID whose test cases are consolidated")
	testCaseFlag := flag.String("test-case", "", "Consolidate a single test case instead of the whole project")
	user := flag.String("user", "cli", "User recorded on the created versions")
	verbose := flag.Bool("verbose", false, "Verbose output")
	flag.Parse()

	if *projectFlag == "" && *testCaseFlag == "" {
		red.Println("Error: -project or -test-case is required")
		fmt.Println("Usage: consolidate -project <id> [-test-case <id>]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		red.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Database.InMemory() {
		red.Println("DB_DRIVER=memory has nothing to consolidate; point the command at PostgreSQL")
		os.Exit(1)
	}

	var logger *zap.Logger
	if *verbose {
		logger = bootstrap.InitLogger(string(cfg.Env), "debug")
	} else {
		logger = zap.NewNop()
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		red.Printf("Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	ids, err := targets(ctx, app.Service, *projectFlag, *testCaseFlag)
	if err != nil {
		red.Printf("%v\n", err)
		os.Exit(1)
	}
	if len(ids) == 0 {
		yellow.Println("No test cases found")
		return
	}

	cyan.Printf("Consolidating %d test case(s) into %s\n", len(ids), cfg.Consolidation.ProjectRoot)
	start := time.Now()
	sum := run(ctx, app.Service, ids, *user)
	printSummary(sum, time.Since(start))

	if len(sum.failed) > 0 {
		os.Exit(1)
	}
}

func targets(ctx context.Context, svc *teststeps.Service, projectID, testCaseID string) ([]*domain.TestCase, error) {
	if testCaseID != "" {
		id, err := uuid.Parse(testCaseID)
		if err != nil {
			return nil, fmt.Errorf("invalid test case ID: %w", err)
		}
		tc, err := svc.GetTestCase(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("loading test case: %w", err)
		}
		return []*domain.TestCase{tc}, nil
	}

	id, err := uuid.Parse(projectID)
	if err != nil {
		return nil, fmt.Errorf("invalid project ID: %w", err)
	}
	tcs, err := svc.ListTestCases(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("listing test cases: %w", err)
	}
	return tcs, nil
}

func run(ctx context.Context, svc *teststeps.Service, tcs []*domain.TestCase, user string) summary {
	bar := progressbar.NewOptions(len(tcs),
		progressbar.OptionSetDescription("   Consolidating..."),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var sum summary
	for _, tc := range tcs {
		if ctx.Err() != nil {
			break
		}
		res, err := svc.Consolidate(ctx, tc.ID, user)
		bar.Add(1)
		if err != nil {
			sum.failed = append(sum.failed, fmt.Sprintf("%s: %v", tc.Name, err))
			continue
		}
		sum.consolidated++
		sum.generated += res.Generated
		sum.fallbacks += res.Fallbacks
		if res.NoActiveSteps {
			sum.empty++
		}
		if res.Cached {
			sum.cached++
		}
	}
	bar.Finish()
	fmt.Println()
	return sum
}

func printSummary(sum summary, elapsed time.Duration) {
	green.Printf("✓ %d consolidated", sum.consolidated)
	dim.Printf(" in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("├── Without active steps: %d\n", sum.empty)
	fmt.Printf("├── Served from cache:    %d\n", sum.cached)
	fmt.Printf("├── Generated steps:      %d\n", sum.generated)
	fmt.Printf("└── Fallback steps:       %d\n", sum.fallbacks)

	if sum.fallbacks > 0 {
		yellow.Println("Some steps could not be generated; review the placeholders before running the suite")
	}
	for _, f := range sum.failed {
		red.Printf("✗ %s\n", f)
	}
}
