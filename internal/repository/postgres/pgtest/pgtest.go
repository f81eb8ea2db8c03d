// Package pgtest runs integration tests against a disposable PostgreSQL
// container with the schema from migrations/ applied.
package pgtest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// Instance holds the test database connection and container
type Instance struct {
	Container testcontainers.Container
	DB        *sqlx.DB
	ConnStr   string

	tables []string
}

// Start creates a PostgreSQL container, applies the migrations and registers
// its teardown on t. Truncate clears the given tables in order.
func Start(t testing.TB, tables ...string) *Instance {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testmgmt_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start postgres container: %v", err)
	}
	t.Cleanup(func() { container.Terminate(ctx) })

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("Failed to get connection string: %v", err)
	}

	db, err := sqlx.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("Failed to connect to database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for i := 0; i < 30; i++ {
		if err := db.PingContext(ctx); err == nil {
			break
		}
		time.Sleep(time.Second)
	}

	inst := &Instance{
		Container: container,
		DB:        db,
		ConnStr:   connStr,
		tables:    tables,
	}

	dir, err := MigrationsDir()
	if err != nil {
		t.Fatalf("Failed to locate migrations: %v", err)
	}
	if err := inst.RunMigrations(dir); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return inst
}

// RunMigrations applies every .sql file in dir in lexical order
func (i *Instance) RunMigrations(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	if len(files) == 0 {
		return fmt.Errorf("no migrations in %s", dir)
	}
	sort.Strings(files)

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", file, err)
		}
		if _, err := i.DB.Exec(string(content)); err != nil {
			return fmt.Errorf("applying %s: %w", filepath.Base(file), err)
		}
	}
	return nil
}

// Truncate clears the tables given to Start so subtests start empty
func (i *Instance) Truncate(t testing.TB) {
	t.Helper()
	for _, table := range i.tables {
		if _, err := i.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}
}

// MigrationsDir walks up from the working directory to the module root and
// returns its migrations directory.
func MigrationsDir() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			migrations := filepath.Join(dir, "migrations")
			if _, err := os.Stat(migrations); err != nil {
				return "", fmt.Errorf("module root %s has no migrations directory", dir)
			}
			return migrations, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("go.mod not found above working directory")
		}
		dir = parent
	}
}
