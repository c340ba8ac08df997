// Package testing holds shared test helpers.
package testing

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/hirewise/qa-backoffice/api/internal/db"
)

/* TestDB holds a test database connection */
type TestDB struct {
	DB      *sql.DB
	Queries *db.Queries
}

/* SetupTestDB connects to the test database and applies the schema. Tests
 * are skipped when no database is reachable. */
func SetupTestDB(t *testing.T) *TestDB {
	t.Helper()

	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		getEnv("TEST_DB_HOST", "localhost"),
		getEnv("TEST_DB_PORT", "5432"),
		getEnv("TEST_DB_USER", "qabackoffice"),
		getEnv("TEST_DB_PASSWORD", "qabackoffice"),
		getEnv("TEST_DB_NAME", "qabackoffice_test"),
	)

	testDB, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Skipf("Skipping test: cannot open test database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := testDB.PingContext(ctx); err != nil {
		testDB.Close()
		t.Skipf("Skipping test: cannot connect to test database: %v", err)
	}

	if err := db.EnsureSchema(ctx, testDB); err != nil {
		testDB.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}

	return &TestDB{DB: testDB, Queries: db.NewQueries(testDB)}
}

/* CleanupTestDB truncates every table and closes the connection */
func (tdb *TestDB) CleanupTestDB(t *testing.T) {
	t.Helper()

	tables := []string{
		"score_snapshots", "llm_evaluations", "logic_evaluations",
		"run_items", "runs", "test_set_items", "test_sets",
		"queries", "query_groups", "validation_settings",
	}
	for _, table := range tables {
		if _, err := tdb.DB.Exec("TRUNCATE TABLE " + table + " CASCADE"); err != nil {
			t.Logf("Failed to truncate %s: %v", table, err)
		}
	}

	tdb.DB.Close()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
