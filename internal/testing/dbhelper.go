// Package testing provides helpers for tests that need a real PostgreSQL
// server.
package testing

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vvka-141/pgdbapi/internal/auth"
	"github.com/vvka-141/pgdbapi/internal/db"
	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/operation"
	"github.com/vvka-141/pgdbapi/internal/pool"
	"github.com/vvka-141/pgdbapi/internal/services"
	"github.com/vvka-141/pgdbapi/internal/testinfra"
)

// TestConnEnv overrides the auto-started container.
const TestConnEnv = "PGDBAPI_TEST_CONN"

// ComputeSchema creates the tables the data API operates on.
const ComputeSchema = `
CREATE TABLE IF NOT EXISTS instances (
    id          serial PRIMARY KEY,
    uuid        varchar(36) NOT NULL,
    project_id  varchar(255),
    user_id     varchar(255),
    host        varchar(255),
    vm_state    varchar(255),
    task_state  varchar(255),
    memory_mb   integer,
    created_at  timestamp DEFAULT now(),
    updated_at  timestamp,
    deleted_at  timestamp,
    deleted     integer NOT NULL DEFAULT 0
);
CREATE UNIQUE INDEX IF NOT EXISTS uniq_instances_uuid ON instances (uuid, deleted);

CREATE TABLE IF NOT EXISTS instance_info_caches (
    id            serial PRIMARY KEY,
    instance_uuid varchar(36) NOT NULL,
    network_info  text,
    created_at    timestamp,
    updated_at    timestamp,
    deleted_at    timestamp,
    deleted       integer NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS instance_metadata (
    id            serial PRIMARY KEY,
    instance_uuid varchar(36) NOT NULL,
    key           varchar(255),
    value         varchar(255),
    deleted       integer NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS instance_system_metadata (
    id            serial PRIMARY KEY,
    instance_uuid varchar(36) NOT NULL,
    key           varchar(255),
    value         varchar(255),
    deleted       integer NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS bw_usage_cache (
    id             serial PRIMARY KEY,
    uuid           varchar(36) NOT NULL,
    mac            varchar(255) NOT NULL,
    start_period   timestamp NOT NULL,
    bw_in          bigint,
    bw_out         bigint,
    last_ctr_in    bigint,
    last_ctr_out   bigint,
    last_refreshed timestamp,
    created_at     timestamp,
    updated_at     timestamp,
    deleted_at     timestamp,
    deleted        integer NOT NULL DEFAULT 0
);
`

var (
	testContainerOnce sync.Once
	testContainerConn string
	testContainerErr  error
)

func getOrStartTestContainer() (string, error) {
	testContainerOnce.Do(func() {
		container, err := testinfra.StartPostgres(context.Background())
		if err != nil {
			testContainerErr = err
			return
		}
		testContainerConn = container.ConnString
	})
	return testContainerConn, testContainerErr
}

// GetTestConnectionString returns the test database connection string.
// Priority: PGDBAPI_TEST_CONN > auto-started testcontainer > skip test.
func GetTestConnectionString(t *testing.T) string {
	t.Helper()

	if connString := os.Getenv(TestConnEnv); connString != "" {
		return connString
	}

	connString, err := getOrStartTestContainer()
	if err != nil {
		t.Skipf("%s not set and Docker unavailable: %v", TestConnEnv, err)
	}
	return connString
}

// SkipIfShort skips the test if running in short mode (-short flag).
func SkipIfShort(t *testing.T) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}
}

// RequireDatabase combines SkipIfShort and GetTestConnectionString.
func RequireDatabase(t *testing.T) string {
	t.Helper()

	SkipIfShort(t)
	return GetTestConnectionString(t)
}

// CreateTestDB creates an empty database holding ComputeSchema and returns
// a connection string for it. The database is dropped when the test ends.
func CreateTestDB(t *testing.T, connString string) string {
	t.Helper()
	ctx := context.Background()

	dbName := fmt.Sprintf("pgdbapi_test_%d", time.Now().UnixNano())
	admin, err := pgx.Connect(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect for test DB creation: %v", err)
	}
	defer admin.Close(ctx)

	if _, err := admin.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{dbName}.Sanitize()); err != nil {
		t.Fatalf("Failed to create test database %s: %v", dbName, err)
	}
	t.Cleanup(func() { dropTestDB(t, connString, dbName) })

	cfg, err := db.ParseConnectionString(connString)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	cfg.Database = dbName
	target := db.BuildConnectionString(cfg)

	conn, err := pgx.Connect(ctx, target)
	if err != nil {
		t.Fatalf("Failed to connect to %s: %v", dbName, err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, ComputeSchema); err != nil {
		t.Fatalf("Failed to create compute schema: %v", err)
	}
	return target
}

func dropTestDB(t *testing.T, connString, dbName string) {
	ctx := context.Background()
	admin, err := pgx.Connect(ctx, connString)
	if err != nil {
		t.Logf("Warning: Failed to connect for cleanup: %v", err)
		return
	}
	defer admin.Close(ctx)

	if _, err := admin.Exec(ctx, "DROP DATABASE IF EXISTS "+pgx.Identifier{dbName}.Sanitize()+" WITH (FORCE)"); err != nil {
		t.Logf("Warning: Failed to drop database %s: %v", dbName, err)
	}
}

// Exec runs statements on the database at connString, failing the test on error.
func Exec(t *testing.T, connString string, statements ...string) {
	t.Helper()
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, strings.Join(statements, ";\n")); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
}

// NewTestDataAPI starts a data API against connString with a short retry
// delay. It is closed when the test ends.
func NewTestDataAPI(t *testing.T, connString string) *services.DataAPI {
	t.Helper()

	cfg, err := db.ParseConnectionString(connString)
	if err != nil {
		t.Fatalf("Failed to parse connection string: %v", err)
	}
	logger := logging.NewNullLogger()

	p, err := pool.New(db.NewStandardConnector(cfg, logger), pool.Config{MaxSize: 4, AcquireTimeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("Failed to create pool: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	api, err := services.NewDataAPI(ctx, services.Deps{
		Pool:            p,
		Wrapper:         operation.NewWrapper(auth.NewPolicy(), operation.WithLogger(logger), operation.WithRetryDelay(50*time.Millisecond)),
		Logger:          logger,
		RefreshInterval: time.Minute,
	})
	if err != nil {
		p.Close()
		t.Fatalf("Failed to start data API: %v", err)
	}
	t.Cleanup(api.Close)
	return api
}
