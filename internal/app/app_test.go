package app

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vvka-141/pgdbapi/internal/config"
	"github.com/vvka-141/pgdbapi/internal/fallback"
	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/models"
	"github.com/vvka-141/pgdbapi/internal/testing/fakedb"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

func schemaScript() *fakedb.Script {
	script := fakedb.NewScript()
	var rows [][]any
	for i, c := range []string{"id", "uuid", "project_id", "host", "vm_state", "deleted"} {
		rows = append(rows, []any{"public", models.TableInstances, c, "text", true, int32(i + 1)})
	}
	script.On("information_schema.columns").Return(rows...)
	return script
}

func testOptions(cfg *config.Config, connector dbapi.Connector, logger *logging.ZapLogger, extra ...fx.Option) fx.Option {
	return fx.Options(
		fx.NopLogger,
		fx.Supply(cfg, logger),
		fx.Provide(func() dbapi.Connector { return connector }),
		Module,
		fx.Options(extra...),
	)
}

func TestModule_StartsAndStopsDataAPI(t *testing.T) {
	connector := fakedb.NewConnector(schemaScript())
	cfg := config.Defaults()
	backend := fallback.NewTable()
	backend.Register("instance_get_all_by_host", func(_ context.Context, _ *dbapi.CallerContext, args ...any) (any, error) {
		return args, nil
	})

	var svc *Service
	app := fxtest.New(t,
		testOptions(&cfg, connector, logging.NewFromZap(zap.NewNop()),
			fx.Provide(func() dbapi.Backend { return backend }),
			fx.Populate(&svc),
		),
	)
	assert.Nil(t, svc.DataAPI(), "nothing runs before start")

	app.RequireStart()
	api := svc.DataAPI()
	require.NotNil(t, api)
	assert.Equal(t, uint64(1), api.Schema().Version())

	got, err := api.Call(context.Background(), "instance_get_all_by_host", dbapi.NewCallerContext("alice", "p1"), "compute-1")
	require.NoError(t, err)
	assert.Equal(t, []any{"compute-1"}, got)

	app.RequireStop()
	for _, conn := range connector.Conns() {
		assert.True(t, conn.IsClosed(), "pool connections are closed on stop")
	}
	_, err = api.Call(context.Background(), "instance_get_by_uuid", dbapi.NewCallerContext("alice", "p1"), "8f2c3b9e-1f7a-4c57-9a61-2d7d3c1e5b10")
	assert.ErrorIs(t, err, dbapi.ErrPoolClosed)
}

func TestModule_FailedSchemaLoadAbortsStart(t *testing.T) {
	script := fakedb.NewScript()
	script.On("information_schema.columns").Fail(&pgconn.PgError{Code: "42501", Message: "permission denied"})
	connector := fakedb.NewConnector(script)
	cfg := config.Defaults()

	app := fx.New(testOptions(&cfg, connector, logging.NewFromZap(zap.NewNop())))
	err := app.Start(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "initial schema load")

	for _, conn := range connector.Conns() {
		assert.True(t, conn.IsClosed())
	}
}

func TestModule_WithoutBackendRejectsUnknownNames(t *testing.T) {
	cfg := config.Defaults()
	var svc *Service
	app := fxtest.New(t,
		testOptions(&cfg, fakedb.NewConnector(schemaScript()), logging.NewFromZap(zap.NewNop()), fx.Populate(&svc)),
	)
	app.RequireStart()
	defer app.RequireStop()

	_, err := svc.DataAPI().Resolve("instance_get_all_by_host")
	assert.ErrorIs(t, err, dbapi.ErrNotImplemented)
}

func TestRegisterMetricsServer_ServesRegistry(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	logger := logging.NewFromZap(zap.New(core))

	cfg := config.Defaults()
	cfg.Metrics.Addr = "127.0.0.1:0"

	app := fxtest.New(t, testOptions(&cfg, fakedb.NewConnector(schemaScript()), logger))
	app.RequireStart()
	defer app.RequireStop()

	entries := logs.FilterMessage("Serving metrics").All()
	require.Len(t, entries, 1)
	addr, ok := entries[0].ContextMap()["address"].(string)
	require.True(t, ok)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "pgdbapi_schema_version 1")
	assert.Contains(t, string(body), "go_goroutines")
}

func TestOptions_GraphIsComplete(t *testing.T) {
	cfg := config.Defaults()
	err := fx.ValidateApp(Options(Params{
		Config:     &cfg,
		Connection: &dbapi.ConnectionConfig{Host: "localhost", Port: 5432, Database: "nova", AuthMethod: dbapi.AuthMethodStandard},
		Logger:     logging.NewFromZap(zap.NewNop()),
	}))
	assert.NoError(t, err)
}
