package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/vvka-141/pgdbapi/internal/app"
)

var serveFlags struct {
	metricsAddr string
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the data API with the schema monitor until interrupted",
	Long: `Starts the connection pool, loads the schema and keeps it fresh in the
background, and exposes Prometheus metrics until SIGINT or SIGTERM.

Examples:
  pgdbapi serve --metrics-addr :9090
  PGHOST=db PGDATABASE=nova pgdbapi serve --log-format json`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.metricsAddr, "metrics-addr", "", "Listen address for /metrics (default from pgdbapi.yaml; empty disables)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	if cmd.Flags().Changed("metrics-addr") {
		rt.config.Metrics.Addr = serveFlags.metricsAddr
	}

	connector, err := connectorFactory(rt.connection, rt.logger)
	if err != nil {
		return err
	}
	defer closeConnector(connector)

	var svc *app.Service
	fxApp := fx.New(
		app.Options(app.Params{
			Config:     rt.config,
			Connection: rt.connection,
			Logger:     rt.logger,
			Connector:  connector,
		}),
		fx.Populate(&svc),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, fxApp, func() {
		rt.logger.Info("Data API ready",
			"operations", len(svc.DataAPI().Implemented()),
			"schema_version", svc.DataAPI().Schema().Version(),
		)
	})
}

// serve starts fxApp, calls ready, and stops it once ctx is done. A failed
// start is returned as is.
func serve(ctx context.Context, fxApp *fx.App, ready func()) error {
	startCtx, cancel := context.WithTimeout(ctx, fxApp.StartTimeout())
	defer cancel()
	if err := fxApp.Start(startCtx); err != nil {
		return err
	}
	ready()

	<-ctx.Done()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
	defer stopCancel()
	return fxApp.Stop(stopCtx)
}
