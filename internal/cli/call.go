package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/vvka-141/pgdbapi/internal/app"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

var callFlags struct {
	user        string
	project     string
	admin       bool
	roles       []string
	readDeleted string
	timeout     time.Duration
}

var callCmd = &cobra.Command{
	Use:   "call <operation> [json-arg...]",
	Short: "Invoke one data API operation and print its result as JSON",
	Long: `Starts the data API, invokes <operation> with the given arguments and
prints the result as JSON. Each argument is parsed as JSON; anything that is
not valid JSON is passed as a string.

Transient database errors are retried at the configured delay until the
operation succeeds or --timeout expires.

Examples:
  pgdbapi call instance_get_by_uuid 8f2c3b9e-1f7a-4c57-9a61-2d7d3c1e5b10 --user alice --project p1
  pgdbapi call instance_update 8f2c... '{"host": "compute-2"}' --user alice --project p1
  pgdbapi call instance_purge 8f2c... --admin`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCall,
}

func init() {
	flags := callCmd.Flags()
	flags.StringVar(&callFlags.user, "user", "", "Caller user ID")
	flags.StringVar(&callFlags.project, "project", "", "Caller project ID")
	flags.BoolVar(&callFlags.admin, "admin", false, "Call with an administrative context")
	flags.StringSliceVar(&callFlags.roles, "role", nil, "Caller role (repeatable)")
	flags.StringVar(&callFlags.readDeleted, "read-deleted", dbapi.ReadDeletedNo, "Soft-deleted rows: no, yes or only")
	flags.DurationVar(&callFlags.timeout, "timeout", time.Minute, "Upper bound for the call including retries")
	rootCmd.AddCommand(callCmd)
}

func runCall(cmd *cobra.Command, args []string) error {
	name := args[0]
	callArgs := parseCallArgs(args[1:])
	cc, err := callerFromFlags()
	if err != nil {
		return err
	}

	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

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

	ctx, cancel := context.WithTimeout(cmd.Context(), callFlags.timeout)
	defer cancel()

	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), fxApp.StopTimeout())
		defer stopCancel()
		_ = fxApp.Stop(stopCtx)
	}()

	result, err := svc.DataAPI().Call(ctx, name, cc, callArgs...)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseCallArgs decodes each argument as JSON, keeping numbers as
// json.Number. Arguments that are not JSON are passed through as strings.
func parseCallArgs(raw []string) []any {
	args := make([]any, len(raw))
	for i, s := range raw {
		dec := json.NewDecoder(bytes.NewReader([]byte(s)))
		dec.UseNumber()

		var v any
		if err := dec.Decode(&v); err != nil || dec.More() {
			args[i] = s
			continue
		}
		args[i] = v
	}
	return args
}

// callerFromFlags builds the caller context. --admin without --user acts as
// the service itself.
func callerFromFlags() (*dbapi.CallerContext, error) {
	var cc *dbapi.CallerContext
	switch {
	case callFlags.admin && callFlags.user == "":
		cc = dbapi.NewAdminContext()
	case callFlags.user == "" && callFlags.project == "":
		return nil, fmt.Errorf("%w: --user and --project, or --admin, are required", dbapi.ErrMissingContext)
	default:
		cc = dbapi.NewCallerContext(callFlags.user, callFlags.project)
		if callFlags.admin {
			cc = cc.Elevated()
		}
	}
	cc.Roles = append(cc.Roles, callFlags.roles...)

	switch callFlags.readDeleted {
	case dbapi.ReadDeletedNo, dbapi.ReadDeletedYes, dbapi.ReadDeletedOnly:
		return cc.WithReadDeleted(callFlags.readDeleted), nil
	default:
		return nil, fmt.Errorf("%w: --read-deleted must be no, yes or only, got %q", dbapi.ErrInvalidArgument, callFlags.readDeleted)
	}
}
