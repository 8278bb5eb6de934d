package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/vvka-141/pgdbapi/internal/schema"
	"github.com/vvka-141/pgdbapi/internal/tui"
)

var schemaFlags struct {
	json bool
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Introspect the database and print its tables",
	Long: `Connects once, reads information_schema for the configured schemas and
prints every table with its columns in ordinal order. This is the snapshot
the data API works from.

Examples:
  pgdbapi schema -h localhost -d nova
  pgdbapi schema --connection "$DATABASE_URL" --json`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaFlags.json, "json", false, "Print the snapshot as JSON")
	rootCmd.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, _ []string) error {
	rt, err := loadRuntime()
	if err != nil {
		return err
	}
	defer func() { _ = rt.logger.Sync() }()

	ctx := cmd.Context()
	connector, err := connectorFactory(rt.connection, rt.logger)
	if err != nil {
		return err
	}
	defer closeConnector(connector)

	conn, err := connector.Connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close(ctx)

	snap, err := schema.Introspect(ctx, conn, rt.config.Schema.Schemas)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if schemaFlags.json {
		return writeSchemaJSON(out, snap)
	}
	_, err = fmt.Fprint(out, tui.NewRenderer(isTerminal(out)).Schema(snap))
	return err
}

type schemaJSON struct {
	Table   string          `json:"table"`
	Columns []schema.Column `json:"columns"`
}

func writeSchemaJSON(w io.Writer, snap *schema.Snapshot) error {
	tables := make([]schemaJSON, 0)
	for _, name := range snap.TableNames() {
		t, _ := snap.Table(name)
		tables = append(tables, schemaJSON{Table: name, Columns: t.Columns})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tables)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && tui.IsTerminal(f)
}

func closeConnector(connector any) {
	if closer, ok := connector.(io.Closer); ok {
		_ = closer.Close()
	}
}
