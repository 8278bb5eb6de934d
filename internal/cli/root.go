package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pgdbapi",
	Short: "Resilient PostgreSQL data API",
	Long: `pgdbapi serves compute data operations over a pooled PostgreSQL connection.

Every operation checks the caller context, retries transient database errors
(timeouts, lock waits, lost connections) at a fixed delay, and reads table
layouts from a schema snapshot that is refreshed in the background. Names the
data API does not implement are routed to a fallback backend.

Connection settings are resolved from, in order: --connection, granular flags
(-h, -p, -U, -d), PG* environment variables, DATABASE_URL, pgdbapi.yaml, and
built-in defaults. A .env file in the working directory is loaded first.

Exit Codes:
  0  - Success
  1  - General error
  2  - CLI usage error (invalid arguments or flags)
  3  - Panic or unexpected system error
  10 - Invalid configuration or arguments
  11 - Database connection failed or pool exhausted
  12 - Missing or insufficient caller context
  13 - Operation not implemented by any backend
  14 - Record not found`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	if len(os.Args) > 1 && os.Args[1] == "--version" {
		printVersionInfo(os.Stdout)
		return nil
	}
	return rootCmd.Execute()
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&globalFlags.verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&globalFlags.configDir, "config-dir", ".", "Directory containing pgdbapi.yaml")
	flags.StringVar(&globalFlags.logFormat, "log-format", "", "Log format: console or json (default from pgdbapi.yaml)")
	addConnectionFlags(rootCmd)
}
