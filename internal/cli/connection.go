package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vvka-141/pgdbapi/internal/config"
	"github.com/vvka-141/pgdbapi/internal/db"
	"github.com/vvka-141/pgdbapi/internal/logging"
	"github.com/vvka-141/pgdbapi/internal/tui"
	"github.com/vvka-141/pgdbapi/pkg/dbapi"
)

// ConnectionStringEnv names the variable consulted when --connection is unset.
const ConnectionStringEnv = "PGDBAPI_CONNECTION_STRING"

var (
	sslModes    = []string{"disable", "allow", "prefer", "require", "verify-ca", "verify-full"}
	authMethods = []string{"standard", "aws", "google", "azure"}
)

type persistentFlags struct {
	verbose   bool
	configDir string
	logFormat string
}

// connectionFlags holds the connection-related flag values shared by every
// command that talks to the database.
type connectionFlags struct {
	connection     string
	host           string
	port           int
	username       string
	database       string
	sslMode        string
	auth           string
	awsRegion      string
	googleInstance string
	azureTenantID  string
	azureClientID  string
}

var (
	globalFlags persistentFlags
	connFlags   connectionFlags
)

// connectorFactory builds the connector for resolved settings. Tests replace it.
var connectorFactory = func(cfg *dbapi.ConnectionConfig, logger dbapi.Logger) (dbapi.Connector, error) {
	return db.NewConnector(cfg, logger)
}

func addConnectionFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&connFlags.connection, "connection", "", "PostgreSQL connection string (URI, key=value or ADO.NET)")
	flags.StringVarP(&connFlags.host, "host", "h", "", "Database server host (default $PGHOST or localhost)")
	flags.IntVarP(&connFlags.port, "port", "p", 0, "Database server port (default $PGPORT or 5432)")
	flags.StringVarP(&connFlags.username, "username", "U", "", "Database user (default $PGUSER)")
	flags.StringVarP(&connFlags.database, "database", "d", "", "Database name (default $PGDATABASE)")
	flags.StringVar(&connFlags.sslMode, "sslmode", "", "SSL mode (default $PGSSLMODE or prefer)")
	flags.StringVar(&connFlags.auth, "auth", "", "Authentication method: standard, aws, google or azure")
	flags.StringVar(&connFlags.awsRegion, "aws-region", "", "AWS region for RDS IAM auth (default $AWS_REGION)")
	flags.StringVar(&connFlags.googleInstance, "google-instance", "", "Cloud SQL instance (project:region:instance)")
	flags.StringVar(&connFlags.azureTenantID, "azure-tenant-id", "", "Entra ID tenant (default $AZURE_TENANT_ID)")
	flags.StringVar(&connFlags.azureClientID, "azure-client-id", "", "Entra ID client (default $AZURE_CLIENT_ID)")

	// -h is taken by --host, as in psql.
	flags.Bool("help", false, "Help for "+cmd.Name())

	_ = cmd.RegisterFlagCompletionFunc("sslmode", fixedCompletion(sslModes))
	_ = cmd.RegisterFlagCompletionFunc("auth", fixedCompletion(authMethods))
}

func fixedCompletion(values []string) func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
	return func(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		var matches []string
		for _, v := range values {
			if strings.HasPrefix(v, toComplete) {
				matches = append(matches, v)
			}
		}
		return matches, cobra.ShellCompDirectiveNoFileComp
	}
}

// runtimeEnv is everything a command needs before it touches the database.
type runtimeEnv struct {
	config     *config.Config
	connection *dbapi.ConnectionConfig
	logger     *logging.ZapLogger
}

// loadRuntime loads .env and pgdbapi.yaml, builds the logger and resolves
// connection settings.
func loadRuntime() (*runtimeEnv, error) {
	_ = godotenv.Load()

	cfg, err := config.LoadOrDefaults(globalFlags.configDir)
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	connString := connFlags.connection
	if connString == "" {
		connString = os.Getenv(ConnectionStringEnv)
	}
	conn, err := db.ResolveConnectionParams(db.ConnectionSources{
		ConnString: connString,
		Flags: &db.GranularConnFlags{
			Host:     connFlags.host,
			Port:     connFlags.port,
			Username: connFlags.username,
			Database: connFlags.database,
			SSLMode:  connFlags.sslMode,
		},
		Auth: &db.AuthFlags{
			Method:         connFlags.auth,
			AWSRegion:      connFlags.awsRegion,
			GoogleInstance: connFlags.googleInstance,
			AzureTenantID:  connFlags.azureTenantID,
			AzureClientID:  connFlags.azureClientID,
		},
		Env:  db.LoadFromEnvironment(),
		File: &cfg.Connection,
	})
	if err != nil {
		return nil, err
	}
	if conn.AppName == "" {
		conn.AppName = dbapi.DefaultServiceName
	}

	logger.Verbose("Connection resolved",
		"host", conn.Host,
		"port", conn.Port,
		"user", conn.Username,
		"database", conn.Database,
		"sslmode", conn.SSLMode,
		"auth", conn.AuthMethod.String(),
	)
	return &runtimeEnv{config: cfg, connection: conn, logger: logger}, nil
}

// newLogger honours --verbose and --log-format over pgdbapi.yaml. Without
// either, logs are console on a terminal and JSON otherwise.
func newLogger(cfg *config.Config) (*logging.ZapLogger, error) {
	level := cfg.Logging.Level
	if globalFlags.verbose {
		level = logging.LevelDebug
	}

	format := globalFlags.logFormat
	if format == "" {
		format = cfg.Logging.Format
	}
	if format == "" {
		format = logging.FormatJSON
		if tui.IsTerminal(os.Stderr) {
			format = logging.FormatConsole
		}
	}

	logger, err := logging.NewZapLogger(logging.Config{
		Level:       level,
		Format:      format,
		ServiceName: dbapi.DefaultServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dbapi.ErrInvalidConfig, err)
	}
	return logger, nil
}
