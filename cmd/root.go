// Package cmd implements the tenant-restore CLI.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"tenant-restore/internal/backup"
	"tenant-restore/internal/database"
	"tenant-restore/internal/display"
	"tenant-restore/internal/executor"
	"tenant-restore/internal/logging"
	"tenant-restore/internal/mapper"
	"tenant-restore/internal/restore"
	"tenant-restore/internal/rollback"
	"tenant-restore/internal/storage"
)

var cfgFile string

// CLI flag variables
var (
	verbose    bool
	quiet      bool
	logFile    string
	noColor    bool
	noIcons    bool
	passphrase string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "tenant-restore",
	Short: "Restore tenant data from backup archives into the live store",
	Long: `tenant-restore brings a tenant's data back from a backup archive:
it reconciles the archive's schema snapshot against the live database,
previews conflicts with existing rows, applies the confirmed restore in
a single transaction, and keeps a rollback window open afterwards.

A typical restore:

  tenant-restore backup upload ./export.tar.gz --tenant acme
  tenant-restore restore create <backup-id> --tenant acme --type partial
  tenant-restore restore analyze <job-id>
  tenant-restore restore confirm <job-id> --strategy merge
  tenant-restore restore process <job-id>

And if it went wrong:

  tenant-restore rollback execute <job-id>`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.tenant-restore.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "write logs to file instead of stdout")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable color output")
	rootCmd.PersistentFlags().BoolVar(&noIcons, "no-icons", false, "disable Unicode icons")
	rootCmd.PersistentFlags().StringVar(&passphrase, "passphrase", "", "passphrase for encrypted archives (prompted when omitted)")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.BindPFlag("log_file", rootCmd.PersistentFlags().Lookup("log-file"))

	rootCmd.AddCommand(createVersionCommand())
	rootCmd.AddCommand(createConfigCommand())
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".tenant-restore")
	}

	viper.SetEnvPrefix("TENANT_RESTORE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// appConfig is the full CLI configuration, combining config file,
// environment and flags through viper.
type appConfig struct {
	Database database.Config `mapstructure:"database"`
	Storage  storage.Config  `mapstructure:"storage"`
	Restore  restore.Config  `mapstructure:"restore"`
	Backup   backup.Config   `mapstructure:"backup"`
	Executor executor.Config `mapstructure:"executor"`
	Display  display.Config  `mapstructure:"display"`

	// StateFile holds job and archive records between invocations.
	StateFile string `mapstructure:"state_file"`
	LogFile   string `mapstructure:"log_file"`
	Verbose   bool   `mapstructure:"verbose"`
	Quiet     bool   `mapstructure:"quiet"`
}

// app bundles the wired services behind each command.
type app struct {
	config   appConfig
	logger   *logging.Logger
	render   *display.Renderer
	db       *database.Service
	store    *restore.FileStore
	registry *mapper.Registry
	orch     *restore.Orchestrator
	rollback *rollback.Service
}

// buildApp wires every service from the resolved configuration. The
// database connection is opened lazily by connectDB; upload and status
// commands never touch the live store.
func buildApp(ctx context.Context) (*app, error) {
	var config appConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	applyDefaults(&config)

	logger, err := logging.NewLogger(logging.Config{
		Level:   resolveLogLevel(config),
		Format:  "text",
		LogFile: config.LogFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	render := display.NewRenderer(display.Config{
		ColorEnabled: config.Display.ColorEnabled && !noColor,
		UseIcons:     config.Display.UseIcons && !noIcons,
	})

	provider, err := storage.NewProvider(ctx, config.Storage)
	if err != nil {
		return nil, err
	}

	store, err := restore.NewFileStore(config.StateFile)
	if err != nil {
		return nil, err
	}

	db := database.NewService(config.Database, logger)
	registry := mapper.NewDefaultRegistry()
	exec := executor.NewExecutor(db, registry, logger, config.Executor)
	builder := backup.NewBuilder(db, registry, provider, store, logger, config.Backup)
	orch := restore.NewOrchestrator(store, store, provider, db, exec,
		registry, builder, logger, config.Restore)
	rollbackSvc := rollback.NewService(orch, provider, nil, logger)

	return &app{
		config:   config,
		logger:   logger,
		render:   render,
		db:       db,
		store:    store,
		registry: registry,
		orch:     orch,
		rollback: rollbackSvc,
	}, nil
}

func applyDefaults(config *appConfig) {
	if config.StateFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		config.StateFile = filepath.Join(home, ".tenant-restore", "state.json")
	}
	if config.Storage.Provider == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		config.Storage.Provider = storage.ProviderLocal
		config.Storage.Local = &storage.LocalConfig{
			BasePath: filepath.Join(home, ".tenant-restore", "archives"),
		}
	}
	if config.Database.Port == 0 {
		config.Database.Port = 3306
	}
	if !viper.IsSet("display.color_enabled") {
		config.Display.ColorEnabled = true
	}
	if !viper.IsSet("display.use_icons") {
		config.Display.UseIcons = true
	}
}

func resolveLogLevel(config appConfig) logging.LogLevel {
	switch {
	case quiet || config.Quiet:
		return logging.LogLevelQuiet
	case verbose || config.Verbose:
		return logging.LogLevelVerbose
	default:
		return logging.LogLevelNormal
	}
}

// connectDB opens the live store connection for commands that need it.
func (a *app) connectDB(ctx context.Context) error {
	if a.config.Database.Host == "" || a.config.Database.Database == "" {
		return fmt.Errorf("database connection is not configured; set database.host and database.database " +
			"in the config file or TENANT_RESTORE_DATABASE_* environment variables")
	}
	return a.db.Connect(ctx)
}

// close releases held resources.
func (a *app) close() {
	if err := a.db.Close(); err != nil {
		a.logger.Errorf("failed to close database connection: %v", err)
	}
}

// resolvePassphrase returns the --passphrase flag when set and prompts
// on the terminal otherwise. required distinguishes encrypted archives
// from unencrypted ones, which need no passphrase at all.
func resolvePassphrase(required bool) (string, error) {
	if passphrase != "" || !required {
		return passphrase, nil
	}
	if !isatty.IsTerminal(os.Stdin.Fd()) {
		return "", fmt.Errorf("archive is encrypted: provide --passphrase or run interactively")
	}

	fmt.Fprint(os.Stderr, "Passphrase: ")
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	return string(raw), nil
}

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("tenant-restore version %s\n", version)
			fmt.Printf("Built: %s\n", buildTime)
			fmt.Printf("Commit: %s\n", gitCommit)
		},
	}
}

func createConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file for use with the --config flag.

Examples:
  tenant-restore config > ~/.tenant-restore.yaml`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(sampleConfig)
		},
	}
}

const sampleConfig = `# tenant-restore configuration file

# Live store connection
database:
  host: localhost
  port: 3306
  user: restore
  password: ""            # prefer TENANT_RESTORE_DATABASE_PASSWORD
  database: tenants
  timeout: 30s
  max_open_conns: 10
  max_idle_conns: 5

# Where backup archives live. One provider is active at a time.
storage:
  provider: local         # local, s3, gcs, azure
  local:
    base_path: ~/.tenant-restore/archives
  # s3:
  #   region: eu-west-1
  #   bucket: tenant-backups
  #   access_key: ""
  #   secret_key: ""
  #   prefix: restores
  # gcs:
  #   bucket: tenant-backups
  #   credentials_path: /etc/gcs/credentials.json
  # azure:
  #   account_name: ""
  #   account_key: ""
  #   container_name: tenant-backups

# Restore pipeline
restore:
  rollback_window: 24h    # how long a completed restore stays reversible
  work_dir: ""            # staging directory, empty = system temp

# Safety backups taken before non-full restores
backup:
  compression: lz4        # gzip, lz4, zstd, none
  work_dir: ""

# Restore execution
executor:
  strict_clear: false     # fail full restores when a table cannot be soft-cleared

# Job and archive records between invocations
state_file: ~/.tenant-restore/state.json

# Output
verbose: false
quiet: false
log_file: ""
display:
  color_enabled: true
  use_icons: true
`
