package cmd

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-image-organizer/internal/api"
	"go-image-organizer/internal/config"
	"go-image-organizer/internal/models"
)

// Persistent flag values. Only flags the user actually set are passed on
// to config.Initialize.
var (
	cfgFile         string
	envFile         string
	logLevel        string
	logFormat       string
	logApiFlag      bool
	dataDirFlag     string
	dbBackendFlag   string
	dbPathFlag      string
	indexFlag       bool
	blobFlag        string
	blobRootFlag    string
	apiKeyFlag      string
	analyzerTimeout int
)

// globalConfig holds the loaded configuration
var globalConfig models.Config

// globalHttpTransport holds the globally configured HTTP transport (base or logging-wrapped)
var globalHttpTransport http.RoundTripper

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "image-organizer",
	Short: "Scan, analyze, rename and deduplicate image folders",
	Long: `Image Organizer indexes folders of images into projects, asks an AI
analyzer for descriptive names and labels, renames files (optionally
mirrored to blob storage) and removes byte-identical duplicates.

Every batch runs as a tracked job whose progress can be followed live or
queried later with the jobs command.`,
	PersistentPreRunE: loadGlobalConfig,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	defer api.CloseAllLoggingTransports()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		api.CloseAllLoggingTransports()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Configuration file path (default ./config.toml)")
	pf.StringVar(&envFile, "env-file", "", "Env file loaded before reading the environment (default ./.env)")
	pf.StringVar(&logLevel, "log-level", config.DefaultLogLevel, "Logging level (trace, debug, info, warn, error, fatal, panic)")
	pf.StringVar(&logFormat, "log-format", config.DefaultLogFormat, "Logging format (text, json)")
	pf.BoolVar(&logApiFlag, "log-api", false, "Log outgoing HTTP requests/responses to DataDir/api.log")
	pf.StringVar(&dataDirFlag, "data-dir", "", "Directory for the database, search index and logs (overrides config)")
	pf.StringVar(&dbBackendFlag, "db", "", "Database backend: sqlite, bitcask, redis, memory (overrides config)")
	pf.StringVar(&dbPathFlag, "db-path", "", "Database file path (overrides config)")
	pf.BoolVar(&indexFlag, "index", config.DefaultIndexEnabled, "Keep the full-text search index up to date")
	pf.StringVar(&blobFlag, "blob", "", "Blob storage provider: local, memory, supabase (overrides config)")
	pf.StringVar(&blobRootFlag, "blob-root", "", "Root directory for the local blob provider")
	pf.StringVar(&apiKeyFlag, "api-key", "", "Analyzer API key (overrides config and environment)")
	pf.IntVar(&analyzerTimeout, "analyze-timeout", 0, "Per-image analyzer timeout in seconds (overrides config)")
}

// buildCliFlags collects the flags the user set on the command line.
func buildCliFlags(cmd *cobra.Command) config.CliFlags {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	var flags config.CliFlags
	if changed("config") {
		flags.ConfigFilePath = &cfgFile
	}
	if changed("env-file") {
		flags.EnvFilePath = &envFile
	}
	if changed("log-level") {
		flags.LogLevel = &logLevel
	}
	if changed("log-format") {
		flags.LogFormat = &logFormat
	}
	if changed("log-api") {
		flags.LogApiRequests = &logApiFlag
	}
	if changed("data-dir") {
		flags.DataDir = &dataDirFlag
	}
	if changed("db") {
		flags.DatabaseBackend = &dbBackendFlag
	}
	if changed("db-path") {
		flags.DatabasePath = &dbPathFlag
	}
	if changed("index") {
		flags.IndexEnabled = &indexFlag
	}
	if changed("blob") || changed("blob-root") {
		flags.Blob = &config.CliBlobFlags{}
		if changed("blob") {
			flags.Blob.Provider = &blobFlag
		}
		if changed("blob-root") {
			flags.Blob.Root = &blobRootFlag
		}
	}
	if changed("api-key") || changed("analyze-timeout") || changed("models") {
		flags.Analyzer = &config.CliAnalyzerFlags{}
		if changed("api-key") {
			flags.Analyzer.APIKey = &apiKeyFlag
		}
		if changed("analyze-timeout") {
			flags.Analyzer.TimeoutSec = &analyzerTimeout
		}
		if changed("models") {
			flags.Analyzer.Models = &analyzeModels
		}
	}
	if changed("hash") || changed("ext") {
		flags.Scan = &config.CliScanFlags{}
		if changed("hash") {
			flags.Scan.HashAlgorithm = &scanHashFlag
		}
		if changed("ext") {
			flags.Scan.Extensions = &scanExtFlag
		}
	}
	if changed("strategy") || changed("max-attempts") {
		flags.Rename = &config.CliRenameFlags{}
		if changed("strategy") {
			flags.Rename.Strategy = &renameStrategy
		}
		if changed("max-attempts") {
			flags.Rename.MaxCollisionAttempts = &renameMaxAttempts
		}
	}
	return flags
}

// loadGlobalConfig loads the configuration, applies flag overrides and
// sets up logging and the shared HTTP transport.
func loadGlobalConfig(cmd *cobra.Command, args []string) error {
	// Apply the flag level first so config loading itself can be traced.
	initLogging(logLevel, logFormat)

	cfg, transport, err := config.Initialize(buildCliFlags(cmd))
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	globalConfig = cfg
	globalHttpTransport = transport

	initLogging(cfg.LogLevel, cfg.LogFormat)
	log.Debugf("Using data directory %s (backend %s)", cfg.DataDir, cfg.DatabaseBackend)
	return nil
}

// initLogging configures logrus level and format.
func initLogging(level, format string) {
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		log.Warnf("Invalid log level %q, using info", level)
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)

	switch strings.ToLower(format) {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
}
