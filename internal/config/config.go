package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"go-image-organizer/internal/analyzer"
	"go-image-organizer/internal/api"
	"go-image-organizer/internal/database"
	"go-image-organizer/internal/hashindex"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/naming"
	"go-image-organizer/internal/paths"
)

// Default values for configuration
const (
	DefaultDataDir         = "data"
	DefaultDatabaseBackend = models.BackendSQLite
	DefaultBleveIndexName  = "search.bleve"
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "text"
	DefaultConfigFilePath  = "config.toml"
	DefaultEnvFilePath     = ".env"
	DefaultIndexEnabled    = true

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "organizer:"

	DefaultBlobBucket     = "images"
	DefaultBlobTimeoutSec = 60
	DefaultBlobMaxRetries = 3

	DefaultAnalyzerProvider   = "gemini"
	DefaultAnalyzerTimeoutSec = 90

	DefaultHashAlgorithm  = hashindex.AlgoMD5
	DefaultRenameStrategy = models.StrategyAI
)

// EnvPrefix is prepended to every environment override, e.g.
// ORGANIZER_ANALYZER_APIKEY or ORGANIZER_BLOB_PROVIDER.
const EnvPrefix = "ORGANIZER"

// apiKeyEnvVars are read when no analyzer key is configured anywhere else.
var apiKeyEnvVars = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// setViperDefaults configures Viper with the application's default values.
func setViperDefaults(v *viper.Viper) {
	v.SetDefault("datadir", DefaultDataDir)
	v.SetDefault("databasebackend", DefaultDatabaseBackend)
	v.SetDefault("databasepath", "")   // Derived from DataDir later
	v.SetDefault("bleveindexpath", "") // Derived from DataDir later
	v.SetDefault("indexenabled", DefaultIndexEnabled)
	v.SetDefault("loglevel", DefaultLogLevel)
	v.SetDefault("logformat", DefaultLogFormat)
	v.SetDefault("logapirequests", false)

	v.SetDefault("redis.addr", DefaultRedisAddr)
	v.SetDefault("redis.username", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.keyprefix", DefaultRedisKeyPrefix)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.usetls", false)

	v.SetDefault("blob.provider", models.BlobProviderNone)
	v.SetDefault("blob.root", "")
	v.SetDefault("blob.supabaseurl", "")
	v.SetDefault("blob.supabasekey", "")
	v.SetDefault("blob.bucket", DefaultBlobBucket)
	v.SetDefault("blob.pathpattern", paths.DefaultBlobPattern)
	v.SetDefault("blob.timeoutsec", DefaultBlobTimeoutSec)
	v.SetDefault("blob.maxretries", DefaultBlobMaxRetries)
	v.SetDefault("blob.uploadonscan", false)

	v.SetDefault("analyzer.provider", DefaultAnalyzerProvider)
	v.SetDefault("analyzer.apikey", "")
	v.SetDefault("analyzer.models", analyzer.DefaultGeminiModels)
	v.SetDefault("analyzer.timeoutsec", DefaultAnalyzerTimeoutSec)

	v.SetDefault("scan.hashalgorithm", DefaultHashAlgorithm)
	v.SetDefault("scan.extensions", models.DefaultExtensions)

	v.SetDefault("rename.strategy", DefaultRenameStrategy)
	v.SetDefault("rename.maxcollisionattempts", naming.DefaultMaxAttempts)
}

// CliFlags holds pointers to values received from command-line flags.
// Nil fields indicate the flag was not provided by the user.
type CliFlags struct {
	// Global/Persistent Flags
	ConfigFilePath  *string // --config
	EnvFilePath     *string // --env-file
	LogLevel        *string // --log-level
	LogFormat       *string // --log-format
	LogApiRequests  *bool   // --log-api
	DataDir         *string // --data-dir
	DatabaseBackend *string // --db
	DatabasePath    *string // --db-path
	IndexEnabled    *bool   // --index

	// Command-specific flags nested
	Scan     *CliScanFlags
	Analyzer *CliAnalyzerFlags
	Rename   *CliRenameFlags
	Blob     *CliBlobFlags
}

type CliScanFlags struct {
	HashAlgorithm *string   // --hash
	Extensions    *[]string // --ext
}

type CliAnalyzerFlags struct {
	APIKey     *string   // --api-key
	Models     *[]string // --models
	TimeoutSec *int      // --timeout
}

type CliRenameFlags struct {
	Strategy             *string // --strategy
	MaxCollisionAttempts *int    // --max-attempts
}

type CliBlobFlags struct {
	Provider *string // --blob
	Root     *string // --blob-root
}

// Initialize loads configuration based on defaults, .env, config file,
// environment and flags.
// Precedence: Flags > Environment > Config File > Defaults.
func Initialize(flags CliFlags) (models.Config, http.RoundTripper, error) {
	loadEnvFile(flags.EnvFilePath)

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setViperDefaults(v)

	configFilePath := DefaultConfigFilePath
	explicit := flags.ConfigFilePath != nil && *flags.ConfigFilePath != ""
	if explicit {
		configFilePath = *flags.ConfigFilePath
	}
	v.SetConfigFile(configFilePath)
	v.SetConfigType("toml")

	if _, statErr := os.Stat(configFilePath); statErr != nil {
		if explicit {
			return models.Config{}, nil, fmt.Errorf("config file %s: %w", configFilePath, statErr)
		}
		log.Debugf("Config file '%s' not found, using defaults, environment and flags only.", configFilePath)
	} else if err := v.ReadInConfig(); err != nil {
		return models.Config{}, nil, fmt.Errorf("reading config file %s: %w", configFilePath, err)
	} else {
		log.Debugf("Using config file: %s", v.ConfigFileUsed())
	}

	var cfg models.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return models.Config{}, nil, fmt.Errorf("failed to unmarshal config from viper: %w", err)
	}

	applyFlags(&cfg, flags)

	if cfg.Analyzer.APIKey == "" {
		for _, name := range apiKeyEnvVars {
			if key := os.Getenv(name); key != "" {
				log.Debugf("Using analyzer API key from %s", name)
				cfg.Analyzer.APIKey = key
				break
			}
		}
	}

	deriveDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return models.Config{}, nil, err
	}

	transport := buildTransport(cfg)
	log.Debug("Configuration initialized successfully.")
	return cfg, transport, nil
}

// loadEnvFile loads a .env file into the process environment. Variables
// already set win. A missing default file is not an error.
func loadEnvFile(path *string) {
	envFile := DefaultEnvFilePath
	if path != nil && *path != "" {
		envFile = *path
	}
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Debugf("No env file at %s", envFile)
			return
		}
		log.WithError(err).Warnf("Failed to load env file %s", envFile)
		return
	}
	log.Debugf("Loaded environment from %s", envFile)
}

func applyFlags(cfg *models.Config, flags CliFlags) {
	if flags.LogLevel != nil {
		cfg.LogLevel = *flags.LogLevel
	}
	if flags.LogFormat != nil {
		cfg.LogFormat = *flags.LogFormat
	}
	if flags.LogApiRequests != nil {
		cfg.LogApiRequests = *flags.LogApiRequests
	}
	if flags.DataDir != nil {
		cfg.DataDir = *flags.DataDir
	}
	if flags.DatabaseBackend != nil {
		cfg.DatabaseBackend = *flags.DatabaseBackend
	}
	if flags.DatabasePath != nil {
		cfg.DatabasePath = *flags.DatabasePath
	}
	if flags.IndexEnabled != nil {
		cfg.IndexEnabled = *flags.IndexEnabled
	}

	if flags.Scan != nil {
		if flags.Scan.HashAlgorithm != nil {
			cfg.Scan.HashAlgorithm = *flags.Scan.HashAlgorithm
		}
		if flags.Scan.Extensions != nil && len(*flags.Scan.Extensions) > 0 {
			cfg.Scan.Extensions = *flags.Scan.Extensions
		}
	}

	if flags.Analyzer != nil {
		if flags.Analyzer.APIKey != nil {
			cfg.Analyzer.APIKey = *flags.Analyzer.APIKey
		}
		if flags.Analyzer.Models != nil && len(*flags.Analyzer.Models) > 0 {
			cfg.Analyzer.Models = *flags.Analyzer.Models
		}
		if flags.Analyzer.TimeoutSec != nil {
			cfg.Analyzer.TimeoutSec = *flags.Analyzer.TimeoutSec
		}
	}

	if flags.Rename != nil {
		if flags.Rename.Strategy != nil {
			cfg.Rename.Strategy = *flags.Rename.Strategy
		}
		if flags.Rename.MaxCollisionAttempts != nil {
			cfg.Rename.MaxCollisionAttempts = *flags.Rename.MaxCollisionAttempts
		}
	}

	if flags.Blob != nil {
		if flags.Blob.Provider != nil {
			cfg.Blob.Provider = *flags.Blob.Provider
		}
		if flags.Blob.Root != nil {
			cfg.Blob.Root = *flags.Blob.Root
		}
	}
}

// deriveDefaults fills in paths that depend on DataDir and normalizes
// enumerations and extensions.
func deriveDefaults(cfg *models.Config) {
	cfg.DatabaseBackend = strings.ToLower(strings.TrimSpace(cfg.DatabaseBackend))
	if cfg.DatabaseBackend == "" {
		cfg.DatabaseBackend = DefaultDatabaseBackend
	}
	if cfg.DatabasePath == "" {
		cfg.DatabasePath = filepath.Join(cfg.DataDir, database.DefaultFileName(cfg.DatabaseBackend))
	}
	if cfg.BleveIndexPath == "" {
		cfg.BleveIndexPath = filepath.Join(cfg.DataDir, DefaultBleveIndexName)
	}

	cfg.Blob.Provider = strings.ToLower(strings.TrimSpace(cfg.Blob.Provider))
	if cfg.Blob.Provider == models.BlobProviderLocal && cfg.Blob.Root == "" {
		cfg.Blob.Root = filepath.Join(cfg.DataDir, "blobs")
	}
	if cfg.Blob.PathPattern == "" {
		cfg.Blob.PathPattern = paths.DefaultBlobPattern
	}

	cfg.Rename.Strategy = strings.ToLower(strings.TrimSpace(cfg.Rename.Strategy))
	if cfg.Rename.Strategy == "" {
		cfg.Rename.Strategy = DefaultRenameStrategy
	}
	if cfg.Rename.MaxCollisionAttempts <= 0 {
		cfg.Rename.MaxCollisionAttempts = naming.DefaultMaxAttempts
	}

	cfg.Scan.Extensions = NormalizeExtensions(cfg.Scan.Extensions)
	if len(cfg.Scan.Extensions) == 0 {
		cfg.Scan.Extensions = append([]string{}, models.DefaultExtensions...)
	}
	if len(cfg.Analyzer.Models) == 0 {
		cfg.Analyzer.Models = append([]string{}, analyzer.DefaultGeminiModels...)
	}
}

// NormalizeExtensions lowercases exts, adds a leading dot where missing and
// drops empties and repeats. Entries may themselves be comma-separated,
// which is how a single environment variable carries a list.
func NormalizeExtensions(exts []string) []string {
	seen := make(map[string]bool, len(exts))
	out := make([]string, 0, len(exts))
	for _, entry := range exts {
		for _, e := range strings.Split(entry, ",") {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			if seen[e] {
				continue
			}
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// Validate rejects configurations no command can run with.
func Validate(cfg *models.Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("DataDir cannot be empty (set via --data-dir flag or DataDir in config)")
	}

	switch cfg.DatabaseBackend {
	case models.BackendSQLite, models.BackendBitcask, models.BackendRedis, models.BackendMemory:
	default:
		return fmt.Errorf("unknown DatabaseBackend %q (sqlite, bitcask, redis, memory)", cfg.DatabaseBackend)
	}
	if cfg.DatabaseBackend == models.BackendRedis && cfg.Redis.Addr == "" {
		return fmt.Errorf("Redis.Addr is required for the redis backend")
	}

	switch cfg.Blob.Provider {
	case models.BlobProviderNone, models.BlobProviderLocal, models.BlobProviderMemory, models.BlobProviderSupabase:
	default:
		return fmt.Errorf("unknown Blob.Provider %q (local, memory, supabase)", cfg.Blob.Provider)
	}
	if err := paths.ValidatePattern(cfg.Blob.PathPattern); err != nil {
		return fmt.Errorf("invalid Blob.PathPattern: %w", err)
	}
	if cfg.Blob.TimeoutSec < 0 || cfg.Blob.MaxRetries < 0 {
		return fmt.Errorf("Blob.TimeoutSec and Blob.MaxRetries cannot be negative")
	}

	switch cfg.Rename.Strategy {
	case models.StrategyAI, models.StrategyPattern:
	default:
		return fmt.Errorf("unknown Rename.Strategy %q (ai, pattern)", cfg.Rename.Strategy)
	}

	if _, err := hashindex.NewHasher(cfg.Scan.HashAlgorithm); err != nil {
		return fmt.Errorf("invalid Scan.HashAlgorithm: %w", err)
	}

	if p := strings.ToLower(cfg.Analyzer.Provider); p != "" && p != DefaultAnalyzerProvider {
		return fmt.Errorf("unknown Analyzer.Provider %q (gemini)", cfg.Analyzer.Provider)
	}
	if cfg.Analyzer.TimeoutSec < 0 {
		return fmt.Errorf("Analyzer.TimeoutSec cannot be negative")
	}
	return nil
}

// buildTransport returns the shared HTTP transport, wrapped with request
// logging when LogApiRequests is set.
func buildTransport(cfg models.Config) http.RoundTripper {
	baseTransport := http.DefaultTransport
	if !cfg.LogApiRequests {
		return baseTransport
	}

	logFilePath := filepath.Join(cfg.DataDir, "api.log")
	log.Infof("API logging to file: %s", logFilePath)
	loggingTransport, err := api.NewLoggingTransport(baseTransport, logFilePath)
	if err != nil {
		log.WithError(err).Error("Failed to initialize API logging transport, logging disabled.")
		return baseTransport
	}
	return loggingTransport
}

// Encode renders cfg as TOML. Secrets are masked unless showSecrets is set.
func Encode(cfg models.Config, showSecrets bool) (string, error) {
	if !showSecrets {
		cfg = Masked(cfg)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	return buf.String(), nil
}

// Masked returns a copy of cfg with its secrets replaced.
func Masked(cfg models.Config) models.Config {
	cfg.Analyzer.APIKey = mask(cfg.Analyzer.APIKey)
	cfg.Blob.SupabaseKey = mask(cfg.Blob.SupabaseKey)
	cfg.Redis.Password = mask(cfg.Redis.Password)
	return cfg
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// Default returns the configuration Initialize produces with no config
// file, environment or flags.
func Default() models.Config {
	cfg := models.Config{
		DataDir:         DefaultDataDir,
		DatabaseBackend: DefaultDatabaseBackend,
		IndexEnabled:    DefaultIndexEnabled,
		LogLevel:        DefaultLogLevel,
		LogFormat:       DefaultLogFormat,
		Redis: models.RedisConfig{
			Addr:      DefaultRedisAddr,
			KeyPrefix: DefaultRedisKeyPrefix,
		},
		Blob: models.BlobConfig{
			Bucket:      DefaultBlobBucket,
			PathPattern: paths.DefaultBlobPattern,
			TimeoutSec:  DefaultBlobTimeoutSec,
			MaxRetries:  DefaultBlobMaxRetries,
		},
		Analyzer: models.AnalyzerConfig{
			Provider:   DefaultAnalyzerProvider,
			TimeoutSec: DefaultAnalyzerTimeoutSec,
		},
		Scan: models.ScanConfig{
			HashAlgorithm: DefaultHashAlgorithm,
		},
		Rename: models.RenameConfig{
			Strategy: DefaultRenameStrategy,
		},
	}
	deriveDefaults(&cfg)
	return cfg
}

// WriteDefault writes Default() as TOML to path. An existing file is only
// replaced when force is set.
func WriteDefault(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
	}
	cfg := Default()
	// Derived paths follow DataDir when left out.
	cfg.DatabasePath = ""
	cfg.BleveIndexPath = ""
	out, err := Encode(cfg, true)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	return os.WriteFile(path, []byte(out), 0644)
}
