package models

import (
	"encoding/json"
)

// StringOrStringSlice is a custom type that can unmarshal from either
// a JSON string or a JSON array of strings. Analyzer responses are not
// consistent about list fields ("tags": "sunset" vs "tags": ["sunset"]).
type StringOrStringSlice []string

// UnmarshalJSON implements json.Unmarshaler for StringOrStringSlice
func (s *StringOrStringSlice) UnmarshalJSON(data []byte) error {
	// First try to unmarshal as a string
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str == "" {
			*s = []string{}
			return nil
		}
		*s = []string{str}
		return nil
	}

	// If that fails, try to unmarshal as an array of strings
	var arr []string
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	*s = arr
	return nil
}

type (
	// Config holds the application's configuration settings.
	Config struct {
		DataDir         string         `toml:"DataDir" json:"DataDir"`
		DatabaseBackend string         `toml:"DatabaseBackend" json:"DatabaseBackend"`
		DatabasePath    string         `toml:"DatabasePath" json:"DatabasePath"`
		BleveIndexPath  string         `toml:"BleveIndexPath" json:"BleveIndexPath"`
		LogLevel        string         `toml:"LogLevel" json:"LogLevel"`
		LogFormat       string         `toml:"LogFormat" json:"LogFormat"`
		Redis           RedisConfig    `toml:"Redis" json:"Redis"`
		Blob            BlobConfig     `toml:"Blob" json:"Blob"`
		Analyzer        AnalyzerConfig `toml:"Analyzer" json:"Analyzer"`
		Scan            ScanConfig     `toml:"Scan" json:"Scan"`
		Rename          RenameConfig   `toml:"Rename" json:"Rename"`
		IndexEnabled    bool           `toml:"IndexEnabled" json:"IndexEnabled"`
		LogApiRequests  bool           `toml:"LogApiRequests" json:"LogApiRequests"`
	}

	// RedisConfig is used when DatabaseBackend is "redis".
	RedisConfig struct {
		Addr      string `toml:"Addr"`
		Username  string `toml:"Username"`
		Password  string `toml:"Password"`
		KeyPrefix string `toml:"KeyPrefix"`
		DB        int    `toml:"DB"`
		UseTLS    bool   `toml:"UseTLS"`
	}

	// BlobConfig selects and configures the object storage mirror.
	BlobConfig struct {
		// Provider is one of "", "local", "memory", "supabase". Empty disables cloud mirroring.
		Provider    string `toml:"Provider"`
		Root        string `toml:"Root"`
		SupabaseURL string `toml:"SupabaseURL"`
		SupabaseKey string `toml:"SupabaseKey"`
		Bucket      string `toml:"Bucket"`
		PathPattern string `toml:"PathPattern"`
		// Integers
		TimeoutSec int `toml:"TimeoutSec"`
		MaxRetries int `toml:"MaxRetries"`
		// Bools
		UploadOnScan bool `toml:"UploadOnScan"`
	}

	// AnalyzerConfig configures the content analysis backend.
	AnalyzerConfig struct {
		Provider string `toml:"Provider"`
		APIKey   string `toml:"ApiKey"`
		// Models are tried in order; the next one is only used when the
		// previous one is unavailable.
		Models     []string `toml:"Models"`
		TimeoutSec int      `toml:"TimeoutSec"`
	}

	// ScanConfig holds settings specific to the 'scan' command.
	ScanConfig struct {
		HashAlgorithm string   `toml:"HashAlgorithm"`
		Extensions    []string `toml:"Extensions"`
	}

	// RenameConfig holds settings specific to the 'rename' command.
	RenameConfig struct {
		Strategy             string `toml:"Strategy"`
		MaxCollisionAttempts int    `toml:"MaxCollisionAttempts"`
	}
)

// Database backends
const (
	BackendSQLite  = "sqlite"
	BackendBitcask = "bitcask"
	BackendRedis   = "redis"
	BackendMemory  = "memory"
)

// Blob providers
const (
	BlobProviderNone     = ""
	BlobProviderLocal    = "local"
	BlobProviderMemory   = "memory"
	BlobProviderSupabase = "supabase"
)

// Rename strategies
const (
	StrategyAI      = "ai"
	StrategyPattern = "pattern"
)

// DefaultExtensions is the supported image extension allow-list.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}
