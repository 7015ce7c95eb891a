package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSize    string `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Daily      bool   `mapstructure:"daily"`
}

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level      string            `mapstructure:"level"`
	Path       string            `mapstructure:"path"`
	Rotation   RotationConfig    `mapstructure:"rotation"`
	Components map[string]string `mapstructure:"components"`
}

// ToolsConfig locates the external tools the pipeline shells out to.
// Empty paths are resolved against the tools directory and then PATH.
type ToolsConfig struct {
	Dir      string `mapstructure:"dir"`
	Apktool  string `mapstructure:"apktool"`
	Jadx     string `mapstructure:"jadx"`
	Signer   string `mapstructure:"signer"`
	Java     string `mapstructure:"java"`
	JavaHeap string `mapstructure:"java_heap"`
}

// KeystoreConfig holds custom signing credentials. All four fields must be
// set together; otherwise the debug keystore is used.
type KeystoreConfig struct {
	Path     string `mapstructure:"path"`
	Password string `mapstructure:"password"`
	Alias    string `mapstructure:"alias"`
	KeyPass  string `mapstructure:"key_pass"`
}

// Complete reports whether enough fields are set to sign with a custom key.
func (k KeystoreConfig) Complete() bool {
	return k.Path != "" && k.Password != "" && k.Alias != "" && k.KeyPass != ""
}

// PatternsConfig points at optional override files for the built-in
// detection patterns. Each file holds one entry per line, # for comments.
type PatternsConfig struct {
	Domains    string `mapstructure:"domains"`
	Classes    string `mapstructure:"classes"`
	Resources  string `mapstructure:"resources"`
	Components string `mapstructure:"components"`
}

// PatchConfig selects which passes run and how failures are handled.
type PatchConfig struct {
	Passes      []string `mapstructure:"passes"`
	KeepWorkDir bool     `mapstructure:"keep_work_dir"`
	SkipOnJadx  bool     `mapstructure:"skip_on_jadx"`
}

// JournalConfig configures run history records.
type JournalConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Path          string `mapstructure:"path"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// CacheConfig configures the analysis result cache.
type CacheConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Config represents the application configuration.
type Config struct {
	Decompiler  string         `mapstructure:"decompiler"`
	TempDir     string         `mapstructure:"temp_dir"`
	BackupDir   string         `mapstructure:"backup_dir"`
	OutputDir   string         `mapstructure:"output_dir"`
	MinDiskFree string         `mapstructure:"min_disk_free"`
	Tools       ToolsConfig    `mapstructure:"tools"`
	Keystore    KeystoreConfig `mapstructure:"keystore"`
	Patterns    PatternsConfig `mapstructure:"patterns"`
	Patch       PatchConfig    `mapstructure:"patch"`
	Journal     JournalConfig  `mapstructure:"journal"`
	Cache       CacheConfig    `mapstructure:"cache"`
	Logging     LoggingConfig  `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables.
// Config file locations (in order of precedence):
//   - $XDG_CONFIG_HOME/purify/config.yaml
//   - $HOME/.config/purify/config.yaml
//
// Environment variables are prefixed with PURIFY_ (e.g., PURIFY_DECOMPILER).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		v.AddConfigPath(filepath.Join(xdgConfigHome, "purify"))
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}
	v.AddConfigPath(filepath.Join(homeDir, ".config", "purify"))

	v.SetEnvPrefix("PURIFY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("decompiler", DefaultDecompiler)
	v.SetDefault("temp_dir", "")   // Empty means os.TempDir()
	v.SetDefault("backup_dir", "") // Empty means alongside the input file
	v.SetDefault("output_dir", "") // Empty means alongside the input file
	v.SetDefault("min_disk_free", DefaultMinDiskFree)

	v.SetDefault("tools.dir", filepath.Join(DataDir(), "tools"))
	v.SetDefault("tools.java", "java")
	v.SetDefault("tools.java_heap", "")

	v.SetDefault("keystore.alias", DefaultKeystoreAlias)

	v.SetDefault("patch.passes", DefaultPasses)
	v.SetDefault("patch.keep_work_dir", false)
	v.SetDefault("patch.skip_on_jadx", true)

	v.SetDefault("journal.enabled", true)
	v.SetDefault("journal.path", filepath.Join(DataDir(), "journal"))
	v.SetDefault("journal.retention_days", DefaultRetentionDays)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.path", filepath.Join(CacheDir(), "analysis"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "") // Empty means use DefaultLogPath
	v.SetDefault("logging.rotation.max_size", "10MB")
	v.SetDefault("logging.rotation.max_age", 30)
	v.SetDefault("logging.rotation.max_backups", 5)
	v.SetDefault("logging.rotation.daily", true)
	v.SetDefault("logging.components", map[string]string{
		"runner":    "info",
		"decompile": "info",
		"patch":     "info",
		"sign":      "info",
		"pipeline":  "info",
	})

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is acceptable; we use defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	for _, p := range []*string{
		&cfg.TempDir, &cfg.BackupDir, &cfg.OutputDir,
		&cfg.Tools.Dir, &cfg.Keystore.Path, &cfg.Journal.Path, &cfg.Cache.Path,
	} {
		if strings.HasPrefix(*p, "~") {
			*p = filepath.Join(homeDir, (*p)[1:])
		}
	}

	return &cfg, nil
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "purify"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "purify"), nil
}

// EnsureConfigDir creates the config directory if it doesn't exist.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return nil
}

// WriteDefault writes a default config file if none exists.
// Returns nil if a config file already exists.
func WriteDefault() error {
	if err := EnsureConfigDir(); err != nil {
		return err
	}

	configDir, err := ConfigDir()
	if err != nil {
		return err
	}

	configPath := filepath.Join(configDir, "config.yaml")

	if _, err := os.Stat(configPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to check config file: %w", err)
	}

	defaultConfig := fmt.Sprintf(`# Purify APK Pipeline Configuration

# Decompiler used for patching runs: apktool (rebuildable) or jadx
decompiler: %s

# Working directory for decompiled trees (empty means system temp dir)
temp_dir: ""

# Where backups of original APKs are written (empty means alongside input)
backup_dir: ""

# Where purified APKs are written (empty means alongside input)
output_dir: ""

# Minimum free disk space required in the work directory
min_disk_free: %s

# External tool locations
tools:
  # Directory searched for apktool.jar, uber-apk-signer.jar, and jadx
  dir: %s
  # Explicit overrides (empty means resolve from dir, then PATH)
  apktool: ""
  jadx: ""
  signer: ""
  java: java
  # JVM heap for tool invocations, e.g. -Xmx4g (empty uses JVM default)
  java_heap: ""

# Custom signing keystore. Leave empty to sign with the debug keystore.
keystore:
  path: ""
  password: ""
  alias: %s
  key_pass: ""

# Pattern override files, one entry per line, # starts a comment
patterns:
  domains: ""
  classes: ""
  resources: ""
  components: ""

# Patch pass selection and behavior
patch:
  passes:
    - domain_replacement
    - class_removal
    - manifest_cleanup
    - resource_cleanup
  # Keep the decompiled tree after the run for inspection
  keep_work_dir: false
  # Skip patching when the job fell back to a non-rebuildable decompiler
  skip_on_jadx: true

# Run history records
journal:
  enabled: true
  path: %s
  retention_days: %d

# Analysis result cache
cache:
  enabled: true
  path: %s

# Logging configuration
logging:
  # Log level: debug, info, warn, error
  level: info
  # Log file path (empty means use default: $XDG_STATE_HOME/purify/purify.log)
  path: ""
  # Log rotation settings
  rotation:
    max_size: 10MB
    max_age: 30       # days
    max_backups: 5
    daily: true
  # Per-component log levels
  components:
    runner: info
    decompile: info
    patch: info
    sign: info
    pipeline: info
`,
		DefaultDecompiler,
		DefaultMinDiskFree,
		filepath.Join(DataDir(), "tools"),
		DefaultKeystoreAlias,
		filepath.Join(DataDir(), "journal"),
		DefaultRetentionDays,
		filepath.Join(CacheDir(), "analysis"),
	)

	if err := os.WriteFile(configPath, []byte(defaultConfig), 0o644); err != nil {
		return fmt.Errorf("failed to write default config: %w", err)
	}

	return nil
}

// ExpandPath expands ~ in a path to the user's home directory.
func ExpandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, path[1:]), nil
}

// DataDir returns $XDG_DATA_HOME/purify/ for tools and journal files.
func DataDir() string {
	return filepath.Join(xdg.DataHome, "purify")
}

// StateDir returns $XDG_STATE_HOME/purify/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "purify")
}

// CacheDir returns $XDG_CACHE_HOME/purify/ for the analysis cache.
func CacheDir() string {
	return filepath.Join(xdg.CacheHome, "purify")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "purify.log")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func EnsureDataDir() error {
	if err := os.MkdirAll(DataDir(), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	return nil
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}

// EnsureCacheDir creates the cache directory if it doesn't exist.
func EnsureCacheDir() error {
	if err := os.MkdirAll(CacheDir(), 0o755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	return nil
}
