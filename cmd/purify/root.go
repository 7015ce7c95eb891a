package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "purify <apk...>",
		Short: "Remove advertisements from Android packages",
		Long: `Purify decompiles Android APK files, strips ad networks out of the
code, manifest, and resources, then rebuilds and optionally re-signs them.

External tools (apktool, uber-apk-signer, optionally jadx) are resolved
from the configured tools directory or PATH; a Java runtime is required.

Examples:
  purify app.apk                      # Purify a single APK
  purify --sign --backup *.apk        # Batch with signing and backups
  purify -o ./clean app.apk           # Write output to a directory
  purify analyze app.apk              # Inspect without modifying
  purify scan app.apk                 # Grade ad footprint
  purify history                      # View past runs`,
		Args:              cobra.MinimumNArgs(1),
		PersistentPreRunE: initializeLogging,
		RunE:              runPurify,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.config/purify/config.yaml)")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "minimal output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug output")

	// Pipeline flags
	rootCmd.Flags().StringP("output", "o", "", "output directory (default: next to each input)")
	rootCmd.Flags().Bool("backup", false, "create a backup of each original APK")
	rootCmd.Flags().Bool("sign", false, "sign the purified APK")
	rootCmd.Flags().Bool("scan-risk", false, "scan the decompiled tree before patching")
	rootCmd.Flags().Bool("force", false, "proceed even when the scan verdict is high")
	rootCmd.Flags().Bool("keep-work-dir", false, "keep the decompiled tree after each job")
	rootCmd.Flags().Bool("no-jadx-fallback", false, "do not fall back to jadx when apktool fails")

	// Per-pass toggles. None set means all passes run.
	rootCmd.Flags().Bool("domain-replacement", false, "replace ad domains in code")
	rootCmd.Flags().Bool("class-removal", false, "remove ad library classes")
	rootCmd.Flags().Bool("manifest-cleanup", false, "strip ad entries from the manifest")
	rootCmd.Flags().Bool("resource-cleanup", false, "delete ad resource files")

	// Bind flags to viper
	_ = viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("output_dir", rootCmd.Flags().Lookup("output"))
	_ = viper.BindPFlag("backup", rootCmd.Flags().Lookup("backup"))
	_ = viper.BindPFlag("sign", rootCmd.Flags().Lookup("sign"))
	_ = viper.BindPFlag("scan_risk", rootCmd.Flags().Lookup("scan-risk"))
	_ = viper.BindPFlag("force", rootCmd.Flags().Lookup("force"))
	_ = viper.BindPFlag("patch.keep_work_dir", rootCmd.Flags().Lookup("keep-work-dir"))
	_ = viper.BindPFlag("no_jadx_fallback", rootCmd.Flags().Lookup("no-jadx-fallback"))
}

// initConfig reads in config file and environment variables.
func initConfig() {
	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")

		// Add config paths in order of precedence
		if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
			viper.AddConfigPath(filepath.Join(xdgConfigHome, "purify"))
		}

		homeDir, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(homeDir, ".config", "purify"))
		}
	}

	// Set environment variable prefix and enable auto env binding
	viper.SetEnvPrefix("PURIFY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Set defaults from config package
	viper.SetDefault("decompiler", config.DefaultDecompiler)
	viper.SetDefault("min_disk_free", config.DefaultMinDiskFree)
	viper.SetDefault("journal.enabled", true)
	viper.SetDefault("journal.retention_days", config.DefaultRetentionDays)
	viper.SetDefault("cache.enabled", true)

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// getVerbose returns true if verbose mode is enabled.
func getVerbose() bool {
	return viper.GetBool("verbose")
}

// getQuiet returns true if quiet mode is enabled.
func getQuiet() bool {
	return viper.GetBool("quiet")
}

// printVerbose prints a message if verbose mode is enabled.
func printVerbose(format string, args ...interface{}) {
	if getVerbose() && !getQuiet() {
		fmt.Fprintf(os.Stderr, "[DEBUG] "+format+"\n", args...)
	}
}

// printInfo prints a message if quiet mode is not enabled.
func printInfo(format string, args ...interface{}) {
	if !getQuiet() {
		fmt.Printf(format+"\n", args...)
	}
}

// printError prints an error message to stderr.
func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}
