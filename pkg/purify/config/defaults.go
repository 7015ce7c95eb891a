// Package config provides configuration management for the purify pipeline.
package config

// Default configuration values for purify.
const (
	// DefaultDecompiler is the decompiler used when none is specified.
	DefaultDecompiler = "apktool"

	// DefaultConfigDir is the default configuration directory path.
	DefaultConfigDir = "~/.config/purify"

	// DefaultRetentionDays is the default number of days to retain run records.
	DefaultRetentionDays = 30

	// DefaultMinDiskFree is the minimum free disk space required in the
	// work directory before a job starts.
	DefaultMinDiskFree = "2GB"

	// DefaultKeystoreAlias is the keystore alias used when signing with a
	// custom keystore and no alias is configured.
	DefaultKeystoreAlias = "purify"
)

// DefaultPasses lists the patch passes applied when none are selected
// explicitly, in execution order.
var DefaultPasses = []string{
	"domain_replacement",
	"class_removal",
	"manifest_cleanup",
	"resource_cleanup",
}
