// Package types provides core data types for the purify APK pipeline.
// It includes structures for package artifacts, patch results, per-file
// jobs, and batch aggregation, along with parsing and formatting helpers.
package types

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Artifact is an immutable handle to a package file on disk.
// Stages never mutate an artifact in place; every stage that produces
// output yields a new Artifact with its own path.
type Artifact struct {
	// Path is the absolute path to the package file.
	Path string `json:"path"`

	// Size is the file size in bytes at the time the artifact was created.
	Size int64 `json:"size"`
}

// HumanSize returns the artifact size formatted as a human-readable string.
func (a Artifact) HumanSize() string {
	return FormatSize(a.Size)
}

// IsZero reports whether the artifact is the zero value (no path).
func (a Artifact) IsZero() bool {
	return a.Path == ""
}

// RiskLevel is the coarse severity classification produced by a risk
// scanner and consumed as an opaque input by the pipeline coordinator.
type RiskLevel int

// Risk levels from least to most severe.
const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
	RiskCritical
)

// String returns the string representation of the risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "LOW"
	case RiskMedium:
		return "MEDIUM"
	case RiskHigh:
		return "HIGH"
	case RiskCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ErrInvalidRiskLevel is returned when an unrecognized risk level string
// is parsed.
var ErrInvalidRiskLevel = errors.New("invalid risk level")

// ParseRiskLevel parses a string into a RiskLevel. Matching is
// case-insensitive.
func ParseRiskLevel(s string) (RiskLevel, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return RiskLow, nil
	case "MEDIUM":
		return RiskMedium, nil
	case "HIGH":
		return RiskHigh, nil
	case "CRITICAL":
		return RiskCritical, nil
	default:
		return RiskLow, fmt.Errorf("%w: %q", ErrInvalidRiskLevel, s)
	}
}

// Pass identifies one of the independent rewrite passes applied by the
// patch engine. Passes always run in the order they are declared here.
type Pass string

// The four patch passes, in fixed execution order.
const (
	PassDomains   Pass = "domain_replacement"
	PassClasses   Pass = "class_removal"
	PassManifest  Pass = "manifest_cleanup"
	PassResources Pass = "resource_cleanup"
)

// AllPasses returns every pass in execution order.
func AllPasses() []Pass {
	return []Pass{PassDomains, PassClasses, PassManifest, PassResources}
}

// PatchResult aggregates the outcome of one patch engine invocation.
// It is returned by value and never mutated after return.
type PatchResult struct {
	// PassesApplied lists the passes that actually ran, in order.
	PassesApplied []Pass `json:"passes_applied"`

	// DomainsReplaced counts one per (domain, file) pair in which a known
	// ad domain was substituted, not per individual occurrence.
	DomainsReplaced int `json:"domains_replaced"`

	// ClassesRemoved counts removed class directories and files, one per
	// deleted entity regardless of how many sub-files it contained.
	ClassesRemoved int `json:"classes_removed"`

	// PermissionsRemoved counts uses-permission entries removed from the
	// manifest document.
	PermissionsRemoved int `json:"permissions_removed"`

	// ComponentsRemoved counts activity/service/receiver declarations
	// removed from the manifest document.
	ComponentsRemoved int `json:"components_removed"`

	// ResourcesRemoved counts deleted resource files.
	ResourcesRemoved int `json:"resources_removed"`

	// Errors holds non-fatal errors encountered by individual passes.
	Errors []string `json:"errors,omitempty"`
}

// JobState is the pipeline state of a single job. A job moves forward
// through the optional stages in declaration order and can reach Failed
// from any non-terminal state, or Cancelled between stages.
type JobState string

// Job states.
const (
	StatePending     JobState = "pending"
	StateBackingUp   JobState = "backing_up"
	StateAnalyzing   JobState = "analyzing"
	StateDecompiling JobState = "decompiling"
	StateScanning    JobState = "scanning"
	StatePatching    JobState = "patching"
	StateRecompiling JobState = "recompiling"
	StateSigning     JobState = "signing"
	StateDone        JobState = "done"
	StateFailed      JobState = "failed"
	StateCancelled   JobState = "cancelled"
)

// Terminal reports whether the state is terminal.
func (s JobState) Terminal() bool {
	switch s {
	case StateDone, StateFailed, StateCancelled:
		return true
	default:
		return false
	}
}

// Analysis summarizes what was learned about a package before patching.
type Analysis struct {
	// Package is the application package identifier from the manifest.
	Package string `json:"package,omitempty"`

	// VersionName is the human-readable version from the manifest.
	VersionName string `json:"version_name,omitempty"`

	// Permissions lists declared uses-permission names.
	Permissions []string `json:"permissions,omitempty"`

	// Activities, Services, and Receivers list declared component names.
	Activities []string `json:"activities,omitempty"`
	Services   []string `json:"services,omitempty"`
	Receivers  []string `json:"receivers,omitempty"`

	// DexFiles counts the compiled code containers found in the package.
	DexFiles int `json:"dex_files,omitempty"`

	// ResourceCount is the number of res/ entries in the package.
	ResourceCount int `json:"resource_count"`

	// CodeFiles is the number of decompiled code units inspected.
	CodeFiles int `json:"code_files"`

	// AdRelatedFiles lists code units whose path matches a known
	// ad-library pattern.
	AdRelatedFiles []string `json:"ad_related_files,omitempty"`
}

// Job tracks one input artifact's run through the pipeline.
type Job struct {
	// Index is the ordinal position of the job within its batch.
	Index int `json:"index"`

	// Input is the package artifact being processed.
	Input Artifact `json:"input"`

	// State is the job's current (or terminal) pipeline state.
	State JobState `json:"state"`

	// Decompiler names the tool that produced the project tree, if any.
	Decompiler string `json:"decompiler,omitempty"`

	// Analysis is the pre-patch inspection snapshot, if analysis ran.
	Analysis *Analysis `json:"analysis,omitempty"`

	// Patch is the patch engine result, if patching ran.
	Patch *PatchResult `json:"patch,omitempty"`

	// Risk is the scan verdict, if scanning ran.
	Risk RiskLevel `json:"risk"`

	// Scanned indicates the Risk field carries a real verdict.
	Scanned bool `json:"scanned"`

	// Output is the produced artifact, if the pipeline generated one.
	Output Artifact `json:"output"`

	// Backup is the pre-run copy of the input, if backup was requested.
	Backup Artifact `json:"backup"`

	// Notes carries non-fatal observations, such as signing having been
	// skipped or output generation not being possible.
	Notes []string `json:"notes,omitempty"`

	// Err is the terminal error text for failed jobs.
	Err string `json:"error,omitempty"`

	// Elapsed is the wall-clock duration of the job.
	Elapsed time.Duration `json:"elapsed"`
}

// Succeeded reports whether the job reached Done.
func (j *Job) Succeeded() bool {
	return j.State == StateDone
}

// BatchResult aggregates the outcome of one coordinator run.
// It is read by the caller only after the batch finishes or is cancelled.
type BatchResult struct {
	// Total is the number of jobs the batch was asked to process.
	Total int `json:"total"`

	// Succeeded and Failed count terminal job outcomes. Jobs that were
	// never started due to cancellation count toward neither.
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`

	// Cancelled indicates the batch stopped before processing every job.
	Cancelled bool `json:"cancelled"`

	// Jobs holds every job in input order, including unstarted ones.
	Jobs []*Job `json:"jobs"`

	// Elapsed is the wall-clock duration of the whole batch.
	Elapsed time.Duration `json:"elapsed"`
}

// FormatSize converts a size in bytes to a human-readable string using
// binary (IEC) units for consistency with common filesystem tools.
func FormatSize(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	return humanize.IBytes(uint64(bytes))
}
