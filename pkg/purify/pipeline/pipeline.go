// Package pipeline coordinates the purification stages for a batch of
// APK files: backup, analysis, decompilation, risk scanning, patching,
// recompilation, and signing. Jobs run strictly sequentially and each
// job moves through a fixed state machine, failing in place without
// aborting the rest of the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jamesainslie/purify/pkg/purify/analyze"
	"github.com/jamesainslie/purify/pkg/purify/backup"
	"github.com/jamesainslie/purify/pkg/purify/decompile"
	"github.com/jamesainslie/purify/pkg/purify/journal"
	"github.com/jamesainslie/purify/pkg/purify/logging"
	"github.com/jamesainslie/purify/pkg/purify/patch"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/scanx"
	"github.com/jamesainslie/purify/pkg/purify/sign"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// ErrRiskDetected is returned when a scan verdict at or above HIGH
// blocks a job and force mode is off.
var ErrRiskDetected = errors.New("risk detected")

// Event describes a job state transition reported through the
// progress callback.
type Event struct {
	JobIndex int
	Total    int
	State    types.JobState
	Message  string
}

// ProgressFunc receives pipeline progress events. It is called from
// the coordinator goroutine and must not block for long.
type ProgressFunc func(Event)

// Decompiler produces a project tree from a package file.
type Decompiler interface {
	Name() string
	Rebuildable() bool
	Decompile(ctx context.Context, path, outDir string) error
}

// Rebuilder extends Decompiler with the ability to reassemble a
// project tree into a package.
type Rebuilder interface {
	Decompiler
	Build(ctx context.Context, projectDir, outAPK string) error
}

// Signer signs a built artifact into the given output path.
type Signer interface {
	Sign(ctx context.Context, in types.Artifact, out string, creds *sign.Credentials) (types.Artifact, error)
}

// Engine applies patch passes to a decompiled project tree.
type Engine interface {
	Patch(ctx context.Context, projectDir string, passes []types.Pass) *types.PatchResult
}

// AnalysisCache stores analysis results keyed by package identity.
type AnalysisCache interface {
	Get(path string) (*types.Analysis, error)
	Put(path string, analysis *types.Analysis) error
}

// Options configures a batch run.
type Options struct {
	// Passes selects the patch passes to run. Empty means all passes.
	Passes []types.Pass

	// Sign enables signing of rebuilt packages.
	Sign bool

	// Backup copies each input to BackupDir before processing.
	Backup bool

	// Scan runs the risk scanner on the decompiled tree.
	Scan bool

	// Force lets jobs proceed past a HIGH or CRITICAL scan verdict.
	Force bool

	// AnalyzeOnly stops after analysis. No patching, rebuild, or signing.
	AnalyzeOnly bool

	// PreferJadx selects the secondary decompiler for analyze-only jobs.
	PreferJadx bool

	// JadxFallback retries a failed primary decompile with the secondary
	// decompiler. The job then completes analysis-only with no output.
	JadxFallback bool

	// OutputDir receives produced packages. Empty means next to the input.
	OutputDir string

	// BackupDir receives input copies when Backup is set.
	BackupDir string

	// TempDir hosts per-job work directories.
	TempDir string

	// KeepWorkDir leaves the decompiled tree in place after the job.
	KeepWorkDir bool

	// MinDiskFree is the required free space in TempDir before starting
	// a job. Zero disables the check.
	MinDiskFree uint64

	// Credentials are the signing credentials. Nil means debug signing.
	Credentials *sign.Credentials
}

// Deps carries the stage implementations the coordinator drives.
type Deps struct {
	// Primary is the rebuild-capable decompiler. Required.
	Primary Rebuilder

	// Secondary is the analysis-only decompiler. Optional.
	Secondary Decompiler

	// Engine is the patch engine. Built from Patterns when nil.
	Engine Engine

	// Signer is consulted when Options.Sign is set.
	Signer Signer

	// Scanner is consulted when Options.Scan is set.
	Scanner scanx.Scanner

	// Patterns drive analysis and patching. Defaults when nil.
	Patterns *patterns.Set

	// Cache stores analysis snapshots between runs. Optional.
	Cache AnalysisCache

	// Journal records each finished batch. Optional.
	Journal *journal.Journal

	// Progress receives state transition events. Optional.
	Progress ProgressFunc
}

// Coordinator runs batches of purification jobs.
type Coordinator struct {
	opts      Options
	primary   Rebuilder
	secondary Decompiler
	engine    Engine
	signer    Signer
	scanner   scanx.Scanner
	pats      *patterns.Set
	cache     AnalysisCache
	journal   *journal.Journal
	progress  ProgressFunc
	logger    *logging.Logger
}

// NewCoordinator creates a coordinator from options and dependencies.
func NewCoordinator(opts Options, deps Deps) (*Coordinator, error) {
	if deps.Primary == nil {
		return nil, errors.New("pipeline requires a primary decompiler")
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	pats := deps.Patterns
	if pats == nil {
		pats = patterns.Default()
		if err := pats.Compile(); err != nil {
			return nil, err
		}
	}
	engine := deps.Engine
	if engine == nil {
		engine = patch.NewEngine(pats)
	}
	return &Coordinator{
		opts:      opts,
		primary:   deps.Primary,
		secondary: deps.Secondary,
		engine:    engine,
		signer:    deps.Signer,
		scanner:   deps.Scanner,
		pats:      pats,
		cache:     deps.Cache,
		journal:   deps.Journal,
		progress:  deps.Progress,
		logger:    logging.Get("pipeline"),
	}, nil
}

// Run processes the given artifacts sequentially and returns the batch
// result. Cancellation via ctx stops between stages; jobs that never
// started are marked cancelled.
func (c *Coordinator) Run(ctx context.Context, files []types.Artifact) *types.BatchResult {
	start := time.Now()

	batch := &types.BatchResult{Total: len(files)}
	for i, f := range files {
		batch.Jobs = append(batch.Jobs, &types.Job{
			Index: i,
			Input: f,
			State: types.StatePending,
		})
	}

	for _, job := range batch.Jobs {
		if ctx.Err() != nil {
			job.State = types.StateCancelled
			batch.Cancelled = true
			continue
		}

		c.runJob(ctx, job, len(files))

		switch job.State {
		case types.StateDone:
			batch.Succeeded++
		case types.StateFailed:
			batch.Failed++
		case types.StateCancelled:
			batch.Cancelled = true
		}
	}

	batch.Elapsed = time.Since(start)
	c.record(batch)
	return batch
}

// runJob drives one artifact through the state machine. On return the
// job is in a terminal state.
func (c *Coordinator) runJob(ctx context.Context, job *types.Job, total int) {
	start := time.Now()
	defer func() { job.Elapsed = time.Since(start) }()

	c.logger.Info("starting job", "index", job.Index, "input", job.Input.Path, "size", job.Input.HumanSize())

	if c.opts.MinDiskFree > 0 {
		if err := decompile.EnsureDiskSpace(c.opts.TempDir, c.opts.MinDiskFree); err != nil {
			c.fail(job, total, err)
			return
		}
	}

	if c.opts.Backup {
		c.setState(job, total, types.StateBackingUp, "")
		art, err := backup.Create(job.Input.Path, c.opts.BackupDir)
		if err != nil {
			c.fail(job, total, fmt.Errorf("backup: %w", err))
			return
		}
		job.Backup = art
	}
	if c.cancelled(ctx, job, total) {
		return
	}

	c.setState(job, total, types.StateAnalyzing, "")
	analysis := c.cachedAnalysis(job.Input.Path)
	if analysis == nil {
		var err error
		analysis, err = analyze.InspectAPK(job.Input.Path)
		if err != nil {
			c.fail(job, total, fmt.Errorf("analyze: %w", err))
			return
		}
	}
	job.Analysis = analysis
	if c.cancelled(ctx, job, total) {
		return
	}

	c.setState(job, total, types.StateDecompiling, "")
	workDir := c.workDir(job.Input.Path)
	dec, err := c.decompileJob(ctx, job, workDir)
	if err != nil {
		c.fail(job, total, err)
		return
	}
	job.Decompiler = dec.Name()
	if !c.opts.KeepWorkDir {
		defer os.RemoveAll(workDir)
	}

	if tree, aerr := analyze.AnalyzeTree(workDir, c.pats); aerr == nil {
		mergeAnalysis(analysis, tree)
		c.storeAnalysis(job.Input.Path, analysis)
	} else {
		c.logger.Warn("tree analysis failed", "input", job.Input.Path, "error", aerr)
	}
	if c.cancelled(ctx, job, total) {
		return
	}

	if c.opts.Scan && c.scanner != nil {
		c.setState(job, total, types.StateScanning, "")
		risk, serr := c.scanner.Scan(ctx, workDir)
		if serr != nil {
			c.fail(job, total, fmt.Errorf("scan: %w", serr))
			return
		}
		job.Risk = risk
		job.Scanned = true
		if risk >= types.RiskHigh && !c.opts.Force {
			c.fail(job, total, fmt.Errorf("%w: scan verdict %s", ErrRiskDetected, risk))
			return
		}
		if c.cancelled(ctx, job, total) {
			return
		}
	}

	if c.opts.AnalyzeOnly {
		c.setState(job, total, types.StateDone, "analysis complete")
		return
	}

	if !dec.Rebuildable() {
		job.Notes = append(job.Notes, fmt.Sprintf("output skipped: %s cannot rebuild packages", dec.Name()))
		c.setState(job, total, types.StateDone, "analysis-only, no output")
		return
	}

	c.setState(job, total, types.StatePatching, "")
	requested := c.opts.Passes
	if len(requested) == 0 {
		requested = types.AllPasses()
	}
	result := c.engine.Patch(ctx, workDir, requested)
	job.Patch = result
	if len(result.PassesApplied) < len(requested) {
		msg := "patching incomplete"
		if len(result.Errors) > 0 {
			msg = result.Errors[len(result.Errors)-1]
		}
		c.fail(job, total, fmt.Errorf("patch: %s", msg))
		return
	}
	if c.cancelled(ctx, job, total) {
		return
	}

	c.setState(job, total, types.StateRecompiling, "")
	outPath := c.outputPath(job.Input.Path)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		c.fail(job, total, fmt.Errorf("recompile: %w", err))
		return
	}
	if err := c.primary.Build(ctx, workDir, outPath); err != nil {
		c.fail(job, total, fmt.Errorf("recompile: %w", err))
		return
	}
	built, err := artifactAt(outPath)
	if err != nil {
		c.fail(job, total, fmt.Errorf("recompile: %w", err))
		return
	}
	job.Output = built
	if c.cancelled(ctx, job, total) {
		return
	}

	if c.opts.Sign && c.signer != nil {
		c.setState(job, total, types.StateSigning, "")
		signedPath := signedOutputPath(outPath)
		signed, serr := c.signer.Sign(ctx, built, signedPath, c.opts.Credentials)
		if serr != nil {
			job.Notes = append(job.Notes, fmt.Sprintf("signing failed, output is unsigned: %v", serr))
			c.logger.Warn("signing failed", "input", job.Input.Path, "error", serr)
		} else {
			os.Remove(built.Path)
			job.Output = signed
		}
	}

	c.setState(job, total, types.StateDone, "")
	c.logger.Info("job finished", "index", job.Index, "output", job.Output.Path, "elapsed", job.Elapsed)
}

// decompileJob selects a decompiler for the job and runs it, retrying
// with the secondary decompiler when fallback is enabled.
func (c *Coordinator) decompileJob(ctx context.Context, job *types.Job, workDir string) (Decompiler, error) {
	var dec Decompiler = c.primary
	if c.opts.AnalyzeOnly && c.opts.PreferJadx && c.secondary != nil {
		dec = c.secondary
	}

	err := dec.Decompile(ctx, job.Input.Path, workDir)
	if err == nil {
		return dec, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	// Analyze-only jobs preferring jadx fall back to the primary tool.
	if dec != c.primary {
		c.logger.Warn("secondary decompile failed, retrying with primary", "input", job.Input.Path, "error", err)
		if perr := c.primary.Decompile(ctx, job.Input.Path, workDir); perr == nil {
			return c.primary, nil
		}
		return nil, err
	}

	if c.opts.JadxFallback && c.secondary != nil {
		c.logger.Warn("primary decompile failed, retrying with secondary", "input", job.Input.Path, "error", err)
		if serr := c.secondary.Decompile(ctx, job.Input.Path, workDir); serr == nil {
			return c.secondary, nil
		}
	}
	return nil, fmt.Errorf("decompile: %w", err)
}

// cachedAnalysis returns a cached analysis for the path, or nil.
func (c *Coordinator) cachedAnalysis(path string) *types.Analysis {
	if c.cache == nil {
		return nil
	}
	analysis, err := c.cache.Get(path)
	if err != nil {
		return nil
	}
	c.logger.Debug("analysis cache hit", "input", path)
	return analysis
}

func (c *Coordinator) storeAnalysis(path string, analysis *types.Analysis) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Put(path, analysis); err != nil {
		c.logger.Warn("analysis cache write failed", "input", path, "error", err)
	}
}

// workDir returns the job's work directory, cleared of any previous
// contents.
func (c *Coordinator) workDir(apkPath string) string {
	dir := filepath.Join(c.opts.TempDir, stem(apkPath)+"_decompiled")
	os.RemoveAll(dir)
	return dir
}

// outputPath returns the destination for the rebuilt package.
func (c *Coordinator) outputPath(apkPath string) string {
	dir := c.opts.OutputDir
	if dir == "" {
		dir = filepath.Dir(apkPath)
	}
	return filepath.Join(dir, stem(apkPath)+"_purified.apk")
}

func signedOutputPath(outPath string) string {
	return filepath.Join(filepath.Dir(outPath), stem(outPath)+"_signed.apk")
}

func (c *Coordinator) setState(job *types.Job, total int, state types.JobState, msg string) {
	job.State = state
	c.emit(Event{JobIndex: job.Index, Total: total, State: state, Message: msg})
}

func (c *Coordinator) fail(job *types.Job, total int, err error) {
	job.State = types.StateFailed
	job.Err = err.Error()
	c.logger.Error("job failed", "index", job.Index, "input", job.Input.Path, "error", err)
	c.emit(Event{JobIndex: job.Index, Total: total, State: types.StateFailed, Message: err.Error()})
}

// cancelled marks the job cancelled when the context is done.
func (c *Coordinator) cancelled(ctx context.Context, job *types.Job, total int) bool {
	if ctx.Err() == nil {
		return false
	}
	job.State = types.StateCancelled
	c.emit(Event{JobIndex: job.Index, Total: total, State: types.StateCancelled, Message: ctx.Err().Error()})
	return true
}

func (c *Coordinator) emit(ev Event) {
	if c.progress != nil {
		c.progress(ev)
	}
}

// record writes the batch to the journal when one is configured.
func (c *Coordinator) record(batch *types.BatchResult) {
	if c.journal == nil {
		return
	}
	records := make([]journal.JobRecord, 0, len(batch.Jobs))
	for _, job := range batch.Jobs {
		rec := journal.JobRecord{
			Input:      job.Input.Path,
			Output:     job.Output.Path,
			Backup:     job.Backup.Path,
			State:      job.State,
			Size:       job.Input.Size,
			Duration:   job.Elapsed,
			Patch:      job.Patch,
			Notes:      job.Notes,
			FailureMsg: job.Err,
		}
		if job.Scanned {
			rec.Risk = job.Risk
		}
		rec.Signed = job.Output.Path != "" && strings.HasSuffix(stem(job.Output.Path), "_signed")
		records = append(records, rec)
	}
	if _, err := c.journal.Log(records); err != nil {
		c.logger.Warn("journal write failed", "error", err)
	}
}

// mergeAnalysis overlays tree-derived fields onto the package-level
// analysis without discarding what APK inspection found.
func mergeAnalysis(base, tree *types.Analysis) {
	base.Package = tree.Package
	base.VersionName = tree.VersionName
	base.Permissions = tree.Permissions
	base.Activities = tree.Activities
	base.Services = tree.Services
	base.Receivers = tree.Receivers
	base.CodeFiles = tree.CodeFiles
	base.AdRelatedFiles = tree.AdRelatedFiles
	if base.ResourceCount == 0 {
		base.ResourceCount = tree.ResourceCount
	}
}

func artifactAt(path string) (types.Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return types.Artifact{}, err
	}
	return types.Artifact{Path: path, Size: info.Size()}, nil
}

func stem(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
