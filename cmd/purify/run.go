package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesainslie/purify/pkg/purify/analyze"
	"github.com/jamesainslie/purify/pkg/purify/cache"
	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/decompile"
	"github.com/jamesainslie/purify/pkg/purify/journal"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/pipeline"
	"github.com/jamesainslie/purify/pkg/purify/scanx"
	"github.com/jamesainslie/purify/pkg/purify/sign"
	"github.com/jamesainslie/purify/pkg/purify/tools"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

// runPurify is the root command handler. It validates the inputs, wires
// the pipeline from configuration, and runs the batch.
func runPurify(cmd *cobra.Command, args []string) error {
	files := make([]types.Artifact, 0, len(args))
	for _, arg := range args {
		expanded, err := config.ExpandPath(arg)
		if err != nil {
			return fmt.Errorf("failed to expand path: %w", err)
		}
		art, err := analyze.ValidArtifact(expanded)
		if err != nil {
			return fmt.Errorf("invalid APK %s: %w", arg, err)
		}
		files = append(files, art)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	tc, err := tools.Resolve(cfg.Tools)
	if err != nil {
		return fmt.Errorf("tool resolution failed: %w (run 'purify check' for details)", err)
	}

	pats, err := patterns.Load(patterns.Overrides{
		Domains:    cfg.Patterns.Domains,
		Classes:    cfg.Patterns.Classes,
		Resources:  cfg.Patterns.Resources,
		Components: cfg.Patterns.Components,
	})
	if err != nil {
		return fmt.Errorf("failed to load patterns: %w", err)
	}

	opts, err := buildOptions(cmd, cfg)
	if err != nil {
		return err
	}

	deps := pipeline.Deps{
		Primary:  decompile.NewApktool(tc),
		Patterns: pats,
		Progress: progressPrinter(),
	}

	if tc.Jadx != "" {
		jadx, jerr := decompile.NewJadx(tc)
		if jerr == nil {
			deps.Secondary = jadx
		}
	}
	if opts.Sign {
		deps.Signer = sign.NewSigner(tc)
	}
	if opts.Scan {
		deps.Scanner = scanx.Footprint(pats)
	}

	if cfg.Journal.Enabled {
		jn, jerr := journal.New(cfg.Journal.Path)
		if jerr != nil {
			return fmt.Errorf("failed to initialize journal: %w", jerr)
		}
		if jerr := jn.EnsureDir(); jerr != nil {
			return fmt.Errorf("failed to create journal directory: %w", jerr)
		}
		deps.Journal = jn
	}

	if cfg.Cache.Enabled {
		store, cerr := cache.Open(cfg.Cache.Path)
		if cerr != nil {
			printVerbose("Analysis cache unavailable: %v", cerr)
		} else {
			defer store.Close()
			deps.Cache = store
		}
	}

	co, err := pipeline.NewCoordinator(opts, deps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		<-sigChan
		printInfo("\nInterrupted, finishing current stage...")
		cancel()
	}()

	batch := co.Run(ctx, files)
	printBatchSummary(batch)

	if batch.Failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", batch.Failed, batch.Total)
	}
	return nil
}

// buildOptions assembles pipeline options from flags and config.
func buildOptions(cmd *cobra.Command, cfg *config.Config) (pipeline.Options, error) {
	opts := pipeline.Options{
		Passes:       selectedPasses(cmd, cfg),
		Sign:         viper.GetBool("sign"),
		Backup:       viper.GetBool("backup"),
		Scan:         viper.GetBool("scan_risk"),
		Force:        viper.GetBool("force"),
		JadxFallback: !viper.GetBool("no_jadx_fallback"),
		OutputDir:    viper.GetString("output_dir"),
		BackupDir:    cfg.BackupDir,
		TempDir:      cfg.TempDir,
		KeepWorkDir:  viper.GetBool("patch.keep_work_dir"),
	}

	if cfg.MinDiskFree != "" {
		free, err := humanize.ParseBytes(cfg.MinDiskFree)
		if err != nil {
			return opts, fmt.Errorf("invalid min_disk_free %q: %w", cfg.MinDiskFree, err)
		}
		opts.MinDiskFree = free
	}

	if cfg.Keystore.Complete() {
		opts.Credentials = &sign.Credentials{
			KeystorePath:     cfg.Keystore.Path,
			KeystorePassword: cfg.Keystore.Password,
			KeyAlias:         cfg.Keystore.Alias,
			KeyPassword:      cfg.Keystore.KeyPass,
		}
	}

	return opts, nil
}

// selectedPasses returns the passes chosen by flags, then config, then
// nil for all passes.
func selectedPasses(cmd *cobra.Command, cfg *config.Config) []types.Pass {
	toggles := []struct {
		flag string
		pass types.Pass
	}{
		{"domain-replacement", types.PassDomains},
		{"class-removal", types.PassClasses},
		{"manifest-cleanup", types.PassManifest},
		{"resource-cleanup", types.PassResources},
	}

	var passes []types.Pass
	for _, tg := range toggles {
		if on, _ := cmd.Flags().GetBool(tg.flag); on {
			passes = append(passes, tg.pass)
		}
	}
	if len(passes) > 0 {
		return passes
	}

	for _, name := range cfg.Patch.Passes {
		for _, known := range types.AllPasses() {
			if types.Pass(name) == known {
				passes = append(passes, known)
				break
			}
		}
	}
	if len(passes) == len(types.AllPasses()) {
		return nil
	}
	return passes
}

// progressPrinter reports state transitions on the terminal.
func progressPrinter() pipeline.ProgressFunc {
	return func(ev pipeline.Event) {
		label := stateLabel(ev.State)
		if label == "" {
			return
		}
		if ev.Message != "" {
			printVerbose("[%d/%d] %s: %s", ev.JobIndex+1, ev.Total, label, ev.Message)
		} else {
			printInfo("[%d/%d] %s...", ev.JobIndex+1, ev.Total, label)
		}
	}
}

func stateLabel(state types.JobState) string {
	switch state {
	case types.StateBackingUp:
		return "Backing up"
	case types.StateAnalyzing:
		return "Analyzing"
	case types.StateDecompiling:
		return "Decompiling"
	case types.StateScanning:
		return "Scanning"
	case types.StatePatching:
		return "Removing advertisements"
	case types.StateRecompiling:
		return "Recompiling"
	case types.StateSigning:
		return "Signing"
	default:
		return ""
	}
}

// printBatchSummary reports per-job and aggregate results.
func printBatchSummary(batch *types.BatchResult) {
	printInfo("")
	for _, job := range batch.Jobs {
		switch job.State {
		case types.StateDone:
			printInfo("%s: done", job.Input.Path)
			if job.Patch != nil {
				printInfo("  - Domains replaced:    %d", job.Patch.DomainsReplaced)
				printInfo("  - Classes removed:     %d", job.Patch.ClassesRemoved)
				printInfo("  - Permissions removed: %d", job.Patch.PermissionsRemoved)
				printInfo("  - Components removed:  %d", job.Patch.ComponentsRemoved)
				printInfo("  - Resources removed:   %d", job.Patch.ResourcesRemoved)
			}
			if !job.Output.IsZero() {
				printInfo("  Output: %s (%s)", job.Output.Path, job.Output.HumanSize())
			}
			if !job.Backup.IsZero() {
				printInfo("  Backup: %s", job.Backup.Path)
			}
			for _, note := range job.Notes {
				printInfo("  Note: %s", note)
			}
		case types.StateFailed:
			printError("%s: %s", job.Input.Path, job.Err)
		case types.StateCancelled:
			printInfo("%s: cancelled", job.Input.Path)
		}
	}

	printInfo("")
	printInfo("Processed %d APKs in %s: %d succeeded, %d failed",
		batch.Total, batch.Elapsed.Round(time.Millisecond), batch.Succeeded, batch.Failed)
}
