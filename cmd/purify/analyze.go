package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/purify/pkg/purify/analyze"
	"github.com/jamesainslie/purify/pkg/purify/cache"
	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/decompile"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/pipeline"
	"github.com/jamesainslie/purify/pkg/purify/tools"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <apk>",
	Short: "Analyze an APK without modifying it",
	Long: `Decompile an APK and report its contents: package identity, declared
components and permissions, DEX and resource counts, and any code
belonging to known ad libraries. The input file is never modified.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

func init() {
	analyzeCmd.Flags().Bool("prefer-jadx", false, "decompile with jadx instead of apktool")
	analyzeCmd.Flags().Bool("no-cache", false, "bypass the analysis cache")
	rootCmd.AddCommand(analyzeCmd)
}

// runAnalyze inspects a single APK through the analyze-only pipeline.
func runAnalyze(cmd *cobra.Command, args []string) error {
	art, err := analyze.ValidArtifact(args[0])
	if err != nil {
		return fmt.Errorf("invalid APK %s: %w", args[0], err)
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

	preferJadx, _ := cmd.Flags().GetBool("prefer-jadx")
	noCache, _ := cmd.Flags().GetBool("no-cache")

	opts := pipeline.Options{
		AnalyzeOnly: true,
		PreferJadx:  preferJadx,
		TempDir:     cfg.TempDir,
	}
	deps := pipeline.Deps{
		Primary:  decompile.NewApktool(tc),
		Patterns: pats,
	}
	if tc.Jadx != "" {
		if jadx, jerr := decompile.NewJadx(tc); jerr == nil {
			deps.Secondary = jadx
		}
	}
	if cfg.Cache.Enabled && !noCache {
		if store, cerr := cache.Open(cfg.Cache.Path); cerr == nil {
			defer store.Close()
			deps.Cache = store
		}
	}

	co, err := pipeline.NewCoordinator(opts, deps)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	printInfo("Analyzing APK: %s", art.Path)

	batch := co.Run(ctx, []types.Artifact{art})
	job := batch.Jobs[0]
	if job.State != types.StateDone {
		return fmt.Errorf("analysis failed: %s", job.Err)
	}

	printAnalysis(art, job.Analysis)
	return nil
}

// printAnalysis renders an analysis snapshot on the terminal.
func printAnalysis(art types.Artifact, analysis *types.Analysis) {
	fmt.Println("\nAPK Analysis Results:")
	fmt.Printf("File size:   %s (%d bytes)\n", art.HumanSize(), art.Size)
	fmt.Printf("DEX files:   %d\n", analysis.DexFiles)
	fmt.Printf("Resources:   %d\n", analysis.ResourceCount)

	if analysis.Package != "" {
		fmt.Printf("Package:     %s\n", analysis.Package)
	}
	if analysis.VersionName != "" {
		fmt.Printf("Version:     %s\n", analysis.VersionName)
	}
	fmt.Printf("Permissions: %d\n", len(analysis.Permissions))
	fmt.Printf("Activities:  %d\n", len(analysis.Activities))
	fmt.Printf("Services:    %d\n", len(analysis.Services))
	fmt.Printf("Receivers:   %d\n", len(analysis.Receivers))
	fmt.Printf("Code files:  %d\n", analysis.CodeFiles)

	if len(analysis.AdRelatedFiles) > 0 {
		fmt.Printf("\nAd-related code (%d files):\n", len(analysis.AdRelatedFiles))
		limit := 20
		if len(analysis.AdRelatedFiles) < limit {
			limit = len(analysis.AdRelatedFiles)
		}
		for _, f := range analysis.AdRelatedFiles[:limit] {
			fmt.Printf("  %s\n", f)
		}
		if rest := len(analysis.AdRelatedFiles) - limit; rest > 0 {
			fmt.Printf("  ... and %d more\n", rest)
		}
	} else {
		fmt.Println("\nNo known ad-library code found.")
	}
}

// signalContext returns a context cancelled by SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()
	return ctx, cancel
}
