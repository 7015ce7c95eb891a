package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/purify/pkg/purify/analyze"
	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/decompile"
	"github.com/jamesainslie/purify/pkg/purify/patterns"
	"github.com/jamesainslie/purify/pkg/purify/scanx"
	"github.com/jamesainslie/purify/pkg/purify/tools"
)

var scanCmd = &cobra.Command{
	Use:   "scan <apk>",
	Short: "Grade the ad footprint of an APK",
	Long: `Decompile an APK and grade how much known ad-library code it carries.
The verdict is LOW, MEDIUM, or HIGH; CRITICAL is reserved for external
scoring engines.`,
	Args: cobra.ExactArgs(1),
	RunE: runRiskScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

// runRiskScan decompiles one APK and reports the footprint verdict.
func runRiskScan(_ *cobra.Command, args []string) error {
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

	ctx, cancel := signalContext()
	defer cancel()

	workDir := filepath.Join(cfg.TempDir, strings.TrimSuffix(filepath.Base(art.Path), ".apk")+"_decompiled")
	os.RemoveAll(workDir)
	defer os.RemoveAll(workDir)

	printInfo("Decompiling %s...", art.Path)
	apktool := decompile.NewApktool(tc)
	if err := apktool.Decompile(ctx, art.Path, workDir); err != nil {
		return fmt.Errorf("decompile: %w", err)
	}

	printInfo("Scanning decompiled tree...")
	level, err := scanx.Footprint(pats).Scan(ctx, workDir)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}

	analysis, err := analyze.AnalyzeTree(workDir, pats)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	fmt.Printf("\nRisk Level: %s\n", level)
	fmt.Printf("Ad-related code files: %d of %d\n", len(analysis.AdRelatedFiles), analysis.CodeFiles)

	flagged := flaggedPermissions(analysis.Permissions, pats)
	fmt.Printf("Ad-related permissions: %d\n", len(flagged))
	for _, perm := range flagged {
		fmt.Printf("  %s\n", perm)
	}

	return nil
}

// flaggedPermissions returns the declared permissions matching the
// pattern set.
func flaggedPermissions(perms []string, pats *patterns.Set) []string {
	var out []string
	for _, p := range perms {
		if pats.MatchPermission(p) {
			out = append(out, p)
		}
	}
	return out
}
