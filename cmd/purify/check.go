package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/tools"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check external tool availability",
	Long: `Probe the external tools purify depends on (Java, apktool,
uber-apk-signer, jadx) and report their paths and versions.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

// runCheck probes every tool and reports the results.
func runCheck(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	statuses := tools.Check(ctx, cfg.Tools)

	fmt.Printf("\n%-18s  %-9s  %s\n", "TOOL", "STATUS", "DETAILS")
	fmt.Println(strings.Repeat("-", 72))

	missing := 0
	for _, st := range statuses {
		status := "ok"
		details := st.Path
		if st.Version != "" {
			details = fmt.Sprintf("%s (%s)", st.Path, st.Version)
		}
		if !st.Available {
			status = "missing"
			details = "not found in tools directory or PATH"
			if st.Name != "jadx" {
				missing++
			}
		}
		fmt.Printf("%-18s  %-9s  %s\n", st.Name, status, details)
	}
	fmt.Println(strings.Repeat("-", 72))

	if missing > 0 {
		return fmt.Errorf("%d required tools missing (tools dir: %s)", missing, cfg.Tools.Dir)
	}
	printInfo("\nAll required tools available. jadx is optional.")
	return nil
}
