package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jamesainslie/purify/pkg/purify/config"
	"github.com/jamesainslie/purify/pkg/purify/journal"
	"github.com/jamesainslie/purify/pkg/purify/types"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View purification history",
	Long: `View the history of purification batches.

The journal stores a record of every batch purify has run, including
per-APK outcomes and patch statistics.`,
	RunE: runHistory,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show details of a specific batch",
	Long:  `Display detailed information about a specific batch by its ID.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyCleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean up old history entries",
	Long:  `Remove history entries older than the retention period.`,
	RunE:  runHistoryClean,
}

var historyLimit int

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 20, "maximum number of entries to show")

	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyCleanCmd)
	rootCmd.AddCommand(historyCmd)
}

// getJournal returns a journal instance with the configured directory.
func getJournal() (*journal.Journal, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return journal.New(cfg.Journal.Path)
}

// runHistory lists recent batches.
func runHistory(_ *cobra.Command, _ []string) error {
	jn, err := getJournal()
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	entries, err := jn.List(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to list history: %w", err)
	}

	if len(entries) == 0 {
		printInfo("No history entries found.")
		printInfo("Run 'purify <apk>' to purify an APK.")
		return nil
	}

	fmt.Printf("\n%-38s  %-6s  %-9s  %-7s  %-12s\n", "ID", "APKS", "SUCCEEDED", "FAILED", "SIZE")
	fmt.Println(strings.Repeat("-", 84))

	for _, entry := range entries {
		fmt.Printf("%-38s  %-6d  %-9d  %-7d  %-12s\n",
			truncateString(entry.ID, 38),
			entry.Summary.TotalJobs,
			entry.Summary.Succeeded,
			entry.Summary.Failed,
			types.FormatSize(entry.Summary.TotalBytes),
		)
	}

	fmt.Println(strings.Repeat("-", 84))
	fmt.Printf("\nShowing %d entries. Use --limit to see more.\n", len(entries))
	fmt.Println("Use 'purify history show <id>' for details on a specific batch.")

	return nil
}

// runHistoryShow displays details of a specific batch.
func runHistoryShow(_ *cobra.Command, args []string) error {
	id := args[0]

	jn, err := getJournal()
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	entry, err := jn.Get(id)
	if err != nil {
		return fmt.Errorf("failed to get entry: %w", err)
	}

	fmt.Println("\nBatch Details")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("ID:         %s\n", entry.ID)
	fmt.Printf("Timestamp:  %s\n", entry.Timestamp.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("APKs:       %d\n", entry.Summary.TotalJobs)
	fmt.Printf("Succeeded:  %d\n", entry.Summary.Succeeded)
	fmt.Printf("Failed:     %d\n", entry.Summary.Failed)
	fmt.Printf("Total Size: %s\n", types.FormatSize(entry.Summary.TotalBytes))

	for _, job := range entry.Jobs {
		fmt.Println(strings.Repeat("-", 60))
		fmt.Printf("Input:    %s (%s)\n", job.Input, types.FormatSize(job.Size))
		fmt.Printf("State:    %s\n", job.State)
		if job.Output != "" {
			fmt.Printf("Output:   %s\n", job.Output)
		}
		if job.Backup != "" {
			fmt.Printf("Backup:   %s\n", job.Backup)
		}
		if job.Patch != nil {
			fmt.Printf("Patched:  %d domains, %d classes, %d permissions, %d components, %d resources\n",
				job.Patch.DomainsReplaced,
				job.Patch.ClassesRemoved,
				job.Patch.PermissionsRemoved,
				job.Patch.ComponentsRemoved,
				job.Patch.ResourcesRemoved,
			)
		}
		if job.FailureMsg != "" {
			fmt.Printf("Error:    %s\n", job.FailureMsg)
		}
		for _, note := range job.Notes {
			fmt.Printf("Note:     %s\n", note)
		}
	}

	return nil
}

// runHistoryClean removes old history entries.
func runHistoryClean(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	jn, err := journal.New(cfg.Journal.Path)
	if err != nil {
		return fmt.Errorf("failed to initialize journal: %w", err)
	}

	retentionDays := cfg.Journal.RetentionDays
	if retentionDays <= 0 {
		retentionDays = config.DefaultRetentionDays
	}

	printInfo("Cleaning history entries older than %d days...", retentionDays)

	removed, err := jn.Cleanup(retentionDays)
	if err != nil {
		return fmt.Errorf("failed to clean history: %w", err)
	}

	printInfo("History cleanup complete. Removed %d entries.", removed)
	return nil
}

// truncateString truncates a string to maxLen, adding "..." if truncated.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
