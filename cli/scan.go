package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metaphotor/metaphotor/internal/scan"
)

var (
	scanIncrement bool
	scanOwner     uint
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Catalog the media folder",
	Long: `Without flags the whole media folder is scanned and its public catalog
entries are rebuilt. With --increment new files are moved from the watch
folder into the media folder and catalogued for --user.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := newApp("scan")
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		client, repo, err := a.openCatalog(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := client.Close(); err != nil {
				a.log.Error(ctx, "error closing database", err)
			}
		}()

		scanner, err := a.newScanner(repo, nil)
		if err != nil {
			return err
		}
		mode := scan.ModeFull
		if scanIncrement {
			mode = scan.ModeIncremental
		}
		report, err := scanner.Run(ctx, mode, scanOwner)
		if err != nil {
			return err
		}
		return printReport(cmd, report)
	},
}

func printReport(cmd *cobra.Command, r *scan.Report) error {
	out := cmd.OutOrStdout()
	if jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}
	fmt.Fprintf(out, "Scan %s (%s) finished in %s\n", r.ScanID, r.Mode, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  %-10s %d\n", "Total:", r.Total)
	fmt.Fprintf(out, "  %-10s %d\n", "Passed:", r.Passed)
	fmt.Fprintf(out, "  %-10s %d\n", "Failed:", r.Failed)
	fmt.Fprintf(out, "  %-10s %d\n", "Declined:", len(r.Declined))
	return nil
}

func init() {
	scanCmd.Flags().BoolVar(&scanIncrement, "increment", false, "scan the watch folder instead of the media folder")
	scanCmd.Flags().UintVar(&scanOwner, "user", 0, "owner id of files added by an incremental scan")
}
