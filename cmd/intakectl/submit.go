package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-intake/internal/ingest"
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>...",
	Short: "Store files and create QUEUED jobs for them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSubmit,
}

var ingestDirCmd = &cobra.Command{
	Use:   "ingest-dir <dir>",
	Short: "Submit every supported file under a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runIngestDir,
}

var watchCmd = &cobra.Command{
	Use:   "watch <dir>...",
	Short: "Submit files as they appear in drop folders",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runWatch,
}

var (
	submitBuilding   string
	submitUnit       string
	ingestSkipHidden bool
	ingestWorkers    int
	watchInitialScan bool
	watchDebounce    time.Duration
)

func init() {
	for _, c := range []*cobra.Command{submitCmd, ingestDirCmd, watchCmd} {
		c.Flags().StringVar(&submitBuilding, "building", "", "Building id to link new jobs to")
		c.Flags().StringVar(&submitUnit, "unit", "", "Unit id to link new jobs to (requires --building)")
	}
	ingestDirCmd.Flags().BoolVar(&ingestSkipHidden, "skip-hidden", true, "Skip dot files and directories")
	ingestDirCmd.Flags().IntVar(&ingestWorkers, "workers", 4, "Files submitted in parallel")
	watchCmd.Flags().BoolVar(&watchInitialScan, "initial-scan", false, "Also submit files already present")
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 2*time.Second, "Quiet period before a changed file is submitted")

	rootCmd.AddCommand(submitCmd, ingestDirCmd, watchCmd)
}

func parseLink() (ingest.Link, error) {
	var link ingest.Link
	if submitBuilding != "" {
		b, err := uuid.Parse(submitBuilding)
		if err != nil {
			return link, fmt.Errorf("invalid --building: %w", err)
		}
		link.BuildingID = &b
	}
	if submitUnit != "" {
		if link.BuildingID == nil {
			return link, fmt.Errorf("--unit requires --building")
		}
		u, err := uuid.Parse(submitUnit)
		if err != nil {
			return link, fmt.Errorf("invalid --unit: %w", err)
		}
		link.UnitID = &u
	}
	return link, nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	link, err := parseLink()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ing := ingest.NewFSIngestor(st.Jobs, st.Blobs, logger)
	failed := 0
	for _, path := range args {
		res, err := ing.IngestPath(ctx, path, link)
		if err != nil {
			failed++
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s: %v\n", path, err)
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "QUEUED %s  %s (%s, %d bytes)\n", res.JobID, res.SourcePath, res.Format, res.SizeBytes)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(args))
	}
	return nil
}

func runIngestDir(cmd *cobra.Command, args []string) error {
	link, err := parseLink()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ing := ingest.NewFSIngestor(st.Jobs, st.Blobs, logger, ingest.WithConcurrency(ingestWorkers))
	results, stats, err := ing.IngestDirectory(ctx, args[0], ingestSkipHidden, link)
	for _, r := range results {
		if r.Err != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "FAIL  %s: %s\n", r.SourcePath, r.Err)
		} else if r.JobID != uuid.Nil {
			fmt.Fprintf(cmd.OutOrStdout(), "QUEUED %s  %s\n", r.JobID, r.SourcePath)
		}
	}
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d matched=%d succeeded=%d failed=%d\n", stats.Scanned, stats.Matched, stats.Succeeded, stats.Failed)
	return err
}

func runWatch(cmd *cobra.Command, args []string) error {
	link, err := parseLink()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	st, err := openStorage(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	ing := ingest.NewFSIngestor(st.Jobs, st.Blobs, logger)
	return ingest.Watch(ctx, ing, ingest.WatchConfig{
		Roots:       args,
		InitialScan: watchInitialScan,
		Debounce:    watchDebounce,
		SkipHidden:  true,
	}, link, logger)
}
