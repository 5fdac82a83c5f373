package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/doc-intake/constants"
	"github.com/joseph-ayodele/doc-intake/internal/entity"
	"github.com/joseph-ayodele/doc-intake/internal/export"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print a job as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Mark a job cancelled; workers stop it at the next stage boundary",
	Args:  cobra.ExactArgs(1),
	RunE:  runCancel,
}

var linkCmd = &cobra.Command{
	Use:   "link <job-id> <building-id> [unit-id]",
	Short: "Link a job to a building and optionally a unit",
	Args:  cobra.RangeArgs(2, 3),
	RunE:  runLink,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write jobs and their key dates to an XLSX workbook",
	RunE:  runExport,
}

var (
	statusWithText bool
	exportOut      string
	exportStatuses []string
	exportBuilding string
	exportSince    string
	exportLimit    int
)

func init() {
	statusCmd.Flags().BoolVar(&statusWithText, "text", false, "Include the extracted text")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "report.xlsx", "Output XLSX path")
	exportCmd.Flags().StringSliceVar(&exportStatuses, "status", nil, "Only jobs in these statuses")
	exportCmd.Flags().StringVar(&exportBuilding, "building", "", "Only jobs linked to this building")
	exportCmd.Flags().StringVar(&exportSince, "since", "", "Only jobs created on or after this date (YYYY-MM-DD)")
	exportCmd.Flags().IntVar(&exportLimit, "limit", 0, "Maximum number of jobs")

	rootCmd.AddCommand(statusCmd, cancelCmd, linkCmd, exportCmd)
}

func parseID(s, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(s))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s %q: %w", what, s, err)
	}
	return id, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "job id")
	if err != nil {
		return err
	}
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	job, err := st.Jobs.GetJob(cmd.Context(), id)
	if err != nil {
		return err
	}
	if !statusWithText {
		job.ExtractedText = nil
	}
	return printJSON(cmd.OutOrStdout(), job)
}

func runCancel(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "job id")
	if err != nil {
		return err
	}
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Jobs.MarkCancelled(cmd.Context(), id); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", id)
	return nil
}

func runLink(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0], "job id")
	if err != nil {
		return err
	}
	building, err := parseID(args[1], "building id")
	if err != nil {
		return err
	}
	var unit *uuid.UUID
	if len(args) == 3 {
		u, err := parseID(args[2], "unit id")
		if err != nil {
			return err
		}
		unit = &u
	}
	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.Jobs.LinkJobToBuilding(cmd.Context(), id, building, unit); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "linked %s to building %s\n", id, building)
	return nil
}

func runExport(cmd *cobra.Command, _ []string) error {
	var filter entity.JobFilter
	for _, s := range exportStatuses {
		status, err := constants.ParseJobStatus(strings.ToUpper(strings.TrimSpace(s)))
		if err != nil {
			return err
		}
		filter.Statuses = append(filter.Statuses, status)
	}
	if exportBuilding != "" {
		b, err := parseID(exportBuilding, "building id")
		if err != nil {
			return err
		}
		filter.BuildingID = &b
	}
	if exportSince != "" {
		t, err := time.Parse("2006-01-02", exportSince)
		if err != nil {
			return fmt.Errorf("invalid --since: %w", err)
		}
		filter.Since = &t
	}
	filter.Limit = exportLimit

	st, err := openStorage(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	data, err := export.NewService(st.Jobs, logger).ExportJobsXLSX(cmd.Context(), filter)
	if err != nil {
		return err
	}
	if err := os.WriteFile(exportOut, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", exportOut, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", exportOut, len(data))
	return nil
}
