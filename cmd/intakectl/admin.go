package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/doc-intake/internal/app"
	"github.com/joseph-ayodele/doc-intake/internal/repository"
)

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Classification rule set tools",
}

var rulesCheckCmd = &cobra.Command{
	Use:   "check [file]",
	Short: "Compile a rule set and report skipped patterns",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRulesCheck,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the intake_jobs table",
	RunE:  runMigrate,
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the database and a running worker's health endpoint",
	RunE:  runHealth,
}

var (
	healthAddr    string
	healthTimeout time.Duration
	healthSkipDB  bool
)

func init() {
	healthCmd.Flags().StringVar(&healthAddr, "addr", "", "Worker gRPC address (defaults to GRPC_ADDR)")
	healthCmd.Flags().DurationVar(&healthTimeout, "timeout", 3*time.Second, "Per-check timeout")
	healthCmd.Flags().BoolVar(&healthSkipDB, "skip-db", false, "Only check the worker")

	rulesCmd.AddCommand(rulesCheckCmd)
	rootCmd.AddCommand(rulesCmd, migrateCmd, healthCmd)
}

func runRulesCheck(cmd *cobra.Command, args []string) error {
	path := cfg.Rules.File
	if len(args) == 1 {
		path = args[0]
	}
	rs, err := app.LoadRules(path, logger)
	if err != nil {
		return err
	}
	src := path
	if src == "" {
		src = "(built-in)"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rule set %s version %q: %d types\n", src, rs.Version, len(rs.Types))
	for _, name := range rs.TypeNames() {
		fmt.Fprintf(cmd.OutOrStdout(), "  - %s\n", name)
	}
	for _, s := range rs.Skipped {
		fmt.Fprintf(cmd.OutOrStdout(), "SKIPPED %s/%s %q: %s\n", s.Type, s.Field, s.Pattern, s.Err)
	}
	if len(rs.Skipped) > 0 {
		return fmt.Errorf("%d patterns did not compile", len(rs.Skipped))
	}
	return nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	if err := cfg.ValidateStorage(); err != nil {
		return err
	}
	db, err := repository.Open(cmd.Context(), cfg.Database, logger)
	if err != nil {
		return err
	}
	defer db.Close(logger)
	if err := repository.Migrate(cmd.Context(), db, logger); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "migrated")
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if !healthSkipDB {
		if err := cfg.ValidateStorage(); err != nil {
			return err
		}
		db, err := repository.Open(ctx, cfg.Database, logger)
		if err != nil {
			return err
		}
		defer db.Close(logger)
		if err := db.HealthCheck(ctx, healthTimeout, logger); err != nil {
			fmt.Fprintln(cmd.OutOrStdout(), "db: FAIL")
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "db: OK")
	}

	addr := healthAddr
	if addr == "" {
		addr = cfg.Server.GRPCAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	cctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(cctx, &healthpb.HealthCheckRequest{Service: app.HealthService})
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), "worker %s: FAIL\n", addr)
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "worker %s: %s\n", addr, resp.GetStatus())
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("worker is %s", resp.GetStatus())
	}
	return nil
}
