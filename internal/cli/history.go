package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"seqnum/internal/core/id"
	"seqnum/internal/infrastructure/storage"
	"seqnum/internal/infrastructure/storage/postgres"
)

// NewHistoryCmd creates the "history" subcommand.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history <table> <id>",
		Short: "Show the numbers assigned to a record (postgres audit log)",
		Args:  cobra.ExactArgs(2),
		RunE:  runHistory,
	}
	cmd.Flags().Int("limit", 20, "Maximum number of entries")
	return cmd
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rowID, err := id.Parse(args[1])
	if err != nil {
		return exitError(exitValidation, "invalid record id %q", args[1])
	}
	limit, _ := cmd.Flags().GetInt("limit")

	a, err := openApp(ctx, cmd, func(cfg *storage.Config) { cfg.Audit = true })
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.Service.Schema(args[0]); err != nil {
		return exitError(exitValidation, "%s", err)
	}
	audit, ok := a.Backend.Audit.(*postgres.AuditService)
	if !ok {
		return exitError(exitValidation, "history requires the postgres driver")
	}

	entries, err := audit.History(ctx, args[0], rowID, limit)
	if err != nil {
		return exitError(exitRuntime, "%s", err)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return writeJSON(out, entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no assignments recorded")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s.%s = %d %s\n",
			e.CreatedAt.Format(time.RFC3339), e.TableName, e.ColumnName, e.Value, string(e.Scope))
	}
	return nil
}
