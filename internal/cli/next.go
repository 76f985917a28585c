package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"seqnum/internal/infrastructure/http/v1/dto"
)

// NewNextCmd creates the "next" subcommand.
func NewNextCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "next <table> <column> [scope_column=value ...]",
		Short: "Show the number the next row of a Sequence would get",
		Long: "Show the number the next row of a Sequence would get. The value is advisory:\n" +
			"nothing is reserved, and a concurrent writer may take it first.",
		Args: cobra.MinimumNArgs(2),
		RunE: runNext,
	}
}

func runNext(cmd *cobra.Command, args []string) error {
	values, err := parseAssignments(args[2:])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	next, err := a.Service.Next(ctx, args[0], args[1], values)
	if err != nil {
		return exitError(exitRuntime, "%s", err)
	}

	if wantJSON(cmd) {
		return writeJSON(cmd.OutOrStdout(), dto.NextResponse{Table: args[0], Column: args[1], Value: next})
	}
	fmt.Fprintln(cmd.OutOrStdout(), next)
	return nil
}

func parseAssignments(args []string) (map[string]any, error) {
	values := make(map[string]any, len(args))
	for _, a := range args {
		col, val, ok := strings.Cut(a, "=")
		if !ok || col == "" {
			return nil, exitError(exitValidation, "expected column=value, got %q", a)
		}
		values[col] = dto.ParseQueryValue(val)
	}
	return values, nil
}
