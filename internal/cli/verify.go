package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// NewVerifyCmd creates the "verify" subcommand.
func NewVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify [table]",
		Short: "Find sequence values used more than once within a Sequence",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runVerify,
	}
}

func runVerify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	table := ""
	if len(args) == 1 {
		table = args[0]
	}

	violations, err := a.Service.Verify(ctx, table)
	if err != nil {
		return exitError(exitRuntime, "%s", err)
	}

	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		if err := writeJSON(out, violations); err != nil {
			return err
		}
	} else {
		for _, v := range violations {
			fmt.Fprintf(out, "%s.%s = %d used %d times %s\n", v.Table, v.Column, v.Value, v.Count, formatScope(v.Scope))
		}
	}

	if len(violations) > 0 {
		return exitError(exitViolations, "%d duplicate value(s) found", len(violations))
	}
	if !wantJSON(cmd) {
		fmt.Fprintln(out, "ok: no duplicates")
	}
	return nil
}

func formatScope(scope map[string]any) string {
	if len(scope) == 0 {
		return ""
	}
	keys := make([]string, 0, len(scope))
	for k := range scope {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := scope[k]
		if v == nil {
			v = "NULL"
		}
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
