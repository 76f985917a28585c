package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"seqnum/internal/app"
	"seqnum/internal/domain/records"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Compile a sequences file without touching the database",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}
}

type tableSummary struct {
	Name      string            `json:"name"`
	Sequences []sequenceSummary `json:"sequences"`
}

type sequenceSummary struct {
	Column    string   `json:"column"`
	Scope     []string `json:"scope"`
	Exclusion string   `json:"exclusion"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return exitError(exitFileNotFound, "file not found: %s", path)
	}

	registry, err := app.LoadRegistry(path)
	if err != nil {
		return exitError(exitValidation, "%s", err)
	}

	summary := summarize(registry)
	out := cmd.OutOrStdout()
	if wantJSON(cmd) {
		return writeJSON(out, summary)
	}

	for _, t := range summary {
		fmt.Fprintf(out, "%s\n", t.Name)
		for _, s := range t.Sequences {
			scope := "(table-wide)"
			if len(s.Scope) > 0 {
				scope = "per " + strings.Join(s.Scope, ", ")
			}
			fmt.Fprintf(out, "  %s %s, exclude by %s\n", s.Column, scope, s.Exclusion)
		}
	}
	fmt.Fprintf(out, "ok: %d table(s)\n", len(summary))
	return nil
}

func summarize(registry *records.Registry) []tableSummary {
	var out []tableSummary
	for _, schema := range registry.All() {
		t := tableSummary{Name: schema.Name, Sequences: []sequenceSummary{}}
		for _, spec := range schema.Sequences.Specs() {
			t.Sequences = append(t.Sequences, sequenceSummary{
				Column:    spec.Column,
				Scope:     spec.Scope,
				Exclusion: spec.Exclusion.String(),
			})
		}
		out = append(out, t)
	}
	return out
}
