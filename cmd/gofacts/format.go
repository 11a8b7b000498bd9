package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"
)

// formatRunsText formats runs as aligned columns.
func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tSTARTED\tDURATION\tSCRIPT")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.Status, r.StartedAt.Local().Format(time.DateTime), duration(r), r.Script)
	}
	tw.Flush()
}

// formatRunDetailText formats one run as readable text.
func formatRunDetailText(w io.Writer, d CLIRunDetail) {
	fmt.Fprintf(w, "Run: %s\n", d.ID)
	fmt.Fprintf(w, "Script: %s (%s)\n", d.Script, d.ScriptHash)
	fmt.Fprintf(w, "Status: %s\n", d.Status)
	fmt.Fprintf(w, "Started: %s (%s)\n", d.StartedAt.Local().Format(time.DateTime), duration(d.CLIRun))
	fmt.Fprintln(w)

	if len(d.Queries) > 0 {
		fmt.Fprintln(w, "Queries:")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  KIND\tINPUT\tRESULTS")
		for _, q := range d.Queries {
			fmt.Fprintf(tw, "  %s\t%s\t%d\n", q.Kind, q.Input, q.ResultCount)
		}
		tw.Flush()
		fmt.Fprintln(w)
	}

	if len(d.Diagnostics) > 0 {
		fmt.Fprintln(w, "Diagnostics:")
		for _, dg := range d.Diagnostics {
			if dg.Span != "" {
				fmt.Fprintf(w, "  %s: %s (%s)\n", dg.Level, dg.Message, dg.Span)
			} else {
				fmt.Fprintf(w, "  %s: %s\n", dg.Level, dg.Message)
			}
		}
		fmt.Fprintln(w)
	}

	if d.Output != "" {
		fmt.Fprintln(w, "Output:")
		for _, line := range strings.Split(strings.TrimSuffix(d.Output, "\n"), "\n") {
			fmt.Fprintf(w, "  %s\n", line)
		}
	}
}

func duration(r CLIRun) string {
	if r.FinishedAt.IsZero() {
		return "unfinished"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

// outputResultText dispatches to the text formatter for the result type.
func outputResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case []CLIRun:
		formatRunsText(w, v)
	case CLIRunDetail:
		formatRunDetailText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	return nil
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
