package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jward/gofacts/internal/store"
)

var flagLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openLogStore()
		if err != nil {
			return outputError("runs", err)
		}
		defer s.Close()

		runs, err := s.Runs(context.Background(), flagLimit)
		if err != nil {
			return outputError("runs", err)
		}
		out := make([]CLIRun, 0, len(runs))
		for _, r := range runs {
			out = append(out, runToCLI(r))
		}
		return outputResult(CLIResult{Command: "runs", Results: out})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one run's queries, diagnostics and output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openLogStore()
		if err != nil {
			return outputError("show", err)
		}
		defer s.Close()

		d, err := s.Run(context.Background(), args[0])
		if err != nil {
			return outputError("show", err)
		}
		return outputResult(CLIResult{Command: "show", Results: runDetailToCLI(d)})
	},
}

func init() {
	runsCmd.Flags().IntVar(&flagLimit, "limit", 20, "maximum number of runs to list")
}

// openLogStore opens the run log named by the config and --db.
func openLogStore() (*store.Store, error) {
	cfg, err := loadConfig(newLogger(os.Stderr))
	if err != nil {
		return nil, err
	}
	return openExistingStore(resolveDBPath(cfg))
}

// outputResult marshals a CLIResult to stdout in the selected format.
func outputResult(result CLIResult) error {
	if flagFormat == "text" {
		return outputResultText(os.Stdout, result)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(CLIResult{Command: command, Error: err.Error()})
	return err
}
