package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/risor-io/risor/object"
	"github.com/spf13/cobra"

	"github.com/jward/gofacts"
)

const (
	historyFile = ".gofacts_history"
	promptMain  = "facts> "
	promptCont  = "...    "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Query the loaded program interactively",
	Long: `Loads the project once and reads Risor snippets until EOF or :quit.
Each snippet is evaluated on its own with the facts module in scope; the
whole session is recorded as one run.`,
	Args: cobra.NoArgs,
	RunE: runRepl,
}

func init() {
	replCmd.Flags().StringVar(&flagLang, "lang", "", "program language: go|rust (default from config)")
}

func runRepl(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := newLogger(os.Stderr)
	cfg, err := loadConfig(logger)
	if err != nil {
		return err
	}
	if err := applyRunFlags(cfg); err != nil {
		return err
	}

	opts := []gofacts.Option{
		gofacts.WithLogger(logger),
		gofacts.WithOutput(gofacts.NewSink("", os.Stdout)),
		gofacts.WithExitFunc(func(int) {}),
	}
	if path := resolveDBPath(cfg); path != "" {
		s, err := openStore(path)
		if err != nil {
			return err
		}
		defer s.Close()
		opts = append(opts, gofacts.WithStore(s))
	}

	fmt.Fprintf(os.Stderr, "Loading %s...\n", cfg.Root)
	engine, err := gofacts.New(ctx, cfg, opts...)
	if err != nil {
		return err
	}
	sess := engine.Session(ctx)
	defer func() {
		res := sess.Close(ctx)
		fmt.Fprintf(os.Stderr, "Session recorded as run %s (%s)\n", res.RunID, res.Status)
	}()

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)
	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}
	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	fmt.Fprintln(os.Stderr, "Ctrl+C cancels input, Ctrl+D exits. Type :quit to exit.")
	for {
		src, ok := readSnippet(ln)
		if !ok {
			return nil
		}
		src = strings.TrimSpace(src)
		switch src {
		case "":
			continue
		case ":quit", ":q":
			return nil
		}
		ln.AppendHistory(src)

		obj, err := sess.Eval(ctx, src)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
			continue
		}
		printResult(os.Stdout, obj)
	}
}

// readSnippet reads lines until brackets balance. It returns false at EOF.
func readSnippet(ln *liner.State) (string, bool) {
	var b strings.Builder
	for {
		prompt := promptMain
		if b.Len() > 0 {
			prompt = promptCont
		}
		line, err := ln.Prompt(prompt)
		if errors.Is(err, io.EOF) {
			return "", false
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", true
		}
		if err != nil {
			return "", false
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if bracketDepth(b.String()) <= 0 {
			return b.String(), true
		}
	}
}

// bracketDepth counts unclosed brackets outside string literals and
// comments.
func bracketDepth(src string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(src); i++ {
		c := src[i]
		if quote != 0 {
			switch {
			case c == '\\' && quote != '`':
				i++
			case c == quote:
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'', '`':
			quote = c
		case '/':
			if i+1 < len(src) && src[i+1] == '/' {
				for i < len(src) && src[i] != '\n' {
					i++
				}
			}
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		}
	}
	return depth
}

func printResult(w io.Writer, obj object.Object) {
	if obj == nil || obj == object.Nil {
		return
	}
	fmt.Fprintln(w, obj.Inspect())
}
