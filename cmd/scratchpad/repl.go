package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/instrument"
	"github.com/caffeineduck/scratchpad/repl"
)

const (
	primaryPrompt      = "> "
	continuationPrompt = "… "
)

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive scratchpad with persistent state",
	Long: `Start an interactive session against one persistent context.

Features:
  - Command history (up/down arrows)
  - Line editing (left/right, backspace, delete)
  - History search (Ctrl+R)
  - Multi-line input: continues while brackets, strings or comments are open,
    or when a line ends with \

Commands:
  .reset   discard every binding and start a fresh context
  .exit    end the session (also exit, quit or Ctrl+D)`,
	RunE:         runRepl,
	SilenceUsage: true,
}

func init() {
	replCmd.Flags().String("history", "", "History file path (default: ~/.scratchpad_history)")
	addSessionFlags(replCmd.Flags())
	rootCmd.AddCommand(replCmd)
}

// pending accumulates input lines until they form a complete submission.
type pending struct {
	lines   []string
	tracker instrument.Tracker
}

// add appends a line and reports whether more input is needed.
func (p *pending) add(line string) bool {
	if strings.HasSuffix(line, "\\") {
		line = strings.TrimSuffix(line, "\\")
		p.lines = append(p.lines, line)
		p.tracker.Feed(line)
		return true
	}
	p.lines = append(p.lines, line)
	p.tracker.Feed(line)
	return !p.tracker.Complete()
}

func (p *pending) text() string { return strings.Join(p.lines, "\n") }

func (p *pending) empty() bool { return len(p.lines) == 0 }

func (p *pending) reset() {
	p.lines = p.lines[:0]
	p.tracker.Reset()
}

func runRepl(cmd *cobra.Command, args []string) error {
	cfg, logger, exec, err := setup(cmd)
	if err != nil {
		return err
	}
	defer exec.Close()

	sessionOpts, err := cfg.SessionOptions()
	if err != nil {
		return err
	}
	m := repl.New(exec,
		repl.WithSessionOptions(sessionOpts...),
		repl.WithLogger(logger),
	)
	defer m.Close()

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            primaryPrompt,
		HistoryFile:       cfg.History.File,
		HistoryLimit:      cfg.History.Limit,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
		Stdout:            cmd.OutOrStdout(),
	})
	if err != nil {
		return fmt.Errorf("initializing readline: %w", err)
	}
	defer rl.Close()

	fmt.Fprintln(cmd.ErrOrStderr(), "scratchpad (type .reset to start over, .exit or Ctrl+D to quit)")

	p := newPrinter(rl.Stdout())
	var buf pending

	for {
		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				buf.reset()
				rl.SetPrompt(primaryPrompt)
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		}

		if buf.empty() {
			switch strings.TrimSpace(line) {
			case "":
				continue
			case ".exit", "exit", "quit":
				return nil
			case ".reset":
				if err := m.Reset(context.Background()); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				} else {
					fmt.Fprintln(rl.Stdout(), "context reset")
				}
				continue
			}
		}

		if buf.add(line) {
			rl.SetPrompt(continuationPrompt)
			continue
		}
		code := buf.text()
		buf.reset()
		rl.SetPrompt(primaryPrompt)

		res := submit(m, code, p)
		p.outcome(res)
	}
}

// submit runs one submission. Ctrl+C abandons it while queued.
func submit(m *repl.Manager, code string, p *printer) repl.ExecutionResult {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return m.Submit(ctx, code, p.event)
}
