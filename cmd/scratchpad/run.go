package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/repl"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Evaluate code once and print every traced value",
	Long: `Evaluate JavaScript as a single submission in a fresh sandboxed context.

Code can be provided via:
  - File argument: scratchpad run script.js
  - Inline flag: scratchpad run -c 'const x = 1 + 1;'
  - Stdin: echo 'Math.max(1, 2)' | scratchpad run

Console output and value traces are printed as they happen, each with the
source line that produced it.`,
	Args:         cobra.MaximumNArgs(1),
	RunE:         runRun,
	SilenceUsage: true,
}

// errFailed reports a submission that failed after its error was printed.
var errFailed = errors.New("submission failed")

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Code to execute")
	cmd.Flags().Bool("table", false, "Print value traces as a table after the run")
	cmd.Flags().Bool("json", false, "Print events and the result as JSON lines")
	addSessionFlags(cmd.Flags())
}

func readSource(cmd *cobra.Command, args []string) (string, bool, error) {
	code, _ := cmd.Flags().GetString("code")
	switch {
	case code != "":
		return code, true, nil
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			return "", false, err
		}
		return string(data), true, nil
	}

	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		// No piped input
		if stat, err := f.Stat(); err == nil && stat.Mode()&os.ModeCharDevice != 0 {
			return "", false, nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", false, err
	}
	return string(data), len(data) > 0, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	source, ok, err := readSource(cmd, args)
	if err != nil {
		return err
	}
	if !ok {
		return cmd.Help()
	}

	asTable, _ := cmd.Flags().GetBool("table")
	asJSON, _ := cmd.Flags().GetBool("json")

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

	out := cmd.OutOrStdout()
	var (
		handler executor.Handler
		report  func(repl.ExecutionResult)
		table   traceTable
	)
	switch {
	case asJSON:
		jw := newJSONWriter(out)
		handler, report = jw.event, jw.outcome
	case asTable:
		p := newPrinter(out)
		handler = func(ev executor.Event) {
			if ev.IsConsole() {
				p.event(ev)
			}
			table.add(ev)
		}
		report = func(res repl.ExecutionResult) {
			table.render(out)
			p.outcome(res)
		}
	default:
		p := newPrinter(out)
		handler, report = p.event, p.outcome
	}

	res := m.Submit(context.Background(), source, handler)
	report(res)

	if !res.OK() {
		cmd.SilenceErrors = true
		return fmt.Errorf("%w: %s", errFailed, res.Message)
	}
	return nil
}
