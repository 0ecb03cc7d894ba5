package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/caffeineduck/scratchpad/executor"
	"github.com/caffeineduck/scratchpad/repl"
)

// printer renders events and results for a terminal. Styles degrade to
// plain text when w is not a terminal.
type printer struct {
	w io.Writer

	gutter lipgloss.Style
	label  lipgloss.Style
	value  lipgloss.Style
	warn   lipgloss.Style
	fail   lipgloss.Style
	result lipgloss.Style
}

func newPrinter(w io.Writer) *printer {
	r := lipgloss.NewRenderer(w)
	return &printer{
		w:      w,
		gutter: r.NewStyle().Foreground(lipgloss.Color("8")),
		label:  r.NewStyle().Foreground(lipgloss.Color("14")),
		value:  r.NewStyle().Bold(true),
		warn:   r.NewStyle().Foreground(lipgloss.Color("11")),
		fail:   r.NewStyle().Foreground(lipgloss.Color("9")),
		result: r.NewStyle().Foreground(lipgloss.Color("10")),
	}
}

func (p *printer) prefix(line int) string {
	if line <= 0 {
		return p.gutter.Render("    │ ")
	}
	return p.gutter.Render(fmt.Sprintf("%3d │ ", line))
}

func (p *printer) event(ev executor.Event) {
	text := ev.Text()
	switch ev.Kind {
	case executor.EventValue:
		text = p.label.Render(ev.Label) + " = " + p.value.Render(text)
	case executor.EventWarn:
		text = p.warn.Render(text)
	case executor.EventError:
		text = p.fail.Render(text)
	}
	fmt.Fprintln(p.w, p.prefix(ev.Line)+text)
}

func (p *printer) outcome(res repl.ExecutionResult) {
	if !res.OK() {
		msg := res.Message
		if res.Line > 0 {
			msg = fmt.Sprintf("line %d: %s", res.Line, msg)
		}
		fmt.Fprintln(p.w, p.fail.Render("✗ "+msg))
		if res.ContextReset {
			fmt.Fprintln(p.w, p.warn.Render("context reset: earlier bindings were discarded"))
		}
		return
	}
	if res.HasValue {
		fmt.Fprintln(p.w, p.result.Render("=> "+res.Value))
	}
}

// traceTable collects value traces in execution order.
type traceTable struct {
	rows [][]string
}

func (t *traceTable) add(ev executor.Event) {
	if ev.Kind != executor.EventValue {
		return
	}
	t.rows = append(t.rows, []string{strconv.Itoa(ev.Line), ev.Label, ev.Text(), ev.Type})
}

func (t *traceTable) render(w io.Writer) {
	if len(t.rows) == 0 {
		return
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Line", "Label", "Value", "Type"})
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT})
	table.AppendBulk(t.rows)
	table.Render()
}

// jsonLine is one record of --json output.
type jsonLine struct {
	Event  *executor.Event       `json:"event,omitempty"`
	Result *repl.ExecutionResult `json:"result,omitempty"`
}

type jsonWriter struct {
	enc *json.Encoder
}

func newJSONWriter(w io.Writer) *jsonWriter {
	return &jsonWriter{enc: json.NewEncoder(w)}
}

func (j *jsonWriter) event(ev executor.Event) {
	_ = j.enc.Encode(jsonLine{Event: &ev})
}

func (j *jsonWriter) outcome(res repl.ExecutionResult) {
	_ = j.enc.Encode(jsonLine{Result: &res})
}
