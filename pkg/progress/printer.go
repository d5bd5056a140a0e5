// Package progress prints the operator trace of a running task.
package progress

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/charmbracelet/lipgloss"

	"github.com/Flagro/holosophos-erc3/pkg/agent/steploop"
	"github.com/Flagro/holosophos-erc3/pkg/dispatch"
	"github.com/Flagro/holosophos-erc3/pkg/nextstep"
)

var _ steploop.Observer = (*Printer)(nil)

// Printer writes one block per turn. Colors are dropped when out is not a terminal.
type Printer struct {
	mu  sync.Mutex
	out io.Writer

	ok     lipgloss.Style
	failed lipgloss.Style
	agent  lipgloss.Style
	dim    lipgloss.Style
}

// NewPrinter creates a printer writing to out (stdout when nil).
func NewPrinter(out io.Writer) *Printer {
	if out == nil {
		out = os.Stdout
	}
	r := lipgloss.NewRenderer(out)
	return &Printer{
		out:    out,
		ok:     r.NewStyle().Foreground(lipgloss.Color("2")),
		failed: r.NewStyle().Foreground(lipgloss.Color("1")),
		agent:  r.NewStyle().Foreground(lipgloss.Color("4")).Bold(true),
		dim:    r.NewStyle().Foreground(lipgloss.Color("241")),
	}
}

func (p *Printer) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, _ = fmt.Fprintf(p.out, format, args...)
}

func (p *Printer) TurnStarted(_ int, callID string) {
	p.printf("Next %s... ", callID)
}

func (p *Printer) ActionChosen(_ int, decision *nextstep.Decision) {
	if _, done := decision.Report(); done {
		return
	}
	args, err := nextstep.MarshalArguments(decision.Function)
	if err != nil {
		args = fmt.Sprintf("%s (%v)", decision.Function.Kind(), err)
	}
	p.printf("%s\n  %s\n", decision.NextStep(), p.dim.Render(args))
}

func (p *Printer) ActionFinished(_ int, outcome dispatch.Outcome) {
	if outcome.IsError() {
		p.printf("%s\n", p.failed.Render("ERR: "+outcome.Payload))
		return
	}
	p.printf("%s: %s\n", p.ok.Render("OUT"), outcome.Payload)
}

func (p *Printer) Completed(report *nextstep.CompletionReport, _ int) {
	p.printf("%s. Summary:\n", p.agent.Render("agent "+string(report.Code)))
	for _, s := range report.CompletedSteps {
		p.printf("- %s\n", s)
	}
}

func (p *Printer) Exhausted(turns int) {
	p.printf("\n%s\n", p.failed.Render(fmt.Sprintf("agent stopped: no completion after %d steps", turns)))
}
