package build

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/cruciblehq/kiln/internal/recipe"
)

// Prints build progress lines.
type progress struct {
	out     io.Writer
	counter lipgloss.Style
	name    lipgloss.Style
	muted   lipgloss.Style
	failed  lipgloss.Style
}

func newProgress(out io.Writer) *progress {
	return &progress{
		out:     out,
		counter: lipgloss.NewStyle().Faint(true),
		name:    lipgloss.NewStyle().Bold(true),
		muted:   lipgloss.NewStyle().Faint(true),
		failed:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1")),
	}
}

// Returns the share of targets finished before the current one.
func percent(current, total int) int {
	if total <= 0 {
		return 0
	}
	return (current - 1) * 100 / total
}

// Formats the "[(i/total @ p%) name -> step]" prefix.
func (p *progress) header(current, total int, name string, step recipe.Step) string {
	counter := p.counter.Render(fmt.Sprintf("(%d/%d @ %d%%)", current, total, percent(current, total)))
	return fmt.Sprintf("[%s %s -> %s]", counter, p.name.Render(name), step)
}

func (p *progress) step(current, total int, name string, step recipe.Step) {
	fmt.Fprintln(p.out, p.header(current, total, name, step))
}

func (p *progress) alreadyDone(current, total int, name string, step recipe.Step) {
	fmt.Fprintf(p.out, "%s %s\n", p.header(current, total, name, step), p.muted.Render("already done"))
}

func (p *progress) upToDate(current, total int, name string) {
	counter := p.counter.Render(fmt.Sprintf("(%d/%d @ %d%%)", current, total, percent(current, total)))
	fmt.Fprintf(p.out, "[%s %s] %s\n", counter, p.name.Render(name), p.muted.Render("already built"))
}

func (p *progress) failure(err *BuildStepError) {
	fmt.Fprintln(p.out, p.failed.Render(err.Error()))
	if log := strings.TrimRight(err.Log, "\n"); log != "" {
		fmt.Fprintln(p.out, log)
	}
}
