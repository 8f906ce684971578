package prompt

import (
	"context"
	"io"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cruciblehq/kiln/internal/build"
)

// Asks for a recovery action on the terminal.
type Prompter struct {
	in  io.Reader // Key input. Defaults to the terminal.
	out io.Writer // Menu output. Defaults to standard output.
}

var _ build.Prompter = (*Prompter)(nil)

// Configures a [Prompter].
type Option func(*Prompter)

// Reads keys from r instead of the terminal.
func WithInput(r io.Reader) Option {
	return func(p *Prompter) { p.in = r }
}

// Draws the menu on w instead of standard output.
func WithOutput(w io.Writer) Option {
	return func(p *Prompter) { p.out = w }
}

// Creates a terminal prompter.
func New(opts ...Option) *Prompter {
	p := &Prompter{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Shows the menu and blocks until an action is picked.
//
// Quitting the menu selects [build.RecoveryAbort].
func (p *Prompter) Choose(ctx context.Context, message string, actions []build.RecoveryAction) (build.RecoveryAction, error) {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if p.in != nil {
		opts = append(opts, tea.WithInput(p.in))
	}
	if p.out != nil {
		opts = append(opts, tea.WithOutput(p.out))
	}

	final, err := tea.NewProgram(newMenu(message, actions), opts...).Run()
	if err != nil {
		return build.RecoveryAbort, err
	}

	m := final.(*menu)
	if !m.chosen {
		slog.Debug("recovery menu closed without a choice")
	}
	return m.choice, nil
}
