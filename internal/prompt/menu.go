package prompt

import (
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/cruciblehq/kiln/internal/build"
)

const menuWidth = 64

var (
	messageStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B")).Width(menuWidth)
	hintStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

// Implements list.Item for a recovery action.
type actionItem struct {
	action build.RecoveryAction
}

func (i actionItem) Title() string       { return i.action.String() }
func (i actionItem) Description() string { return describe(i.action) }
func (i actionItem) FilterValue() string { return i.action.String() }

// Returns the one-line explanation shown under an action.
func describe(a build.RecoveryAction) string {
	switch a {
	case build.RecoveryShell:
		return "Open a shell in the build directory, then stop"
	case build.RecoveryRetryAll:
		return "Wipe the build directory and run every step again"
	case build.RecoveryRetryStep:
		return "Run the failed step again"
	case build.RecoverySkip:
		return "Leave this recipe unbuilt and continue"
	default:
		return "Stop the build session"
	}
}

// Bubbletea model of the recovery menu.
type menu struct {
	message string
	list    list.Model
	choice  build.RecoveryAction
	chosen  bool // Whether the user picked an action rather than quitting.
}

func newMenu(message string, actions []build.RecoveryAction) *menu {
	items := make([]list.Item, len(actions))
	for i, a := range actions {
		items[i] = actionItem{action: a}
	}

	l := list.New(items, list.NewDefaultDelegate(), menuWidth, len(actions)*3+8)
	l.Title = "What do you want to do?"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowPagination(false)

	return &menu{message: message, list: l, choice: build.RecoveryAbort}
}

func (m *menu) Init() tea.Cmd {
	return nil
}

func (m *menu) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetWidth(min(menuWidth, msg.Width))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc", "q":
			m.choice = build.RecoveryAbort
			return m, tea.Quit
		case "enter":
			if item, ok := m.list.SelectedItem().(actionItem); ok {
				m.choice = item.action
				m.chosen = true
			}
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *menu) View() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		messageStyle.Render(m.message),
		"",
		m.list.View(),
		hintStyle.Render("↑/↓ select • enter confirm • q abort"),
	)
}
