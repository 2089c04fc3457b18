package tui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/x/term"
)

// ErrCanceled is returned when the user interrupts a spinner.
var ErrCanceled = errors.New("canceled")

// spinnerModel is the bubbletea model for a spinner.
type spinnerModel struct {
	spinner  spinner.Model
	message  string
	done     bool
	result   string
	err      error
	styles   *Styles
	quitting bool
}

func newSpinnerModel(message string) spinnerModel {
	styles := NewStyles()
	return spinnerModel{
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(styles.Spinner),
		),
		message: message,
		styles:  styles,
	}
}

func (m spinnerModel) Init() tea.Cmd {
	return m.spinner.Tick
}

type spinnerDoneMsg struct {
	result string
	err    error
}

func (m spinnerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		if msg.String() == "ctrl+c" {
			m.quitting = true
			return m, tea.Quit
		}
	case spinnerDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m spinnerModel) View() tea.View {
	return tea.NewView(m.render())
}

func (m spinnerModel) render() string {
	switch {
	case m.quitting:
		return ""
	case m.done && m.err != nil:
		return m.styles.Error.Render("✗ "+m.err.Error()) + "\n"
	case m.done:
		return m.styles.Success.Render("✓ "+m.result) + "\n"
	default:
		return fmt.Sprintf("%s %s\n", m.spinner.View(), m.message)
	}
}

// Spinner shows progress on stderr while a function runs. When stderr is
// not a terminal the function runs without any output.
type Spinner struct {
	message string
	out     io.Writer
}

// NewSpinner creates a new spinner with a message.
func NewSpinner(message string) *Spinner {
	return &Spinner{message: message, out: os.Stderr}
}

// Run executes fn while displaying the spinner and returns its result.
func (s *Spinner) Run(fn func() (string, error)) (string, error) {
	f, ok := s.out.(*os.File)
	if !ok || !term.IsTerminal(f.Fd()) {
		return fn()
	}

	// No input: ctrl+c reaches the process as a signal.
	p := tea.NewProgram(newSpinnerModel(s.message), tea.WithOutput(s.out), tea.WithInput(nil))

	go func() {
		result, err := fn()
		p.Send(spinnerDoneMsg{result: result, err: err})
	}()

	finalModel, err := p.Run()
	if err != nil {
		return "", err
	}

	final := finalModel.(spinnerModel) //nolint:errcheck // the program only ever holds a spinnerModel
	if final.quitting {
		return "", ErrCanceled
	}
	return final.result, final.err
}

// RunSimple executes fn while displaying the spinner.
func (s *Spinner) RunSimple(fn func() error) error {
	_, err := s.Run(func() (string, error) {
		return "Done", fn()
	})
	return err
}
