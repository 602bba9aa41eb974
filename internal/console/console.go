// Package console is the interactive prompt shown with -console. Commands
// are handed to the router; replies come back through Printf.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/chase3718/thr-comm/internal/logging"
	"github.com/chase3718/thr-comm/internal/router"
)

var (
	nameStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	arrowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

func prompt() string {
	return nameStyle.Render("THR-Comm") + arrowStyle.Render(" > ")
}

// ErrUnknown is returned by Lookup for names that are not commands.
var ErrUnknown = errors.New("unknown command")

var commands = map[string]router.Command{
	"status":      router.CmdStatus,
	"version":     router.CmdVersion,
	"shutdown":    router.CmdShutdown,
	"activeIndex": router.CmdActiveIndex,
	"ai":          router.CmdActiveIndex,
}

var descriptions = map[string]string{
	"help, h":         "show this list",
	"status":          "board uptime, battery and current draw",
	"version":         "board firmware version",
	"shutdown":        "ask the board to power everything down",
	"activeIndex, ai": "index of the active preset",
}

// Lookup maps a command name to a router command.
func Lookup(name string) (router.Command, error) {
	c, ok := commands[name]
	if !ok {
		return 0, fmt.Errorf("%w %q", ErrUnknown, name)
	}
	return c, nil
}

func helpText() string {
	names := make([]string, 0, len(descriptions))
	for n := range descriptions {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for i, n := range names {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "  %-16s %s", n, helpStyle.Render(descriptions[n]))
	}
	return b.String()
}

type printMsg string

type model struct {
	input    []rune
	submit   func(router.Command)
	quitting bool
}

// execute runs one input line and returns what to print below it. Extra
// words after the command name are ignored.
func (m model) execute(line string) string {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return ""
	}
	name := fields[0]
	if name == "help" || name == "h" {
		return helpText()
	}
	cmd, err := Lookup(name)
	if err != nil {
		return errStyle.Render(err.Error())
	}
	m.submit(cmd)
	return ""
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case printMsg:
		return m, tea.Println(string(msg))

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEnter:
			line := string(m.input)
			m.input = nil
			echo := prompt() + line
			if out := m.execute(line); out != "" {
				echo += "\n" + out
			}
			return m, tea.Println(echo)
		case tea.KeyBackspace:
			if len(m.input) > 0 {
				m.input = m.input[:len(m.input)-1]
			}
		case tea.KeySpace:
			m.input = append(m.input, ' ')
		case tea.KeyRunes:
			m.input = append(m.input, msg.Runes...)
		}
	}
	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}
	return prompt() + string(m.input)
}

// Console runs the prompt on a terminal and implements router.Printer.
type Console struct {
	prog *tea.Program
	log  *slog.Logger
}

// New creates a console that passes commands to submit. in and out default
// to the process terminal when nil.
func New(ctx context.Context, submit func(router.Command), in io.Reader, out io.Writer) *Console {
	opts := []tea.ProgramOption{tea.WithContext(ctx)}
	if in != nil {
		opts = append(opts, tea.WithInput(in))
	}
	if out != nil {
		opts = append(opts, tea.WithOutput(out))
	}
	return &Console{
		prog: tea.NewProgram(model{submit: submit}, opts...),
		log:  logging.Get(logging.Console),
	}
}

// Run blocks until the user quits with ctrl+c or ctx is cancelled.
func (c *Console) Run() error {
	c.log.Debug("console: started")
	_, err := c.prog.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}

// Printf prints a line above the prompt. It returns without printing once
// the console has stopped.
func (c *Console) Printf(format string, args ...any) {
	c.prog.Send(printMsg(fmt.Sprintf(format, args...)))
}
