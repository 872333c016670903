package confirm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// autoConfirmVars are the variables that bypass prompting, with the exact
// value each must hold.
var autoConfirmVars = []struct {
	name  string
	value string
}{
	{"CI", "true"},
	{"AI_CLI_YES", "1"},
	{"YES", "1"},
}

// Prompt is an open terminal session for one question.
type Prompt interface {
	io.Reader
	io.Writer
	io.Closer
}

// Gate decides whether a risky action may proceed.
type Gate struct {
	open   func() (Prompt, error)
	getenv func(string) string
}

// Option configures a Gate.
type Option func(*Gate)

// WithPrompt replaces the terminal session opener.
func WithPrompt(open func() (Prompt, error)) Option {
	return func(g *Gate) { g.open = open }
}

// WithGetenv replaces os.Getenv for the auto-confirm check.
func WithGetenv(fn func(string) string) Option {
	return func(g *Gate) { g.getenv = fn }
}

// New creates a Gate that prompts on the controlling terminal.
func New(opts ...Option) *Gate {
	g := &Gate{
		open:   OpenTerminal,
		getenv: os.Getenv,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// ShouldAutoConfirm reports whether the environment marks this run as
// unattended. Values are compared exactly: CI=TRUE or CI=1 do not count.
func (g *Gate) ShouldAutoConfirm() bool {
	for _, v := range autoConfirmVars {
		if g.getenv(v.name) == v.value {
			return true
		}
	}
	return false
}

// Confirm asks a yes/no question. It returns true without touching the
// terminal when force is set or the run is unattended. An empty answer
// selects defaultAnswer; otherwise only "y" and "yes" (any case) accept.
func (g *Gate) Confirm(question string, defaultAnswer, force bool) (bool, error) {
	if force || g.ShouldAutoConfirm() {
		return true, nil
	}

	p, err := g.open()
	if err != nil {
		return false, fmt.Errorf("open prompt: %w", err)
	}
	defer p.Close()

	suffix := " [y/N] "
	if defaultAnswer {
		suffix = " [Y/n] "
	}
	style := lipgloss.NewRenderer(p).NewStyle().Bold(true)
	if _, err := io.WriteString(p, style.Render(question)+suffix); err != nil {
		return false, fmt.Errorf("write prompt: %w", err)
	}

	answer, err := bufio.NewReader(p).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("read answer: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultAnswer, nil
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// ConfirmDatabaseOperation gates a destructive database action. It never
// defaults to yes.
func (g *Gate) ConfirmDatabaseOperation(action, environment string, force bool) (bool, error) {
	if force || g.ShouldAutoConfirm() {
		return true, nil
	}
	question := fmt.Sprintf("\n⚠️  About to run database operation: %s\nEnvironment: %s\n\nThis is destructive and may lose data.\nContinue?", action, environment)
	return g.Confirm(question, false, force)
}

// ConfirmDangerous gates any other risky operation, such as a production deploy.
func (g *Gate) ConfirmDangerous(operation, environment string, force bool) (bool, error) {
	if force || g.ShouldAutoConfirm() {
		return true, nil
	}
	question := fmt.Sprintf("\n⚠️  Dangerous operation: %s\nEnvironment: %s\n\nContinue?", operation, environment)
	return g.Confirm(question, false, force)
}

// stdioPrompt reads stdin and writes stdout; closing it leaves both open.
type stdioPrompt struct {
	io.Reader
	io.Writer
}

func (stdioPrompt) Close() error { return nil }

// OpenTerminal opens the controlling terminal so answers are read from the
// operator even when stdin is redirected. It falls back to stdin/stdout when
// there is no controlling terminal.
func OpenTerminal() (Prompt, error) {
	if runtime.GOOS == "windows" {
		return stdioPrompt{Reader: os.Stdin, Writer: os.Stdout}, nil
	}
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return stdioPrompt{Reader: os.Stdin, Writer: os.Stdout}, nil
	}
	return tty, nil
}
