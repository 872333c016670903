package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Level is the minimum severity printed to the console.
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
)

const stepSeparator = "===================================="

// Options configures a Logger.
type Options struct {
	// Level is "info" (default) or "debug".
	Level Level
	// EnableFile mirrors every line into a daily log file under Dir.
	EnableFile bool
	// Dir is the log file directory.
	Dir string
	// Stdout and Stderr default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
}

// Logger prints glyph-prefixed lines to the terminal and optionally appends
// them to dx-<date>.log. A nil *Logger discards everything.
type Logger struct {
	mu         sync.Mutex
	level      Level
	enableFile bool
	dir        string
	stdout     io.Writer
	stderr     io.Writer
	now        func() time.Time
	getenv     func(string) string

	infoStyle    lipgloss.Style
	successStyle lipgloss.Style
	warnStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	debugStyle   lipgloss.Style
	stepStyle    lipgloss.Style
}

// New creates a Logger. The log directory is created eagerly when file
// output is enabled; if that fails, file writes are silently dropped.
func New(opts Options) *Logger {
	if opts.Level == "" {
		opts.Level = LevelInfo
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	out := lipgloss.NewRenderer(opts.Stdout)
	errOut := lipgloss.NewRenderer(opts.Stderr)

	l := &Logger{
		level:      opts.Level,
		enableFile: opts.EnableFile,
		dir:        opts.Dir,
		stdout:     opts.Stdout,
		stderr:     opts.Stderr,
		now:        time.Now,
		getenv:     os.Getenv,

		infoStyle:    out.NewStyle(),
		successStyle: out.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#00AA00", Dark: "#00FF00"}),
		warnStyle:    errOut.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B58900", Dark: "#FFCC00"}),
		errorStyle:   errOut.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#CC0000", Dark: "#FF5555"}),
		debugStyle:   out.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#999999", Dark: "#666666"}),
		stepStyle:    out.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"}),
	}

	if l.enableFile && l.dir != "" {
		_ = os.MkdirAll(l.dir, 0o755)
	}

	return l
}

// Info prints an informational line with the default rocket glyph.
func (l *Logger) Info(format string, args ...any) {
	l.InfoWithPrefix("🚀", format, args...)
}

// InfoWithPrefix prints an informational line with a custom glyph.
func (l *Logger) InfoWithPrefix(prefix, format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.print(l.stdout, l.infoStyle.Render(prefix+" "+msg))
	l.writeFile("info", msg)
}

func (l *Logger) Success(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.print(l.stdout, l.successStyle.Render("✅ "+msg))
	l.writeFile("success", msg)
}

func (l *Logger) Warn(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.print(l.stderr, l.warnStyle.Render("⚠️  "+msg))
	l.writeFile("warn", msg)
}

func (l *Logger) Error(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.print(l.stderr, l.errorStyle.Render("❌ "+msg))
	l.writeFile("error", msg)
}

// Debug prints only when the level is debug or DEBUG is set in the environment.
func (l *Logger) Debug(format string, args ...any) {
	if l == nil || !l.DebugEnabled() {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.print(l.stdout, l.debugStyle.Render("🐛 "+msg))
	l.writeFile("debug", msg)
}

// Step prints a banner marking the start of a phase.
func (l *Logger) Step(format string, args ...any) {
	if l == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)
	l.print(l.stdout, "\n"+stepSeparator+"\n"+l.stepStyle.Render("🚀 "+msg)+"\n"+stepSeparator)
	l.writeFile("step", msg)
}

// DebugEnabled reports whether Debug lines are emitted.
func (l *Logger) DebugEnabled() bool {
	if l == nil {
		return false
	}
	return l.level == LevelDebug || l.getenv("DEBUG") != ""
}

// FilePath returns the log file the current day's lines go to, or "" when
// file output is disabled.
func (l *Logger) FilePath() string {
	if l == nil || !l.enableFile || l.dir == "" {
		return ""
	}
	return filepath.Join(l.dir, fmt.Sprintf("dx-%s.log", l.now().Format("2006-01-02")))
}

func (l *Logger) print(w io.Writer, line string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	// A closed pipe on the other end must not take the process down.
	_, _ = fmt.Fprintln(w, line)
}

func (l *Logger) writeFile(level, msg string) {
	path := l.FilePath()
	if path == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	ts := l.now().Format("2006-01-02 15:04:05")
	_, _ = fmt.Fprintf(f, "[%s] [%s] %s\n", ts, strings.ToUpper(level), msg)
}
