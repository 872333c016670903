package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harshul/dx-cli/internal/confirm"
	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/logger"
	"github.com/harshul/dx-cli/internal/ports"
	"github.com/harshul/dx-cli/internal/project"
	"github.com/harshul/dx-cli/internal/runner"
)

// Version information (can be set at build time)
var (
	version = "0.1.0"
)

// errAborted is returned when the operator declines a confirmation.
var errAborted = errors.New("aborted by user")

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dx",
	Short: "Run project commands with layered environments and port cleanup",
	Long: `dx runs development commands with the environment of a profile
(development, production, test, e2e) layered from .env files, frees the
ports a command needs before starting it, and asks before anything
destructive.

Usage:
  dx run -- <command>   Run an ad-hoc command
  dx task <name>        Run a task from .dx.yaml
  dx env                Show the resolved environment
  dx validate           Check the resolved environment
  dx doctor             Check the toolchain and project setup
  dx init               Write a starter .dx.yaml`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
}

// globalFlags holds the persistent flags shared by every command
type globalFlags struct {
	production  bool
	development bool
	test        bool
	e2e         bool
	yes         bool
	root        string
	config      string
	logLevel    string
	logFile     bool
}

var flags globalFlags

// app is built once per invocation from the flags and .dx.yaml
type app struct {
	cfg      project.Config
	log      *logger.Logger
	resolver *envlayers.Resolver
	gate     *confirm.Gate
	runner   *runner.Runner
}

var dx *app

func init() {
	pf := rootCmd.PersistentFlags()
	pf.BoolVar(&flags.production, "production", false, "Use the production profile")
	pf.BoolVar(&flags.production, "prod", false, "Alias for --production")
	pf.BoolVar(&flags.development, "development", false, "Use the development profile")
	pf.BoolVar(&flags.development, "dev", false, "Alias for --development")
	pf.BoolVar(&flags.test, "test", false, "Use the test profile")
	pf.BoolVar(&flags.e2e, "e2e", false, "Use the e2e profile")
	pf.BoolVarP(&flags.yes, "yes", "y", false, "Answer yes to every confirmation")
	pf.StringVar(&flags.root, "root", "", "Project root (default: current directory)")
	pf.StringVarP(&flags.config, "config", "c", "", "Path to the project file (default: <root>/.dx.yaml)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Console log level: info or debug")
	pf.BoolVar(&flags.logFile, "log-file", false, "Also write logs to <log dir>/dx-<date>.log")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(taskCmd)
	rootCmd.AddCommand(envCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(initCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	root := flags.root
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("failed to get current directory: %w", err)
		}
		root = cwd
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve project root: %w", err)
	}

	cfg, err := project.Load(root, flags.config)
	if err != nil {
		// init may be replacing a missing or broken project file
		if cmd != initCmd {
			return fmt.Errorf("failed to read configuration: %w", err)
		}
		cfg = project.Default()
		cfg.Root = root
	}

	level := cfg.Log.Level
	if flags.logLevel != "" {
		level = flags.logLevel
	}
	switch logger.Level(strings.ToLower(level)) {
	case logger.LevelDebug, logger.LevelInfo:
	default:
		return fmt.Errorf("invalid log level %q (want info or debug)", level)
	}

	log := logger.New(logger.Options{
		Level:      logger.Level(strings.ToLower(level)),
		EnableFile: flags.logFile || cfg.Log.File,
		Dir:        cfg.LogDir(),
	})
	if cfg.Path != "" {
		log.Debug("loaded %s", cfg.Path)
	}

	dx = &app{
		cfg: cfg,
		log: log,
		resolver: envlayers.New(root,
			envlayers.WithTablePath(cfg.Layers),
			envlayers.WithProfileVar(cfg.ProfileVar),
			envlayers.WithLogger(log),
		),
		gate: confirm.New(),
	}
	return nil
}

// profileFlags converts the persistent profile flags
func profileFlags() envlayers.Flags {
	return envlayers.Flags{
		Production:  flags.production,
		Development: flags.development,
		Test:        flags.test,
		E2E:         flags.e2e,
	}
}

// newRunner creates the process runner and installs its signal handlers.
// Only commands that spawn children call it.
func (a *app) newRunner() *runner.Runner {
	a.runner = runner.New(a.resolver, a.log,
		runner.WithPortGuard(ports.NewGuard(ports.NewFinder())),
		runner.WithSettleDelay(a.cfg.SettleDelay),
		runner.WithShell(a.cfg.Shell),
		runner.WithSignalHook(a.exitIfIdle),
	)
	return a.runner
}

// exitIfIdle ends dx when a signal arrives while no child is running, e.g.
// during a prompt or the port preflight. With children running, their exit
// unblocks the command instead.
func (a *app) exitIfIdle(sig os.Signal, terminated int) {
	if terminated > 0 {
		return
	}
	a.log.Warn("interrupted")
	code := 1
	if s, ok := sig.(syscall.Signal); ok {
		code = 128 + int(s)
	}
	os.Exit(code)
}

func main() {
	err := rootCmd.Execute()
	if dx != nil && dx.runner != nil {
		dx.runner.Close()
	}
	if err == nil {
		return
	}

	var log *logger.Logger
	if dx != nil {
		log = dx.log
	}

	if code, ok := runner.ExitCode(err); ok {
		log.Error("%v", err)
		if code <= 0 {
			code = 1
		}
		os.Exit(code)
	}

	if log != nil {
		log.Error("%v", err)
	} else {
		fmt.Fprintln(os.Stderr, "❌", err)
	}
	os.Exit(1)
}
