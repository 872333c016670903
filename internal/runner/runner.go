package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"slices"
	"sync"
	"syscall"
	"time"

	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/logger"
)

// DefaultSettleDelay is how long to wait after killing a port holder so the
// OS releases the socket before the next port or the spawn.
const DefaultSettleDelay = time.Second

// PortGuard checks and frees TCP ports ahead of a spawn.
type PortGuard interface {
	InUse(ctx context.Context, port int) (bool, error)
	Free(ctx context.Context, port int) error
}

// Options controls a single Execute call.
type Options struct {
	// Flags select the environment profile.
	Flags envlayers.Flags
	// Dir is the working directory; empty means the current directory.
	Dir string
	// Env is layered over the resolved profile environment.
	Env map[string]string
	// Ports are freed, in order, before the command starts.
	Ports []int
	// Stdin, Stdout and Stderr default to the runner's own streams.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Runner executes shell commands with a layered environment and keeps track
// of live children so they can be terminated when dx itself is stopped.
type Runner struct {
	resolver    *envlayers.Resolver
	log         *logger.Logger
	guard       PortGuard
	settleDelay time.Duration
	sleep       func(time.Duration)
	shell       func(command string) *exec.Cmd
	onSignal    func(sig os.Signal, terminated int)
	noSignals   bool

	mu     sync.Mutex
	nextID int
	procs  map[int]*record

	sigCh     chan os.Signal
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures a Runner.
type Option func(*Runner)

// WithPortGuard sets the port checker used by the preflight.
func WithPortGuard(g PortGuard) Option {
	return func(r *Runner) { r.guard = g }
}

// WithSettleDelay overrides DefaultSettleDelay.
func WithSettleDelay(d time.Duration) Option {
	return func(r *Runner) { r.settleDelay = d }
}

// WithShell runs commands as `<shell> -c <command>` instead of the platform default.
func WithShell(shell string) Option {
	return func(r *Runner) {
		if shell == "" {
			return
		}
		r.shell = func(command string) *exec.Cmd {
			return exec.Command(shell, "-c", command)
		}
	}
}

// WithSignalHook is called after a SIGINT/SIGTERM cleanup with the number of
// children that were signalled.
func WithSignalHook(fn func(sig os.Signal, terminated int)) Option {
	return func(r *Runner) { r.onSignal = fn }
}

// WithoutSignalHandlers skips installing the process-wide signal handlers.
func WithoutSignalHandlers() Option {
	return func(r *Runner) { r.noSignals = true }
}

// New creates a Runner. Unless disabled, SIGINT and SIGTERM handlers are
// installed once for the lifetime of the Runner; call Close on normal exit.
func New(resolver *envlayers.Resolver, log *logger.Logger, opts ...Option) *Runner {
	r := &Runner{
		resolver:    resolver,
		log:         log,
		settleDelay: DefaultSettleDelay,
		sleep:       time.Sleep,
		shell:       defaultShell,
		procs:       make(map[int]*record),
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	if !r.noSignals {
		r.installSignalHandlers()
	}
	return r
}

func defaultShell(command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.Command("cmd", "/C", command)
	}
	return exec.Command("sh", "-c", command)
}

// Resolver returns the environment resolver the runner uses.
func (r *Runner) Resolver() *envlayers.Resolver { return r.resolver }

// ResolveEnv returns the profile selected by flags and the environment a
// child would receive: process env, then layer files, then extra, then the
// profile variable forced to the profile name.
func (r *Runner) ResolveEnv(flags envlayers.Flags, extra map[string]string) (string, map[string]string) {
	name := r.resolver.DetectEnvironment(flags)
	env := r.resolver.CollectEnvFromLayers(name)
	maps.Copy(env, extra)
	env[r.resolver.ProfileVar()] = name
	return name, env
}

// Execute runs command through the shell and waits for it. It returns 0 on a
// zero exit, an *ExitError for any other exit, or the start error when the
// process could not be launched. ctx bounds the port preflight only; the
// child itself is stopped by signals, not by cancellation.
func (r *Runner) Execute(ctx context.Context, command string, opts Options) (int, error) {
	profile, env := r.ResolveEnv(opts.Flags, opts.Env)
	r.log.Debug("environment: %s", profile)

	if len(opts.Ports) > 0 {
		r.handlePortConflicts(ctx, opts.Ports)
	}

	r.log.Debug("executing: %s", command)

	cmd := r.shell(command)
	cmd.Dir = opts.Dir
	cmd.Env = flattenEnv(env)
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	id, err := r.startAndRegister(cmd, command)
	if err != nil {
		return -1, fmt.Errorf("start %q: %w", command, err)
	}

	waitErr := cmd.Wait()
	r.unregister(id)

	if waitErr == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		return exitErr.ExitCode(), &ExitError{
			Command: command,
			Code:    exitErr.ExitCode(),
			State:   exitErr.String(),
		}
	}
	return -1, fmt.Errorf("wait %q: %w", command, waitErr)
}

// handlePortConflicts frees each port in order. A failed lookup counts as a
// free port and a failed kill is only a warning.
func (r *Runner) handlePortConflicts(ctx context.Context, ports []int) {
	if r.guard == nil {
		r.log.Debug("no port guard configured, skipping port preflight")
		return
	}

	for _, port := range ports {
		inUse, err := r.guard.InUse(ctx, port)
		if err != nil {
			r.log.Debug("could not check port %d, assuming free: %v", port, err)
			continue
		}
		if !inUse {
			continue
		}

		r.log.Warn("port %d is in use, trying to free it...", port)
		if err := r.guard.Free(ctx, port); err != nil {
			r.log.Warn("failed to free port %d: %v", port, err)
		} else {
			r.log.Success("freed port %d", port)
		}
		r.sleep(r.settleDelay)
	}
}

func (r *Runner) installSignalHandlers() {
	r.sigCh = make(chan os.Signal, 1)
	signal.Notify(r.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			select {
			case sig := <-r.sigCh:
				r.handleSignal(sig)
			case <-r.done:
				return
			}
		}
	}()
}

func (r *Runner) handleSignal(sig os.Signal) {
	n := r.Cleanup()
	r.log.Debug("received %s, terminated %d child process(es)", sig, n)
	if r.onSignal != nil {
		r.onSignal(sig, n)
	}
}

// Close runs the exit-time cleanup and uninstalls the signal handlers. It is
// safe to call more than once.
func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		r.Cleanup()
		if r.sigCh != nil {
			signal.Stop(r.sigCh)
		}
		close(r.done)
	})
}

func flattenEnv(env map[string]string) []string {
	keys := sortedKeys(env)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}

// sortedKeys returns the keys of m in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
