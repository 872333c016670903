package ports

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

// Finder lists the processes listening on a TCP port.
type Finder interface {
	ListenerPIDs(ctx context.Context, port int) ([]int, error)
	Name() string
}

// LsofFinder asks lsof, the same query a developer would type by hand.
type LsofFinder struct{}

func (LsofFinder) Name() string { return "lsof" }

func (LsofFinder) ListenerPIDs(ctx context.Context, port int) ([]int, error) {
	cmd := exec.CommandContext(ctx, "lsof", "-i", fmt.Sprintf(":%d", port), "-t", "-sTCP:LISTEN")
	output, err := cmd.Output()
	if err != nil {
		// lsof exits 1 with no output when nothing matches.
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && len(strings.TrimSpace(string(output))) == 0 {
			return nil, nil
		}
		return nil, fmt.Errorf("lsof :%d: %w", port, err)
	}
	return parsePIDs(string(output)), nil
}

// SystemFinder reads the socket table directly through gopsutil. It works
// where lsof is not installed, including Windows.
type SystemFinder struct{}

func (SystemFinder) Name() string { return "gopsutil" }

func (SystemFinder) ListenerPIDs(ctx context.Context, port int) ([]int, error) {
	conns, err := psnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("list tcp connections: %w", err)
	}

	seen := make(map[int]bool)
	var pids []int
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Laddr.Port != uint32(port) || c.Pid <= 0 {
			continue
		}
		pid := int(c.Pid)
		if !seen[pid] {
			seen[pid] = true
			pids = append(pids, pid)
		}
	}
	return pids, nil
}

// NewFinder prefers lsof when it is on PATH and falls back to gopsutil.
func NewFinder() Finder {
	if _, err := exec.LookPath("lsof"); err == nil {
		return LsofFinder{}
	}
	return SystemFinder{}
}

// parsePIDs reads one PID per line, ignoring junk and duplicates.
func parsePIDs(output string) []int {
	seen := make(map[int]bool)
	var pids []int
	for _, line := range strings.Split(output, "\n") {
		pid, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil || pid <= 0 || seen[pid] {
			continue
		}
		seen[pid] = true
		pids = append(pids, pid)
	}
	return pids
}

// Guard detects and evicts whatever holds a port.
type Guard struct {
	finder Finder
	kill   func(ctx context.Context, pid int) error
	self   int
}

// NewGuard creates a Guard using finder to locate port holders.
func NewGuard(finder Finder) *Guard {
	return &Guard{
		finder: finder,
		kill:   killPID,
		self:   os.Getpid(),
	}
}

// Finder returns the underlying lookup strategy.
func (g *Guard) Finder() Finder { return g.finder }

// InUse reports whether any process listens on port.
func (g *Guard) InUse(ctx context.Context, port int) (bool, error) {
	pids, err := g.holders(ctx, port)
	if err != nil {
		return false, err
	}
	return len(pids) > 0, nil
}

// Free force-kills every process listening on port. The current process is
// never a target.
func (g *Guard) Free(ctx context.Context, port int) error {
	pids, err := g.holders(ctx, port)
	if err != nil {
		return err
	}

	var errs []error
	for _, pid := range pids {
		if err := g.kill(ctx, pid); err != nil {
			errs = append(errs, fmt.Errorf("kill pid %d: %w", pid, err))
		}
	}
	return errors.Join(errs...)
}

func (g *Guard) holders(ctx context.Context, port int) ([]int, error) {
	pids, err := g.finder.ListenerPIDs(ctx, port)
	if err != nil {
		return nil, err
	}
	out := pids[:0]
	for _, pid := range pids {
		if pid != g.self {
			out = append(out, pid)
		}
	}
	return out, nil
}

func killPID(ctx context.Context, pid int) error {
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return err
	}
	return p.KillWithContext(ctx)
}
