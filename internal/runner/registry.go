package runner

import (
	"os/exec"
	"slices"
	"syscall"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// record is a registry entry for a child that has not been reaped yet.
type record struct {
	id        int
	cmd       *exec.Cmd
	command   string
	startTime time.Time
}

// ProcessStatus describes one live child.
type ProcessStatus struct {
	ID        int
	PID       int
	Command   string
	StartTime time.Time
	Duration  time.Duration
	// RSS is the resident memory in bytes, or 0 when it could not be read.
	RSS uint64
}

// Status is a snapshot of the live-process registry.
type Status struct {
	Running   int
	Processes []ProcessStatus
}

// startAndRegister starts cmd and records it under the registry lock, so a
// concurrent Cleanup either sees the child or runs before it exists.
func (r *Runner) startAndRegister(cmd *exec.Cmd, command string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := cmd.Start(); err != nil {
		return 0, err
	}

	r.nextID++
	id := r.nextID
	r.procs[id] = &record{
		id:        id,
		cmd:       cmd,
		command:   command,
		startTime: time.Now(),
	}
	return id, nil
}

func (r *Runner) unregister(id int) {
	r.mu.Lock()
	delete(r.procs, id)
	r.mu.Unlock()
}

// Cleanup terminates every registered child together with the processes it
// started, then empties the registry. It never fails or panics and returns
// how many registered children were signalled.
func (r *Runner) Cleanup() (terminated int) {
	defer func() {
		_ = recover()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.procs) == 0 {
		return 0
	}

	tree := processTree()
	for id, rec := range r.procs {
		if p := rec.cmd.Process; p != nil {
			// Collect descendants before the shell dies and they are reparented.
			descendants := tree.descendants(int32(p.Pid))
			if err := p.Signal(syscall.SIGTERM); err != nil {
				// Windows has no SIGTERM delivery.
				_ = p.Kill()
			}
			for _, d := range descendants {
				terminate(d)
			}
			terminated++
		}
		delete(r.procs, id)
	}
	return terminated
}

// parentTable maps a pid to the pids of its direct children.
type parentTable map[int32][]int32

// processTree snapshots the parent/child relations of all processes.
func processTree() parentTable {
	procs, err := process.Processes()
	if err != nil {
		return nil
	}
	tree := make(parentTable, len(procs))
	for _, p := range procs {
		ppid, err := p.Ppid()
		if err != nil {
			continue
		}
		tree[ppid] = append(tree[ppid], p.Pid)
	}
	return tree
}

// descendants returns every process below pid, deepest first.
func (t parentTable) descendants(pid int32) []int32 {
	var out []int32
	seen := map[int32]bool{pid: true}
	var walk func(int32)
	walk = func(parent int32) {
		for _, child := range t[parent] {
			if seen[child] {
				continue
			}
			seen[child] = true
			walk(child)
			out = append(out, child)
		}
	}
	walk(pid)
	return out
}

func terminate(pid int32) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return
	}
	if err := p.Terminate(); err != nil {
		_ = p.Kill()
	}
}

// Status reports the live children ordered by id.
func (r *Runner) Status() Status {
	r.mu.Lock()
	now := time.Now()
	procs := make([]ProcessStatus, 0, len(r.procs))
	for _, rec := range r.procs {
		ps := ProcessStatus{
			ID:        rec.id,
			Command:   rec.command,
			StartTime: rec.startTime,
			Duration:  max(now.Sub(rec.startTime), 0),
		}
		if rec.cmd.Process != nil {
			ps.PID = rec.cmd.Process.Pid
		}
		procs = append(procs, ps)
	}
	r.mu.Unlock()

	slices.SortFunc(procs, func(a, b ProcessStatus) int { return a.ID - b.ID })

	for i := range procs {
		procs[i].RSS = residentMemory(procs[i].PID)
	}

	return Status{Running: len(procs), Processes: procs}
}

func residentMemory(pid int) uint64 {
	if pid <= 0 {
		return 0
	}
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return 0
	}
	mem, err := p.MemoryInfo()
	if err != nil || mem == nil {
		return 0
	}
	return mem.RSS
}
