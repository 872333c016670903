package doctor

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/ports"
	"github.com/harshul/dx-cli/internal/project"
)

// Status of a single check
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusFail Status = "fail"
)

// Check is the result of one diagnostic
type Check struct {
	Group  string // shell, ports, layers, tasks
	Name   string
	Status Status
	Detail string
}

// Diagnosis contains the full health check results
type Diagnosis struct {
	Root    string
	Checks  []Check
	Healthy bool
	Issues  []string
}

// Input is everything Diagnose looks at
type Input struct {
	Config   project.Config
	Resolver *envlayers.Resolver
	Finder   ports.Finder
	// PortAvailable defaults to ports.IsPortAvailable.
	PortAvailable func(port int) bool
	// NextFree defaults to ports.FindAvailablePort and returns 0 when none is found.
	NextFree func(start int) int
	// LookPath defaults to exec.LookPath.
	LookPath func(file string) (string, error)
}

// Diagnose checks the toolchain and project configuration. Failures make the
// diagnosis unhealthy; warnings are reported but do not.
func Diagnose(ctx context.Context, in Input) Diagnosis {
	if in.PortAvailable == nil {
		in.PortAvailable = ports.IsPortAvailable
	}
	if in.NextFree == nil {
		in.NextFree = ports.FindAvailablePort
	}
	if in.LookPath == nil {
		in.LookPath = exec.LookPath
	}

	d := Diagnosis{
		Root:    in.Config.Root,
		Healthy: true,
	}

	d.add(checkShell(in))
	d.add(checkPortTool(in))
	d.add(checkLayerTable(in))
	for _, c := range checkLayers(in) {
		d.add(c)
	}
	for _, c := range checkTasks(ctx, in) {
		d.add(c)
	}

	return d
}

func (d *Diagnosis) add(c Check) {
	d.Checks = append(d.Checks, c)
	if c.Status == StatusFail {
		d.Healthy = false
		d.Issues = append(d.Issues, c.Name+": "+c.Detail)
	}
}

// checkShell checks that the shell used to run commands is installed
func checkShell(in Input) Check {
	shell := in.Config.Shell
	if shell == "" {
		shell = "sh"
		if runtime.GOOS == "windows" {
			shell = "cmd"
		}
	}

	c := Check{Group: "shell", Name: shell}
	path, err := in.LookPath(shell)
	if err != nil {
		c.Status = StatusFail
		c.Detail = "not found on PATH"
		return c
	}
	c.Status = StatusOK
	c.Detail = path
	return c
}

// checkPortTool reports how port holders are looked up
func checkPortTool(in Input) Check {
	c := Check{Group: "ports", Name: "port inspection", Status: StatusOK}
	if in.Finder == nil {
		c.Status = StatusWarn
		c.Detail = "disabled, busy ports will not be freed"
		return c
	}

	switch in.Finder.Name() {
	case "lsof":
		path, err := in.LookPath("lsof")
		if err != nil {
			c.Status = StatusWarn
			c.Detail = "lsof selected but not found on PATH"
			return c
		}
		c.Detail = "lsof (" + path + ")"
	default:
		c.Detail = in.Finder.Name() + " (lsof not installed)"
	}
	return c
}

func checkLayerTable(in Input) Check {
	c := Check{Group: "layers", Name: "layer table", Status: StatusOK}
	if in.Resolver == nil {
		c.Status = StatusFail
		c.Detail = "no resolver"
		return c
	}

	switch src := in.Resolver.TableSource(); src {
	case "":
		c.Status = StatusWarn
		c.Detail = "using built-in fallback table (" + in.Config.Layers + " not loaded)"
	default:
		c.Detail = src
	}
	return c
}

// checkLayers reports, per profile, how many layer files exist. A profile with
// no files at all is a warning.
func checkLayers(in Input) []Check {
	if in.Resolver == nil {
		return nil
	}

	var checks []Check
	for _, profile := range in.Resolver.Profiles() {
		layers := in.Resolver.Layers(profile)
		var found []string
		for _, l := range layers {
			if l.Exists {
				found = append(found, l.Path)
			}
		}

		c := Check{Group: "layers", Name: profile, Status: StatusOK}
		switch {
		case len(layers) == 0:
			c.Status = StatusWarn
			c.Detail = "no layer files configured"
		case len(found) == 0:
			c.Status = StatusWarn
			c.Detail = fmt.Sprintf("none of %d layer file(s) exist", len(layers))
		default:
			c.Detail = fmt.Sprintf("%d/%d present: %s", len(found), len(layers), strings.Join(found, ", "))
		}
		checks = append(checks, c)
	}
	return checks
}

// checkTasks validates every task's command syntax and configured ports.
func checkTasks(ctx context.Context, in Input) []Check {
	var checks []Check
	for _, name := range in.Config.TaskNames() {
		if ctx.Err() != nil {
			break
		}
		task, _ := in.Config.Task(name)

		c := Check{Group: "tasks", Name: name, Status: StatusOK, Detail: task.Run}
		if err := CheckSyntax(task.Run); err != nil {
			c.Status = StatusFail
			c.Detail = err.Error()
			checks = append(checks, c)
			continue
		}

		var busy []string
		for _, port := range task.Ports {
			if err := ports.Validate(port); err != nil {
				c.Status = StatusFail
				c.Detail = err.Error()
				break
			}
			if !in.PortAvailable(port) {
				busy = append(busy, busyPort(port, in.NextFree))
			}
		}
		if c.Status == StatusOK && len(busy) > 0 {
			c.Status = StatusWarn
			c.Detail = "port(s) in use: " + strings.Join(busy, ", ") + "; will be freed on run"
		}
		checks = append(checks, c)
	}
	return checks
}

// busyPort describes an occupied port and the next free one above it.
func busyPort(port int, nextFree func(int) int) string {
	if port < 65535 {
		if next := nextFree(port + 1); next > 0 {
			return fmt.Sprintf("%d (next free: %d)", port, next)
		}
	}
	return fmt.Sprint(port)
}

// CheckSyntax parses command as a shell program and returns the first syntax
// error, if any.
func CheckSyntax(command string) error {
	if strings.TrimSpace(command) == "" {
		return fmt.Errorf("empty command")
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := parser.Parse(strings.NewReader(command), ""); err != nil {
		return fmt.Errorf("syntax error: %w", err)
	}
	return nil
}
