package main

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"

	"github.com/harshul/dx-cli/internal/doctor"
	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/ports"
	"github.com/harshul/dx-cli/internal/project"
	"github.com/harshul/dx-cli/internal/runner"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run [flags] -- <command>",
	Short: "Run a shell command with the profile environment",
	Long: `The run command executes a shell command with the environment of the
selected profile: the process environment, then the profile's .env layers,
then any --env overrides. Ports given with --port are freed first by
stopping whatever process listens on them.

A single argument after -- is shell text and runs as written. Several
arguments are taken as a command and its arguments, quoted one by one.

Examples:
  dx run --port 3000 -- npm run start:dev
  dx run -- 'npm run build && npm start'
  dx run --prod --confirm dangerous -- ./scripts/deploy.sh
  dx run --test --env LOG_LEVEL=debug -- npm test`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().IntSliceP("port", "p", nil, "Free this port before starting (repeatable)")
	runCmd.Flags().StringArrayP("env", "e", nil, "Extra KEY=VALUE for the command (repeatable)")
	runCmd.Flags().String("cwd", "", "Working directory, relative to the project root")
	runCmd.Flags().Bool("auto-port", false, "Free the port the command appears to listen on")
	runCmd.Flags().String("confirm", "", "Ask before running: database, dangerous or production")
	runCmd.Flags().Bool("check", false, "Only check the command's shell syntax")
}

func runRun(cmd *cobra.Command, args []string) error {
	command, err := shellCommand(args)
	if err != nil {
		return err
	}

	portList, _ := cmd.Flags().GetIntSlice("port")
	envPairs, _ := cmd.Flags().GetStringArray("env")
	cwd, _ := cmd.Flags().GetString("cwd")
	autoPort, _ := cmd.Flags().GetBool("auto-port")
	confirmKind, _ := cmd.Flags().GetString("confirm")
	checkOnly, _ := cmd.Flags().GetBool("check")

	if checkOnly {
		if err := doctor.CheckSyntax(command); err != nil {
			return err
		}
		dx.log.Success("syntax ok: %s", command)
		return nil
	}

	env, err := parseEnvPairs(envPairs)
	if err != nil {
		return err
	}

	if autoPort {
		if info := ports.ExtractPort(command); info.Found && !slices.Contains(portList, info.Port) {
			dx.log.Debug("detected port %d from %q (%s)", info.Port, info.Original, info.Pattern)
			portList = append(portList, info.Port)
		}
	}

	return dx.execute(cmd, invocation{
		name:    command,
		command: command,
		dir:     dx.cfg.TaskDir(project.Task{Cwd: cwd}),
		env:     env,
		ports:   portList,
		confirm: confirmKind,
	})
}

// shellCommand builds the shell text for the arguments after --. A single
// argument is already shell text and is passed through; several arguments
// are an argv and each one is quoted so the shell sees the same words.
func shellCommand(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	words := make([]string, len(args))
	for i, arg := range args {
		quoted, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return "", fmt.Errorf("cannot quote argument %q: %w", arg, err)
		}
		words[i] = quoted
	}
	return strings.Join(words, " "), nil
}

// invocation is one command to gate and execute
type invocation struct {
	name    string
	command string
	dir     string
	env     map[string]string
	ports   []int
	confirm string
}

// execute gates, then runs inv through the process runner
func (a *app) execute(cmd *cobra.Command, inv invocation) error {
	for _, port := range inv.ports {
		if err := ports.Validate(port); err != nil {
			return err
		}
	}

	r := a.newRunner()

	profile := a.resolver.DetectEnvironment(profileFlags())
	if err := a.confirmInvocation(inv, profile); err != nil {
		return err
	}

	a.log.Step("%s (%s)", inv.name, envlayers.Description(profile))

	if _, err := r.Execute(cmd.Context(), inv.command, runner.Options{
		Flags: profileFlags(),
		Dir:   inv.dir,
		Env:   inv.env,
		Ports: inv.ports,
	}); err != nil {
		return err
	}

	a.log.Success("%s finished", inv.name)
	return nil
}

// confirmInvocation asks before a gated command. production only asks when
// the resolved profile is production.
func (a *app) confirmInvocation(inv invocation, profile string) error {
	desc := envlayers.Description(profile)

	var (
		ok  bool
		err error
	)
	switch inv.confirm {
	case project.ConfirmNone:
		return nil
	case project.ConfirmDatabase:
		ok, err = a.gate.ConfirmDatabaseOperation(inv.name, desc, flags.yes)
	case project.ConfirmDangerous:
		ok, err = a.gate.ConfirmDangerous(inv.name, desc, flags.yes)
	case project.ConfirmProduction:
		if profile != envlayers.Production {
			return nil
		}
		ok, err = a.gate.ConfirmDangerous(inv.name, desc, flags.yes)
	default:
		return fmt.Errorf("unknown confirm kind %q", inv.confirm)
	}
	if err != nil {
		return fmt.Errorf("confirmation failed: %w", err)
	}
	if !ok {
		return errAborted
	}
	return nil
}

// parseEnvPairs turns KEY=VALUE flags into a map
func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --env %q, expected KEY=VALUE", pair)
		}
		env[key] = value
	}
	return env, nil
}

// relPath shortens path for display when it is under root
func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
		return rel
	}
	return path
}
