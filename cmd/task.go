package main

import (
	"fmt"
	"maps"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// taskCmd represents the task command
var taskCmd = &cobra.Command{
	Use:   "task [name]",
	Short: "Run a task defined in .dx.yaml",
	Long: `The task command runs a named task from the tasks section of .dx.yaml.
A task declares its command, working directory, ports to free, extra
environment, and whether to ask for confirmation first. Without a name the
available tasks are listed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runTask,
}

func init() {
	taskCmd.Flags().StringArrayP("env", "e", nil, "Extra KEY=VALUE for the task (repeatable)")
}

func runTask(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		listTasks()
		return nil
	}

	name := args[0]
	task, ok := dx.cfg.Task(name)
	if !ok {
		return fmt.Errorf("unknown task %q (run 'dx task' to list tasks)", name)
	}

	envPairs, _ := cmd.Flags().GetStringArray("env")
	extra, err := parseEnvPairs(envPairs)
	if err != nil {
		return err
	}

	env := make(map[string]string, len(task.Env)+len(extra))
	maps.Copy(env, task.Env)
	maps.Copy(env, extra)

	return dx.execute(cmd, invocation{
		name:    name,
		command: task.Run,
		dir:     dx.cfg.TaskDir(task),
		env:     env,
		ports:   task.Ports,
		confirm: task.Confirm,
	})
}

func listTasks() {
	names := dx.cfg.TaskNames()
	if len(names) == 0 {
		dx.log.Warn("no tasks defined (run 'dx init' to create .dx.yaml)")
		return
	}

	nameStyle := lipgloss.NewStyle().Bold(true)
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))

	width := 0
	for _, name := range names {
		width = max(width, len(name))
	}

	fmt.Println("Tasks:")
	for _, name := range names {
		task, _ := dx.cfg.Task(name)
		line := "  " + nameStyle.Render(name+strings.Repeat(" ", width-len(name)))
		if task.Description != "" {
			line += "  " + task.Description
		}
		var tags []string
		if len(task.Ports) > 0 {
			tags = append(tags, fmt.Sprintf("ports %v", task.Ports))
		}
		if task.Confirm != "" {
			tags = append(tags, "confirm "+task.Confirm)
		}
		if len(tags) > 0 {
			line += "  " + dimStyle.Render("("+strings.Join(tags, ", ")+")")
		}
		fmt.Println(line)
	}
}
