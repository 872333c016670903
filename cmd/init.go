package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/project"
)

// initCmd represents the init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter .dx.yaml and env layer table",
	Long: `The init command writes two files into the project root:
- .dx.yaml with example tasks and validation rules
- config/env-layers.json mapping each profile to its .env layers

Existing files are left alone unless --force is given.`,
	Args: cobra.NoArgs,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolP("force", "f", false, "Overwrite existing files")
	initCmd.Flags().String("name", "", "Project name (default: root directory name)")
}

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	name, _ := cmd.Flags().GetString("name")

	root := dx.resolver.Root()
	if name == "" {
		name = filepath.Base(root)
	}

	configPath := filepath.Join(root, project.FileName)
	if flags.config != "" {
		configPath = flags.config
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(root, configPath)
		}
	}
	cfg := project.Starter(name)
	tablePath := filepath.Join(root, filepath.FromSlash(cfg.Layers))

	wrote := 0
	if ok, err := writeIfAbsent(configPath, force, func() error {
		return project.Write(configPath, cfg)
	}); err != nil {
		return fmt.Errorf("failed to write configuration: %w", err)
	} else if ok {
		wrote++
	}

	if ok, err := writeIfAbsent(tablePath, force, func() error {
		return project.WriteLayerTable(tablePath, envlayers.FallbackTable())
	}); err != nil {
		return fmt.Errorf("failed to write layer table: %w", err)
	} else if ok {
		wrote++
	}

	if wrote == 0 {
		dx.log.Info("nothing to do, use --force to overwrite")
		return nil
	}
	dx.log.Info("Run 'dx task' to list tasks, 'dx doctor' to check the setup")
	return nil
}

// writeIfAbsent runs write unless path exists and force is false
func writeIfAbsent(path string, force bool, write func() error) (bool, error) {
	if _, err := os.Stat(path); err == nil && !force {
		dx.log.Warn("%s already exists, skipping", relPath(dx.resolver.Root(), path))
		return false, nil
	}
	if err := write(); err != nil {
		return false, err
	}
	dx.log.Success("wrote %s", relPath(dx.resolver.Root(), path))
	return true, nil
}
