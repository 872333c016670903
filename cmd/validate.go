package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/secrets"
)

// validateCmd represents the validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the resolved environment for missing or placeholder values",
	Long: `The validate command resolves the selected profile and checks it:
- required variables must be set (error)
- recommended variables should be set (warning)
- placeholder values left from templates (warning outside development)
- production: DATABASE_URL sslmode and empty passwords (warning)

The lists come from the validate section of .dx.yaml, with built-in
defaults for anything left out.`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func runValidate(cmd *cobra.Command, args []string) error {
	profile := dx.resolver.DetectEnvironment(profileFlags())
	env := dx.resolver.CollectEnvFromLayers(profile)
	env[dx.resolver.ProfileVar()] = profile

	dx.log.Step("Environment validation: %s", envlayers.Description(profile))

	report := secrets.Validate(env, profile, secrets.Rules{
		Required:     dx.cfg.Validate.Required,
		Recommended:  dx.cfg.Validate.Recommended,
		Placeholders: dx.cfg.Validate.Placeholders,
	})

	for _, f := range report.Errors() {
		dx.log.Error("%s", f.Message)
	}
	for _, f := range report.Warnings() {
		dx.log.Warn("%s", f.Message)
		dx.log.Debug("%s: %s", f.Key, secrets.Describe(f.Key))
	}

	if !report.OK() {
		return fmt.Errorf("environment validation failed: %d error(s)", len(report.Errors()))
	}
	dx.log.Success("environment validation passed")
	return nil
}
