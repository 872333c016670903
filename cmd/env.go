package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"mvdan.cc/sh/v3/syntax"

	"github.com/harshul/dx-cli/internal/envlayers"
	"github.com/harshul/dx-cli/internal/secrets"
)

// envCmd represents the env command
var envCmd = &cobra.Command{
	Use:   "env",
	Short: "Show the environment a command would receive",
	Long: `The env command resolves the selected profile and prints the layer files
that apply, in order, followed by the variables they set. Sensitive values
are masked unless --reveal is given.

Formats:
  table    human readable (default)
  dotenv   KEY="value" lines, usable as an .env file
  shell    export KEY='value' lines, usable with eval`,
	Args: cobra.NoArgs,
	RunE: runEnv,
}

func init() {
	envCmd.Flags().StringP("format", "f", "table", "Output format: table, dotenv or shell")
	envCmd.Flags().Bool("all", false, "Include variables inherited from the process environment")
	envCmd.Flags().Bool("reveal", false, "Print sensitive values unmasked")
}

func runEnv(cmd *cobra.Command, args []string) error {
	format, _ := cmd.Flags().GetString("format")
	all, _ := cmd.Flags().GetBool("all")
	reveal, _ := cmd.Flags().GetBool("reveal")

	profile := dx.resolver.DetectEnvironment(profileFlags())
	env := dx.resolver.CollectEnvFromLayers(profile)
	env[dx.resolver.ProfileVar()] = profile

	if !all {
		env = layerOnly(env, profile)
	}
	if !reveal {
		env = secrets.MaskAll(env)
	}

	out := cmd.OutOrStdout()
	switch format {
	case "table":
		printEnvTable(out, profile, env)
		return nil
	case "dotenv":
		s, err := godotenv.Marshal(env)
		if err != nil {
			return fmt.Errorf("failed to format environment: %w", err)
		}
		fmt.Fprintln(out, s)
		return nil
	case "shell":
		return printShellExports(out, env)
	default:
		return fmt.Errorf("unknown format %q (want table, dotenv or shell)", format)
	}
}

// layerOnly keeps the keys set by the profile's layer files plus the
// profile variable
func layerOnly(env map[string]string, profile string) map[string]string {
	keep := map[string]bool{dx.resolver.ProfileVar(): true}
	for _, layer := range dx.resolver.Layers(profile) {
		if !layer.Exists {
			continue
		}
		data, err := os.ReadFile(layer.FullPath)
		if err != nil {
			continue
		}
		for k := range envlayers.Parse(string(data)) {
			keep[k] = true
		}
	}

	out := make(map[string]string, len(keep))
	for k := range keep {
		if v, ok := env[k]; ok {
			out[k] = v
		}
	}
	return out
}

func printEnvTable(w io.Writer, profile string, env map[string]string) {
	r := lipgloss.NewRenderer(w)
	header := r.NewStyle().Bold(true)
	dim := r.NewStyle().Foreground(lipgloss.Color("#888888"))
	key := r.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#AD8EE6"})

	fmt.Fprintln(w, header.Render("Profile: ")+profile+dim.Render(" ("+envlayers.Description(profile)+")"))

	source := dx.resolver.TableSource()
	if source == "" {
		source = "built-in defaults"
	}
	fmt.Fprintln(w, header.Render("Layers:  ")+dim.Render("from "+relPath(dx.resolver.Root(), source)))
	for i, layer := range dx.resolver.Layers(profile) {
		mark := "✅"
		if !layer.Exists {
			mark = dim.Render("--")
		}
		fmt.Fprintf(w, "  %d. %s %s\n", i+1, mark, layer.Path)
	}
	fmt.Fprintln(w)

	keys := sortedKeys(env)
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", key.Render(k+strings.Repeat(" ", width-len(k))), env[k])
	}
}

func printShellExports(w io.Writer, env map[string]string) error {
	for _, k := range sortedKeys(env) {
		if !syntax.ValidName(k) {
			dx.log.Debug("skipping %q: not a valid shell variable name", k)
			continue
		}
		quoted, err := syntax.Quote(env[k], syntax.LangBash)
		if err != nil {
			return fmt.Errorf("cannot quote %s: %w", k, err)
		}
		fmt.Fprintf(w, "export %s=%s\n", k, quoted)
	}
	return nil
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
