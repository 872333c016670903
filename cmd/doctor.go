package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/harshul/dx-cli/internal/doctor"
	"github.com/harshul/dx-cli/internal/ports"
)

// doctorCmd represents the doctor command
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the toolchain and project setup",
	Long: `The doctor command checks that the command shell and port inspection
tools are available, which layer table is in use, which .env layers exist
for each profile, and that every task in .dx.yaml parses and has its
ports free.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	d := doctor.Diagnose(cmd.Context(), doctor.Input{
		Config:   dx.cfg,
		Resolver: dx.resolver,
		Finder:   ports.NewFinder(),
	})

	out := cmd.OutOrStdout()
	r := lipgloss.NewRenderer(out)
	group := r.NewStyle().Bold(true)
	dim := r.NewStyle().Foreground(lipgloss.Color("#888888"))

	current := ""
	for _, c := range d.Checks {
		if c.Group != current {
			current = c.Group
			fmt.Fprintln(out, group.Render(current))
		}
		fmt.Fprintf(out, "  %s %s %s\n", statusGlyph(c.Status), c.Name, dim.Render(c.Detail))
	}
	fmt.Fprintln(out)

	if !d.Healthy {
		return fmt.Errorf("%d problem(s) found", len(d.Issues))
	}
	dx.log.Success("everything looks good")
	return nil
}

func statusGlyph(s doctor.Status) string {
	switch s {
	case doctor.StatusOK:
		return "✅"
	case doctor.StatusWarn:
		return "⚠️ "
	default:
		return "❌"
	}
}
