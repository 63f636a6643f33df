package commands

import (
	"fmt"
	"os"

	"github.com/DrSkyle/layerline/pkg/catalog"
	"github.com/DrSkyle/layerline/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var unitsCmd = &cobra.Command{
	Use:   "units",
	Short: "List the deployable units discovered in the repo",
	Run: func(cmd *cobra.Command, args []string) {
		project, err := config.LoadProject(repoRoot)
		if err != nil {
			fmt.Printf("Error loading project: %v\n", err)
			os.Exit(1)
		}

		units, err := catalog.Discover(repoRoot, project.Name)
		if err != nil {
			fmt.Printf("Error discovering units: %v\n", err)
			os.Exit(1)
		}

		titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
		fmt.Println(titleStyle.Render(fmt.Sprintf("UNITS %s (%d found)", project.Name, len(units))))

		for _, u := range units {
			fmt.Printf("  %-12s %-24s %d deps\n", u.Kind, u.ID, len(u.Dependencies))
		}
	},
}
