package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/DrSkyle/layerline/pkg/orchestrator"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var planJSON bool

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a deploy would do, without deploying",
	Long: `Computes the change set and each function's dependency partition, then
prints the planned actions. Nothing is built or published.

Example:
  layerline plan --base v1.2.0
  layerline plan --base v1.2.0 --json`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		engine, _, err := newEngine(ctx, true)
		if err != nil {
			fmt.Printf("Error initializing plan: %v\n", err)
			os.Exit(1)
		}

		plan, err := engine.Plan(ctx)
		if err != nil {
			fmt.Printf("Error computing plan: %v\n", err)
			os.Exit(1)
		}

		if planJSON {
			data, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				fmt.Printf("Error encoding plan: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(data))
			return
		}

		renderPlan(plan)
	},
}

func renderPlan(plan *orchestrator.Plan) {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#00FF99"))
	dimStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

	header := fmt.Sprintf("PLAN %s (%s..%s)", plan.Project, orEmpty(plan.Base, "first-run"), plan.Head)
	fmt.Println(titleStyle.Render(header))
	if plan.LayerVersion > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  layer pinned at v%d", plan.LayerVersion)))
	}

	for _, e := range plan.Entries {
		line := fmt.Sprintf("  %-14s %-24s", e.Action, e.UnitID)
		if e.Action == orchestrator.ActionSkip {
			fmt.Println(dimStyle.Render(line))
			continue
		}
		if len(e.FromLayer) > 0 {
			line += " layer:[" + strings.Join(e.FromLayer, ", ") + "]"
		}
		if len(e.Private) > 0 {
			line += " private:[" + strings.Join(e.Private, ", ") + "]"
		}
		fmt.Println(line)
	}
}

func orEmpty(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

func init() {
	planCmd.Flags().BoolVar(&planJSON, "json", false, "Emit the plan as JSON")
}
