package commands

import (
	"fmt"
	"os"

	"github.com/DrSkyle/layerline/pkg/orchestrator"
	"github.com/spf13/cobra"
)

var allowPartial bool

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Build and deploy every changed unit",
	Long: `Builds artifacts for changed units, publishes the shared layer first,
then deploys changed functions in parallel with the layer version pinned.

Example:
  layerline deploy --base v1.2.0 --head HEAD
  layerline deploy --base "$LAST_DEPLOYED_SHA" --ledger-table layerline-versions`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		engine, _, err := newEngine(ctx, false)
		if err != nil {
			fmt.Printf("Error initializing deployment: %v\n", err)
			os.Exit(1)
		}

		summary, err := engine.Run(ctx)
		if err != nil {
			fmt.Printf("Error running deployment: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(summary.Render())

		switch summary.Status {
		case orchestrator.StatusFailed:
			os.Exit(1)
		case orchestrator.StatusPartialFailure:
			if !allowPartial {
				os.Exit(2)
			}
		}
	},
}

func init() {
	deployCmd.Flags().BoolVar(&allowPartial, "allow-partial", false, "Exit zero even when some functions failed")
}
