package commands

import (
	"fmt"
	"os"

	"github.com/DrSkyle/layerline/pkg/config"
	"github.com/DrSkyle/layerline/pkg/ledger"
	"github.com/DrSkyle/layerline/pkg/platform"
	"github.com/DrSkyle/layerline/pkg/storage"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show the project's deployment record log",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		project, err := config.LoadProject(repoRoot)
		if err != nil {
			fmt.Printf("Error loading project: %v\n", err)
			os.Exit(1)
		}
		if regionFlag != "" {
			project.Region = regionFlag
		}

		var store storage.Store = storage.NewLocalStore(cacheDir)
		if bucket != "" {
			session, err := platform.NewSession(ctx, project.Region)
			if err != nil {
				fmt.Printf("Error creating session: %v\n", err)
				os.Exit(1)
			}
			store = storage.NewS3Store(session.Config, bucket, "layerline")
		}

		records, err := ledger.NewRecordLog(store).List(ctx, project.Name)
		if err != nil {
			fmt.Printf("Error reading deployment log: %v\n", err)
			os.Exit(1)
		}
		if len(records) == 0 {
			fmt.Println("No deployments recorded.")
			return
		}

		// Newest last is natural for a log; trim to the requested window.
		if historyLimit > 0 && len(records) > historyLimit {
			records = records[len(records)-historyLimit:]
		}

		for _, r := range records {
			version := ""
			if r.LayerVersion > 0 {
				version = fmt.Sprintf("v%d", r.LayerVersion)
			}
			fmt.Printf("  %s  %-24s %-20s %-4s %s\n",
				r.Timestamp.Format("2006-01-02 15:04"), r.UnitID, r.Status, version, shortHash(r.ContentHash))
		}
	},
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Maximum records to show")
}
