package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/DrSkyle/layerline/pkg/version"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	repoRoot     string
	baseRev      string
	headRev      string
	outputDir    string
	envName      string
	regionFlag   string
	cacheDir     string
	ledgerDir    string
	ledgerTable  string
	bucket       string
	otelEndpoint string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "layerline",
	Short: "Serverless build and deployment orchestration",
	Long: `Layerline - Shared-Layer Deployment Orchestrator

Detect. Partition. Publish.`,
	Version: version.Current,
	// Run: nil (Forces help output).
	Run: nil,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Persistent Flags
	rootCmd.PersistentFlags().StringVar(&repoRoot, "repo", ".", "Path to the managed repository")
	rootCmd.PersistentFlags().StringVar(&baseRev, "base", "", "Base revision (empty treats every unit as changed)")
	rootCmd.PersistentFlags().StringVar(&headRev, "head", "HEAD", "Head revision")
	rootCmd.PersistentFlags().StringVar(&outputDir, "output", "layerline-out", "Directory for run summaries")
	rootCmd.PersistentFlags().StringVar(&envName, "env", "", "Target environment suffix (prod, staging)")
	rootCmd.PersistentFlags().StringVar(&regionFlag, "region", "", "AWS region (overrides layerline.yaml)")
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", ".layerline/cache", "Local artifact cache directory")
	rootCmd.PersistentFlags().StringVar(&ledgerDir, "ledger-dir", ".layerline/ledger", "Local version ledger directory")
	rootCmd.PersistentFlags().StringVar(&ledgerTable, "ledger-table", "", "DynamoDB table for the version ledger (CI)")
	rootCmd.PersistentFlags().StringVar(&bucket, "artifact-bucket", "", "S3 bucket for the artifact store (CI)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	// Hidden Flags
	rootCmd.PersistentFlags().StringVar(&otelEndpoint, "otel-endpoint", "", "OTLP HTTP endpoint")
	rootCmd.PersistentFlags().MarkHidden("otel-endpoint")

	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		renderHelp(cmd)
	})

	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(unitsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetConfigFile(filepath.Join(home, ".layerline.yaml"))
		viper.SetConfigType("yaml")
	}
	viper.SetEnvPrefix("LAYERLINE")
	viper.AutomaticEnv()
	viper.ReadInConfig()
}

func renderHelp(cmd *cobra.Command) {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#00FF99")).
		MarginBottom(1)

	flagStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("#AAAAAA"))

	fmt.Println(titleStyle.Render(fmt.Sprintf("LAYERLINE %s", version.Current)))
	fmt.Println("Shared-layer build and deployment orchestration for serverless repos.")

	fmt.Println(titleStyle.Render("USAGE"))
	fmt.Printf("  %s\n\n", cmd.UseLine())

	fmt.Println(titleStyle.Render("COMMANDS"))
	for _, c := range cmd.Commands() {
		if c.IsAvailableCommand() {
			fmt.Printf("  %-12s %s\n", c.Name(), c.Short)
		}
	}
	fmt.Println("")

	fmt.Println(titleStyle.Render("EXAMPLES"))
	fmt.Println("  layerline plan --base v1.2.0                 # Show what would deploy")
	fmt.Println("  layerline deploy --base v1.2.0 --head HEAD   # Deploy changed units")
	fmt.Println("")

	fmt.Println(titleStyle.Render("FLAGS"))
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		output := fmt.Sprintf("  --%-15s %s", f.Name, f.Usage)
		if f.DefValue != "" && f.DefValue != "false" && f.DefValue != "0" {
			output += fmt.Sprintf(" (default %s)", f.DefValue)
		}
		fmt.Println(flagStyle.Render(output))
	})
	fmt.Println("")
}
