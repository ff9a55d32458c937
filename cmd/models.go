package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facechain/internal/config"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Manage the face detection model bundles",
}

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download the model bundles into MODEL_DIR",
	Long: `Download the tiny face detector, 68-point landmark, recognition and expression
bundles from MODEL_URL. Each weights manifest is fetched first, then its shards.
Files already present in MODEL_DIR are reused unless --force is given.

Examples:
  # Fetch into ./models from the default URL
  facechain models fetch

  # Re-download everything
  facechain models fetch --force`,
	RunE: runModelsFetch,
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the configured model bundles",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		fmt.Printf("Model URL: %s\n", cfg.Models.BaseURL)
		fmt.Printf("Model dir: %s\n\n", cfg.Models.Dir)
		for _, b := range cfg.Models.Bundles {
			fmt.Printf("  %-22s %s\n", b.Name, b.Manifest)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsFetchCmd, modelsListCmd)

	modelsFetchCmd.Flags().Bool("force", false, "Download files even if they already exist")
}

func runModelsFetch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	loader, err := loadModels(context.Background(), cfg, mustGetBool(cmd, "force"))
	if err != nil {
		return err
	}

	set := loader.Set()
	names := make([]string, 0, len(set.Files))
	for name := range set.Files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-22s %d files\n", name, len(set.Files[name]))
	}
	return nil
}
