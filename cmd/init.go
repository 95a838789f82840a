package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the gallery data directory and storage files",
	Long: `Initialize a new gallery. Creates the data directory with an empty
metadata database and an empty face index. Running init on an existing
gallery is harmless.`,
	RunE: runInit,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	fmt.Printf("Gallery initialized in %s\n", cfg.Data.Dir)
	fmt.Printf("  Database: %s\n", cfg.Data.DBPath())
	fmt.Printf("  Index:    %s (dimension %d)\n", cfg.Data.IndexPath(), cfg.Matching.EmbeddingDim)
	return nil
}
