package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mzurita/fototeca/internal/config"
	"github.com/mzurita/fototeca/internal/hybrid"
)

var rootCmd = &cobra.Command{
	Use:   "fototeca",
	Short: "A photo gallery with face identity resolution",
	Long: `Fototeca manages a personal photo collection. It registers photos into a
local metadata database, detects faces through an external embedding server,
and groups them into person identities using vector similarity search.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig loads configuration for a command run.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

// openStores opens the database/index pair described by the configuration.
func openStores(cfg *config.Config) (*hybrid.Stores, error) {
	stores, err := hybrid.Open(cfg.Data.DBPath(), cfg.Data.IndexPath(), cfg.Matching.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("opening gallery stores: %w", err)
	}
	return stores, nil
}
