package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mzurita/fototeca/internal/importer"
)

var importCmd = &cobra.Command{
	Use:   "import <directory>",
	Short: "Register photos from a directory",
	Long: `Scan a directory recursively and register every supported photo in the
gallery database. Files are hashed and measured but never moved or copied.
Photos already in the gallery are skipped, so re-importing is safe.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	root := args[0]

	total, err := importer.CountCandidates(root)
	if err != nil {
		return err
	}
	if total == 0 {
		fmt.Println("No photos found")
		return nil
	}

	bar := progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Importing photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	imp := importer.New(stores.Meta)
	result, err := imp.ImportDir(cmd.Context(), root, func(string) {
		_ = bar.Add(1)
	})
	if err != nil {
		return err
	}

	fmt.Printf("\nImported %d photos (%d skipped)\n", result.Imported, result.Skipped)
	return nil
}
