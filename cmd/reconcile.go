package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mzurita/fototeca/internal/resolver"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild missing vector index entries from the database",
	Long: `Repair the face index after a crash. Every person-bound face row keeps a
backup copy of its embedding in the database; reconcile re-inserts the ones
the index is missing and persists the result.`,
	RunE: runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	res := resolver.New(stores.Meta, stores.Index, cfg.Matching.Threshold)
	restored, err := res.Reconcile(cmd.Context())
	if err != nil {
		return err
	}

	if restored == 0 {
		fmt.Println("Index is consistent, nothing to restore")
	} else {
		fmt.Printf("Restored %d index entries\n", restored)
	}
	return nil
}
