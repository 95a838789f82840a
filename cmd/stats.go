package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show gallery statistics",
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	ctx := cmd.Context()

	photos, err := stores.Meta.CountPhotos(ctx)
	if err != nil {
		return err
	}
	unprocessed, err := stores.Meta.UnprocessedPhotoIDs(ctx)
	if err != nil {
		return err
	}
	faces, err := stores.Meta.CountFaces(ctx)
	if err != nil {
		return err
	}
	bound, err := stores.Meta.CountFacesWithPerson(ctx)
	if err != nil {
		return err
	}
	persons, err := stores.Meta.CountPersons(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Photos:        %d (%d unprocessed)\n", photos, len(unprocessed))
	fmt.Printf("Faces:         %d (%d bound to persons)\n", faces, bound)
	fmt.Printf("Persons:       %d\n", persons)
	fmt.Printf("Index entries: %d\n", stores.Index.Count())

	if stores.Index.Count() > bound {
		fmt.Println("Warning: index holds more entries than bound faces, it may be stale")
	}
	return nil
}
