package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mzurita/fototeca/internal/extractor"
	"github.com/mzurita/fototeca/internal/vecindex"
)

var searchK int

var searchCmd = &cobra.Command{
	Use:   "search <image>",
	Short: "Find similar faces for every face in an image",
	Long: `Detect the faces in an image file and search the gallery for the most
similar known faces. The image itself is not imported.

Requires the face embedding server to be running.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().IntVar(&searchK, "k", 5, "Number of matches per face")
}

func runSearch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	ext := extractor.NewHTTPClient(cfg.Extractor.URL)
	detections, err := ext.Detect(cmd.Context(), data)
	if err != nil {
		return fmt.Errorf("detecting faces: %w", err)
	}
	if len(detections) == 0 {
		fmt.Println("No faces found in image")
		return nil
	}

	ctx := cmd.Context()
	for i, det := range detections {
		fmt.Printf("Face %d (confidence %.2f):\n", i+1, det.Confidence)

		matches, err := stores.Index.SearchNearest(det.Embedding, searchK)
		if err != nil {
			return err
		}

		found := false
		for _, m := range matches {
			if m.ID == vecindex.NotFound {
				continue
			}
			detail, err := stores.Meta.FaceDetail(ctx, m.ID)
			if err != nil {
				return err
			}
			name := detail.PersonName
			if name == "" {
				name = "(unbound)"
			}
			fmt.Printf("  %.3f  %s  %s\n", m.Similarity, name, detail.PhotoPath)
			found = true
		}
		if !found {
			fmt.Println("  no matches")
		}
	}
	return nil
}
