package cmd

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/mzurita/fototeca/internal/extractor"
	"github.com/mzurita/fototeca/internal/hybrid"
	"github.com/mzurita/fototeca/internal/resolver"
)

var (
	processLimit int
	processPhoto int64
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Detect faces in unprocessed photos and resolve identities",
	Long: `Run face detection on every photo that has not been processed yet. Each
detected face is either matched to a known person or registered as a new
one, and the photo is tagged with the people appearing in it.

Requires the face embedding server to be running.`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Maximum number of photos to process (0 = all)")
	processCmd.Flags().Int64Var(&processPhoto, "photo", 0, "Process a single photo by id, even if already processed")
}

func runProcess(cmd *cobra.Command, args []string) error {
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

	var photoIDs []int64
	if processPhoto > 0 {
		photoIDs = []int64{processPhoto}
	} else {
		photoIDs, err = stores.Meta.UnprocessedPhotoIDs(ctx)
		if err != nil {
			return err
		}
		if processLimit > 0 && len(photoIDs) > processLimit {
			photoIDs = photoIDs[:processLimit]
		}
	}
	if len(photoIDs) == 0 {
		fmt.Println("Nothing to process")
		return nil
	}

	ext := extractor.NewHTTPClient(cfg.Extractor.URL)
	res := resolver.New(stores.Meta, stores.Index, cfg.Matching.Threshold)

	bar := progressbar.NewOptions(len(photoIDs),
		progressbar.OptionSetDescription("Processing photos"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("photos"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	var matched, created, failed int
	for _, photoID := range photoIDs {
		if err := ctx.Err(); err != nil {
			return err
		}

		resolutions, err := processOne(ctx, res, ext, stores, photoID)
		if err != nil {
			log.Printf("photo %d: %v", photoID, err)
			failed++
			_ = bar.Add(1)
			continue
		}
		for _, r := range resolutions {
			switch r.State {
			case resolver.StateMatched:
				matched++
			case resolver.StateCreated:
				created++
			}
		}
		_ = bar.Add(1)
	}

	fmt.Printf("\nDone: %d faces matched, %d new persons, %d photos failed\n", matched, created, failed)
	return nil
}

func processOne(ctx context.Context, res *resolver.Resolver, ext extractor.Extractor, stores *hybrid.Stores, photoID int64) ([]resolver.Resolution, error) {
	path, err := stores.Meta.GetPhotoPath(ctx, photoID)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	detections, err := ext.Detect(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("detecting faces: %w", err)
	}

	return res.ProcessPhoto(ctx, photoID, detections)
}
