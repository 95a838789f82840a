// Package importer registers photo files in the metadata store. Importing is
// metadata-only: files are hashed and measured but never copied or moved, and
// face detection happens in a separate processing step.
package importer

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/mzurita/fototeca/internal/store"
)

// supportedExtensions are the file extensions considered photos during a
// directory scan.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
}

// Importer scans files into photo rows.
type Importer struct {
	store *store.Store
}

// New creates an importer writing into the given store.
func New(st *store.Store) *Importer {
	return &Importer{store: st}
}

// Result summarizes a directory import.
type Result struct {
	Imported int
	Skipped  int // unreadable or undecodable files
}

// ImportFile registers a single photo file and returns its row id. Importing
// the same content twice returns the existing row.
func (imp *Importer) ImportFile(ctx context.Context, path string) (int64, error) {
	meta, err := readPhotoMeta(path)
	if err != nil {
		return 0, err
	}
	id, err := imp.store.InsertPhoto(ctx, meta)
	if err != nil {
		return 0, fmt.Errorf("registering %s: %w", path, err)
	}
	return id, nil
}

// ImportDir walks root recursively, importing every supported photo file. A
// file that cannot be read or decoded is logged and skipped; the walk itself
// failing is an error. The optional progress callback fires once per
// considered file.
func (imp *Importer) ImportDir(ctx context.Context, root string, progress func(path string)) (Result, error) {
	var result Result

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if progress != nil {
			progress(path)
		}

		if _, err := imp.ImportFile(ctx, path); err != nil {
			log.Printf("skipping %s: %v", path, err)
			result.Skipped++
			return nil
		}
		result.Imported++
		return nil
	})
	if err != nil {
		return result, fmt.Errorf("walking %s: %w", root, err)
	}
	return result, nil
}

// CountCandidates counts the supported photo files under root, so progress
// bars can show a total before the import starts.
func CountCandidates(root string) (int, error) {
	count := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walking %s: %w", root, err)
	}
	return count, nil
}

// readPhotoMeta hashes and measures one photo file. Capture time falls back
// to the file's modification time when the image carries no usable metadata.
func readPhotoMeta(path string) (store.PhotoMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return store.PhotoMeta{}, fmt.Errorf("reading %s: %w", path, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return store.PhotoMeta{}, fmt.Errorf("stating %s: %w", path, err)
	}

	sum := sha256.Sum256(data)

	meta := store.PhotoMeta{
		Path:        path,
		ContentHash: hex.EncodeToString(sum[:]),
		CaptureTime: captureTime(data, info.ModTime()),
		ByteSize:    int64(len(data)),
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return store.PhotoMeta{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	meta.Width = cfg.Width
	meta.Height = cfg.Height

	return meta, nil
}

// captureTime would parse EXIF DateTimeOriginal here; until then the file
// modification time is the best available approximation.
func captureTime(_ []byte, modTime time.Time) time.Time {
	return modTime
}
