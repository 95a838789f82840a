// Package hybrid opens the two persistence artifacts of the gallery as a
// pair: the relational metadata database and the vector index file. The two
// must be created and opened together; one without the other means the data
// directory was corrupted or half-deleted, and opening it would silently
// produce wrong identity matches.
package hybrid

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mzurita/fototeca/internal/store"
	"github.com/mzurita/fototeca/internal/vecindex"
)

// ErrPairMismatch is returned when exactly one of the database and index
// files exists on disk.
var ErrPairMismatch = errors.New("database and vector index files must exist together")

// Stores bundles the relational store and the vector index.
type Stores struct {
	Meta  *store.Store
	Index *vecindex.Index
}

// Open opens both artifacts, creating a fresh pair when neither exists yet.
// When only one of the two files is present it refuses to proceed and returns
// ErrPairMismatch.
func Open(dbPath, indexPath string, dim int) (*Stores, error) {
	dbExists, err := fileExists(dbPath)
	if err != nil {
		return nil, err
	}
	indexExists, err := fileExists(indexPath)
	if err != nil {
		return nil, err
	}
	if dbExists != indexExists {
		return nil, fmt.Errorf("%w: db=%v (%s), index=%v (%s)",
			ErrPairMismatch, dbExists, dbPath, indexExists, indexPath)
	}

	fresh := !dbExists

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	meta, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	index, err := vecindex.Open(indexPath, dim)
	if err != nil {
		meta.Close()
		return nil, err
	}

	if fresh {
		// Materialize the empty index immediately so the pair stays
		// consistent even if the process dies before the first face.
		if err := index.Save(); err != nil {
			meta.Close()
			return nil, err
		}
	}

	return &Stores{Meta: meta, Index: index}, nil
}

// Close persists the vector index and closes the database.
func (s *Stores) Close() error {
	var errs []error
	if err := s.Index.Save(); err != nil {
		errs = append(errs, fmt.Errorf("saving vector index: %w", err))
	}
	if err := s.Meta.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing database: %w", err))
	}
	return errors.Join(errs...)
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("checking %s: %w", path, err)
}
