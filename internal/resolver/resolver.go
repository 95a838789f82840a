// Package resolver decides who a detected face belongs to. Each embedding is
// compared against the nearest indexed face; close enough means the face is
// another sighting of a known person, otherwise a brand-new identity is
// registered. Distances are cosine distances (1 - similarity).
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/mzurita/fototeca/internal/store"
	"github.com/mzurita/fototeca/internal/vecindex"
)

// State tells the caller whether a face matched an existing person or caused
// a new one to be created.
type State string

const (
	StateMatched State = "matched"
	StateCreated State = "created"
)

// Resolution is the outcome of resolving one face.
type Resolution struct {
	State    State `json:"state"`
	PersonID int64 `json:"person_id"`
	FaceID   int64 `json:"face_id"`
	// Distance to the nearest indexed face. Meaningless for the first face
	// ever resolved (empty index).
	Distance float64 `json:"distance"`
}

// Resolver binds embeddings to person identities using the vector index for
// lookups and the relational store as the source of truth.
type Resolver struct {
	store     *store.Store
	index     *vecindex.Index
	threshold float64

	// Serializes resolutions so two near-duplicate faces arriving
	// concurrently cannot both register a fresh person.
	mu sync.Mutex
}

// New creates a resolver. Threshold is the maximum cosine distance at which
// two faces are still considered the same person.
func New(st *store.Store, index *vecindex.Index, threshold float64) *Resolver {
	return &Resolver{store: st, index: index, threshold: threshold}
}

// ResolveFace records a face detection from a photo and binds it to a
// person, creating one when no indexed face is close enough. The relational
// write always commits before the vector index is touched; an index failure
// after commit is logged and repaired later by Reconcile rather than
// returned, because the identity already exists.
func (r *Resolver) ResolveFace(ctx context.Context, photoID int64, det store.FaceDetection) (Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	nearestID, similarity, err := r.index.Nearest(det.Embedding)
	if err != nil {
		return Resolution{}, fmt.Errorf("searching face index: %w", err)
	}
	distance := 1 - similarity

	if nearestID != vecindex.NotFound && distance < r.threshold {
		personID, bound, err := r.store.FacePerson(ctx, nearestID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// Index entry with no face row: stale vector, treat as a miss.
			log.Printf("face index entry %d has no database row, ignoring match", nearestID)
		case err != nil:
			return Resolution{}, err
		case !bound:
			log.Printf("face %d matched but is not bound to a person, ignoring match", nearestID)
		default:
			faceID, err := r.recordSighting(ctx, photoID, personID, det)
			if err != nil {
				return Resolution{}, err
			}
			return Resolution{
				State:    StateMatched,
				PersonID: personID,
				FaceID:   faceID,
				Distance: distance,
			}, nil
		}
	}

	ident, err := r.store.RegisterNewIdentity(ctx, photoID, det, "")
	if err != nil {
		return Resolution{}, fmt.Errorf("registering new identity: %w", err)
	}

	if err := r.index.Insert(ident.FaceID, det.Embedding); err != nil {
		log.Printf("face %d committed but index insert failed (will reconcile): %v", ident.FaceID, err)
	} else if err := r.index.Save(); err != nil {
		log.Printf("face %d indexed but index save failed (will reconcile): %v", ident.FaceID, err)
	}

	return Resolution{
		State:    StateCreated,
		PersonID: ident.PersonID,
		FaceID:   ident.FaceID,
		Distance: distance,
	}, nil
}

// recordSighting stores a matched face as a new row bound to the person. The
// row keeps its embedding blob but is not added to the index; one indexed
// exemplar per person is enough for matching at these thresholds.
func (r *Resolver) recordSighting(ctx context.Context, photoID, personID int64, det store.FaceDetection) (int64, error) {
	ids, err := r.store.InsertFaces(ctx, photoID, []store.FaceDetection{det})
	if err != nil {
		return 0, fmt.Errorf("inserting matched face: %w", err)
	}
	if err := r.store.BackfillFacePerson(ctx, ids[0], personID); err != nil {
		return 0, err
	}
	return ids[0], nil
}

// ProcessPhoto resolves all detections from one photo, attaches the matched
// persons' tags to the photo, and marks it processed. A photo with no faces
// still gets marked so it is not retried forever.
func (r *Resolver) ProcessPhoto(ctx context.Context, photoID int64, detections []store.FaceDetection) ([]Resolution, error) {
	resolutions := make([]Resolution, 0, len(detections))

	for _, det := range detections {
		res, err := r.ResolveFace(ctx, photoID, det)
		if err != nil {
			return resolutions, err
		}
		resolutions = append(resolutions, res)

		tag, err := r.store.GetPersonTag(ctx, res.PersonID)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("person %d has no tag, skipping photo tagging", res.PersonID)
			continue
		}
		if err != nil {
			return resolutions, err
		}
		if err := r.store.AssignTag(ctx, photoID, tag.ID, false); err != nil {
			return resolutions, err
		}
	}

	if err := r.store.MarkProcessed(ctx, photoID); err != nil {
		return resolutions, err
	}
	return resolutions, nil
}

// Reconcile rebuilds vector index entries from the embedding blobs of
// person-bound face rows. It repairs the gap a crash between the relational
// commit and the index save leaves behind, and returns how many entries were
// restored.
func (r *Resolver) Reconcile(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	faces, err := r.store.PersonBoundFaces(ctx)
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, f := range faces {
		if r.index.Contains(f.FaceID) {
			continue
		}
		if err := r.index.Insert(f.FaceID, f.Embedding); err != nil {
			return restored, fmt.Errorf("restoring face %d: %w", f.FaceID, err)
		}
		restored++
	}

	if restored > 0 {
		if err := r.index.Save(); err != nil {
			return restored, fmt.Errorf("saving reconciled index: %w", err)
		}
	}
	return restored, nil
}
