package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// InsertFaces stores a batch of detections for a photo in a single
// transaction and returns the new face ids in input order. Rows start
// unbound (person_id NULL) and the vector index is deliberately not touched;
// identity resolution owns that step.
func (s *Store) InsertFaces(ctx context.Context, photoID int64, detections []FaceDetection) ([]int64, error) {
	ids := make([]int64, 0, len(detections))

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, det := range detections {
			id, err := insertFaceTx(ctx, tx, photoID, nil, det)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// insertFaceTx inserts one face row, optionally already bound to a person.
// The raw embedding is kept as a BLOB backup alongside the metadata.
func insertFaceTx(ctx context.Context, tx *sql.Tx, photoID int64, personID *int64, det FaceDetection) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO faces (photo_id, person_id, bbox_x, bbox_y, bbox_w, bbox_h, confidence, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		photoID, personID,
		det.BBox.X, det.BBox.Y, det.BBox.W, det.BBox.H,
		det.Confidence, EncodeEmbedding(det.Embedding),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting face: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading face id: %w", err)
	}
	return id, nil
}

// FacePerson returns the person a face is bound to. The bool is false when
// the face exists but has no person yet.
func (s *Store) FacePerson(ctx context.Context, faceID int64) (int64, bool, error) {
	var personID sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		"SELECT person_id FROM faces WHERE id = ?", faceID).Scan(&personID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("face %d: %w", faceID, ErrNotFound)
	}
	if err != nil {
		return 0, false, fmt.Errorf("querying face person: %w", err)
	}
	return personID.Int64, personID.Valid, nil
}

// BackfillFacePerson binds a previously unbound face row to a person.
// Face rows are append-only apart from this backfill.
func (s *Store) BackfillFacePerson(ctx context.Context, faceID, personID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE faces SET person_id = ? WHERE id = ?", personID, faceID)
	if err != nil {
		return fmt.Errorf("backfilling face person: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("face %d: %w", faceID, ErrNotFound)
	}
	return nil
}

// PersonBoundFaces returns all faces bound to a person together with their
// backup embeddings. Reconciliation uses this to rebuild vector entries the
// index lost in a crash between insert and persist.
func (s *Store) PersonBoundFaces(ctx context.Context) ([]BoundFace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, person_id, embedding
		FROM faces
		WHERE person_id IS NOT NULL AND embedding IS NOT NULL
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying person-bound faces: %w", err)
	}
	defer rows.Close()

	var faces []BoundFace
	for rows.Next() {
		var (
			f    BoundFace
			blob []byte
		)
		if err := rows.Scan(&f.FaceID, &f.PersonID, &blob); err != nil {
			return nil, fmt.Errorf("scanning face row: %w", err)
		}
		emb, err := DecodeEmbedding(blob)
		if err != nil {
			return nil, fmt.Errorf("face %d: %w", f.FaceID, err)
		}
		f.Embedding = emb
		faces = append(faces, f)
	}
	return faces, rows.Err()
}

// FaceDetail enriches a face id with its person and photo, the shape search
// results are served in.
func (s *Store) FaceDetail(ctx context.Context, faceID int64) (FaceDetail, error) {
	var (
		d          FaceDetail
		personID   sql.NullInt64
		personName sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT f.id, f.person_id, p.display_name, f.photo_id, ph.path
		FROM faces f
		LEFT JOIN persons p ON f.person_id = p.id
		JOIN photos ph ON f.photo_id = ph.id
		WHERE f.id = ?`, faceID,
	).Scan(&d.FaceID, &personID, &personName, &d.PhotoID, &d.PhotoPath)
	if errors.Is(err, sql.ErrNoRows) {
		return FaceDetail{}, fmt.Errorf("face %d: %w", faceID, ErrNotFound)
	}
	if err != nil {
		return FaceDetail{}, fmt.Errorf("querying face detail: %w", err)
	}
	d.PersonID = personID.Int64
	d.PersonName = personName.String
	return d, nil
}

// CountFaces returns the total number of face rows.
func (s *Store) CountFaces(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM faces").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting faces: %w", err)
	}
	return count, nil
}

// CountFacesWithPerson returns the number of faces bound to a person.
func (s *Store) CountFacesWithPerson(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM faces WHERE person_id IS NOT NULL").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting bound faces: %w", err)
	}
	return count, nil
}
