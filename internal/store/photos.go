package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}

// InsertPhoto registers a photo. Re-importing identical content (same hash)
// or the same path returns the existing id instead of creating a duplicate.
func (s *Store) InsertPhoto(ctx context.Context, meta PhotoMeta) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO photos (path, content_hash, capture_time, width, height, byte_size)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		meta.Path, nullString(meta.ContentHash), nullTime(meta.CaptureTime),
		meta.Width, meta.Height, meta.ByteSize,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting photo: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading photo id: %w", err)
		}
		return id, nil
	}

	// The hash (or path) already exists; hand back the original row's id.
	var id int64
	if meta.ContentHash != "" {
		err = s.db.QueryRowContext(ctx,
			"SELECT id FROM photos WHERE content_hash = ?", meta.ContentHash).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("looking up photo by hash: %w", err)
		}
	}

	err = s.db.QueryRowContext(ctx, "SELECT id FROM photos WHERE path = ?", meta.Path).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("photo %s: insert conflicted but no existing row found", meta.Path)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up photo by path: %w", err)
	}
	return id, nil
}

// GetPhoto retrieves a photo row by id.
func (s *Store) GetPhoto(ctx context.Context, id int64) (Photo, error) {
	var (
		p       Photo
		hash    sql.NullString
		capture sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, path, content_hash, capture_time, width, height, byte_size, processed
		FROM photos WHERE id = ?`, id,
	).Scan(&p.ID, &p.Path, &hash, &capture, &p.Width, &p.Height, &p.ByteSize, &p.Processed)
	if errors.Is(err, sql.ErrNoRows) {
		return Photo{}, fmt.Errorf("photo %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Photo{}, fmt.Errorf("querying photo: %w", err)
	}
	p.ContentHash = hash.String
	p.CaptureTime = capture.Time
	return p, nil
}

// GetPhotoPath returns the file path of a photo.
func (s *Store) GetPhotoPath(ctx context.Context, id int64) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, "SELECT path FROM photos WHERE id = ?", id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("photo %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("querying photo path: %w", err)
	}
	return path, nil
}

// MarkProcessed flags a photo as face-processed so it is not scanned again,
// including photos in which no face was found.
func (s *Store) MarkProcessed(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE photos SET processed = 1 WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("marking photo processed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("photo %d: %w", id, ErrNotFound)
	}
	return nil
}

// UnprocessedPhotoIDs returns the ids of photos waiting for face processing.
func (s *Store) UnprocessedPhotoIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id FROM photos WHERE processed = 0 ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying unprocessed photos: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning photo id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountPhotos returns the total number of photos.
func (s *Store) CountPhotos(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM photos").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting photos: %w", err)
	}
	return count, nil
}
