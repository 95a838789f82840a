package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// GetOrCreateTag creates a tag or returns the existing one with the same
// text. The unique-constraint conflict never escapes to the caller.
func (s *Store) GetOrCreateTag(ctx context.Context, text, kind, color string) (int64, error) {
	var id int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		id, err = getOrCreateTagTx(ctx, tx, text, kind, color)
		return err
	})
	return id, err
}

// getOrCreateTagTx is the transactional body of GetOrCreateTag, shared with
// person creation and rename so the whole multi-row write stays atomic.
func getOrCreateTagTx(ctx context.Context, tx *sql.Tx, text, kind, color string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO tags (text, kind, color) VALUES (?, ?, ?)
		ON CONFLICT(text) DO NOTHING`,
		text, kind, nullString(color),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting tag: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 1 {
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading tag id: %w", err)
		}
		return id, nil
	}

	var id int64
	err = tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE text = ?", text).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("tag %q: insert conflicted but no existing row found", text)
	}
	if err != nil {
		return 0, fmt.Errorf("looking up tag: %w", err)
	}
	return id, nil
}

// GetTag retrieves a tag by id.
func (s *Store) GetTag(ctx context.Context, id int64) (Tag, error) {
	var (
		t     Tag
		color sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, text, kind, color FROM tags WHERE id = ?", id,
	).Scan(&t.ID, &t.Text, &t.Kind, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("tag %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Tag{}, fmt.Errorf("querying tag: %w", err)
	}
	t.Color = color.String
	return t, nil
}

// AssignTag links a tag to a photo. Assigning the same tag twice is a no-op,
// not an error.
func (s *Store) AssignTag(ctx context.Context, photoID, tagID int64, manual bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO photo_tags (photo_id, tag_id, is_manual) VALUES (?, ?, ?)
		ON CONFLICT(photo_id, tag_id) DO NOTHING`,
		photoID, tagID, manual,
	)
	if err != nil {
		return fmt.Errorf("assigning tag %d to photo %d: %w", tagID, photoID, err)
	}
	return nil
}

// PhotoTags returns all tags attached to a photo.
func (s *Store) PhotoTags(ctx context.Context, photoID int64) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.text, t.kind, t.color
		FROM tags t
		JOIN photo_tags pt ON pt.tag_id = t.id
		WHERE pt.photo_id = ?
		ORDER BY t.text`, photoID)
	if err != nil {
		return nil, fmt.Errorf("querying photo tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var (
			t     Tag
			color sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Text, &t.Kind, &color); err != nil {
			return nil, fmt.Errorf("scanning tag: %w", err)
		}
		t.Color = color.String
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CountPhotoTagLinks returns the number of photo-tag links for a photo.
func (s *Store) CountPhotoTagLinks(ctx context.Context, photoID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM photo_tags WHERE photo_id = ?", photoID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting photo tags: %w", err)
	}
	return count, nil
}
