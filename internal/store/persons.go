package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mzurita/fototeca/internal/naming"
)

// createPersonAndTagTx creates a person plus its identity tag. Empty display
// names get the generated "Unknown_<id>" form once the row id is known.
func createPersonAndTagTx(ctx context.Context, tx *sql.Tx, displayName string) (personID, tagID int64, err error) {
	res, err := tx.ExecContext(ctx,
		"INSERT INTO persons (display_name, is_confirmed) VALUES ('', 0)")
	if err != nil {
		return 0, 0, fmt.Errorf("inserting person: %w", err)
	}
	personID, err = res.LastInsertId()
	if err != nil {
		return 0, 0, fmt.Errorf("reading person id: %w", err)
	}

	name := displayName
	if name == "" {
		name = fmt.Sprintf("Unknown_%d", personID)
	}

	tagID, err = getOrCreateTagTx(ctx, tx, name, TagKindPerson, defaultPersonTagColor)
	if err != nil {
		return 0, 0, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE persons SET display_name = ?, tag_id = ? WHERE id = ?",
		name, tagID, personID); err != nil {
		return 0, 0, fmt.Errorf("binding person tag: %w", err)
	}

	return personID, tagID, nil
}

// CreatePersonAndTag registers a new identity: a person row and its tag,
// created in one transaction.
func (s *Store) CreatePersonAndTag(ctx context.Context, displayName string) (personID, tagID int64, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		personID, tagID, err = createPersonAndTagTx(ctx, tx, displayName)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return personID, tagID, nil
}

// RegisterNewIdentity creates person, tag and bound face row as one logical
// unit. Either everything commits or nothing does; the vector index is
// inserted into afterwards by the resolver, so a crash can only ever leave
// fewer vectors than rows.
func (s *Store) RegisterNewIdentity(ctx context.Context, photoID int64, det FaceDetection, displayName string) (NewIdentity, error) {
	var ident NewIdentity

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		personID, tagID, err := createPersonAndTagTx(ctx, tx, displayName)
		if err != nil {
			return err
		}

		faceID, err := insertFaceTx(ctx, tx, photoID, &personID, det)
		if err != nil {
			return err
		}

		// First sighting doubles as the avatar until someone picks a better one.
		if _, err := tx.ExecContext(ctx,
			"UPDATE persons SET avatar_photo_id = ? WHERE id = ? AND avatar_photo_id IS NULL",
			photoID, personID); err != nil {
			return fmt.Errorf("setting person avatar: %w", err)
		}

		ident = NewIdentity{PersonID: personID, TagID: tagID, FaceID: faceID}
		return nil
	})
	if err != nil {
		return NewIdentity{}, err
	}
	return ident, nil
}

// RenamePerson renames a person and updates its tag text in the same
// transaction. Returns false with no mutation when the new name is already
// held by another tag (merging identities is out of scope) and ErrNotFound
// when the person does not exist. A successful rename confirms the person.
func (s *Store) RenamePerson(ctx context.Context, personID int64, newName string) (bool, error) {
	renamed := false

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var tagID sql.NullInt64
		err := tx.QueryRowContext(ctx,
			"SELECT tag_id FROM persons WHERE id = ?", personID).Scan(&tagID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("person %d: %w", personID, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("querying person: %w", err)
		}

		// The tag text column is globally unique, so any tag holding the
		// target name blocks the rename regardless of kind.
		var existingTagID int64
		err = tx.QueryRowContext(ctx,
			"SELECT id FROM tags WHERE text = ?", newName).Scan(&existingTagID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("checking tag conflict: %w", err)
		}
		if err == nil && (!tagID.Valid || existingTagID != tagID.Int64) {
			return nil // conflict: leave everything untouched
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE persons SET display_name = ?, is_confirmed = 1 WHERE id = ?",
			newName, personID); err != nil {
			return fmt.Errorf("renaming person: %w", err)
		}

		if tagID.Valid {
			if _, err := tx.ExecContext(ctx,
				"UPDATE tags SET text = ? WHERE id = ?", newName, tagID.Int64); err != nil {
				return fmt.Errorf("renaming person tag: %w", err)
			}
		} else {
			// Older rows may predate tag binding; give the person a tag now.
			newTagID, err := getOrCreateTagTx(ctx, tx, newName, TagKindPerson, defaultPersonTagColor)
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				"UPDATE persons SET tag_id = ? WHERE id = ?", newTagID, personID); err != nil {
				return fmt.Errorf("binding person tag: %w", err)
			}
		}

		renamed = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return renamed, nil
}

// GetPerson retrieves a person row by id.
func (s *Store) GetPerson(ctx context.Context, id int64) (Person, error) {
	var (
		p      Person
		avatar sql.NullInt64
		tagID  sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, is_confirmed, avatar_photo_id, tag_id
		FROM persons WHERE id = ?`, id,
	).Scan(&p.ID, &p.DisplayName, &p.IsConfirmed, &avatar, &tagID)
	if errors.Is(err, sql.ErrNoRows) {
		return Person{}, fmt.Errorf("person %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return Person{}, fmt.Errorf("querying person: %w", err)
	}
	p.AvatarPhotoID = avatar.Int64
	p.TagID = tagID.Int64
	return p, nil
}

// GetPersonTag returns the tag bound to a person.
func (s *Store) GetPersonTag(ctx context.Context, personID int64) (Tag, error) {
	var (
		t     Tag
		color sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.text, t.kind, t.color
		FROM tags t
		JOIN persons p ON p.tag_id = t.id
		WHERE p.id = ?`, personID,
	).Scan(&t.ID, &t.Text, &t.Kind, &color)
	if errors.Is(err, sql.ErrNoRows) {
		return Tag{}, fmt.Errorf("person %d tag: %w", personID, ErrNotFound)
	}
	if err != nil {
		return Tag{}, fmt.Errorf("querying person tag: %w", err)
	}
	t.Color = color.String
	return t, nil
}

// FindPersonsByName returns persons whose display name matches after
// normalization (lowercase, no diacritics), so "ana maria" finds "Ana María".
func (s *Store) FindPersonsByName(ctx context.Context, name string) ([]Person, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, display_name, is_confirmed, avatar_photo_id, tag_id
		FROM persons ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying persons: %w", err)
	}
	defer rows.Close()

	want := naming.NormalizePersonName(name)

	var persons []Person
	for rows.Next() {
		var (
			p      Person
			avatar sql.NullInt64
			tagID  sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.IsConfirmed, &avatar, &tagID); err != nil {
			return nil, fmt.Errorf("scanning person: %w", err)
		}
		if naming.NormalizePersonName(p.DisplayName) != want {
			continue
		}
		p.AvatarPhotoID = avatar.Int64
		p.TagID = tagID.Int64
		persons = append(persons, p)
	}
	return persons, rows.Err()
}

// CountPersons returns the total number of persons.
func (s *Store) CountPersons(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM persons").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting persons: %w", err)
	}
	return count, nil
}
