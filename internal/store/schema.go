package store

// Schema defines the relational metadata tables. Face rows are the bridge to
// the vector index: a face's primary key doubles as its index key.
const Schema = `
CREATE TABLE IF NOT EXISTS photos (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	path          TEXT NOT NULL UNIQUE,
	content_hash  TEXT UNIQUE,
	capture_time  TIMESTAMP,
	imported_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	width         INTEGER,
	height        INTEGER,
	byte_size     INTEGER,
	processed     BOOLEAN NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_photos_hash ON photos(content_hash);
CREATE INDEX IF NOT EXISTS idx_photos_capture ON photos(capture_time);

CREATE TABLE IF NOT EXISTS tags (
	id     INTEGER PRIMARY KEY AUTOINCREMENT,
	text   TEXT NOT NULL UNIQUE,
	kind   TEXT NOT NULL DEFAULT 'general',
	color  TEXT
);

CREATE TABLE IF NOT EXISTS persons (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	display_name     TEXT NOT NULL DEFAULT 'Unknown',
	is_confirmed     BOOLEAN NOT NULL DEFAULT 0,
	avatar_photo_id  INTEGER,
	tag_id           INTEGER,
	created_at       TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

	FOREIGN KEY (avatar_photo_id) REFERENCES photos(id) ON DELETE SET NULL,
	FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE SET NULL
);

CREATE TABLE IF NOT EXISTS faces (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	photo_id    INTEGER NOT NULL,
	person_id   INTEGER,
	bbox_x      INTEGER,
	bbox_y      INTEGER,
	bbox_w      INTEGER,
	bbox_h      INTEGER,
	confidence  REAL,
	embedding   BLOB,
	created_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,

	FOREIGN KEY (photo_id) REFERENCES photos(id) ON DELETE CASCADE,
	FOREIGN KEY (person_id) REFERENCES persons(id) ON DELETE SET NULL
);

CREATE INDEX IF NOT EXISTS idx_faces_person ON faces(person_id);
CREATE INDEX IF NOT EXISTS idx_faces_photo ON faces(photo_id);

CREATE TABLE IF NOT EXISTS photo_tags (
	photo_id   INTEGER NOT NULL,
	tag_id     INTEGER NOT NULL,
	is_manual  BOOLEAN NOT NULL DEFAULT 1,

	PRIMARY KEY (photo_id, tag_id),
	FOREIGN KEY (photo_id) REFERENCES photos(id) ON DELETE CASCADE,
	FOREIGN KEY (tag_id) REFERENCES tags(id) ON DELETE CASCADE
);
`
