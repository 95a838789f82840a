package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a photo, person, face or tag id does not exist.
var ErrNotFound = errors.New("not found")

// Tag kinds. Person identities are represented as tags of kind person so
// photo search treats people like any other label.
const (
	TagKindGeneral = "general"
	TagKindPerson  = "person"
)

// defaultPersonTagColor is the color assigned to auto-created person tags.
const defaultPersonTagColor = "#3498db"

// Photo is an imported photo's metadata row.
type Photo struct {
	ID          int64
	Path        string
	ContentHash string
	CaptureTime time.Time
	Width       int
	Height      int
	ByteSize    int64
	Processed   bool
}

// PhotoMeta is the input supplied by the import layer.
type PhotoMeta struct {
	Path        string
	ContentHash string
	CaptureTime time.Time
	Width       int
	Height      int
	ByteSize    int64
}

// Person is an identity, created lazily on the first unmatched face.
type Person struct {
	ID            int64
	DisplayName   string
	IsConfirmed   bool
	AvatarPhotoID int64 // 0 when unset
	TagID         int64 // 0 when unset
}

// Tag is a named label attachable to photos.
type Tag struct {
	ID    int64
	Text  string
	Kind  string
	Color string
}

// Rect is a face bounding box in pixel coordinates.
type Rect struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// FaceDetection is one detected face as produced by the extractor.
type FaceDetection struct {
	Embedding  []float32 `json:"embedding"`
	BBox       Rect      `json:"bbox"`
	Confidence float64   `json:"confidence"`
}

// NewIdentity is the result of registering a previously unseen person.
type NewIdentity struct {
	PersonID int64
	TagID    int64
	FaceID   int64
}

// BoundFace is a face row bound to a person, with its backup embedding.
// Used by the reconciliation pass to rebuild missing vector entries.
type BoundFace struct {
	FaceID    int64
	PersonID  int64
	Embedding []float32
}

// FaceDetail is a face row enriched with its person and photo for search results.
type FaceDetail struct {
	FaceID     int64
	PersonID   int64 // 0 when the face is unbound
	PersonName string
	PhotoID    int64
	PhotoPath  string
}
