package store

import (
	"context"
	"errors"
	"testing"
)

func TestInsertFacesPreservesOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.InsertPhoto(ctx, testPhotoMeta("/pics/group.jpg", "ggg"))
	if err != nil {
		t.Fatalf("InsertPhoto: %v", err)
	}

	dets := []FaceDetection{
		testDetection(0.1),
		testDetection(0.2),
		testDetection(0.3),
	}
	ids, err := s.InsertFaces(ctx, photoID, dets)
	if err != nil {
		t.Fatalf("InsertFaces: %v", err)
	}
	if len(ids) != len(dets) {
		t.Fatalf("expected %d ids, got %d", len(dets), len(ids))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i] <= ids[i-1] {
			t.Errorf("ids not in insertion order: %v", ids)
		}
	}

	// New faces start unbound.
	for _, id := range ids {
		_, bound, err := s.FacePerson(ctx, id)
		if err != nil {
			t.Fatalf("FacePerson(%d): %v", id, err)
		}
		if bound {
			t.Errorf("face %d bound right after insert", id)
		}
	}
}

func TestBackfillFacePerson(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.InsertPhoto(ctx, testPhotoMeta("/pics/a.jpg", "aaa"))
	if err != nil {
		t.Fatalf("InsertPhoto: %v", err)
	}
	ids, err := s.InsertFaces(ctx, photoID, []FaceDetection{testDetection(0.5)})
	if err != nil {
		t.Fatalf("InsertFaces: %v", err)
	}

	identity, err := s.RegisterNewIdentity(ctx, photoID, testDetection(0.7), "")
	if err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}

	if err := s.BackfillFacePerson(ctx, ids[0], identity.PersonID); err != nil {
		t.Fatalf("BackfillFacePerson: %v", err)
	}

	personID, bound, err := s.FacePerson(ctx, ids[0])
	if err != nil {
		t.Fatalf("FacePerson: %v", err)
	}
	if !bound || personID != identity.PersonID {
		t.Errorf("expected face bound to person %d, got (%d, %v)", identity.PersonID, personID, bound)
	}
}

func TestBackfillFacePersonNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.InsertPhoto(ctx, testPhotoMeta("/pics/a.jpg", "aaa"))
	if err != nil {
		t.Fatalf("InsertPhoto: %v", err)
	}
	identity, err := s.RegisterNewIdentity(ctx, photoID, testDetection(0.7), "")
	if err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}

	err = s.BackfillFacePerson(ctx, 9999, identity.PersonID)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFacePersonNotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.FacePerson(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFaceDetail(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.InsertPhoto(ctx, testPhotoMeta("/pics/doc.jpg", "ddd"))
	if err != nil {
		t.Fatalf("InsertPhoto: %v", err)
	}
	identity, err := s.RegisterNewIdentity(ctx, photoID, testDetection(0.4), "Marta")
	if err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}

	d, err := s.FaceDetail(ctx, identity.FaceID)
	if err != nil {
		t.Fatalf("FaceDetail: %v", err)
	}
	if d.PersonID != identity.PersonID || d.PersonName != "Marta" {
		t.Errorf("unexpected person in detail: %+v", d)
	}
	if d.PhotoID != photoID || d.PhotoPath != "/pics/doc.jpg" {
		t.Errorf("unexpected photo in detail: %+v", d)
	}
}

func TestFaceDetailUnboundFace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.InsertPhoto(ctx, testPhotoMeta("/pics/a.jpg", "aaa"))
	if err != nil {
		t.Fatalf("InsertPhoto: %v", err)
	}
	ids, err := s.InsertFaces(ctx, photoID, []FaceDetection{testDetection(0.5)})
	if err != nil {
		t.Fatalf("InsertFaces: %v", err)
	}

	d, err := s.FaceDetail(ctx, ids[0])
	if err != nil {
		t.Fatalf("FaceDetail: %v", err)
	}
	if d.PersonID != 0 || d.PersonName != "" {
		t.Errorf("expected empty person for unbound face, got %+v", d)
	}
}

func TestCountFaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	photoID, err := s.InsertPhoto(ctx, testPhotoMeta("/pics/a.jpg", "aaa"))
	if err != nil {
		t.Fatalf("InsertPhoto: %v", err)
	}
	if _, err := s.InsertFaces(ctx, photoID, []FaceDetection{testDetection(0.1), testDetection(0.2)}); err != nil {
		t.Fatalf("InsertFaces: %v", err)
	}
	if _, err := s.RegisterNewIdentity(ctx, photoID, testDetection(0.3), ""); err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}

	total, err := s.CountFaces(ctx)
	if err != nil {
		t.Fatalf("CountFaces: %v", err)
	}
	if total != 3 {
		t.Errorf("expected 3 faces, got %d", total)
	}

	bound, err := s.CountFacesWithPerson(ctx)
	if err != nil {
		t.Fatalf("CountFacesWithPerson: %v", err)
	}
	if bound != 1 {
		t.Errorf("expected 1 bound face, got %d", bound)
	}
}
