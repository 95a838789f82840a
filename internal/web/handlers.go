package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/mzurita/fototeca/internal/store"
	"github.com/mzurita/fototeca/internal/vecindex"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// idParam parses the {id} URL parameter.
func idParam(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

type statsResponse struct {
	Photos           int  `json:"photos"`
	UnprocessedCount int  `json:"unprocessed_photos"`
	Faces            int  `json:"faces"`
	BoundFaces       int  `json:"bound_faces"`
	Persons          int  `json:"persons"`
	IndexEntries     int  `json:"index_entries"`
	IndexConsistent  bool `json:"index_consistent"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	photos, err := s.stores.Meta.CountPhotos(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	unprocessed, err := s.stores.Meta.UnprocessedPhotoIDs(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	faces, err := s.stores.Meta.CountFaces(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	bound, err := s.stores.Meta.CountFacesWithPerson(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	persons, err := s.stores.Meta.CountPersons(ctx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	indexed := s.stores.Index.Count()

	respondJSON(w, http.StatusOK, statsResponse{
		Photos:           photos,
		UnprocessedCount: len(unprocessed),
		Faces:            faces,
		BoundFaces:       bound,
		Persons:          persons,
		IndexEntries:     indexed,
		// Every indexed vector belongs to a person-bound face row, so the
		// index can never legitimately outgrow the bound-face count.
		IndexConsistent: indexed <= bound,
	})
}

type importRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Path == "" {
		respondError(w, http.StatusBadRequest, "path is required")
		return
	}

	info, err := os.Stat(req.Path)
	if err != nil || !info.IsDir() {
		respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}

	result, err := s.importer.ImportDir(r.Context(), req.Path, nil)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"imported": result.Imported,
		"skipped":  result.Skipped,
	})
}

type photoResponse struct {
	ID          int64       `json:"id"`
	Path        string      `json:"path"`
	ContentHash string      `json:"content_hash,omitempty"`
	Width       int         `json:"width"`
	Height      int         `json:"height"`
	ByteSize    int64       `json:"byte_size"`
	Processed   bool        `json:"processed"`
	Tags        []tagDetail `json:"tags"`
}

type tagDetail struct {
	ID    int64  `json:"id"`
	Text  string `json:"text"`
	Kind  string `json:"kind"`
	Color string `json:"color,omitempty"`
}

func (s *Server) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	photo, err := s.stores.Meta.GetPhoto(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tags, err := s.stores.Meta.PhotoTags(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	resp := photoResponse{
		ID:          photo.ID,
		Path:        photo.Path,
		ContentHash: photo.ContentHash,
		Width:       photo.Width,
		Height:      photo.Height,
		ByteSize:    photo.ByteSize,
		Processed:   photo.Processed,
		Tags:        make([]tagDetail, 0, len(tags)),
	}
	for _, t := range tags {
		resp.Tags = append(resp.Tags, tagDetail{ID: t.ID, Text: t.Text, Kind: t.Kind, Color: t.Color})
	}

	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleProcessPhoto(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid photo id")
		return
	}

	path, err := s.stores.Meta.GetPhotoPath(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "photo not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	job := s.jobManager.CreateJob(id)

	// Detection runs against an external model server, so the work happens
	// outside the request. The job outlives the request context.
	go s.runProcessJob(job, id, path)

	respondJSON(w, http.StatusAccepted, map[string]string{"job_id": job.ID()})
}

func (s *Server) runProcessJob(job *ProcessJob, photoID int64, path string) {
	ctx := context.Background()
	job.SetRunning()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("process job %s: reading %s: %v", job.ID(), path, err)
		job.Fail(err)
		return
	}

	detections, err := s.extractor.Detect(ctx, data)
	if err != nil {
		log.Printf("process job %s: detecting faces: %v", job.ID(), err)
		job.Fail(err)
		return
	}

	resolutions, err := s.resolver.ProcessPhoto(ctx, photoID, detections)
	if err != nil {
		log.Printf("process job %s: resolving faces: %v", job.ID(), err)
		job.Fail(err)
		return
	}

	job.Complete(resolutions)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.GetJob(chi.URLParam(r, "id"))
	if job == nil {
		respondError(w, http.StatusNotFound, "job not found")
		return
	}
	respondJSON(w, http.StatusOK, job.Snapshot())
}

type personResponse struct {
	ID            int64  `json:"id"`
	DisplayName   string `json:"display_name"`
	IsConfirmed   bool   `json:"is_confirmed"`
	AvatarPhotoID int64  `json:"avatar_photo_id,omitempty"`
	TagID         int64  `json:"tag_id,omitempty"`
}

func personToResponse(p store.Person) personResponse {
	return personResponse{
		ID:            p.ID,
		DisplayName:   p.DisplayName,
		IsConfirmed:   p.IsConfirmed,
		AvatarPhotoID: p.AvatarPhotoID,
		TagID:         p.TagID,
	}
}

func (s *Server) handleGetPerson(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	person, err := s.stores.Meta.GetPerson(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, personToResponse(person))
}

type renameRequest struct {
	Name string `json:"name"`
}

func (s *Server) handleRenamePerson(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid person id")
		return
	}

	var req renameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	renamed, err := s.stores.Meta.RenamePerson(r.Context(), id, req.Name)
	if errors.Is(err, store.ErrNotFound) {
		respondError(w, http.StatusNotFound, "person not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !renamed {
		respondError(w, http.StatusConflict, "name is already in use")
		return
	}

	person, err := s.stores.Meta.GetPerson(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, personToResponse(person))
}

type faceSearchRequest struct {
	Embedding []float32 `json:"embedding"`
	K         int       `json:"k"`
}

type faceSearchResult struct {
	FaceID     int64   `json:"face_id"`
	Similarity float64 `json:"similarity"`
	PersonID   int64   `json:"person_id,omitempty"`
	PersonName string  `json:"person_name,omitempty"`
	PhotoID    int64   `json:"photo_id"`
	PhotoPath  string  `json:"photo_path"`
}

func (s *Server) handleFaceSearch(w http.ResponseWriter, r *http.Request) {
	var req faceSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.K <= 0 {
		req.K = 5
	}

	matches, err := s.stores.Index.SearchNearest(req.Embedding, req.K)
	if errors.Is(err, vecindex.ErrDimensionMismatch) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	results := make([]faceSearchResult, 0, len(matches))
	for _, m := range matches {
		if m.ID == vecindex.NotFound {
			continue
		}
		detail, err := s.stores.Meta.FaceDetail(r.Context(), m.ID)
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("indexed face %d has no database row, skipping", m.ID)
			continue
		}
		if err != nil {
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		results = append(results, faceSearchResult{
			FaceID:     detail.FaceID,
			Similarity: m.Similarity,
			PersonID:   detail.PersonID,
			PersonName: detail.PersonName,
			PhotoID:    detail.PhotoID,
			PhotoPath:  detail.PhotoPath,
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	restored, err := s.resolver.Reconcile(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"restored": restored})
}
