package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mzurita/fototeca/internal/hybrid"
	"github.com/mzurita/fototeca/internal/resolver"
	"github.com/mzurita/fototeca/internal/store"
)

const testDim = 8

// stubExtractor returns canned detections without a model server.
type stubExtractor struct {
	detections []store.FaceDetection
	err        error
}

func (s *stubExtractor) Detect(_ context.Context, _ []byte) ([]store.FaceDetection, error) {
	return s.detections, s.err
}

func newTestServer(t *testing.T, ext *stubExtractor) (*Server, *hybrid.Stores) {
	t.Helper()

	dir := t.TempDir()
	stores, err := hybrid.Open(filepath.Join(dir, "gallery.db"), filepath.Join(dir, "faces.index"), testDim)
	if err != nil {
		t.Fatalf("opening stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })

	res := resolver.New(stores.Meta, stores.Index, 0.55)
	return NewServer(stores, res, ext, "127.0.0.1", 0), stores
}

func unitVec(sim float64) []float32 {
	vec := make([]float32, testDim)
	vec[0] = float32(sim)
	vec[1] = float32(math.Sqrt(1 - sim*sim))
	return vec
}

func detection(vec []float32) store.FaceDetection {
	return store.FaceDetection{
		Embedding:  vec,
		BBox:       store.Rect{X: 1, Y: 2, W: 50, H: 60},
		Confidence: 0.95,
	}
}

// writeTestPhoto creates a decodable PNG and registers it as a photo row.
func writeTestPhoto(t *testing.T, st *store.Store, dir, name string) (int64, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("writing photo: %v", err)
	}

	id, err := st.InsertPhoto(context.Background(), store.PhotoMeta{Path: path, ContentHash: name})
	if err != nil {
		t.Fatalf("inserting photo: %v", err)
	}
	return id, path
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	recorder := httptest.NewRecorder()
	s.Router().ServeHTTP(recorder, req)
	return recorder
}

func parseJSON(t *testing.T, recorder *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), out); err != nil {
		t.Fatalf("parsing response %q: %v", recorder.Body.String(), err)
	}
}

func TestHealthCheck(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	recorder := doJSON(t, s, "GET", "/api/v1/health", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
}

func TestGetPhoto(t *testing.T) {
	s, stores := newTestServer(t, &stubExtractor{})
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	recorder := doJSON(t, s, "GET", fmt.Sprintf("/api/v1/photos/%d", photoID), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp photoResponse
	parseJSON(t, recorder, &resp)
	if resp.ID != photoID {
		t.Errorf("expected photo %d, got %d", photoID, resp.ID)
	}
	if resp.Processed {
		t.Error("fresh photo must be unprocessed")
	}
}

func TestGetPhotoNotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	recorder := doJSON(t, s, "GET", "/api/v1/photos/999", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", recorder.Code)
	}
}

func TestProcessPhotoJob(t *testing.T) {
	ext := &stubExtractor{detections: []store.FaceDetection{detection(unitVec(1.0))}}
	s, stores := newTestServer(t, ext)
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	recorder := doJSON(t, s, "POST", fmt.Sprintf("/api/v1/photos/%d/process", photoID), nil)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var accepted map[string]string
	parseJSON(t, recorder, &accepted)
	jobID := accepted["job_id"]
	if jobID == "" {
		t.Fatal("expected a job id")
	}

	job := waitForJob(t, s, jobID)
	if job.Status != JobStatusCompleted {
		t.Fatalf("expected completed job, got %s (error %q)", job.Status, job.Error)
	}
	if len(job.Resolutions) != 1 {
		t.Fatalf("expected 1 resolution, got %d", len(job.Resolutions))
	}
	if job.Resolutions[0].State != resolver.StateCreated {
		t.Errorf("expected created state, got %s", job.Resolutions[0].State)
	}

	photo, err := stores.Meta.GetPhoto(context.Background(), photoID)
	if err != nil {
		t.Fatalf("GetPhoto: %v", err)
	}
	if !photo.Processed {
		t.Error("photo not marked processed after job")
	}
}

func TestProcessPhotoJobFailure(t *testing.T) {
	ext := &stubExtractor{err: fmt.Errorf("model not loaded")}
	s, stores := newTestServer(t, ext)
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	recorder := doJSON(t, s, "POST", fmt.Sprintf("/api/v1/photos/%d/process", photoID), nil)
	if recorder.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", recorder.Code)
	}

	var accepted map[string]string
	parseJSON(t, recorder, &accepted)

	job := waitForJob(t, s, accepted["job_id"])
	if job.Status != JobStatusFailed {
		t.Fatalf("expected failed job, got %s", job.Status)
	}
	if job.Error == "" {
		t.Error("expected error message on failed job")
	}
}

func waitForJob(t *testing.T, s *Server, jobID string) JobView {
	t.Helper()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		recorder := doJSON(t, s, "GET", "/api/v1/jobs/"+jobID, nil)
		if recorder.Code != http.StatusOK {
			t.Fatalf("job lookup failed: %d", recorder.Code)
		}
		var job JobView
		parseJSON(t, recorder, &job)
		if job.Status == JobStatusCompleted || job.Status == JobStatusFailed {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("job did not finish in time")
	return JobView{}
}

func TestGetJobNotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	recorder := doJSON(t, s, "GET", "/api/v1/jobs/no-such-job", nil)
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", recorder.Code)
	}
}

func TestRenamePerson(t *testing.T) {
	s, stores := newTestServer(t, &stubExtractor{})
	ctx := context.Background()
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	ident, err := stores.Meta.RegisterNewIdentity(ctx, photoID, detection(unitVec(1.0)), "")
	if err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}

	recorder := doJSON(t, s, "PUT", fmt.Sprintf("/api/v1/persons/%d", ident.PersonID), renameRequest{Name: "Lucía"})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp personResponse
	parseJSON(t, recorder, &resp)
	if resp.DisplayName != "Lucía" || !resp.IsConfirmed {
		t.Errorf("unexpected person after rename: %+v", resp)
	}
}

func TestRenamePersonConflict(t *testing.T) {
	s, stores := newTestServer(t, &stubExtractor{})
	ctx := context.Background()
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	if _, err := stores.Meta.RegisterNewIdentity(ctx, photoID, detection(unitVec(1.0)), "Lucía"); err != nil {
		t.Fatalf("first RegisterNewIdentity: %v", err)
	}
	second, err := stores.Meta.RegisterNewIdentity(ctx, photoID, detection(unitVec(0.1)), "")
	if err != nil {
		t.Fatalf("second RegisterNewIdentity: %v", err)
	}

	recorder := doJSON(t, s, "PUT", fmt.Sprintf("/api/v1/persons/%d", second.PersonID), renameRequest{Name: "Lucía"})
	if recorder.Code != http.StatusConflict {
		t.Errorf("expected 409, got %d", recorder.Code)
	}
}

func TestRenamePersonNotFound(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	recorder := doJSON(t, s, "PUT", "/api/v1/persons/424242", renameRequest{Name: "Nadie"})
	if recorder.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", recorder.Code)
	}
}

func TestFaceSearch(t *testing.T) {
	s, stores := newTestServer(t, &stubExtractor{})
	ctx := context.Background()
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	ident, err := stores.Meta.RegisterNewIdentity(ctx, photoID, detection(unitVec(1.0)), "Lucía")
	if err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}
	if err := stores.Index.Insert(ident.FaceID, unitVec(1.0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	recorder := doJSON(t, s, "POST", "/api/v1/faces/search", faceSearchRequest{Embedding: unitVec(0.9), K: 3})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp struct {
		Results []faceSearchResult `json:"results"`
	}
	parseJSON(t, recorder, &resp)
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(resp.Results))
	}
	r := resp.Results[0]
	if r.FaceID != ident.FaceID || r.PersonName != "Lucía" || r.PhotoID != photoID {
		t.Errorf("unexpected search result: %+v", r)
	}
}

func TestFaceSearchEmptyIndex(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	recorder := doJSON(t, s, "POST", "/api/v1/faces/search", faceSearchRequest{Embedding: unitVec(1.0), K: 3})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var resp struct {
		Results []faceSearchResult `json:"results"`
	}
	parseJSON(t, recorder, &resp)
	if len(resp.Results) != 0 {
		t.Errorf("expected no results, got %d", len(resp.Results))
	}
}

func TestFaceSearchBadDimension(t *testing.T) {
	s, stores := newTestServer(t, &stubExtractor{})
	ctx := context.Background()
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	ident, err := stores.Meta.RegisterNewIdentity(ctx, photoID, detection(unitVec(1.0)), "")
	if err != nil {
		t.Fatalf("RegisterNewIdentity: %v", err)
	}
	if err := stores.Index.Insert(ident.FaceID, unitVec(1.0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	recorder := doJSON(t, s, "POST", "/api/v1/faces/search", faceSearchRequest{Embedding: []float32{1, 0}, K: 1})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", recorder.Code)
	}
}

func TestStats(t *testing.T) {
	s, stores := newTestServer(t, &stubExtractor{})
	ctx := context.Background()
	photoID, _ := writeTestPhoto(t, stores.Meta, t.TempDir(), "a.png")

	res := resolver.New(stores.Meta, stores.Index, 0.55)
	if _, err := res.ProcessPhoto(ctx, photoID, []store.FaceDetection{detection(unitVec(1.0))}); err != nil {
		t.Fatalf("ProcessPhoto: %v", err)
	}

	recorder := doJSON(t, s, "GET", "/api/v1/stats", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}

	var resp statsResponse
	parseJSON(t, recorder, &resp)
	if resp.Photos != 1 || resp.Faces != 1 || resp.BoundFaces != 1 || resp.Persons != 1 {
		t.Errorf("unexpected counts: %+v", resp)
	}
	if resp.IndexEntries != 1 || !resp.IndexConsistent {
		t.Errorf("unexpected index state: %+v", resp)
	}
	if resp.UnprocessedCount != 0 {
		t.Errorf("expected no unprocessed photos, got %d", resp.UnprocessedCount)
	}
}

func TestImportEndpoint(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding png: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "a.png"), buf.Bytes(), 0600); err != nil {
		t.Fatalf("writing png: %v", err)
	}

	recorder := doJSON(t, s, "POST", "/api/v1/import", importRequest{Path: dir})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}

	var resp map[string]int
	parseJSON(t, recorder, &resp)
	if resp["imported"] != 1 {
		t.Errorf("expected 1 imported, got %d", resp["imported"])
	}
}

func TestImportEndpointBadPath(t *testing.T) {
	s, _ := newTestServer(t, &stubExtractor{})

	recorder := doJSON(t, s, "POST", "/api/v1/import", importRequest{Path: "/no/such/dir"})
	if recorder.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", recorder.Code)
	}
}
