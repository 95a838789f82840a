package extractor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetect(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect/faces" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := r.ParseMultipartForm(10 << 20); err != nil {
			t.Errorf("parsing multipart form: %v", err)
		}
		if _, _, err := r.FormFile("file"); err != nil {
			t.Errorf("missing file part: %v", err)
		}

		resp := faceResponse{
			FacesCount: 2,
			Faces: []faceItem{
				{Embedding: []float32{0.1, 0.2}, BBox: []float64{10, 20, 110, 140}, DetScore: 0.97},
				{Embedding: []float32{0.3, 0.4}, BBox: []float64{200, 50, 260, 130}, DetScore: 0.88},
			},
			Model: "buffalo_l",
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	dets, err := client.Detect(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 2 {
		t.Fatalf("expected 2 detections, got %d", len(dets))
	}

	first := dets[0]
	if first.BBox.X != 10 || first.BBox.Y != 20 || first.BBox.W != 100 || first.BBox.H != 120 {
		t.Errorf("unexpected bbox: %+v", first.BBox)
	}
	if first.Confidence != 0.97 {
		t.Errorf("unexpected confidence %f", first.Confidence)
	}
	if len(first.Embedding) != 2 {
		t.Errorf("unexpected embedding %v", first.Embedding)
	}
}

func TestDetectNoFaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(faceResponse{FacesCount: 0})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	dets, err := client.Detect(context.Background(), []byte("not really an image"))
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(dets) != 0 {
		t.Errorf("expected no detections, got %d", len(dets))
	}
}

func TestDetectServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	if _, err := client.Detect(context.Background(), []byte("img")); err == nil {
		t.Fatal("expected error on server failure")
	}
}

func TestDetectMIMEType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}, "image/jpeg"},
		{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, "image/png"},
		{"gif", []byte{0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0, 0}, "image/gif"},
		{"webp", []byte{0x52, 0x49, 0x46, 0x46, 0, 0, 0, 0, 0x57, 0x45, 0x42, 0x50}, "image/webp"},
		{"unknown", []byte{0, 1, 2, 3, 4, 5, 6, 7}, "application/octet-stream"},
		{"too short", []byte{0xFF}, "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMIMEType(tt.data); got != tt.want {
				t.Errorf("detectMIMEType() = %q, want %q", got, tt.want)
			}
		})
	}
}
