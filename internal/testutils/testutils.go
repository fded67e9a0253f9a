// Package testutils provides shared test infrastructure: a fake model
// registry and a file host backed by httptest.
package testutils

import (
	"bytes"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// TestModel describes one model the fake registry serves.
type TestModel struct {
	ID        int
	VersionID int
	Name      string
	Type      string
	FileName  string
	Data      []byte
}

// GenerateTestData generates test data of the given size.
// For payloads <= 10MB a deterministic pattern is used.
func GenerateTestData(t *testing.T, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	if size <= 10*1024*1024 {
		for i := range data {
			data[i] = byte(i % 256)
		}
	} else {
		if _, err := rand.Read(data); err != nil {
			t.Fatalf("generate random data: %v", err)
		}
	}
	return data
}

// Registry is a fake model registry plus file host for tests.
type Registry struct {
	Server *httptest.Server

	models map[int]TestModel
}

// StartRegistry starts a fake registry serving the given models. The
// server answers the model and model-version metadata endpoints and
// hosts each model's file under /files/{name}.
func StartRegistry(t *testing.T, models []TestModel) *Registry {
	t.Helper()

	r := &Registry{models: make(map[int]TestModel)}
	for _, m := range models {
		r.models[m.ID] = m
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/models/{id}", r.handleModel)
	mux.HandleFunc("GET /api/v1/model-versions/{id}", r.handleVersion)
	mux.HandleFunc("/files/{name}", r.handleFile)

	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Server.Close)
	return r
}

// URL returns the registry base URL.
func (r *Registry) URL() string {
	return r.Server.URL
}

func (r *Registry) handleModel(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.Atoi(req.PathValue("id"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	m, ok := r.models[id]
	if !ok {
		http.NotFound(w, req)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"name":          m.Name,
		"type":          m.Type,
		"modelVersions": []any{r.versionDoc(m)},
	})
}

func (r *Registry) handleVersion(w http.ResponseWriter, req *http.Request) {
	id, err := strconv.Atoi(req.PathValue("id"))
	if err != nil {
		http.Error(w, "bad id", http.StatusBadRequest)
		return
	}
	for _, m := range r.models {
		if m.VersionID == id {
			doc := r.versionDoc(m)
			doc["model"] = map[string]any{"name": m.Name, "type": m.Type}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(doc)
			return
		}
	}
	http.NotFound(w, req)
}

func (r *Registry) versionDoc(m TestModel) map[string]any {
	return map[string]any{
		"id":   m.VersionID,
		"name": fmt.Sprintf("%s v1", m.Name),
		"files": []any{
			map[string]any{
				"name":        m.FileName,
				"sizeKB":      float64(len(m.Data)) / 1024,
				"primary":     true,
				"downloadUrl": r.Server.URL + "/files/" + m.FileName,
			},
		},
	}
}

func (r *Registry) handleFile(w http.ResponseWriter, req *http.Request) {
	name := req.PathValue("name")
	for _, m := range r.models {
		if m.FileName == name {
			w.Header().Set("Content-Length", strconv.Itoa(len(m.Data)))
			if req.Method == http.MethodHead {
				return
			}
			w.Write(m.Data)
			return
		}
	}
	http.NotFound(w, req)
}

// CompareReaderToData compares reader output with expected data in
// chunks, which keeps memory bounded for large payloads.
func CompareReaderToData(t *testing.T, reader io.Reader, expected []byte) {
	t.Helper()

	chunkSize := 1024 * 1024
	buf := make([]byte, chunkSize)
	offset := 0

	for {
		n, err := reader.Read(buf)
		if n > 0 {
			if offset+n > len(expected) {
				t.Fatalf("read more data than expected: offset=%d, n=%d, expected len=%d",
					offset, n, len(expected))
			}
			if !bytes.Equal(buf[:n], expected[offset:offset+n]) {
				t.Fatalf("data mismatch at offset %d", offset)
			}
			offset += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("read error at offset %d: %v", offset, err)
		}
	}

	if offset != len(expected) {
		t.Fatalf("incomplete read: got %d bytes, want %d", offset, len(expected))
	}
}
