package pathstore

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dgallion1/protoseg/internal/doctree"
	"github.com/dgallion1/protoseg/internal/protocol"
	"github.com/dgallion1/protoseg/internal/segment"
)

// fakeKV is an in-memory stand-in for the pathstore HTTP API.
type fakeKV struct {
	mu     sync.Mutex
	nodes  map[string]json.RawMessage
	links  []LinkRequest
	status int // forced status for every request when non-zero
}

func newFakeKV() *fakeKV {
	return &fakeKV{nodes: make(map[string]json.RawMessage)}
}

func (f *fakeKV) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("Authorization") != "Bearer secret" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if f.status != 0 {
		http.Error(w, "forced", f.status)
		return
	}

	if r.URL.Path == "/links" {
		var req LinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.links = append(f.links, req)
		w.WriteHeader(http.StatusOK)
		return
	}

	key := strings.TrimPrefix(r.URL.Path, "/kv/")
	switch r.Method {
	case http.MethodPut:
		var req struct {
			Value json.RawMessage `json:"value"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.nodes[key] = req.Value
		w.WriteHeader(http.StatusCreated)

	case http.MethodGet:
		if prefix, ok := strings.CutSuffix(key, "*"); ok {
			var keys []string
			for k := range f.nodes {
				if strings.HasPrefix(k, prefix) {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			nodes := []ListChildrenResponse{}
			for _, k := range keys {
				nodes = append(nodes, ListChildrenResponse{Key: strings.ReplaceAll(k, "/", "."), Value: f.nodes[k]})
			}
			json.NewEncoder(w).Encode(map[string]any{"nodes": nodes})
			return
		}
		v, ok := f.nodes[key]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(NodeResponse{Key: key, Value: v})

	case http.MethodDelete:
		delete(f.nodes, key)
		if r.URL.Query().Get("children") == "true" {
			for k := range f.nodes {
				if strings.HasPrefix(k, key+"/") {
					delete(f.nodes, k)
				}
			}
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func sampleDoc() *protocol.Document {
	found := segment.Record{
		Name:      "objectives and endpoints/estimands",
		Found:     true,
		Content:   "3 Objectives\n\nObjectives:\nPrimary.",
		StartPage: 3,
		EndPage:   4,
		Images:    []doctree.Item{},
		Tables:    []doctree.Item{},
	}
	return &protocol.Document{
		DocID:       "doc-1",
		DrugName:    "Drugx",
		Source:      "Drugx_Prot_001.pdf",
		Number:      "P-42",
		ContentHash: "abc123",
		CreatedAt:   time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		TOCPages:    []int{2},
		Sections: &segment.Result{Sections: []segment.Record{
			segment.EmptyRecord("synopsis"),
			found,
		}},
	}
}

func newTestStore(t *testing.T) (*Store, *fakeKV) {
	t.Helper()
	kv := newFakeKV()
	srv := httptest.NewServer(kv)
	t.Cleanup(srv.Close)
	return NewStore(NewClient(srv.URL, "secret"), ""), kv
}

func TestStore_SaveGetDelete(t *testing.T) {
	ctx := context.Background()
	s, kv := newTestStore(t)
	doc := sampleDoc()

	if err := s.Save(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, ok := kv.nodes["protocols/docs/doc-1/sections/objectives-and-endpoints-estimands"]; !ok {
		t.Errorf("expected section node, have keys %v", keysOf(kv.nodes))
	}
	if _, ok := kv.nodes["protocols/docs/doc-1/sections/synopsis"]; ok {
		t.Error("unmatched sections should not get a node")
	}
	if len(kv.links) != 1 || kv.links[0].From != "protocols/docs/doc-1" {
		t.Errorf("unexpected links: %+v", kv.links)
	}

	got, err := s.Get(ctx, "doc-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Number != "P-42" || got.DrugName != "Drugx" || !got.CreatedAt.Equal(doc.CreatedAt) {
		t.Errorf("unexpected document: %+v", got)
	}
	if len(got.Sections.Sections) != 2 || got.Sections.Sections[0].Name != "synopsis" {
		t.Fatalf("section order not preserved: %+v", got.Sections.Sections)
	}
	if rec := got.Sections.Sections[1]; !rec.Found || rec.StartPage != 3 || rec.EndPage != 4 {
		t.Errorf("unexpected record: %+v", rec)
	}

	id, ok, err := s.FindByHash(ctx, "abc123")
	if err != nil || !ok || id != "doc-1" {
		t.Errorf("FindByHash = %q, %v, %v", id, ok, err)
	}

	if err := s.Delete(ctx, "doc-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(ctx, "doc-1"); !errors.Is(err, protocol.ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, ok, _ := s.FindByHash(ctx, "abc123"); ok {
		t.Error("hash index should be gone after delete")
	}
	if len(kv.nodes) != 0 {
		t.Errorf("expected empty store, have %v", keysOf(kv.nodes))
	}
}

func TestStore_GetMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, protocol.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(context.Background(), "nope"); !errors.Is(err, protocol.ErrNotFound) {
		t.Errorf("expected ErrNotFound on delete, got %v", err)
	}
}

func TestStatusError_Retryable(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusServiceUnavailable, true},
		{http.StatusTooManyRequests, true},
		{http.StatusBadRequest, false},
	}
	for _, tt := range tests {
		s, kv := newTestStore(t)
		kv.status = tt.status
		err := s.Save(context.Background(), sampleDoc())
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("status %d: expected StatusError, got %v", tt.status, err)
		}
		if se.Code != tt.status || se.Retryable() != tt.retryable {
			t.Errorf("status %d: got code %d retryable %v", tt.status, se.Code, se.Retryable())
		}
	}
}

func TestClient_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(newFakeKV())
	defer srv.Close()
	c := NewClient(srv.URL, "wrong")
	_, err := c.GetNode(context.Background(), "x")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 StatusError, got %v", err)
	}
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"synopsis":                           "synopsis",
		"objectives and endpoints/estimands": "objectives-and-endpoints-estimands",
		"  Statistical   Considerations ":    "statistical-considerations",
		"supporting documentation – operational considerations": "supporting-documentation-operational-consideration",
	}
	for in, want := range tests {
		if got := Slugify(in); got != want {
			t.Errorf("Slugify(%q) = %q, want %q", in, got, want)
		}
	}
}

func keysOf(m map[string]json.RawMessage) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
