package embed

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testClient(t *testing.T, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		Provider:    "test",
		Model:       "test-model",
		Endpoint:    endpoint,
		MaxRetries:  2,
		TimeoutSecs: 5,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func embedHandler(t *testing.T, dims int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decoding request: %v", err)
			http.Error(w, "bad request", 400)
			return
		}
		resp := embedResponse{}
		// Return in reverse order to exercise index-based reassembly.
		for i := len(req.Input) - 1; i >= 0; i-- {
			vec := make([]float32, dims)
			vec[0] = float32(i + 1)
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: vec, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestEmbedBatchOrderPreserving(t *testing.T) {
	srv := httptest.NewServer(embedHandler(t, 4))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vecs, err := c.EmbedBatch(context.Background(), []string{"one", "two", "three"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vecs))
	}
	for i, vec := range vecs {
		if len(vec) != 4 {
			t.Fatalf("vector %d has %d dims, want 4", i, len(vec))
		}
		if vec[0] != float32(i+1) {
			t.Errorf("vector %d out of order: marker %v, want %v", i, vec[0], float32(i+1))
		}
	}
	if c.Dimensions() != 4 {
		t.Errorf("Dimensions() = %d, want 4", c.Dimensions())
	}
}

func TestEmbedBatchFiltersEmptyTexts(t *testing.T) {
	var received []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		received = req.Input
		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{1}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vecs, err := c.EmbedBatch(context.Background(), []string{"", "real", "   ", "also real"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(received) != 2 {
		t.Errorf("server received %d inputs, want 2 (empties filtered)", len(received))
	}
	if len(vecs) != 4 {
		t.Fatalf("got %d results, want 4", len(vecs))
	}
	if vecs[0] != nil || vecs[2] != nil {
		t.Errorf("empty inputs should map to nil vectors")
	}
	if vecs[1] == nil || vecs[3] == nil {
		t.Errorf("non-empty inputs should map to real vectors")
	}
}

func TestEmbedBatchAllEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for all-empty input")
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	vecs, err := c.EmbedBatch(context.Background(), []string{"", "  "})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != 2 || vecs[0] != nil || vecs[1] != nil {
		t.Errorf("all-empty input should return nil vectors without transport, got %v", vecs)
	}
}

func TestEmbedBatchSplitsLargeBatches(t *testing.T) {
	var calls int
	var sizes []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req embedRequest
		json.NewDecoder(r.Body).Decode(&req)
		sizes = append(sizes, len(req.Input))
		resp := embedResponse{}
		for i := range req.Input {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{1}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	texts := make([]string, maxBatch+25)
	for i := range texts {
		texts[i] = fmt.Sprintf("text %d", i)
	}

	c := testClient(t, srv.URL)
	vecs, err := c.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d requests, want 2", calls)
	}
	if len(sizes) == 2 && (sizes[0] != maxBatch || sizes[1] != 25) {
		t.Errorf("batch sizes = %v, want [%d 25]", sizes, maxBatch)
	}
	if len(vecs) != len(texts) {
		t.Errorf("got %d vectors, want %d", len(vecs), len(texts))
	}
}

func TestEmbedRetriesTransientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		embedHandler(t, 2)(w, r)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	if _, err := c.Embed(context.Background(), "hello"); err != nil {
		t.Fatalf("Embed should succeed after retry: %v", err)
	}
	if calls != 2 {
		t.Errorf("got %d calls, want 2", calls)
	}
}

func TestEmbedExhaustsRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "permanently broken", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Embed(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 3 { // MaxRetries=2 means 3 attempts
		t.Errorf("got %d calls, want 3", calls)
	}
}

func TestParseEmbedFlag(t *testing.T) {
	tests := []struct {
		flag         string
		wantProvider string
		wantModel    string
		wantErr      bool
	}{
		{"openrouter/openai/text-embedding-3-small", "openrouter", "openai/text-embedding-3-small", false},
		{"openai/text-embedding-3-small", "openai", "text-embedding-3-small", false},
		{"ollama/nomic-embed-text", "ollama", "nomic-embed-text", false},
		{"local/all-MiniLM-L6-v2", "local", "all-MiniLM-L6-v2", false},
		{"nomodel", "", "", true},
		{"/model", "", "", true},
		{"bogus/model", "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		cfg, err := ParseEmbedFlag(tt.flag)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseEmbedFlag(%q) expected error", tt.flag)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseEmbedFlag(%q): %v", tt.flag, err)
			continue
		}
		if cfg.Provider != tt.wantProvider || cfg.Model != tt.wantModel {
			t.Errorf("ParseEmbedFlag(%q) = %s/%s, want %s/%s",
				tt.flag, cfg.Provider, cfg.Model, tt.wantProvider, tt.wantModel)
		}
	}
}

func TestMeanPool(t *testing.T) {
	// Two tokens, hidden size 2; second token masked out.
	data := []float32{1, 3, 100, 100}
	mask := []int64{1, 0}
	vec := meanPool(data, mask, 2, 2)
	if vec[0] != 1 || vec[1] != 3 {
		t.Errorf("meanPool = %v, want [1 3]", vec)
	}

	// Both tokens visible: plain average.
	mask = []int64{1, 1}
	vec = meanPool(data, mask, 2, 2)
	if vec[0] != 50.5 || vec[1] != 51.5 {
		t.Errorf("meanPool = %v, want [50.5 51.5]", vec)
	}
}

func TestNormalize(t *testing.T) {
	vec := []float32{3, 4}
	normalize(vec)
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if math.Abs(norm-1) > 1e-6 {
		t.Errorf("normalized norm = %v, want 1", norm)
	}

	zero := []float32{0, 0}
	normalize(zero)
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector should stay zero, got %v", zero)
	}
}
