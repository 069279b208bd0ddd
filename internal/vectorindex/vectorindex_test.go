package vectorindex

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"document-chat/internal/config"
	"document-chat/internal/models"
)

const fakeDims = 32

// hashEmbedder maps words onto buckets so equal texts get equal vectors
type hashEmbedder struct {
	name string
	dims int
	fail error
}

func (h *hashEmbedder) Name() string {
	return h.name
}

func (h *hashEmbedder) vector(text string) []float32 {
	v := make([]float32, h.dims)
	v[0] = 0.1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		f := fnv.New32a()
		f.Write([]byte(w))
		v[1+int(f.Sum32())%(h.dims-1)]++
	}
	return v
}

func (h *hashEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	if h.fail != nil {
		return nil, h.fail
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = h.vector(t)
	}
	return out, nil
}

func (h *hashEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	if h.fail != nil {
		return nil, h.fail
	}
	return h.vector(text), nil
}

func newTestIndexer(emb *hashEmbedder) *Indexer {
	return NewIndexer(emb, config.IndexConfig{Collection: "documents"}, config.DatabaseConfig{Driver: config.DriverPG})
}

func chunks(texts ...string) []models.Chunk {
	out := make([]models.Chunk, len(texts))
	for i, t := range texts {
		out[i] = models.Chunk{Content: t, Source: "notes.txt", PageNumber: 1, ChunkID: i + 1}
	}
	return out
}

func TestLoadAbsent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	state, err := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims}).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	absent, ok := state.(Absent)
	if !ok {
		t.Fatalf("Load() = %T, want Absent", state)
	}
	if absent.Location != dir {
		t.Errorf("Location = %q, want %q", absent.Location, dir)
	}
}

func TestAddEmptyLeavesLocationAbsent(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	x := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims})

	if _, err := x.Add(ctx, Absent{Location: dir}, nil); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("Add() error = %v, want ErrEmptyInput", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("location created for empty input: %v", err)
	}
}

func TestEmbeddingFailurePersistsNothing(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	x := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims, fail: errors.New("connection refused")})

	if _, err := x.Add(ctx, Absent{Location: dir}, chunks("alpha")); err == nil {
		t.Fatal("Add() expected error")
	}
	state, err := x.Load(ctx, dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := state.(Absent); !ok {
		t.Errorf("Load() = %T after failed add, want Absent", state)
	}
}

func TestQueryReturnsOwnChunkAfterReload(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	emb := &hashEmbedder{name: "fake/v1", dims: fakeDims}
	x := newTestIndexer(emb)

	texts := []string{
		"the cat sat on the mat",
		"quarterly revenue grew by ten percent",
		"install the package with go get",
	}
	ix, err := x.Add(ctx, Absent{Location: dir}, chunks(texts[:2]...))
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if _, err := x.Add(ctx, ix, chunks(texts[2])); err != nil {
		t.Fatalf("Add() to existing index error = %v", err)
	}
	ix.Close()

	state, err := x.Load(ctx, dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	loaded, ok := state.(*Index)
	if !ok {
		t.Fatalf("Load() = %T, want *Index", state)
	}
	if m := loaded.Manifest(); m.Dimension != fakeDims || m.Embedder != "fake/v1" || m.Version != models.IndexVersion {
		t.Errorf("manifest = %+v", m)
	}

	for _, text := range texts {
		matches, err := loaded.Query(ctx, text, 1)
		if err != nil {
			t.Fatalf("Query(%q) error = %v", text, err)
		}
		if len(matches) != 1 || matches[0].Chunk.Content != text {
			t.Errorf("Query(%q) = %+v", text, matches)
		}
	}
}

func TestQueryCapsAtIndexSize(t *testing.T) {
	ctx := context.Background()
	x := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims})

	tests := []struct {
		name  string
		texts []string
		k     int
		want  int
	}{
		{"single chunk", []string{"A"}, 3, 1},
		{"fewer than k", []string{"one", "two"}, 4, 2},
		{"more than k", []string{"one", "two", "three", "four", "five"}, 4, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ix, err := x.Add(ctx, Absent{Location: filepath.Join(t.TempDir(), "db")}, chunks(tt.texts...))
			if err != nil {
				t.Fatal(err)
			}
			matches, err := ix.Query(ctx, tt.texts[0], tt.k)
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(matches) != tt.want {
				t.Fatalf("Query() returned %d matches, want %d", len(matches), tt.want)
			}
			if matches[0].Chunk.Content != tt.texts[0] {
				t.Errorf("nearest = %q, want %q", matches[0].Chunk.Content, tt.texts[0])
			}
		})
	}
}

func TestQueryRejectsNonPositiveK(t *testing.T) {
	ctx := context.Background()
	x := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims})
	ix, err := x.Add(ctx, Absent{Location: filepath.Join(t.TempDir(), "db")}, chunks("A"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ix.Query(ctx, "A", 0); !errors.Is(err, ErrInvalidK) {
		t.Errorf("Query(k=0) error = %v, want ErrInvalidK", err)
	}
}

func TestLoadRejectsOtherEmbedder(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	ix, err := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims}).Add(ctx, Absent{Location: dir}, chunks("alpha"))
	if err != nil {
		t.Fatal(err)
	}
	ix.Close()

	_, err = newTestIndexer(&hashEmbedder{name: "fake/v2", dims: fakeDims}).Load(ctx, dir)
	if !errors.Is(err, ErrEmbedderMismatch) {
		t.Errorf("Load() error = %v, want ErrEmbedderMismatch", err)
	}
}

func TestAddRejectsDimensionChange(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	emb := &hashEmbedder{name: "fake/v1", dims: fakeDims}
	x := newTestIndexer(emb)
	ix, err := x.Add(ctx, Absent{Location: dir}, chunks("alpha"))
	if err != nil {
		t.Fatal(err)
	}

	emb.dims = fakeDims * 2
	if _, err := x.Add(ctx, ix, chunks("beta")); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("Add() error = %v, want ErrDimensionMismatch", err)
	}
	if n, _ := ix.Count(ctx); n != 1 {
		t.Errorf("Count() = %d, want 1", n)
	}
}

// memStore fails every write so Load can be checked against a bad version
type memStore struct {
	manifest *models.Manifest
}

func (m *memStore) ReadManifest(context.Context) (*models.Manifest, error) { return m.manifest, nil }
func (m *memStore) Create(context.Context, models.Manifest, []models.ChunkEmbedding) error {
	return errors.New("read only")
}
func (m *memStore) Append(context.Context, []models.ChunkEmbedding) error { return errors.New("read only") }
func (m *memStore) Count(context.Context) (int, error)                   { return 0, nil }
func (m *memStore) Nearest(context.Context, []float32, int) ([]models.Match, error) {
	return nil, nil
}
func (m *memStore) Close() error { return nil }

func TestLoadRejectsOtherVersion(t *testing.T) {
	x := newTestIndexer(&hashEmbedder{name: "fake/v1", dims: fakeDims})
	x.openStore = func(string) (Store, error) {
		return &memStore{manifest: &models.Manifest{Version: models.IndexVersion + 1, Embedder: "fake/v1"}}, nil
	}
	if _, err := x.Load(context.Background(), "anywhere"); !errors.Is(err, ErrIncompatibleIndex) {
		t.Errorf("Load() error = %v, want ErrIncompatibleIndex", err)
	}
}

func TestQueryEmptyIndex(t *testing.T) {
	ix := &Index{store: &memStore{}, embedder: &hashEmbedder{name: "fake/v1", dims: fakeDims}, manifest: models.Manifest{Dimension: fakeDims}}
	if _, err := ix.Query(context.Background(), "anything", 4); !errors.Is(err, ErrEmptyIndex) {
		t.Errorf("Query() error = %v, want ErrEmptyIndex", err)
	}
}

func TestIsDSN(t *testing.T) {
	tests := map[string]bool{
		"postgres://u:p@localhost/rag":   true,
		"postgresql://u:p@localhost/rag": true,
		"./db":                           false,
		"/var/lib/docchat":               false,
	}
	for location, want := range tests {
		if got := IsDSN(location); got != want {
			t.Errorf("IsDSN(%q) = %v, want %v", location, got, want)
		}
	}
}
