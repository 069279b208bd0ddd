package chromemdb

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"document-chat/internal/models"
)

func noEmbed(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings are precomputed")
}

func record(id, content string, vec ...float32) models.ChunkEmbedding {
	return models.ChunkEmbedding{
		ID:        id,
		Chunk:     models.Chunk{Content: content, Source: "doc.pdf", PageNumber: 2, ChunkID: 3, Offset: 600},
		Embedding: vec,
	}
}

func TestCreateReopenAndSearch(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	manifest := models.Manifest{Version: 1, Collection: "documents", Embedder: "fake/v1", Dimension: 2, CreatedAt: time.Now().UTC()}

	m := NewVectorDBManager(dir, "documents", false, "", noEmbed)
	got, err := m.ReadManifest(ctx)
	if err != nil || got != nil {
		t.Fatalf("ReadManifest() on empty location = %v, %v", got, err)
	}
	if err := m.Create(ctx, manifest, []models.ChunkEmbedding{record("a", "alpha", 1, 0)}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := m.Append(ctx, []models.ChunkEmbedding{record("b", "beta", 0, 1)}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	m.Close()

	reopened := NewVectorDBManager(dir, "documents", false, "", noEmbed)
	got, err = reopened.ReadManifest(ctx)
	if err != nil || got == nil {
		t.Fatalf("ReadManifest() = %v, %v", got, err)
	}
	if got.Embedder != "fake/v1" || got.Dimension != 2 {
		t.Errorf("manifest = %+v", got)
	}
	count, err := reopened.Count(ctx)
	if err != nil || count != 2 {
		t.Fatalf("Count() = %d, %v", count, err)
	}

	matches, err := reopened.Nearest(ctx, []float32{0.1, 0.9}, 2)
	if err != nil {
		t.Fatalf("Nearest() error = %v", err)
	}
	if len(matches) != 2 || matches[0].ID != "b" {
		t.Fatalf("Nearest() = %+v", matches)
	}
	wantChunk := models.Chunk{Content: "beta", Source: "doc.pdf", PageNumber: 2, ChunkID: 3, Offset: 600}
	if matches[0].Chunk != wantChunk {
		t.Errorf("chunk = %+v, want %+v", matches[0].Chunk, wantChunk)
	}
	if matches[0].Similarity < matches[1].Similarity {
		t.Errorf("results not ordered nearest first: %+v", matches)
	}
}

func TestCreateFailureLeavesNothing(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	m := NewVectorDBManager(dir, "documents", false, "", noEmbed)

	// chromem rejects documents without an id
	err := m.Create(ctx, models.Manifest{Version: 1}, []models.ChunkEmbedding{record("", "alpha", 1, 0)})
	if err == nil {
		t.Fatal("Create() expected error")
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Errorf("location still exists after failed create: %v", statErr)
	}
	if got, _ := m.ReadManifest(ctx); got != nil {
		t.Errorf("manifest present after failed create")
	}
}

func TestCreateFailureKeepsExistingFolder(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := NewVectorDBManager(dir, "documents", false, "", noEmbed)
	if err := m.Create(ctx, models.Manifest{Version: 1}, []models.ChunkEmbedding{record("", "alpha", 1, 0)}); err == nil {
		t.Fatal("Create() expected error")
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("unrelated file removed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, dataDir)); !os.IsNotExist(err) {
		t.Errorf("chromem data left behind: %v", err)
	}
}

func TestAppendFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	m := NewVectorDBManager(dir, "documents", false, "", noEmbed)
	if err := m.Create(ctx, models.Manifest{Version: 1}, []models.ChunkEmbedding{record("a", "alpha", 1, 0)}); err != nil {
		t.Fatal(err)
	}

	err := m.Append(ctx, []models.ChunkEmbedding{record("b", "beta", 0, 1), record("", "broken", 1, 1)})
	if err == nil {
		t.Fatal("Append() expected error")
	}
	count, err := m.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("Count() = %d after failed append, want 1", count)
	}
}

func TestExport(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "db")
	m := NewVectorDBManager(dir, "documents", true, "", noEmbed)
	if err := m.Create(ctx, models.Manifest{Version: 1}, []models.ChunkEmbedding{record("a", "alpha", 1, 0)}); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(t.TempDir(), "backup.gob.gz")
	if err := m.Export(ctx, out); err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	info, err := os.Stat(out)
	if err != nil || info.Size() == 0 {
		t.Errorf("export file missing or empty: %v", err)
	}
}
