package models

import "time"

// Segment is one page or section of extracted document text
type Segment struct {
	PageNumber int
	Text       string
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	Source     string
	PageNumber int
	ChunkID    int
	// Offset is the rune offset of Content within its page
	Offset int
}

// ChunkEmbedding is a chunk ready to be stored in a vector index
type ChunkEmbedding struct {
	ID        string
	Chunk     Chunk
	Embedding []float32
}

// Match is a chunk returned by a similarity search, nearest first
type Match struct {
	ID         string
	Chunk      Chunk
	Similarity float32
}

// Manifest tags a persisted index with the settings it was built with
type Manifest struct {
	Version    int       `yaml:"version" json:"version"`
	Collection string    `yaml:"collection" json:"collection"`
	Embedder   string    `yaml:"embedder" json:"embedder"`
	Dimension  int       `yaml:"dimension" json:"dimension"`
	CreatedAt  time.Time `yaml:"created_at" json:"created_at"`
}

type PromptResponse struct {
	Query   string
	Model   string
	Content string
	Sources []Match
}
