package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/youssefsiam38/legalpg/internal/tokens"
	"github.com/youssefsiam38/legalpg/storage"
)

// DefaultChunkSize is the token budget of one embedded chunk.
const DefaultChunkSize = 512

// ChunkDocuments splits documents into chunks for embedding. A document of
// at most chunkSize tokens is one chunk; a longer one is cut into windows of
// chunkSize*3/4 words, at roughly four tokens per three words. Nothing is
// produced for text that counts zero tokens, whether it is a whole document
// or a window, since an embedding request with empty input fails.
func ChunkDocuments(ctx context.Context, docs []*storage.Document, chunkSize int, counter tokens.Counter) ([]*storage.EmbeddedDocument, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	window := max(chunkSize*3/4, 1)

	var chunks []*storage.EmbeddedDocument
	for _, doc := range docs {
		n, err := counter.Count(ctx, doc.Contents)
		if err != nil {
			return nil, fmt.Errorf("failed to count tokens of article %s: %w", doc.Article, err)
		}
		if n <= chunkSize {
			if n > 0 {
				chunks = append(chunks, newChunk(doc, doc.Contents, n))
			}
			continue
		}

		words := strings.Fields(doc.Contents)
		for start := 0; start < len(words); start += window {
			text := strings.Join(words[start:min(start+window, len(words))], " ")
			n, err := counter.Count(ctx, text)
			if err != nil {
				return nil, fmt.Errorf("failed to count tokens of article %s: %w", doc.Article, err)
			}
			if n > 0 {
				chunks = append(chunks, newChunk(doc, text, n))
			}
		}
	}
	return chunks, nil
}

func newChunk(doc *storage.Document, text string, n int) *storage.EmbeddedDocument {
	return &storage.EmbeddedDocument{
		Article:  doc.Article,
		URL:      doc.URL,
		Contents: text,
		Tokens:   n,
	}
}
