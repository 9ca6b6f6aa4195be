package retriever

import (
	"context"
	"fmt"

	"docchat-be/internal/constant"
	"docchat-be/internal/entity"
	"docchat-be/internal/repository/unitofwork"
	"docchat-be/pkg/embedding"
	"docchat-be/pkg/rag"

	"github.com/google/uuid"
)

// Retriever embeds a search query and pulls the caller's most similar
// chunks out of the vector index. Read-only: it never mutates the index.
type Retriever struct {
	embedder   embedding.EmbeddingProvider
	uowFactory unitofwork.RepositoryFactory
	threshold  float64
}

func NewRetriever(embedder embedding.EmbeddingProvider, uowFactory unitofwork.RepositoryFactory, threshold float64) *Retriever {
	return &Retriever{
		embedder:   embedder,
		uowFactory: uowFactory,
		threshold:  threshold,
	}
}

// Retrieve returns at most k chunks ordered by descending similarity.
// Zero hits is a normal outcome, not an error.
func (r *Retriever) Retrieve(ctx context.Context, userId uuid.UUID, query string, k int) ([]entity.RetrievedChunk, error) {
	if k < constant.MinTopK {
		k = constant.DefaultTopK
	}

	embedRes, err := r.embedder.Generate(query, constant.TaskTypeRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", rag.ErrRetrievalUnavailable, err)
	}

	uow := r.uowFactory.NewUnitOfWork(ctx)
	scored, err := uow.DocumentChunkRepository().SearchSimilarWithScore(
		ctx, embedRes.Embedding.Values, k, userId, r.threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", rag.ErrRetrievalUnavailable, err)
	}

	seen := make(map[uuid.UUID]struct{}, len(scored))
	chunks := make([]entity.RetrievedChunk, 0, len(scored))
	for _, s := range scored {
		if _, dup := seen[s.Chunk.Id]; dup {
			continue
		}
		seen[s.Chunk.Id] = struct{}{}
		chunks = append(chunks, entity.RetrievedChunk{
			Text:          s.Chunk.Text,
			Score:         s.Similarity,
			DocumentId:    s.Chunk.DocumentId,
			DocumentTitle: s.DocumentTitle,
			ChunkIndex:    s.Chunk.ChunkIndex,
		})
	}

	return chunks, nil
}
