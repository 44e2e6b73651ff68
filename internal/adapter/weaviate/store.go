package weaviate

import (
	"context"
	"fmt"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"

	"avatar/backend/internal/embed"
	"avatar/backend/internal/retrieval"
	"avatar/backend/internal/vector"
)

type Store struct {
	client *weaviate.Client
}

func NewStore(client *weaviate.Client) *Store {
	return &Store{client: client}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	return vector.EnsureSchema(ctx, vector.NewWeaviateClientAdapter(s.client))
}

// StoreChunk upserts the vector object for a chunk. The object id is the
// chunk's row id, so re-embedding a chunk replaces rather than duplicates.
func (s *Store) StoreChunk(ctx context.Context, v embed.ChunkVector) error {
	// Delete-then-create: the data API has no vector-preserving update.
	_ = s.client.Data().Deleter().
		WithClassName(vector.ClassPersonaChunk).
		WithID(v.ChunkID).
		Do(ctx)

	_, err := s.client.Data().Creator().
		WithClassName(vector.ClassPersonaChunk).
		WithID(v.ChunkID).
		WithProperties(map[string]interface{}{
			"content":    v.Content,
			"sourceId":   v.SourceID,
			"chunkIndex": v.ChunkIndex,
			"domain":     v.Domain,
			"tokenCount": v.TokenCount,
		}).
		WithVector(v.Vector).
		Do(ctx)
	return err
}

// DeleteBySource removes every vector belonging to a source (cascade path).
func (s *Store) DeleteBySource(ctx context.Context, sourceID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(vector.ClassPersonaChunk).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"sourceId"}).
			WithOperator(filters.Equal).
			WithValueString(sourceID)).
		Do(ctx)
	return err
}

// SearchNearVector returns chunks within 1-threshold cosine distance of the
// query vector, closest first, with similarity = 1 - distance.
func (s *Store) SearchNearVector(ctx context.Context, queryVector []float32, threshold float32, limit int) ([]retrieval.Match, error) {
	nearVector := s.client.GraphQL().NearVectorArgBuilder().
		WithVector(queryVector).
		WithDistance(1 - threshold)

	fields := []graphql.Field{
		{Name: "content"},
		{Name: "sourceId"},
		{Name: "chunkIndex"},
		{Name: "domain"},
		{Name: "_additional", Fields: []graphql.Field{{Name: "id"}, {Name: "distance"}}},
	}

	res, err := s.client.GraphQL().Get().
		WithClassName(vector.ClassPersonaChunk).
		WithNearVector(nearVector).
		WithLimit(limit).
		WithFields(fields...).
		Do(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Errors) > 0 {
		return nil, fmt.Errorf("graphql error: %v", res.Errors)
	}

	var matches []retrieval.Match
	if data, ok := res.Data["Get"].(map[string]interface{}); ok {
		if objs, ok := data[vector.ClassPersonaChunk].([]interface{}); ok {
			for _, o := range objs {
				props, ok := o.(map[string]interface{})
				if !ok {
					continue
				}

				m := retrieval.Match{}
				if content, ok := props["content"].(string); ok {
					m.Content = content
				}
				if sourceID, ok := props["sourceId"].(string); ok {
					m.SourceID = sourceID
				}
				if idx, ok := props["chunkIndex"].(float64); ok {
					m.ChunkIndex = int(idx)
				}
				if domain, ok := props["domain"].(string); ok {
					m.Domain = domain
				}
				if additional, ok := props["_additional"].(map[string]interface{}); ok {
					if id, ok := additional["id"].(string); ok {
						m.ChunkID = id
					}
					if dist, ok := additional["distance"].(float64); ok {
						m.Similarity = 1 - float32(dist)
					}
				}

				matches = append(matches, m)
			}
		}
	}

	return matches, nil
}

// CountChunks reports how many vectors are stored, for the stats endpoint.
func (s *Store) CountChunks(ctx context.Context) (int, error) {
	res, err := s.client.GraphQL().Aggregate().
		WithClassName(vector.ClassPersonaChunk).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if objs, ok := data[vector.ClassPersonaChunk].([]interface{}); ok && len(objs) > 0 {
			if obj, ok := objs[0].(map[string]interface{}); ok {
				if meta, ok := obj["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
