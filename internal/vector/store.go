package vector

import (
	"context"
	"fmt"

	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// Point is one embedded chunk ready for indexing.
type Point struct {
	ID      string
	Vector  []float32
	Payload PointPayload
}

// PointPayload carries the chunk metadata stored alongside the vector.
type PointPayload struct {
	DocumentID         string
	ChunkID            string
	ChunkIndex         int
	Page               int
	Content            string
	EmbeddingProfileID string
}

// Store abstracts the vector database so services and tests do not touch
// the Weaviate client directly.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dimension int, distance string) error
	CollectionExists(ctx context.Context, name string) (bool, error)
	CollectionDimension(ctx context.Context, name string) (int, error)
	DropCollection(ctx context.Context, name string) error
	UpsertPoints(ctx context.Context, collection string, points []Point) error
	DeleteByDocument(ctx context.Context, collection, documentID string) error
	CountByDocument(ctx context.Context, collection, documentID string) (int, error)
}

// PointID derives a stable UUID for a chunk. Identical document and chunk
// ids always map to the same point, so re-embedding overwrites in place
// instead of duplicating.
func PointID(documentID, chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(documentID+":"+chunkID)).String()
}

// WeaviateStore implements Store on a Weaviate class per collection.
// Weaviate has no per-class dimension setting, so the dimension and
// distance metric are recorded in the class description and read back
// from there.
type WeaviateStore struct {
	client *weaviate.Client
}

func NewWeaviateStore(client *weaviate.Client) *WeaviateStore {
	return &WeaviateStore{client: client}
}

func collectionDescription(dimension int, distance string) string {
	return fmt.Sprintf("dimension=%d distance=%s", dimension, distance)
}

// ParseCollectionDescription recovers dimension and distance from a class
// description written by EnsureCollection.
func ParseCollectionDescription(desc string) (int, string, error) {
	var dimension int
	var distance string
	if _, err := fmt.Sscanf(desc, "dimension=%d distance=%s", &dimension, &distance); err != nil {
		return 0, "", fmt.Errorf("unparseable collection description %q: %w", desc, err)
	}
	return dimension, distance, nil
}

func chunkProperties() []*models.Property {
	return []*models.Property{
		{Name: "content", DataType: []string{"text"}},
		{Name: "documentId", DataType: []string{"string"}},
		{Name: "chunkId", DataType: []string{"string"}},
		{Name: "chunkIndex", DataType: []string{"int"}},
		{Name: "page", DataType: []string{"int"}},
		{Name: "embeddingProfileId", DataType: []string{"string"}},
	}
}

func (s *WeaviateStore) EnsureCollection(ctx context.Context, name string, dimension int, distance string) error {
	exists, err := s.CollectionExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	class := &models.Class{
		Class:       name,
		Description: collectionDescription(dimension, distance),
		Vectorizer:  "none",
		VectorIndexConfig: map[string]interface{}{
			"distance": distance,
		},
		Properties: chunkProperties(),
	}
	return s.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (s *WeaviateStore) CollectionExists(ctx context.Context, name string) (bool, error) {
	return s.client.Schema().ClassExistenceChecker().WithClassName(name).Do(ctx)
}

func (s *WeaviateStore) CollectionDimension(ctx context.Context, name string) (int, error) {
	class, err := s.client.Schema().ClassGetter().WithClassName(name).Do(ctx)
	if err != nil {
		return 0, err
	}
	dimension, _, err := ParseCollectionDescription(class.Description)
	return dimension, err
}

func (s *WeaviateStore) DropCollection(ctx context.Context, name string) error {
	return s.client.Schema().ClassDeleter().WithClassName(name).Do(ctx)
}

func (s *WeaviateStore) UpsertPoints(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	objects := make([]*models.Object, 0, len(points))
	for _, p := range points {
		objects = append(objects, &models.Object{
			Class: collection,
			ID:    strfmt.UUID(p.ID),
			Properties: map[string]interface{}{
				"content":            p.Payload.Content,
				"documentId":         p.Payload.DocumentID,
				"chunkId":            p.Payload.ChunkID,
				"chunkIndex":         p.Payload.ChunkIndex,
				"page":               p.Payload.Page,
				"embeddingProfileId": p.Payload.EmbeddingProfileID,
			},
			Vector: models.C11yVector(p.Vector),
		})
	}

	resp, err := s.client.Batch().ObjectsBatcher().WithObjects(objects...).Do(ctx)
	if err != nil {
		return fmt.Errorf("batch upsert into %s: %w", collection, err)
	}

	for _, r := range resp {
		if r.Result != nil && r.Result.Errors != nil && len(r.Result.Errors.Error) > 0 {
			return fmt.Errorf("batch upsert into %s: %s", collection, r.Result.Errors.Error[0].Message)
		}
	}
	return nil
}

func (s *WeaviateStore) DeleteByDocument(ctx context.Context, collection, documentID string) error {
	_, err := s.client.Batch().ObjectsBatchDeleter().
		WithClassName(collection).
		WithOutput("minimal").
		WithWhere(filters.Where().
			WithPath([]string{"documentId"}).
			WithOperator(filters.Equal).
			WithValueString(documentID)).
		Do(ctx)
	return err
}

func (s *WeaviateStore) CountByDocument(ctx context.Context, collection, documentID string) (int, error) {
	where := filters.Where().
		WithPath([]string{"documentId"}).
		WithOperator(filters.Equal).
		WithValueString(documentID)

	res, err := s.client.GraphQL().Aggregate().
		WithClassName(collection).
		WithWhere(where).
		WithFields(graphql.Field{Name: "meta", Fields: []graphql.Field{{Name: "count"}}}).
		Do(ctx)
	if err != nil {
		return 0, err
	}
	if len(res.Errors) > 0 {
		return 0, fmt.Errorf("graphql error: %v", res.Errors)
	}

	if data, ok := res.Data["Aggregate"].(map[string]interface{}); ok {
		if rows, ok := data[collection].([]interface{}); ok && len(rows) > 0 {
			if row, ok := rows[0].(map[string]interface{}); ok {
				if meta, ok := row["meta"].(map[string]interface{}); ok {
					if count, ok := meta["count"].(float64); ok {
						return int(count), nil
					}
				}
			}
		}
	}
	return 0, nil
}
