package retrieval

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

const contentField = "content"

// QdrantConfig 保存 gRPC 连接配置。
type QdrantConfig struct {
	Host   string
	Port   int
	APIKey string
	UseTLS bool
}

// QdrantIndex 查询 Qdrant 服务。
type QdrantIndex struct {
	client *qdrant.Client
}

// NewQdrantIndex 连接 Qdrant。连接是惰性的，服务不可达会在首次查询时暴露。
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &QdrantIndex{client: client}, nil
}

// Query 返回带有 content 负载的最近点。
func (q *QdrantIndex) Query(ctx context.Context, collection string, vector []float32, k int) ([]chat.RetrievedDocument, error) {
	points, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrant.PtrOf(uint64(k)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	docs := make([]chat.RetrievedDocument, 0, len(points))
	for _, p := range points {
		value, ok := p.GetPayload()[contentField]
		if !ok {
			continue
		}
		docs = append(docs, chat.RetrievedDocument{
			Content: value.GetStringValue(),
			Rank:    len(docs),
			Score:   p.GetScore(),
		})
	}
	return docs, nil
}

// Upsert 写入文档，集合不存在时按 metric 对应的距离创建。
func (q *QdrantIndex) Upsert(ctx context.Context, collection, metric string, docs []Document) error {
	if len(docs) == 0 {
		return nil
	}

	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("checking collection %s: %w", collection, err)
	}
	if !exists {
		err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(len(docs[0].Embedding)),
				Distance: qdrantDistance(metric),
			}),
		})
		if err != nil {
			return fmt.Errorf("creating collection %s: %w", collection, err)
		}
	}

	points := make([]*qdrant.PointStruct, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = DocumentID(d.Content)
		}
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(id),
			Vectors: qdrant.NewVectors(d.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{contentField: d.Content}),
		}
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", collection, err)
	}
	return nil
}

func qdrantDistance(metric string) qdrant.Distance {
	switch metric {
	case "euclidean", "euclid":
		return qdrant.Distance_Euclid
	case "dot_product", "dot":
		return qdrant.Distance_Dot
	case "manhattan":
		return qdrant.Distance_Manhattan
	default:
		return qdrant.Distance_Cosine
	}
}

// Close 关闭 gRPC 连接。
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
