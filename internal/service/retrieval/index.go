package retrieval

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/IvaTomevska/loob-beta/internal/config"
	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// ErrUnknownBackend 表示无法识别的 VECTOR_BACKEND 配置。
var ErrUnknownBackend = errors.New("unknown vector backend")

// Document 是带有预计算向量的参考文本。
type Document struct {
	ID        string
	Content   string
	Embedding []float32
}

// Index 是按集合分组的最近邻文档存储。
type Index interface {
	// Query 按相似度降序返回最多 k 个文档
	Query(ctx context.Context, collection string, vector []float32, k int) ([]chat.RetrievedDocument, error)
	// Upsert 写入文档，需要时按 metric 创建集合
	Upsert(ctx context.Context, collection, metric string, docs []Document) error
	Close() error
}

var documentNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("loob:reference-document"))

// DocumentID 根据内容生成稳定 ID，重复导入时覆盖而不是重复写入。
func DocumentID(content string) string {
	return uuid.NewSHA1(documentNamespace, []byte(content)).String()
}

// NewIndex 按配置创建索引后端。
func NewIndex(cfg config.VectorConfig) (Index, error) {
	switch cfg.Backend {
	case "", "chromem":
		return NewChromemIndex(cfg.ChromemPath)
	case "qdrant":
		return NewQdrantIndex(QdrantConfig{
			Host:   cfg.QdrantHost,
			Port:   cfg.QdrantPort,
			APIKey: cfg.QdrantAPIKey,
			UseTLS: cfg.QdrantTLS,
		})
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
}
