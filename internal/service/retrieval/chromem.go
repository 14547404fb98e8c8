package retrieval

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/philippgille/chromem-go"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// ChromemIndex 是基于 chromem-go 的嵌入式向量索引。
type ChromemIndex struct {
	db *chromem.DB
}

// NewChromemIndex 在 path 打开持久化数据库，path 为空时使用内存数据库。
func NewChromemIndex(path string) (*ChromemIndex, error) {
	if path == "" {
		return &ChromemIndex{db: chromem.NewDB()}, nil
	}
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("opening chromem database: %w", err)
	}
	return &ChromemIndex{db: db}, nil
}

// 向量总是预先计算好的，chromem 不能自行向量化。
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errors.New("embeddings must be precomputed")
}

// Query 返回最相近的文档，集合不存在或为空时返回空结果。
func (c *ChromemIndex) Query(ctx context.Context, collection string, vector []float32, k int) ([]chat.RetrievedDocument, error) {
	col := c.db.GetCollection(collection, noEmbedding)
	if col == nil {
		return nil, nil
	}

	n := k
	if count := col.Count(); count < n {
		n = count
	}
	if n <= 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, vector, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}

	docs := make([]chat.RetrievedDocument, len(results))
	for i, r := range results {
		docs[i] = chat.RetrievedDocument{Content: r.Content, Rank: i, Score: r.Similarity}
	}
	return docs, nil
}

// Upsert 写入文档并替换同 ID 的旧文档。chromem 只支持余弦相似度，
// metric 只用于命名集合。
func (c *ChromemIndex) Upsert(ctx context.Context, collection, _ string, docs []Document) error {
	col, err := c.db.GetOrCreateCollection(collection, nil, noEmbedding)
	if err != nil {
		return fmt.Errorf("opening collection %s: %w", collection, err)
	}

	batch := make([]chromem.Document, len(docs))
	for i, d := range docs {
		id := d.ID
		if id == "" {
			id = DocumentID(d.Content)
		}
		batch[i] = chromem.Document{
			ID:        id,
			Content:   d.Content,
			Embedding: d.Embedding,
		}
	}
	if err := col.AddDocuments(ctx, batch, runtime.NumCPU()); err != nil {
		return fmt.Errorf("adding documents to %s: %w", collection, err)
	}
	return nil
}

// Close 无操作，持久化写入按文档刷新。
func (c *ChromemIndex) Close() error {
	return nil
}
