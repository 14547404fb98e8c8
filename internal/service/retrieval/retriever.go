package retrieval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/metrics"
	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// DefaultTopK 是拼入提示词上下文的文档数量。
const DefaultTopK = 5

var tracer = otel.Tracer("loob.retrieval")

// Retriever 为一轮对话检索上下文。
type Retriever struct {
	embedder Embedder
	index    Index
	topK     int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewRetriever 组合向量化器与索引，topK <= 0 时使用 DefaultTopK。
func NewRetriever(embedder Embedder, index Index, topK int, logger *zap.Logger, m *metrics.Metrics) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		topK:     topK,
		logger:   logger.Named("retrieval"),
		metrics:  m,
	}
}

// Retrieve 向量化 latest，返回 metric 对应集合中最相近的文档，
// 按排名顺序以换行拼接。输入为空时跳过检索，返回空上下文。
func (r *Retriever) Retrieve(ctx context.Context, latest, metric string) (string, []chat.RetrievedDocument, error) {
	if strings.TrimSpace(latest) == "" {
		return "", nil, nil
	}

	collection, err := CollectionName(metric)
	if err != nil {
		return "", nil, err
	}

	ctx, span := tracer.Start(ctx, "Retriever.Retrieve",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("collection", collection),
			attribute.Int("k", r.topK),
		),
	)
	defer span.End()

	start := time.Now()
	defer func() { r.metrics.ObserveRetrieval(time.Since(start)) }()

	vector, err := r.embedder.EmbedQuery(ctx, latest)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return "", nil, fmt.Errorf("embedding latest message: %w", err)
	}

	docs, err := r.index.Query(ctx, collection, vector, r.topK)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query failed")
		return "", nil, fmt.Errorf("querying vector index: %w", err)
	}
	if len(docs) > r.topK {
		docs = docs[:r.topK]
	}

	contents := make([]string, len(docs))
	for i, d := range docs {
		contents[i] = d.Content
	}

	span.SetAttributes(attribute.Int("documents", len(docs)))
	span.SetStatus(codes.Ok, "")
	r.logger.Debug("retrieved context",
		zap.String("collection", collection),
		zap.Int("documents", len(docs)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return strings.Join(contents, "\n"), docs, nil
}
