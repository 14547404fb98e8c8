// Package pipeline 端到端处理一次对话请求：检索、组装提示词、保存消息、
// 流式补全，以及提取、保存并广播分析结果的完成回调。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/analysis/mood"
	"github.com/IvaTomevska/loob-beta/internal/logging"
	"github.com/IvaTomevska/loob-beta/internal/metrics"
	"github.com/IvaTomevska/loob-beta/internal/model/chat"
	"github.com/IvaTomevska/loob-beta/internal/service/ai"
	chatservice "github.com/IvaTomevska/loob-beta/internal/service/chat"
)

// Retriever 为最新消息检索上下文。
type Retriever interface {
	Retrieve(ctx context.Context, latest, metric string) (string, []chat.RetrievedDocument, error)
}

// Streamer 启动流式补全。
type Streamer interface {
	Stream(ctx context.Context, llm, system string, messages []chat.Message) (*ai.Completion, error)
	Wait()
}

// TurnStore 保存消息并去重。
type TurnStore interface {
	Save(ctx context.Context, sessionID, content string, role chat.Role, analysis *chat.Analysis) error
}

// Broadcaster 以非阻塞方式发布分析事件。
type Broadcaster interface {
	Publish(ctx context.Context, channel, event string, payload any) error
	Wait()
}

// Deps 是构建流水线所需的依赖。未配置向量库时 Retriever 可以为 nil，
// 此时请求 RAG 会失败。
type Deps struct {
	Retriever   Retriever
	Streamer    Streamer
	Turns       TurnStore
	Broadcaster Broadcaster
	Extractor   *mood.Extractor
	Logger      *zap.Logger
	Metrics     *metrics.Metrics

	Channel string
	Event   string

	// Closers 在未完成的工作结束后由 Shutdown 按顺序关闭
	Closers []io.Closer
}

// Pipeline 协调单轮对话。
type Pipeline struct {
	deps   Deps
	logger *zap.Logger
}

var (
	ErrRetrievalUnavailable = errors.New("retrieval is not configured")
	ErrEmptyConversation    = errors.New("messages must not be empty")
	ErrInvalidRole          = errors.New("message role must be user, assistant or system")
)

// New 校验依赖并返回流水线。
func New(deps Deps) (*Pipeline, error) {
	if deps.Streamer == nil {
		return nil, errors.New("pipeline requires a streamer")
	}
	if deps.Turns == nil {
		return nil, errors.New("pipeline requires a turn store")
	}
	if deps.Broadcaster == nil {
		return nil, errors.New("pipeline requires a broadcaster")
	}
	deps.Logger = logging.OrNop(deps.Logger)
	if deps.Extractor == nil {
		deps.Extractor = mood.NewExtractor(deps.Logger.Named("analysis"))
	}
	if deps.Channel == "" {
		deps.Channel = "my-channel"
	}
	if deps.Event == "" {
		deps.Event = "my-event"
	}
	return &Pipeline{deps: deps, logger: deps.Logger.Named("pipeline")}, nil
}

// Handle 处理请求并把补全片段流式写入 sink。
// 只有在尚未向 sink 写入任何内容时才会返回错误。
func (p *Pipeline) Handle(ctx context.Context, req chat.ChatRequest, sink func(fragment string) error) error {
	if len(req.Messages) == 0 {
		return ErrEmptyConversation
	}
	if req.SessionID == "" {
		return chatservice.ErrSessionRequired
	}
	for i, msg := range req.Messages {
		if !msg.Role.Valid() {
			return fmt.Errorf("%w: got %q at message %d", ErrInvalidRole, msg.Role, i)
		}
	}

	logger := p.logger.With(zap.String("session_id", req.SessionID))

	var docContext string
	if req.UseRAG {
		if p.deps.Retriever == nil {
			return ErrRetrievalUnavailable
		}
		text, docs, err := p.deps.Retriever.Retrieve(ctx, req.LatestContent(), req.SimilarityMetric)
		if err != nil {
			return fmt.Errorf("retrieving context: %w", err)
		}
		docContext = text
		logger.Debug("context retrieved", zap.Int("documents", len(docs)))
	}

	system := ai.BuildSystemPrompt(docContext)

	// 按发送顺序保存消息
	for _, msg := range req.Messages {
		var analysis *chat.Analysis
		if msg.Role == chat.RoleAssistant {
			analysis, _ = p.deps.Extractor.Extract(msg.Content)
		}
		if err := p.deps.Turns.Save(ctx, req.SessionID, msg.Content, msg.Role, analysis); err != nil {
			return fmt.Errorf("saving %s turn: %w", msg.Role, err)
		}
	}

	completion, err := p.deps.Streamer.Stream(ctx, req.LLM, system, req.Messages)
	if err != nil {
		return err
	}

	_, err = completion.Relay(sink, ai.Hooks{
		OnCompletion: func(hookCtx context.Context, text string) {
			p.complete(hookCtx, logger, req.SessionID, text)
		},
	})
	return err
}

// complete 在流结束后执行，与请求生命周期分离。
func (p *Pipeline) complete(ctx context.Context, logger *zap.Logger, sessionID, text string) {
	analysis, found := p.deps.Extractor.Extract(text)
	p.deps.Metrics.Analysis(found)

	if found {
		event := chat.AnalysisEvent{Analysis: *analysis}
		logger.Info("sending analysis data",
			zap.String("mood", string(analysis.Mood)),
			zap.Strings("keywords", analysis.Keywords),
		)
		if err := p.deps.Broadcaster.Publish(ctx, p.deps.Channel, p.deps.Event, event); err != nil {
			logger.Error("failed to publish analysis", zap.Error(err))
		}
	}

	if err := p.deps.Turns.Save(ctx, sessionID, text, chat.RoleAssistant, analysis); err != nil {
		logger.Error("failed to save assistant turn", zap.Error(err))
	}
}

// Wait 阻塞直到未完成的回调和广播结束。
func (p *Pipeline) Wait() {
	p.deps.Streamer.Wait()
	p.deps.Broadcaster.Wait()
}

// shutdowner 是可以用 context 限制排空时长的关闭器。
type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// Shutdown 在 ctx 限制内排空未完成的工作，然后关闭 Deps.Closers 中的所有句柄。
// 实现了 Shutdown 方法的句柄会收到 ctx。
func (p *Pipeline) Shutdown(ctx context.Context) error {
	drained := make(chan struct{})
	go func() {
		p.Wait()
		close(drained)
	}()

	var errs []error
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("draining pipeline: %w", ctx.Err()))
	}

	for _, c := range p.deps.Closers {
		var err error
		if s, ok := c.(shutdowner); ok {
			err = s.Shutdown(ctx)
		} else {
			err = c.Close()
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
