package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/IvaTomevska/loob-beta/internal/metrics"
	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

// ErrNoOutput 表示模型在输出任何文本之前失败。
var ErrNoOutput = errors.New("completion produced no output")

// Service 通过 eino 链执行流式对话补全。
type Service struct {
	defaultModel string
	chain        compose.Runnable[map[string]any, *schema.Message]
	logger       *zap.Logger
	metrics      *metrics.Metrics
	pending      sync.WaitGroup
}

// NewService 围绕 chatModel 编译提示词 + 模型链。
func NewService(ctx context.Context, chatModel model.BaseChatModel, defaultModel string, logger *zap.Logger, m *metrics.Metrics) (*Service, error) {
	if chatModel == nil {
		return nil, fmt.Errorf("chat model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		defaultModel: defaultModel,
		chain:        runnable,
		logger:       logger.Named("stream"),
		metrics:      m,
	}, nil
}

// Stream 使用 llm（为空时使用默认模型）为 system + 历史启动流式补全。
func (s *Service) Stream(ctx context.Context, llm, system string, messages []chat.Message) (*Completion, error) {
	if llm == "" {
		llm = s.defaultModel
	}

	input := map[string]any{
		"system":  system,
		"history": BuildHistory(messages),
	}

	var opts []compose.Option
	if llm != "" {
		opts = append(opts, compose.WithChatModelOption(model.WithModel(llm)))
	}

	stream, err := s.chain.Stream(ctx, input, opts...)
	if err != nil {
		s.metrics.Completion("failed")
		return nil, fmt.Errorf("%w: failed to stream AI chain output: %w", ErrNoOutput, err)
	}

	return &Completion{
		ctx:     ctx,
		model:   llm,
		stream:  stream,
		service: s,
	}, nil
}

// Wait 阻塞直到所有已调度的完成回调返回。
func (s *Service) Wait() {
	s.pending.Wait()
}

// Hooks 在片段流结束后按顺序各执行一次，均为可选。
type Hooks struct {
	OnStart      func(ctx context.Context)
	OnCompletion func(ctx context.Context, text string)
}

// Completion 表示一次不可重启的模型流。
type Completion struct {
	ctx     context.Context
	model   string
	stream  *schema.StreamReader[*schema.Message]
	service *Service
	once    sync.Once
}

// Relay 按产生顺序把非空片段转发给 sink，同时累积相同的片段。
// 流结束后在独立 goroutine 上调度回调，并返回完整文本。
//
// 第一个片段之前的失败包装为 ErrNoOutput 返回，且不执行回调。
// 之后的失败会提前结束转发，已发送的文本即为补全结果。
func (c *Completion) Relay(sink func(fragment string) error, hooks Hooks) (string, error) {
	defer c.Close()

	var (
		builder   strings.Builder
		delivered int
		result    = "ok"
	)
	logger := c.service.logger.With(zap.String("model", c.model))

	for {
		chunk, err := c.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if delivered == 0 {
				c.service.metrics.Completion("failed")
				return "", fmt.Errorf("%w: %w", ErrNoOutput, err)
			}
			logger.Warn("stream ended early", zap.Int("fragments", delivered), zap.Error(err))
			result = "partial"
			break
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		if err := sink(chunk.Content); err != nil {
			logger.Warn("caller stopped receiving", zap.Int("fragments", delivered), zap.Error(err))
			result = "partial"
			break
		}
		builder.WriteString(chunk.Content)
		delivered++
		c.service.metrics.Fragment()
	}

	text := builder.String()
	c.service.metrics.Completion(result)
	logger.Info("completion finished", zap.Int("fragments", delivered), zap.Int("length", len(text)))

	c.schedule(hooks, text)
	return text, nil
}

// Close 释放底层流，可重复调用。
func (c *Completion) Close() {
	c.once.Do(c.stream.Close)
}

func (c *Completion) schedule(hooks Hooks, text string) {
	if hooks.OnStart == nil && hooks.OnCompletion == nil {
		return
	}

	ctx := context.WithoutCancel(c.ctx)
	c.service.pending.Add(1)
	go func() {
		defer c.service.pending.Done()
		defer func() {
			if r := recover(); r != nil {
				c.service.logger.Error("completion hook panicked", zap.Any("panic", r))
			}
		}()

		if hooks.OnStart != nil {
			hooks.OnStart(ctx)
		}
		if hooks.OnCompletion != nil {
			hooks.OnCompletion(ctx, text)
		}
	}()
}
