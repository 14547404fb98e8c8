package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// fakeChatModel 按固定片段列表流式输出，并记录收到的输入。
type fakeChatModel struct {
	mu        sync.Mutex
	fragments []string
	failAfter int
	streamErr error
	recvErr   error
	lastInput []*schema.Message
	lastModel string
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	f.record(input, opts)
	return schema.AssistantMessage(strings.Join(f.fragments, ""), nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.record(input, opts)
	if f.streamErr != nil {
		return nil, f.streamErr
	}

	reader, writer := schema.Pipe[*schema.Message](len(f.fragments) + 1)
	go func() {
		defer writer.Close()
		for i, fragment := range f.fragments {
			if f.recvErr != nil && i == f.failAfter {
				writer.Send(nil, f.recvErr)
				return
			}
			writer.Send(schema.AssistantMessage(fragment, nil), nil)
		}
		if f.recvErr != nil && f.failAfter >= len(f.fragments) {
			writer.Send(nil, f.recvErr)
		}
	}()
	return reader, nil
}

func (f *fakeChatModel) record(input []*schema.Message, opts []model.Option) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastInput = input
	f.lastModel = ""
	if common := model.GetCommonOptions(nil, opts...); common.Model != nil {
		f.lastModel = *common.Model
	}
}

func (f *fakeChatModel) input() ([]*schema.Message, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastInput, f.lastModel
}
