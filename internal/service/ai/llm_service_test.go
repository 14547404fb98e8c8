package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
)

func newTestService(t *testing.T, fake *fakeChatModel) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), fake, "gpt-3.5-turbo", nil, nil)
	require.NoError(t, err)
	return svc
}

func TestRelayDeliversFragmentsAndCompletionInOrder(t *testing.T) {
	fake := &fakeChatModel{fragments: []string{"hi", "", " there", "!"}}
	svc := newTestService(t, fake)

	completion, err := svc.Stream(context.Background(), "", BuildSystemPrompt(""), []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
	})
	require.NoError(t, err)

	var (
		delivered []string
		mu        sync.Mutex
		hookOrder []string
		hookText  string
	)
	text, err := completion.Relay(func(fragment string) error {
		delivered = append(delivered, fragment)
		return nil
	}, Hooks{
		OnStart: func(context.Context) {
			mu.Lock()
			hookOrder = append(hookOrder, "start")
			mu.Unlock()
		},
		OnCompletion: func(_ context.Context, full string) {
			mu.Lock()
			hookOrder = append(hookOrder, "completion")
			hookText = full
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, []string{"hi", " there", "!"}, delivered)
	assert.Equal(t, "hi there!", text)
	assert.Equal(t, strings.Join(delivered, ""), hookText)
	assert.Equal(t, []string{"start", "completion"}, hookOrder)
}

func TestStreamSendsSystemPromptAndHistory(t *testing.T) {
	fake := &fakeChatModel{fragments: []string{"ok"}}
	svc := newTestService(t, fake)

	system := BuildSystemPrompt(`doc with {"braces": true}`)
	completion, err := svc.Stream(context.Background(), "gpt-4", system, []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi"},
		{Role: chat.RoleUser, Content: AnalysisTrigger},
	})
	require.NoError(t, err)
	_, err = completion.Relay(func(string) error { return nil }, Hooks{})
	require.NoError(t, err)

	input, llm := fake.input()
	require.Len(t, input, 4)
	assert.Equal(t, schema.System, input[0].Role)
	assert.Equal(t, system, input[0].Content)
	assert.Equal(t, schema.User, input[1].Role)
	assert.Equal(t, schema.Assistant, input[2].Role)
	assert.Equal(t, AnalysisTrigger, input[3].Content)
	assert.Equal(t, "gpt-4", llm)
}

func TestStreamDefaultsModelName(t *testing.T) {
	fake := &fakeChatModel{fragments: []string{"ok"}}
	svc := newTestService(t, fake)

	completion, err := svc.Stream(context.Background(), "", "sys", nil)
	require.NoError(t, err)
	_, err = completion.Relay(func(string) error { return nil }, Hooks{})
	require.NoError(t, err)

	_, llm := fake.input()
	assert.Equal(t, "gpt-3.5-turbo", llm)
}

func TestRelayFailsBeforeFirstFragment(t *testing.T) {
	upstream := errors.New("upstream unavailable")
	fake := &fakeChatModel{fragments: []string{"never"}, recvErr: upstream, failAfter: 0}
	svc := newTestService(t, fake)

	called := false
	completion, err := svc.Stream(context.Background(), "", "sys", nil)
	if err != nil {
		assert.ErrorIs(t, err, ErrNoOutput)
		return
	}
	_, err = completion.Relay(func(string) error { return nil }, Hooks{
		OnCompletion: func(context.Context, string) { called = true },
	})
	svc.Wait()

	assert.ErrorIs(t, err, ErrNoOutput)
	assert.False(t, called)
}

func TestStreamReturnsUpstreamError(t *testing.T) {
	fake := &fakeChatModel{streamErr: errors.New("bad credentials")}
	svc := newTestService(t, fake)

	completion, err := svc.Stream(context.Background(), "", "sys", nil)
	if err == nil {
		_, err = completion.Relay(func(string) error { return nil }, Hooks{})
	}
	assert.ErrorIs(t, err, ErrNoOutput)
}

func TestRelayKeepsPartialTextAfterMidStreamFailure(t *testing.T) {
	fake := &fakeChatModel{fragments: []string{"a", "b", "c"}, recvErr: errors.New("reset"), failAfter: 2}
	svc := newTestService(t, fake)

	completion, err := svc.Stream(context.Background(), "", "sys", nil)
	require.NoError(t, err)

	var hookText string
	var delivered strings.Builder
	text, err := completion.Relay(func(fragment string) error {
		delivered.WriteString(fragment)
		return nil
	}, Hooks{OnCompletion: func(_ context.Context, full string) { hookText = full }})
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "ab", text)
	assert.Equal(t, delivered.String(), hookText)
}

func TestRelayStopsWhenSinkFails(t *testing.T) {
	fake := &fakeChatModel{fragments: []string{"a", "b", "c"}}
	svc := newTestService(t, fake)

	completion, err := svc.Stream(context.Background(), "", "sys", nil)
	require.NoError(t, err)

	calls := 0
	var hookText string
	text, err := completion.Relay(func(string) error {
		calls++
		if calls == 2 {
			return errors.New("client gone")
		}
		return nil
	}, Hooks{OnCompletion: func(_ context.Context, full string) { hookText = full }})
	require.NoError(t, err)
	svc.Wait()

	assert.Equal(t, "a", text)
	assert.Equal(t, "a", hookText)
}

func TestHooksOutliveRequestContext(t *testing.T) {
	fake := &fakeChatModel{fragments: []string{"done"}}
	svc := newTestService(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	completion, err := svc.Stream(ctx, "", "sys", nil)
	require.NoError(t, err)

	var hookErr error
	_, err = completion.Relay(func(string) error { return nil }, Hooks{
		OnCompletion: func(hookCtx context.Context, _ string) {
			cancel()
			hookErr = hookCtx.Err()
		},
	})
	require.NoError(t, err)
	svc.Wait()

	assert.NoError(t, hookErr)
}
