package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/embeddings"

	"github.com/IvaTomevska/loob-beta/internal/model/chat"
	"github.com/IvaTomevska/loob-beta/internal/service/ai"
	"github.com/IvaTomevska/loob-beta/internal/service/broadcast"
	chatservice "github.com/IvaTomevska/loob-beta/internal/service/chat"
	"github.com/IvaTomevska/loob-beta/internal/service/retrieval"
	"github.com/IvaTomevska/loob-beta/internal/store"
)

type scriptedModel struct {
	mu        sync.Mutex
	fragments []string
	err       error
	system    string
}

func (m *scriptedModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.capture(input)
	return schema.AssistantMessage(strings.Join(m.fragments, ""), nil), nil
}

func (m *scriptedModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.capture(input)
	if m.err != nil {
		return nil, m.err
	}
	msgs := make([]*schema.Message, len(m.fragments))
	for i, f := range m.fragments {
		msgs[i] = schema.AssistantMessage(f, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func (m *scriptedModel) capture(input []*schema.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(input) > 0 && input[0].Role == schema.System {
		m.system = input[0].Content
	}
}

func (m *scriptedModel) systemPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.system
}

type fixture struct {
	pipeline *Pipeline
	turns    *chatservice.Service
	hub      *broadcast.Hub
	model    *scriptedModel
}

func newFixture(t *testing.T, fragments []string, retriever Retriever) *fixture {
	t.Helper()
	ctx := context.Background()

	m := &scriptedModel{fragments: fragments}
	streamer, err := ai.NewService(ctx, m, "gpt-3.5-turbo", nil, nil)
	require.NoError(t, err)

	hub := broadcast.NewHub()
	turns := chatservice.NewService(store.NewMemoryStore(), nil, nil)

	p, err := New(Deps{
		Retriever:   retriever,
		Streamer:    streamer,
		Turns:       turns,
		Broadcaster: broadcast.NewDispatcher([]broadcast.Publisher{hub}, 1, nil, nil),
	})
	require.NoError(t, err)
	return &fixture{pipeline: p, turns: turns, hub: hub, model: m}
}

func collect(into *strings.Builder) func(string) error {
	return func(fragment string) error {
		into.WriteString(fragment)
		return nil
	}
}

func TestHandleRecordsUserAndAssistantTurns(t *testing.T) {
	f := newFixture(t, []string{"hi", " there"}, nil)

	var out strings.Builder
	err := f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
		SessionID: "s1",
	}, collect(&out))
	require.NoError(t, err)
	f.pipeline.Wait()

	assert.Equal(t, "hi there", out.String())

	turns, err := f.turns.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.RoleUser, turns[0].Role)
	assert.Equal(t, "hello", turns[0].Content)
	assert.False(t, turns[0].HasAnalysis())
	assert.Equal(t, chat.RoleAssistant, turns[1].Role)
	assert.Equal(t, "hi there", turns[1].Content)
	assert.False(t, turns[1].HasAnalysis())
}

func TestHandleStoredCompletionMatchesStreamedText(t *testing.T) {
	fragments := []string{"Here", " is", " a", " longer", " reply", " {with braces}"}
	f := newFixture(t, fragments, nil)

	var out strings.Builder
	require.NoError(t, f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "tell me"}},
		SessionID: "s1",
	}, collect(&out)))
	f.pipeline.Wait()

	turns, err := f.turns.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, out.String(), turns[1].Content)
}

func TestHandleBroadcastsExtractedAnalysis(t *testing.T) {
	f := newFixture(t, []string{`Sure! {"mood":`, ` "neutral", "keywords": ["a"]}`, " Shall I share it?"}, nil)
	events, cancel := f.hub.Subscribe()
	defer cancel()

	var out strings.Builder
	require.NoError(t, f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: ai.AnalysisTrigger}},
		SessionID: "s1",
	}, collect(&out)))
	f.pipeline.Wait()

	select {
	case ev := <-events:
		assert.Equal(t, "my-channel", ev.Channel)
		assert.Equal(t, "my-event", ev.Event)
		var payload chat.AnalysisEvent
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, chat.MoodNeutral, payload.Analysis.Mood)
		assert.Equal(t, []string{"a"}, payload.Analysis.Keywords)
	case <-time.After(time.Second):
		t.Fatal("analysis was not broadcast")
	}

	turns, err := f.turns.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, chat.MoodNeutral, turns[1].Mood)
	assert.Equal(t, []string{"a"}, turns[1].Keywords)
}

func TestHandleSkipsBroadcastWithoutAnalysis(t *testing.T) {
	f := newFixture(t, []string{"no analysis here"}, nil)
	events, cancel := f.hub.Subscribe()
	defer cancel()

	require.NoError(t, f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
		SessionID: "s1",
	}, collect(&strings.Builder{})))
	f.pipeline.Wait()

	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	default:
	}
}

func TestHandleAnalysesIncomingAssistantTurns(t *testing.T) {
	f := newFixture(t, []string{"ok"}, nil)

	require.NoError(t, f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages: []chat.Message{
			{Role: chat.RoleUser, Content: ai.AnalysisTrigger},
			{Role: chat.RoleAssistant, Content: `{"mood":"positive","keywords":["music"]}`},
			{Role: chat.RoleUser, Content: "yes, share it"},
		},
		SessionID: "s1",
	}, collect(&strings.Builder{})))
	f.pipeline.Wait()

	turns, err := f.turns.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.False(t, turns[0].HasAnalysis())
	assert.Equal(t, chat.MoodPositive, turns[1].Mood)
	assert.Equal(t, []string{"music"}, turns[1].Keywords)
	assert.False(t, turns[2].HasAnalysis())
}

func TestHandleResentHistoryIsNotDuplicated(t *testing.T) {
	f := newFixture(t, []string{"hi there"}, nil)
	ctx := context.Background()

	req := chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
		SessionID: "s1",
	}
	require.NoError(t, f.pipeline.Handle(ctx, req, collect(&strings.Builder{})))
	f.pipeline.Wait()

	req.Messages = append(req.Messages,
		chat.Message{Role: chat.RoleAssistant, Content: "hi there"},
		chat.Message{Role: chat.RoleUser, Content: "how are you"},
	)
	require.NoError(t, f.pipeline.Handle(ctx, req, collect(&strings.Builder{})))
	f.pipeline.Wait()

	turns, err := f.turns.Transcript(ctx, "s1")
	require.NoError(t, err)
	contents := make([]string, len(turns))
	for i, turn := range turns {
		contents[i] = turn.Content
	}
	assert.Equal(t, []string{"hello", "hi there", "how are you"}, contents)
}

func TestHandleInjectsRetrievedContext(t *testing.T) {
	idx, err := retrieval.NewChromemIndex("")
	require.NoError(t, err)
	require.NoError(t, idx.Upsert(context.Background(), "chat_cosine", "cosine", []retrieval.Document{
		{Content: "Sound bath every Sunday at 19:00", Embedding: []float32{1, 0}},
	}))

	embedder, err := embeddings.NewEmbedder(embeddings.EmbedderClientFunc(
		func(_ context.Context, texts []string) ([][]float32, error) {
			out := make([][]float32, len(texts))
			for i := range texts {
				out[i] = []float32{1, 0}
			}
			return out, nil
		}))
	require.NoError(t, err)

	f := newFixture(t, []string{"ok"}, retrieval.NewRetriever(embedder, idx, 5, nil, nil))
	require.NoError(t, f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:         []chat.Message{{Role: chat.RoleUser, Content: "any events?"}},
		UseRAG:           true,
		SimilarityMetric: "cosine",
		SessionID:        "s1",
	}, collect(&strings.Builder{})))
	f.pipeline.Wait()

	assert.True(t, strings.HasSuffix(f.model.systemPrompt(), "Sound bath every Sunday at 19:00"))
}

func TestHandleRAGWithoutRetriever(t *testing.T) {
	f := newFixture(t, []string{"ok"}, nil)
	err := f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
		UseRAG:    true,
		SessionID: "s1",
	}, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, ErrRetrievalUnavailable)
}

func TestHandleUpstreamFailureWritesNothing(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.model.err = errors.New("model offline")

	written := false
	err := f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages:  []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
		SessionID: "s1",
	}, func(string) error {
		written = true
		return nil
	})
	f.pipeline.Wait()

	assert.ErrorIs(t, err, ai.ErrNoOutput)
	assert.False(t, written)

	turns, err := f.turns.Transcript(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, turns, 1, "only the incoming user turn is stored")
}

func TestHandleValidatesRequest(t *testing.T) {
	f := newFixture(t, []string{"ok"}, nil)

	err := f.pipeline.Handle(context.Background(), chat.ChatRequest{SessionID: "s1"}, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, ErrEmptyConversation)

	err = f.pipeline.Handle(context.Background(), chat.ChatRequest{
		Messages: []chat.Message{{Role: chat.RoleUser, Content: "hello"}},
	}, collect(&strings.Builder{}))
	assert.ErrorIs(t, err, chatservice.ErrSessionRequired)
}

func TestHandleRejectsUnknownRoles(t *testing.T) {
	for _, role := range []chat.Role{"", "tool", "User"} {
		t.Run(string(role), func(t *testing.T) {
			f := newFixture(t, []string{"ok"}, nil)
			var out strings.Builder

			err := f.pipeline.Handle(context.Background(), chat.ChatRequest{
				SessionID: "s1",
				Messages: []chat.Message{
					{Role: chat.RoleUser, Content: "hello"},
					{Role: role, Content: "odd"},
				},
			}, collect(&out))
			require.ErrorIs(t, err, ErrInvalidRole)
			assert.Empty(t, out.String())

			f.pipeline.Wait()
			turns, err := f.turns.Transcript(context.Background(), "s1")
			require.NoError(t, err)
			assert.Empty(t, turns, "no turn is stored when any role is invalid")
		})
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestShutdownClosesHandles(t *testing.T) {
	f := newFixture(t, []string{"ok"}, nil)
	var closed []string
	f.pipeline.deps.Closers = []io.Closer{
		closerFunc(func() error { closed = append(closed, "store"); return nil }),
		closerFunc(func() error { closed = append(closed, "index"); return nil }),
	}

	require.NoError(t, f.pipeline.Shutdown(context.Background()))
	assert.Equal(t, []string{"store", "index"}, closed)
}

type boundedCloser struct {
	closeCalled bool
	shutdownErr error
}

func (b *boundedCloser) Close() error {
	b.closeCalled = true
	return nil
}

func (b *boundedCloser) Shutdown(ctx context.Context) error {
	b.shutdownErr = ctx.Err()
	return nil
}

func TestShutdownPassesDeadlineToBoundedHandles(t *testing.T) {
	f := newFixture(t, []string{"ok"}, nil)
	bounded := &boundedCloser{}
	f.pipeline.deps.Closers = []io.Closer{bounded}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = f.pipeline.Shutdown(ctx)
	assert.False(t, bounded.closeCalled)
	assert.ErrorIs(t, bounded.shutdownErr, context.Canceled)
}
