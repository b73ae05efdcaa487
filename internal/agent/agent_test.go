package agent

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/provider"
	"github.com/54b3r/agentrag-go/internal/rag"
	"github.com/54b3r/agentrag-go/internal/store"
)

// fakeModel answers with fixed chunks and records the prompt it received.
type fakeModel struct {
	chunks    []string
	genErr    error
	streamErr error // returned after all chunks
	input     []*schema.Message
}

func (m *fakeModel) Generate(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.input = in
	if m.genErr != nil {
		return nil, m.genErr
	}
	return schema.AssistantMessage(strings.Join(m.chunks, ""), nil), nil
}

func (m *fakeModel) Stream(_ context.Context, in []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.input = in
	if m.genErr != nil {
		return nil, m.genErr
	}
	sr, sw := schema.Pipe[*schema.Message](len(m.chunks) + 1)
	for _, c := range m.chunks {
		sw.Send(schema.AssistantMessage(c, nil), nil)
	}
	if m.streamErr != nil {
		sw.Send(nil, m.streamErr)
	}
	sw.Close()
	return sr, nil
}

// fakeModels records the tuning of the last ForAgent call.
type fakeModels struct {
	m      *fakeModel
	tuning provider.Tuning
}

func (f *fakeModels) ForAgent(t provider.Tuning) model.BaseChatModel {
	f.tuning = t
	return f.m
}

type fakeRetriever struct {
	docs  []rag.Document
	err   error
	index string
	topK  int
}

func (r *fakeRetriever) Retrieve(_ context.Context, index, _ string, topK int) ([]rag.Document, error) {
	r.index, r.topK = index, topK
	return r.docs, r.err
}

type fixture struct {
	exec      *Executor
	agents    *store.SQLiteStore
	models    *fakeModels
	retriever *fakeRetriever
}

func newFixture(t *testing.T, m *fakeModel, r *fakeRetriever) fixture {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	models := &fakeModels{m: m}
	exec, err := New(Config{Agents: s, Models: models, Retriever: r})
	require.NoError(t, err)
	return fixture{exec: exec, agents: s, models: models, retriever: r}
}

func (f fixture) createAgent(t *testing.T, index string) store.Agent {
	t.Helper()
	in := store.AgentInput{Name: "helper", SystemInstruction: "Answer briefly."}
	if index != "" {
		in.IndexName = &index
	}
	a, err := f.agents.Create(context.Background(), in)
	require.NoError(t, err)
	return a
}

func collect(seq iter.Seq[Event]) []Event {
	var out []Event
	for ev := range seq {
		out = append(out, ev)
	}
	return out
}

func types(events []Event) []EventType {
	out := make([]EventType, len(events))
	for i, e := range events {
		out[i] = e.Type
	}
	return out
}

var guideDocs = []rag.Document{
	{Content: "Refunds take five days.", Source: "/data/guide.pdf", Metadata: map[string]string{"page": "2"}},
	{Content: "Contact support by email.", Source: "/data/guide.pdf", Metadata: map[string]string{"page": "3", "source": "guide.pdf"}},
}

func TestNew_RequiresDependencies(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestExecute_Direct(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{chunks: []string{"Hello", " there"}}, &fakeRetriever{})
	a := f.createAgent(t, "")

	res, err := f.exec.Execute(context.Background(), a.ID, "hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello there", res.Answer)
	assert.Equal(t, a.ID, res.AgentID)
	assert.Equal(t, "hi", res.Query)
	assert.Nil(t, res.ContextDocuments)
	assert.GreaterOrEqual(t, res.ExecutionTimeMS, 0.0)

	require.Len(t, f.models.m.input, 2)
	assert.Equal(t, "Answer briefly.", f.models.m.input[0].Content)
	assert.Equal(t, "hi", f.models.m.input[1].Content)
	assert.InDelta(t, store.DefaultTemperature, f.models.tuning.Temperature, 1e-6)
	assert.Empty(t, f.retriever.index, "direct agents never retrieve")

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.NotContains(t, string(b), "context_documents")
}

func TestExecute_Retrieval(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{docs: guideDocs}
	f := newFixture(t, &fakeModel{chunks: []string{"Five days."}}, r)
	a := f.createAgent(t, "docs")

	res, err := f.exec.Execute(context.Background(), a.ID, "how long do refunds take?")
	require.NoError(t, err)
	assert.Equal(t, "docs", r.index)
	assert.Equal(t, RetrievalTopK, r.topK)

	require.Len(t, res.ContextDocuments, 2)
	assert.Equal(t, "/data/guide.pdf", res.ContextDocuments[0].Metadata["source"])
	assert.Equal(t, "guide.pdf", res.ContextDocuments[1].Metadata["source"])

	system := f.models.m.input[0].Content
	assert.Equal(t, "Answer briefly.\n\nContext: Refunds take five days.\n\nContact support by email.\n", system)
}

func TestExecute_AgentNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{}, &fakeRetriever{})

	_, err := f.exec.Execute(context.Background(), "missing", "hi")
	assert.ErrorIs(t, err, store.ErrAgentNotFound)
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestExecute_IndexNotFoundIsExecutionError(t *testing.T) {
	t.Parallel()
	r := &fakeRetriever{err: rag.IndexNotFound("rag.retrieve", "docs")}
	f := newFixture(t, &fakeModel{}, r)
	a := f.createAgent(t, "docs")

	_, err := f.exec.Execute(context.Background(), a.ID, "hi")
	assert.Equal(t, apperr.KindExecution, apperr.KindOf(err))
	assert.ErrorIs(t, err, rag.ErrIndexNotFound)
}

func TestExecute_ModelFailure(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{genErr: errors.New("rate limited")}, &fakeRetriever{})
	a := f.createAgent(t, "")

	_, err := f.exec.Execute(context.Background(), a.ID, "hi")
	assert.Equal(t, apperr.KindExecution, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "rate limited")
}

func TestExecuteStream_Direct(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{chunks: []string{"Hel", "", "lo"}}, &fakeRetriever{})
	a := f.createAgent(t, "")

	events := collect(f.exec.ExecuteStream(context.Background(), a.ID, "hi"))
	assert.Equal(t, []EventType{EventMetadata, EventContent, EventContent, EventDone}, types(events))
	assert.Equal(t, MetadataEvent(a.ID, "helper", false), events[0])
	assert.Equal(t, "Hel", events[1].Content)
	assert.Equal(t, "lo", events[2].Content)
}

func TestExecuteStream_RetrievalEmitsContextOnceBeforeContent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{chunks: []string{"Five", " days."}}, &fakeRetriever{docs: guideDocs})
	a := f.createAgent(t, "docs")

	events := collect(f.exec.ExecuteStream(context.Background(), a.ID, "refunds?"))
	assert.Equal(t, []EventType{EventMetadata, EventContext, EventContent, EventContent, EventDone}, types(events))
	assert.True(t, events[0].HasRAG)
	assert.Len(t, events[1].Documents, 2)
}

func TestExecuteStream_RetrievalWithNoDocuments(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{chunks: []string{"I don't know."}}, &fakeRetriever{})
	a := f.createAgent(t, "docs")

	events := collect(f.exec.ExecuteStream(context.Background(), a.ID, "refunds?"))
	assert.Equal(t, []EventType{EventMetadata, EventContext, EventContent, EventDone}, types(events))

	b, err := json.Marshal(events[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"context","documents":[]}`, string(b))
}

func TestExecuteStream_Failures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		model     *fakeModel
		retriever *fakeRetriever
		index     string
		want      []EventType
	}{
		{
			name:      "retrieval fails",
			model:     &fakeModel{},
			retriever: &fakeRetriever{err: errors.New("vector store down")},
			index:     "docs",
			want:      []EventType{EventMetadata, EventError},
		},
		{
			name:      "stream cannot start",
			model:     &fakeModel{genErr: errors.New("unauthorized")},
			retriever: &fakeRetriever{},
			want:      []EventType{EventMetadata, EventError},
		},
		{
			name:      "stream breaks midway",
			model:     &fakeModel{chunks: []string{"partial"}, streamErr: errors.New("connection reset")},
			retriever: &fakeRetriever{docs: guideDocs},
			index:     "docs",
			want:      []EventType{EventMetadata, EventContext, EventContent, EventError},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, tt.model, tt.retriever)
			a := f.createAgent(t, tt.index)

			events := collect(f.exec.ExecuteStream(context.Background(), a.ID, "hi"))
			assert.Equal(t, tt.want, types(events))
			last := events[len(events)-1]
			assert.Equal(t, a.ID, last.AgentID)
			assert.NotEmpty(t, last.Err)
		})
	}
}

func TestExecuteStream_AgentNotFound(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{}, &fakeRetriever{})

	events := collect(f.exec.ExecuteStream(context.Background(), "missing", "hi"))
	require.Len(t, events, 1)
	b, err := json.Marshal(events[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"error","error":"Agent missing not found","agent_id":"missing"}`, string(b))
}

func TestExecuteStream_EarlyStop(t *testing.T) {
	t.Parallel()
	f := newFixture(t, &fakeModel{chunks: []string{"a", "b", "c"}}, &fakeRetriever{})
	a := f.createAgent(t, "")

	var got []EventType
	for ev := range f.exec.ExecuteStream(context.Background(), a.ID, "hi") {
		got = append(got, ev.Type)
		if ev.Type == EventContent {
			break
		}
	}
	assert.Equal(t, []EventType{EventMetadata, EventContent}, got)
}

func TestEvent_MarshalJSON(t *testing.T) {
	t.Parallel()
	tests := []struct {
		ev   Event
		want string
	}{
		{MetadataEvent("a1", "helper", true), `{"type":"metadata","agent_id":"a1","agent_name":"helper","has_rag":true}`},
		{ContentEvent("hi"), `{"type":"content","content":"hi"}`},
		{DoneEvent(12.5), `{"type":"done","execution_time_ms":12.5}`},
		{
			ContextEvent([]ContextDocument{{Content: "x", Metadata: map[string]string{"page": "1"}}}),
			`{"type":"context","documents":[{"content":"x","metadata":{"page":"1"}}]}`,
		},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.ev)
		require.NoError(t, err)
		assert.JSONEq(t, tt.want, string(b))
	}
	assert.True(t, DoneEvent(1).Terminal())
	assert.False(t, ContentEvent("x").Terminal())
}
