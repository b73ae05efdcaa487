// Package agent executes user queries against configured agents. An agent
// either answers directly from its system instruction or first retrieves
// context from its bound vector index. Both paths are available as a
// one-shot call and as an ordered event stream.
package agent

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/agentrag-go/internal/apperr"
	"github.com/54b3r/agentrag-go/internal/budget"
	"github.com/54b3r/agentrag-go/internal/logging"
	"github.com/54b3r/agentrag-go/internal/provider"
	"github.com/54b3r/agentrag-go/internal/rag"
	"github.com/54b3r/agentrag-go/internal/store"
)

// RetrievalTopK is the number of chunks retrieved per RAG query.
const RetrievalTopK = 3

var (
	ragTemplate = prompt.FromMessages(schema.FString,
		schema.SystemMessage("{instruction}\n\nContext: {context}\n"),
		schema.UserMessage("{input}"),
	)
	directTemplate = prompt.FromMessages(schema.FString,
		schema.SystemMessage("{instruction}"),
		schema.UserMessage("{input}"),
	)
)

// ModelSource hands out a chat model carrying an agent's sampling settings.
// *provider.Factory satisfies it.
type ModelSource interface {
	ForAgent(t provider.Tuning) model.BaseChatModel
}

// Config holds the dependencies of an Executor.
type Config struct {
	// Agents resolves agent configurations.
	Agents store.AgentStore
	// Models builds the per-agent chat model.
	Models ModelSource
	// Retriever serves RAG-bound agents. May be nil if no agent has an index.
	Retriever rag.Retriever
	// Counter measures retrieved context. Defaults to budget.Heuristic.
	Counter budget.Counter
	// MaxContextTokens caps the retrieved context placed in the prompt.
	// Defaults to budget.DefaultMaxContextTokens.
	MaxContextTokens int
}

// Executor runs queries against agents.
type Executor struct {
	agents           store.AgentStore
	models           ModelSource
	retriever        rag.Retriever
	counter          budget.Counter
	maxContextTokens int
	now              func() time.Time
}

// ContextDocument is one retrieved chunk returned alongside an answer.
type ContextDocument struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata"`
}

// Result is the outcome of a one-shot execution.
type Result struct {
	AgentID          string            `json:"agent_id"`
	Query            string            `json:"query"`
	Answer           string            `json:"answer"`
	ContextDocuments []ContextDocument `json:"context_documents,omitempty"`
	ExecutionTimeMS  float64           `json:"execution_time_ms"`
}

// New constructs an Executor from cfg.
func New(cfg Config) (*Executor, error) {
	if cfg.Agents == nil {
		return nil, errors.New("agent: Agents must not be nil")
	}
	if cfg.Models == nil {
		return nil, errors.New("agent: Models must not be nil")
	}
	counter := cfg.Counter
	if counter == nil {
		counter = budget.Heuristic{}
	}
	maxCtx := cfg.MaxContextTokens
	if maxCtx <= 0 {
		maxCtx = budget.DefaultMaxContextTokens
	}
	return &Executor{
		agents:           cfg.Agents,
		models:           cfg.Models,
		retriever:        cfg.Retriever,
		counter:          counter,
		maxContextTokens: maxCtx,
		now:              time.Now,
	}, nil
}

type planKind int

const (
	planDirect planKind = iota
	planRetrieval
)

// plan is the execution strategy chosen once per query.
type plan struct {
	kind  planKind
	agent store.Agent
	docs  []rag.Document
}

// Execute answers query with agent agentID and returns the full answer.
func (e *Executor) Execute(ctx context.Context, agentID, query string) (*Result, error) {
	const op = "agent.execute"
	start := e.now()
	log := logging.FromContext(ctx).With(slog.String("agent_id", agentID))

	ag, err := e.agents.Get(ctx, agentID)
	if err != nil {
		return nil, err
	}
	p, err := e.plan(ctx, ag, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed")
	}
	msgs, err := p.messages(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed")
	}
	log.Debug("prompt assembled", slog.Int("prompt_tokens", budget.EstimateMessages(e.counter, msgs)))

	out, err := e.model(ag).Generate(ctx, msgs)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed")
	}

	res := &Result{
		AgentID:         agentID,
		Query:           query,
		Answer:          out.Content,
		ExecutionTimeMS: elapsedMS(start, e.now()),
	}
	if p.kind == planRetrieval {
		res.ContextDocuments = contextDocuments(p.docs)
	}
	log.Info("agent executed",
		slog.Bool("has_rag", p.kind == planRetrieval),
		slog.Int("context_documents", len(p.docs)),
		slog.Float64("execution_time_ms", res.ExecutionTimeMS),
	)
	return res, nil
}

// ExecuteStream answers query with agent agentID as an ordered sequence of
// events: metadata, then context when the agent has an index, then content
// fragments, then done. Any failure ends the sequence with a single error
// event. Breaking out of the loop closes the model stream.
func (e *Executor) ExecuteStream(ctx context.Context, agentID, query string) iter.Seq[Event] {
	const op = "agent.execute_stream"
	return func(yield func(Event) bool) {
		start := e.now()
		log := logging.FromContext(ctx).With(slog.String("agent_id", agentID))
		fail := func(err error) {
			log.Error("agent stream failed", slog.String("error", err.Error()))
			yield(ErrorEvent(agentID, err))
		}

		ag, err := e.agents.Get(ctx, agentID)
		if err != nil {
			fail(err)
			return
		}
		if !yield(MetadataEvent(ag.ID, ag.Name, ag.HasIndex())) {
			return
		}

		p, err := e.plan(ctx, ag, query)
		if err != nil {
			fail(apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed"))
			return
		}
		if p.kind == planRetrieval {
			if !yield(ContextEvent(contextDocuments(p.docs))) {
				return
			}
		}

		msgs, err := p.messages(ctx, query)
		if err != nil {
			fail(apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed"))
			return
		}
		log.Debug("prompt assembled", slog.Int("prompt_tokens", budget.EstimateMessages(e.counter, msgs)))
		sr, err := e.model(ag).Stream(ctx, msgs)
		if err != nil {
			fail(apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed"))
			return
		}
		defer sr.Close()

		for {
			msg, err := sr.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				fail(apperr.Wrap(apperr.KindExecution, op, err, "agent execution failed"))
				return
			}
			if msg == nil || msg.Content == "" {
				continue
			}
			if !yield(ContentEvent(msg.Content)) {
				return
			}
		}

		elapsed := elapsedMS(start, e.now())
		log.Info("agent stream finished", slog.Bool("has_rag", p.kind == planRetrieval), slog.Float64("execution_time_ms", elapsed))
		yield(DoneEvent(elapsed))
	}
}

// plan selects the strategy for ag and, for retrieval, fetches and trims
// the context chunks.
func (e *Executor) plan(ctx context.Context, ag store.Agent, query string) (plan, error) {
	if !ag.HasIndex() {
		return plan{kind: planDirect, agent: ag}, nil
	}
	if e.retriever == nil {
		return plan{}, apperr.New(apperr.KindConfiguration, "agent.plan",
			"agent %s is bound to index %s but no retriever is configured", ag.ID, *ag.IndexName)
	}

	docs, err := e.retriever.Retrieve(ctx, *ag.IndexName, query, RetrievalTopK)
	if err != nil {
		return plan{}, err
	}
	kept := budget.TrimContext(e.counter, docs, func(d rag.Document) string { return d.Content }, e.maxContextTokens)
	if dropped := len(docs) - len(kept); dropped > 0 {
		logging.FromContext(ctx).Warn("budget: dropped context chunks to fit context window",
			slog.Int("dropped", dropped),
			slog.Int("retained", len(kept)),
			slog.Int("max_tokens", e.maxContextTokens),
		)
	}
	return plan{kind: planRetrieval, agent: ag, docs: kept}, nil
}

func (p plan) messages(ctx context.Context, query string) ([]*schema.Message, error) {
	vars := map[string]any{
		"instruction": p.agent.SystemInstruction,
		"input":       query,
	}
	if p.kind == planDirect {
		return directTemplate.Format(ctx, vars)
	}
	texts := make([]string, 0, len(p.docs))
	for _, d := range p.docs {
		texts = append(texts, d.Content)
	}
	vars["context"] = strings.Join(texts, "\n\n")
	return ragTemplate.Format(ctx, vars)
}

func (e *Executor) model(ag store.Agent) model.BaseChatModel {
	return e.models.ForAgent(provider.Tuning{
		Temperature: float32(ag.Temperature),
		MaxTokens:   ag.MaxTokens,
	})
}

func contextDocuments(docs []rag.Document) []ContextDocument {
	out := make([]ContextDocument, 0, len(docs))
	for _, d := range docs {
		meta := make(map[string]string, len(d.Metadata)+1)
		maps.Copy(meta, d.Metadata)
		if _, ok := meta["source"]; !ok && d.Source != "" {
			meta["source"] = d.Source
		}
		out = append(out, ContextDocument{Content: d.Content, Metadata: meta})
	}
	return out
}

func elapsedMS(start, end time.Time) float64 {
	return float64(end.Sub(start).Microseconds()) / 1000
}
