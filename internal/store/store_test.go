package store

import (
	"context"
	"errors"
	"testing"

	"github.com/54b3r/agentrag-go/internal/apperr"
)

// openTestStore opens an in-memory SQLiteStore for use in tests.
func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ptr[T any](v T) *T { return &v }

func Test_Store_CreateAppliesDefaults(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	a, err := s.Create(context.Background(), AgentInput{Name: " helper ", SystemInstruction: "be brief"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if a.ID == "" {
		t.Error("expected generated id")
	}
	if a.Name != "helper" {
		t.Errorf("name: want trimmed %q, got %q", "helper", a.Name)
	}
	if a.Temperature != DefaultTemperature {
		t.Errorf("temperature: want %v, got %v", DefaultTemperature, a.Temperature)
	}
	if a.IndexName != nil || a.MaxTokens != nil {
		t.Errorf("optional fields should be nil, got index=%v max=%v", a.IndexName, a.MaxTokens)
	}
	if a.HasIndex() {
		t.Error("HasIndex should be false without a binding")
	}
}

func Test_Store_GetRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	created, err := s.Create(ctx, AgentInput{
		Name:              "docs",
		SystemInstruction: "answer from docs",
		IndexName:         ptr("handbook"),
		Temperature:       ptr(0.1),
		MaxTokens:         ptr(512),
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := s.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.IndexName == nil || *got.IndexName != "handbook" {
		t.Errorf("index: got %v", got.IndexName)
	}
	if got.MaxTokens == nil || *got.MaxTokens != 512 {
		t.Errorf("max_tokens: got %v", got.MaxTokens)
	}
	if got.Temperature != 0.1 {
		t.Errorf("temperature: got %v", got.Temperature)
	}
	if !got.CreatedAt.Equal(created.CreatedAt) {
		t.Errorf("created_at: want %v, got %v", created.CreatedAt, got.CreatedAt)
	}
	if !got.HasIndex() {
		t.Error("HasIndex should be true")
	}
}

func Test_Store_Validation(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)

	tests := []struct {
		name string
		in   AgentInput
	}{
		{"blank name", AgentInput{Name: "  ", SystemInstruction: "x"}},
		{"blank instruction", AgentInput{Name: "a", SystemInstruction: " "}},
		{"temperature too high", AgentInput{Name: "a", SystemInstruction: "x", Temperature: ptr(2.5)}},
		{"temperature negative", AgentInput{Name: "a", SystemInstruction: "x", Temperature: ptr(-0.1)}},
		{"zero max tokens", AgentInput{Name: "a", SystemInstruction: "x", MaxTokens: ptr(0)}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Create(context.Background(), tc.in)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if apperr.KindOf(err) != apperr.KindValidation {
				t.Errorf("kind: want validation, got %s", apperr.KindOf(err))
			}
		})
	}
}

func Test_Store_NotFound(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	if !errors.Is(err, ErrAgentNotFound) {
		t.Fatalf("get: want ErrAgentNotFound, got %v", err)
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		t.Errorf("kind: want not_found, got %s", apperr.KindOf(err))
	}
	if msg := apperr.Message(err); msg != "Agent missing not found" {
		t.Errorf("message: got %q", msg)
	}
	if _, err := s.Update(ctx, "missing", AgentPatch{Name: ptr("x")}); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("update: want ErrAgentNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "missing"); !errors.Is(err, ErrAgentNotFound) {
		t.Errorf("delete: want ErrAgentNotFound, got %v", err)
	}
}

func Test_Store_UpdatePartial(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	a, err := s.Create(ctx, AgentInput{Name: "a", SystemInstruction: "x", IndexName: ptr("idx")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(ctx, a.ID, AgentPatch{Temperature: ptr(1.5)})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Temperature != 1.5 || updated.Name != "a" || !updated.HasIndex() {
		t.Errorf("partial update touched other fields: %+v", updated)
	}

	cleared, err := s.Update(ctx, a.ID, AgentPatch{IndexName: ptr("")})
	if err != nil {
		t.Fatalf("clear index: %v", err)
	}
	if cleared.HasIndex() {
		t.Error("empty index_name should remove the binding")
	}

	if _, err := s.Update(ctx, a.ID, AgentPatch{Temperature: ptr(3.0)}); apperr.KindOf(err) != apperr.KindValidation {
		t.Errorf("invalid update: want validation error, got %v", err)
	}

	got, err := s.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Temperature != 1.5 || got.HasIndex() {
		t.Errorf("persisted state: %+v", got)
	}
}

func Test_Store_ListAndDelete(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if empty == nil || len(empty) != 0 {
		t.Fatalf("want empty non-nil slice, got %v", empty)
	}

	first, _ := s.Create(ctx, AgentInput{Name: "first", SystemInstruction: "x"})
	second, _ := s.Create(ctx, AgentInput{Name: "second", SystemInstruction: "y"})

	all, err := s.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("want 2 agents, got %d", len(all))
	}

	if err := s.Delete(ctx, first.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rest, _ := s.List(ctx)
	if len(rest) != 1 || rest[0].ID != second.ID {
		t.Errorf("after delete: %+v", rest)
	}
}

func Test_Store_Ping(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("ping: %v", err)
	}
}
