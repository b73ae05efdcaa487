package budget

import (
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
)

func Test_Estimate(t *testing.T) {
	t.Parallel()
	cases := []struct {
		input string
		want  int
	}{
		{"", 0},
		{"a", 1},
		{"abcd", 1},
		{"abcde", 1},
		{"abcdefgh", 2},
		{strings.Repeat("x", 400), 100},
	}
	for _, tc := range cases {
		if got := Estimate(tc.input); got != tc.want {
			t.Errorf("Estimate(%q) = %d, want %d", tc.input, got, tc.want)
		}
	}
}

func Test_EstimateMessages(t *testing.T) {
	t.Parallel()
	msgs := []*schema.Message{
		schema.UserMessage("hello world"),
		schema.SystemMessage("hello world"),
	}
	// user: 4 + 1 + 2 = 7; system: 4 + 1 + 2 = 7
	if got := EstimateMessages(Heuristic{}, msgs); got != 14 {
		t.Errorf("EstimateMessages = %d, want 14", got)
	}
}

func Test_TrimContext_KeepsRankOrderWithinBudget(t *testing.T) {
	t.Parallel()
	chunks := []string{
		strings.Repeat("a", 40), // 10 tokens
		strings.Repeat("b", 40), // 10 tokens
		strings.Repeat("c", 40), // 10 tokens
	}
	got := TrimContext(Heuristic{}, chunks, func(s string) string { return s }, 25)
	if len(got) != 2 || got[0][0] != 'a' || got[1][0] != 'b' {
		t.Errorf("want first two chunks, got %d", len(got))
	}
}

func Test_TrimContext_AlwaysKeepsFirst(t *testing.T) {
	t.Parallel()
	chunks := []string{strings.Repeat("x", 400), "small"}
	got := TrimContext(Heuristic{}, chunks, func(s string) string { return s }, 10)
	if len(got) != 1 {
		t.Errorf("want the oversized top chunk kept alone, got %d", len(got))
	}
}

func Test_TrimContext_DisabledBudget(t *testing.T) {
	t.Parallel()
	chunks := []string{strings.Repeat("x", 400), strings.Repeat("y", 400)}
	if got := TrimContext(Heuristic{}, chunks, func(s string) string { return s }, 0); len(got) != 2 {
		t.Errorf("want no trimming, got %d", len(got))
	}
}

type constCounter int

func (c constCounter) Count(string) int { return int(c) }

func Test_TrimContext_UsesCounter(t *testing.T) {
	t.Parallel()
	items := []int{1, 2, 3, 4}
	got := TrimContext(constCounter(3), items, func(int) string { return "" }, 9)
	if len(got) != 3 {
		t.Errorf("want 3 items at 3 tokens each under 9, got %d", len(got))
	}
}
