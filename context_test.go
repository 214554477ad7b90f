package papyrus

import (
	"strings"
	"testing"
)

func TestAnswerPromptContainsAllSections(t *testing.T) {
	p := AnswerPrompt("CONTEXT-TEXT", "QUESTION-TEXT", "HISTORY-TEXT")

	for _, want := range []string{"CONTEXT-TEXT", "QUESTION-TEXT", "HISTORY-TEXT", Refusal} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
}

func TestSummaryContext(t *testing.T) {
	got := SummaryContext("the summary body")
	if got != "[Document Summary]:\nthe summary body" {
		t.Errorf("unexpected summary context: %q", got)
	}
}

func TestChunkContext(t *testing.T) {
	children := []ScoredChild{
		{ChildChunk: ChildChunk{ID: "c1", ParentChunkID: "p1", Content: "first child"}},
		{ChildChunk: ChildChunk{ID: "c2", ParentChunkID: "p2", Content: "second child"}},
	}
	parents := []ParentChunk{
		{ID: "p1", Content: "first parent"},
		{ID: "p2", Content: "second parent"},
	}

	got := ChunkContext(children, parents)

	for _, want := range []string{
		"[Chunk 1]: first child",
		"[Chunk 2]: second child",
		"--- BROADER CONTEXT ---",
		"[Parent 1]: first parent",
		"[Parent 2]: second parent",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("chunk context missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "[Chunk 2]") > strings.Index(got, "--- BROADER CONTEXT ---") {
		t.Error("children must precede the parent section")
	}
}

func TestUniqueParentIDs(t *testing.T) {
	children := []ScoredChild{
		{ChildChunk: ChildChunk{ParentChunkID: "p2"}},
		{ChildChunk: ChildChunk{ParentChunkID: "p1"}},
		{ChildChunk: ChildChunk{ParentChunkID: "p2"}},
		{ChildChunk: ChildChunk{ParentChunkID: ""}},
		{ChildChunk: ChildChunk{ParentChunkID: "p3"}},
	}

	got := UniqueParentIDs(children)
	want := []string{"p2", "p1", "p3"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("expected %v (first-seen order), got %v", want, got)
			break
		}
	}
}

func TestFormatHistory(t *testing.T) {
	turns := []ChatTurn{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	}
	got := FormatHistory(turns, 20)
	if got != "User: hi\nAssistant: hello" {
		t.Errorf("unexpected history: %q", got)
	}
}

func TestFormatHistoryEmpty(t *testing.T) {
	if got := FormatHistory(nil, 20); got != "No previous conversation" {
		t.Errorf("expected empty marker, got %q", got)
	}
}

func TestFormatHistoryWindow(t *testing.T) {
	var turns []ChatTurn
	for i := 0; i < 30; i++ {
		role := "user"
		if i%2 == 1 {
			role = "assistant"
		}
		turns = append(turns, ChatTurn{Role: role, Content: strings.Repeat("x", i+1)})
	}

	got := FormatHistory(turns, 20)
	lines := strings.Split(got, "\n")
	if len(lines) != 20 {
		t.Fatalf("expected 20 lines, got %d", len(lines))
	}
	// The last line must be the most recent turn.
	if !strings.HasSuffix(lines[19], strings.Repeat("x", 30)) {
		t.Error("window did not keep the most recent turns")
	}
}
