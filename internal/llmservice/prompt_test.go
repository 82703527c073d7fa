package llmservice

import (
	"strings"
	"testing"

	"pdf-rag/internal/models"
)

func result(index, page int, content string, sim float32) models.SearchResult {
	return models.SearchResult{
		Chunk:      models.Chunk{Index: index, PageNumber: page, Content: content},
		Similarity: sim,
	}
}

func TestBuildPromptKeepsRetrievalOrder(t *testing.T) {
	results := []models.SearchResult{
		result(4, 2, "second page text", 0.9),
		result(1, 1, "first page text", 0.7),
	}
	prompt := BuildPrompt(results, "What is on page two?")

	wantContext := "Context: second page text" + models.ContextSeparator + "first page text"
	if !strings.Contains(prompt, wantContext) {
		t.Fatalf("prompt context not in retrieval order:\n%s", prompt)
	}
	if !strings.Contains(prompt, "Question: What is on page two?") {
		t.Fatalf("prompt is missing the question:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "Answer:") {
		t.Fatalf("prompt should end with the answer cue:\n%s", prompt)
	}
	if !strings.Contains(prompt, "say you don't know") {
		t.Fatalf("prompt lost the grounding instruction:\n%s", prompt)
	}
}

func TestBuildPromptWithoutContext(t *testing.T) {
	prompt := BuildPrompt(nil, "anything?")
	if !strings.Contains(prompt, "Context: \n") {
		t.Fatalf("expected an empty context section:\n%s", prompt)
	}
}

func TestFormatSources(t *testing.T) {
	out := FormatSources([]models.SearchResult{result(3, 5, "  some text  ", 0.8123)})
	if !strings.Contains(out, "[1] page 5, chunk 3 (similarity 0.812)") {
		t.Fatalf("unexpected header: %q", out)
	}
	if !strings.Contains(out, "\nsome text\n") {
		t.Fatalf("content not trimmed: %q", out)
	}
}

func TestFirstPositive(t *testing.T) {
	if got := firstPositive(0, -1, 512, 1024); got != 512 {
		t.Fatalf("expected 512, got %d", got)
	}
	if got := firstPositive(0); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}
