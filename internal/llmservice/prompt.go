package llmservice

import (
	"fmt"
	"strings"

	"pdf-rag/internal/models"
)

// BuildPrompt joins the retrieved chunks in retrieval order and fills the
// answer template with them and the question.
func BuildPrompt(results []models.SearchResult, question string) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.Content
	}
	return fmt.Sprintf(models.AnswerPromptTemplate, strings.Join(parts, models.ContextSeparator), question)
}

// FormatSources renders retrieved chunks for terminal output.
func FormatSources(results []models.SearchResult) string {
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] page %d, chunk %d (similarity %.3f)\n%s\n\n", i+1, r.PageNumber, r.Index, r.Similarity, strings.TrimSpace(r.Content))
	}
	return b.String()
}
