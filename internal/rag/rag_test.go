package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tmc/langchaingo/embeddings"

	"pdf-rag/internal/config"
	"pdf-rag/internal/llmservice"
)

var keywords = []string{"alpha", "beta", "gamma"}

// fakeEmbedder maps text to keyword counts so retrieval is predictable.
type fakeEmbedder struct {
	mu        sync.Mutex
	documents int
	queries   int
}

func vectorFor(text string) []float32 {
	text = strings.ToLower(text)
	vec := make([]float32, len(keywords)+1)
	for i, k := range keywords {
		vec[i] = float32(strings.Count(text, k))
	}
	vec[len(keywords)] = 0.1
	return vec
}

func (e *fakeEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.documents += len(texts)
	e.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = vectorFor(t)
	}
	return out, nil
}

func (e *fakeEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.queries++
	e.mu.Unlock()
	return vectorFor(text), nil
}

type fakeGenerator struct {
	mu       sync.Mutex
	requests []llmservice.Request
	err      error
	// when set, Generate signals entered and waits for release
	entered chan struct{}
	release chan struct{}
}

func (g *fakeGenerator) Generate(ctx context.Context, req llmservice.Request) (string, error) {
	if g.entered != nil {
		g.entered <- struct{}{}
		<-g.release
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return "", g.err
	}
	g.requests = append(g.requests, req)
	return "answer " + string(rune('0'+len(g.requests))), nil
}

type fakeProviders struct {
	embedder    *fakeEmbedder
	generator   *fakeGenerator
	embedErr    error
	generateErr error
}

func newFakeProviders() *fakeProviders {
	return &fakeProviders{embedder: &fakeEmbedder{}, generator: &fakeGenerator{}}
}

func (p *fakeProviders) Embedder() (embeddings.Embedder, error) {
	if p.embedErr != nil {
		return nil, p.embedErr
	}
	return p.embedder, nil
}

func (p *fakeProviders) Generator() (llmservice.Generator, error) {
	if p.generateErr != nil {
		return nil, p.generateErr
	}
	return p.generator, nil
}

func pageText() string {
	var b strings.Builder
	for i := 0; i < 6; i++ {
		b.WriteString("The alpha section describes the first topic in some detail. ")
	}
	for i := 0; i < 6; i++ {
		b.WriteString("The beta section covers a second topic with other words. ")
	}
	for i := 0; i < 6; i++ {
		b.WriteString("Finally gamma closes the document with a short summary. ")
	}
	return b.String()
}

func newSession(t *testing.T, providers Providers) *RAG {
	t.Helper()
	cfg := config.Default()
	store, err := MemoryStoreFactory()(context.Background(), "test")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	r := NewRAG("test", cfg, providers, store)
	t.Cleanup(func() { _ = r.Close() })

	settings := r.Settings()
	settings.ChunkSize, settings.ChunkOverlap, settings.TopK = 200, 40, 3
	if err := r.UpdateSettings(context.Background(), settings); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	return r
}

func TestAskRequiresDocument(t *testing.T) {
	r := newSession(t, newFakeProviders())
	ctx := context.Background()

	if _, err := r.Ask(ctx, "   "); !errors.Is(err, ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
	if _, err := r.Ask(ctx, "what is beta?"); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument, got %v", err)
	}
	if _, err := r.Reindex(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument from Reindex, got %v", err)
	}
}

func TestIngestAndAsk(t *testing.T) {
	p := newFakeProviders()
	r := newSession(t, p)
	ctx := context.Background()

	stats, err := r.Ingest(ctx, "guide.txt", []byte(pageText()))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if stats.Chunks < 3 || stats.Pages != 1 || stats.Reused {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if p.embedder.documents != stats.Chunks {
		t.Fatalf("expected %d embedded chunks, got %d", stats.Chunks, p.embedder.documents)
	}

	turn, err := r.Ask(ctx, "  What does the beta section cover?  ")
	if err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if turn.Question != "What does the beta section cover?" {
		t.Fatalf("question not trimmed: %q", turn.Question)
	}
	if turn.Answer != "answer 1" || turn.Model != r.Settings().Model {
		t.Fatalf("unexpected turn: %+v", turn)
	}
	if len(turn.Sources) != 3 {
		t.Fatalf("expected top 3 sources, got %d", len(turn.Sources))
	}
	if !strings.Contains(turn.Sources[0].Content, "beta") {
		t.Fatalf("best source should mention beta: %q", turn.Sources[0].Content)
	}

	req := p.generator.requests[0]
	if !strings.Contains(req.Prompt, "Question: What does the beta section cover?") {
		t.Fatalf("prompt is missing the question: %q", req.Prompt)
	}
	if !strings.Contains(req.Prompt, turn.Sources[0].Content) {
		t.Fatalf("prompt is missing the retrieved context")
	}
	if req.Temperature != r.Settings().Temperature {
		t.Fatalf("temperature %v not passed to the generator", req.Temperature)
	}

	if _, err := r.Ask(ctx, "And gamma?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	history := r.History()
	if len(history) != 2 || history[0].Answer != "answer 1" || history[1].Question != "And gamma?" {
		t.Fatalf("history not in ask order: %+v", history)
	}
}

func TestIngestSameFileIsReused(t *testing.T) {
	p := newFakeProviders()
	r := newSession(t, p)
	ctx := context.Background()
	data := []byte(pageText())

	if _, err := r.Ingest(ctx, "guide.txt", data); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	embedded := p.embedder.documents

	stats, err := r.Ingest(ctx, "guide.txt", data)
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if !stats.Reused {
		t.Fatalf("expected the index to be reused")
	}
	if p.embedder.documents != embedded {
		t.Fatalf("reused file was embedded again")
	}

	if _, err := r.Ingest(ctx, "renamed.txt", data); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if p.embedder.documents == embedded {
		t.Fatalf("a different file name must be processed again")
	}
}

func TestChunkSettingsInvalidateIndex(t *testing.T) {
	r := newSession(t, newFakeProviders())
	ctx := context.Background()

	before, err := r.Ingest(ctx, "guide.txt", []byte(pageText()))
	if err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	settings := r.Settings()
	settings.TopK = 2
	if err := r.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	turn, err := r.Ask(ctx, "alpha?")
	if err != nil {
		t.Fatalf("top k change must keep the index usable: %v", err)
	}
	if len(turn.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(turn.Sources))
	}

	settings.ChunkSize = 400
	if err := r.UpdateSettings(ctx, settings); err != nil {
		t.Fatalf("UpdateSettings returned error: %v", err)
	}
	if _, err := r.Ask(ctx, "alpha?"); !errors.Is(err, ErrIndexStale) {
		t.Fatalf("expected ErrIndexStale, got %v", err)
	}
	info, err := r.Document(ctx)
	if err != nil {
		t.Fatalf("Document returned error: %v", err)
	}
	if info.Indexed || info.Chunks != 0 || info.IndexedChunks != 0 {
		t.Fatalf("index should be empty after a chunk change: %+v", info)
	}

	after, err := r.Reindex(ctx)
	if err != nil {
		t.Fatalf("Reindex returned error: %v", err)
	}
	if after.Chunks >= before.Chunks || after.ChunkSize != 400 {
		t.Fatalf("expected fewer, larger chunks: before %+v after %+v", before, after)
	}
	if info, err = r.Document(ctx); err != nil || info.IndexedChunks != after.Chunks {
		t.Fatalf("store holds %+v chunks, want %d (err %v)", info, after.Chunks, err)
	}
	if _, err := r.Ask(ctx, "alpha?"); err != nil {
		t.Fatalf("Ask after Reindex returned error: %v", err)
	}
	if len(r.History()) != 2 {
		t.Fatalf("reindexing the same document must keep the history")
	}
}

func TestInvalidSettingsAreRejected(t *testing.T) {
	r := newSession(t, newFakeProviders())
	before := r.Settings()

	next := before
	next.ChunkOverlap = next.ChunkSize
	if err := r.UpdateSettings(context.Background(), next); !errors.Is(err, config.ErrInvalidSettings) {
		t.Fatalf("expected ErrInvalidSettings, got %v", err)
	}
	if r.Settings() != before {
		t.Fatalf("rejected settings must not be applied")
	}
}

func TestMissingKeysAreReportedPerStage(t *testing.T) {
	ctx := context.Background()

	p := newFakeProviders()
	p.embedErr = &config.MissingKeysError{Keys: []string{"OPENAI_API_KEY"}}
	r := newSession(t, p)
	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); !errors.Is(err, config.ErrMissingAPIKeys) {
		t.Fatalf("expected ErrMissingAPIKeys from Ingest, got %v", err)
	}
	if _, err := r.Document(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("nothing should be loaded without credentials, got %v", err)
	}

	p = newFakeProviders()
	p.generateErr = &config.MissingKeysError{Keys: []string{"ANTHROPIC_API_KEY"}}
	r = newSession(t, p)
	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest only needs the embedding key: %v", err)
	}
	if _, err := r.Ask(ctx, "alpha?"); !errors.Is(err, config.ErrMissingAPIKeys) {
		t.Fatalf("expected ErrMissingAPIKeys from Ask, got %v", err)
	}
	if len(r.History()) != 0 {
		t.Fatalf("a failed question must not be recorded")
	}
}

func TestGenerationFailureKeepsHistory(t *testing.T) {
	p := newFakeProviders()
	r := newSession(t, p)
	ctx := context.Background()

	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, err := r.Ask(ctx, "alpha?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	p.generator.err = errors.New("upstream unavailable")
	if _, err := r.Ask(ctx, "beta?"); err == nil {
		t.Fatalf("expected the generator error")
	}
	if len(r.History()) != 1 {
		t.Fatalf("history changed after a failed question")
	}
}

func TestClearHistoryAndReset(t *testing.T) {
	r := newSession(t, newFakeProviders())
	ctx := context.Background()

	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, err := r.Ask(ctx, "alpha?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	r.ClearHistory()
	if len(r.History()) != 0 {
		t.Fatalf("history not cleared")
	}
	if _, err := r.Ask(ctx, "beta?"); err != nil {
		t.Fatalf("the document must survive a history clear: %v", err)
	}

	settings := r.Settings()
	if err := r.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	if _, err := r.Document(ctx); !errors.Is(err, ErrNoDocument) {
		t.Fatalf("expected ErrNoDocument after reset, got %v", err)
	}
	if len(r.History()) != 0 || len(r.Chunks()) != 0 {
		t.Fatalf("reset left session data behind")
	}
	if r.Settings() != settings {
		t.Fatalf("reset must keep the settings")
	}
}

func TestNewDocumentClearsHistory(t *testing.T) {
	r := newSession(t, newFakeProviders())
	ctx := context.Background()

	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, err := r.Ask(ctx, "alpha?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if _, err := r.Ingest(ctx, "other.txt", []byte("A different beta document. "+pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if len(r.History()) != 0 {
		t.Fatalf("history of the previous document was kept")
	}
	info, err := r.Document(ctx)
	if err != nil {
		t.Fatalf("Document returned error: %v", err)
	}
	if info.Name != "other.txt" {
		t.Fatalf("expected other.txt, got %q", info.Name)
	}
}

func TestRetrieveIsDeterministic(t *testing.T) {
	r := newSession(t, newFakeProviders())
	ctx := context.Background()

	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	first, err := r.Retrieve(ctx, "gamma summary", 4)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	second, err := r.Retrieve(ctx, "gamma summary", 4)
	if err != nil {
		t.Fatalf("Retrieve returned error: %v", err)
	}
	if len(first) != 4 || len(second) != 4 {
		t.Fatalf("expected 4 results, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Index != second[i].Index {
			t.Fatalf("result %d differs between identical queries", i)
		}
		if i > 0 && first[i].Similarity > first[i-1].Similarity {
			t.Fatalf("results are not sorted by similarity")
		}
	}
}

func TestHistoryIsAvailableWhileAnswering(t *testing.T) {
	p := newFakeProviders()
	r := newSession(t, p)
	ctx := context.Background()

	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}
	if _, err := r.Ask(ctx, "alpha?"); err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}

	p.generator.entered = make(chan struct{})
	p.generator.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.Ask(ctx, "beta?")
		done <- err
	}()
	<-p.generator.entered

	turns := make(chan int, 1)
	go func() {
		n := len(r.History())
		r.ClearHistory()
		turns <- n
	}()
	select {
	case n := <-turns:
		if n != 1 {
			t.Fatalf("expected 1 turn while answering, got %d", n)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("History and ClearHistory blocked while the answer was being generated")
	}

	close(p.generator.release)
	if err := <-done; err != nil {
		t.Fatalf("Ask returned error: %v", err)
	}
	if h := r.History(); len(h) != 1 || h[0].Question != "beta?" {
		t.Fatalf("expected only the answered turn, got %+v", h)
	}
}

func TestAnswerDroppedWhenIndexChanges(t *testing.T) {
	p := newFakeProviders()
	r := newSession(t, p)
	ctx := context.Background()

	if _, err := r.Ingest(ctx, "guide.txt", []byte(pageText())); err != nil {
		t.Fatalf("Ingest returned error: %v", err)
	}

	p.generator.entered = make(chan struct{})
	p.generator.release = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := r.Ask(ctx, "gamma?")
		done <- err
	}()
	<-p.generator.entered

	if err := r.Reset(ctx); err != nil {
		t.Fatalf("Reset returned error: %v", err)
	}
	close(p.generator.release)
	if err := <-done; !errors.Is(err, ErrIndexChanged) {
		t.Fatalf("expected ErrIndexChanged, got %v", err)
	}
	if len(r.History()) != 0 {
		t.Fatalf("an answer for the dropped index was recorded")
	}
}
