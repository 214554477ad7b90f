// Package papyrus is a retrieval-augmented question answering engine for
// document collections.
//
// Documents are ingested into a two-tier retrieval structure: a whole-document
// summary with its own embedding, and a parent/child chunk hierarchy where
// paragraph-level parents are split into overlapping embedded child windows.
// At query time the engine embeds the question, fetches the nearest summary
// and the nearest child chunks, and routes between the two granularities by
// comparing their distances: broad questions are answered from the summary,
// narrow ones from child excerpts expanded to their parent paragraphs.
//
// # Quick Start
//
//	pool, _ := pgxpool.New(ctx, databaseURL)
//	store := postgres.New(pool, postgres.WithEmbeddingDimension(384))
//	llm := openaicompat.NewGenerator(apiKey, model, baseURL)
//	embedding := openaicompat.NewEmbedding(apiKey, embedModel, baseURL, 384)
//
//	pipeline := ingest.NewPipeline(store, embedding, llm)
//	report := pipeline.Run(ctx, doc, pdfBytes, "report.pdf")
//
//	engine := papyrus.NewEngine(store, embedding, llm)
//	prepared, err := engine.Prepare(ctx, papyrus.QueryRequest{Question: q})
//	if err != nil {
//		// structured error payload, stream never started
//	}
//	ch := make(chan papyrus.StreamEvent)
//	go engine.Stream(ctx, prepared, ch)
//	for ev := range ch {
//		// forward as SSE
//	}
//
// # Core Interfaces
//
// The root package defines the contracts that all components implement:
//
//   - [Generator] - text generation backend (blocking and streaming)
//   - [EmbeddingProvider] - text-to-vector embedding
//   - [Store] - persistence with vector distance ordering
//
// # Included Implementations
//
// Providers: provider/openaicompat (OpenAI-compatible chat + embeddings APIs,
// which also fronts Ollama, vLLM, Groq and similar).
// Storage: store/postgres (pgvector), store/sqlite (local, pure Go).
//
// See cmd/papyrusd for the HTTP service and cmd/papyrus-chat for a terminal
// client.
package papyrus
