// Package hybridrag provides a hybrid retrieval engine for conversational
// agents. It combines two retrieval strategies over a shared data store:
// semantic similarity search over fixed-length embeddings, and explicit
// relationship traversal over a property graph.
//
// # Components
//
// The root package defines the data model (Node, Edge, Document, Chunk), the
// store contracts (GraphStore, DocumentStore) and the error kinds shared by
// every subsystem. The subpackages build on it:
//
//   - store: GraphStore/DocumentStore implementations (in-memory, SQLite,
//     Redis, PostgreSQL)
//   - traverse: bounded-depth connected-component discovery and weighted
//     shortest-path search
//   - vector: cosine-similarity search over node and chunk embeddings
//   - embed: the embedding-generation boundary (OpenAI, langchaingo
//     adapters) with a flagged deterministic fallback
//   - engine: the mode-driven retrieval orchestrator that sequences
//     retrieval and mutation steps with per-step failure isolation
//   - loader: helpers that turn markdown/HTML sources into documents and
//     ordered chunks for ingestion
//
// # Quick start
//
//	st := store.NewMemoryStore()
//	emb := embed.NewResilient(nil, embed.ResilientOptions{Dimension: 1536})
//	orch := engine.New(engine.Config{
//		Graph:     st,
//		Documents: st,
//		Index:     vector.NewIndex(st),
//		Embedder:  emb,
//	})
//
//	resp, err := orch.Handle(ctx, &engine.Request{
//		Mode: engine.ModeHybrid,
//		Messages: []engine.Message{
//			{Role: "user", Content: "What do we know about Apollo?"},
//		},
//	})
//
// Every fact in the response carries a provenance entry naming the operation
// and subsystem that produced it, so answers can be cited.
package hybridrag // import "github.com/smallnest/hybridrag"
