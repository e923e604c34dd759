// Package memory provides hybrid conversational memory for chat agents.
//
// Every conversation keeps two tiers of memory that are synchronized on a
// best-effort basis:
//   - Recency buffer: a short, FIFO-bounded log of compressed exchanges kept in
//     a key-value store (RecencyStore over KV).
//   - Semantic archive: every user message and every exchange summary embedded
//     into a similarity index (SemanticIndex), scoped by conversation id.
//
// Architecture:
//   - KV: key-value backend for the recency buffer (redis, postgres, in-memory)
//   - SemanticIndex: vector backend (flat squared-L2 file index, chromem-go)
//   - Embedder: text-to-vector conversion (ollama, ONNX, mock)
//   - Summarizer: reduces a user/assistant exchange to one compact fact
//   - Manager: records turns and assembles the context for each model call
//
// Integration:
//   - RecordUser before the model call, then BuildContext for the prompt
//   - RecordAssistant once the reply arrives, which compresses the exchange
//
// Failures on the vector path (embedding, indexing) are logged and counted but
// never fail the user-visible turn. Failures of the key-value store are
// returned, since the recency log is the canonical conversation state.
package memory
