// Package memory gives the chat relay a per-client memory of earlier pool
// analyses.
//
// When a client asks for another analysis, the relay retrieves the most
// similar past analyses for that client and appends them to the system
// prompt, so the model can compare the new pool against pools it already
// discussed. Memories are namespaced by client identifier.
//
// Architecture:
//   - Store: vector storage backend (chromem-go, embedded and in-process)
//   - Embedder: text-to-vector conversion (deterministic feature hashing)
//   - Manager: decides what to retrieve, how to format it, and what to record
//
// Memory is opt-in and process-local; it is lost on restart.
package memory
