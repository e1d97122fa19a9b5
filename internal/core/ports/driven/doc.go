// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Corpus: Lists the documents directory
//   - DocumentLoader: Turns a corpus file into a SourceDocument
//   - Normaliser: Extracts plain text from one file format
//   - ChunkSplitter: Cuts documents into chunks
//   - EmbeddingService: Maps text to fixed-dimension vectors
//   - LLMService: Generates answer text from a prompt
//   - IndexStore: Persists and loads the vector index
//   - ManifestStore: Records the content hash of every indexed source
//   - BuildLock: Serialises builds across processes
//   - ConfigStore: Application configuration
//   - PromptStore: Answer prompt templates
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - ConfigOverrides: Environment overrides on top of the config file.
//   - CorpusWatcher: File change notifications. Only the watch command needs it.
//
// # Import Rules
//
//   - Can Import: domain and vectorindex packages only
//   - Cannot Import: Any adapter or normaliser package
package driven
