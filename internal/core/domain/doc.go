// Package domain defines the core entities of the safety consultant.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - SourceDocument: plain text extracted from one corpus file
//   - Chunk: a bounded, overlapping window of a source document
//   - IndexEntry: a chunk together with its embedding vector
//   - Answer: the grounded response to a question
//   - BuildReport: the outcome of an index build or update
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
