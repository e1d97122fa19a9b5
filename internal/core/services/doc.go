// Package services implements the driving ports.
//
// IndexBuilder turns the documents directory into a vector index,
// Retriever and Synthesizer answer one question against an index, and
// Consultant ties them together around the snapshot it serves. Refresher
// keeps that snapshot current while documents change.
//
// Services depend on driven ports only; adapters are wired in internal/app.
package services
