// Package normalisers provides implementations of the Normaliser interface
// for the supported corpus formats. Each normaliser knows how to extract
// plain text from exactly one format.
//
// The Registry dispatches a corpus file to its normaliser by format and
// implements the DocumentLoader port.
package normalisers
