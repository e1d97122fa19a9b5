// Package mcp provides an MCP (Model Context Protocol) server adapter for the
// safety consultant. It lets AI assistants ask questions against the indexed
// corpus and trigger index builds.
package mcp

import "errors"

// ErrMissingConsultant is returned when the consultant is not provided.
var ErrMissingConsultant = errors.New("mcp: consultant is required")
