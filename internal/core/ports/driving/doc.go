// Package driving defines what the CLI and the MCP server call into:
// the consultant itself, its settings and the background refresher.
//
// Implementations live in internal/core/services.
package driving
