// Package mcp exposes the diagnosis conversation as MCP tools.
//
// The server uses the MCP SDK (github.com/modelcontextprotocol/go-sdk/mcp) on
// the stdio transport and calls the session service directly. Four tools are
// registered: session_create, session_message, session_feedback and
// session_diagnosis. Service errors are returned as tool errors carrying the
// error kind.
package mcp
