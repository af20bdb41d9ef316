// Package services provides the service registry for fixdesk.
//
// The daemon builds every service once, puts them in a Registry and hands
// the registry to the transports (HTTP, MCP).
package services
