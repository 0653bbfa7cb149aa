// Package domain translates MCP tool calls into debugger commands.
//
// Handlers call the debugger gRPC API, decode its Struct responses into typed
// results and notify resource subscribers whenever the session moved.
package domain
