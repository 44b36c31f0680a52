// Package server implements the IRC server core.
//
// A single Hub goroutine owns the registry, every channel and all client
// state. Listeners and the WebSocket gateway hand it transports; per-client
// read and write pumps move bytes and report failures back to it. The
// implementation is organized into specialized files for configuration, hub
// management, clients, commands, replies and transports to keep the codebase
// maintainable and testable.
package server
