// Package ipc exposes the daemon over JSON-RPC on a Unix domain socket.
//
// The service is registered as "Browserfetch"; the Client wraps every method
// with typed request/response structs. Payloads reuse the DTOs from
// internal/api so the CLI renders IPC and HTTP results the same way.
package ipc
