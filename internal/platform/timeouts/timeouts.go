// Package timeouts defines shared timeout constants used across the debugger
// binaries.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing the debugger control API.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single control API call made by the MCP bridge.
const GRPCRequest = 5 * time.Second

// RecognizerConnect bounds the retry loop while a recognizer starts up.
const RecognizerConnect = 10 * time.Second

// Shutdown limits graceful shutdown of servers and telemetry exporters.
const Shutdown = 5 * time.Second
