package domain

import "time"

// grpcCallTimeout caps the time for a single gRPC call from an MCP tool handler.
const grpcCallTimeout = 5 * time.Second

// grpcLongCallTimeout caps launches, which wait for the recognizer to accept
// the connection.
const grpcLongCallTimeout = 15 * time.Second
