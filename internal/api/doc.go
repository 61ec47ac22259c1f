// Package api implements the HTTP and WebSocket surfaces of Idiotic Core.
//
// This package provides:
//   - The embedded device endpoint (default /embedded), where devices send
//     hello/set/get frames as JSON text or CBOR binary messages
//   - An observer WebSocket hub broadcasting attribute changes, routine
//     executions and device connection events
//   - REST endpoints for inspecting devices and writing attributes
//   - Health, metrics and engine statistics
//
// # Architecture
//
// Frames arriving on the device endpoint are handed to the protocol
// dispatcher, which writes through the device registry. Attribute
// changes fan out through the change feed to the originating device's
// peers, the observer hub and the MQTT state sink. Writes made over
// REST have no originating connection, so every connected device of
// the class sees them.
//
// # Graceful Degradation
//
// MQTT and InfluxDB are optional. Without them the device endpoint and
// REST API keep working; only the bus mirror and telemetry are lost.
package api
