// Package protocol implements the device protocol spoken over the
// /embedded WebSocket and the MQTT command topics.
//
// A device opens a connection and says hello with its class and uuid.
// After that it sends set messages for its own attributes and may get
// attributes of any device. Text frames carry JSON and binary frames
// carry CBOR; a reply uses the encoding of the frame it answers.
//
// Changes made by anyone other than the device itself are pushed back
// to it as set messages through its device.Conn.
package protocol
