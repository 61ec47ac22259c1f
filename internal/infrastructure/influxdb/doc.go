// Package influxdb records automation telemetry in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. Writes are
// non-blocking and batched; failures surface through SetOnError.
//
// Two measurements are written:
//   - routine_executions: one point per routine run, tagged by routine
//     name and outcome, with duration and cascade depth fields
//   - device_connections: one point per hello or disconnect, tagged by
//     device class
//
// Attribute values themselves are not stored.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.WriteRoutineExecution("too_hot", 1, 3*time.Millisecond, nil)
package influxdb
