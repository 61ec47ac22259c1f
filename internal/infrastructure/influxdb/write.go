package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementRoutineExecutions = "routine_executions"
	MeasurementDeviceConnections = "device_connections"
)

// WriteRoutineExecution records one routine run. A nil runErr is tagged
// outcome=ok, anything else outcome=failed with the message as a field.
func (c *Client) WriteRoutineExecution(routine string, depth int, took time.Duration, runErr error) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(routinePoint(routine, depth, took, runErr, time.Now()))
}

// WriteDeviceConnection records a device connecting or disconnecting.
// event is "hello" or "disconnect".
func (c *Client) WriteDeviceConnection(class, id, event string) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(connectionPoint(class, id, event, time.Now()))
}

func routinePoint(routine string, depth int, took time.Duration, runErr error, at time.Time) *write.Point {
	outcome := "ok"
	fields := map[string]interface{}{
		"duration_ms":   float64(took.Microseconds()) / 1000,
		"cascade_depth": depth,
	}
	if runErr != nil {
		outcome = "failed"
		fields["error"] = runErr.Error()
	}

	return write.NewPoint(MeasurementRoutineExecutions,
		map[string]string{"routine": routine, "outcome": outcome},
		fields, at)
}

func connectionPoint(class, id, event string, at time.Time) *write.Point {
	return write.NewPoint(MeasurementDeviceConnections,
		map[string]string{"class": class, "event": event},
		map[string]interface{}{"device_id": id},
		at)
}
