package main

import (
	"context"
	"time"

	"github.com/nerrad567/idiotic-core/internal/automation"
	"github.com/nerrad567/idiotic-core/internal/device"
	"github.com/nerrad567/idiotic-core/internal/infrastructure/logging"
)

// catalogueObserver records connecting devices in the known-device
// catalogue so they are restored on the next start.
type catalogueObserver struct {
	repo device.Repository
	log  *logging.Logger
}

// DeviceConnected implements protocol.Observer.
func (o *catalogueObserver) DeviceConnected(ctx context.Context, d device.Device, remoteAddr string, _ bool) {
	o.touch(ctx, d, remoteAddr)
}

// DeviceDisconnected implements protocol.Observer.
func (o *catalogueObserver) DeviceDisconnected(ctx context.Context, d device.Device, remoteAddr string) {
	o.touch(ctx, d, remoteAddr)
}

func (o *catalogueObserver) touch(ctx context.Context, d device.Device, remoteAddr string) {
	err := o.repo.Touch(ctx, device.KnownDevice{
		ID:         d.ID(),
		Class:      d.Class(),
		Name:       d.Name(),
		RemoteAddr: remoteAddr,
	})
	if err != nil {
		o.log.Warn("recording known device failed", "id", d.ID(), "error", err)
	}
}

// connectionWriter is the telemetry the observer feeds.
// *influxdb.Client implements it.
type connectionWriter interface {
	WriteDeviceConnection(class, id, event string)
}

// telemetryObserver writes connect and disconnect events as points.
type telemetryObserver struct {
	influx connectionWriter
}

// DeviceConnected implements protocol.Observer.
func (o *telemetryObserver) DeviceConnected(_ context.Context, d device.Device, _ string, _ bool) {
	o.influx.WriteDeviceConnection(d.Class(), d.ID(), "connected")
}

// DeviceDisconnected implements protocol.Observer.
func (o *telemetryObserver) DeviceDisconnected(_ context.Context, d device.Device, _ string) {
	o.influx.WriteDeviceConnection(d.Class(), d.ID(), "disconnected")
}

// metricsFanout hands each routine execution to every writer in turn.
type metricsFanout []automation.MetricsWriter

// WriteRoutineExecution implements automation.MetricsWriter.
func (m metricsFanout) WriteRoutineExecution(routine string, depth int, took time.Duration, runErr error) {
	for _, w := range m {
		w.WriteRoutineExecution(routine, depth, took, runErr)
	}
}
