package api

import (
	"net/http"
	"runtime"
	"time"
)

// SystemMetrics represents the complete system metrics response.
type SystemMetrics struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Runtime       RuntimeMetrics `json:"runtime"`
	WebSocket     WSMetrics      `json:"websocket"`
	Devices       DeviceMetrics  `json:"devices"`
	Feed          FeedMetrics    `json:"feed"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket statistics.
type WSMetrics struct {
	Observers int `json:"observers"`
}

// DeviceMetrics contains device registry statistics.
type DeviceMetrics struct {
	Total     int            `json:"total"`
	Connected int            `json:"connected"`
	ByClass   map[string]int `json:"by_class"`
}

// FeedMetrics contains change feed statistics.
type FeedMetrics struct {
	Dropped uint64 `json:"dropped"`
}

// handleMetrics returns runtime and registry metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{Observers: s.hub.ClientCount()},
		Devices:   DeviceMetrics{ByClass: make(map[string]int)},
	}

	for _, d := range s.registry.Devices() {
		metrics.Devices.Total++
		metrics.Devices.ByClass[d.Class()]++
		if _, ok := s.registry.Connection(d.ID()); ok {
			metrics.Devices.Connected++
		}
	}
	if s.feed != nil {
		metrics.Feed.Dropped = s.feed.Dropped()
	}

	writeJSON(w, http.StatusOK, metrics)
}
