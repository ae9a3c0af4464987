// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// HeartbeatSample is one liveness report POSTed to the fleet
// collector. Constructed fresh each cycle, never persisted. The
// Server* fields come from a best-effort fetch of the venue server's
// health endpoint and are omitted when that fetch fails.
type HeartbeatSample struct {
	AppVersion      string  `json:"appVersion"`
	MemoryPercent   float64 `json:"memoryPercent"`
	MemoryUsedMB    int     `json:"memoryUsedMB"`
	MemoryTotalMB   int     `json:"memoryTotalMB"`
	DiskPercent     float64 `json:"diskPercent"`
	DiskUsedMB      int     `json:"diskUsedMB"`
	UptimeSeconds   int64   `json:"uptimeSeconds"`
	ActiveWorkUnits int     `json:"activeWorkUnits"`
	IsActive        bool    `json:"isActive"`

	ServerMemoryRSSMB   *int  `json:"serverMemoryRssMB,omitempty"`
	ServerHeapUsedMB    *int  `json:"serverHeapUsedMB,omitempty"`
	ServerUptimeSeconds *int64 `json:"serverUptimeSeconds,omitempty"`
}

// HeartbeatAck is the collector's optional acknowledgement body.
type HeartbeatAck struct {
	Acknowledged bool   `json:"acknowledged"`
	Message      string `json:"message,omitempty"`
}

// ServerHealth is the venue server's self-reported process health,
// used to enrich heartbeat samples.
type ServerHealth struct {
	Memory struct {
		RSS      int64 `json:"rss"`      // bytes
		HeapUsed int64 `json:"heapUsed"` // bytes
	} `json:"memory"`
	Uptime int64 `json:"uptime"` // seconds
}
