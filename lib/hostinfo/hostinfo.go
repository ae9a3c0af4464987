// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package hostinfo samples local machine resources for heartbeat
// reporting: system memory, disk usage of the state directory, and
// process uptime. Linux only, matching the booth appliance fleet.
package hostinfo

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// MemoryStats holds a point-in-time reading of system memory, in
// integer megabytes. Integer MB keeps heartbeat payloads free of
// fractional noise.
type MemoryStats struct {
	UsedMB  int
	TotalMB int
}

// Percent returns used memory as a percentage of total, or 0 when the
// total is unknown.
func (m MemoryStats) Percent() float64 {
	if m.TotalMB == 0 {
		return 0
	}
	return float64(m.UsedMB) / float64(m.TotalMB) * 100
}

// ReadMemory returns current system memory usage via sysinfo(2).
func ReadMemory() (MemoryStats, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return MemoryStats{}, fmt.Errorf("hostinfo: sysinfo: %w", err)
	}

	totalBytes := uint64(info.Totalram) * uint64(info.Unit)
	freeBytes := uint64(info.Freeram) * uint64(info.Unit)
	if totalBytes < freeBytes {
		return MemoryStats{}, fmt.Errorf("hostinfo: sysinfo reported free > total")
	}

	return MemoryStats{
		UsedMB:  int((totalBytes - freeBytes) / (1024 * 1024)),
		TotalMB: int(totalBytes / (1024 * 1024)),
	}, nil
}

// DiskStats holds a point-in-time reading of filesystem usage for a
// single mount, in integer megabytes.
type DiskStats struct {
	UsedMB  int
	TotalMB int
}

// Percent returns used disk as a percentage of total, or 0 when the
// total is unknown.
func (d DiskStats) Percent() float64 {
	if d.TotalMB == 0 {
		return 0
	}
	return float64(d.UsedMB) / float64(d.TotalMB) * 100
}

// ReadDisk returns usage of the filesystem containing path via
// statfs(2). Boothline samples its state directory, which is where
// runaway telemetry or snapshot growth would land.
func ReadDisk(path string) (DiskStats, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return DiskStats{}, fmt.Errorf("hostinfo: statfs %s: %w", path, err)
	}

	blockSize := uint64(stat.Bsize)
	totalBytes := stat.Blocks * blockSize
	freeBytes := stat.Bfree * blockSize
	if totalBytes < freeBytes {
		return DiskStats{}, fmt.Errorf("hostinfo: statfs reported free > total for %s", path)
	}

	return DiskStats{
		UsedMB:  int((totalBytes - freeBytes) / (1024 * 1024)),
		TotalMB: int(totalBytes / (1024 * 1024)),
	}, nil
}
