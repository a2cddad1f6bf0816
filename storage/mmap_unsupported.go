//go:build !linux && !darwin

package storage

import "os"

// On unsupported platforms, MMap falls back to buffered positional I/O
func openMMapDevice(path string, flag int, perm os.FileMode, c *counters) (device, error) {
	return openFileDevice(path, flag, perm, false, c)
}
