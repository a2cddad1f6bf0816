//go:build linux || darwin

package storage

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"clockdb/internal/base"
)

// mmapGrowth is the granularity the mapping grows by. Rounding up reduces
// remap frequency; the file is extended sparsely.
const mmapGrowth = 16 * 1024 * 1024

// mmapDevice implements device using memory-mapped I/O
type mmapDevice struct {
	file     *os.File
	mmapData []byte
	mmapSize int64
	*counters
}

func openMMapDevice(path string, flag int, perm os.FileMode, c *counters) (device, error) {
	file, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	size := roundUp(max(info.Size(), base.PageSize))
	if size != info.Size() {
		if err := file.Truncate(size); err != nil {
			file.Close()
			return nil, err
		}
	}

	data, err := unix.Mmap(int(file.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		file.Close()
		return nil, err
	}

	return &mmapDevice{
		file:     file,
		mmapData: data,
		mmapSize: size,
		counters: c,
	}, nil
}

func roundUp(n int64) int64 {
	return ((n + mmapGrowth - 1) / mmapGrowth) * mmapGrowth
}

// ReadPage copies a page out of the mapped region
func (m *mmapDevice) ReadPage(id base.PageID, page *base.Page) error {
	if m.mmapData == nil {
		return ErrFileClosed
	}

	offset := int64(id) * base.PageSize
	if offset+base.PageSize > m.mmapSize {
		return fmt.Errorf("%w: page %d beyond mapped region", ErrInvalidPage, id)
	}

	m.reads.Add(1)
	m.read.Add(base.PageSize)
	// Copy from mmap to avoid pointer invalidation on remap
	copy(page.Data[:], m.mmapData[offset:offset+base.PageSize])
	return nil
}

// WritePage copies a page into the mapped region, growing it if needed
func (m *mmapDevice) WritePage(id base.PageID, page *base.Page) error {
	if m.mmapData == nil {
		return ErrFileClosed
	}

	offset := int64(id) * base.PageSize
	if offset+base.PageSize > m.mmapSize {
		if err := m.grow(offset + base.PageSize); err != nil {
			return err
		}
	}

	m.writes.Add(1)
	copy(m.mmapData[offset:], page.Data[:])
	m.written.Add(base.PageSize)
	return nil
}

func (m *mmapDevice) grow(minSize int64) error {
	newSize := roundUp(minSize)

	// Start async flush to reduce munmap blocking time
	_ = unix.Msync(m.mmapData, unix.MS_ASYNC)

	if err := unix.Munmap(m.mmapData); err != nil {
		return err
	}
	m.mmapData = nil

	// Grow file (sparse allocation)
	if err := m.file.Truncate(newSize); err != nil {
		return err
	}

	data, err := unix.Mmap(int(m.file.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	m.mmapData = data
	m.mmapSize = newSize
	return nil
}

// Sync flushes the memory-mapped region to disk
func (m *mmapDevice) Sync() error {
	if m.mmapData == nil {
		return ErrFileClosed
	}
	if err := unix.Msync(m.mmapData, unix.MS_SYNC); err != nil {
		return err
	}
	return m.file.Sync()
}

// Close unmaps the region and closes the file
func (m *mmapDevice) Close() error {
	if m.mmapData != nil {
		if err := unix.Munmap(m.mmapData); err != nil {
			return err
		}
		m.mmapData = nil
	}
	return m.file.Close()
}
