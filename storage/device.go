package storage

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"clockdb/internal/base"
	"clockdb/internal/directio"
)

// device moves whole pages between memory and the underlying file.
type device interface {
	ReadPage(id base.PageID, page *base.Page) error
	WritePage(id base.PageID, page *base.Page) error
	Sync() error
	Close() error
}

// Stats holds I/O statistics
type Stats struct {
	Reads   uint64
	Writes  uint64
	Read    uint64
	Written uint64
}

type counters struct {
	reads   atomic.Uint64
	writes  atomic.Uint64
	read    atomic.Uint64
	written atomic.Uint64
}

func (c *counters) stats() Stats {
	return Stats{
		Reads:   c.reads.Load(),
		Writes:  c.writes.Load(),
		Read:    c.read.Load(),
		Written: c.written.Load(),
	}
}

// fileDevice implements device with positional I/O, optionally through
// aligned buffers when the file was opened for direct I/O.
type fileDevice struct {
	file    *os.File
	direct  bool
	bufPool sync.Pool
	*counters
}

func openFileDevice(path string, flag int, perm os.FileMode, direct bool, c *counters) (*fileDevice, error) {
	var (
		file *os.File
		err  error
	)
	if direct {
		file, err = directio.OpenFile(path, flag, perm)
	} else {
		file, err = os.OpenFile(path, flag, perm)
	}
	if err != nil {
		return nil, err
	}

	return &fileDevice{
		file:   file,
		direct: direct,
		bufPool: sync.Pool{
			New: func() any {
				return directio.AlignedBlock(base.PageSize)
			},
		},
		counters: c,
	}, nil
}

// ReadPage reads a page at its fixed offset
func (d *fileDevice) ReadPage(id base.PageID, page *base.Page) error {
	offset := int64(id) * base.PageSize
	buf := page.Data[:]
	if d.direct {
		aligned := d.bufPool.Get().([]byte)
		defer d.bufPool.Put(aligned)
		buf = aligned
	}

	d.reads.Add(1)
	n, err := d.file.ReadAt(buf, offset)
	d.read.Add(uint64(n))
	if err != nil && !(err == io.EOF && n == base.PageSize) {
		return fmt.Errorf("read page %d: %w", id, err)
	}
	if n != base.PageSize {
		return fmt.Errorf("short read: got %d bytes, expected %d", n, base.PageSize)
	}

	if d.direct {
		copy(page.Data[:], buf)
	}
	return nil
}

// WritePage writes a page at its fixed offset
func (d *fileDevice) WritePage(id base.PageID, page *base.Page) error {
	buf := page.Data[:]
	if d.direct && !directio.IsAligned(buf) {
		// Buffer not aligned - copy to aligned buffer
		aligned := d.bufPool.Get().([]byte)
		defer d.bufPool.Put(aligned)
		copy(aligned, buf)
		buf = aligned
	}

	offset := int64(id) * base.PageSize
	d.writes.Add(1)
	n, err := d.file.WriteAt(buf, offset)
	d.written.Add(uint64(n))
	if err != nil {
		return fmt.Errorf("write page %d: %w", id, err)
	}
	if n != base.PageSize {
		return fmt.Errorf("short write: wrote %d bytes, expected %d", n, base.PageSize)
	}
	return nil
}

// Sync flushes buffered writes to disk
func (d *fileDevice) Sync() error {
	return d.file.Sync()
}

// Close closes the file
func (d *fileDevice) Close() error {
	return d.file.Close()
}
