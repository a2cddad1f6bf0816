package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"sync/atomic"

	"github.com/google/btree"

	"clockdb/internal/base"
)

// File header layout (page 0):
//
//	[Magic: 4][Version: 2][PageSize: 2][NumPages: 4][FreeCount: 4][Reserved: 8]
//	[FreeList: 4 * FreeCount] ... [Checksum: 8 at PageSize-8]
const (
	hdrMagic     = 0
	hdrVersion   = 4
	hdrPageSize  = 6
	hdrNumPages  = 8
	hdrFreeCount = 12
	hdrFreeList  = 24
	hdrChecksum  = base.PageSize - 8

	// maxPersistedFree bounds the free list stored in the header. Freed pages
	// beyond this are not reused after a reopen.
	maxPersistedFree = (hdrChecksum - hdrFreeList) / 4
)

// File is the paged-file contract the buffer manager and the index build on.
// Page 0 is reserved for the file header; data pages start at 1.
type File interface {
	// ID is a process-unique identity used to key cached pages.
	ID() uint64
	Name() string
	AllocatePage() (base.PageID, *base.Page, error)
	ReadPage(id base.PageID) (*base.Page, error)
	WritePage(id base.PageID, page *base.Page) error
	DeletePage(id base.PageID) error
	Sync() error
	Close() error
}

var _ File = (*PagedFile)(nil)

var nextFileID atomic.Uint64

// PagedFile implements File on top of a single OS file.
type PagedFile struct {
	mu       sync.Mutex
	id       uint64
	name     string
	dev      device
	numPages uint32                    // includes the header page
	free     *btree.BTreeG[base.PageID] // deleted pages, reused lowest first
	closed   bool
	stats    counters
}

// Exists reports whether a file with the given name is present.
func Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// Remove deletes the named file.
func Remove(name string) error {
	if err := os.Remove(name); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return err
	}
	return nil
}

// Create makes a new paged file. It fails with ErrFileExists if name is
// already present.
func Create(name string, opts ...Option) (*PagedFile, error) {
	if Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrFileExists, name)
	}

	f, err := open(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, opts)
	if err != nil {
		return nil, err
	}

	f.numPages = 1
	if err := f.writeHeader(); err != nil {
		f.dev.Close()
		return nil, err
	}
	return f, nil
}

// Open opens an existing paged file and validates its header.
func Open(name string, opts ...Option) (*PagedFile, error) {
	if !Exists(name) {
		return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
	}

	f, err := open(name, os.O_RDWR, opts)
	if err != nil {
		return nil, err
	}

	if err := f.readHeader(); err != nil {
		f.dev.Close()
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

func open(name string, flag int, opts []Option) (*PagedFile, error) {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	f := &PagedFile{
		id:   nextFileID.Add(1),
		name: name,
		free: btree.NewOrderedG[base.PageID](8),
	}

	var (
		dev device
		err error
	)
	switch o.backend {
	case MMap:
		dev, err = openMMapDevice(name, flag, os.FileMode(o.perm), &f.stats)
	case DirectIO:
		dev, err = openFileDevice(name, flag, os.FileMode(o.perm), true, &f.stats)
	default:
		dev, err = openFileDevice(name, flag, os.FileMode(o.perm), false, &f.stats)
	}
	if err != nil {
		return nil, err
	}
	f.dev = dev
	return f, nil
}

func (f *PagedFile) ID() uint64 {
	return f.id
}

func (f *PagedFile) Name() string {
	return f.name
}

// NumPages returns the number of pages in the file, header included.
func (f *PagedFile) NumPages() uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.numPages
}

// FreePages returns the number of deleted pages awaiting reuse.
func (f *PagedFile) FreePages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.free.Len()
}

// Stats returns I/O statistics
func (f *PagedFile) Stats() Stats {
	return f.stats.stats()
}

// AllocatePage returns a zeroed page, reusing the lowest deleted page id
// before growing the file.
func (f *PagedFile) AllocatePage() (base.PageID, *base.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return base.InvalidPageID, nil, ErrFileClosed
	}

	page := &base.Page{}
	if id, ok := f.free.DeleteMin(); ok {
		if err := f.dev.WritePage(id, page); err != nil {
			f.free.ReplaceOrInsert(id)
			return base.InvalidPageID, nil, err
		}
		return id, page, nil
	}

	id := base.PageID(f.numPages)
	if err := f.dev.WritePage(id, page); err != nil {
		return base.InvalidPageID, nil, err
	}
	f.numPages++
	return id, page, nil
}

// ReadPage reads a copy of an allocated page.
func (f *PagedFile) ReadPage(id base.PageID) (*base.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(id); err != nil {
		return nil, err
	}

	page := &base.Page{}
	if err := f.dev.ReadPage(id, page); err != nil {
		return nil, err
	}
	return page, nil
}

// WritePage writes page to an allocated page id.
func (f *PagedFile) WritePage(id base.PageID, page *base.Page) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(id); err != nil {
		return err
	}
	return f.dev.WritePage(id, page)
}

// DeletePage returns a page to the free set.
func (f *PagedFile) DeletePage(id base.PageID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.check(id); err != nil {
		return err
	}
	f.free.ReplaceOrInsert(id)
	return nil
}

func (f *PagedFile) check(id base.PageID) error {
	if f.closed {
		return ErrFileClosed
	}
	if !id.Valid() || uint32(id) >= f.numPages {
		return fmt.Errorf("%w: page %d of %s", ErrInvalidPage, id, f.name)
	}
	if f.free.Has(id) {
		return fmt.Errorf("%w: page %d of %s is deleted", ErrInvalidPage, id, f.name)
	}
	return nil
}

// Sync persists the header and flushes the file.
func (f *PagedFile) Sync() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrFileClosed
	}
	if err := f.writeHeader(); err != nil {
		return err
	}
	return f.dev.Sync()
}

// Close persists the header and closes the file. Closing twice is a no-op.
func (f *PagedFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.closed = true

	err := f.writeHeader()
	if err == nil {
		err = f.dev.Sync()
	}
	return errors.Join(err, f.dev.Close())
}

func (f *PagedFile) writeHeader() error {
	var page base.Page
	page.PutUint32(hdrMagic, base.MagicNumber)
	page.PutUint16(hdrVersion, base.FormatVersion)
	page.PutUint16(hdrPageSize, base.PageSize)
	page.PutUint32(hdrNumPages, f.numPages)

	count := 0
	f.free.Ascend(func(id base.PageID) bool {
		if count == maxPersistedFree {
			return false
		}
		page.PutPageID(hdrFreeList+4*count, id)
		count++
		return true
	})
	page.PutUint32(hdrFreeCount, uint32(count))
	page.PutUint64(hdrChecksum, page.Checksum(hdrChecksum))

	return f.dev.WritePage(0, &page)
}

func (f *PagedFile) readHeader() error {
	var page base.Page
	if err := f.dev.ReadPage(0, &page); err != nil {
		return err
	}

	if page.Uint32(hdrMagic) != base.MagicNumber {
		return ErrInvalidMagicNumber
	}
	if page.Uint16(hdrVersion) != base.FormatVersion {
		return ErrInvalidVersion
	}
	if page.Uint16(hdrPageSize) != base.PageSize {
		return ErrInvalidPageSize
	}
	if page.Uint64(hdrChecksum) != page.Checksum(hdrChecksum) {
		return ErrInvalidChecksum
	}

	f.numPages = page.Uint32(hdrNumPages)
	count := int(page.Uint32(hdrFreeCount))
	for i := 0; i < count && i < maxPersistedFree; i++ {
		f.free.ReplaceOrInsert(page.PageIDAt(hdrFreeList + 4*i))
	}
	return nil
}
