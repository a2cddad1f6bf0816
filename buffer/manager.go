package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"clockdb/internal/base"
	"clockdb/storage"
)

// Manager caches file pages in a fixed pool of frames and replaces them with
// the clock algorithm. A page is pinned from FetchPage or AllocateNewPage
// until the matching ReleasePage, and a pinned frame is never evicted.
//
// Page pointers returned by the Manager point into the pool and stay valid
// only while the caller holds the pin.
type Manager struct {
	mu        sync.Mutex
	numFrames int
	descs     []frameDesc
	pool      []base.Page
	index     *pageIndex
	clockHand FrameID
	seen      []bool // pinned frames observed during one victim search
	logger    Logger

	hits       atomic.Uint64
	misses     atomic.Uint64
	evictions  atomic.Uint64
	writebacks atomic.Uint64
	exhausted  atomic.Uint64
}

// New creates a Manager with numFrames frames. All frames start free.
func New(numFrames int, opts ...Option) (*Manager, error) {
	if numFrames <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidFrames, numFrames)
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		numFrames: numFrames,
		descs:     make([]frameDesc, numFrames),
		pool:      make([]base.Page, numFrames),
		clockHand: FrameID(numFrames - 1),
		seen:      make([]bool, numFrames),
		logger:    o.logger,
	}
	for i := range m.descs {
		m.descs[i].frameNo = FrameID(i)
		m.descs[i].clear()
	}

	index, err := newPageIndex(numFrames)
	if err != nil {
		return nil, fmt.Errorf("create page index: %w", err)
	}
	m.index = index
	return m, nil
}

// NumFrames returns the pool size.
func (m *Manager) NumFrames() int {
	return m.numFrames
}

func (m *Manager) advanceClock() {
	m.clockHand = FrameID((int(m.clockHand) + 1) % m.numFrames)
}

// allocBuf selects a frame with the clock algorithm. A chosen frame is
// written back if dirty, unmapped and cleared. The search fails once every
// frame has been observed pinned.
func (m *Manager) allocBuf() (FrameID, error) {
	clear(m.seen)
	pinned := 0
	for pinned < m.numFrames {
		m.advanceClock()
		d := &m.descs[m.clockHand]
		if !d.valid {
			return m.clockHand, nil
		}
		if d.refbit {
			d.refbit = false
			continue
		}
		if d.pinCnt > 0 {
			if !m.seen[m.clockHand] {
				m.seen[m.clockHand] = true
				pinned++
			}
			continue
		}

		// Only the victim is written back; its file may hold other pinned pages.
		if d.dirty {
			if err := d.file.WritePage(d.pageID, &m.pool[m.clockHand]); err != nil {
				m.logger.Error("write back victim", "file", d.file.Name(), "page", d.pageID, "error", err)
				return 0, fmt.Errorf("write back page %d of %s: %w", d.pageID, d.file.Name(), err)
			}
			m.writebacks.Add(1)
		}
		m.index.remove(frameKey{file: d.file.ID(), page: d.pageID})
		d.clear()
		m.evictions.Add(1)
		return m.clockHand, nil
	}

	m.exhausted.Add(1)
	m.logger.Warn("no evictable frame", "frames", m.numFrames)
	return 0, ErrBufferExceeded
}

func (m *Manager) mapFrame(key frameKey, frame FrameID) {
	if m.index.insert(key, frame) {
		m.logger.Error("page index dropped a live mapping",
			"file", key.file, "page", key.page, "frame", frame, "entries", m.index.len())
	}
}

// AllocateFrame runs the replacement policy and returns a free, unpinned
// frame. The frame stays free until a page is loaded into it.
func (m *Manager) AllocateFrame() (FrameID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.allocBuf()
}

// FetchPage returns the page pinned in the pool, reading it from file on a
// miss.
func (m *Manager) FetchPage(file storage.File, id base.PageID) (*base.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := frameKey{file: file.ID(), page: id}
	if frame, ok := m.index.lookup(key); ok {
		d := &m.descs[frame]
		d.refbit = true
		d.pinCnt++
		m.hits.Add(1)
		return &m.pool[frame], nil
	}
	m.misses.Add(1)

	frame, err := m.allocBuf()
	if err != nil {
		return nil, err
	}
	page, err := file.ReadPage(id)
	if err != nil {
		return nil, fmt.Errorf("read page %d of %s: %w", id, file.Name(), err)
	}
	m.pool[frame] = *page
	m.mapFrame(key, frame)
	m.descs[frame].set(file, id)
	return &m.pool[frame], nil
}

// ReleasePage drops one pin on the page and marks it dirty if requested.
// The dirty bit is sticky until the page is written back.
func (m *Manager) ReleasePage(file storage.File, id base.PageID, dirty bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	frame, ok := m.index.lookup(frameKey{file: file.ID(), page: id})
	if !ok {
		return fmt.Errorf("%w: page %d of %s is not resident", ErrPageNotPinned, id, file.Name())
	}
	d := &m.descs[frame]
	if d.pinCnt == 0 {
		return fmt.Errorf("%w: page %d of %s", ErrPageNotPinned, id, file.Name())
	}
	d.pinCnt--
	if dirty {
		d.dirty = true
	}
	return nil
}

// AllocateNewPage allocates a page in file and returns it pinned in the pool.
// If no frame is available the page is returned to the file.
func (m *Manager) AllocateNewPage(file storage.File) (base.PageID, *base.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, page, err := file.AllocatePage()
	if err != nil {
		return base.InvalidPageID, nil, fmt.Errorf("allocate page in %s: %w", file.Name(), err)
	}
	frame, err := m.allocBuf()
	if err != nil {
		if derr := file.DeletePage(id); derr != nil {
			err = errors.Join(err, derr)
		}
		return base.InvalidPageID, nil, err
	}
	m.pool[frame] = *page
	m.mapFrame(frameKey{file: file.ID(), page: id}, frame)
	m.descs[frame].set(file, id)
	return id, &m.pool[frame], nil
}

// FlushFile writes back every dirty page of file and frees its frames. It
// fails without touching any frame if one of the file's pages is pinned.
func (m *Manager) FlushFile(file storage.File) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushFile(file)
}

func (m *Manager) flushFile(file storage.File) error {
	fid := file.ID()
	for i := range m.descs {
		d := &m.descs[i]
		if d.file == nil || d.file.ID() != fid {
			continue
		}
		if !d.valid {
			return fmt.Errorf("%w: frame %d is invalid", ErrBadBuffer, i)
		}
		if frame, ok := m.index.lookup(frameKey{file: fid, page: d.pageID}); !ok || frame != FrameID(i) {
			return fmt.Errorf("%w: frame %d holding page %d is not mapped", ErrBadBuffer, i, d.pageID)
		}
		if d.pinCnt > 0 {
			return fmt.Errorf("%w: page %d of %s has %d pins", ErrPagePinned, d.pageID, file.Name(), d.pinCnt)
		}
	}

	for i := range m.descs {
		d := &m.descs[i]
		if d.file == nil || d.file.ID() != fid {
			continue
		}
		if d.dirty {
			if err := file.WritePage(d.pageID, &m.pool[i]); err != nil {
				return fmt.Errorf("write back page %d of %s: %w", d.pageID, file.Name(), err)
			}
			m.writebacks.Add(1)
		}
		m.index.remove(frameKey{file: fid, page: d.pageID})
		d.clear()
	}
	return nil
}

// DisposePage drops the page from the pool, if cached, and deletes it from
// file.
func (m *Manager) DisposePage(file storage.File, id base.PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := frameKey{file: file.ID(), page: id}
	if frame, ok := m.index.lookup(key); ok {
		d := &m.descs[frame]
		if d.pinCnt > 0 {
			return fmt.Errorf("%w: page %d of %s has %d pins", ErrPagePinned, id, file.Name(), d.pinCnt)
		}
		m.index.remove(key)
		d.clear()
	}
	return file.DeletePage(id)
}

// Available returns the number of frames that hold no pin.
func (m *Manager) Available() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for i := range m.descs {
		if m.descs[i].pinCnt == 0 {
			n++
		}
	}
	return n
}

// Frames returns a snapshot of every frame descriptor.
func (m *Manager) Frames() []FrameInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	frames := make([]FrameInfo, len(m.descs))
	for i := range m.descs {
		frames[i] = m.descs[i].info()
	}
	return frames
}

// Dump writes the frame table to w.
func (m *Manager) Dump(w io.Writer) error {
	valid := 0
	for _, f := range m.Frames() {
		if _, err := fmt.Fprintln(w, f); err != nil {
			return err
		}
		if f.Valid {
			valid++
		}
	}
	_, err := fmt.Fprintf(w, "Total Number of Valid Frames:%d\n", valid)
	return err
}

// Close flushes every file that still has pages in the pool. Pinned pages
// are reported and left in place.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files := make(map[uint64]storage.File)
	for i := range m.descs {
		if d := &m.descs[i]; d.valid {
			files[d.file.ID()] = d.file
		}
	}
	var errs []error
	for _, f := range files {
		if err := m.flushFile(f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
