package buffer

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockdb/internal/base"
	"clockdb/storage"
)

func newFile(t *testing.T, name string) *storage.PagedFile {
	t.Helper()

	f, err := storage.Create(filepath.Join(t.TempDir(), name))
	require.NoError(t, err, "Failed to create file")
	t.Cleanup(func() {
		_ = f.Close()
	})
	return f
}

// preallocate adds n pages to the file without going through the pool.
func preallocate(t *testing.T, f storage.File, n int) []base.PageID {
	t.Helper()

	ids := make([]base.PageID, n)
	for i := range ids {
		id, page, err := f.AllocatePage()
		require.NoError(t, err)
		page.PutUint32(0, uint32(id)*10)
		require.NoError(t, f.WritePage(id, page))
		ids[i] = id
	}
	return ids
}

func newManager(t *testing.T, frames int) *Manager {
	t.Helper()

	m, err := New(frames)
	require.NoError(t, err)
	return m
}

func TestNewRejectsInvalidFrames(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	assert.ErrorIs(t, err, ErrInvalidFrames)
	_, err = New(-3)
	assert.ErrorIs(t, err, ErrInvalidFrames)
}

func TestFetchPage(t *testing.T) {
	t.Parallel()

	f := newFile(t, "fetch")
	ids := preallocate(t, f, 2)
	m := newManager(t, 4)

	page, err := m.FetchPage(f, ids[1])
	require.NoError(t, err)
	assert.Equal(t, uint32(ids[1])*10, page.Uint32(0))

	again, err := m.FetchPage(f, ids[1])
	require.NoError(t, err)
	assert.Same(t, page, again, "hit returns the cached frame")

	s := m.Stats()
	assert.Equal(t, uint64(1), s.Hits)
	assert.Equal(t, uint64(1), s.Misses)
	assert.Equal(t, 1, s.Valid)
	assert.Equal(t, 1, s.Pinned)
	assert.InDelta(t, 0.5, s.HitRatio(), 1e-9)

	frames := m.Frames()
	assert.Equal(t, 2, frames[0].PinCnt)
	assert.True(t, frames[0].RefBit)
	assert.Equal(t, ids[1], frames[0].PageID)
}

func TestFetchMissingPage(t *testing.T) {
	t.Parallel()

	f := newFile(t, "missing")
	m := newManager(t, 2)

	_, err := m.FetchPage(f, 9)
	require.ErrorIs(t, err, storage.ErrInvalidPage)
	assert.Equal(t, 2, m.Available())
	assert.Equal(t, 0, m.Stats().Valid)
}

func TestReleasePage(t *testing.T) {
	t.Parallel()

	f := newFile(t, "release")
	ids := preallocate(t, f, 2)
	m := newManager(t, 2)

	_, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	_, err = m.FetchPage(f, ids[0])
	require.NoError(t, err)

	require.NoError(t, m.ReleasePage(f, ids[0], false))
	require.NoError(t, m.ReleasePage(f, ids[0], true))
	assert.ErrorIs(t, m.ReleasePage(f, ids[0], false), ErrPageNotPinned)

	frames := m.Frames()
	assert.Equal(t, 0, frames[0].PinCnt)
	assert.True(t, frames[0].Dirty, "dirty bit sticks after a clean release")

	assert.ErrorIs(t, m.ReleasePage(f, ids[1], false), ErrPageNotPinned, "page not resident")
}

func TestBufferExceeded(t *testing.T) {
	t.Parallel()

	f := newFile(t, "exceeded")
	ids := preallocate(t, f, 3)
	m := newManager(t, 2)

	_, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	_, err = m.FetchPage(f, ids[1])
	require.NoError(t, err)
	assert.Equal(t, 0, m.Available())

	_, err = m.FetchPage(f, ids[2])
	require.ErrorIs(t, err, ErrBufferExceeded)
	_, err = m.AllocateFrame()
	require.ErrorIs(t, err, ErrBufferExceeded)
	assert.Equal(t, uint64(2), m.Stats().Exhausted)

	require.NoError(t, m.ReleasePage(f, ids[0], false))
	page, err := m.FetchPage(f, ids[2])
	require.NoError(t, err)
	assert.Equal(t, uint32(ids[2])*10, page.Uint32(0))
}

func TestAllocateNewPageReturnsPageOnFailure(t *testing.T) {
	t.Parallel()

	f := newFile(t, "alloc")
	m := newManager(t, 1)

	id, page, err := m.AllocateNewPage(f)
	require.NoError(t, err)
	assert.Equal(t, base.PageID(1), id)
	page.PutUint32(0, 77)

	_, _, err = m.AllocateNewPage(f)
	require.ErrorIs(t, err, ErrBufferExceeded)
	assert.Equal(t, 1, f.FreePages(), "page allocated for the failed call is freed")

	require.NoError(t, m.ReleasePage(f, id, true))
	id2, _, err := m.AllocateNewPage(f)
	require.NoError(t, err)
	assert.Equal(t, base.PageID(2), id2, "freed page is reused")

	got, err := f.ReadPage(id)
	require.NoError(t, err)
	assert.Equal(t, uint32(77), got.Uint32(0), "dirty victim written back")
}

func TestDirtyVictimWrittenBack(t *testing.T) {
	t.Parallel()

	f := newFile(t, "victim")
	ids := preallocate(t, f, 2)
	m := newManager(t, 1)

	page, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	page.PutUint64(8, 0xfeed)
	require.NoError(t, m.ReleasePage(f, ids[0], true))

	_, err = m.FetchPage(f, ids[1])
	require.NoError(t, err)

	s := m.Stats()
	assert.Equal(t, uint64(1), s.Evictions)
	assert.Equal(t, uint64(1), s.Writebacks)

	got, err := f.ReadPage(ids[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(0xfeed), got.Uint64(8))
}

func TestCleanVictimNotWritten(t *testing.T) {
	t.Parallel()

	f := newFile(t, "clean")
	ids := preallocate(t, f, 2)
	m := newManager(t, 1)

	page, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	page.PutUint64(8, 0xbad)
	require.NoError(t, m.ReleasePage(f, ids[0], false))

	_, err = m.FetchPage(f, ids[1])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), m.Stats().Writebacks)

	got, err := f.ReadPage(ids[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(0), got.Uint64(8), "unmarked change is dropped")
}

func TestClockSecondChance(t *testing.T) {
	t.Parallel()

	f := newFile(t, "clock")
	p := preallocate(t, f, 5)
	m := newManager(t, 3)

	fetchRelease := func(id base.PageID) {
		_, err := m.FetchPage(f, id)
		require.NoError(t, err)
		require.NoError(t, m.ReleasePage(f, id, false))
	}

	for _, id := range p[:3] {
		fetchRelease(id)
	}
	// Every frame is referenced: one full sweep clears the bits and the
	// hand comes back to frame 0.
	fetchRelease(p[3])
	// Re-reference frame 1 so the next sweep passes it over.
	fetchRelease(p[1])
	fetchRelease(p[4])

	frames := m.Frames()
	assert.Equal(t, p[3], frames[0].PageID)
	assert.Equal(t, p[1], frames[1].PageID)
	assert.Equal(t, p[4], frames[2].PageID)
	assert.False(t, frames[1].RefBit)
	assert.Equal(t, uint64(2), m.Stats().Evictions)
}

func TestPinnedFramesSkipped(t *testing.T) {
	t.Parallel()

	f := newFile(t, "pinned")
	p := preallocate(t, f, 4)
	m := newManager(t, 3)

	for _, id := range p[:3] {
		_, err := m.FetchPage(f, id)
		require.NoError(t, err)
	}
	require.NoError(t, m.ReleasePage(f, p[2], false))

	_, err := m.FetchPage(f, p[3])
	require.NoError(t, err)

	frames := m.Frames()
	assert.Equal(t, p[0], frames[0].PageID)
	assert.Equal(t, p[1], frames[1].PageID)
	assert.Equal(t, p[3], frames[2].PageID)
}

func TestFlushFile(t *testing.T) {
	t.Parallel()

	f := newFile(t, "flush")
	other := newFile(t, "other")
	ids := preallocate(t, f, 2)
	oids := preallocate(t, other, 1)
	m := newManager(t, 4)

	page, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	page.PutUint32(4, 42)
	_, err = m.FetchPage(f, ids[1])
	require.NoError(t, err)
	_, err = m.FetchPage(other, oids[0])
	require.NoError(t, err)

	require.NoError(t, m.ReleasePage(f, ids[0], true))
	require.ErrorIs(t, m.FlushFile(f), ErrPagePinned)
	assert.Equal(t, 3, m.Stats().Valid, "failed flush leaves frames in place")

	require.NoError(t, m.ReleasePage(f, ids[1], false))
	require.NoError(t, m.FlushFile(f))

	s := m.Stats()
	assert.Equal(t, 1, s.Valid, "only the other file's page remains")
	assert.Equal(t, uint64(1), s.Writebacks)

	got, err := f.ReadPage(ids[0])
	require.NoError(t, err)
	assert.Equal(t, uint32(42), got.Uint32(4))

	require.NoError(t, m.ReleasePage(other, oids[0], false))
}

func TestFlushFileBadBuffer(t *testing.T) {
	t.Parallel()

	f := newFile(t, "bad")
	ids := preallocate(t, f, 2)
	m := newManager(t, 2)

	for _, id := range ids {
		_, err := m.FetchPage(f, id)
		require.NoError(t, err)
		require.NoError(t, m.ReleasePage(f, id, false))
	}

	// A frame still tagged to the file but marked invalid.
	frame, ok := m.index.lookup(frameKey{file: f.ID(), page: ids[0]})
	require.True(t, ok)
	m.descs[frame].valid = false
	require.ErrorIs(t, m.FlushFile(f), ErrBadBuffer)
	m.descs[frame].valid = true

	// A valid frame whose mapping is gone.
	frame1, ok := m.index.lookup(frameKey{file: f.ID(), page: ids[1]})
	require.True(t, ok)
	m.index.remove(frameKey{file: f.ID(), page: ids[1]})
	require.ErrorIs(t, m.FlushFile(f), ErrBadBuffer)
	assert.Equal(t, 2, m.Stats().Valid, "failed flush leaves frames in place")

	m.index.insert(frameKey{file: f.ID(), page: ids[1]}, frame1)
	require.NoError(t, m.FlushFile(f))
	assert.Equal(t, 0, m.Stats().Valid)
}

func TestPageIndexReportsEviction(t *testing.T) {
	t.Parallel()

	idx, err := newPageIndex(1)
	require.NoError(t, err)
	capacity := int(indexCapacity(1))

	for i := range capacity {
		assert.False(t, idx.insert(frameKey{file: 1, page: base.PageID(i + 1)}, FrameID(i)))
	}
	idx.remove(frameKey{file: 1, page: 1})
	assert.False(t, idx.insert(frameKey{file: 2, page: 1}, 0), "removal makes room")
	assert.True(t, idx.insert(frameKey{file: 3, page: 1}, 0), "full index drops a mapping")
	assert.Equal(t, capacity, idx.len())
}

func TestSamePageIDAcrossFiles(t *testing.T) {
	t.Parallel()

	a := newFile(t, "a")
	b := newFile(t, "b")
	aid := preallocate(t, a, 1)[0]
	bid := preallocate(t, b, 1)[0]
	require.Equal(t, aid, bid)

	m := newManager(t, 2)
	pa, err := m.FetchPage(a, aid)
	require.NoError(t, err)
	pb, err := m.FetchPage(b, bid)
	require.NoError(t, err)
	assert.NotSame(t, pa, pb)
	assert.Equal(t, uint64(0), m.Stats().Hits)
}

func TestDisposePage(t *testing.T) {
	t.Parallel()

	f := newFile(t, "dispose")
	ids := preallocate(t, f, 2)
	m := newManager(t, 2)

	_, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)
	require.ErrorIs(t, m.DisposePage(f, ids[0]), ErrPagePinned)

	require.NoError(t, m.ReleasePage(f, ids[0], true))
	require.NoError(t, m.DisposePage(f, ids[0]))
	assert.Equal(t, 0, m.Stats().Valid)
	assert.Equal(t, 1, f.FreePages())

	_, err = m.FetchPage(f, ids[0])
	require.ErrorIs(t, err, storage.ErrInvalidPage)

	require.NoError(t, m.DisposePage(f, ids[1]), "non-resident page is deleted from the file")
	assert.Equal(t, 2, f.FreePages())
}

func TestDump(t *testing.T) {
	t.Parallel()

	f := newFile(t, "dump")
	ids := preallocate(t, f, 1)
	m := newManager(t, 2)

	_, err := m.FetchPage(f, ids[0])
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Dump(&buf))
	out := buf.String()
	assert.Contains(t, out, "FrameNo:0 file:"+f.Name()+" pageNo:1 valid:true dirty:false refbit:true pinCnt:1")
	assert.Contains(t, out, "FrameNo:1 valid:false")
	assert.Contains(t, out, "Total Number of Valid Frames:1")
}

func TestCloseFlushesEveryFile(t *testing.T) {
	t.Parallel()

	a := newFile(t, "a")
	b := newFile(t, "b")
	aid := preallocate(t, a, 1)[0]
	bid := preallocate(t, b, 1)[0]
	m := newManager(t, 3)

	for _, tc := range []struct {
		f  storage.File
		id base.PageID
	}{{a, aid}, {b, bid}} {
		page, err := m.FetchPage(tc.f, tc.id)
		require.NoError(t, err)
		page.PutUint32(4, 99)
		require.NoError(t, m.ReleasePage(tc.f, tc.id, true))
	}

	require.NoError(t, m.Close())
	assert.Equal(t, 0, m.Stats().Valid)
	for _, f := range []storage.File{a, b} {
		got, err := f.ReadPage(1)
		require.NoError(t, err)
		assert.Equal(t, uint32(99), got.Uint32(4))
	}
}
