package buffer

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/elastic/go-freelru"

	"clockdb/internal/base"
)

// frameKey identifies a cached page across files.
type frameKey struct {
	file uint64
	page base.PageID
}

func hashFrameKey(k frameKey) uint32 {
	var b [12]byte
	binary.LittleEndian.PutUint64(b[:8], k.file)
	binary.LittleEndian.PutUint32(b[8:], uint32(k.page))
	return uint32(xxhash.Sum64(b[:]))
}

// pageIndex maps (file, page) to the frame caching it. An entry exists if
// and only if that frame is valid and holds exactly that page.
//
// Capacity is sized above the frame count, so the LRU never reaches its
// limit and never drops a live mapping on its own. No eviction callback is
// installed: freelru invokes it on explicit removals as well.
type pageIndex struct {
	lru *freelru.LRU[frameKey, FrameID]
}

func indexCapacity(numFrames int) uint32 {
	return uint32(numFrames*6/5) + 1
}

func newPageIndex(numFrames int) (*pageIndex, error) {
	lru, err := freelru.New[frameKey, FrameID](indexCapacity(numFrames), hashFrameKey)
	if err != nil {
		return nil, err
	}
	return &pageIndex{lru: lru}, nil
}

func (p *pageIndex) lookup(k frameKey) (FrameID, bool) {
	return p.lru.Get(k)
}

// insert maps k to frame. It reports whether the LRU had to drop another
// mapping to make room.
func (p *pageIndex) insert(k frameKey, frame FrameID) (evicted bool) {
	return p.lru.Add(k, frame)
}

func (p *pageIndex) remove(k frameKey) {
	p.lru.Remove(k)
}

func (p *pageIndex) len() int {
	return p.lru.Len()
}
