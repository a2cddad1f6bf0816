package buffer

import (
	"fmt"

	"clockdb/internal/base"
	"clockdb/storage"
)

// FrameID is the index of a frame in the pool.
type FrameID uint32

// frameDesc tracks the state of one frame. Descriptors live as long as the
// Manager and are recycled on eviction.
type frameDesc struct {
	frameNo FrameID
	file    storage.File
	pageID  base.PageID
	pinCnt  int
	dirty   bool
	valid   bool
	refbit  bool
}

// set initializes the descriptor for a freshly loaded page, pinned once.
func (d *frameDesc) set(file storage.File, pageID base.PageID) {
	d.file = file
	d.pageID = pageID
	d.pinCnt = 1
	d.dirty = false
	d.valid = true
	d.refbit = true
}

// clear returns the descriptor to the free state.
func (d *frameDesc) clear() {
	d.file = nil
	d.pageID = base.InvalidPageID
	d.pinCnt = 0
	d.dirty = false
	d.valid = false
	d.refbit = false
}

// FrameInfo is a snapshot of one frame descriptor.
type FrameInfo struct {
	FrameNo FrameID
	File    string
	PageID  base.PageID
	Valid   bool
	Dirty   bool
	RefBit  bool
	PinCnt  int
}

func (f FrameInfo) String() string {
	if !f.Valid {
		return fmt.Sprintf("FrameNo:%d valid:false", f.FrameNo)
	}
	return fmt.Sprintf("FrameNo:%d file:%s pageNo:%d valid:true dirty:%t refbit:%t pinCnt:%d",
		f.FrameNo, f.File, f.PageID, f.Dirty, f.RefBit, f.PinCnt)
}

func (d *frameDesc) info() FrameInfo {
	info := FrameInfo{
		FrameNo: d.frameNo,
		PageID:  d.pageID,
		Valid:   d.valid,
		Dirty:   d.dirty,
		RefBit:  d.refbit,
		PinCnt:  d.pinCnt,
	}
	if d.file != nil {
		info.File = d.file.Name()
	}
	return info
}
