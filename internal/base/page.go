package base

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
)

const (
	PageSize = 4096

	// MagicNumber for file format identification ("clkd" in hex)
	MagicNumber uint32 = 0x636c6b64

	FormatVersion uint16 = 1
)

// PageID identifies a page within one file. Page 0 of every file holds the
// file header, so it doubles as the "no page" marker for sibling and parent
// links.
type PageID uint32

const InvalidPageID PageID = 0

// Valid reports whether id names a data page.
func (id PageID) Valid() bool {
	return id != InvalidPageID
}

// Page is raw disk Page (4096 bytes). Callers impose their own layout on
// top of Data; all multi-byte fields are little-endian.
type Page struct {
	Data [PageSize]byte
}

// Reset zeroes the page contents.
func (p *Page) Reset() {
	clear(p.Data[:])
}

func (p *Page) Uint8(off int) uint8 {
	return p.Data[off]
}

func (p *Page) PutUint8(off int, v uint8) {
	p.Data[off] = v
}

func (p *Page) Uint16(off int) uint16 {
	return binary.LittleEndian.Uint16(p.Data[off:])
}

func (p *Page) PutUint16(off int, v uint16) {
	binary.LittleEndian.PutUint16(p.Data[off:], v)
}

func (p *Page) Uint32(off int) uint32 {
	return binary.LittleEndian.Uint32(p.Data[off:])
}

func (p *Page) PutUint32(off int, v uint32) {
	binary.LittleEndian.PutUint32(p.Data[off:], v)
}

func (p *Page) Uint64(off int) uint64 {
	return binary.LittleEndian.Uint64(p.Data[off:])
}

func (p *Page) PutUint64(off int, v uint64) {
	binary.LittleEndian.PutUint64(p.Data[off:], v)
}

// PageIDAt reads a PageID stored at off.
func (p *Page) PageIDAt(off int) PageID {
	return PageID(p.Uint32(off))
}

// PutPageID stores id at off.
func (p *Page) PutPageID(off int, id PageID) {
	p.PutUint32(off, uint32(id))
}

// Checksum hashes Data[:end] with xxhash. Header layouts keep their checksum
// at or after end so the stored value is not part of its own input.
func (p *Page) Checksum(end int) uint64 {
	return xxhash.Sum64(p.Data[:end])
}
