// Package relation stores fixed-size records in a paged file accessed
// through the buffer manager. It is the record source indexes are built from.
package relation

import (
	"errors"
	"fmt"
	"io"

	"clockdb/internal/base"
	"clockdb/storage"
)

var (
	ErrRecordSize      = errors.New("record size mismatch")
	ErrInvalidRecord   = errors.New("invalid record id")
	ErrInvalidRelation = errors.New("invalid relation file")
	ErrRelationClosed  = errors.New("relation is closed")
)

// Meta page layout:
//
//	[Magic: 4][RecordSize: 2][Reserved: 2][Records: 8][LastPage: 4]
//
// Data pages hold [Count: 2][Reserved: 6] followed by fixed-size slots.
const (
	magic uint32 = 0x636b726c

	metaPageID      base.PageID = 1
	firstDataPageID base.PageID = 2

	offMagic      = 0
	offRecordSize = 4
	offRecords    = 8
	offLastPage   = 16

	offCount       = 0
	dataHeaderSize = 8

	// MaxRecordSize is the largest record a data page can hold.
	MaxRecordSize = base.PageSize - dataHeaderSize
)

// Pool is the part of the buffer manager a relation uses.
type Pool interface {
	FetchPage(file storage.File, id base.PageID) (*base.Page, error)
	ReleasePage(file storage.File, id base.PageID, dirty bool) error
	AllocateNewPage(file storage.File) (base.PageID, *base.Page, error)
	FlushFile(file storage.File) error
}

// Relation is a heap of fixed-size records. Records are appended and never
// removed, so data pages are contiguous from page 2 to the last page.
type Relation struct {
	bm         Pool
	file       storage.File
	recordSize int
	perPage    int
	records    uint64
	lastPage   base.PageID
	closed     bool
}

// Create creates a relation file for records of recordSize bytes.
func Create(bm Pool, name string, recordSize int, opts ...storage.Option) (*Relation, error) {
	if recordSize <= 0 || recordSize > MaxRecordSize {
		return nil, fmt.Errorf("%w: %d not in [1, %d]", ErrRecordSize, recordSize, MaxRecordSize)
	}
	file, err := storage.Create(name, opts...)
	if err != nil {
		return nil, err
	}
	r := newRelation(bm, file, recordSize)

	id, _, err := bm.AllocateNewPage(file)
	if err != nil {
		return nil, errors.Join(err, file.Close(), storage.Remove(name))
	}
	if err := bm.ReleasePage(file, id, false); err != nil {
		return nil, errors.Join(err, file.Close(), storage.Remove(name))
	}
	if id != metaPageID {
		return nil, errors.Join(fmt.Errorf("%w: meta page allocated at %d", ErrInvalidRelation, id),
			bm.FlushFile(file), file.Close(), storage.Remove(name))
	}
	if err := r.writeMeta(); err != nil {
		return nil, errors.Join(err, bm.FlushFile(file), file.Close(), storage.Remove(name))
	}
	return r, nil
}

// Open opens an existing relation file.
func Open(bm Pool, name string, opts ...storage.Option) (*Relation, error) {
	file, err := storage.Open(name, opts...)
	if err != nil {
		return nil, err
	}
	page, err := bm.FetchPage(file, metaPageID)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("read relation meta: %w", err), file.Close())
	}
	m, size := page.Uint32(offMagic), int(page.Uint16(offRecordSize))
	records, last := page.Uint64(offRecords), page.PageIDAt(offLastPage)
	if err := bm.ReleasePage(file, metaPageID, false); err != nil {
		return nil, errors.Join(err, file.Close())
	}
	if m != magic || size <= 0 || size > MaxRecordSize {
		return nil, errors.Join(fmt.Errorf("%w: %s", ErrInvalidRelation, name), bm.FlushFile(file), file.Close())
	}

	r := newRelation(bm, file, size)
	r.records = records
	r.lastPage = last
	return r, nil
}

func newRelation(bm Pool, file storage.File, recordSize int) *Relation {
	return &Relation{
		bm:         bm,
		file:       file,
		recordSize: recordSize,
		perPage:    (base.PageSize - dataHeaderSize) / recordSize,
	}
}

func (r *Relation) Name() string { return r.file.Name() }
func (r *Relation) RecordSize() int { return r.recordSize }
func (r *Relation) Len() uint64 { return r.records }
func (r *Relation) File() storage.File { return r.file }

// Insert appends record and returns its id.
func (r *Relation) Insert(record []byte) (base.RecordID, error) {
	if r.closed {
		return base.RecordID{}, ErrRelationClosed
	}
	if len(record) != r.recordSize {
		return base.RecordID{}, fmt.Errorf("%w: got %d bytes, want %d", ErrRecordSize, len(record), r.recordSize)
	}

	var (
		id   = r.lastPage
		page *base.Page
		err  error
	)
	if id.Valid() {
		page, err = r.bm.FetchPage(r.file, id)
		if err != nil {
			return base.RecordID{}, err
		}
		if int(page.Uint16(offCount)) >= r.perPage {
			if err := r.bm.ReleasePage(r.file, id, false); err != nil {
				return base.RecordID{}, err
			}
			page = nil
		}
	}
	if page == nil {
		id, page, err = r.bm.AllocateNewPage(r.file)
		if err != nil {
			return base.RecordID{}, err
		}
		r.lastPage = id
	}

	slot := int(page.Uint16(offCount))
	copy(page.Data[dataHeaderSize+slot*r.recordSize:], record)
	page.PutUint16(offCount, uint16(slot+1))
	if err := r.bm.ReleasePage(r.file, id, true); err != nil {
		return base.RecordID{}, err
	}
	r.records++
	return base.RecordID{PageNumber: id, SlotNumber: uint16(slot)}, nil
}

// Get returns a copy of the record stored at rid.
func (r *Relation) Get(rid base.RecordID) ([]byte, error) {
	if r.closed {
		return nil, ErrRelationClosed
	}
	if rid.PageNumber < firstDataPageID || rid.PageNumber > r.lastPage {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, rid)
	}
	page, err := r.bm.FetchPage(r.file, rid.PageNumber)
	if err != nil {
		return nil, err
	}
	var record []byte
	if int(rid.SlotNumber) < int(page.Uint16(offCount)) {
		off := dataHeaderSize + int(rid.SlotNumber)*r.recordSize
		record = append([]byte(nil), page.Data[off:off+r.recordSize]...)
	}
	if err := r.bm.ReleasePage(r.file, rid.PageNumber, false); err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidRecord, rid)
	}
	return record, nil
}

// Close persists the relation meta page, flushes the file out of the
// buffer pool and closes it.
func (r *Relation) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	return errors.Join(r.writeMeta(), r.bm.FlushFile(r.file), r.file.Close())
}

func (r *Relation) writeMeta() error {
	page, err := r.bm.FetchPage(r.file, metaPageID)
	if err != nil {
		return fmt.Errorf("write relation meta: %w", err)
	}
	page.Reset()
	page.PutUint32(offMagic, magic)
	page.PutUint16(offRecordSize, uint16(r.recordSize))
	page.PutUint64(offRecords, r.records)
	page.PutPageID(offLastPage, r.lastPage)
	return r.bm.ReleasePage(r.file, metaPageID, true)
}

// Scanner reads the records of a relation in storage order. Each data page
// is copied out of the pool, so a scanner holds no pin between calls.
type Scanner struct {
	rel    *Relation
	page   base.Page
	pageID base.PageID
	count  int
	slot   int
}

// NewScanner returns a scanner positioned before the first record.
func (r *Relation) NewScanner() *Scanner {
	return &Scanner{rel: r, pageID: firstDataPageID - 1}
}

// Next returns the next record and its id, or io.EOF after the last one.
func (s *Scanner) Next() (base.RecordID, []byte, error) {
	r := s.rel
	if r.closed {
		return base.RecordID{}, nil, ErrRelationClosed
	}
	for s.slot >= s.count {
		if s.pageID >= r.lastPage {
			return base.RecordID{}, nil, io.EOF
		}
		s.pageID++
		page, err := r.bm.FetchPage(r.file, s.pageID)
		if err != nil {
			return base.RecordID{}, nil, err
		}
		s.page = *page
		if err := r.bm.ReleasePage(r.file, s.pageID, false); err != nil {
			return base.RecordID{}, nil, err
		}
		s.count = int(s.page.Uint16(offCount))
		s.slot = 0
	}

	off := dataHeaderSize + s.slot*r.recordSize
	record := append([]byte(nil), s.page.Data[off:off+r.recordSize]...)
	rid := base.RecordID{PageNumber: s.pageID, SlotNumber: uint16(s.slot)}
	s.slot++
	return rid, record, nil
}
