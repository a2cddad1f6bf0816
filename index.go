package clockdb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"clockdb/internal/base"
	"clockdb/storage"
)

// metaPageID is the first page allocated in a new index file.
const metaPageID base.PageID = 1

// Index is a B+Tree over the integer attribute found at a fixed offset of
// every record in a relation. Nodes live in pages of the index file and are
// only accessed through the buffer pool.
//
// An Index is not safe for concurrent use.
type Index struct {
	bm     BufferPool
	file   storage.File
	name   string
	meta   meta
	logger Logger
	scan   scanState
	closed bool
}

// IndexName returns the file name of the index on keyOffset of relationName.
func IndexName(relationName string, keyOffset int) string {
	return relationName + "." + strconv.Itoa(keyOffset)
}

// Open opens the index on keyOffset of relationName, creating and building it
// from src when the index file does not exist yet. An existing index must
// have been built for the same relation, offset and key type.
func Open(bm BufferPool, relationName string, keyOffset int, keyType Datatype, src RecordSource, options ...IndexOption) (*Index, error) {
	opts := defaultIndexOptions()
	for _, opt := range options {
		opt(&opts)
	}

	if keyType != Integer {
		return nil, fmt.Errorf("%w: key type %s is not supported", ErrBadIndexInfo, keyType)
	}
	if keyOffset < 0 {
		return nil, fmt.Errorf("%w: negative key offset %d", ErrBadIndexInfo, keyOffset)
	}
	if len(relationName) > maxRelationName {
		return nil, fmt.Errorf("%w: relation name longer than %d bytes", ErrBadIndexInfo, maxRelationName)
	}

	name := IndexName(relationName, keyOffset)
	if storage.Exists(name) {
		return openExisting(bm, name, relationName, keyOffset, keyType, opts)
	}

	if err := checkCapacities(opts.leafCapacity, opts.nodeCapacity); err != nil {
		return nil, err
	}
	file, err := storage.Create(name, opts.storageOpts...)
	if err != nil {
		return nil, err
	}
	ix := &Index{
		bm:     bm,
		file:   file,
		name:   name,
		logger: opts.logger,
		meta: meta{
			relationName: relationName,
			keyOffset:    keyOffset,
			keyType:      keyType,
			leafCapacity: opts.leafCapacity,
			nodeCapacity: opts.nodeCapacity,
		},
	}

	id, page, err := bm.AllocateNewPage(file)
	if err != nil {
		return nil, errors.Join(err, file.Close(), storage.Remove(name))
	}
	if id != metaPageID {
		err = fmt.Errorf("%w: meta page allocated at %d", ErrCorruption, id)
	} else {
		ix.meta.encode(page)
	}
	if rerr := bm.ReleasePage(file, id, true); rerr != nil {
		err = errors.Join(err, rerr)
	}
	if err != nil {
		return nil, errors.Join(err, ix.discard())
	}

	if src != nil {
		if err := ix.Build(src); err != nil {
			opts.logger.Error("index build failed", "name", name, "error", err)
			return nil, errors.Join(err, ix.discard())
		}
	}
	return ix, nil
}

func openExisting(bm BufferPool, name, relationName string, keyOffset int, keyType Datatype, opts IndexOptions) (*Index, error) {
	file, err := storage.Open(name, opts.storageOpts...)
	if err != nil {
		return nil, err
	}
	page, err := bm.FetchPage(file, metaPageID)
	if err != nil {
		return nil, errors.Join(fmt.Errorf("read index meta: %w", err), file.Close())
	}
	m, err := decodeMeta(page)
	if rerr := bm.ReleasePage(file, metaPageID, false); rerr != nil {
		err = errors.Join(err, rerr)
	}
	if err == nil && (m.relationName != relationName || m.keyOffset != keyOffset || m.keyType != keyType) {
		err = fmt.Errorf("%w: %s was built on %s offset %d type %s",
			ErrBadIndexInfo, name, m.relationName, m.keyOffset, m.keyType)
	}
	if err != nil {
		return nil, errors.Join(err, bm.FlushFile(file), file.Close())
	}

	opts.logger.Info("opened index", "name", name, "leaves", m.leaves, "internals", m.internals)
	return &Index{
		bm:     bm,
		file:   file,
		name:   name,
		meta:   m,
		logger: opts.logger,
	}, nil
}

// Build inserts the key of every record produced by src.
func (ix *Index) Build(src RecordSource) error {
	if ix.closed {
		return ErrIndexClosed
	}
	off := ix.meta.keyOffset
	n := 0
	for {
		rid, record, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read relation %s: %w", ix.meta.relationName, err)
		}
		if len(record) < off+4 {
			return fmt.Errorf("%w: record %s has %d bytes, key at offset %d", ErrBadRecord, rid, len(record), off)
		}
		key := Key(int32(binary.LittleEndian.Uint32(record[off:])))
		if err := ix.InsertEntry(key, rid); err != nil {
			return fmt.Errorf("insert record %s: %w", rid, err)
		}
		n++
	}
	ix.logger.Info("built index", "name", ix.name, "records", n,
		"leaves", ix.meta.leaves, "internals", ix.meta.internals)
	return nil
}

// Name returns the index file name.
func (ix *Index) Name() string {
	return ix.name
}

// File returns the index file.
func (ix *Index) File() storage.File {
	return ix.file
}

// IndexStats describes the shape of the tree.
type IndexStats struct {
	Root         PageID
	Leaves       uint32
	Internals    uint32
	LeafCapacity int
	NodeCapacity int
}

func (ix *Index) Stats() IndexStats {
	return IndexStats{
		Root:         ix.meta.root,
		Leaves:       ix.meta.leaves,
		Internals:    ix.meta.internals,
		LeafCapacity: ix.meta.leafCapacity,
		NodeCapacity: ix.meta.nodeCapacity,
	}
}

// Close ends any active scan, persists the meta page, flushes the index
// file out of the buffer pool and closes it.
func (ix *Index) Close() error {
	if ix.closed {
		return nil
	}
	ix.closed = true

	var errs []error
	if ix.scan.active {
		errs = append(errs, ix.EndScan())
	}
	errs = append(errs, ix.writeMeta(), ix.bm.FlushFile(ix.file), ix.file.Close())
	return errors.Join(errs...)
}

func (ix *Index) writeMeta() error {
	page, err := ix.fetch(metaPageID)
	if err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}
	ix.meta.encode(page)
	return ix.release(metaPageID, true)
}

// discard drops a partially created index and its file.
func (ix *Index) discard() error {
	ix.closed = true
	return errors.Join(ix.bm.FlushFile(ix.file), ix.file.Close(), storage.Remove(ix.name))
}

func (ix *Index) fetch(id base.PageID) (*base.Page, error) {
	return ix.bm.FetchPage(ix.file, id)
}

func (ix *Index) release(id base.PageID, dirty bool) error {
	return ix.bm.ReleasePage(ix.file, id, dirty)
}
