package clockdb

import (
	"fmt"
	"slices"

	"clockdb/internal/base"
)

// Node page layout, shared header:
//
//	[Type: 1][Level: 1][Count: 2][Parent: 4][RightSibling: 4][Reserved: 4]
//
// Leaf entries follow as [Key: 4][RID page: 4][RID slot: 2][pad: 2].
// Internal nodes store keys from offset 16 and children from a fixed offset
// sized for the largest capacity, so the layout does not depend on options.
const (
	pageTypeLeaf     uint8 = 1
	pageTypeInternal uint8 = 2

	offType   = 0
	offLevel  = 1
	offCount  = 2
	offParent = 4
	offRight  = 8

	nodeHeaderSize = 16
	leafEntrySize  = 12

	// MaxLeafCapacity is the number of entries that fit a leaf page.
	MaxLeafCapacity = (base.PageSize - nodeHeaderSize) / leafEntrySize
	// MaxNodeCapacity is the number of separator keys that fit an internal page.
	MaxNodeCapacity = (base.PageSize - nodeHeaderSize - 4) / 8

	minCapacity = 3

	offChildren = nodeHeaderSize + 4*MaxNodeCapacity
)

// midpoint is the split index for a full node of the given capacity.
func midpoint(capacity int) int {
	if capacity%2 == 0 {
		return capacity/2 - 1
	}
	return capacity / 2
}

// bounded is a sequence that never grows past limit.
type bounded[T any] struct {
	items []T
	limit int
}

func newBounded[T any](limit int, items ...T) bounded[T] {
	b := bounded[T]{items: make([]T, 0, limit), limit: limit}
	b.items = append(b.items, items...)
	return b
}

func (b *bounded[T]) len() int { return len(b.items) }
func (b *bounded[T]) full() bool { return len(b.items) >= b.limit }
func (b *bounded[T]) at(i int) T { return b.items[i] }

// insertAt shifts items[i:] right by one and stores v at i.
func (b *bounded[T]) insertAt(i int, v T) {
	if b.full() {
		panic(fmt.Sprintf("bounded: insert into full sequence of %d", b.limit))
	}
	b.items = slices.Insert(b.items, i, v)
}

// removeAt removes items[i] and shifts the tail left by one.
func (b *bounded[T]) removeAt(i int) T {
	v := b.items[i]
	b.items = slices.Delete(b.items, i, i+1)
	return v
}

// splitOff removes items[i:] and returns them as a new sequence with the
// same limit.
func (b *bounded[T]) splitOff(i int) bounded[T] {
	tail := newBounded(b.limit, b.items[i:]...)
	clear(b.items[i:])
	b.items = b.items[:i]
	return tail
}

type leafEntry struct {
	key Key
	rid RecordID
}

type leafNode struct {
	id      base.PageID
	parent  base.PageID
	right   base.PageID
	entries bounded[leafEntry]
}

func newLeaf(id base.PageID, capacity int) *leafNode {
	return &leafNode{id: id, entries: newBounded[leafEntry](capacity)}
}

// lowerBound returns the first position whose key is not less than key.
func (n *leafNode) lowerBound(key Key) int {
	i, _ := slices.BinarySearchFunc(n.entries.items, key, func(e leafEntry, k Key) int {
		if e.key < k {
			return -1
		}
		return 1
	})
	return i
}

func (n *leafNode) insert(key Key, rid RecordID) {
	n.entries.insertAt(n.lowerBound(key), leafEntry{key: key, rid: rid})
}

func decodeLeaf(id base.PageID, p *base.Page, capacity int) (*leafNode, error) {
	if t := p.Uint8(offType); t != pageTypeLeaf {
		return nil, fmt.Errorf("%w: page %d has type %d, want leaf", ErrCorruption, id, t)
	}
	count := int(p.Uint16(offCount))
	if count > capacity {
		return nil, fmt.Errorf("%w: leaf %d holds %d entries, capacity %d", ErrCorruption, id, count, capacity)
	}
	n := newLeaf(id, capacity)
	n.parent = p.PageIDAt(offParent)
	n.right = p.PageIDAt(offRight)
	for i := 0; i < count; i++ {
		off := nodeHeaderSize + i*leafEntrySize
		n.entries.items = append(n.entries.items, leafEntry{
			key: Key(int32(p.Uint32(off))),
			rid: RecordID{
				PageNumber: p.PageIDAt(off + 4),
				SlotNumber: p.Uint16(off + 8),
			},
		})
	}
	return n, nil
}

func (n *leafNode) encode(p *base.Page) {
	p.Reset()
	p.PutUint8(offType, pageTypeLeaf)
	p.PutUint16(offCount, uint16(n.entries.len()))
	p.PutPageID(offParent, n.parent)
	p.PutPageID(offRight, n.right)
	for i, e := range n.entries.items {
		off := nodeHeaderSize + i*leafEntrySize
		p.PutUint32(off, uint32(e.key))
		p.PutPageID(off+4, e.rid.PageNumber)
		p.PutUint16(off+8, e.rid.SlotNumber)
	}
}

type internalNode struct {
	id     base.PageID
	parent base.PageID
	// leafChildren is set when the children are leaves.
	leafChildren bool
	keys         bounded[Key]
	children     bounded[base.PageID]
}

func newInternal(id base.PageID, capacity int) *internalNode {
	return &internalNode{
		id:       id,
		keys:     newBounded[Key](capacity),
		children: newBounded[base.PageID](capacity + 1),
	}
}

// childFor returns the position of the child to descend into for key: the
// first separator strictly greater than key, so ties go right.
func (n *internalNode) childFor(key Key) int {
	i, _ := slices.BinarySearchFunc(n.keys.items, key, func(sep Key, k Key) int {
		if sep <= k {
			return -1
		}
		return 1
	})
	return i
}

func decodeInternal(id base.PageID, p *base.Page, capacity int) (*internalNode, error) {
	if t := p.Uint8(offType); t != pageTypeInternal {
		return nil, fmt.Errorf("%w: page %d has type %d, want internal", ErrCorruption, id, t)
	}
	count := int(p.Uint16(offCount))
	if count > capacity {
		return nil, fmt.Errorf("%w: node %d holds %d keys, capacity %d", ErrCorruption, id, count, capacity)
	}
	n := newInternal(id, capacity)
	n.parent = p.PageIDAt(offParent)
	n.leafChildren = p.Uint8(offLevel) == 1
	for i := 0; i < count; i++ {
		n.keys.items = append(n.keys.items, Key(int32(p.Uint32(nodeHeaderSize+4*i))))
	}
	if count > 0 {
		for i := 0; i <= count; i++ {
			n.children.items = append(n.children.items, p.PageIDAt(offChildren+4*i))
		}
	}
	return n, nil
}

func (n *internalNode) encode(p *base.Page) {
	p.Reset()
	p.PutUint8(offType, pageTypeInternal)
	if n.leafChildren {
		p.PutUint8(offLevel, 1)
	}
	p.PutUint16(offCount, uint16(n.keys.len()))
	p.PutPageID(offParent, n.parent)
	for i, k := range n.keys.items {
		p.PutUint32(nodeHeaderSize+4*i, uint32(k))
	}
	for i, c := range n.children.items {
		p.PutPageID(offChildren+4*i, c)
	}
}

// nodeHeader reads the fields common to both node types.
func nodeHeader(p *base.Page) (typ uint8, count int, parent base.PageID) {
	return p.Uint8(offType), int(p.Uint16(offCount)), p.PageIDAt(offParent)
}

// Leaf accessors used by the scan cursor, which reads the pinned page in
// place instead of decoding it.

func leafCount(p *base.Page) int { return int(p.Uint16(offCount)) }

func leafRight(p *base.Page) base.PageID { return p.PageIDAt(offRight) }

func leafKey(p *base.Page, i int) Key {
	return Key(int32(p.Uint32(nodeHeaderSize + i*leafEntrySize)))
}

func leafRID(p *base.Page, i int) RecordID {
	off := nodeHeaderSize + i*leafEntrySize
	return RecordID{PageNumber: p.PageIDAt(off + 4), SlotNumber: p.Uint16(off + 8)}
}

// childForLow returns the position of the first separator not less than
// key, so a range starting at key also visits equal keys left of a split.
func (n *internalNode) childForLow(key Key) int {
	i, _ := slices.BinarySearchFunc(n.keys.items, key, func(sep Key, k Key) int {
		if sep < k {
			return -1
		}
		return 1
	})
	return i
}
