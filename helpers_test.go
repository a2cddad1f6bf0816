package clockdb

import (
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"clockdb/buffer"
	"clockdb/internal/base"
)

func newPool(t *testing.T, frames int) *buffer.Manager {
	t.Helper()

	bm, err := buffer.New(frames)
	require.NoError(t, err)
	return bm
}

// newIndex creates an empty index on a relation that has no records.
func newIndex(t *testing.T, bm BufferPool, opts ...IndexOption) *Index {
	t.Helper()

	ix, err := Open(bm, filepath.Join(t.TempDir(), "rel"), 0, Integer, nil, opts...)
	require.NoError(t, err, "Failed to open index")
	t.Cleanup(func() {
		_ = ix.Close()
	})
	return ix
}

// ridFor derives a distinct record id from a key so results can be mapped
// back to keys.
func ridFor(k Key) RecordID {
	u := uint32(k) + 1<<31
	return RecordID{PageNumber: base.PageID(u>>8 + 1), SlotNumber: uint16(u & 0xff)}
}

func keyOf(rid RecordID) Key {
	return Key(int32((uint32(rid.PageNumber)-1)<<8 | uint32(rid.SlotNumber) - 1<<31))
}

func insertKeys(t *testing.T, ix *Index, keys ...Key) {
	t.Helper()

	for _, k := range keys {
		require.NoError(t, ix.InsertEntry(k, ridFor(k)), "insert %d", k)
	}
}

func scanKeys(t *testing.T, ix *Index, low Key, lowOp Operator, high Key, highOp Operator) []Key {
	t.Helper()

	rids, err := ix.Scan(low, lowOp, high, highOp)
	require.NoError(t, err)
	keys := make([]Key, len(rids))
	for i, rid := range rids {
		keys[i] = keyOf(rid)
	}
	return keys
}

func keyRange(lo, hi int) []Key {
	keys := make([]Key, 0, hi-lo)
	for k := lo; k < hi; k++ {
		keys = append(keys, Key(k))
	}
	return keys
}

// checkTree walks the whole tree and verifies parent links, level flags,
// separator keys and the leaf chain. It returns the keys in chain order.
func checkTree(t *testing.T, ix *Index) []Key {
	t.Helper()

	if ix.meta.leaves == 0 {
		return nil
	}
	c := &treeChecker{t: t, ix: ix}
	c.node(ix.meta.root, base.InvalidPageID)
	require.Equal(t, ix.meta.leaves, c.leaves, "leaf counter")
	require.Equal(t, ix.meta.internals, c.internals, "internal counter")

	var keys []Key
	for id := c.leftmost; id.Valid(); {
		page, err := ix.fetch(id)
		require.NoError(t, err)
		leaf, err := decodeLeaf(id, page, ix.meta.leafCapacity)
		require.NoError(t, err)
		require.NoError(t, ix.release(id, false))
		for _, e := range leaf.entries.items {
			keys = append(keys, e.key)
		}
		id = leaf.right
	}
	require.True(t, slices.IsSorted(keys), "leaf chain is sorted")
	return keys
}

type treeChecker struct {
	t         *testing.T
	ix        *Index
	leaves    uint32
	internals uint32
	leftmost  base.PageID
}

// node checks the subtree at id and returns its smallest key and whether it
// is a leaf.
func (c *treeChecker) node(id, parent base.PageID) (Key, bool) {
	t := c.t
	page, err := c.ix.fetch(id)
	require.NoError(t, err)
	typ, _, gotParent := nodeHeader(page)
	require.Equal(t, parent, gotParent, "parent of %d", id)

	if typ == pageTypeLeaf {
		leaf, err := decodeLeaf(id, page, c.ix.meta.leafCapacity)
		require.NoError(t, err)
		require.NoError(t, c.ix.release(id, false))
		require.NotZero(t, leaf.entries.len(), "leaf %d is empty", id)
		if !c.leftmost.Valid() {
			c.leftmost = id
		}
		c.leaves++
		return leaf.entries.at(0).key, true
	}

	n, err := decodeInternal(id, page, c.ix.meta.nodeCapacity)
	require.NoError(t, err)
	require.NoError(t, c.ix.release(id, false))
	require.Equal(t, n.keys.len()+1, n.children.len(), "node %d shape", id)
	require.True(t, slices.IsSorted(n.keys.items), "node %d keys sorted", id)
	c.internals++

	var first Key
	for i, child := range n.children.items {
		minKey, isLeaf := c.node(child, id)
		require.Equal(t, n.leafChildren, isLeaf, "level flag of %d", id)
		if i == 0 {
			first = minKey
		} else {
			require.Equal(t, n.keys.at(i-1), minKey, "separator %d of node %d", i-1, id)
		}
	}
	return first, false
}
