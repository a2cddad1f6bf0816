package clockdb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clockdb/internal/base"
)

func TestBounded(t *testing.T) {
	t.Parallel()

	b := newBounded(4, 10, 30)
	b.insertAt(1, 20)
	b.insertAt(3, 40)
	assert.Equal(t, []int{10, 20, 30, 40}, b.items)
	assert.True(t, b.full())
	assert.Panics(t, func() { b.insertAt(0, 5) })

	tail := b.splitOff(2)
	assert.Equal(t, []int{10, 20}, b.items)
	assert.Equal(t, []int{30, 40}, tail.items)
	assert.Equal(t, 4, tail.limit)

	assert.Equal(t, 30, tail.removeAt(0))
	assert.Equal(t, []int{40}, tail.items)
}

func TestChildFor(t *testing.T) {
	t.Parallel()

	n := newInternal(1, 4)
	n.keys = newBounded[Key](4, 10, 20, 30)

	for _, tc := range []struct {
		key       Key
		right, lo int
	}{
		{5, 0, 0},
		{10, 1, 0},
		{15, 1, 1},
		{20, 2, 1},
		{30, 3, 2},
		{99, 3, 3},
	} {
		assert.Equal(t, tc.right, n.childFor(tc.key), "ties go right for %d", tc.key)
		assert.Equal(t, tc.lo, n.childForLow(tc.key), "ties go left for %d", tc.key)
	}
}

func TestNodeEncoding(t *testing.T) {
	t.Parallel()

	var p base.Page

	leaf := newLeaf(3, MaxLeafCapacity)
	leaf.parent, leaf.right = 7, 9
	for i := range MaxLeafCapacity {
		leaf.insert(Key(MaxLeafCapacity-i)*-1, RecordID{PageNumber: base.PageID(i + 2), SlotNumber: uint16(i)})
	}
	leaf.encode(&p)
	got, err := decodeLeaf(3, &p, MaxLeafCapacity)
	require.NoError(t, err)
	assert.Equal(t, leaf, got)
	assert.Equal(t, MaxLeafCapacity, leafCount(&p))
	assert.Equal(t, Key(-MaxLeafCapacity), leafKey(&p, 0))
	assert.Equal(t, base.PageID(9), leafRight(&p))

	_, err = decodeInternal(3, &p, MaxNodeCapacity)
	assert.ErrorIs(t, err, ErrCorruption, "leaf page is not an internal node")
	_, err = decodeLeaf(3, &p, 10)
	assert.ErrorIs(t, err, ErrCorruption, "count above capacity")

	node := newInternal(4, MaxNodeCapacity)
	node.parent, node.leafChildren = 8, true
	node.children.items = append(node.children.items, 100)
	for i := range MaxNodeCapacity {
		node.keys.items = append(node.keys.items, Key(i*3))
		node.children.items = append(node.children.items, base.PageID(101+i))
	}
	node.encode(&p)
	gotNode, err := decodeInternal(4, &p, MaxNodeCapacity)
	require.NoError(t, err)
	assert.Equal(t, node, gotNode)
	typ, count, parent := nodeHeader(&p)
	assert.Equal(t, pageTypeInternal, typ)
	assert.Equal(t, MaxNodeCapacity, count)
	assert.Equal(t, base.PageID(8), parent)
}

func TestMetaEncoding(t *testing.T) {
	t.Parallel()

	var p base.Page
	m := meta{
		relationName: "relA",
		keyOffset:    16,
		keyType:      Integer,
		root:         12,
		leaves:       30,
		internals:    2,
		leafCapacity: 100,
		nodeCapacity: 50,
	}
	m.encode(&p)
	got, err := decodeMeta(&p)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	p.PutUint32(metaOffRoot, 13)
	_, err = decodeMeta(&p)
	assert.ErrorIs(t, err, base.ErrInvalidChecksum)

	p.PutUint32(metaOffMagic, 0)
	_, err = decodeMeta(&p)
	assert.ErrorIs(t, err, base.ErrInvalidMagicNumber)
}
