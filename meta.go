package clockdb

import (
	"fmt"

	"clockdb/internal/base"
)

// Meta page layout (first page after the file header):
//
//	[Magic: 4][Version: 2][KeyType: 1][Reserved: 1][KeyOffset: 4][Root: 4]
//	[Leaves: 4][Internals: 4][LeafCap: 2][NodeCap: 2][NameLen: 2][Reserved: 2]
//	[RelationName: NameLen] ... [Checksum: 8 at PageSize-8]
const (
	metaMagic   uint32 = 0x636b6978
	metaVersion uint16 = 1

	metaOffMagic     = 0
	metaOffVersion   = 4
	metaOffKeyType   = 6
	metaOffKeyOffset = 8
	metaOffRoot      = 12
	metaOffLeaves    = 16
	metaOffInternals = 20
	metaOffLeafCap   = 24
	metaOffNodeCap   = 26
	metaOffNameLen   = 28
	metaOffName      = 32
	metaOffChecksum  = base.PageSize - 8

	maxRelationName = metaOffChecksum - metaOffName
)

// meta describes the index and its current shape. leaves is nonzero once the
// tree holds any entry; internals is nonzero once the root is an internal node.
type meta struct {
	relationName string
	keyOffset    int
	keyType      Datatype
	root         base.PageID
	leaves       uint32
	internals    uint32
	leafCapacity int
	nodeCapacity int
}

func (m *meta) encode(p *base.Page) {
	p.Reset()
	p.PutUint32(metaOffMagic, metaMagic)
	p.PutUint16(metaOffVersion, metaVersion)
	p.PutUint8(metaOffKeyType, uint8(m.keyType))
	p.PutUint32(metaOffKeyOffset, uint32(m.keyOffset))
	p.PutPageID(metaOffRoot, m.root)
	p.PutUint32(metaOffLeaves, m.leaves)
	p.PutUint32(metaOffInternals, m.internals)
	p.PutUint16(metaOffLeafCap, uint16(m.leafCapacity))
	p.PutUint16(metaOffNodeCap, uint16(m.nodeCapacity))
	p.PutUint16(metaOffNameLen, uint16(len(m.relationName)))
	copy(p.Data[metaOffName:], m.relationName)
	p.PutUint64(metaOffChecksum, p.Checksum(metaOffChecksum))
}

func decodeMeta(p *base.Page) (meta, error) {
	if p.Uint32(metaOffMagic) != metaMagic {
		return meta{}, base.ErrInvalidMagicNumber
	}
	if p.Uint16(metaOffVersion) != metaVersion {
		return meta{}, base.ErrInvalidVersion
	}
	if p.Uint64(metaOffChecksum) != p.Checksum(metaOffChecksum) {
		return meta{}, base.ErrInvalidChecksum
	}
	nameLen := int(p.Uint16(metaOffNameLen))
	if nameLen > maxRelationName {
		return meta{}, fmt.Errorf("%w: relation name length %d", ErrCorruption, nameLen)
	}
	m := meta{
		relationName: string(p.Data[metaOffName : metaOffName+nameLen]),
		keyOffset:    int(p.Uint32(metaOffKeyOffset)),
		keyType:      Datatype(p.Uint8(metaOffKeyType)),
		root:         p.PageIDAt(metaOffRoot),
		leaves:       p.Uint32(metaOffLeaves),
		internals:    p.Uint32(metaOffInternals),
		leafCapacity: int(p.Uint16(metaOffLeafCap)),
		nodeCapacity: int(p.Uint16(metaOffNodeCap)),
	}
	if err := checkCapacities(m.leafCapacity, m.nodeCapacity); err != nil {
		return meta{}, fmt.Errorf("%w: %w", ErrCorruption, err)
	}
	return m, nil
}

func checkCapacities(leaf, node int) error {
	if leaf < minCapacity || leaf > MaxLeafCapacity {
		return fmt.Errorf("%w: leaf capacity %d not in [%d, %d]", ErrInvalidCapacity, leaf, minCapacity, MaxLeafCapacity)
	}
	if node < minCapacity || node > MaxNodeCapacity {
		return fmt.Errorf("%w: node capacity %d not in [%d, %d]", ErrInvalidCapacity, node, minCapacity, MaxNodeCapacity)
	}
	return nil
}
