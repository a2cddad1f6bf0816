package clockdb

import (
	"errors"
	"fmt"
	"slices"

	"clockdb/internal/base"
)

// splitPins is the largest number of pages an insertion keeps pinned at
// once while splitting: the node being split and its new right sibling.
const splitPins = 2

// InsertEntry adds (key, rid) to the tree. Either the insertion completes or
// the tree is left as it was: pages needed by splits are reserved and buffer
// headroom is checked before any node is modified.
func (ix *Index) InsertEntry(key Key, rid RecordID) error {
	if ix.closed {
		return ErrIndexClosed
	}
	if ix.meta.leaves == 0 {
		return ix.insertFirst(key, rid)
	}

	leafID, err := ix.searchForLeaf(key, false)
	if err != nil {
		return err
	}
	need, err := ix.planInsert(leafID)
	if err != nil {
		return err
	}
	if need == 0 {
		return ix.insertToLeaf(leafID, key, rid, nil)
	}

	if avail := ix.bm.Available(); avail < splitPins {
		return fmt.Errorf("%w: split needs %d unpinned frames, %d available", ErrBufferExceeded, splitPins, avail)
	}
	res, err := ix.reserve(need)
	if err != nil {
		return err
	}
	if err := ix.insertToLeaf(leafID, key, rid, res); err != nil {
		ix.logger.Error("insert failed during split", "key", key, "error", err)
		return err
	}
	if len(*res) > 0 {
		ix.logger.Warn("unused split reservation", "pages", len(*res))
		return ix.dispose(*res)
	}
	return nil
}

func (ix *Index) insertFirst(key Key, rid RecordID) error {
	id, page, err := ix.bm.AllocateNewPage(ix.file)
	if err != nil {
		return err
	}
	leaf := newLeaf(id, ix.meta.leafCapacity)
	leaf.insert(key, rid)
	leaf.encode(page)
	if err := ix.release(id, true); err != nil {
		return err
	}
	ix.meta.root = id
	ix.meta.leaves = 1
	return nil
}

// searchForLeaf descends from the root to the leaf that should hold key.
// Ties on a separator go right unless tiesLeft is set. The returned leaf is
// not fetched.
func (ix *Index) searchForLeaf(key Key, tiesLeft bool) (base.PageID, error) {
	if ix.meta.leaves == 0 {
		return base.InvalidPageID, ErrNoSuchKey
	}
	if ix.meta.internals == 0 {
		return ix.meta.root, nil
	}

	id := ix.meta.root
	for {
		page, err := ix.fetch(id)
		if err != nil {
			return base.InvalidPageID, err
		}
		n, err := decodeInternal(id, page, ix.meta.nodeCapacity)
		if rerr := ix.release(id, false); rerr != nil {
			err = errors.Join(err, rerr)
		}
		if err != nil {
			return base.InvalidPageID, err
		}
		if n.keys.len() == 0 {
			return base.InvalidPageID, fmt.Errorf("%w: empty internal node %d", ErrCorruption, id)
		}

		pos := n.childFor(key)
		if tiesLeft {
			pos = n.childForLow(key)
		}
		child := n.children.at(pos)
		if n.leafChildren {
			return child, nil
		}
		id = child
	}
}

// planInsert returns the number of new pages inserting into leafID needs:
// one per full node from the leaf upward, plus a new root when every node
// on the path is full.
func (ix *Index) planInsert(leafID base.PageID) (int, error) {
	page, err := ix.fetch(leafID)
	if err != nil {
		return 0, err
	}
	_, count, parent := nodeHeader(page)
	if err := ix.release(leafID, false); err != nil {
		return 0, err
	}
	if count < ix.meta.leafCapacity {
		return 0, nil
	}

	pages := 1
	for parent.Valid() {
		id := parent
		page, err := ix.fetch(id)
		if err != nil {
			return 0, err
		}
		_, count, parent = nodeHeader(page)
		if err := ix.release(id, false); err != nil {
			return 0, err
		}
		if count < ix.meta.nodeCapacity {
			return pages, nil
		}
		pages++
	}
	return pages + 1, nil
}

// reservation holds pages allocated ahead of a split.
type reservation []base.PageID

func (r *reservation) take() (base.PageID, error) {
	if r == nil || len(*r) == 0 {
		return base.InvalidPageID, fmt.Errorf("%w: split reservation exhausted", ErrCorruption)
	}
	id := (*r)[0]
	*r = (*r)[1:]
	return id, nil
}

func (ix *Index) reserve(n int) (*reservation, error) {
	res := make(reservation, 0, n)
	for range n {
		id, _, err := ix.bm.AllocateNewPage(ix.file)
		if err != nil {
			return nil, errors.Join(err, ix.dispose(res))
		}
		res = append(res, id)
		if err := ix.release(id, false); err != nil {
			return nil, errors.Join(err, ix.dispose(res))
		}
	}
	return &res, nil
}

func (ix *Index) dispose(ids []base.PageID) error {
	var errs []error
	for _, id := range ids {
		errs = append(errs, ix.bm.DisposePage(ix.file, id))
	}
	return errors.Join(errs...)
}

func (ix *Index) insertToLeaf(leafID base.PageID, key Key, rid RecordID, res *reservation) error {
	page, err := ix.fetch(leafID)
	if err != nil {
		return err
	}
	leaf, err := decodeLeaf(leafID, page, ix.meta.leafCapacity)
	if err != nil {
		return errors.Join(err, ix.release(leafID, false))
	}
	if !leaf.entries.full() {
		leaf.insert(key, rid)
		leaf.encode(page)
		return ix.release(leafID, true)
	}
	return ix.splitLeaf(leaf, page, key, rid, res)
}

// splitLeaf moves the upper half of a full, pinned leaf into a new right
// sibling, inserts the entry into the half that owns it and promotes the
// right leaf's first key.
func (ix *Index) splitLeaf(leaf *leafNode, page *base.Page, key Key, rid RecordID, res *reservation) error {
	rightID, rootID, err := ix.takeSplitPages(res, leaf.parent)
	if err != nil {
		return errors.Join(err, ix.release(leaf.id, false))
	}
	rightPage, err := ix.fetch(rightID)
	if err != nil {
		return errors.Join(err, ix.release(leaf.id, false))
	}

	mid := midpoint(ix.meta.leafCapacity)
	goesRight := key >= leaf.entries.at(mid).key
	if goesRight {
		mid++
	}
	right := newLeaf(rightID, ix.meta.leafCapacity)
	right.entries = leaf.entries.splitOff(mid)
	if goesRight {
		right.insert(key, rid)
	} else {
		leaf.insert(key, rid)
	}

	right.right = leaf.right
	leaf.right = rightID
	if rootID.Valid() {
		leaf.parent = rootID
	}
	right.parent = leaf.parent

	leaf.encode(page)
	right.encode(rightPage)
	ix.meta.leaves++
	if err := errors.Join(ix.release(leaf.id, true), ix.release(rightID, true)); err != nil {
		return err
	}

	if rootID.Valid() {
		if err := ix.installRoot(rootID); err != nil {
			return err
		}
	}
	return ix.insertToNonLeaf(leaf.parent, right.entries.at(0).key, leaf.id, rightID, true, res)
}

// takeSplitPages returns the page for the new right sibling and, when the
// node being split has no parent, the page for the new root.
func (ix *Index) takeSplitPages(res *reservation, parent base.PageID) (right, root base.PageID, err error) {
	if right, err = res.take(); err != nil {
		return base.InvalidPageID, base.InvalidPageID, err
	}
	if !parent.Valid() {
		if root, err = res.take(); err != nil {
			return base.InvalidPageID, base.InvalidPageID, err
		}
	}
	return right, root, nil
}

// installRoot writes an empty internal node at id and makes it the root.
func (ix *Index) installRoot(id base.PageID) error {
	page, err := ix.fetch(id)
	if err != nil {
		return err
	}
	newInternal(id, ix.meta.nodeCapacity).encode(page)
	if err := ix.release(id, true); err != nil {
		return err
	}
	ix.meta.root = id
	ix.meta.internals++
	ix.logger.Info("index root grown", "name", ix.name, "root", id)
	return nil
}

// insertToNonLeaf adds separator key with rightID as its right child next to
// leftID, the child that was just split.
func (ix *Index) insertToNonLeaf(nodeID base.PageID, key Key, leftID, rightID base.PageID, leafChildren bool, res *reservation) error {
	page, err := ix.fetch(nodeID)
	if err != nil {
		return err
	}
	n, err := decodeInternal(nodeID, page, ix.meta.nodeCapacity)
	if err != nil {
		return errors.Join(err, ix.release(nodeID, false))
	}

	if n.keys.len() == 0 {
		n.keys.insertAt(0, key)
		n.children = newBounded(ix.meta.nodeCapacity+1, leftID, rightID)
		n.leafChildren = leafChildren
		n.encode(page)
		return ix.release(nodeID, true)
	}

	idx := slices.Index(n.children.items, leftID)
	if idx < 0 {
		return errors.Join(
			fmt.Errorf("%w: node %d has no child %d", ErrCorruption, nodeID, leftID),
			ix.release(nodeID, false))
	}
	if !n.keys.full() {
		n.keys.insertAt(idx, key)
		n.children.insertAt(idx+1, rightID)
		n.encode(page)
		return ix.release(nodeID, true)
	}
	return ix.splitInternal(n, page, idx, key, rightID, res)
}

// splitInternal splits a full, pinned internal node while inserting key at
// idx with rightChildID as its right child.
func (ix *Index) splitInternal(n *internalNode, page *base.Page, idx int, key Key, rightChildID base.PageID, res *reservation) error {
	newID, rootID, err := ix.takeSplitPages(res, n.parent)
	if err != nil {
		return errors.Join(err, ix.release(n.id, false))
	}
	rightPage, err := ix.fetch(newID)
	if err != nil {
		return errors.Join(err, ix.release(n.id, false))
	}

	capacity := ix.meta.nodeCapacity
	mid := midpoint(capacity)
	right := newInternal(newID, capacity)
	right.leafChildren = n.leafChildren

	var promoted Key
	switch {
	case idx <= mid:
		right.keys = n.keys.splitOff(mid)
		right.children = n.children.splitOff(mid + 1)
		n.keys.insertAt(idx, key)
		n.children.insertAt(idx+1, rightChildID)
		promoted = right.keys.removeAt(0)
	case idx == mid+1:
		// The new key is the median and moves up; its right child becomes
		// the leftmost child of the new node.
		right.keys = n.keys.splitOff(mid + 1)
		rest := n.children.splitOff(mid + 2)
		right.children = newBounded(capacity+1, append([]base.PageID{rightChildID}, rest.items...)...)
		promoted = key
	default:
		right.keys = n.keys.splitOff(mid + 1)
		right.children = n.children.splitOff(mid + 2)
		i := idx - (mid + 1)
		right.keys.insertAt(i, key)
		right.children.insertAt(i, rightChildID)
		promoted = right.keys.removeAt(0)
	}

	if rootID.Valid() {
		n.parent = rootID
	}
	right.parent = n.parent

	n.encode(page)
	right.encode(rightPage)
	ix.meta.internals++
	if err := errors.Join(ix.release(n.id, true), ix.release(newID, true)); err != nil {
		return err
	}

	if err := ix.reparent(right.children.items, newID); err != nil {
		return err
	}
	if rootID.Valid() {
		if err := ix.installRoot(rootID); err != nil {
			return err
		}
	}
	return ix.insertToNonLeaf(n.parent, promoted, n.id, newID, false, res)
}

// reparent points the parent id of every child at parent. Leaves and
// internal nodes keep the parent id at the same offset.
func (ix *Index) reparent(children []base.PageID, parent base.PageID) error {
	for _, child := range children {
		page, err := ix.fetch(child)
		if err != nil {
			return err
		}
		page.PutPageID(offParent, parent)
		if err := ix.release(child, true); err != nil {
			return err
		}
	}
	return nil
}
