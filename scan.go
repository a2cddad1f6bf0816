package clockdb

import (
	"errors"
	"fmt"

	"clockdb/internal/base"
)

// scanState is the range scan cursor. While leaf is valid the cursor holds
// exactly one pin, on that leaf, and page points at its frame.
type scanState struct {
	active bool
	leaf   base.PageID
	page   *base.Page
	slot   int

	low, high     Key
	lowOp, highOp Operator
}

func (s *scanState) aboveLow(k Key) bool {
	if s.lowOp == GT {
		return k > s.low
	}
	return k >= s.low
}

func (s *scanState) belowHigh(k Key) bool {
	if s.highOp == LT {
		return k < s.high
	}
	return k <= s.high
}

// StartScan positions a cursor on the first entry within the range. lowOp
// must be GT or GTE and highOp LT or LTE. It returns ErrNoSuchKey when no
// entry lies within the range, leaving no scan active. A scan already in
// progress is ended first.
func (ix *Index) StartScan(low Key, lowOp Operator, high Key, highOp Operator) error {
	if ix.closed {
		return ErrIndexClosed
	}
	if (lowOp != GT && lowOp != GTE) || (highOp != LT && highOp != LTE) {
		return fmt.Errorf("%w: low %s, high %s", ErrBadOpcodes, lowOp, highOp)
	}
	if low > high {
		return fmt.Errorf("%w: low %d > high %d", ErrBadScanRange, low, high)
	}
	if ix.scan.active {
		if err := ix.EndScan(); err != nil {
			return err
		}
	}

	leafID, err := ix.searchForLeaf(low, lowOp == GTE)
	if err != nil {
		return fmt.Errorf("scan %s %d: %w", lowOp, low, err)
	}
	page, err := ix.fetch(leafID)
	if err != nil {
		return err
	}

	s := scanState{leaf: leafID, page: page, low: low, high: high, lowOp: lowOp, highOp: highOp}
	for {
		if s.slot >= leafCount(s.page) {
			if err := ix.hop(&s); err != nil {
				return err
			}
			if !s.leaf.Valid() {
				return fmt.Errorf("%w: nothing %s %d", ErrNoSuchKey, lowOp, low)
			}
			continue
		}
		if s.aboveLow(leafKey(s.page, s.slot)) {
			break
		}
		s.slot++
	}

	if k := leafKey(s.page, s.slot); !s.belowHigh(k) {
		return errors.Join(
			fmt.Errorf("%w: first key %d is not %s %d", ErrNoSuchKey, k, highOp, high),
			ix.release(s.leaf, false))
	}
	s.active = true
	ix.scan = s
	return nil
}

// ScanNext returns the record id of the next entry in the range. ok is false
// once the range is exhausted; the scan stays active until EndScan.
func (ix *Index) ScanNext() (rid RecordID, ok bool, err error) {
	s := &ix.scan
	if !s.active {
		return RecordID{}, false, ErrScanNotInitialized
	}
	if !s.leaf.Valid() {
		return RecordID{}, false, nil
	}

	if !s.belowHigh(leafKey(s.page, s.slot)) {
		err := ix.release(s.leaf, false)
		s.leaf, s.page = base.InvalidPageID, nil
		return RecordID{}, false, err
	}
	rid = leafRID(s.page, s.slot)
	s.slot++
	for s.leaf.Valid() && s.slot >= leafCount(s.page) {
		if err := ix.hop(s); err != nil {
			return RecordID{}, false, err
		}
	}
	return rid, true, nil
}

// hop moves the cursor to slot 0 of the right sibling, releasing the current
// leaf. At the end of the chain the cursor is left without a leaf.
func (ix *Index) hop(s *scanState) error {
	next := leafRight(s.page)
	err := ix.release(s.leaf, false)
	s.leaf, s.page, s.slot = base.InvalidPageID, nil, 0
	if err != nil || !next.Valid() {
		return err
	}
	page, err := ix.fetch(next)
	if err != nil {
		return err
	}
	s.leaf, s.page = next, page
	return nil
}

// EndScan releases the cursor's leaf and deactivates the scan.
func (ix *Index) EndScan() error {
	if !ix.scan.active {
		return ErrScanNotInitialized
	}
	var err error
	if ix.scan.leaf.Valid() {
		err = ix.release(ix.scan.leaf, false)
	}
	ix.scan = scanState{}
	return err
}

// Scan runs a complete range scan and returns the matching record ids in
// key order. An empty range yields no ids and no error.
func (ix *Index) Scan(low Key, lowOp Operator, high Key, highOp Operator) ([]RecordID, error) {
	err := ix.StartScan(low, lowOp, high, highOp)
	if errors.Is(err, ErrNoSuchKey) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var rids []RecordID
	for {
		rid, ok, err := ix.ScanNext()
		if err != nil {
			return rids, errors.Join(err, ix.EndScan())
		}
		if !ok {
			break
		}
		rids = append(rids, rid)
	}
	return rids, ix.EndScan()
}
