package btree

import (
	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// halfFull is the minimum occupancy a non-root page must hold: at
// least ceil(NumSlots/2) entries or tuples.
func halfFull(numSlots int) int { return (numSlots + 1) / 2 }

// DeleteTuple removes t from the leaf named by its RecordID, then
// rebalances that leaf (stealing from a sibling, or merging with one
// and removing the now-redundant separator from the parent) if the
// deletion left it under half full.
func (bt *BTreeFile) DeleteTuple(t *tuple.Tuple) error {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if t.RecordID == nil || t.RecordID.PageID == nil {
		return errors.Wrapf(dberrors.WrongPage, "delete: tuple has no record id")
	}
	leafID, ok := t.RecordID.PageID.(PageID)
	if !ok || leafID.Category() != Leaf {
		return errors.Wrapf(dberrors.WrongPage, "delete: record id %s is not a btree leaf", t.RecordID.PageID)
	}

	page, err := bt.readPageLocked(leafID)
	if err != nil {
		return err
	}
	leaf := page.(*LeafPage)
	if err := leaf.DeleteTuple(t); err != nil {
		return err
	}
	if err := bt.writePageLocked(leaf); err != nil {
		return err
	}

	if !leaf.HasParent() {
		return nil
	}
	if leaf.NumTuples() >= halfFull(leaf.NumSlots()) {
		return nil
	}
	return bt.handleLeafUnderflowLocked(leaf)
}

// handleLeafUnderflowLocked steals a tuple from whichever sibling of
// leaf has room to spare, or merges leaf with a sibling (propagating
// the separator removal up to the parent) if neither does.
func (bt *BTreeFile) handleLeafUnderflowLocked(leaf *LeafPage) error {
	parentID := NewPageID(bt.tableID, leaf.ParentNo(), Internal)
	parentPage, err := bt.readPageLocked(parentID)
	if err != nil {
		return err
	}
	parent := parentPage.(*InternalPage)

	leftID, rightID := leafSiblingsLocked(parent, leaf.BTreeID())
	half := halfFull(leaf.NumSlots())

	if leftID != nil {
		left, err := bt.readLeafLocked(*leftID)
		if err != nil {
			return err
		}
		if left.NumTuples() > half {
			return bt.stealFromLeftLeafLocked(parent, left, leaf)
		}
	}
	if rightID != nil {
		right, err := bt.readLeafLocked(*rightID)
		if err != nil {
			return err
		}
		if right.NumTuples() > half {
			return bt.stealFromRightLeafLocked(parent, leaf, right)
		}
	}

	if leftID != nil {
		left, err := bt.readLeafLocked(*leftID)
		if err != nil {
			return err
		}
		return bt.mergeLeavesLocked(parent, left, leaf)
	}
	if rightID != nil {
		right, err := bt.readLeafLocked(*rightID)
		if err != nil {
			return err
		}
		return bt.mergeLeavesLocked(parent, leaf, right)
	}
	// Leaf is its parent's only child; nothing to steal from or merge
	// with. Leave it under-full rather than fail the delete.
	return nil
}

func (bt *BTreeFile) readLeafLocked(id PageID) (*LeafPage, error) {
	p, err := bt.readPageLocked(id)
	if err != nil {
		return nil, err
	}
	return p.(*LeafPage), nil
}

// leafSiblingsLocked looks at parent's entries to find which ones, if
// any, name leaf as a RightChild (giving a left sibling) or LeftChild
// (giving a right sibling).
func leafSiblingsLocked(parent *InternalPage, leaf PageID) (left, right *PageID) {
	for _, e := range parent.Entries() {
		if e.RightChild == leaf {
			l := e.LeftChild
			left = &l
		}
		if e.LeftChild == leaf {
			r := e.RightChild
			right = &r
		}
	}
	return left, right
}

// findEntryBetween returns the index of the entry whose LeftChild and
// RightChild exactly match left and right.
func findEntryBetween(entries []*Entry, left, right PageID) int {
	for i, e := range entries {
		if e.LeftChild == left && e.RightChild == right {
			return i
		}
	}
	return -1
}

func (bt *BTreeFile) stealFromLeftLeafLocked(parent *InternalPage, left, leaf *LeafPage) error {
	donated := left.SortedTuples()[left.NumTuples()-1]
	if err := left.DeleteTuple(donated); err != nil {
		return err
	}
	donated.RecordID = nil
	if err := leaf.InsertSorted(donated); err != nil {
		return err
	}

	entries := parent.Entries()
	idx := findEntryBetween(entries, left.BTreeID(), leaf.BTreeID())
	if idx >= 0 {
		entries[idx].Key = leaf.keyOf(leaf.SortedTuples()[0])
	}

	if err := bt.writePageLocked(left); err != nil {
		return err
	}
	if err := bt.writePageLocked(leaf); err != nil {
		return err
	}
	return bt.writePageLocked(parent)
}

func (bt *BTreeFile) stealFromRightLeafLocked(parent *InternalPage, leaf, right *LeafPage) error {
	donated := right.SortedTuples()[0]
	if err := right.DeleteTuple(donated); err != nil {
		return err
	}
	donated.RecordID = nil
	if err := leaf.InsertSorted(donated); err != nil {
		return err
	}

	entries := parent.Entries()
	idx := findEntryBetween(entries, leaf.BTreeID(), right.BTreeID())
	if idx >= 0 {
		if right.NumTuples() > 0 {
			entries[idx].Key = right.keyOf(right.SortedTuples()[0])
		}
	}

	if err := bt.writePageLocked(leaf); err != nil {
		return err
	}
	if err := bt.writePageLocked(right); err != nil {
		return err
	}
	return bt.writePageLocked(parent)
}

// mergeLeavesLocked folds right's tuples into left, re-links the leaf
// chain around right, frees right's page, and removes the
// now-redundant separator from parent (which may itself need to
// rebalance as a result).
func (bt *BTreeFile) mergeLeavesLocked(parent *InternalPage, left, right *LeafPage) error {
	for _, t := range right.SortedTuples() {
		t.RecordID = nil
		if err := left.InsertSorted(t); err != nil {
			return err
		}
	}
	left.SetNextNo(right.NextNo())
	if right.HasNext() {
		nextID := NewPageID(bt.tableID, right.NextNo(), Leaf)
		next, err := bt.readLeafLocked(nextID)
		if err != nil {
			return err
		}
		next.SetPrevNo(left.BTreeID().PageNo())
		if err := bt.writePageLocked(next); err != nil {
			return err
		}
	}

	if err := bt.writePageLocked(left); err != nil {
		return err
	}
	if err := bt.freePage(right.BTreeID().PageNo()); err != nil {
		return err
	}

	return bt.deleteParentEntryLocked(parent, left.BTreeID(), right.BTreeID())
}

// deleteParentEntryLocked removes the separator entry between left
// and right from parent (left absorbs right's former subtree), fixes
// up any neighboring entry that still names right as a child, and
// rebalances or promotes parent if the removal leaves it under-full
// or, for a root, empty.
func (bt *BTreeFile) deleteParentEntryLocked(parent *InternalPage, left, right PageID) error {
	entries := parent.Entries()
	idx := findEntryBetween(entries, left, right)
	if idx < 0 {
		return errors.Newf("btree: no separator between %s and %s in parent %s", left, right, parent.id)
	}
	if err := parent.DeleteEntryAt(idx); err != nil {
		return err
	}
	for _, e := range parent.Entries() {
		if e.LeftChild == right {
			e.LeftChild = left
		}
		if e.RightChild == right {
			e.RightChild = left
		}
	}

	if !parent.HasParent() {
		if parent.NumEntries() == 0 {
			return bt.promoteRootLocked(parent, left)
		}
		return bt.writePageLocked(parent)
	}

	if err := bt.writePageLocked(parent); err != nil {
		return err
	}
	if parent.NumEntries() >= halfFull(parent.NumSlots()) {
		return nil
	}
	return bt.handleInternalUnderflowLocked(parent)
}

// promoteRootLocked replaces the root (which has just lost its only
// entry) with its sole remaining child, freeing the old root page.
func (bt *BTreeFile) promoteRootLocked(oldRoot *InternalPage, newRootChild PageID) error {
	rootPtr, err := bt.readRootPtrLocked()
	if err != nil {
		return err
	}
	rootPtr.SetRootID(newRootChild)
	if err := bt.writePageLocked(rootPtr); err != nil {
		return err
	}

	child, err := bt.readPageLocked(newRootChild)
	if err != nil {
		return err
	}
	switch pg := child.(type) {
	case *LeafPage:
		pg.SetParentNo(-1)
		if err := bt.writePageLocked(pg); err != nil {
			return err
		}
	case *InternalPage:
		pg.SetParentNo(-1)
		if err := bt.writePageLocked(pg); err != nil {
			return err
		}
	}
	return bt.freePage(oldRoot.BTreeID().PageNo())
}

func (bt *BTreeFile) readInternalLocked(id PageID) (*InternalPage, error) {
	p, err := bt.readPageLocked(id)
	if err != nil {
		return nil, err
	}
	return p.(*InternalPage), nil
}

// internalSiblingsLocked mirrors leafSiblingsLocked one level up: it
// looks at grandparent's entries to find page's internal-page
// siblings.
func internalSiblingsLocked(grandparent *InternalPage, page PageID) (left, right *PageID) {
	for _, e := range grandparent.Entries() {
		if e.RightChild == page {
			l := e.LeftChild
			left = &l
		}
		if e.LeftChild == page {
			r := e.RightChild
			right = &r
		}
	}
	return left, right
}

// handleInternalUnderflowLocked is handleLeafUnderflowLocked's analog
// one level up the tree: it steals a single entry from whichever
// sibling internal page has one to spare, or merges with a sibling
// and deletes the separator from the grandparent, when page has
// fewer than half its slots occupied.
func (bt *BTreeFile) handleInternalUnderflowLocked(page *InternalPage) error {
	grandparentID := NewPageID(bt.tableID, page.ParentNo(), Internal)
	grandparentPage, err := bt.readPageLocked(grandparentID)
	if err != nil {
		return err
	}
	grandparent := grandparentPage.(*InternalPage)

	leftID, rightID := internalSiblingsLocked(grandparent, page.BTreeID())
	half := halfFull(page.NumSlots())

	if leftID != nil {
		left, err := bt.readInternalLocked(*leftID)
		if err != nil {
			return err
		}
		if left.NumEntries() > half {
			return bt.stealFromLeftInternalLocked(grandparent, left, page)
		}
	}
	if rightID != nil {
		right, err := bt.readInternalLocked(*rightID)
		if err != nil {
			return err
		}
		if right.NumEntries() > half {
			return bt.stealFromRightInternalLocked(grandparent, page, right)
		}
	}
	if leftID != nil {
		left, err := bt.readInternalLocked(*leftID)
		if err != nil {
			return err
		}
		return bt.mergeInternalsLocked(grandparent, left, page)
	}
	if rightID != nil {
		right, err := bt.readInternalLocked(*rightID)
		if err != nil {
			return err
		}
		return bt.mergeInternalsLocked(grandparent, page, right)
	}
	return nil
}

func (bt *BTreeFile) reparentOne(childID PageID, newParentNo int) error {
	p, err := bt.readPageLocked(childID)
	if err != nil {
		return err
	}
	switch pg := p.(type) {
	case *LeafPage:
		pg.SetParentNo(newParentNo)
		return bt.writePageLocked(pg)
	case *InternalPage:
		pg.SetParentNo(newParentNo)
		return bt.writePageLocked(pg)
	}
	return nil
}

// stealFromLeftInternalLocked moves left's last entry up through the
// grandparent's separator and down into page: the grandparent's old
// separator key becomes page's new first entry's key (paired with
// left's last RightChild and page's old first LeftChild), and the
// grandparent gets left's old last key as its new separator.
func (bt *BTreeFile) stealFromLeftInternalLocked(grandparent *InternalPage, left, page *InternalPage) error {
	leftEntries := left.Entries()
	donated := leftEntries[len(leftEntries)-1]
	if err := left.DeleteEntryAt(len(leftEntries) - 1); err != nil {
		return err
	}

	gpEntries := grandparent.Entries()
	idx := findEntryBetween(gpEntries, left.BTreeID(), page.BTreeID())
	if idx < 0 {
		return errors.Newf("btree: no separator between %s and %s", left.BTreeID(), page.BTreeID())
	}
	oldSeparator := gpEntries[idx].Key

	pageEntries := page.Entries()
	oldFirstLeft := pageEntries[0].LeftChild
	if err := page.InsertEntry(&Entry{Key: oldSeparator, LeftChild: donated.RightChild, RightChild: oldFirstLeft}); err != nil {
		return err
	}
	gpEntries[idx].Key = donated.Key

	if err := bt.reparentOne(donated.RightChild, page.BTreeID().PageNo()); err != nil {
		return err
	}

	if err := bt.writePageLocked(left); err != nil {
		return err
	}
	if err := bt.writePageLocked(page); err != nil {
		return err
	}
	return bt.writePageLocked(grandparent)
}

func (bt *BTreeFile) stealFromRightInternalLocked(grandparent *InternalPage, page, right *InternalPage) error {
	rightEntries := right.Entries()
	donated := rightEntries[0]
	if err := right.DeleteEntryAt(0); err != nil {
		return err
	}

	gpEntries := grandparent.Entries()
	idx := findEntryBetween(gpEntries, page.BTreeID(), right.BTreeID())
	if idx < 0 {
		return errors.Newf("btree: no separator between %s and %s", page.BTreeID(), right.BTreeID())
	}
	oldSeparator := gpEntries[idx].Key

	pageEntries := page.Entries()
	oldLastRight := pageEntries[len(pageEntries)-1].RightChild
	if err := page.InsertEntry(&Entry{Key: oldSeparator, LeftChild: oldLastRight, RightChild: donated.LeftChild}); err != nil {
		return err
	}
	gpEntries[idx].Key = donated.Key

	if err := bt.reparentOne(donated.LeftChild, page.BTreeID().PageNo()); err != nil {
		return err
	}

	if err := bt.writePageLocked(page); err != nil {
		return err
	}
	if err := bt.writePageLocked(right); err != nil {
		return err
	}
	return bt.writePageLocked(grandparent)
}

// mergeInternalsLocked folds right's entries into left, pulling the
// grandparent's separator key down as the entry linking their
// formerly-separate children, then deletes that now-absorbed
// separator from the grandparent.
func (bt *BTreeFile) mergeInternalsLocked(grandparent *InternalPage, left, right *InternalPage) error {
	gpEntries := grandparent.Entries()
	idx := findEntryBetween(gpEntries, left.BTreeID(), right.BTreeID())
	if idx < 0 {
		return errors.Newf("btree: no separator between %s and %s", left.BTreeID(), right.BTreeID())
	}
	pulledDown := gpEntries[idx].Key

	leftEntries := left.Entries()
	rightEntries := right.Entries()
	bridge := &Entry{Key: pulledDown, LeftChild: leftEntries[len(leftEntries)-1].RightChild, RightChild: rightEntries[0].LeftChild}
	if err := left.InsertEntry(bridge); err != nil {
		return err
	}
	if err := bt.reparentOne(bridge.RightChild, left.BTreeID().PageNo()); err != nil {
		return err
	}
	for _, e := range rightEntries {
		if err := left.InsertEntry(e); err != nil {
			return err
		}
		if err := bt.reparentOne(e.LeftChild, left.BTreeID().PageNo()); err != nil {
			return err
		}
		if err := bt.reparentOne(e.RightChild, left.BTreeID().PageNo()); err != nil {
			return err
		}
	}

	if err := bt.writePageLocked(left); err != nil {
		return err
	}
	if err := bt.freePage(right.BTreeID().PageNo()); err != nil {
		return err
	}

	return bt.deleteParentEntryLocked(grandparent, left.BTreeID(), right.BTreeID())
}
