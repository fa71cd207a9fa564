package btree

import (
	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// InsertTuple finds the leaf where t's key belongs, splitting that
// leaf (and, as needed, its ancestors) to make room if it is full.
func (bt *BTreeFile) InsertTuple(t *tuple.Tuple) error {
	bt.mu.Lock()
	defer bt.mu.Unlock()

	if !t.Desc.Equals(bt.desc) {
		return errors.Wrapf(dberrors.SchemaMismatch, "insert into btree %d", bt.tableID)
	}
	key, err := t.Field(bt.keyField)
	if err != nil {
		return err
	}

	leaf, err := bt.findLeafLocked(key)
	if err != nil {
		return err
	}

	if leaf.NumUnusedSlots() == 0 {
		leaf, err = bt.splitLeafLocked(leaf, key)
		if err != nil {
			return err
		}
	}

	if err := leaf.InsertSorted(t); err != nil {
		return err
	}
	return bt.writePageLocked(leaf)
}

// findLeafLocked descends from the root looking for the leaf that
// would hold key (or the left-most leaf, if key is nil), creating an
// empty root leaf first if the tree has none yet. Callers must hold
// bt.mu.
func (bt *BTreeFile) findLeafLocked(key tuple.Field) (*LeafPage, error) {
	rootPtr, err := bt.readRootPtrLocked()
	if err != nil {
		return nil, err
	}
	if !rootPtr.HasRoot() {
		leafID, err := bt.allocatePage(Leaf)
		if err != nil {
			return nil, err
		}
		leaf, err := NewLeafPage(leafID, bt.desc, bt.keyField, EmptyLeafPageData(bt.pageSize, bt.desc), bt.pageSize)
		if err != nil {
			return nil, err
		}
		if err := bt.writePageLocked(leaf); err != nil {
			return nil, err
		}
		rootPtr.SetRootID(leafID)
		if err := bt.writePageLocked(rootPtr); err != nil {
			return nil, err
		}
		return leaf, nil
	}

	pid := rootPtr.RootID()
	for {
		page, err := bt.readPageLocked(pid)
		if err != nil {
			return nil, err
		}
		switch pg := page.(type) {
		case *LeafPage:
			return pg, nil
		case *InternalPage:
			entries := pg.Entries()
			if len(entries) == 0 {
				return nil, errors.Newf("btree: internal page %s has no entries", pg.id)
			}
			next := entries[len(entries)-1].RightChild
			for _, e := range entries {
				if key == nil || compareFields(key, e.Key) <= 0 {
					next = e.LeftChild
					break
				}
			}
			pid = next
		default:
			return nil, errors.Newf("btree: unexpected page type while descending to leaf")
		}
	}
}

// splitLeafLocked splits a full leaf in half by key order, links the
// new right sibling into the leaf chain, and inserts a separator entry
// for it into the parent (creating a new root if leaf had none). It
// returns whichever of the two half-leaves key belongs in.
func (bt *BTreeFile) splitLeafLocked(leaf *LeafPage, key tuple.Field) (*LeafPage, error) {
	rightID, err := bt.allocatePage(Leaf)
	if err != nil {
		return nil, err
	}
	right, err := NewLeafPage(rightID, bt.desc, bt.keyField, EmptyLeafPageData(bt.pageSize, bt.desc), bt.pageSize)
	if err != nil {
		return nil, err
	}

	all := leaf.SortedTuples()
	mid := len(all) / 2
	parentNo, prevNo, nextNo := leaf.ParentNo(), leaf.PrevNo(), leaf.NextNo()
	leaf.Clear()
	leaf.SetParentNo(parentNo)
	leaf.SetPrevNo(prevNo)
	leaf.SetNextNo(nextNo)
	for _, t := range all[:mid] {
		if err := leaf.InsertSorted(t); err != nil {
			return nil, err
		}
	}
	for _, t := range all[mid:] {
		if err := right.InsertSorted(t); err != nil {
			return nil, err
		}
	}

	// Splice right into the sibling chain right after leaf.
	if leaf.HasNext() {
		oldNextID := NewPageID(bt.tableID, leaf.NextNo(), Leaf)
		oldNext, err := bt.readPageLocked(oldNextID)
		if err != nil {
			return nil, err
		}
		ln := oldNext.(*LeafPage)
		ln.SetPrevNo(rightID.PageNo())
		right.SetNextNo(ln.BTreeID().PageNo())
		if err := bt.writePageLocked(ln); err != nil {
			return nil, err
		}
	}
	right.SetPrevNo(leaf.BTreeID().PageNo())
	leaf.SetNextNo(rightID.PageNo())

	separator := right.keyOf(right.tuples[0])
	parentID, err := bt.getParentWithRoomLocked(leaf, key)
	if err != nil {
		return nil, err
	}
	parent, err := bt.readPageLocked(parentID)
	if err != nil {
		return nil, err
	}
	ip := parent.(*InternalPage)

	if err := bt.insertIntoInternalLocked(ip, &Entry{Key: separator, LeftChild: leaf.BTreeID(), RightChild: rightID}); err != nil {
		return nil, err
	}

	leaf.SetParentNo(ip.BTreeID().PageNo())
	right.SetParentNo(ip.BTreeID().PageNo())

	if err := bt.writePageLocked(leaf); err != nil {
		return nil, err
	}
	if err := bt.writePageLocked(right); err != nil {
		return nil, err
	}

	if key == nil || compareFields(key, separator) < 0 {
		return leaf, nil
	}
	return right, nil
}

// getParentWithRoomLocked returns the internal page that should
// receive a new separator entry for child, creating a brand-new root
// internal page above child if child currently has no parent (i.e. it
// was the root). The returned page is guaranteed to have at least one
// free slot, splitting it first if necessary.
func (bt *BTreeFile) getParentWithRoomLocked(child pageWithParent, key tuple.Field) (PageID, error) {
	if !child.HasParent() {
		newRootID, err := bt.allocatePage(Internal)
		if err != nil {
			return PageID{}, err
		}
		newRoot, err := NewInternalPage(newRootID, bt.keyType(), bt.keyMaxLen(), EmptyInternalPageData(bt.pageSize), bt.pageSize)
		if err != nil {
			return PageID{}, err
		}
		newRoot.SetParentNo(-1)
		if err := bt.writePageLocked(newRoot); err != nil {
			return PageID{}, err
		}
		rootPtr, err := bt.readRootPtrLocked()
		if err != nil {
			return PageID{}, err
		}
		rootPtr.SetRootID(newRootID)
		if err := bt.writePageLocked(rootPtr); err != nil {
			return PageID{}, err
		}
		return newRootID, nil
	}

	parentID := NewPageID(bt.tableID, child.ParentPageNo(), Internal)
	page, err := bt.readPageLocked(parentID)
	if err != nil {
		return PageID{}, err
	}
	ip := page.(*InternalPage)
	if ip.NumUnusedSlots() > 0 {
		return parentID, nil
	}
	return bt.splitInternalLocked(ip, key)
}

// splitInternalLocked splits a full internal page, pushing its middle
// entry's key up into its own parent (rather than copying it down, as
// a leaf split does) since that key has no tuple of its own to live
// in a leaf.
func (bt *BTreeFile) splitInternalLocked(page *InternalPage, key tuple.Field) (PageID, error) {
	rightID, err := bt.allocatePage(Internal)
	if err != nil {
		return PageID{}, err
	}
	right, err := NewInternalPage(rightID, bt.keyType(), bt.keyMaxLen(), EmptyInternalPageData(bt.pageSize), bt.pageSize)
	if err != nil {
		return PageID{}, err
	}

	entries := page.Entries()
	mid := len(entries) / 2
	pushedUp := entries[mid]

	// Rebuild page's left half and right's right half from scratch
	// rather than shifting entries out of page in place, since
	// InternalPage has no bulk-remove operation.
	freshLeft, err := NewInternalPage(page.BTreeID(), bt.keyType(), bt.keyMaxLen(), EmptyInternalPageData(bt.pageSize), bt.pageSize)
	if err != nil {
		return PageID{}, err
	}
	freshLeft.SetParentNo(page.ParentNo())
	for _, e := range entries[:mid] {
		if err := freshLeft.InsertEntry(e); err != nil {
			return PageID{}, err
		}
	}
	for _, e := range entries[mid+1:] {
		if err := right.InsertEntry(e); err != nil {
			return PageID{}, err
		}
		bt.reparentChildLocked(e, rightID.PageNo())
	}
	for _, e := range entries[:mid] {
		bt.reparentChildLocked(e, freshLeft.BTreeID().PageNo())
	}

	parentID, err := bt.getParentWithRoomLocked(pageWithParentAdapter{bt: bt, id: freshLeft.BTreeID(), parentNo: freshLeft.ParentNo()}, key)
	if err != nil {
		return PageID{}, err
	}
	parentPage, err := bt.readPageLocked(parentID)
	if err != nil {
		return PageID{}, err
	}
	parentIP := parentPage.(*InternalPage)

	newEntry := &Entry{Key: pushedUp.Key, LeftChild: freshLeft.BTreeID(), RightChild: rightID}
	if err := bt.insertIntoInternalLocked(parentIP, newEntry); err != nil {
		return PageID{}, err
	}

	freshLeft.SetParentNo(parentIP.BTreeID().PageNo())
	right.SetParentNo(parentIP.BTreeID().PageNo())

	if err := bt.writePageLocked(freshLeft); err != nil {
		return PageID{}, err
	}
	if err := bt.writePageLocked(right); err != nil {
		return PageID{}, err
	}

	if key == nil || compareFields(key, pushedUp.Key) < 0 {
		return freshLeft.BTreeID(), nil
	}
	return rightID, nil
}

// insertIntoInternalLocked inserts e into page, splitting page first
// if it is already full.
func (bt *BTreeFile) insertIntoInternalLocked(page *InternalPage, e *Entry) error {
	if page.NumUnusedSlots() == 0 {
		newHome, err := bt.splitInternalLocked(page, e.Key)
		if err != nil {
			return err
		}
		reread, err := bt.readPageLocked(newHome)
		if err != nil {
			return err
		}
		page = reread.(*InternalPage)
	}
	if err := page.InsertEntry(e); err != nil {
		return err
	}
	// The entry after e still names the split page (e.LeftChild) as
	// its left child; it now starts at e.RightChild instead.
	entries := page.Entries()
	for i, cur := range entries {
		if cur == e && i+1 < len(entries) && entries[i+1].LeftChild == e.LeftChild {
			entries[i+1].LeftChild = e.RightChild
		}
	}
	return bt.writePageLocked(page)
}

// reparentChildLocked updates the parent pointer stored on whichever
// page e.LeftChild/e.RightChild name, used after an internal split
// moves entries (and therefore their children) to a new parent page.
func (bt *BTreeFile) reparentChildLocked(e *Entry, newParentNo int) {
	for _, childID := range []PageID{e.LeftChild, e.RightChild} {
		page, err := bt.readPageLocked(childID)
		if err != nil {
			continue
		}
		switch pg := page.(type) {
		case *LeafPage:
			pg.SetParentNo(newParentNo)
			_ = bt.writePageLocked(pg)
		case *InternalPage:
			pg.SetParentNo(newParentNo)
			_ = bt.writePageLocked(pg)
		}
	}
}

// pageWithParent abstracts over LeafPage/InternalPage for the
// getParentWithRoomLocked helper, which only needs to know whether a
// page has a parent and, if so, which one.
type pageWithParent interface {
	HasParent() bool
	ParentPageNo() int
}

func (p *LeafPage) ParentPageNo() int     { return p.ParentNo() }
func (p *InternalPage) ParentPageNo() int { return p.ParentNo() }

// pageWithParentAdapter lets splitInternalLocked describe a page it
// has already rebuilt in memory (so re-reading it from disk would see
// stale data) to getParentWithRoomLocked.
type pageWithParentAdapter struct {
	bt       *BTreeFile
	id       PageID
	parentNo int
}

func (a pageWithParentAdapter) HasParent() bool  { return a.parentNo >= 0 }
func (a pageWithParentAdapter) ParentPageNo() int { return a.parentNo }
