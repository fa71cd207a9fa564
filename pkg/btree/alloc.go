package btree

import "github.com/latticedb/lattice/pkg/storage"

// allocatePage returns a page number free for reuse, consulting the
// header free-list chain first and only extending the file when every
// existing header page is fully marked in-use. Callers must hold bt.mu.
func (bt *BTreeFile) allocatePage(category Category) (PageID, error) {
	rootPtr, err := bt.readRootPtrLocked()
	if err != nil {
		return PageID{}, err
	}

	if rootPtr.HasHeaderPage() {
		pageNo, err := bt.claimFreeSlotLocked(rootPtr.HeaderPageID())
		if err != nil {
			return PageID{}, err
		}
		if pageNo >= 0 {
			return NewPageID(bt.tableID, pageNo, category), nil
		}
	}

	// No free slot anywhere in the chain: extend the file by one
	// zero-filled page, so that a second allocation made before this
	// page is written cannot be handed the same page number. Header
	// pages are added by freePage, not here.
	newPageNo := bt.numPagesLocked() + 1
	if err := bt.file.Truncate(bt.pageOffset(newPageNo) + int64(bt.pageSize)); err != nil {
		return PageID{}, err
	}
	return NewPageID(bt.tableID, newPageNo, category), nil
}

// claimFreeSlotLocked walks the header chain starting at headerID
// looking for a free bit, claims the first one it finds (marking it
// in-use and writing the header page back), and returns the
// corresponding global page number, or -1 if the whole chain is full.
func (bt *BTreeFile) claimFreeSlotLocked(headerID PageID) (int, error) {
	slotsPerPage := HeaderSlotsPerPage(bt.pageSize)
	pageNo := headerID.PageNo()
	globalBase := 0

	for {
		page, err := bt.readHeaderLocked(NewPageID(bt.tableID, pageNo, Header))
		if err != nil {
			return -1, err
		}
		for i := 0; i < page.NumSlots(); i++ {
			if page.IsSlotFree(i) {
				page.MarkSlotFree(i, false)
				if err := bt.writePageLocked(page); err != nil {
					return -1, err
				}
				return globalBase + i + 1, nil
			}
		}
		if !page.HasNext() {
			return -1, nil
		}
		globalBase += slotsPerPage
		pageNo = page.NextNo()
	}
}

func (bt *BTreeFile) readHeaderLocked(pid PageID) (*HeaderPage, error) {
	p, err := bt.readPageLocked(pid)
	if err != nil {
		return nil, err
	}
	return p.(*HeaderPage), nil
}

// freePage marks pageNo's bit free in the header chain, creating the
// chain (or extending it with a new header page) if pageNo lies beyond
// what the current chain covers.
func (bt *BTreeFile) freePage(pageNo int) error {
	rootPtr, err := bt.readRootPtrLocked()
	if err != nil {
		return err
	}

	slotsPerPage := HeaderSlotsPerPage(bt.pageSize)
	if !rootPtr.HasHeaderPage() {
		hpid, err := bt.newHeaderPage(-1)
		if err != nil {
			return err
		}
		rootPtr.SetHeaderPageNo(hpid.PageNo())
		if err := bt.writePageLocked(rootPtr); err != nil {
			return err
		}
	}
	rootPtr, err = bt.readRootPtrLocked()
	if err != nil {
		return err
	}

	headerPageNo := rootPtr.HeaderPageID().PageNo()
	globalBase := 0
	for {
		page, err := bt.readHeaderLocked(NewPageID(bt.tableID, headerPageNo, Header))
		if err != nil {
			return err
		}
		if pageNo-1 < globalBase+page.NumSlots() {
			page.MarkSlotFree(pageNo-1-globalBase, true)
			return bt.writePageLocked(page)
		}
		if !page.HasNext() {
			next, err := bt.newHeaderPage(-1)
			if err != nil {
				return err
			}
			page.SetNextNo(next.PageNo())
			if err := bt.writePageLocked(page); err != nil {
				return err
			}
		}
		page2, err := bt.readHeaderLocked(NewPageID(bt.tableID, headerPageNo, Header))
		if err != nil {
			return err
		}
		globalBase += slotsPerPage
		headerPageNo = page2.NextNo()
	}
}

// newHeaderPage allocates a brand-new header page (not reused from the
// free list, to avoid a chicken-and-egg loop) at the next page number.
func (bt *BTreeFile) newHeaderPage(next int) (PageID, error) {
	pageNo := bt.numPagesLocked() + 1
	pid := NewPageID(bt.tableID, pageNo, Header)
	hp, err := NewHeaderPage(pid, EmptyHeaderPageData(bt.pageSize), bt.pageSize)
	if err != nil {
		return PageID{}, err
	}
	if next >= 0 {
		hp.SetNextNo(next)
	}
	if err := bt.writePageLocked(hp); err != nil {
		return PageID{}, err
	}
	return pid, nil
}

func (bt *BTreeFile) readRootPtrLocked() (*RootPtrPage, error) {
	p, err := bt.readPageLocked(NewPageID(bt.tableID, 0, RootPtr))
	if err != nil {
		return nil, err
	}
	return p.(*RootPtrPage), nil
}

// readPageLocked is ReadPage without taking bt.mu, for callers that
// already hold it.
func (bt *BTreeFile) readPageLocked(pid PageID) (storage.Page, error) {
	bpid := pid
	if bpid.Category() == RootPtr {
		buf := make([]byte, RootPtrPageSize)
		if _, err := bt.file.ReadAt(buf, 0); err != nil {
			return nil, err
		}
		return NewRootPtrPage(bpid, buf)
	}
	buf := make([]byte, bt.pageSize)
	if _, err := bt.file.ReadAt(buf, bt.pageOffset(bpid.PageNo())); err != nil {
		return nil, err
	}
	switch bpid.Category() {
	case Header:
		return NewHeaderPage(bpid, buf, bt.pageSize)
	case Internal:
		return NewInternalPage(bpid, bt.keyType(), bt.keyMaxLen(), buf, bt.pageSize)
	case Leaf:
		return NewLeafPage(bpid, bt.desc, bt.keyField, buf, bt.pageSize)
	default:
		return nil, errUnknownCategory
	}
}
