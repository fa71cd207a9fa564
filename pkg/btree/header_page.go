package btree

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// headerFixedBytes is the next-header-page pointer (4 bytes); the rest
// of the page is a bitmap, one bit per ordinary page slot in the file,
// marking whether that page is free to be reused.
const headerFixedBytes = 4

// HeaderPage is one link in the chain of free-list pages: each bit in
// its bitmap says whether the corresponding page slot elsewhere in the
// file is currently unused and available for reuse by a future split
// or allocation, so a deleted leaf or internal page's slot doesn't
// just leak.
type HeaderPage struct {
	id       PageID
	pageSize int

	next int32 // next header page number, -1 if this is the last one
	bits []byte

	dirty    bool
	dirtyTid uint64
}

// HeaderSlotsPerPage is how many page-free bits a single header page
// can track.
func HeaderSlotsPerPage(pageSize int) int {
	return (pageSize - headerFixedBytes) * 8
}

// HeaderSize returns ceil(numSlots/8), the number of bitmap bytes
// needed to hold one presence bit per slot.
func HeaderSize(numSlots int) int {
	if numSlots%8 == 0 {
		return numSlots / 8
	}
	return numSlots/8 + 1
}

func NewHeaderPage(id PageID, data []byte, pageSize int) (*HeaderPage, error) {
	if len(data) < pageSize {
		return nil, errors.Wrapf(dberrors.IoFailure, "header page %s: truncated, got %d bytes", id, len(data))
	}
	return &HeaderPage{
		id:       id,
		pageSize: pageSize,
		next:     int32(binary.BigEndian.Uint32(data[0:4])),
		bits:     append([]byte(nil), data[headerFixedBytes:pageSize]...),
	}, nil
}

// EmptyHeaderPageData returns a header page with every slot marked
// in use and no next header page; freePage clears the bit of each
// page it releases.
func EmptyHeaderPageData(pageSize int) []byte {
	buf := make([]byte, pageSize)
	binary.BigEndian.PutUint32(buf[0:4], ^uint32(0))
	for i := headerFixedBytes; i < pageSize; i++ {
		buf[i] = 0xFF
	}
	return buf
}

func (p *HeaderPage) ID() tuple.PageID { return p.id }
func (p *HeaderPage) BTreeID() PageID  { return p.id }

func (p *HeaderPage) HasNext() bool  { return p.next >= 0 }
func (p *HeaderPage) NextNo() int    { return int(p.next) }
func (p *HeaderPage) SetNextNo(n int) { p.next = int32(n) }

// IsSlotFree reports whether local bit i (an index into this header
// page's own bitmap, not a global page number) is marked free. A
// clear bit means free; a fresh header page (the state
// EmptyHeaderPageData returns) has every bit set, so only pages that
// freePage has released are ever reported free.
func (p *HeaderPage) IsSlotFree(i int) bool {
	return p.bits[i>>3]&(1<<uint(i&7)) == 0
}

func (p *HeaderPage) MarkSlotFree(i int, free bool) {
	if !free {
		p.bits[i>>3] |= 1 << uint(i&7)
	} else {
		p.bits[i>>3] &^= 1 << uint(i&7)
	}
}

// NumSlots is how many page-free bits this header page holds.
func (p *HeaderPage) NumSlots() int { return len(p.bits) * 8 }

func (p *HeaderPage) Bytes() []byte {
	buf := make([]byte, p.pageSize)
	binary.BigEndian.PutUint32(buf[0:4], uint32(p.next))
	copy(buf[headerFixedBytes:], p.bits)
	return buf
}

func (p *HeaderPage) IsDirty() bool { return p.dirty }

func (p *HeaderPage) MarkDirty(dirty bool, tid uint64) {
	p.dirty = dirty
	if dirty {
		p.dirtyTid = tid
	} else {
		p.dirtyTid = 0
	}
}

func (p *HeaderPage) DirtyTxn() (uint64, bool) {
	if !p.dirty {
		return 0, false
	}
	return p.dirtyTid, true
}
