package storage

import (
	"bytes"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// HeapPage is a fixed-size page holding an unordered set of tuples of
// one schema, laid out as a bitmap header (one bit per slot, LSB-first
// within each byte) followed by that many fixed-width tuple slots, the
// whole thing zero-padded out to PageSize(). The constructor and
// Bytes are exact inverses of each other: parsing the bytes Bytes()
// returns must reproduce an identical HeapPage.
type HeapPage struct {
	id     HeapPageID
	desc   tuple.TupleDesc
	header []byte
	tuples []*tuple.Tuple

	dirty    bool
	dirtyTid uint64
}

// NumSlots returns floor(pageSize*8 / (tupleSize*8 + 1)), the number of
// fixed tuple slots a page of this size can hold for tuples of this
// width: each slot costs tupleSize*8 data bits plus one header bit.
func NumSlots(pageSize int, desc tuple.TupleDesc) int {
	tdBits := desc.Size() * 8
	return (pageSize * 8) / (tdBits + 1)
}

// HeaderSize returns ceil(numSlots/8), the number of header bytes
// needed to hold one presence bit per slot.
func HeaderSize(numSlots int) int {
	if numSlots%8 == 0 {
		return numSlots / 8
	}
	return numSlots/8 + 1
}

// NewHeapPage parses a HeapPage out of exactly PageSize() bytes of raw
// page data, as read from disk or synthesized empty by HeapFile.
func NewHeapPage(id HeapPageID, desc tuple.TupleDesc, data []byte) (*HeapPage, error) {
	numSlots := NumSlots(PageSize(), desc)
	headerSize := HeaderSize(numSlots)
	if len(data) < headerSize {
		return nil, errors.Wrapf(dberrors.IoFailure, "heap page %s: truncated header, got %d bytes want >= %d", id, len(data), headerSize)
	}

	p := &HeapPage{
		id:     id,
		desc:   desc,
		header: append([]byte(nil), data[:headerSize]...),
		tuples: make([]*tuple.Tuple, numSlots),
	}

	r := bytes.NewReader(data[headerSize:])
	tdSize := desc.Size()
	for i := 0; i < numSlots; i++ {
		if !p.isSlotUsed(i) {
			if _, err := io.CopyN(io.Discard, r, int64(tdSize)); err != nil {
				return nil, errors.Wrapf(err, "heap page %s: skip empty slot %d", id, i)
			}
			continue
		}
		t, err := tuple.Parse(r, desc)
		if err != nil {
			return nil, errors.Wrapf(err, "heap page %s: parse slot %d", id, i)
		}
		t.RecordID = &tuple.RecordID{PageID: id, SlotIndex: i}
		p.tuples[i] = t
	}
	return p, nil
}

// EmptyHeapPageData returns PageSize() zero bytes: parsing it back
// through NewHeapPage yields a page with every slot unused.
func EmptyHeapPageData() []byte {
	return make([]byte, PageSize())
}

func (p *HeapPage) ID() tuple.PageID { return p.id }

func (p *HeapPage) NumSlots() int { return len(p.tuples) }

func (p *HeapPage) NumUnusedSlots() int {
	n := 0
	for i := range p.tuples {
		if !p.isSlotUsed(i) {
			n++
		}
	}
	return n
}

func (p *HeapPage) isSlotUsed(i int) bool {
	return p.header[i>>3]&(1<<uint(i&7)) != 0
}

func (p *HeapPage) markSlotUsed(i int, used bool) {
	if used {
		p.header[i>>3] |= 1 << uint(i&7)
	} else {
		p.header[i>>3] &^= 1 << uint(i&7)
	}
}

// InsertTuple places t in the first free slot, assigning its
// RecordID. It fails with dberrors.SchemaMismatch if t's schema
// differs from the page's, or dberrors.PageFull if every slot is
// occupied.
func (p *HeapPage) InsertTuple(t *tuple.Tuple) error {
	if !t.Desc.Equals(p.desc) {
		return errors.Wrapf(dberrors.SchemaMismatch, "insert into heap page %s", p.id)
	}
	for i := range p.tuples {
		if !p.isSlotUsed(i) {
			p.markSlotUsed(i, true)
			t.RecordID = &tuple.RecordID{PageID: p.id, SlotIndex: i}
			p.tuples[i] = t
			return nil
		}
	}
	return errors.Wrapf(dberrors.PageFull, "heap page %s", p.id)
}

// DeleteTuple clears the slot a tuple's RecordID names. It fails with
// dberrors.WrongPage if the RecordID names a different page, or
// dberrors.SlotEmpty if that slot is already unused.
func (p *HeapPage) DeleteTuple(t *tuple.Tuple) error {
	if t.RecordID == nil || t.RecordID.PageID == nil || t.RecordID.PageID.String() != p.id.String() {
		return errors.Wrapf(dberrors.WrongPage, "delete from heap page %s", p.id)
	}
	slot := t.RecordID.SlotIndex
	if slot < 0 || slot >= len(p.tuples) || !p.isSlotUsed(slot) {
		return errors.Wrapf(dberrors.SlotEmpty, "delete slot %d from heap page %s", slot, p.id)
	}
	p.markSlotUsed(slot, false)
	p.tuples[slot] = nil
	return nil
}

// Tuple returns the tuple stored in slot i, or dberrors.SlotEmpty.
func (p *HeapPage) Tuple(i int) (*tuple.Tuple, error) {
	if i < 0 || i >= len(p.tuples) || !p.isSlotUsed(i) {
		return nil, errors.Wrapf(dberrors.SlotEmpty, "heap page %s slot %d", p.id, i)
	}
	return p.tuples[i], nil
}

// Bytes serializes the page back to exactly PageSize() bytes: header,
// then one fixed-width slot per tuple (zero-filled if unused), then
// zero padding out to PageSize().
func (p *HeapPage) Bytes() []byte {
	var buf bytes.Buffer
	buf.Grow(PageSize())
	buf.Write(p.header)

	tdSize := p.desc.Size()
	for i, t := range p.tuples {
		if !p.isSlotUsed(i) {
			buf.Write(make([]byte, tdSize))
			continue
		}
		_ = t.Serialize(&buf)
	}

	if pad := PageSize() - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()[:PageSize()]
}

func (p *HeapPage) IsDirty() bool { return p.dirty }

func (p *HeapPage) MarkDirty(dirty bool, tid uint64) {
	p.dirty = dirty
	if dirty {
		p.dirtyTid = tid
	} else {
		p.dirtyTid = 0
	}
}

func (p *HeapPage) DirtyTxn() (uint64, bool) {
	if !p.dirty {
		return 0, false
	}
	return p.dirtyTid, true
}

// AllTuples returns the live tuples on the page in slot order, skipping
// unused slots; used by the file-level iterator.
func (p *HeapPage) AllTuples() []*tuple.Tuple {
	out := make([]*tuple.Tuple, 0, len(p.tuples)-p.NumUnusedSlots())
	for i, t := range p.tuples {
		if p.isSlotUsed(i) {
			out = append(out, t)
		}
	}
	return out
}
