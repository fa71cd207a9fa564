package btree

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// leafHeaderBytes is parent(4) + prev-sibling(4) + next-sibling(4),
// common to every leaf page regardless of schema.
const leafHeaderBytes = 12

// LeafPage holds a slotted, bitmap-headed run of tuples sorted by
// keyField, plus pointers to its parent internal page and its left and
// right siblings. Leaf pages are doubly chained (prev and next) so a range
// scan or a steal-from-sibling never has to walk back up through the
// parent.
type LeafPage struct {
	id       PageID
	desc     tuple.TupleDesc
	keyField int
	pageSize int

	parent int32 // page number of the parent Internal page, -1 if this leaf is the root
	prev   int32 // page number of the previous leaf, -1 if none
	next   int32 // page number of the next leaf, -1 if none

	header []byte
	tuples []*tuple.Tuple

	dirty    bool
	dirtyTid uint64
}

// LeafNumSlots mirrors HeapPage's slot-count formula, minus the fixed
// 12-byte sibling/parent header every leaf page carries.
func LeafNumSlots(pageSize int, desc tuple.TupleDesc) int {
	avail := (pageSize - leafHeaderBytes) * 8
	return avail / (desc.Size()*8 + 1)
}

func LeafHeaderSize(numSlots int) int { return HeaderSize(numSlots) }

func NewLeafPage(id PageID, desc tuple.TupleDesc, keyField int, data []byte, pageSize int) (*LeafPage, error) {
	numSlots := LeafNumSlots(pageSize, desc)
	bitmapSize := LeafHeaderSize(numSlots)
	if len(data) < leafHeaderBytes+bitmapSize {
		return nil, errors.Wrapf(dberrors.IoFailure, "leaf page %s: truncated, got %d bytes", id, len(data))
	}

	p := &LeafPage{
		id:       id,
		desc:     desc,
		keyField: keyField,
		pageSize: pageSize,
		parent:   int32(binary.BigEndian.Uint32(data[0:4])),
		prev:     int32(binary.BigEndian.Uint32(data[4:8])),
		next:     int32(binary.BigEndian.Uint32(data[8:12])),
		header:   append([]byte(nil), data[leafHeaderBytes:leafHeaderBytes+bitmapSize]...),
		tuples:   make([]*tuple.Tuple, numSlots),
	}

	r := bytes.NewReader(data[leafHeaderBytes+bitmapSize:])
	tdSize := desc.Size()
	for i := 0; i < numSlots; i++ {
		if !p.isSlotUsed(i) {
			if _, err := io.CopyN(io.Discard, r, int64(tdSize)); err != nil {
				return nil, errors.Wrapf(err, "leaf page %s: skip slot %d", id, i)
			}
			continue
		}
		t, err := tuple.Parse(r, desc)
		if err != nil {
			return nil, errors.Wrapf(err, "leaf page %s: parse slot %d", id, i)
		}
		t.RecordID = &tuple.RecordID{PageID: id, SlotIndex: i}
		p.tuples[i] = t
	}
	return p, nil
}

func EmptyLeafPageData(pageSize int, desc tuple.TupleDesc) []byte {
	buf := make([]byte, pageSize)
	binary.BigEndian.PutUint32(buf[0:4], ^uint32(0))
	binary.BigEndian.PutUint32(buf[4:8], ^uint32(0))
	binary.BigEndian.PutUint32(buf[8:12], ^uint32(0))
	return buf
}

func (p *LeafPage) ID() tuple.PageID { return p.id }
func (p *LeafPage) BTreeID() PageID  { return p.id }

func (p *LeafPage) NumSlots() int { return len(p.tuples) }

func (p *LeafPage) NumUnusedSlots() int {
	n := 0
	for i := range p.tuples {
		if !p.isSlotUsed(i) {
			n++
		}
	}
	return n
}

func (p *LeafPage) NumTuples() int { return len(p.tuples) - p.NumUnusedSlots() }

func (p *LeafPage) isSlotUsed(i int) bool { return p.header[i>>3]&(1<<uint(i&7)) != 0 }

func (p *LeafPage) markSlotUsed(i int, used bool) {
	if used {
		p.header[i>>3] |= 1 << uint(i&7)
	} else {
		p.header[i>>3] &^= 1 << uint(i&7)
	}
}

func (p *LeafPage) HasParent() bool  { return p.parent >= 0 }
func (p *LeafPage) ParentNo() int    { return int(p.parent) }
func (p *LeafPage) SetParentNo(n int) { p.parent = int32(n) }

func (p *LeafPage) HasPrev() bool  { return p.prev >= 0 }
func (p *LeafPage) PrevNo() int    { return int(p.prev) }
func (p *LeafPage) SetPrevNo(n int) { p.prev = int32(n) }

func (p *LeafPage) HasNext() bool  { return p.next >= 0 }
func (p *LeafPage) NextNo() int    { return int(p.next) }
func (p *LeafPage) SetNextNo(n int) { p.next = int32(n) }

// Clear resets prev/next/parent to "none" and marks every slot unused.
func (p *LeafPage) Clear() {
	p.parent, p.prev, p.next = -1, -1, -1
	for i := range p.tuples {
		p.tuples[i] = nil
		p.markSlotUsed(i, false)
	}
}

// SortedTuples returns the page's live tuples in key order (slots are
// kept sorted by key at all times, so this is just a used-slot filter,
// not an actual sort).
func (p *LeafPage) SortedTuples() []*tuple.Tuple {
	out := make([]*tuple.Tuple, 0, p.NumTuples())
	for i, t := range p.tuples {
		if p.isSlotUsed(i) {
			out = append(out, t)
		}
	}
	return out
}

func (p *LeafPage) KeyField() int { return p.keyField }

func (p *LeafPage) keyOf(t *tuple.Tuple) tuple.Field {
	f, _ := t.Field(p.keyField)
	return f
}

// compareFields orders two Fields of the same FieldType.
func compareFields(a, b tuple.Field) int {
	switch av := a.(type) {
	case tuple.IntField:
		bv := b.(tuple.IntField)
		switch {
		case av.Value < bv.Value:
			return -1
		case av.Value > bv.Value:
			return 1
		default:
			return 0
		}
	case tuple.StringField:
		bv := b.(tuple.StringField)
		switch {
		case av.Value < bv.Value:
			return -1
		case av.Value > bv.Value:
			return 1
		default:
			return 0
		}
	default:
		return 0
	}
}

// InsertSorted inserts t at the position key order dictates, shifting
// later tuples one slot to the right to make room. Leaf pages keep
// their used slots physically sorted by key at all times (slots
// 0..NumTuples()-1 used, the rest free), which is what lets
// SortedTuples and a range scan just walk the array in order.
func (p *LeafPage) InsertSorted(t *tuple.Tuple) error {
	if !t.Desc.Equals(p.desc) {
		return errors.Wrapf(dberrors.SchemaMismatch, "insert into leaf page %s", p.id)
	}
	n := p.NumTuples()
	if n >= len(p.tuples) {
		return errors.Wrapf(dberrors.PageFull, "leaf page %s", p.id)
	}

	key := p.keyOf(t)
	at := n
	for i := 0; i < n; i++ {
		if compareFields(key, p.keyOf(p.tuples[i])) < 0 {
			at = i
			break
		}
	}

	for i := n; i > at; i-- {
		p.tuples[i] = p.tuples[i-1]
		p.tuples[i].RecordID = &tuple.RecordID{PageID: p.id, SlotIndex: i}
	}
	p.tuples[at] = t
	t.RecordID = &tuple.RecordID{PageID: p.id, SlotIndex: at}
	p.markSlotUsed(n, true)
	return nil
}

// DeleteTuple removes the tuple at t's slot, shifting every later
// tuple left by one to keep the used region contiguous and sorted.
func (p *LeafPage) DeleteTuple(t *tuple.Tuple) error {
	if t.RecordID == nil || t.RecordID.PageID == nil || t.RecordID.PageID.String() != p.id.String() {
		return errors.Wrapf(dberrors.WrongPage, "delete from leaf page %s", p.id)
	}
	slot := t.RecordID.SlotIndex
	n := p.NumTuples()
	if slot < 0 || slot >= n || !p.isSlotUsed(slot) {
		return errors.Wrapf(dberrors.SlotEmpty, "delete slot %d from leaf page %s", slot, p.id)
	}
	for i := slot; i < n-1; i++ {
		p.tuples[i] = p.tuples[i+1]
		p.tuples[i].RecordID = &tuple.RecordID{PageID: p.id, SlotIndex: i}
	}
	p.tuples[n-1] = nil
	p.markSlotUsed(n-1, false)
	return nil
}

func (p *LeafPage) Bytes() []byte {
	var buf bytes.Buffer
	var hdr [leafHeaderBytes]byte
	binary.BigEndian.PutUint32(hdr[0:4], uint32(p.parent))
	binary.BigEndian.PutUint32(hdr[4:8], uint32(p.prev))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(p.next))
	buf.Write(hdr[:])
	buf.Write(p.header)

	tdSize := p.desc.Size()
	for i, t := range p.tuples {
		if !p.isSlotUsed(i) {
			buf.Write(make([]byte, tdSize))
			continue
		}
		_ = t.Serialize(&buf)
	}
	if pad := p.pageSize - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()[:p.pageSize]
}

func (p *LeafPage) IsDirty() bool { return p.dirty }

func (p *LeafPage) MarkDirty(dirty bool, tid uint64) {
	p.dirty = dirty
	if dirty {
		p.dirtyTid = tid
	} else {
		p.dirtyTid = 0
	}
}

func (p *LeafPage) DirtyTxn() (uint64, bool) {
	if !p.dirty {
		return 0, false
	}
	return p.dirtyTid, true
}
