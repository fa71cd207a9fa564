package btree

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/cockroachdb/errors"

	"github.com/latticedb/lattice/pkg/dberrors"
	"github.com/latticedb/lattice/pkg/tuple"
)

// internalHeaderBytes is just the parent pointer (4 bytes); unlike a
// leaf page an internal page has no siblings.
const internalHeaderBytes = 4

// Entry is one (key, leftChild, rightChild) triple in an internal
// page: every key sorts between its left and right child subtrees,
// and consecutive entries on the same page share a child
// (entries[i].RightChild == entries[i+1].LeftChild), so an internal
// page with k live entries names k+1 children.
type Entry struct {
	Key        tuple.Field
	LeftChild  PageID
	RightChild PageID
}

// InternalPage is a slotted, bitmap-headed run of Entries, analogous
// in layout to LeafPage but storing child pointers instead of whole
// tuples.
type InternalPage struct {
	id        PageID
	keyType   tuple.FieldType
	keyMaxLen int // only meaningful for StringType keys
	pageSize  int

	parent int32

	header  []byte
	entries []*Entry // entries[i] == nil means slot i is unused

	dirty    bool
	dirtyTid uint64
}

func entryWidth(keyType tuple.FieldType, keyMaxLen int) int {
	keyWidth := tuple.IntLen
	if keyType == tuple.StringType {
		keyWidth = tuple.IntLen + keyMaxLen
	}
	// key + leftPageNo(4) + leftCategory(1) + rightPageNo(4) + rightCategory(1)
	return keyWidth + 10
}

func InternalNumSlots(pageSize int, keyType tuple.FieldType, keyMaxLen int) int {
	avail := (pageSize - internalHeaderBytes) * 8
	return avail / (entryWidth(keyType, keyMaxLen)*8 + 1)
}

func NewInternalPage(id PageID, keyType tuple.FieldType, keyMaxLen int, data []byte, pageSize int) (*InternalPage, error) {
	numSlots := InternalNumSlots(pageSize, keyType, keyMaxLen)
	bitmapSize := HeaderSize(numSlots)
	if len(data) < internalHeaderBytes+bitmapSize {
		return nil, errors.Wrapf(dberrors.IoFailure, "internal page %s: truncated, got %d bytes", id, len(data))
	}

	p := &InternalPage{
		id:        id,
		keyType:   keyType,
		keyMaxLen: keyMaxLen,
		pageSize:  pageSize,
		parent:    int32(binary.BigEndian.Uint32(data[0:4])),
		header:    append([]byte(nil), data[internalHeaderBytes:internalHeaderBytes+bitmapSize]...),
		entries:   make([]*Entry, numSlots),
	}

	r := bytes.NewReader(data[internalHeaderBytes+bitmapSize:])
	width := entryWidth(keyType, keyMaxLen)
	for i := 0; i < numSlots; i++ {
		if !p.isSlotUsed(i) {
			if _, err := io.CopyN(io.Discard, r, int64(width)); err != nil {
				return nil, errors.Wrapf(err, "internal page %s: skip slot %d", id, i)
			}
			continue
		}
		e, err := parseEntry(r, id.TableID(), keyType, keyMaxLen)
		if err != nil {
			return nil, errors.Wrapf(err, "internal page %s: parse slot %d", id, i)
		}
		p.entries[i] = e
	}
	return p, nil
}

func parseEntry(r io.Reader, tableID uint64, keyType tuple.FieldType, keyMaxLen int) (*Entry, error) {
	var key tuple.Field
	var err error
	if keyType == tuple.StringType {
		key, err = tuple.ParseStringField(r, keyMaxLen)
	} else {
		key, err = tuple.ParseIntField(r)
	}
	if err != nil {
		return nil, err
	}

	var buf [10]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	leftNo := int32(binary.BigEndian.Uint32(buf[0:4]))
	leftCat := Category(buf[4])
	rightNo := int32(binary.BigEndian.Uint32(buf[5:9]))
	rightCat := Category(buf[9])
	return &Entry{
		Key:        key,
		LeftChild:  NewPageID(tableID, int(leftNo), leftCat),
		RightChild: NewPageID(tableID, int(rightNo), rightCat),
	}, nil
}

func (e *Entry) serialize(w io.Writer) error {
	if err := e.Key.Serialize(w); err != nil {
		return err
	}
	var buf [10]byte
	binary.BigEndian.PutUint32(buf[0:4], uint32(e.LeftChild.PageNo()))
	buf[4] = byte(e.LeftChild.Category())
	binary.BigEndian.PutUint32(buf[5:9], uint32(e.RightChild.PageNo()))
	buf[9] = byte(e.RightChild.Category())
	_, err := w.Write(buf[:])
	return err
}

func EmptyInternalPageData(pageSize int) []byte {
	buf := make([]byte, pageSize)
	binary.BigEndian.PutUint32(buf[0:4], ^uint32(0))
	return buf
}

func (p *InternalPage) ID() tuple.PageID { return p.id }
func (p *InternalPage) BTreeID() PageID  { return p.id }

func (p *InternalPage) NumSlots() int { return len(p.entries) }

func (p *InternalPage) NumEntries() int {
	n := 0
	for i := range p.entries {
		if p.isSlotUsed(i) {
			n++
		}
	}
	return n
}

func (p *InternalPage) NumUnusedSlots() int { return len(p.entries) - p.NumEntries() }

func (p *InternalPage) isSlotUsed(i int) bool { return p.header[i>>3]&(1<<uint(i&7)) != 0 }

func (p *InternalPage) markSlotUsed(i int, used bool) {
	if used {
		p.header[i>>3] |= 1 << uint(i&7)
	} else {
		p.header[i>>3] &^= 1 << uint(i&7)
	}
}

func (p *InternalPage) HasParent() bool   { return p.parent >= 0 }
func (p *InternalPage) ParentNo() int     { return int(p.parent) }
func (p *InternalPage) SetParentNo(n int) { p.parent = int32(n) }

// Entries returns the page's live entries in sorted order. Like
// LeafPage, the used region is always slots 0..NumEntries()-1.
func (p *InternalPage) Entries() []*Entry {
	out := make([]*Entry, 0, p.NumEntries())
	for i, e := range p.entries {
		if p.isSlotUsed(i) {
			out = append(out, e)
		}
	}
	return out
}

// InsertEntry inserts e in key order, shifting later entries right.
func (p *InternalPage) InsertEntry(e *Entry) error {
	n := p.NumEntries()
	if n >= len(p.entries) {
		return errors.Wrapf(dberrors.PageFull, "internal page %s", p.id)
	}
	at := n
	for i := 0; i < n; i++ {
		if compareFields(e.Key, p.entries[i].Key) < 0 {
			at = i
			break
		}
	}
	for i := n; i > at; i-- {
		p.entries[i] = p.entries[i-1]
	}
	p.entries[at] = e
	p.markSlotUsed(n, true)
	return nil
}

// DeleteEntryAt removes the live entry at sorted position i, shifting
// later entries left.
func (p *InternalPage) DeleteEntryAt(i int) error {
	n := p.NumEntries()
	if i < 0 || i >= n {
		return errors.Wrapf(dberrors.SlotEmpty, "internal page %s entry %d", p.id, i)
	}
	for j := i; j < n-1; j++ {
		p.entries[j] = p.entries[j+1]
	}
	p.entries[n-1] = nil
	p.markSlotUsed(n-1, false)
	return nil
}

func (p *InternalPage) Bytes() []byte {
	var buf bytes.Buffer
	var hdr [internalHeaderBytes]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(p.parent))
	buf.Write(hdr[:])
	buf.Write(p.header)

	width := entryWidth(p.keyType, p.keyMaxLen)
	for i, e := range p.entries {
		if !p.isSlotUsed(i) {
			buf.Write(make([]byte, width))
			continue
		}
		_ = e.serialize(&buf)
	}
	if pad := p.pageSize - buf.Len(); pad > 0 {
		buf.Write(make([]byte, pad))
	}
	return buf.Bytes()[:p.pageSize]
}

func (p *InternalPage) IsDirty() bool { return p.dirty }

func (p *InternalPage) MarkDirty(dirty bool, tid uint64) {
	p.dirty = dirty
	if dirty {
		p.dirtyTid = tid
	} else {
		p.dirtyTid = 0
	}
}

func (p *InternalPage) DirtyTxn() (uint64, bool) {
	if !p.dirty {
		return 0, false
	}
	return p.dirtyTid, true
}
