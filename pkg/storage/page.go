package storage

import "github.com/latticedb/lattice/pkg/tuple"

// Page is the contract the buffer pool caches against: anything a
// DBFile hands back must know its own identity, know whether it has
// been modified since it was read, and be able to serialize itself
// back to its on-disk bytes. HeapPage implements it here;
// pkg/btree's page types implement the same contract for B+-tree
// files. Every page serializes to exactly PageSize() bytes except the
// B+-tree root-pointer page, which is 12 bytes.
type Page interface {
	ID() tuple.PageID
	Bytes() []byte
	IsDirty() bool
	// MarkDirty records that tid last modified this page, or clears
	// the mark when dirty is false. The buffer pool uses the tid to
	// decide, at transaction-complete time, which pages to flush.
	MarkDirty(dirty bool, tid uint64)
	// DirtyTxn reports the tid that last dirtied this page, if any.
	DirtyTxn() (tid uint64, ok bool)
}

// DBFile is the narrow interface the buffer pool needs from a table's
// backing file: turn a PageID into bytes and back. HeapFile and
// pkg/btree's BTreeFile both implement it; their richer, format-specific
// operations (InsertTuple, Find, ...) live outside this interface.
type DBFile interface {
	TableID() uint64
	ReadPage(pid tuple.PageID) (Page, error)
	WritePage(p Page) error
	NumPages() int
}
