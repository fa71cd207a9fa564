package storage

import "fmt"

// HeapPageID identifies a page within a HeapFile.
type HeapPageID struct {
	tableID uint64
	pageNo  int
}

func NewHeapPageID(tableID uint64, pageNo int) HeapPageID {
	return HeapPageID{tableID: tableID, pageNo: pageNo}
}

func (id HeapPageID) TableID() uint64 { return id.tableID }
func (id HeapPageID) PageNo() int     { return id.pageNo }

func (id HeapPageID) String() string {
	return fmt.Sprintf("heap(table=%d,page=%d)", id.tableID, id.pageNo)
}
