package clockdb

import (
	"clockdb/internal/base"
	"clockdb/storage"
)

type (
	Key      = base.Key
	RecordID = base.RecordID
	PageID   = base.PageID
	Datatype = base.Datatype
	Operator = base.Operator
)

const (
	Integer = base.Integer
	Double  = base.Double
	String  = base.String

	LT  = base.LT
	LTE = base.LTE
	GTE = base.GTE
	GT  = base.GT
)

// BufferPool is the page cache the index reads and writes nodes through.
// *buffer.Manager implements it.
type BufferPool interface {
	FetchPage(file storage.File, id base.PageID) (*base.Page, error)
	ReleasePage(file storage.File, id base.PageID, dirty bool) error
	AllocateNewPage(file storage.File) (base.PageID, *base.Page, error)
	FlushFile(file storage.File) error
	DisposePage(file storage.File, id base.PageID) error
	// Available returns the number of frames holding no pin.
	Available() int
}

// RecordSource yields the records of a relation in order. Next returns
// io.EOF once every record has been produced.
type RecordSource interface {
	Next() (RecordID, []byte, error)
}
