package base

import "fmt"

// Key is the fixed-width integer key stored in index entries.
type Key int32

// RecordID locates a record inside a relation file.
type RecordID struct {
	PageNumber PageID
	SlotNumber uint16
}

func (r RecordID) String() string {
	return fmt.Sprintf("(%d,%d)", r.PageNumber, r.SlotNumber)
}

// Datatype is the type of the indexed attribute.
type Datatype uint8

const (
	Integer Datatype = iota
	Double
	String
)

func (d Datatype) String() string {
	switch d {
	case Integer:
		return "INTEGER"
	case Double:
		return "DOUBLE"
	case String:
		return "STRING"
	default:
		return fmt.Sprintf("Datatype(%d)", uint8(d))
	}
}

// Operator is a scan bound comparison.
type Operator uint8

const (
	LT Operator = iota
	LTE
	GTE
	GT
)

func (o Operator) String() string {
	switch o {
	case LT:
		return "LT"
	case LTE:
		return "LTE"
	case GTE:
		return "GTE"
	case GT:
		return "GT"
	default:
		return fmt.Sprintf("Operator(%d)", uint8(o))
	}
}
