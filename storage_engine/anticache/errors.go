package anticache

import "fmt"

// UnknownBlockError is the only recoverable error at this layer: a read
// named an id the store has no record of. It carries the requesting
// table name purely for diagnostic context — the store itself has no
// notion of tables — so the SQL layer above can report which table's
// tombstone pointed at a block that was never written or that raced
// with a concurrent unevict.
//
// It is a distinct error kind, not a StoreFault subtype, so callers can
// narrow on it with errors.As and treat it as recoverable while treating
// everything else from this package as fatal.
type UnknownBlockError struct {
	Table string
	ID    uint16
}

func (e *UnknownBlockError) Error() string {
	return fmt.Sprintf("anticache: unknown block: table=%q id=%d", e.Table, e.ID)
}
