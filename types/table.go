// Package types holds small value types kept outside any one storage
// package; the catalog uses ColumnDef to describe a column.
package types

// ColumnDef describes a single column attached to a table node in the
// catalog tree. It carries no storage information — the catalog only
// resolves names, it does not decide how a column's values are laid out
// on disk.
type ColumnDef struct {
	Name string
	Type string
}
