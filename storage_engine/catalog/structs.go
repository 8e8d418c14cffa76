package catalog

import (
	"os"
	"sync"

	"anticachedb/types"
)

// Column is a leaf node in the catalog tree.
type Column struct {
	Def types.ColumnDef
}

// Table is a named node holding named Column children.
type Table struct {
	Name    string
	Columns map[string]*Column
}

// Cluster is the tree's root, holding named Table children. A single
// process only ever manages one cluster, so CatalogManager owns it
// directly rather than exposing a map of clusters.
type Cluster struct {
	Tables map[string]*Table
}

// CatalogManager is the catalog's line-oriented command interpreter and
// the tree it mutates. It is a name resolver only: an identifier source
// for tables and partitions, nothing more.
type CatalogManager struct {
	dir     string
	logFile *os.File
	cluster *Cluster
	mu      sync.RWMutex
}
