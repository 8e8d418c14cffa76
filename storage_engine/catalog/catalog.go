// Package catalog implements clusters/tables/columns as a typed tree of
// named nodes, mutated by a line-oriented command stream of "add", "set"
// and "delete" verbs. It is a straightforward name resolver, out of
// scope for the anti-cache proper except as an identifier source: the
// eviction manager uses table names resolved here to keep block ids
// disjoint across tables, typically by allocating from one shared store
// per partition.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"anticachedb/types"
)

const logFileName = "replay.log"

// NewCatalogManager creates dir if absent, opens its command log for
// append, and replays it to rebuild the in-memory tree — persist the
// mutation, reload by replay on open, one command line at a time rather
// than a whole-schema snapshot.
func NewCatalogManager(dir string) (*CatalogManager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("catalog: create dir %s: %w", dir, err)
	}

	cm := &CatalogManager{
		dir:     dir,
		cluster: &Cluster{Tables: make(map[string]*Table)},
	}

	if err := cm.replay(); err != nil {
		return nil, fmt.Errorf("catalog: replay %s: %w", logFileName, err)
	}

	logFile, err := os.OpenFile(filepath.Join(dir, logFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("catalog: open %s: %w", logFileName, err)
	}
	cm.logFile = logFile

	return cm, nil
}

func (cm *CatalogManager) replay() error {
	path := filepath.Join(cm.dir, logFileName)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := cm.apply(line); err != nil {
			return fmt.Errorf("replaying %q: %w", line, err)
		}
	}
	return scanner.Err()
}

// CommandError names the offending line — mutating a name that already
// exists, or one that does not, is a recoverable mistake, not a fault.
type CommandError struct {
	Line   string
	Reason string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("catalog: %q: %s", e.Line, e.Reason)
}

// Interpret parses and applies one command line, then persists it to the
// command log so a later Open replays the same mutation. Recognized verbs:
//
//	add <table>                 create a table node
//	add <table>.<column> <type> create a column node under an existing table
//	set <table>.<column> <type> change an existing column's type
//	delete <table>               remove a table and all its columns
//	delete <table>.<column>      remove a column
func (cm *CatalogManager) Interpret(line string) error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return &CommandError{Line: line, Reason: "empty command"}
	}

	if err := cm.apply(trimmed); err != nil {
		return err
	}

	if cm.logFile != nil {
		if _, err := fmt.Fprintln(cm.logFile, trimmed); err != nil {
			return fmt.Errorf("catalog: persist command: %w", err)
		}
	}

	return nil
}

func (cm *CatalogManager) apply(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return &CommandError{Line: line, Reason: "expected '<verb> <path> [value]'"}
	}

	verb, path := fields[0], fields[1]
	var value string
	if len(fields) > 2 {
		value = strings.Join(fields[2:], " ")
	}

	tableName, columnName, hasColumn := splitPath(path)

	switch verb {
	case "add":
		if !hasColumn {
			return cm.addTable(line, tableName)
		}
		return cm.addColumn(line, tableName, columnName, value)
	case "set":
		if !hasColumn {
			return &CommandError{Line: line, Reason: "'set' requires a table.column path"}
		}
		return cm.setColumn(line, tableName, columnName, value)
	case "delete":
		if !hasColumn {
			return cm.deleteTable(line, tableName)
		}
		return cm.deleteColumn(line, tableName, columnName)
	default:
		return &CommandError{Line: line, Reason: fmt.Sprintf("unknown verb %q", verb)}
	}
}

func splitPath(path string) (table, column string, hasColumn bool) {
	if idx := strings.IndexByte(path, '.'); idx >= 0 {
		return path[:idx], path[idx+1:], true
	}
	return path, "", false
}

func (cm *CatalogManager) addTable(line, name string) error {
	if _, exists := cm.cluster.Tables[name]; exists {
		return &CommandError{Line: line, Reason: fmt.Sprintf("table %q already exists", name)}
	}
	cm.cluster.Tables[name] = &Table{Name: name, Columns: make(map[string]*Column)}
	return nil
}

func (cm *CatalogManager) addColumn(line, tableName, columnName, colType string) error {
	table, ok := cm.cluster.Tables[tableName]
	if !ok {
		return &CommandError{Line: line, Reason: fmt.Sprintf("table %q does not exist", tableName)}
	}
	if _, exists := table.Columns[columnName]; exists {
		return &CommandError{Line: line, Reason: fmt.Sprintf("column %q already exists on table %q", columnName, tableName)}
	}
	table.Columns[columnName] = &Column{Def: types.ColumnDef{Name: columnName, Type: colType}}
	return nil
}

func (cm *CatalogManager) setColumn(line, tableName, columnName, colType string) error {
	table, ok := cm.cluster.Tables[tableName]
	if !ok {
		return &CommandError{Line: line, Reason: fmt.Sprintf("table %q does not exist", tableName)}
	}
	column, ok := table.Columns[columnName]
	if !ok {
		return &CommandError{Line: line, Reason: fmt.Sprintf("column %q does not exist on table %q", columnName, tableName)}
	}
	column.Def.Type = colType
	return nil
}

func (cm *CatalogManager) deleteTable(line, name string) error {
	if _, exists := cm.cluster.Tables[name]; !exists {
		return &CommandError{Line: line, Reason: fmt.Sprintf("table %q does not exist", name)}
	}
	delete(cm.cluster.Tables, name)
	return nil
}

func (cm *CatalogManager) deleteColumn(line, tableName, columnName string) error {
	table, ok := cm.cluster.Tables[tableName]
	if !ok {
		return &CommandError{Line: line, Reason: fmt.Sprintf("table %q does not exist", tableName)}
	}
	if _, exists := table.Columns[columnName]; !exists {
		return &CommandError{Line: line, Reason: fmt.Sprintf("column %q does not exist on table %q", columnName, tableName)}
	}
	delete(table.Columns, columnName)
	return nil
}

// Resolve looks up a table node by name.
func (cm *CatalogManager) Resolve(tableName string) (*Table, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	table, ok := cm.cluster.Tables[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q not found", tableName)
	}
	return table, nil
}

// ResolveColumn looks up a column node by "<table>.<column>" path.
func (cm *CatalogManager) ResolveColumn(path string) (*Column, error) {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	tableName, columnName, hasColumn := splitPath(path)
	if !hasColumn {
		return nil, fmt.Errorf("catalog: %q is not a table.column path", path)
	}
	table, ok := cm.cluster.Tables[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q not found", tableName)
	}
	column, ok := table.Columns[columnName]
	if !ok {
		return nil, fmt.Errorf("catalog: column %q not found on table %q", columnName, tableName)
	}
	return column, nil
}

// TableNames returns every table currently known to the catalog, used by
// the eviction manager to decide which partitions share an anti-cache
// store.
func (cm *CatalogManager) TableNames() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	names := make([]string, 0, len(cm.cluster.Tables))
	for name := range cm.cluster.Tables {
		names = append(names, name)
	}
	return names
}

// Close closes the command log.
func (cm *CatalogManager) Close() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.logFile == nil {
		return nil
	}
	err := cm.logFile.Close()
	cm.logFile = nil
	return err
}
