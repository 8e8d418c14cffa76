package blockstore

import (
	"encoding/binary"
	"fmt"
	"os"
)

/*
This file is the store lifecycle manager.

Open protocol:
 1. Construct the environment: create the store directory if absent.
 2. Open the environment rooted at that directory (no-op beyond step 1 —
    the environment carries no state of its own besides the path).
 3. Construct a database handle bound to the environment.
 4. Open anticache.db under that directory, hash-organized, create-if-missing.

Any failure at steps 1-4 is reported as StoreInitFault carrying the
directory path. Close reverses the order: database first, environment
second, each wrapped independently so a database-close failure does not
skip the environment close.
*/

// OpenEnvironment creates dir if it does not already exist and returns a
// handle to it. This is steps 1-2 of the open protocol.
func OpenEnvironment(dir string) (*Environment, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StoreInitFault{Dir: dir, Err: fmt.Errorf("create store directory: %w", err)}
	}
	return &Environment{dir: dir}, nil
}

// Dir returns the directory this environment is rooted at.
func (e *Environment) Dir() string { return e.dir }

// Close releases the environment. The environment itself holds no OS
// resources — it exists so the open/close order is explicit in code,
// not implicit in construction order.
func (e *Environment) Close() error { return nil }

// OpenDatabase opens (or creates) anticache.db under env's directory as a
// hash-organized file. This is steps 3-4 of the open protocol.
func OpenDatabase(env *Environment) (*Database, error) {
	return openDatabaseWithBuckets(env, defaultBucketCount)
}

func openDatabaseWithBuckets(env *Environment, bucketCount uint32) (*Database, error) {
	path := env.dir + string(os.PathSeparator) + dbFileName

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, &StoreInitFault{Dir: env.dir, Err: fmt.Errorf("open %s: %w", dbFileName, err)}
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, &StoreInitFault{Dir: env.dir, Err: fmt.Errorf("stat %s: %w", dbFileName, err)}
	}

	db := &Database{env: env, file: file, bucketCount: bucketCount}

	if stat.Size() == 0 {
		if err := db.initEmpty(); err != nil {
			file.Close()
			return nil, &StoreInitFault{Dir: env.dir, Err: err}
		}
	} else {
		if err := db.loadHeader(); err != nil {
			file.Close()
			return nil, &StoreInitFault{Dir: env.dir, Err: err}
		}
	}

	return db, nil
}

// initEmpty lays down the header and an all-zero bucket table for a
// freshly created database file.
func (db *Database) initEmpty() error {
	buf := make([]byte, headerSize)
	copy(buf, magic)
	binary.LittleEndian.PutUint32(buf[8:12], db.bucketCount)
	nextWrite := int64(headerSize) + int64(db.bucketCount)*8
	binary.LittleEndian.PutUint64(buf[12:20], uint64(nextWrite))

	if _, err := db.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	bucketTable := make([]byte, int64(db.bucketCount)*8)
	if _, err := db.file.WriteAt(bucketTable, headerSize); err != nil {
		return fmt.Errorf("write bucket table: %w", err)
	}

	db.nextWrite = nextWrite
	return nil
}

// loadHeader reads back the header of an existing anticache.db, used when
// reopening a store directory that already holds data.
func (db *Database) loadHeader() error {
	buf := make([]byte, headerSize)
	if _, err := db.file.ReadAt(buf, 0); err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if string(buf[0:8]) != magic {
		return fmt.Errorf("%s: not an anticache database (bad magic)", dbFileName)
	}
	db.bucketCount = binary.LittleEndian.Uint32(buf[8:12])
	db.nextWrite = int64(binary.LittleEndian.Uint64(buf[12:20]))
	return nil
}

// Close closes the database file first. Callers close the environment
// afterward via Environment.Close.
func (db *Database) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.file == nil {
		return nil
	}

	if err := db.file.Sync(); err != nil {
		return &StoreFault{Op: "close/sync", Err: err}
	}
	if err := db.file.Close(); err != nil {
		return &StoreFault{Op: "close", Err: err}
	}
	db.file = nil
	return nil
}
