// Package anticache is the eviction-facing contract: the only surface
// the eviction manager talks to. It is a thin pass through to
// storage_engine/blockstore, adding nothing but the table name that
// makes an UnknownBlockError actionable at the SQL layer — the block
// store itself has no notion of tables.
package anticache

import (
	"errors"
	"log"

	"anticachedb/storage_engine/blockstore"

	"github.com/dustin/go-humanize"
)

// DefaultReadCacheBytes bounds how much of a store's recently-read
// payloads ristretto is allowed to keep warm. See blockstore/cache.go.
const DefaultReadCacheBytes = 64 << 20 // 64 MiB

// Store is the eviction-facing contract: WriteBlock/ReadBlock, backed by
// one blockstore.Store per directory.
type Store struct {
	env       *blockstore.Environment
	db        *blockstore.Database
	blocks    *blockstore.Store
	allocator *blockstore.Allocator
}

// Open opens (creating if absent) the anti-cache store rooted at dir,
// running the full open protocol: environment, then database, then
// wiring in the block store and a fresh, unpersisted allocator. Failure
// anywhere in that chain is a fatal *blockstore.StoreInitFault.
func Open(dir string) (*Store, error) {
	env, err := blockstore.OpenEnvironment(dir)
	if err != nil {
		return nil, err
	}

	db, err := blockstore.OpenDatabase(env)
	if err != nil {
		return nil, err
	}

	blocks, err := blockstore.NewStore(db, DefaultReadCacheBytes)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		env:       env,
		db:        db,
		blocks:    blocks,
		allocator: blockstore.NewAllocator(),
	}, nil
}

// NextID hands out the next block id for this store instance, exposed
// here because callers of WriteBlock need an id to pass in — the
// eviction manager asks the allocator for a fresh id before it ever
// calls write.
func (s *Store) NextID() (uint16, error) {
	return s.allocator.Next()
}

// WriteBlock persists bytes under id, overwriting any prior value. The
// caller owns bytes during the call; WriteBlock does not retain it.
func (s *Store) WriteBlock(id uint16, bytes []byte) error {
	if err := s.blocks.Write(id, bytes); err != nil {
		return err
	}
	log.Printf("[anticache] wrote block id=%d size=%s", id, humanize.Bytes(uint64(len(bytes))))
	return nil
}

// Sync forces the underlying block store to disk without closing it. A
// caller that just wrote the only remaining copy of something it is
// about to drop from memory — an eviction — calls this before it trusts
// that write as durable.
func (s *Store) Sync() error {
	return s.blocks.Sync()
}

// ReadBlock looks up id and returns an owned Handle, or an
// *UnknownBlockError naming table and id on a miss. Any other failure
// surfaces as the underlying *blockstore.StoreFault.
func (s *Store) ReadBlock(table string, id uint16) (*blockstore.Handle, error) {
	handle, err := s.blocks.Read(id)
	if err != nil {
		var notFound *blockstore.ErrBlockNotFound
		if errors.As(err, &notFound) {
			return nil, &UnknownBlockError{Table: table, ID: id}
		}
		return nil, err
	}
	log.Printf("[anticache] read block table=%q id=%d size=%s", table, id, humanize.Bytes(uint64(handle.Len())))
	return handle, nil
}

// Close runs the close protocol: database (and its cache) first, then
// the environment. A failure closing the database does not skip closing
// the environment; both failures are fatal.
func (s *Store) Close() error {
	blocksErr := s.blocks.Close()
	envErr := s.env.Close()
	if blocksErr != nil {
		return blocksErr
	}
	return envErr
}
