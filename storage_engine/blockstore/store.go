package blockstore

import (
	"encoding/binary"
	"io"
)

/*
This is the main file of the block store.

It owns:
  - the Database's os.File handle (opened by environment.go)
  - the on-disk hash table: a fixed bucket array of chain-head offsets,
    each chain threading through variable-length records appended at the
    end of the file
  - allocation discipline on read: every Read returns a freshly allocated
    []byte, never a slice into any buffer the store itself still owns

Record layout, appended at db.nextWrite and never rewritten in place:

	| id (2) | payload length (4) | prev chain offset (8) | payload (len) |

Writing a new value for an id does not touch the old record: it appends a
new one and rewrites only the 8-byte bucket-head slot to point at it. Read
walks the chain from the head, so the newest write for an id is always
found first — last write wins — while superseded payloads are left in
the file, never reclaimed.

Key representation is the raw 2-byte little-endian encoding of the id,
chosen as a canonical encoding rather than true host-native encoding —
Go has no ergonomic, safe way to encode "whatever this process's native
byte order is" without unsafe.
*/

// Store is the durable, single-writer id→bytes block store. It composes
// a Database (file + hash table) with an optional read-through cache
// (see cache.go).
type Store struct {
	db    *Database
	cache *readCache
}

// NewStore wraps an already-opened Database as a Store, wiring in a
// read-through cache sized for byteBudget bytes of cached payloads. A
// byteBudget of 0 disables the cache.
func NewStore(db *Database, byteBudget int64) (*Store, error) {
	rc, err := newReadCache(byteBudget)
	if err != nil {
		return nil, &StoreInitFault{Dir: db.env.Dir(), Err: err}
	}
	return &Store{db: db, cache: rc}, nil
}

// Close closes the cache and the database, in that order, then leaves the
// environment for the caller to close.
func (s *Store) Close() error {
	if s.cache != nil {
		s.cache.close()
	}
	return s.db.Close()
}

func bucketFor(id uint16, bucketCount uint32) uint32 {
	return uint32(id) % bucketCount
}

func bucketOffset(bucket uint32) int64 {
	return headerSize + int64(bucket)*8
}

// Write persists payload under id, overwriting any prior value. It
// blocks until the write reaches the OS file — there is no per-write
// fsync; durability is as strong as the OS default until Sync or Close
// is called.
func (s *Store) Write(id uint16, payload []byte) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()

	bucket := bucketFor(id, s.db.bucketCount)

	headBuf := make([]byte, 8)
	if _, err := s.db.file.ReadAt(headBuf, bucketOffset(bucket)); err != nil {
		return &StoreFault{Op: "write/read-bucket-head", Err: err}
	}
	prevOffset := int64(binary.LittleEndian.Uint64(headBuf))

	recordOffset := s.db.nextWrite
	record := make([]byte, recordHeaderSize+len(payload))
	binary.LittleEndian.PutUint16(record[0:2], id)
	binary.LittleEndian.PutUint32(record[2:6], uint32(len(payload)))
	binary.LittleEndian.PutUint64(record[6:14], uint64(prevOffset))
	copy(record[recordHeaderSize:], payload)

	if _, err := s.db.file.WriteAt(record, recordOffset); err != nil {
		return &StoreFault{Op: "write/append-record", Err: err}
	}

	newHead := make([]byte, 8)
	binary.LittleEndian.PutUint64(newHead, uint64(recordOffset))
	if _, err := s.db.file.WriteAt(newHead, bucketOffset(bucket)); err != nil {
		return &StoreFault{Op: "write/update-bucket-head", Err: err}
	}

	s.db.nextWrite = recordOffset + int64(len(record))
	if err := s.persistNextWrite(); err != nil {
		return &StoreFault{Op: "write/persist-tail", Err: err}
	}

	if s.cache != nil {
		s.cache.del(id)
	}

	return nil
}

// persistNextWrite updates the header's tail pointer so a reopened store
// keeps appending past the last record instead of overwriting it.
// Caller holds db.mu.
func (s *Store) persistNextWrite() error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(s.db.nextWrite))
	_, err := s.db.file.WriteAt(buf, 12)
	return err
}

// Read looks up id and returns a freshly allocated copy of the stored
// bytes wrapped in a Handle, or *ErrBlockNotFound on a miss.
func (s *Store) Read(id uint16) (*Handle, error) {
	if s.cache != nil {
		if data, ok := s.cache.get(id); ok {
			return newHandle(id, data), nil
		}
	}

	s.db.mu.RLock()
	defer s.db.mu.RUnlock()

	bucket := bucketFor(id, s.db.bucketCount)

	headBuf := make([]byte, 8)
	if _, err := s.db.file.ReadAt(headBuf, bucketOffset(bucket)); err != nil {
		return nil, &StoreFault{Op: "read/read-bucket-head", Err: err}
	}
	offset := int64(binary.LittleEndian.Uint64(headBuf))

	for offset != 0 {
		hdr := make([]byte, recordHeaderSize)
		if _, err := s.db.file.ReadAt(hdr, offset); err != nil {
			return nil, &StoreFault{Op: "read/read-record-header", Err: err}
		}

		recID := binary.LittleEndian.Uint16(hdr[0:2])
		payloadLen := binary.LittleEndian.Uint32(hdr[2:6])
		prevOffset := int64(binary.LittleEndian.Uint64(hdr[6:14]))

		if recID == id {
			// Allocation discipline: a fresh buffer per read, never a
			// slice into anything the store retains.
			payload := make([]byte, payloadLen)
			if _, err := io.ReadFull(&offsetReader{file: s.db.file, offset: offset + recordHeaderSize}, payload); err != nil {
				return nil, &StoreFault{Op: "read/read-payload", Err: err}
			}
			if s.cache != nil {
				s.cache.set(id, payload)
			}
			return newHandle(id, payload), nil
		}

		offset = prevOffset
	}

	return nil, &ErrBlockNotFound{ID: id}
}

// offsetReader adapts Database.file's ReadAt into an io.Reader starting at
// a fixed offset, so io.ReadFull can be used for the payload read.
type offsetReader struct {
	file interface {
		ReadAt(p []byte, off int64) (int, error)
	}
	offset int64
}

func (r *offsetReader) Read(p []byte) (int, error) {
	n, err := r.file.ReadAt(p, r.offset)
	r.offset += int64(n)
	return n, err
}

// Sync forces the underlying file to disk without closing it. Callers
// that need a durability point before a victim's tombstone can be
// trusted — an eviction, say — call this right after the Write that
// made the victim's only copy live outside memory.
func (s *Store) Sync() error {
	s.db.mu.RLock()
	defer s.db.mu.RUnlock()
	if err := s.db.file.Sync(); err != nil {
		return &StoreFault{Op: "sync", Err: err}
	}
	return nil
}
