// Package changelog implements the change-log stream wrapper: buffering
// committed row changes into fixed-size blocks handed to an external
// consumer, with rollback-to-mark and periodic flush. It is out of scope
// for the anti-cache proper except as a contract surface consumed by
// higher layers, so this package never decides where a flushed block
// goes — that is the Consumer's job.
//
// Same "append records into an append-only region, checksum each one,
// thread a header" shape a write-ahead log uses, moved from
// LSN-addressed segment files to an in-memory block buffer since the
// destination is now an injected callback rather than a fixed file path.
package changelog

import (
	"fmt"
	"time"
)

// NewStream builds a Stream that hands each completed block to consumer.
// Each block is a fresh copy of the buffered bytes, so consumer may
// retain the slice it is given.
func NewStream(consumer Consumer) *Stream {
	return &Stream{
		consumer: consumer,
		buf:      make([]byte, 0, MaxBlockSize),
	}
}

// Append encodes record and appends it to the current block. If the
// encoded record would not fit in the remaining space of the current
// block, the current block is flushed to the consumer first and a new
// block is started — the record itself is never split across blocks.
// A single record larger than MaxBlockSize can never fit and is
// rejected outright.
func (s *Stream) Append(record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded := encode(record)
	if len(encoded) > MaxBlockSize {
		return fmt.Errorf("changelog: record of %d bytes exceeds block cap %d", len(encoded), MaxBlockSize)
	}

	if len(s.buf)+len(encoded) > MaxBlockSize {
		if err := s.flushLocked(); err != nil {
			return err
		}
	}

	s.buf = append(s.buf, encoded...)
	return nil
}

// Mark returns a savepoint for the current in-flight block. Passing it to
// RollbackToMark later discards every record appended since, as long as
// the block has not been flushed in the meantime.
func (s *Stream) Mark() Savepoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Savepoint{generation: s.generation, offset: len(s.buf)}
}

// RollbackToMark discards every record appended to the current block
// since mark was taken, a block-buffer analogue of a transaction abort:
// undo uncommitted work without disturbing anything already flushed.
// mark must have come from a Mark call taken since the block's last
// flush — one taken against an earlier generation is rejected outright,
// since the current block's length is coincidental and truncating it to
// that offset would discard unrelated records rather than the ones the
// caller meant to undo.
func (s *Stream) RollbackToMark(mark Savepoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if mark.generation != s.generation {
		return fmt.Errorf("changelog: mark is from generation %d, current block is generation %d (already flushed)", mark.generation, s.generation)
	}
	if mark.offset < 0 || mark.offset > len(s.buf) {
		return fmt.Errorf("changelog: mark offset %d is not valid for a block of %d buffered bytes", mark.offset, len(s.buf))
	}
	s.buf = s.buf[:mark.offset]
	return nil
}

// FlushNow hands the current block to the consumer immediately, even if
// it has not reached MaxBlockSize, and starts a new empty block. It is a
// no-op if nothing is buffered.
func (s *Stream) FlushNow() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Stream) flushLocked() error {
	if len(s.buf) == 0 {
		return nil
	}

	block := make([]byte, len(s.buf))
	copy(block, s.buf)

	if err := s.consumer(block); err != nil {
		return fmt.Errorf("changelog: consumer rejected block: %w", err)
	}

	s.buf = s.buf[:0]
	s.generation++
	return nil
}

// StartPeriodicFlush runs FlushNow every interval until Close is called,
// bounding how long a record can sit unflushed even if the block never
// fills. Flush errors are dropped on the floor here — there is no path
// to surface an async flush failure from a background goroutine; a
// caller that needs to observe them should call FlushNow synchronously
// instead.
func (s *Stream) StartPeriodicFlush(interval time.Duration) {
	s.mu.Lock()
	if s.stopFlush != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.stopFlush = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				_ = s.FlushNow()
			case <-stop:
				return
			}
		}
	}()
}

// Close stops any periodic flush goroutine and flushes whatever remains
// buffered.
func (s *Stream) Close() error {
	s.mu.Lock()
	stop := s.stopFlush
	s.stopFlush = nil
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	return s.FlushNow()
}
