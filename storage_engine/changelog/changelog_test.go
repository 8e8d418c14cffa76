package changelog

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestAppendAndFlushDeliversBlock(t *testing.T) {
	var mu sync.Mutex
	var blocks [][]byte

	s := NewStream(func(block []byte) error {
		mu.Lock()
		defer mu.Unlock()
		blocks = append(blocks, block)
		return nil
	})

	if err := s.Append(Record{Table: "orders", Payload: []byte("row1")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(blocks) != 1 {
		t.Fatalf("got %d flushed blocks, want 1", len(blocks))
	}

	rec, n, err := decodeRecord(blocks[0])
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if n != len(blocks[0]) {
		t.Errorf("decodeRecord consumed %d of %d bytes", n, len(blocks[0]))
	}
	if rec.Table != "orders" || string(rec.Payload) != "row1" {
		t.Errorf("decoded record = %+v, want Table=orders Payload=row1", rec)
	}
}

func TestFlushNowNoOpWhenEmpty(t *testing.T) {
	calls := 0
	s := NewStream(func(block []byte) error {
		calls++
		return nil
	})
	if err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if calls != 0 {
		t.Errorf("consumer called %d times on empty flush, want 0", calls)
	}
}

func TestAppendFlushesWhenBlockWouldOverflow(t *testing.T) {
	var flushSizes []int
	s := NewStream(func(block []byte) error {
		flushSizes = append(flushSizes, len(block))
		return nil
	})

	big := make([]byte, MaxBlockSize-recordHeaderSize-len("t"))
	if err := s.Append(Record{Table: "t", Payload: big}); err != nil {
		t.Fatalf("Append big: %v", err)
	}
	if err := s.Append(Record{Table: "t", Payload: []byte("x")}); err != nil {
		t.Fatalf("Append small: %v", err)
	}
	if err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}

	if len(flushSizes) != 2 {
		t.Fatalf("got %d flushes, want 2 (overflow triggers one, FlushNow triggers the other)", len(flushSizes))
	}
}

func TestAppendRejectsOversizedRecord(t *testing.T) {
	s := NewStream(func(block []byte) error { return nil })
	huge := make([]byte, MaxBlockSize+1)
	if err := s.Append(Record{Table: "t", Payload: huge}); err == nil {
		t.Fatal("expected error appending a record larger than MaxBlockSize")
	}
}

func TestRollbackToMarkDiscardsSinceMark(t *testing.T) {
	var flushed []byte
	s := NewStream(func(block []byte) error {
		flushed = block
		return nil
	})

	if err := s.Append(Record{Table: "t", Payload: []byte("keep")}); err != nil {
		t.Fatalf("Append keep: %v", err)
	}
	mark := s.Mark()
	if err := s.Append(Record{Table: "t", Payload: []byte("discard")}); err != nil {
		t.Fatalf("Append discard: %v", err)
	}
	if err := s.RollbackToMark(mark); err != nil {
		t.Fatalf("RollbackToMark: %v", err)
	}
	if err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}

	rec, _, err := decodeRecord(flushed)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if string(rec.Payload) != "keep" {
		t.Errorf("flushed payload = %q, want %q (rollback should have discarded the rest)", rec.Payload, "keep")
	}
}

func TestRollbackToMarkRejectsStaleMarkAfterFlush(t *testing.T) {
	var blocks [][]byte
	s := NewStream(func(block []byte) error {
		blocks = append(blocks, block)
		return nil
	})

	if err := s.Append(Record{Table: "t", Payload: []byte("first-block")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	mark := s.Mark()
	if err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}

	if err := s.Append(Record{Table: "t", Payload: []byte("second-block-record")}); err != nil {
		t.Fatalf("Append into new block: %v", err)
	}

	if err := s.RollbackToMark(mark); err == nil {
		t.Fatal("expected RollbackToMark to reject a mark from a generation that has already been flushed")
	}

	if err := s.FlushNow(); err != nil {
		t.Fatalf("FlushNow: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("got %d flushed blocks, want 2", len(blocks))
	}
	rec, _, err := decodeRecord(blocks[1])
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	if string(rec.Payload) != "second-block-record" {
		t.Errorf("second block payload = %q, want the rejected rollback to have left it untouched", rec.Payload)
	}
}

func TestConsumerErrorPropagates(t *testing.T) {
	s := NewStream(func(block []byte) error {
		return fmt.Errorf("destination unavailable")
	})
	if err := s.Append(Record{Table: "t", Payload: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.FlushNow(); err == nil {
		t.Fatal("expected FlushNow to surface the consumer's error")
	}
}

func TestStartPeriodicFlushEventuallyDelivers(t *testing.T) {
	done := make(chan struct{}, 1)
	s := NewStream(func(block []byte) error {
		select {
		case done <- struct{}{}:
		default:
		}
		return nil
	})
	defer s.Close()

	if err := s.Append(Record{Table: "t", Payload: []byte("x")}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.StartPeriodicFlush(10 * time.Millisecond)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic flush never delivered a block")
	}
}
