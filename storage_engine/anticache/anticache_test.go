package anticache

import (
	"errors"
	"testing"
)

func TestOpenWriteReadRoundTrip(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	id, err := store.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}

	payload := []byte("cold row bytes")
	if err := store.WriteBlock(id, payload); err != nil {
		t.Fatalf("WriteBlock: %v", err)
	}

	handle, err := store.ReadBlock("orders", id)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	defer handle.Release()

	if string(handle.Bytes()) != string(payload) {
		t.Errorf("ReadBlock = %q, want %q", handle.Bytes(), payload)
	}
}

func TestReadBlockUnknownID(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	_, err = store.ReadBlock("orders", 999)
	if err == nil {
		t.Fatal("expected error reading unwritten block")
	}

	var unknown *UnknownBlockError
	if !errors.As(err, &unknown) {
		t.Fatalf("expected *UnknownBlockError, got %T: %v", err, err)
	}
	if unknown.Table != "orders" || unknown.ID != 999 {
		t.Errorf("UnknownBlockError = %+v, want Table=orders ID=999", unknown)
	}
}

func TestNextIDMonotonicAcrossWrites(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	first, err := store.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	second, err := store.NextID()
	if err != nil {
		t.Fatalf("NextID: %v", err)
	}
	if second != first+1 {
		t.Errorf("second id = %d, want %d", second, first+1)
	}
}

func TestCloseAfterOpen(t *testing.T) {
	store, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
}
