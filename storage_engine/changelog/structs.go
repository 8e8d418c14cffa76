package changelog

import "sync"

const (
	// recordHeaderSize is table-length (2) + payload length (4) + checksum (8).
	recordHeaderSize = 14

	// MaxBlockSize is the fixed cap a buffered block is never allowed to
	// exceed: 2,097,152 bytes.
	MaxBlockSize = 2 * 1024 * 1024
)

// Record is one committed row change buffered by a Stream. The row's own
// encoding is the caller's business — Stream only ever sees opaque bytes.
type Record struct {
	Table   string
	Payload []byte
}

// Consumer receives a completed (or force-flushed) block of encoded
// records. Its destination — disk, network, the anti-cache itself for
// cold change history — is outside this package's scope.
type Consumer func(block []byte) error

// Savepoint identifies an offset within a specific generation of the
// current block. The generation lets RollbackToMark tell a savepoint
// taken against the still-open block apart from one taken against a
// block that has since been flushed — a stale savepoint is rejected
// rather than silently truncating whatever the new block has grown to.
type Savepoint struct {
	generation uint64
	offset     int
}

// Stream buffers committed records into fixed-size blocks and hands each
// one to a Consumer, with savepoint (Mark/RollbackToMark) and periodic
// flush support.
type Stream struct {
	consumer   Consumer
	buf        []byte
	generation uint64
	stopFlush  chan struct{}
	mu         sync.Mutex
}
