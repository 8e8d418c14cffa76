package blockstore

import (
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

/*
readCache is a ristretto cache sitting in front of Store.Read so that
repeat reads of the same freshly-unevicted block — the expected shape of
a race between eviction and unevict — don't all hit the file. It never
participates in correctness: Read always treats a cache hit as an
optimization, falling through to the file on a miss, and Write
invalidates rather than refreshes the id it overwrites — ristretto's Set
is buffered and applied by a background goroutine, so re-Setting the new
payload on overwrite could still lose to a Set for the old payload still
working its way through that buffer. Del removes the entry from the
underlying store immediately, so the next Read is guaranteed to miss and
go to the file, which always has the last write.
*/

type readCache struct {
	cache *ristretto.Cache[uint32, []byte]
}

// newReadCache builds a cache costed in payload bytes up to maxBytes. A
// maxBytes of 0 disables caching entirely — Store.Read then always goes
// to the file, which is always correct, just slower under contention.
func newReadCache(maxBytes int64) (*readCache, error) {
	if maxBytes <= 0 {
		return nil, nil
	}

	c, err := ristretto.NewCache(&ristretto.Config[uint32, []byte]{
		NumCounters: maxBytes / 32, // ~1 counter per expected small block
		MaxCost:     maxBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("anticache: init read cache: %w", err)
	}

	return &readCache{cache: c}, nil
}

func (rc *readCache) get(id uint16) ([]byte, bool) {
	if rc == nil {
		return nil, false
	}
	data, ok := rc.cache.Get(uint32(id))
	if !ok {
		return nil, false
	}
	// The cache owns this slice; hand the caller a fresh copy so a
	// Handle built from it still exclusively owns its bytes.
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

func (rc *readCache) set(id uint16, payload []byte) {
	if rc == nil {
		return
	}
	stored := make([]byte, len(payload))
	copy(stored, payload)
	rc.cache.Set(uint32(id), stored, int64(len(stored)))
}

// del removes id's entry, used on overwrite instead of set so a Read
// racing a Write for the same id can never observe the payload Write is
// in the middle of superseding.
func (rc *readCache) del(id uint16) {
	if rc == nil {
		return
	}
	rc.cache.Del(uint32(id))
}

func (rc *readCache) close() {
	if rc == nil {
		return
	}
	rc.cache.Close()
}
