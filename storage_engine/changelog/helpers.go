package changelog

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
)

// encode lays out a Record as a fixed header followed by the payload,
// checksummed with xxhash (already in the dependency graph via
// ristretto) rather than a second stdlib hash:
//
//	| table len (2) | payload len (4) | checksum (8) | table | payload |
func encode(r Record) []byte {
	total := recordHeaderSize + len(r.Table) + len(r.Payload)
	buf := make([]byte, total)

	binary.BigEndian.PutUint16(buf[0:2], uint16(len(r.Table)))
	binary.BigEndian.PutUint32(buf[2:6], uint32(len(r.Payload)))
	binary.BigEndian.PutUint64(buf[6:14], checksum(r))
	copy(buf[recordHeaderSize:], r.Table)
	copy(buf[recordHeaderSize+len(r.Table):], r.Payload)

	return buf
}

func checksum(r Record) uint64 {
	h := xxhash.New()
	h.WriteString(r.Table)
	h.Write(r.Payload)
	return h.Sum64()
}

// decodeRecord reads one record starting at buf[0], returning it and the
// number of bytes it consumed.
func decodeRecord(buf []byte) (Record, int, error) {
	if len(buf) < recordHeaderSize {
		return Record{}, 0, fmt.Errorf("changelog: truncated record header")
	}

	tableLen := int(binary.BigEndian.Uint16(buf[0:2]))
	payloadLen := int(binary.BigEndian.Uint32(buf[2:6]))
	wantChecksum := binary.BigEndian.Uint64(buf[6:14])

	end := recordHeaderSize + tableLen + payloadLen
	if len(buf) < end {
		return Record{}, 0, fmt.Errorf("changelog: truncated record body")
	}

	rec := Record{
		Table:   string(buf[recordHeaderSize : recordHeaderSize+tableLen]),
		Payload: buf[recordHeaderSize+tableLen : end],
	}

	if checksum(rec) != wantChecksum {
		return Record{}, 0, fmt.Errorf("changelog: checksum mismatch decoding record")
	}

	return rec, end, nil
}
