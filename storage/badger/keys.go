package badger

import (
	"encoding/binary"
	"fmt"
)

// Key prefixes for different data types
const (
	recordPrefix = "rec"
	chunkPrefix  = "chk"
)

// keySep separates variable-length string components. Record ids come from
// upstream connectors and may contain ':' so a NUL byte is used instead.
const keySep = 0x00

// makeRecordKey generates a key for a record by ID.
func makeRecordKey(id string) []byte {
	return []byte(fmt.Sprintf("%s:%s", recordPrefix, id))
}

// makeChunkKey generates a composite key for a chunk.
// Format: prefix:recordID\0virtualRecordID\0index
func makeChunkKey(recordID, virtualRecordID string, index int) []byte {
	prefix := makePartialChunkKey(recordID, virtualRecordID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort follows chunk order
	binary.BigEndian.PutUint64(buf[offset:], uint64(index))
	return buf
}

// makePartialChunkKey generates the prefix shared by every chunk of one
// virtual record. An empty virtualRecordID yields the prefix of all versions.
// Format: prefix:recordID\0[virtualRecordID\0]
func makePartialChunkKey(recordID, virtualRecordID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+len(recordID)+len(virtualRecordID)+3)
	buf = append(buf, chunkPrefix...)
	buf = append(buf, ':')
	buf = append(buf, recordID...)
	buf = append(buf, keySep)
	if virtualRecordID != "" {
		buf = append(buf, virtualRecordID...)
		buf = append(buf, keySep)
	}
	return buf
}
