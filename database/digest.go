package database

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/datastruct/set"
	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/datastruct/stream"
)

// Digest returns a short content hash for key, the value WATCH compares
// at EXEC time instead of the teacher's monotonic version counter:
// hashing the actual content (instead of bumping a counter on every
// write) means a value that changes and changes back reads as unchanged,
// so EXEC aborts only when a watched key's TTL or content differs from
// what it was at WATCH time.
func (db *DB) Digest(key string) string {
	entity, ok := db.GetEntity(key)
	if !ok {
		return ""
	}
	h := sha1.New()
	if deadline, hasTTL := db.TTL(key); hasTTL {
		h.Write([]byte(strconv.FormatInt(deadline.UnixMilli(), 10)))
	} else {
		h.Write([]byte("no-ttl"))
	}
	h.Write([]byte{0})
	switch val := entity.Data.(type) {
	case []byte:
		h.Write(val)
	case *list.LinkedList:
		val.ForEach(func(i int, v interface{}) bool {
			h.Write(v.([]byte))
			h.Write([]byte{0})
			return true
		})
	case dict.Dict:
		// ForEach ranges a bare Go map, whose iteration order is randomized
		// per the language spec; sort fields first so the digest of an
		// unchanged hash never varies between calls (spurious WATCH aborts
		// and non-reproducible RDB/AOF digests otherwise).
		fields := make([]string, 0, val.Len())
		val.ForEach(func(field string, _ interface{}) bool {
			fields = append(fields, field)
			return true
		})
		sort.Strings(fields)
		for _, field := range fields {
			h.Write([]byte(field))
			if raw, ok := val.Get(field); ok {
				if b, ok := raw.([]byte); ok {
					h.Write(b)
				}
			}
			h.Write([]byte{0})
		}
	case *set.Set:
		members := make([]string, 0, val.Len())
		val.ForEach(func(member string) bool {
			members = append(members, member)
			return true
		})
		sort.Strings(members)
		for _, member := range members {
			h.Write([]byte(member))
			h.Write([]byte{0})
		}
	case *sortedset.SortedSet:
		val.ForEach(0, val.Len(), false, func(e *sortedset.Element) bool {
			h.Write([]byte(e.Member))
			h.Write([]byte(strconv.FormatFloat(e.Score, 'f', -1, 64)))
			return true
		})
	case *stream.Stream:
		for _, entry := range val.Entries {
			h.Write([]byte(entry.ID.String()))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
