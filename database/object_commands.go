package database

import (
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/datastruct/set"
	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/datastruct/stream"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

const zeroDigest = "0000000000000000000000000000000000000000"

// listpackThreshold is the element count real Redis's
// hash/set/zset-max-listpack-entries default to (128); OBJECT ENCODING
// reports the compact listpack encoding at or below it and the hashtable/
// skiplist encoding above it, the same cutover real Redis uses,
// without exposing the config knobs that tune it in real Redis.
const listpackThreshold = 128

// intsetThreshold mirrors set-max-intset-entries' 512 default.
const intsetThreshold = 512

func execObject(db *DB, args [][]byte) redis.Reply {
	if len(args) < 1 {
		return protocol.MakeArgNumErrReply("object")
	}
	switch strings.ToUpper(string(args[0])) {
	case "ENCODING":
		if len(args) != 2 {
			return protocol.MakeArgNumErrReply("object|encoding")
		}
		entity, ok := db.GetEntity(string(args[1]))
		if !ok {
			return protocol.MakeErrReply("ERR no such key")
		}
		return protocol.MakeBulkReply([]byte(encodingName(entity.Data)))
	default:
		return protocol.MakeErrReply("ERR unknown OBJECT subcommand")
	}
}

// encodingName reports the OBJECT ENCODING name for a stored value,
// following real Redis's compact-vs-full cutover per type.
func encodingName(data interface{}) string {
	switch val := data.(type) {
	case []byte:
		if _, err := strconv.ParseInt(string(val), 10, 64); err == nil {
			return "int"
		}
		if len(val) <= 44 {
			return "embstr"
		}
		return "raw"
	case *list.LinkedList:
		if val.Len() <= listpackThreshold {
			return "listpack"
		}
		return "quicklist"
	case dict.Dict:
		if val.Len() <= listpackThreshold {
			return "listpack"
		}
		return "hashtable"
	case *set.Set:
		if val.Len() <= intsetThreshold && allInts(val) {
			return "intset"
		}
		if val.Len() <= listpackThreshold {
			return "listpack"
		}
		return "hashtable"
	case *sortedset.SortedSet:
		if val.Len() <= listpackThreshold {
			return "listpack"
		}
		return "skiplist"
	case *stream.Stream:
		return "stream"
	default:
		return "unknown"
	}
}

func allInts(s *set.Set) bool {
	allInt := true
	s.ForEach(func(member string) bool {
		if _, err := strconv.ParseInt(member, 10, 64); err != nil {
			allInt = false
			return false
		}
		return true
	})
	return allInt
}

// execDebug implements the one DEBUG subcommand peadb's test surface
// needs: DIGEST-VALUE key [key ...], the per-key digest DEBUG DIGEST-VALUE
// exposes in real Redis for comparing two instances' state key by key.
func execDebug(db *DB, args [][]byte) redis.Reply {
	if len(args) < 1 {
		return protocol.MakeArgNumErrReply("debug")
	}
	switch strings.ToUpper(string(args[0])) {
	case "DIGEST-VALUE":
		if len(args) < 2 {
			return protocol.MakeArgNumErrReply("debug")
		}
		result := make([][]byte, len(args)-1)
		for i, key := range args[1:] {
			digest := db.Digest(string(key))
			if digest == "" {
				digest = zeroDigest
			}
			result[i] = []byte(digest)
		}
		return protocol.MakeMultiBulkReply(result)
	default:
		return protocol.MakeErrReply("ERR unknown DEBUG subcommand")
	}
}

func init() {
	RegisterCommand("object", execObject, func(args [][]byte) ([]string, []string) {
		if len(args) < 2 {
			return nil, nil
		}
		return nil, []string{string(args[1])}
	}, nil, -2, flagReadOnly)
	RegisterCommand("debug", execDebug, noPrepare, nil, -2, flagReadOnly)
}
