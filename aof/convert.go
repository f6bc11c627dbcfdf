package aof

import (
	"strconv"
	"time"

	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/datastruct/set"
	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/datastruct/stream"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/lib/utils"
	"github.com/alsatianco/peadb/redis/protocol"
)

// EntityToCmd reconstructs the write command that would recreate entity
// at key, by type-switching on DataEntity.Data the same way command
// executors dispatch on it. Used by AOF rewrite to compact the whole
// keyspace into one command per key instead of replaying its full
// mutation history.
func EntityToCmd(key string, entity *database.DataEntity) redis.Reply {
	if entity == nil {
		return nil
	}
	switch val := entity.Data.(type) {
	case []byte:
		return stringToCmd(key, val)
	case *list.LinkedList:
		return listToCmd(key, val)
	case dict.Dict:
		return hashToCmd(key, val)
	case *set.Set:
		return setToCmd(key, val)
	case *sortedset.SortedSet:
		return zSetToCmd(key, val)
	case *stream.Stream:
		return streamToCmd(key, val)
	}
	return nil
}

func stringToCmd(key string, bytes []byte) *protocol.MultiBulkReply {
	return protocol.MakeMultiBulkReply(utils.ToCmdLine3("SET", []byte(key), bytes))
}

func listToCmd(key string, l *list.LinkedList) *protocol.MultiBulkReply {
	cmd := make([][]byte, 0, l.Len()+2)
	cmd = append(cmd, []byte("RPUSH"), []byte(key))
	l.ForEach(func(i int, v interface{}) bool {
		cmd = append(cmd, v.([]byte))
		return true
	})
	return protocol.MakeMultiBulkReply(cmd)
}

func hashToCmd(key string, d dict.Dict) *protocol.MultiBulkReply {
	cmd := make([][]byte, 0, d.Len()*2+2)
	cmd = append(cmd, []byte("HSET"), []byte(key))
	d.ForEach(func(field string, raw interface{}) bool {
		cmd = append(cmd, []byte(field), raw.([]byte))
		return true
	})
	return protocol.MakeMultiBulkReply(cmd)
}

func setToCmd(key string, s *set.Set) *protocol.MultiBulkReply {
	cmd := make([][]byte, 0, s.Len()+2)
	cmd = append(cmd, []byte("SADD"), []byte(key))
	s.ForEach(func(member string) bool {
		cmd = append(cmd, []byte(member))
		return true
	})
	return protocol.MakeMultiBulkReply(cmd)
}

func zSetToCmd(key string, z *sortedset.SortedSet) *protocol.MultiBulkReply {
	cmd := make([][]byte, 0, int(z.Len())*2+2)
	cmd = append(cmd, []byte("ZADD"), []byte(key))
	z.ForEach(0, z.Len(), false, func(element *sortedset.Element) bool {
		cmd = append(cmd, []byte(strconv.FormatFloat(element.Score, 'f', -1, 64)), []byte(element.Member))
		return true
	})
	return protocol.MakeMultiBulkReply(cmd)
}

func streamToCmd(key string, st *stream.Stream) *protocol.MultiRawReply {
	replies := make([]redis.Reply, 0, st.Len())
	for _, entry := range st.Entries {
		cmd := make([][]byte, 0, len(entry.Fields)*2+3)
		cmd = append(cmd, []byte("XADD"), []byte(key), []byte(entry.ID.String()))
		for _, f := range entry.Fields {
			cmd = append(cmd, []byte(f.Key), []byte(f.Value))
		}
		replies = append(replies, protocol.MakeMultiBulkReply(cmd))
	}
	return protocol.MakeMultiRawReply(replies)
}

// MakeExpireCmd builds a PEXPIREAT command carrying an absolute deadline,
// the replay-safe rewrite of any relative-TTL write (SET EX, EXPIRE, ...)
// the spec's replication journal also uses for the same reason: a
// relative TTL replayed later would expire at the wrong instant.
func MakeExpireCmd(key string, expireTime time.Time) *protocol.MultiBulkReply {
	args := utils.ToCmdLine("PEXPIREAT", key, strconv.FormatInt(expireTime.UnixMilli(), 10))
	return protocol.MakeMultiBulkReply(args)
}
