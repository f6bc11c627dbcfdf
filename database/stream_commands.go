package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/alsatianco/peadb/datastruct/stream"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func getAsStream(db *DB, key string) (*stream.Stream, *protocol.StandardErrReply, bool) {
	entity, ok := db.GetEntity(key)
	if !ok {
		return nil, nil, false
	}
	s, ok := entity.Data.(*stream.Stream)
	if !ok {
		return nil, protocol.MakeWrongTypeErrReply(), false
	}
	return s, nil, true
}

func getOrInitStream(db *DB, key string) (*stream.Stream, *protocol.StandardErrReply, bool) {
	s, errReply, ok := getAsStream(db, key)
	if errReply != nil {
		return nil, errReply, false
	}
	if !ok {
		s = stream.Make()
		db.PutEntity(key, &database.DataEntity{Data: s})
	}
	return s, nil, true
}

func entryReply(e stream.Entry) redis.Reply {
	fields := make([][]byte, 0, len(e.Fields)*2)
	for _, f := range e.Fields {
		fields = append(fields, []byte(f.Key), []byte(f.Value))
	}
	return protocol.MakeMultiRawReply([]redis.Reply{
		protocol.MakeBulkReply([]byte(e.ID.String())),
		protocol.MakeMultiBulkReply(fields),
	})
}

func execXAdd(db *DB, args [][]byte) redis.Reply {
	if len(args) < 4 || len(args)%2 != 0 {
		return protocol.MakeArgNumErrReply("xadd")
	}
	key := string(args[0])
	idArg := string(args[1])
	s, errReply, _ := getOrInitStream(db, key)
	if errReply != nil {
		return errReply
	}
	var id stream.ID
	var err error
	if idArg == "*" {
		id = s.NextID(uint64(time.Now().UnixMilli()))
	} else {
		id, err = stream.ParseID(idArg)
		if err != nil {
			return protocol.MakeErrReply("ERR Invalid stream ID specified as stream command argument")
		}
	}
	fields := make([]stream.Field, 0, (len(args)-2)/2)
	for i := 2; i < len(args); i += 2 {
		fields = append(fields, stream.Field{Key: string(args[i]), Value: string(args[i+1])})
	}
	if err := s.Add(id, fields); err != nil {
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	return protocol.MakeBulkReply([]byte(id.String()))
}

func execXLen(db *DB, args [][]byte) redis.Reply {
	s, errReply, ok := getAsStream(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(s.Len()))
}

func execXRange(db *DB, args [][]byte) redis.Reply {
	return xrange(db, args, false)
}

func execXRevRange(db *DB, args [][]byte) redis.Reply {
	return xrange(db, args, true)
}

func xrange(db *DB, args [][]byte, rev bool) redis.Reply {
	s, errReply, ok := getAsStream(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	startArg, stopArg := string(args[1]), string(args[2])
	if rev {
		startArg, stopArg = stopArg, startArg
	}
	start, err1 := stream.ParseID(startArg)
	stop, err2 := stream.ParseID(stopArg)
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR Invalid stream ID specified as stream command argument")
	}
	entries := s.Range(start, stop, rev)
	result := make([]redis.Reply, len(entries))
	for i, e := range entries {
		result[i] = entryReply(e)
	}
	return protocol.MakeMultiRawReply(result)
}

func execXDel(db *DB, args [][]byte) redis.Reply {
	s, errReply, ok := getAsStream(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	ids := make([]stream.ID, 0, len(args)-1)
	for _, arg := range args[1:] {
		id, err := stream.ParseID(string(arg))
		if err != nil {
			return protocol.MakeErrReply("ERR Invalid stream ID specified as stream command argument")
		}
		ids = append(ids, id)
	}
	return protocol.MakeIntReply(s.Del(ids))
}

// execXGroup implements XGROUP CREATE/SETID key group id [MKSTREAM].
func execXGroup(db *DB, args [][]byte) redis.Reply {
	if len(args) < 4 {
		return protocol.MakeArgNumErrReply("xgroup")
	}
	sub := strings.ToUpper(string(args[0]))
	key, group, idArg := string(args[1]), string(args[2]), string(args[3])

	switch sub {
	case "CREATE":
		mkstream := false
		for _, a := range args[4:] {
			if strings.EqualFold(string(a), "MKSTREAM") {
				mkstream = true
			}
		}
		s, errReply, ok := getAsStream(db, key)
		if errReply != nil {
			return errReply
		}
		if !ok {
			if !mkstream {
				return protocol.MakeErrReply("ERR The XGROUP subcommand requires the key to exist. Note that for CREATE you may want to use the MKSTREAM option to create an empty stream automatically.")
			}
			s = stream.Make()
			db.PutEntity(key, &database.DataEntity{Data: s})
		}
		isDollar := idArg == "$"
		id := stream.ID{}
		if !isDollar {
			var err error
			id, err = stream.ParseID(idArg)
			if err != nil {
				return protocol.MakeErrReply("ERR Invalid stream ID specified as stream command argument")
			}
		}
		if err := s.GroupCreate(group, id, isDollar); err != nil {
			return protocol.MakeErrReply(err.Error())
		}
		return protocol.MakeOkReply()
	case "SETID":
		s, errReply, ok := getAsStream(db, key)
		if errReply != nil {
			return errReply
		}
		if !ok {
			return protocol.MakeErrReply("ERR no such key")
		}
		isDollar := idArg == "$"
		id := stream.ID{}
		if !isDollar {
			var err error
			id, err = stream.ParseID(idArg)
			if err != nil {
				return protocol.MakeErrReply("ERR Invalid stream ID specified as stream command argument")
			}
		}
		if err := s.GroupSetID(group, id, isDollar); err != nil {
			return protocol.MakeErrReply(err.Error())
		}
		return protocol.MakeOkReply()
	default:
		return protocol.MakeErrReply("ERR unknown XGROUP subcommand")
	}
}

// execXReadGroup implements XREADGROUP GROUP group consumer [COUNT n]
// STREAMS key [key ...] id [id ...]. Only the non-blocking, "deliver new
// entries for this group" form (id "=" ">") is supported: NOACK and an
// explicit historical id are not implemented.
func execXReadGroup(db *DB, args [][]byte) redis.Reply {
	if len(args) < 6 || !strings.EqualFold(string(args[0]), "GROUP") {
		return protocol.MakeErrReply("ERR syntax error")
	}
	group, consumer := string(args[1]), string(args[2])
	rest := args[3:]
	count := 0
	for len(rest) > 0 && strings.EqualFold(string(rest[0]), "COUNT") {
		n, err := strconv.Atoi(string(rest[1]))
		if err != nil {
			return protocol.MakeErrReply("ERR value is not an integer or out of range")
		}
		count = n
		rest = rest[2:]
	}
	if len(rest) == 0 || !strings.EqualFold(string(rest[0]), "STREAMS") {
		return protocol.MakeErrReply("ERR syntax error")
	}
	rest = rest[1:]
	if len(rest)%2 != 0 {
		return protocol.MakeErrReply("ERR Unbalanced XREADGROUP list of streams: for each stream key an ID or '>' must be specified.")
	}
	n := len(rest) / 2
	keys, ids := rest[:n], rest[n:]

	var result []redis.Reply
	for i, keyArg := range keys {
		if string(ids[i]) != ">" {
			return protocol.MakeErrReply("ERR The XREADGROUP command requires the ID to be specified for all requested streams, and the ID should be the '>' ID in order to consume new messages.")
		}
		key := string(keyArg)
		s, errReply, ok := getAsStream(db, key)
		if errReply != nil {
			return errReply
		}
		if !ok {
			return protocol.MakeErrReply("NOGROUP No such key '" + key + "' or consumer group '" + group + "' in XREADGROUP with GROUP option")
		}
		entries, err := s.ReadGroup(group, consumer, count)
		if err != nil {
			return protocol.MakeErrReply(err.Error())
		}
		entryReplies := make([]redis.Reply, len(entries))
		for j, e := range entries {
			entryReplies[j] = entryReply(e)
		}
		result = append(result, protocol.MakeMultiRawReply([]redis.Reply{
			protocol.MakeBulkReply([]byte(key)),
			protocol.MakeMultiRawReply(entryReplies),
		}))
	}
	if len(result) == 0 {
		return protocol.MakeNullMultiBulkReply()
	}
	return protocol.MakeMultiRawReply(result)
}

func execXAck(db *DB, args [][]byte) redis.Reply {
	key, group := string(args[0]), string(args[1])
	s, errReply, ok := getAsStream(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	ids := make([]stream.ID, 0, len(args)-2)
	for _, arg := range args[2:] {
		id, err := stream.ParseID(string(arg))
		if err != nil {
			return protocol.MakeErrReply("ERR Invalid stream ID specified as stream command argument")
		}
		ids = append(ids, id)
	}
	acked, err := s.Ack(group, ids)
	if err != nil {
		return protocol.MakeErrReply(err.Error())
	}
	return protocol.MakeIntReply(acked)
}

// execXPending implements the summary form of XPENDING key group.
func execXPending(db *DB, args [][]byte) redis.Reply {
	key, group := string(args[0]), string(args[1])
	s, errReply, ok := getAsStream(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeErrReply("NOGROUP No such key '" + key + "' or consumer group '" + group + "'")
	}
	count, minID, maxID, consumers, err := s.PendingSummary(group)
	if err != nil {
		return protocol.MakeErrReply(err.Error())
	}
	if count == 0 {
		return protocol.MakeMultiRawReply([]redis.Reply{
			protocol.MakeIntReply(0),
			protocol.MakeNullBulkReply(),
			protocol.MakeNullBulkReply(),
			protocol.MakeNullBulkReply(),
		})
	}
	return protocol.MakeMultiRawReply([]redis.Reply{
		protocol.MakeIntReply(count),
		protocol.MakeBulkReply([]byte(minID.String())),
		protocol.MakeBulkReply([]byte(maxID.String())),
		protocol.MakeIntReply(consumers),
	})
}

func init() {
	RegisterCommand("xadd", execXAdd, writeFirstKey, nil, -5, flagWrite)
	RegisterCommand("xlen", execXLen, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("xrange", execXRange, readFirstKey, nil, 4, flagReadOnly)
	RegisterCommand("xrevrange", execXRevRange, readFirstKey, nil, 4, flagReadOnly)
	RegisterCommand("xdel", execXDel, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("xgroup", execXGroup, func(args [][]byte) ([]string, []string) {
		if len(args) < 2 {
			return nil, nil
		}
		return []string{string(args[1])}, nil
	}, nil, -4, flagWrite)
	RegisterCommand("xreadgroup", execXReadGroup, noPrepare, nil, -7, flagWrite)
	RegisterCommand("xack", execXAck, writeFirstKey, nil, -4, flagWrite)
	RegisterCommand("xpending", execXPending, readFirstKey, nil, 3, flagReadOnly)
}
