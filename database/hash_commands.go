package database

import (
	"strconv"

	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func getAsDict(db *DB, key string) (dict.Dict, *protocol.StandardErrReply, bool) {
	entity, ok := db.GetEntity(key)
	if !ok {
		return nil, nil, false
	}
	d, ok := entity.Data.(dict.Dict)
	if !ok {
		return nil, protocol.MakeWrongTypeErrReply(), false
	}
	return d, nil, true
}

func getOrInitDict(db *DB, key string) (dict.Dict, *protocol.StandardErrReply, bool) {
	d, errReply, ok := getAsDict(db, key)
	if errReply != nil {
		return nil, errReply, false
	}
	if !ok {
		d = dict.MakeSimple()
		db.PutEntity(key, &database.DataEntity{Data: d})
	}
	return d, nil, true
}

func execHSet(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 1 {
		return protocol.MakeSyntaxErrReply()
	}
	key := string(args[0])
	d, errReply, _ := getOrInitDict(db, key)
	if errReply != nil {
		return errReply
	}
	var added int64
	for i := 1; i < len(args); i += 2 {
		added += int64(d.Put(string(args[i]), args[i+1]))
	}
	return protocol.MakeIntReply(added)
}

func execHSetNX(db *DB, args [][]byte) redis.Reply {
	key, field := string(args[0]), string(args[1])
	d, errReply, _ := getOrInitDict(db, key)
	if errReply != nil {
		return errReply
	}
	result := d.PutIfAbsent(field, args[2])
	return protocol.MakeIntReply(int64(result))
}

func execHGet(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	raw, exists := d.Get(string(args[1]))
	if !exists {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(raw.([]byte))
}

func execHExists(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	_, exists := d.Get(string(args[1]))
	if exists {
		return protocol.MakeIntReply(1)
	}
	return protocol.MakeIntReply(0)
}

func execHDel(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	var deleted int64
	for _, field := range args[1:] {
		deleted += int64(d.Remove(string(field)))
	}
	if d.Len() == 0 {
		db.Remove(string(args[0]))
	}
	return protocol.MakeIntReply(deleted)
}

func execHLen(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(d.Len()))
}

func execHStrLen(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	raw, exists := d.Get(string(args[1]))
	if !exists {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(len(raw.([]byte))))
}

func execHMSet(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 1 {
		return protocol.MakeSyntaxErrReply()
	}
	d, errReply, _ := getOrInitDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	for i := 1; i < len(args); i += 2 {
		d.Put(string(args[i]), args[i+1])
	}
	return protocol.MakeOkReply()
}

func execHMGet(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	result := make([][]byte, len(args)-1)
	if ok {
		for i, field := range args[1:] {
			if raw, exists := d.Get(string(field)); exists {
				result[i] = raw.([]byte)
			}
		}
	}
	return protocol.MakeMultiBulkReply(result)
}

func execHGetAll(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	result := make([][]byte, 0, d.Len()*2)
	d.ForEach(func(field string, raw interface{}) bool {
		result = append(result, []byte(field), raw.([]byte))
		return true
	})
	return protocol.MakeMultiBulkReply(result)
}

func execHKeys(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	result := make([][]byte, 0, d.Len())
	d.ForEach(func(field string, _ interface{}) bool {
		result = append(result, []byte(field))
		return true
	})
	return protocol.MakeMultiBulkReply(result)
}

func execHVals(db *DB, args [][]byte) redis.Reply {
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	result := make([][]byte, 0, d.Len())
	d.ForEach(func(_ string, raw interface{}) bool {
		result = append(result, raw.([]byte))
		return true
	})
	return protocol.MakeMultiBulkReply(result)
}

func execHIncrBy(db *DB, args [][]byte) redis.Reply {
	key, field := string(args[0]), string(args[1])
	delta, err := strconv.ParseInt(string(args[2]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	d, errReply, _ := getOrInitDict(db, key)
	if errReply != nil {
		return errReply
	}
	var cur int64
	if raw, exists := d.Get(field); exists {
		cur, err = strconv.ParseInt(string(raw.([]byte)), 10, 64)
		if err != nil {
			return protocol.MakeErrReply("ERR hash value is not an integer")
		}
	}
	cur += delta
	d.Put(field, []byte(strconv.FormatInt(cur, 10)))
	return protocol.MakeIntReply(cur)
}

func execHIncrByFloat(db *DB, args [][]byte) redis.Reply {
	key, field := string(args[0]), string(args[1])
	delta, err := strconv.ParseFloat(string(args[2]), 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not a valid float")
	}
	d, errReply, _ := getOrInitDict(db, key)
	if errReply != nil {
		return errReply
	}
	var cur float64
	if raw, exists := d.Get(field); exists {
		cur, err = strconv.ParseFloat(string(raw.([]byte)), 64)
		if err != nil {
			return protocol.MakeErrReply("ERR hash value is not a float")
		}
	}
	cur += delta
	result := strconv.FormatFloat(cur, 'f', -1, 64)
	d.Put(field, []byte(result))
	return protocol.MakeBulkReply([]byte(result))
}

func init() {
	RegisterCommand("hset", execHSet, writeFirstKey, nil, -4, flagWrite)
	RegisterCommand("hsetnx", execHSetNX, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("hget", execHGet, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("hexists", execHExists, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("hdel", execHDel, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("hlen", execHLen, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("hstrlen", execHStrLen, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("hmset", execHMSet, writeFirstKey, nil, -4, flagWrite)
	RegisterCommand("hmget", execHMGet, readFirstKey, nil, -3, flagReadOnly)
	RegisterCommand("hgetall", execHGetAll, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("hkeys", execHKeys, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("hvals", execHVals, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("hincrby", execHIncrBy, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("hincrbyfloat", execHIncrByFloat, writeFirstKey, nil, 4, flagWrite)
}
