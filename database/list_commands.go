package database

import (
	"strconv"

	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func getAsList(db *DB, key string) (*list.LinkedList, *protocol.StandardErrReply, bool) {
	entity, ok := db.GetEntity(key)
	if !ok {
		return nil, nil, false
	}
	l, ok := entity.Data.(*list.LinkedList)
	if !ok {
		return nil, protocol.MakeWrongTypeErrReply(), false
	}
	return l, nil, true
}

func getOrInitList(db *DB, key string) (*list.LinkedList, *protocol.StandardErrReply, bool) {
	l, errReply, ok := getAsList(db, key)
	if errReply != nil {
		return nil, errReply, false
	}
	if !ok {
		l = list.Make()
		db.PutEntity(key, &database.DataEntity{Data: l})
	}
	return l, nil, true
}

func execLPush(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	l, errReply, _ := getOrInitList(db, key)
	if errReply != nil {
		return errReply
	}
	for _, v := range args[1:] {
		l.Insert(0, v)
	}
	db.blockers.wake(key)
	return protocol.MakeIntReply(int64(l.Len()))
}

func execRPush(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	l, errReply, _ := getOrInitList(db, key)
	if errReply != nil {
		return errReply
	}
	for _, v := range args[1:] {
		l.Add(v)
	}
	db.blockers.wake(key)
	return protocol.MakeIntReply(int64(l.Len()))
}

func execLPushX(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	for _, v := range args[1:] {
		l.Insert(0, v)
	}
	db.blockers.wake(string(args[0]))
	return protocol.MakeIntReply(int64(l.Len()))
}

func execRPushX(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	for _, v := range args[1:] {
		l.Add(v)
	}
	db.blockers.wake(string(args[0]))
	return protocol.MakeIntReply(int64(l.Len()))
}

func execLPop(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	l, errReply, ok := getAsList(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok || l.Len() == 0 {
		return protocol.MakeNullBulkReply()
	}
	val := l.Remove(0)
	if l.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeBulkReply(val.([]byte))
}

func execRPop(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	l, errReply, ok := getAsList(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok || l.Len() == 0 {
		return protocol.MakeNullBulkReply()
	}
	val := l.RemoveLast()
	if l.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeBulkReply(val.([]byte))
}

func execRPopLPush(db *DB, args [][]byte) redis.Reply {
	src, dst := string(args[0]), string(args[1])
	srcList, errReply, ok := getAsList(db, src)
	if errReply != nil {
		return errReply
	}
	if !ok || srcList.Len() == 0 {
		return protocol.MakeNullBulkReply()
	}
	val := srcList.RemoveLast()
	if srcList.Len() == 0 {
		db.Remove(src)
	}
	dstList, errReply, _ := getOrInitList(db, dst)
	if errReply != nil {
		return errReply
	}
	dstList.Insert(0, val)
	db.blockers.wake(dst)
	return protocol.MakeBulkReply(val.([]byte))
}

func execLLen(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(l.Len()))
}

func execLIndex(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	index, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	size := l.Len()
	if index < 0 {
		index += size
	}
	if index < 0 || index >= size {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(l.Get(index).([]byte))
}

func execLSet(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeErrReply("ERR no such key")
	}
	index, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	size := l.Len()
	if index < 0 {
		index += size
	}
	if index < 0 || index >= size {
		return protocol.MakeErrReply("ERR index out of range")
	}
	l.Set(index, args[2])
	return protocol.MakeOkReply()
}

func execLRange(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	start, err1 := strconv.Atoi(string(args[1]))
	stop, err2 := strconv.Atoi(string(args[2]))
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	size := l.Len()
	start = normalizeIndex(start, size)
	stop = normalizeIndex(stop, size)
	if stop >= size {
		stop = size - 1
	}
	if start > stop || start >= size {
		return protocol.MakeEmptyMultiBulkReply()
	}
	vals := l.Range(start, stop+1)
	result := make([][]byte, len(vals))
	for i, v := range vals {
		result[i] = v.([]byte)
	}
	return protocol.MakeMultiBulkReply(result)
}

func execLRem(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	l, errReply, ok := getAsList(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	count, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	value := args[2]
	expected := func(a interface{}) bool {
		bs, ok := a.([]byte)
		return ok && string(bs) == string(value)
	}
	var removed int
	switch {
	case count > 0:
		removed = l.RemoveByVal(expected, count)
	case count < 0:
		removed = l.ReverseRemoveByVal(expected, -count)
	default:
		removed = l.RemoveAllByVal(expected)
	}
	if l.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeIntReply(int64(removed))
}

func execLInsert(db *DB, args [][]byte) redis.Reply {
	l, errReply, ok := getAsList(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	before := false
	switch string(args[1]) {
	case "BEFORE", "before":
		before = true
	case "AFTER", "after":
		before = false
	default:
		return protocol.MakeSyntaxErrReply()
	}
	pivot := args[2]
	index := -1
	for i := 0; i < l.Len(); i++ {
		if bs, ok := l.Get(i).([]byte); ok && string(bs) == string(pivot) {
			index = i
			break
		}
	}
	if index == -1 {
		return protocol.MakeIntReply(-1)
	}
	if before {
		l.Insert(index, args[3])
	} else {
		l.Insert(index+1, args[3])
	}
	return protocol.MakeIntReply(int64(l.Len()))
}

func init() {
	RegisterCommand("lpush", execLPush, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("rpush", execRPush, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("lpushx", execLPushX, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("rpushx", execRPushX, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("lpop", execLPop, writeFirstKey, nil, 2, flagWrite)
	RegisterCommand("rpop", execRPop, writeFirstKey, nil, 2, flagWrite)
	RegisterCommand("rpoplpush", execRPopLPush, func(args [][]byte) ([]string, []string) {
		return []string{string(args[0]), string(args[1])}, nil
	}, nil, 3, flagWrite)
	RegisterCommand("llen", execLLen, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("lindex", execLIndex, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("lset", execLSet, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("lrange", execLRange, readFirstKey, nil, 4, flagReadOnly)
	RegisterCommand("lrem", execLRem, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("linsert", execLInsert, writeFirstKey, nil, 5, flagWrite)
}
