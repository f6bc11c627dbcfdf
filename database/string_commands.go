package database

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func getAsString(db *DB, key string) ([]byte, *protocol.StandardErrReply, bool) {
	entity, ok := db.GetEntity(key)
	if !ok {
		return nil, nil, false
	}
	bs, ok := entity.Data.([]byte)
	if !ok {
		return nil, protocol.MakeWrongTypeErrReply(), false
	}
	return bs, nil, true
}

func execGet(db *DB, args [][]byte) redis.Reply {
	bs, errReply, ok := getAsString(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(bs)
}

func execSet(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	value := args[1]
	var ttl time.Duration
	var hasTTL bool
	nx, xx, keepTTL := false, false, false
	for i := 2; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "KEEPTTL":
			keepTTL = true
		case "EX", "PX":
			if i+1 >= len(args) {
				return protocol.MakeSyntaxErrReply()
			}
			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil || n <= 0 {
				return protocol.MakeErrReply("ERR invalid expire time in 'set' command")
			}
			if opt == "EX" {
				ttl = time.Duration(n) * time.Second
			} else {
				ttl = time.Duration(n) * time.Millisecond
			}
			hasTTL = true
			i++
		default:
			return protocol.MakeSyntaxErrReply()
		}
	}
	if nx && xx {
		return protocol.MakeSyntaxErrReply()
	}

	_, exists := db.GetEntity(key)
	if nx && exists {
		return protocol.MakeNullBulkReply()
	}
	if xx && !exists {
		return protocol.MakeNullBulkReply()
	}

	entity := &database.DataEntity{Data: value}
	db.PutEntity(key, entity)
	if hasTTL {
		db.Expire(key, time.Now().Add(ttl))
	} else if !keepTTL {
		db.Persist(key)
	}
	return protocol.MakeOkReply()
}

func execSetNX(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	result := db.PutIfAbsent(key, &database.DataEntity{Data: args[1]})
	return protocol.MakeIntReply(int64(result))
}

func execSetEX(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	ttlArg, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || ttlArg <= 0 {
		return protocol.MakeErrReply("ERR invalid expire time in 'setex' command")
	}
	db.PutEntity(key, &database.DataEntity{Data: args[2]})
	db.Expire(key, time.Now().Add(time.Duration(ttlArg)*time.Second))
	return protocol.MakeOkReply()
}

func execPSetEX(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	ttlArg, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || ttlArg <= 0 {
		return protocol.MakeErrReply("ERR invalid expire time in 'psetex' command")
	}
	db.PutEntity(key, &database.DataEntity{Data: args[2]})
	db.Expire(key, time.Now().Add(time.Duration(ttlArg)*time.Millisecond))
	return protocol.MakeOkReply()
}

func execGetSet(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	old, errReply, ok := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	db.PutEntity(key, &database.DataEntity{Data: args[1]})
	db.Persist(key)
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(old)
}

func execGetDel(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	bs, errReply, ok := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	db.Remove(key)
	return protocol.MakeBulkReply(bs)
}

func execStrLen(db *DB, args [][]byte) redis.Reply {
	bs, errReply, ok := getAsString(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(len(bs)))
}

func execAppend(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	bs, errReply, _ := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	newVal := append(append([]byte{}, bs...), args[1]...)
	db.PutEntity(key, &database.DataEntity{Data: newVal})
	return protocol.MakeIntReply(int64(len(newVal)))
}

func execIncrBy(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	delta, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	return incrByAmount(db, key, delta)
}

func execIncr(db *DB, args [][]byte) redis.Reply {
	return incrByAmount(db, string(args[0]), 1)
}

func execDecr(db *DB, args [][]byte) redis.Reply {
	return incrByAmount(db, string(args[0]), -1)
}

func execDecrBy(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	delta, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	return incrByAmount(db, key, -delta)
}

func incrByAmount(db *DB, key string, delta int64) redis.Reply {
	bs, errReply, ok := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	var cur int64
	if ok {
		n, err := strconv.ParseInt(string(bs), 10, 64)
		if err != nil {
			return protocol.MakeErrReply("ERR value is not an integer or out of range")
		}
		cur = n
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		return protocol.MakeErrReply("ERR increment or decrement would overflow")
	}
	cur += delta
	db.PutEntity(key, &database.DataEntity{Data: []byte(strconv.FormatInt(cur, 10))})
	return protocol.MakeIntReply(cur)
}

func execIncrByFloat(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	delta, err := strconv.ParseFloat(string(args[1]), 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not a valid float")
	}
	bs, errReply, ok := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	var cur float64
	if ok {
		n, err := strconv.ParseFloat(string(bs), 64)
		if err != nil {
			return protocol.MakeErrReply("ERR value is not a valid float")
		}
		cur = n
	}
	cur += delta
	result := strconv.FormatFloat(cur, 'f', -1, 64)
	db.PutEntity(key, &database.DataEntity{Data: []byte(result)})
	return protocol.MakeBulkReply([]byte(result))
}

func execMSet(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 0 {
		return protocol.MakeSyntaxErrReply()
	}
	for i := 0; i < len(args); i += 2 {
		db.PutEntity(string(args[i]), &database.DataEntity{Data: args[i+1]})
		db.Persist(string(args[i]))
	}
	return protocol.MakeOkReply()
}

func execMGet(db *DB, args [][]byte) redis.Reply {
	result := make([][]byte, len(args))
	for i, arg := range args {
		bs, errReply, ok := getAsString(db, string(arg))
		if errReply != nil || !ok {
			result[i] = nil
			continue
		}
		result[i] = bs
	}
	return protocol.MakeMultiBulkReply(result)
}

func execMSetNX(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 0 {
		return protocol.MakeSyntaxErrReply()
	}
	for i := 0; i < len(args); i += 2 {
		if _, exists := db.GetEntity(string(args[i])); exists {
			return protocol.MakeIntReply(0)
		}
	}
	for i := 0; i < len(args); i += 2 {
		db.PutEntity(string(args[i]), &database.DataEntity{Data: args[i+1]})
	}
	return protocol.MakeIntReply(1)
}

func execGetRange(db *DB, args [][]byte) redis.Reply {
	bs, errReply, ok := getAsString(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	start, err1 := strconv.Atoi(string(args[1]))
	end, err2 := strconv.Atoi(string(args[2]))
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	size := len(bs)
	if size > maxStringSize {
		return protocol.MakeErrReply("ERR string exceeds maximum allowed size (proto-max-bulk-len)")
	}
	start = normalizeIndex(start, size)
	end = normalizeIndex(end, size)
	if start > end || start >= size {
		return protocol.MakeBulkReply([]byte{})
	}
	if end >= size {
		end = size - 1
	}
	return protocol.MakeBulkReply(bs[start : end+1])
}

func normalizeIndex(i, size int) int {
	if i < 0 {
		i = size + i
		if i < 0 {
			i = 0
		}
	}
	return i
}

// maxStringSize is the 512MiB cap SETRANGE/GETRANGE (and real Redis's
// proto-max-bulk-len default) bound string values at.
const maxStringSize = 512 * 1024 * 1024

func execSetRange(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	offset, err := strconv.Atoi(string(args[1]))
	if err != nil || offset < 0 {
		return protocol.MakeErrReply("ERR offset is out of range")
	}
	value := args[2]
	bs, errReply, _ := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	needed := offset + len(value)
	if needed > maxStringSize {
		return protocol.MakeErrReply("ERR string exceeds maximum allowed size (proto-max-bulk-len)")
	}
	if len(bs) < needed {
		grown := make([]byte, needed)
		copy(grown, bs)
		bs = grown
	}
	copy(bs[offset:], value)
	db.PutEntity(key, &database.DataEntity{Data: bs})
	return protocol.MakeIntReply(int64(len(bs)))
}

func execGetEx(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	bs, errReply, ok := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	for i := 1; i < len(args); i++ {
		opt := strings.ToUpper(string(args[i]))
		switch opt {
		case "PERSIST":
			db.Persist(key)
		case "EX", "PX", "EXAT", "PXAT":
			if i+1 >= len(args) {
				return protocol.MakeSyntaxErrReply()
			}
			n, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil {
				return protocol.MakeErrReply("ERR value is not an integer or out of range")
			}
			switch opt {
			case "EX":
				db.Expire(key, time.Now().Add(time.Duration(n)*time.Second))
			case "PX":
				db.Expire(key, time.Now().Add(time.Duration(n)*time.Millisecond))
			case "EXAT":
				db.Expire(key, time.Unix(n, 0))
			case "PXAT":
				db.Expire(key, time.UnixMilli(n))
			}
			i++
		default:
			return protocol.MakeSyntaxErrReply()
		}
	}
	return protocol.MakeBulkReply(bs)
}

func execSetBit(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	offset, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || offset < 0 {
		return protocol.MakeErrReply("ERR bit offset is not an integer or out of range")
	}
	bitVal, err := strconv.Atoi(string(args[2]))
	if err != nil || (bitVal != 0 && bitVal != 1) {
		return protocol.MakeErrReply("ERR bit is not an integer or out of range")
	}
	bs, errReply, _ := getAsString(db, key)
	if errReply != nil {
		return errReply
	}
	byteIdx := int(offset / 8)
	bitIdx := uint(7 - offset%8)
	if len(bs) <= byteIdx {
		grown := make([]byte, byteIdx+1)
		copy(grown, bs)
		bs = grown
	}
	old := (bs[byteIdx] >> bitIdx) & 1
	if bitVal == 1 {
		bs[byteIdx] |= 1 << bitIdx
	} else {
		bs[byteIdx] &^= 1 << bitIdx
	}
	db.PutEntity(key, &database.DataEntity{Data: bs})
	return protocol.MakeIntReply(int64(old))
}

func execGetBit(db *DB, args [][]byte) redis.Reply {
	bs, errReply, ok := getAsString(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	offset, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || offset < 0 {
		return protocol.MakeErrReply("ERR bit offset is not an integer or out of range")
	}
	byteIdx := int(offset / 8)
	if byteIdx >= len(bs) {
		return protocol.MakeIntReply(0)
	}
	bitIdx := uint(7 - offset%8)
	return protocol.MakeIntReply(int64((bs[byteIdx] >> bitIdx) & 1))
}

func writeEvenKeys(args [][]byte) ([]string, []string) {
	keys := make([]string, 0, len(args)/2)
	for i := 0; i < len(args); i += 2 {
		keys = append(keys, string(args[i]))
	}
	return keys, nil
}

func init() {
	RegisterCommand("get", execGet, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("set", execSet, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("setnx", execSetNX, writeFirstKey, nil, 3, flagWrite)
	RegisterCommand("setex", execSetEX, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("psetex", execPSetEX, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("getset", execGetSet, writeFirstKey, nil, 3, flagWrite)
	RegisterCommand("getdel", execGetDel, writeFirstKey, nil, 2, flagWrite)
	RegisterCommand("strlen", execStrLen, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("append", execAppend, writeFirstKey, nil, 3, flagWrite)
	RegisterCommand("incr", execIncr, writeFirstKey, nil, 2, flagWrite)
	RegisterCommand("incrby", execIncrBy, writeFirstKey, nil, 3, flagWrite)
	RegisterCommand("incrbyfloat", execIncrByFloat, writeFirstKey, nil, 3, flagWrite)
	RegisterCommand("decr", execDecr, writeFirstKey, nil, 2, flagWrite)
	RegisterCommand("decrby", execDecrBy, writeFirstKey, nil, 3, flagWrite)
	RegisterCommand("mset", execMSet, writeEvenKeys, nil, -3, flagWrite)
	RegisterCommand("mget", execMGet, readAllKeys, nil, -2, flagReadOnly)
	RegisterCommand("msetnx", execMSetNX, writeEvenKeys, nil, -3, flagWrite)
	RegisterCommand("getrange", execGetRange, readFirstKey, nil, 4, flagReadOnly)
	RegisterCommand("setrange", execSetRange, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("getex", execGetEx, writeFirstKey, nil, -2, flagWrite)
	RegisterCommand("setbit", execSetBit, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("getbit", execGetBit, readFirstKey, nil, 3, flagReadOnly)
}
