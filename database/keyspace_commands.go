package database

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/lib/wildcard"
	"github.com/alsatianco/peadb/redis/protocol"
)

func execDel(db *DB, args [][]byte) redis.Reply {
	keys := make([]string, len(args))
	for i, arg := range args {
		keys[i] = string(arg)
	}
	deleted := db.Removes(keys...)
	return protocol.MakeIntReply(int64(deleted))
}

func execExists(db *DB, args [][]byte) redis.Reply {
	var count int64
	for _, arg := range args {
		if _, ok := db.GetEntity(string(arg)); ok {
			count++
		}
	}
	return protocol.MakeIntReply(count)
}

func execType(db *DB, args [][]byte) redis.Reply {
	entity, ok := db.GetEntity(string(args[0]))
	if !ok {
		return protocol.MakeStatusReply("none")
	}
	return protocol.MakeStatusReply(typeName(entity.Data))
}

func execRename(db *DB, args [][]byte) redis.Reply {
	src, dst := string(args[0]), string(args[1])
	entity, ok := db.GetEntity(src)
	if !ok {
		return protocol.MakeErrReply("ERR no such key")
	}
	ttl, hasTTL := db.TTL(src)
	db.Remove(src)
	db.PutEntity(dst, entity)
	if hasTTL {
		db.Persist(dst)
		db.Expire(dst, ttl)
	}
	return protocol.MakeOkReply()
}

func execRenameNX(db *DB, args [][]byte) redis.Reply {
	src, dst := string(args[0]), string(args[1])
	if _, ok := db.GetEntity(dst); ok {
		return protocol.MakeIntReply(0)
	}
	entity, ok := db.GetEntity(src)
	if !ok {
		return protocol.MakeErrReply("ERR no such key")
	}
	ttl, hasTTL := db.TTL(src)
	db.Remove(src)
	db.PutEntity(dst, entity)
	if hasTTL {
		db.Expire(dst, ttl)
	}
	return protocol.MakeIntReply(1)
}

// expireFlags parses the trailing NX/XX/GT/LT options EXPIRE's command
// family accepts, rejecting unknown options and the two incompatible
// combinations real Redis rejects.
func expireFlags(args [][]byte) (nx, xx, gt, lt bool, errReply redis.Reply) {
	for _, arg := range args {
		switch strings.ToUpper(string(arg)) {
		case "NX":
			nx = true
		case "XX":
			xx = true
		case "GT":
			gt = true
		case "LT":
			lt = true
		default:
			return false, false, false, false, protocol.MakeErrReply("ERR Unsupported option " + string(arg))
		}
	}
	if gt && lt {
		return false, false, false, false, protocol.MakeErrReply("ERR GT and LT options at the same time are not compatible")
	}
	if nx && (xx || gt || lt) {
		return false, false, false, false, protocol.MakeErrReply("ERR NX and XX, GT or LT options at the same time are not compatible")
	}
	return nx, xx, gt, lt, nil
}

// applyExpire is the common tail of EXPIRE/PEXPIRE/EXPIREAT/PEXPIREAT:
// given the key's current expiry in milliseconds (-2 no key, -1 no TTL,
// else absolute ms) and the requested absolute target, apply the
// NX/XX/GT/LT gating and set the TTL if it passes.
func applyExpire(db *DB, key string, targetMs int64, nx, xx, gt, lt bool) redis.Reply {
	cur := int64(-2)
	if _, ok := db.GetEntity(key); ok {
		cur = -1
		if deadline, hasTTL := db.TTL(key); hasTTL {
			cur = deadline.UnixMilli()
		}
	}
	if cur == -2 {
		return protocol.MakeIntReply(0)
	}
	if nx && cur != -1 {
		return protocol.MakeIntReply(0)
	}
	if xx && cur < 0 {
		return protocol.MakeIntReply(0)
	}
	if gt && (cur < 0 || targetMs <= cur) {
		return protocol.MakeIntReply(0)
	}
	if lt && cur >= 0 && targetMs >= cur {
		return protocol.MakeIntReply(0)
	}
	db.Expire(key, time.UnixMilli(targetMs))
	return protocol.MakeIntReply(1)
}

func execExpire(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	sec, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	if sec > math.MaxInt64/1000 || sec < math.MinInt64/1000 {
		return protocol.MakeErrReply("ERR invalid expire time in 'expire' command")
	}
	delta := sec * 1000
	base := time.Now().UnixMilli()
	if (delta > 0 && base > math.MaxInt64-delta) || (delta < 0 && base < math.MinInt64-delta) {
		return protocol.MakeErrReply("ERR invalid expire time in 'expire' command")
	}
	nx, xx, gt, lt, errReply := expireFlags(args[2:])
	if errReply != nil {
		return errReply
	}
	return applyExpire(db, key, base+delta, nx, xx, gt, lt)
}

func execPExpire(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	ms, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	base := time.Now().UnixMilli()
	if (ms > 0 && base > math.MaxInt64-ms) || (ms < 0 && base < math.MinInt64-ms) {
		return protocol.MakeErrReply("ERR invalid expire time in 'pexpire' command")
	}
	nx, xx, gt, lt, errReply := expireFlags(args[2:])
	if errReply != nil {
		return errReply
	}
	return applyExpire(db, key, base+ms, nx, xx, gt, lt)
}

func execExpireAt(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	sec, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	if sec > math.MaxInt64/1000 || sec < math.MinInt64/1000 {
		return protocol.MakeErrReply("ERR invalid expire time in 'expireat' command")
	}
	nx, xx, gt, lt, errReply := expireFlags(args[2:])
	if errReply != nil {
		return errReply
	}
	return applyExpire(db, key, sec*1000, nx, xx, gt, lt)
}

func execPExpireAt(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	ts, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	nx, xx, gt, lt, errReply := expireFlags(args[2:])
	if errReply != nil {
		return errReply
	}
	return applyExpire(db, key, ts, nx, xx, gt, lt)
}

func execTTL(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, ok := db.GetEntity(key); !ok {
		return protocol.MakeIntReply(-2)
	}
	deadline, ok := db.TTL(key)
	if !ok {
		return protocol.MakeIntReply(-1)
	}
	remaining := time.Until(deadline)
	return protocol.MakeIntReply(int64(remaining.Seconds()))
}

func execPTTL(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, ok := db.GetEntity(key); !ok {
		return protocol.MakeIntReply(-2)
	}
	deadline, ok := db.TTL(key)
	if !ok {
		return protocol.MakeIntReply(-1)
	}
	remaining := time.Until(deadline)
	return protocol.MakeIntReply(remaining.Milliseconds())
}

func execPersist(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, ok := db.TTL(key); !ok {
		return protocol.MakeIntReply(0)
	}
	db.Persist(key)
	return protocol.MakeIntReply(1)
}

func execKeys(db *DB, args [][]byte) redis.Reply {
	pattern := string(args[0])
	var result [][]byte
	db.data.ForEach(func(key string, _ interface{}) bool {
		if wildcard.IsMatch(pattern, key) && !db.IsExpired(key) {
			result = append(result, []byte(key))
		}
		return true
	})
	return protocol.MakeMultiBulkReply(result)
}

func execDBSize(db *DB, args [][]byte) redis.Reply {
	n, _ := db.Size()
	return protocol.MakeIntReply(int64(n))
}

func execFlushDB(db *DB, args [][]byte) redis.Reply {
	db.Flush()
	return protocol.MakeOkReply()
}

func execCopy(db *DB, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("copy")
	}
	src, dst := string(args[0]), string(args[1])
	replace := false
	for i := 2; i < len(args); i++ {
		if strings.EqualFold(string(args[i]), "replace") {
			replace = true
		}
	}
	entity, ok := db.GetEntity(src)
	if !ok {
		return protocol.MakeIntReply(0)
	}
	if !replace {
		if _, exists := db.GetEntity(dst); exists {
			return protocol.MakeIntReply(0)
		}
	}
	db.PutEntity(dst, entityCopy(entity))
	return protocol.MakeIntReply(1)
}

func execExpireTime(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, ok := db.GetEntity(key); !ok {
		return protocol.MakeIntReply(-2)
	}
	deadline, ok := db.TTL(key)
	if !ok {
		return protocol.MakeIntReply(-1)
	}
	return protocol.MakeIntReply(deadline.Unix())
}

func execPExpireTime(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	if _, ok := db.GetEntity(key); !ok {
		return protocol.MakeIntReply(-2)
	}
	deadline, ok := db.TTL(key)
	if !ok {
		return protocol.MakeIntReply(-1)
	}
	return protocol.MakeIntReply(deadline.UnixMilli())
}

func execRandomKey(db *DB, args [][]byte) redis.Reply {
	for _, key := range db.data.RandomKeys(1) {
		if !db.IsExpired(key) {
			return protocol.MakeBulkReply([]byte(key))
		}
	}
	return protocol.MakeNullBulkReply()
}

func toStrings(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}

func readFirstKey(args [][]byte) ([]string, []string) {
	return nil, []string{string(args[0])}
}

func writeFirstKey(args [][]byte) ([]string, []string) {
	return []string{string(args[0])}, nil
}

func writeAllKeys(args [][]byte) ([]string, []string) {
	return toStrings(args), nil
}

func readAllKeys(args [][]byte) ([]string, []string) {
	return nil, toStrings(args)
}

func noPrepare(args [][]byte) ([]string, []string) {
	return nil, nil
}

func init() {
	RegisterCommand("del", execDel, writeAllKeys, nil, -2, flagWrite)
	RegisterCommand("exists", execExists, readAllKeys, nil, -2, flagReadOnly)
	RegisterCommand("type", execType, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("rename", execRename, func(args [][]byte) ([]string, []string) {
		return []string{string(args[0]), string(args[1])}, nil
	}, nil, 3, flagWrite)
	RegisterCommand("renamenx", execRenameNX, func(args [][]byte) ([]string, []string) {
		return []string{string(args[0]), string(args[1])}, nil
	}, nil, 3, flagWrite)
	RegisterCommand("expire", execExpire, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("pexpire", execPExpire, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("expireat", execExpireAt, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("pexpireat", execPExpireAt, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("ttl", execTTL, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("pttl", execPTTL, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("persist", execPersist, writeFirstKey, nil, 2, flagWrite)
	RegisterCommand("keys", execKeys, noPrepare, nil, 2, flagReadOnly)
	RegisterCommand("dbsize", execDBSize, noPrepare, nil, 1, flagReadOnly)
	RegisterCommand("flushdb", execFlushDB, noPrepare, nil, -1, flagWrite)
	RegisterCommand("copy", execCopy, func(args [][]byte) ([]string, []string) {
		return []string{string(args[1])}, []string{string(args[0])}
	}, nil, -3, flagWrite)
	RegisterCommand("expiretime", execExpireTime, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("pexpiretime", execPExpireTime, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("randomkey", execRandomKey, noPrepare, nil, 1, flagReadOnly)
}
