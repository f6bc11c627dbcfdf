package database

import (
	"strconv"

	"github.com/alsatianco/peadb/datastruct/set"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func getAsSet(db *DB, key string) (*set.Set, *protocol.StandardErrReply, bool) {
	entity, ok := db.GetEntity(key)
	if !ok {
		return nil, nil, false
	}
	s, ok := entity.Data.(*set.Set)
	if !ok {
		return nil, protocol.MakeWrongTypeErrReply(), false
	}
	return s, nil, true
}

func getOrInitSet(db *DB, key string) (*set.Set, *protocol.StandardErrReply, bool) {
	s, errReply, ok := getAsSet(db, key)
	if errReply != nil {
		return nil, errReply, false
	}
	if !ok {
		s = set.Make()
		db.PutEntity(key, &database.DataEntity{Data: s})
	}
	return s, nil, true
}

func execSAdd(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	s, errReply, _ := getOrInitSet(db, key)
	if errReply != nil {
		return errReply
	}
	var added int64
	for _, member := range args[1:] {
		added += int64(s.Add(string(member)))
	}
	return protocol.MakeIntReply(added)
}

func execSRem(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	s, errReply, ok := getAsSet(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	var removed int64
	for _, member := range args[1:] {
		removed += int64(s.Remove(string(member)))
	}
	if s.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeIntReply(removed)
}

func execSIsMember(db *DB, args [][]byte) redis.Reply {
	s, errReply, ok := getAsSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok || !s.Has(string(args[1])) {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(1)
}

func execSCard(db *DB, args [][]byte) redis.Reply {
	s, errReply, ok := getAsSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(int64(s.Len()))
}

func execSMembers(db *DB, args [][]byte) redis.Reply {
	s, errReply, ok := getAsSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	members := s.ToSlice()
	result := make([][]byte, len(members))
	for i, m := range members {
		result[i] = []byte(m)
	}
	return protocol.MakeMultiBulkReply(result)
}

func loadSets(db *DB, keys []string) ([]*set.Set, *protocol.StandardErrReply) {
	sets := make([]*set.Set, 0, len(keys))
	for _, key := range keys {
		s, errReply, ok := getAsSet(db, key)
		if errReply != nil {
			return nil, errReply
		}
		if !ok {
			s = set.Make()
		}
		sets = append(sets, s)
	}
	return sets, nil
}

func execSInter(db *DB, args [][]byte) redis.Reply {
	sets, errReply := loadSets(db, toStrings(args))
	if errReply != nil {
		return errReply
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Intersect(s)
	}
	return setReply(result)
}

func execSUnion(db *DB, args [][]byte) redis.Reply {
	sets, errReply := loadSets(db, toStrings(args))
	if errReply != nil {
		return errReply
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Union(s)
	}
	return setReply(result)
}

func execSDiff(db *DB, args [][]byte) redis.Reply {
	sets, errReply := loadSets(db, toStrings(args))
	if errReply != nil {
		return errReply
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Diff(s)
	}
	return setReply(result)
}

func setReply(s *set.Set) redis.Reply {
	members := s.ToSlice()
	result := make([][]byte, len(members))
	for i, m := range members {
		result[i] = []byte(m)
	}
	return protocol.MakeMultiBulkReply(result)
}

func execSInterStore(db *DB, args [][]byte) redis.Reply {
	dst := string(args[0])
	sets, errReply := loadSets(db, toStrings(args[1:]))
	if errReply != nil {
		return errReply
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Intersect(s)
	}
	if result.Len() == 0 {
		db.Remove(dst)
	} else {
		db.PutEntity(dst, &database.DataEntity{Data: result})
	}
	return protocol.MakeIntReply(int64(result.Len()))
}

func execSUnionStore(db *DB, args [][]byte) redis.Reply {
	dst := string(args[0])
	sets, errReply := loadSets(db, toStrings(args[1:]))
	if errReply != nil {
		return errReply
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Union(s)
	}
	if result.Len() == 0 {
		db.Remove(dst)
	} else {
		db.PutEntity(dst, &database.DataEntity{Data: result})
	}
	return protocol.MakeIntReply(int64(result.Len()))
}

func execSDiffStore(db *DB, args [][]byte) redis.Reply {
	dst := string(args[0])
	sets, errReply := loadSets(db, toStrings(args[1:]))
	if errReply != nil {
		return errReply
	}
	result := sets[0]
	for _, s := range sets[1:] {
		result = result.Diff(s)
	}
	if result.Len() == 0 {
		db.Remove(dst)
	} else {
		db.PutEntity(dst, &database.DataEntity{Data: result})
	}
	return protocol.MakeIntReply(int64(result.Len()))
}

func execSPop(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	s, errReply, ok := getAsSet(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok || s.Len() == 0 {
		return protocol.MakeNullBulkReply()
	}
	count := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(string(args[1]))
		if err != nil {
			return protocol.MakeErrReply("ERR value is not an integer or out of range")
		}
		count = n
	}
	members := s.RandomDistinctMembers(count)
	result := make([][]byte, len(members))
	for i, m := range members {
		s.Remove(m)
		result[i] = []byte(m)
	}
	if s.Len() == 0 {
		db.Remove(key)
	}
	if len(args) == 1 {
		if len(result) == 0 {
			return protocol.MakeNullBulkReply()
		}
		return protocol.MakeBulkReply(result[0])
	}
	return protocol.MakeMultiBulkReply(result)
}

func execSRandMember(db *DB, args [][]byte) redis.Reply {
	s, errReply, ok := getAsSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		if len(args) == 1 {
			return protocol.MakeNullBulkReply()
		}
		return protocol.MakeEmptyMultiBulkReply()
	}
	if len(args) == 1 {
		members := s.RandomMembers(1)
		if len(members) == 0 {
			return protocol.MakeNullBulkReply()
		}
		return protocol.MakeBulkReply([]byte(members[0]))
	}
	count, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	var members []string
	if count < 0 {
		members = s.RandomMembers(-count)
	} else {
		members = s.RandomDistinctMembers(count)
	}
	result := make([][]byte, len(members))
	for i, m := range members {
		result[i] = []byte(m)
	}
	return protocol.MakeMultiBulkReply(result)
}

func init() {
	RegisterCommand("sadd", execSAdd, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("srem", execSRem, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("sismember", execSIsMember, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("scard", execSCard, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("smembers", execSMembers, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("sinter", execSInter, readAllKeys, nil, -2, flagReadOnly)
	RegisterCommand("sunion", execSUnion, readAllKeys, nil, -2, flagReadOnly)
	RegisterCommand("sdiff", execSDiff, readAllKeys, nil, -2, flagReadOnly)
	RegisterCommand("sinterstore", execSInterStore, func(args [][]byte) ([]string, []string) {
		return []string{string(args[0])}, toStrings(args[1:])
	}, nil, -3, flagWrite)
	RegisterCommand("sunionstore", execSUnionStore, func(args [][]byte) ([]string, []string) {
		return []string{string(args[0])}, toStrings(args[1:])
	}, nil, -3, flagWrite)
	RegisterCommand("sdiffstore", execSDiffStore, func(args [][]byte) ([]string, []string) {
		return []string{string(args[0])}, toStrings(args[1:])
	}, nil, -3, flagWrite)
	RegisterCommand("spop", execSPop, writeFirstKey, nil, -2, flagWrite)
	RegisterCommand("srandmember", execSRandMember, readFirstKey, nil, -2, flagReadOnly)
}
