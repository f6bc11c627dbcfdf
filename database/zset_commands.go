package database

import (
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func getAsZSet(db *DB, key string) (*sortedset.SortedSet, *protocol.StandardErrReply, bool) {
	entity, ok := db.GetEntity(key)
	if !ok {
		return nil, nil, false
	}
	z, ok := entity.Data.(*sortedset.SortedSet)
	if !ok {
		return nil, protocol.MakeWrongTypeErrReply(), false
	}
	return z, nil, true
}

func getOrInitZSet(db *DB, key string) (*sortedset.SortedSet, *protocol.StandardErrReply, bool) {
	z, errReply, ok := getAsZSet(db, key)
	if errReply != nil {
		return nil, errReply, false
	}
	if !ok {
		z = sortedset.Make()
		db.PutEntity(key, &database.DataEntity{Data: z})
	}
	return z, nil, true
}

func execZAdd(db *DB, args [][]byte) redis.Reply {
	if len(args)%2 != 1 {
		return protocol.MakeSyntaxErrReply()
	}
	key := string(args[0])
	z, errReply, _ := getOrInitZSet(db, key)
	if errReply != nil {
		return errReply
	}
	var added int64
	for i := 1; i < len(args); i += 2 {
		score, err := strconv.ParseFloat(string(args[i]), 64)
		if err != nil {
			return protocol.MakeErrReply("ERR value is not a valid float")
		}
		if z.Add(string(args[i+1]), score) {
			added++
		}
	}
	db.blockers.wake(key)
	return protocol.MakeIntReply(added)
}

func execZScore(db *DB, args [][]byte) redis.Reply {
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	elem, exists := z.Get(string(args[1]))
	if !exists {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply([]byte(strconv.FormatFloat(elem.Score, 'f', -1, 64)))
}

func execZRank(db *DB, args [][]byte) redis.Reply {
	return zrank(db, args, false)
}

func execZRevRank(db *DB, args [][]byte) redis.Reply {
	return zrank(db, args, true)
}

func zrank(db *DB, args [][]byte, desc bool) redis.Reply {
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	_, exists := z.Get(string(args[1]))
	if !exists {
		return protocol.MakeNullBulkReply()
	}
	rank := z.GetRank(string(args[1]), desc)
	if rank < 0 {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeIntReply(rank)
}

func execZCard(db *DB, args [][]byte) redis.Reply {
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	return protocol.MakeIntReply(z.Len())
}

func execZRem(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	z, errReply, ok := getAsZSet(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	var removed int64
	for _, member := range args[1:] {
		if z.Remove(string(member)) {
			removed++
		}
	}
	if z.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeIntReply(removed)
}

func execZIncrBy(db *DB, args [][]byte) redis.Reply {
	delta, err := strconv.ParseFloat(string(args[0]), 64)
	if err != nil {
		return protocol.MakeErrReply("ERR value is not a valid float")
	}
	key, member := string(args[1]), string(args[2])
	z, errReply, _ := getOrInitZSet(db, key)
	if errReply != nil {
		return errReply
	}
	var cur float64
	if elem, ok := z.Get(member); ok {
		cur = elem.Score
	}
	cur += delta
	z.Add(member, cur)
	return protocol.MakeBulkReply([]byte(strconv.FormatFloat(cur, 'f', -1, 64)))
}

func execZCount(db *DB, args [][]byte) redis.Reply {
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	min, err1 := sortedset.ParseScoreBorder(string(args[1]))
	max, err2 := sortedset.ParseScoreBorder(string(args[2]))
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR min or max is not a float")
	}
	return protocol.MakeIntReply(z.Count(min, max))
}

func normalizeRank(i, size int64) int64 {
	if i < 0 {
		i = size + i
		if i < 0 {
			i = 0
		}
	}
	return i
}

func zrangeReply(elems []*sortedset.Element, withScores bool) redis.Reply {
	if withScores {
		result := make([][]byte, 0, len(elems)*2)
		for _, e := range elems {
			result = append(result, []byte(e.Member), []byte(strconv.FormatFloat(e.Score, 'f', -1, 64)))
		}
		return protocol.MakeMultiBulkReply(result)
	}
	result := make([][]byte, len(elems))
	for i, e := range elems {
		result[i] = []byte(e.Member)
	}
	return protocol.MakeMultiBulkReply(result)
}

func execZRange(db *DB, args [][]byte) redis.Reply {
	return zrangeByRank(db, args, false)
}

func execZRevRange(db *DB, args [][]byte) redis.Reply {
	return zrangeByRank(db, args, true)
}

func zrangeByRank(db *DB, args [][]byte, desc bool) redis.Reply {
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	start, err1 := strconv.ParseInt(string(args[1]), 10, 64)
	stop, err2 := strconv.ParseInt(string(args[2]), 10, 64)
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	withScores := len(args) > 3 && strings.EqualFold(string(args[3]), "withscores")
	size := int64(z.Len())
	start = normalizeRank(start, size)
	stop = normalizeRank(stop, size)
	if stop >= size {
		stop = size - 1
	}
	if size == 0 || start > stop || start >= size {
		return protocol.MakeEmptyMultiBulkReply()
	}
	elems := z.Range(start, stop+1, desc)
	return zrangeReply(elems, withScores)
}

func execZRangeByScore(db *DB, args [][]byte) redis.Reply {
	return zrangeByScore(db, args, false)
}

func execZRevRangeByScore(db *DB, args [][]byte) redis.Reply {
	return zrangeByScore(db, args, true)
}

func zrangeByScore(db *DB, args [][]byte, desc bool) redis.Reply {
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeEmptyMultiBulkReply()
	}
	minArg, maxArg := string(args[1]), string(args[2])
	if desc {
		minArg, maxArg = maxArg, minArg
	}
	min, err1 := sortedset.ParseScoreBorder(minArg)
	max, err2 := sortedset.ParseScoreBorder(maxArg)
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR min or max is not a float")
	}
	withScores := false
	offset, limit := int64(0), int64(-1)
	for i := 3; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "WITHSCORES":
			withScores = true
		case "LIMIT":
			if i+2 >= len(args) {
				return protocol.MakeSyntaxErrReply()
			}
			o, err := strconv.ParseInt(string(args[i+1]), 10, 64)
			if err != nil {
				return protocol.MakeErrReply("ERR value is not an integer or out of range")
			}
			l, err := strconv.ParseInt(string(args[i+2]), 10, 64)
			if err != nil {
				return protocol.MakeErrReply("ERR value is not an integer or out of range")
			}
			offset, limit = o, l
			i += 2
		default:
			return protocol.MakeSyntaxErrReply()
		}
	}
	elems := z.RangeByScore(min, max, offset, limit, desc)
	return zrangeReply(elems, withScores)
}

func execZRemRangeByScore(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	z, errReply, ok := getAsZSet(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	min, err1 := sortedset.ParseScoreBorder(string(args[1]))
	max, err2 := sortedset.ParseScoreBorder(string(args[2]))
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR min or max is not a float")
	}
	removed := z.RemoveByScore(min, max)
	if z.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeIntReply(removed)
}

func execZRemRangeByRank(db *DB, args [][]byte) redis.Reply {
	key := string(args[0])
	z, errReply, ok := getAsZSet(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok {
		return protocol.MakeIntReply(0)
	}
	start, err1 := strconv.ParseInt(string(args[1]), 10, 64)
	stop, err2 := strconv.ParseInt(string(args[2]), 10, 64)
	if err1 != nil || err2 != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	size := z.Len()
	start = normalizeRank(start, size)
	if stop < 0 {
		stop += size
	}
	if stop >= size {
		stop = size - 1
	}
	if start > stop {
		return protocol.MakeIntReply(0)
	}
	removed := z.RemoveByRank(start, stop+1)
	if z.Len() == 0 {
		db.Remove(key)
	}
	return protocol.MakeIntReply(removed)
}

func execZPopMin(db *DB, args [][]byte) redis.Reply {
	return zpop(db, args, false)
}

func execZPopMax(db *DB, args [][]byte) redis.Reply {
	return zpop(db, args, true)
}

func zpop(db *DB, args [][]byte, max bool) redis.Reply {
	key := string(args[0])
	count := 1
	if len(args) > 1 {
		n, err := strconv.Atoi(string(args[1]))
		if err != nil || n < 0 {
			return protocol.MakeErrReply("ERR value is out of range, must be positive")
		}
		count = n
	}
	z, errReply, ok := getAsZSet(db, key)
	if errReply != nil {
		return errReply
	}
	if !ok || count == 0 {
		return protocol.MakeEmptyMultiBulkReply()
	}
	var elems []*sortedset.Element
	if max {
		elems = z.Range(0, int64(count), true)
		for _, e := range elems {
			z.Remove(e.Member)
		}
	} else {
		elems = z.PopMin(count)
	}
	if z.Len() == 0 {
		db.Remove(key)
	}
	result := make([][]byte, 0, len(elems)*2)
	for _, e := range elems {
		result = append(result, []byte(e.Member), []byte(strconv.FormatFloat(e.Score, 'f', -1, 64)))
	}
	return protocol.MakeMultiBulkReply(result)
}

// tryZPopFromAny scans keys in order, under the same per-key write lock
// a normal ZPOPMIN/ZPOPMAX would take, popping one element from the
// first non-empty sorted set it finds.
func tryZPopFromAny(db *DB, keys []string, max bool) (string, *sortedset.Element, redis.Reply) {
	for _, key := range keys {
		db.locker.RWLocks([]string{key}, nil)
		z, errReply, ok := getAsZSet(db, key)
		if errReply != nil {
			db.locker.RWUnLocks([]string{key}, nil)
			return "", nil, errReply
		}
		if ok && z.Len() > 0 {
			var elem *sortedset.Element
			if max {
				elem = z.Range(0, 1, true)[0]
				z.Remove(elem.Member)
			} else {
				elem = z.PopMin(1)[0]
			}
			if z.Len() == 0 {
				db.Remove(key)
			}
			db.locker.RWUnLocks([]string{key}, nil)
			return key, elem, nil
		}
		db.locker.RWUnLocks([]string{key}, nil)
	}
	return "", nil, nil
}

func zPopReply(key string, elem *sortedset.Element) redis.Reply {
	return protocol.MakeMultiBulkReply([][]byte{
		[]byte(key),
		[]byte(elem.Member),
		[]byte(strconv.FormatFloat(elem.Score, 'f', -1, 64)),
	})
}

// execBZPop implements BZPOPMIN/BZPOPMAX: blocks on keys up to the
// trailing timeout argument, the same waiter-queue design
// execBlockingPop uses for BLPOP/BRPOP.
func (e *Engine) execBZPop(c redis.Connection, db *DB, cmdName string, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply(cmdName)
	}
	max := cmdName == "bzpopmax"
	keys := toStrings(args[:len(args)-1])
	timeout, err := parseTimeoutSeconds(args[len(args)-1])
	if err != nil {
		return err
	}

	if key, elem, errReply := tryZPopFromAny(db, keys, max); errReply != nil {
		return errReply
	} else if key != "" {
		return zPopReply(key, elem)
	}

	parkBlockingClient(c, db, keys, timeout, func() redis.Reply {
		key, elem, errReply := tryZPopFromAny(db, keys, max)
		if errReply != nil {
			return errReply
		}
		if key == "" {
			return nil
		}
		return zPopReply(key, elem)
	}, protocol.MakeNullMultiBulkReply())
	return nil
}

// execBZPopMinNonBlocking/execBZPopMaxNonBlocking back the cmdTable
// entries used only when a BZPOPMIN/BZPOPMAX is queued inside MULTI:
// one immediate attempt, no real blocking, matching the BLPOP/BRPOP
// in-transaction contract in blocking_commands.go.
func execBZPopMinNonBlocking(db *DB, args [][]byte) redis.Reply {
	return bzPopNonBlocking(db, args, false)
}

func execBZPopMaxNonBlocking(db *DB, args [][]byte) redis.Reply {
	return bzPopNonBlocking(db, args, true)
}

func bzPopNonBlocking(db *DB, args [][]byte, max bool) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("bzpopmin")
	}
	keys := toStrings(args[:len(args)-1])
	key, elem, errReply := tryZPopFromAny(db, keys, max)
	if errReply != nil {
		return errReply
	}
	if key == "" {
		return protocol.MakeNullMultiBulkReply()
	}
	return zPopReply(key, elem)
}

func init() {
	RegisterCommand("zadd", execZAdd, writeFirstKey, nil, -4, flagWrite)
	RegisterCommand("zpopmin", execZPopMin, writeFirstKey, nil, -2, flagWrite)
	RegisterCommand("zpopmax", execZPopMax, writeFirstKey, nil, -2, flagWrite)
	RegisterCommand("bzpopmin", execBZPopMinNonBlocking, writeKeysExceptLast, nil, -3, flagWrite)
	RegisterCommand("bzpopmax", execBZPopMaxNonBlocking, writeKeysExceptLast, nil, -3, flagWrite)
	RegisterCommand("zscore", execZScore, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("zrank", execZRank, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("zrevrank", execZRevRank, readFirstKey, nil, 3, flagReadOnly)
	RegisterCommand("zcard", execZCard, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("zrem", execZRem, writeFirstKey, nil, -3, flagWrite)
	RegisterCommand("zincrby", execZIncrBy, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("zcount", execZCount, readFirstKey, nil, 4, flagReadOnly)
	RegisterCommand("zrange", execZRange, readFirstKey, nil, -4, flagReadOnly)
	RegisterCommand("zrevrange", execZRevRange, readFirstKey, nil, -4, flagReadOnly)
	RegisterCommand("zrangebyscore", execZRangeByScore, readFirstKey, nil, -4, flagReadOnly)
	RegisterCommand("zrevrangebyscore", execZRevRangeByScore, readFirstKey, nil, -4, flagReadOnly)
	RegisterCommand("zremrangebyscore", execZRemRangeByScore, writeFirstKey, nil, 4, flagWrite)
	RegisterCommand("zremrangebyrank", execZRemRangeByRank, writeFirstKey, nil, 4, flagWrite)
}
