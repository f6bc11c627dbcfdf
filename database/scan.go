// SCAN/HSCAN/SSCAN/ZSCAN: none of the dict/set/sortedset types track
// bucket order the way real Redis's SCAN cursor (a reversed binary
// counter over the hash table's bucket array) depends on, so the
// cursor here is a plain offset into a lexicographically sorted
// snapshot of the collection's keys instead, taken fresh on each call.
// While the collection is unchanged between calls, COUNT-sized pages
// return every entry exactly once; an entry added or removed between
// calls that sorts before the cursor shifts the later entries, so some
// can be returned twice or skipped. The cursor is not bit-compatible
// with real Redis's cursor encoding.
package database

import (
	"sort"
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/lib/wildcard"
	"github.com/alsatianco/peadb/redis/protocol"
)

type scanOptions struct {
	pattern string
	count   int
}

func parseScanArgs(args [][]byte) (cursor int, opts scanOptions, errReply redis.Reply) {
	opts = scanOptions{pattern: "*", count: 10}
	cursor, err := strconv.Atoi(string(args[0]))
	if err != nil || cursor < 0 {
		return 0, opts, protocol.MakeErrReply("ERR invalid cursor")
	}
	for i := 1; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "MATCH":
			if i+1 >= len(args) {
				return 0, opts, protocol.MakeSyntaxErrReply()
			}
			opts.pattern = string(args[i+1])
			i++
		case "COUNT":
			if i+1 >= len(args) {
				return 0, opts, protocol.MakeSyntaxErrReply()
			}
			n, err := strconv.Atoi(string(args[i+1]))
			if err != nil || n <= 0 {
				return 0, opts, protocol.MakeErrReply("ERR value is not an integer or out of range")
			}
			opts.count = n
			i++
		default:
			return 0, opts, protocol.MakeSyntaxErrReply()
		}
	}
	return cursor, opts, nil
}

// scanPage walks sorted starting at cursor, taking up to count entries
// matching pattern, and reports the cursor to resume from (0 once the
// whole snapshot has been walked).
func scanPage(sorted []string, cursor int, pattern string, count int) (next int, page []string) {
	i := cursor
	for i < len(sorted) && len(page) < count {
		if wildcard.IsMatch(pattern, sorted[i]) {
			page = append(page, sorted[i])
		}
		i++
	}
	if i >= len(sorted) {
		return 0, page
	}
	return i, page
}

func scanReply(next int, values [][]byte) redis.Reply {
	return protocol.MakeMultiRawReply([]redis.Reply{
		protocol.MakeBulkReply([]byte(strconv.Itoa(next))),
		protocol.MakeMultiBulkReply(values),
	})
}

func execScan(db *DB, args [][]byte) redis.Reply {
	cursor, opts, errReply := parseScanArgs(args)
	if errReply != nil {
		return errReply
	}
	var keys []string
	db.data.ForEach(func(key string, _ interface{}) bool {
		if !db.IsExpired(key) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	next, page := scanPage(keys, cursor, opts.pattern, opts.count)
	values := make([][]byte, len(page))
	for i, k := range page {
		values[i] = []byte(k)
	}
	return scanReply(next, values)
}

func execHScan(db *DB, args [][]byte) redis.Reply {
	cursor, opts, errReply := parseScanArgs(args[1:])
	if errReply != nil {
		return errReply
	}
	d, errReply, ok := getAsDict(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return scanReply(0, nil)
	}
	var fields []string
	d.ForEach(func(field string, _ interface{}) bool {
		fields = append(fields, field)
		return true
	})
	sort.Strings(fields)
	next, page := scanPage(fields, cursor, opts.pattern, opts.count)
	values := make([][]byte, 0, len(page)*2)
	for _, field := range page {
		raw, _ := d.Get(field)
		values = append(values, []byte(field), raw.([]byte))
	}
	return scanReply(next, values)
}

func execSScan(db *DB, args [][]byte) redis.Reply {
	cursor, opts, errReply := parseScanArgs(args[1:])
	if errReply != nil {
		return errReply
	}
	s, errReply, ok := getAsSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return scanReply(0, nil)
	}
	members := s.ToSlice()
	sort.Strings(members)
	next, page := scanPage(members, cursor, opts.pattern, opts.count)
	values := make([][]byte, len(page))
	for i, m := range page {
		values[i] = []byte(m)
	}
	return scanReply(next, values)
}

func execZScan(db *DB, args [][]byte) redis.Reply {
	cursor, opts, errReply := parseScanArgs(args[1:])
	if errReply != nil {
		return errReply
	}
	z, errReply, ok := getAsZSet(db, string(args[0]))
	if errReply != nil {
		return errReply
	}
	if !ok {
		return scanReply(0, nil)
	}
	members := make([]string, 0, z.Len())
	z.ForEach(0, z.Len(), false, func(e *sortedset.Element) bool {
		members = append(members, e.Member)
		return true
	})
	sort.Strings(members)
	next, page := scanPage(members, cursor, opts.pattern, opts.count)
	values := make([][]byte, 0, len(page)*2)
	for _, member := range page {
		e, _ := z.Get(member)
		values = append(values, []byte(member), []byte(strconv.FormatFloat(e.Score, 'f', -1, 64)))
	}
	return scanReply(next, values)
}

func init() {
	RegisterCommand("scan", execScan, noPrepare, nil, -2, flagReadOnly)
	RegisterCommand("hscan", execHScan, readFirstKey, nil, -3, flagReadOnly)
	RegisterCommand("sscan", execSScan, readFirstKey, nil, -3, flagReadOnly)
	RegisterCommand("zscan", execZScan, readFirstKey, nil, -3, flagReadOnly)
}
