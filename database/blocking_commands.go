package database

import (
	"reflect"
	"strconv"
	"time"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// parseTimeoutSeconds parses a BLPOP-style timeout argument: a
// non-negative number of seconds, fractional allowed, 0 meaning
// "forever".
func parseTimeoutSeconds(arg []byte) (time.Duration, redis.Reply) {
	seconds, convErr := strconv.ParseFloat(string(arg), 64)
	if convErr != nil || seconds < 0 {
		return 0, protocol.MakeErrReply("ERR timeout is not a float or out of range")
	}
	return time.Duration(seconds * float64(time.Second)), nil
}

// tryPopFromAny scans keys in order, under the same per-key write lock
// a normal LPOP/RPOP would take, popping the first non-empty list it
// finds. Returns ("", nil, nil) if every key is absent or empty.
func tryPopFromAny(db *DB, keys []string, rev bool) (string, []byte, redis.Reply) {
	for _, key := range keys {
		db.locker.RWLocks([]string{key}, nil)
		l, errReply, ok := getAsList(db, key)
		if errReply != nil {
			db.locker.RWUnLocks([]string{key}, nil)
			return "", nil, errReply
		}
		if ok && l.Len() > 0 {
			var val []byte
			if rev {
				val = l.RemoveLast().([]byte)
			} else {
				val = l.Remove(0).([]byte)
			}
			if l.Len() == 0 {
				db.Remove(key)
			}
			db.locker.RWUnLocks([]string{key}, nil)
			return key, val, nil
		}
		db.locker.RWUnLocks([]string{key}, nil)
	}
	return "", nil, nil
}

// parkBlockingClient spawns the goroutine that waits on keys without
// ever blocking the event loop that called Exec: gnet's React callback
// must return immediately, so a command that can't complete synchronously
// returns a nil reply here and finishes the client's reply itself, once
// woken or timed out, through conn.Write (which the gnet adapter routes
// through AsyncWrite — the one gnet primitive safe to call off the
// connection's own event-loop goroutine).
func parkBlockingClient(c redis.Connection, db *DB, keys []string, timeout time.Duration, attempt func() redis.Reply, onTimeout redis.Reply) {
	go func() {
		chans := make([]chan struct{}, len(keys))
		for i, key := range keys {
			chans[i] = db.blockers.wait(key)
		}
		defer func() {
			for i, key := range keys {
				db.blockers.stopWaiting(key, chans[i])
			}
		}()

		cases := make([]reflect.SelectCase, len(chans), len(chans)+1)
		for i, ch := range chans {
			cases[i] = reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(ch)}
		}
		if timeout > 0 {
			timer := time.NewTimer(timeout)
			defer timer.Stop()
			cases = append(cases, reflect.SelectCase{Dir: reflect.SelectRecv, Chan: reflect.ValueOf(timer.C)})
		}
		deadlineIdx := len(chans)

		for {
			chosen, _, _ := reflect.Select(cases)
			if timeout > 0 && chosen == deadlineIdx {
				_, _ = c.Write(onTimeout.ToBytes())
				return
			}
			if reply := attempt(); reply != nil {
				_, _ = c.Write(reply.ToBytes())
				return
			}
		}
	}()
}

// execBlockingPop implements BLPOP/BRPOP: pop the first ready key among
// args[:len(args)-1], blocking up to the trailing timeout argument.
func (e *Engine) execBlockingPop(c redis.Connection, db *DB, cmdName string, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply(cmdName)
	}
	rev := cmdName == "brpop"
	keys := make([]string, len(args)-1)
	for i, a := range args[:len(args)-1] {
		keys[i] = string(a)
	}
	timeout, err := parseTimeoutSeconds(args[len(args)-1])
	if err != nil {
		return err
	}

	if key, val, errReply := tryPopFromAny(db, keys, rev); errReply != nil {
		return errReply
	} else if key != "" {
		return protocol.MakeMultiBulkReply([][]byte{[]byte(key), val})
	}

	parkBlockingClient(c, db, keys, timeout, func() redis.Reply {
		key, val, errReply := tryPopFromAny(db, keys, rev)
		if errReply != nil {
			return errReply
		}
		if key == "" {
			return nil
		}
		return protocol.MakeMultiBulkReply([][]byte{[]byte(key), val})
	}, protocol.MakeNullMultiBulkReply())
	return nil
}

// tryRPopLPush moves one element from src's tail to dst's head, the
// way RPOPLPUSH does, reporting whether src had anything to move.
func tryRPopLPush(db *DB, src, dst string) (bool, []byte, redis.Reply) {
	keys := []string{src, dst}
	db.locker.RWLocks(keys, nil)
	defer db.locker.RWUnLocks(keys, nil)

	srcList, errReply, ok := getAsList(db, src)
	if errReply != nil {
		return false, nil, errReply
	}
	if !ok || srcList.Len() == 0 {
		return false, nil, nil
	}
	val := srcList.RemoveLast().([]byte)
	if srcList.Len() == 0 {
		db.Remove(src)
	}
	dstList, errReply, _ := getOrInitList(db, dst)
	if errReply != nil {
		return false, nil, errReply
	}
	dstList.Insert(0, val)
	db.blockers.wake(dst)
	return true, val, nil
}

func (e *Engine) execBlockingRPopLPush(c redis.Connection, db *DB, args [][]byte) redis.Reply {
	if len(args) != 3 {
		return protocol.MakeArgNumErrReply("brpoplpush")
	}
	src, dst := string(args[0]), string(args[1])
	timeout, err := parseTimeoutSeconds(args[2])
	if err != nil {
		return err
	}

	if moved, val, errReply := tryRPopLPush(db, src, dst); errReply != nil {
		return errReply
	} else if moved {
		return protocol.MakeBulkReply(val)
	}

	parkBlockingClient(c, db, []string{src}, timeout, func() redis.Reply {
		moved, val, errReply := tryRPopLPush(db, src, dst)
		if errReply != nil {
			return errReply
		}
		if !moved {
			return nil
		}
		return protocol.MakeBulkReply(val)
	}, protocol.MakeNullBulkReply())
	return nil
}

// tryLMove generalizes tryRPopLPush to BLMOVE's four from/to ends.
func tryLMove(db *DB, src, dst string, fromLeft, toLeft bool) (bool, []byte, redis.Reply) {
	keys := []string{src, dst}
	db.locker.RWLocks(keys, nil)
	defer db.locker.RWUnLocks(keys, nil)

	srcList, errReply, ok := getAsList(db, src)
	if errReply != nil {
		return false, nil, errReply
	}
	if !ok || srcList.Len() == 0 {
		return false, nil, nil
	}
	var val []byte
	if fromLeft {
		val = srcList.Remove(0).([]byte)
	} else {
		val = srcList.RemoveLast().([]byte)
	}
	if srcList.Len() == 0 {
		db.Remove(src)
	}
	dstList, errReply, _ := getOrInitList(db, dst)
	if errReply != nil {
		return false, nil, errReply
	}
	if toLeft {
		dstList.Insert(0, val)
	} else {
		dstList.Add(val)
	}
	db.blockers.wake(dst)
	return true, val, nil
}

func parseLMoveDirection(arg []byte) (bool, bool) {
	switch string(arg) {
	case "LEFT", "left":
		return true, true
	case "RIGHT", "right":
		return false, true
	default:
		return false, false
	}
}

// execBlockingPopNonBlocking/execBlockingRPopLPushNonBlocking/
// execBlockingLMoveNonBlocking back the cmdTable entries used only when
// a blocking command is queued inside MULTI: real Redis never actually
// blocks there, it makes one immediate attempt and replies as if the
// timeout had already elapsed. Engine.Exec intercepts these commands
// ahead of cmdTable for the interactive (non-transaction) path, where
// real blocking is possible.
func execBlockingPopNonBlocking(db *DB, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("blpop")
	}
	keys := toStrings(args[:len(args)-1])
	key, val, errReply := tryPopFromAny(db, keys, false)
	if errReply != nil {
		return errReply
	}
	if key == "" {
		return protocol.MakeNullMultiBulkReply()
	}
	return protocol.MakeMultiBulkReply([][]byte{[]byte(key), val})
}

func execBRPopNonBlocking(db *DB, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("brpop")
	}
	keys := toStrings(args[:len(args)-1])
	key, val, errReply := tryPopFromAny(db, keys, true)
	if errReply != nil {
		return errReply
	}
	if key == "" {
		return protocol.MakeNullMultiBulkReply()
	}
	return protocol.MakeMultiBulkReply([][]byte{[]byte(key), val})
}

func execBRPopLPushNonBlocking(db *DB, args [][]byte) redis.Reply {
	if len(args) != 3 {
		return protocol.MakeArgNumErrReply("brpoplpush")
	}
	moved, val, errReply := tryRPopLPush(db, string(args[0]), string(args[1]))
	if errReply != nil {
		return errReply
	}
	if !moved {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(val)
}

func execBLMoveNonBlocking(db *DB, args [][]byte) redis.Reply {
	if len(args) != 5 {
		return protocol.MakeArgNumErrReply("blmove")
	}
	fromLeft, ok1 := parseLMoveDirection(args[2])
	toLeft, ok2 := parseLMoveDirection(args[3])
	if !ok1 || !ok2 {
		return protocol.MakeSyntaxErrReply()
	}
	moved, val, errReply := tryLMove(db, string(args[0]), string(args[1]), fromLeft, toLeft)
	if errReply != nil {
		return errReply
	}
	if !moved {
		return protocol.MakeNullBulkReply()
	}
	return protocol.MakeBulkReply(val)
}

// writeKeysExceptLast treats every argument but the trailing timeout as
// a key needing a write lock, for BLPOP/BRPOP's cmdTable prepare func.
func writeKeysExceptLast(args [][]byte) ([]string, []string) {
	if len(args) == 0 {
		return nil, nil
	}
	return toStrings(args[:len(args)-1]), nil
}

func writeFirstTwoKeys(args [][]byte) ([]string, []string) {
	return []string{string(args[0]), string(args[1])}, nil
}

func init() {
	RegisterCommand("blpop", execBlockingPopNonBlocking, writeKeysExceptLast, nil, -3, flagWrite)
	RegisterCommand("brpop", execBRPopNonBlocking, writeKeysExceptLast, nil, -3, flagWrite)
	RegisterCommand("brpoplpush", execBRPopLPushNonBlocking, writeFirstTwoKeys, nil, 4, flagWrite)
	RegisterCommand("blmove", execBLMoveNonBlocking, writeFirstTwoKeys, nil, 6, flagWrite)
}

func (e *Engine) execBlockingLMove(c redis.Connection, db *DB, args [][]byte) redis.Reply {
	if len(args) != 5 {
		return protocol.MakeArgNumErrReply("blmove")
	}
	src, dst := string(args[0]), string(args[1])
	fromLeft, ok1 := parseLMoveDirection(args[2])
	toLeft, ok2 := parseLMoveDirection(args[3])
	if !ok1 || !ok2 {
		return protocol.MakeSyntaxErrReply()
	}
	timeout, err := parseTimeoutSeconds(args[4])
	if err != nil {
		return err
	}

	if moved, val, errReply := tryLMove(db, src, dst, fromLeft, toLeft); errReply != nil {
		return errReply
	} else if moved {
		return protocol.MakeBulkReply(val)
	}

	parkBlockingClient(c, db, []string{src}, timeout, func() redis.Reply {
		moved, val, errReply := tryLMove(db, src, dst, fromLeft, toLeft)
		if errReply != nil {
			return errReply
		}
		if !moved {
			return nil
		}
		return protocol.MakeBulkReply(val)
	}, protocol.MakeNullBulkReply())
	return nil
}
