package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// rewriteForJournal implements spec.md §4.5's per-command idempotent
// rewrite table: the replication journal never carries relative TTLs or
// counters that would replay differently on a second pass, only
// absolute deadlines and the post-execution end state. Returns nil to
// suppress journaling the command entirely. No teacher/pack file covers
// per-command replication rewriting; this table is grounded directly on
// spec.md's own enumeration.
func rewriteForJournal(db *DB, cmdName string, args [][]byte, result redis.Reply) CmdLine {
	switch cmdName {
	case "set":
		return rewriteSet(db, args)
	case "setex", "psetex":
		if len(args) < 3 {
			return passthrough(cmdName, args)
		}
		return rewriteAbsoluteSet(db, string(args[0]), args[2])
	case "expire", "pexpire", "expireat", "pexpireat":
		if len(args) == 0 {
			return passthrough(cmdName, args)
		}
		return rewriteExpire(db, string(args[0]))
	case "getex":
		return rewriteGetEx(db, args)
	case "getdel":
		if len(args) != 1 {
			return passthrough(cmdName, args)
		}
		return CmdLine{[]byte("DEL"), args[0]}
	case "del", "unlink":
		if intResult, ok := result.(*protocol.IntReply); ok && intResult.Code <= 0 {
			return nil
		}
		return passthrough("del", args)
	case "restore":
		return rewriteRestore(db, args)
	case "incrbyfloat":
		if len(args) != 2 {
			return passthrough(cmdName, args)
		}
		bulk, ok := result.(*protocol.BulkReply)
		if !ok {
			return passthrough(cmdName, args)
		}
		return CmdLine{[]byte("SET"), args[0], bulk.Arg, []byte("KEEPTTL")}
	case "script", "xreadgroup", "eval", "evalsha", "fcall", "fcall_ro":
		return nil
	default:
		return passthrough(cmdName, args)
	}
}

func passthrough(cmdName string, args [][]byte) CmdLine {
	out := make(CmdLine, 0, len(args)+1)
	out = append(out, []byte(strings.ToUpper(cmdName)))
	out = append(out, args...)
	return out
}

func absMs(t time.Time) []byte {
	return []byte(strconv.FormatInt(t.UnixMilli(), 10))
}

// rewriteSet turns any SET ... EX|PX|EXAT|PXAT ... option into
// PXAT <abs-ms>, reading the key's actual post-execution TTL rather than
// recomputing the offset from the original relative argument.
func rewriteSet(db *DB, args [][]byte) CmdLine {
	if len(args) < 2 {
		return passthrough("set", args)
	}
	key := string(args[0])
	out := CmdLine{[]byte("SET"), args[0], args[1]}
	for i := 2; i < len(args); i++ {
		switch strings.ToUpper(string(args[i])) {
		case "EX", "PX", "EXAT", "PXAT":
			if expireAt, ok := db.TTL(key); ok {
				out = append(out, []byte("PXAT"), absMs(expireAt))
			}
			i++
		default:
			out = append(out, args[i])
		}
	}
	return out
}

func rewriteAbsoluteSet(db *DB, key string, value []byte) CmdLine {
	out := CmdLine{[]byte("SET"), []byte(key), value}
	if expireAt, ok := db.TTL(key); ok {
		out = append(out, []byte("PXAT"), absMs(expireAt))
	}
	return out
}

func rewriteExpire(db *DB, key string) CmdLine {
	if _, exists := db.GetEntity(key); !exists {
		return CmdLine{[]byte("DEL"), []byte(key)}
	}
	expireAt, ok := db.TTL(key)
	if !ok {
		return CmdLine{[]byte("DEL"), []byte(key)}
	}
	return CmdLine{[]byte("PEXPIREAT"), []byte(key), absMs(expireAt)}
}

func rewriteGetEx(db *DB, args [][]byte) CmdLine {
	if len(args) < 2 {
		return nil
	}
	key := args[0]
	switch strings.ToUpper(string(args[1])) {
	case "PERSIST":
		return CmdLine{[]byte("PERSIST"), key}
	case "EX", "PX", "EXAT", "PXAT":
		if expireAt, ok := db.TTL(string(key)); ok {
			return CmdLine{[]byte("PEXPIREAT"), key, absMs(expireAt)}
		}
		return nil
	default:
		return nil
	}
}

func rewriteRestore(db *DB, args [][]byte) CmdLine {
	if len(args) < 3 {
		return passthrough("restore", args)
	}
	key := args[0]
	out := CmdLine{[]byte("RESTORE"), key}
	if expireAt, ok := db.TTL(string(key)); ok {
		out = append(out, absMs(expireAt))
	} else {
		out = append(out, []byte("0"))
	}
	out = append(out, args[2], []byte("ABSTTL"))
	return out
}
