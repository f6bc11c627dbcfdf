package database

import (
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// dbBoundEngine adapts a single DB's execWithLock into the
// database.DBEngine surface a script's redis.call/pcall dispatches
// through, so every redis.call runs against that one DB. runEval uses it
// for interactive EVAL/EVALSHA, and so does a script replayed out of a
// queued MULTI/EXEC batch, where there is no live Connection to route
// ExecWithLock's dbIndex lookup through. Every other DBEngine method is
// just the real Engine's, unchanged.
type dbBoundEngine struct {
	*Engine
	db *DB
}

func (a *dbBoundEngine) ExecWithLock(_ redis.Connection, cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	result := a.db.execWithLock(cmdLine)
	if cmd, ok := cmdTable[cmdName]; ok && cmd.flags&flagWrite > 0 && !protocol.IsErrorReply(result) {
		if rewritten := rewriteForJournal(a.db, cmdName, cmdLine[1:], result); rewritten != nil {
			a.db.replicate(rewritten)
		}
	}
	return result
}

// execScripting handles EVAL, EVALSHA, and SCRIPT at the engine level,
// the same way blocking commands are intercepted ahead of the per-DB
// command table: scripts need the whole Engine (to dispatch redis.call
// against any DB through ExecWithLock), not just the DB a bare ExecFunc
// receives.
func (e *Engine) execScripting(c redis.Connection, cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	args := cmdLine[1:]
	switch cmdName {
	case "eval", "evalsha":
		if c != nil && c.InMultiState() {
			return EnqueueCmd(c, cmdLine)
		}
		return e.runEval(c, cmdLine, cmdName == "evalsha", args)
	case "script":
		return e.execScript(args)
	}
	return protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
}

func (e *Engine) runEval(c redis.Connection, cmdLine [][]byte, useSha bool, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("eval")
	}
	numKeys, err := strconv.Atoi(string(args[1]))
	if err != nil || numKeys < 0 {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	if 2+numKeys > len(args) {
		return protocol.MakeErrReply("ERR Number of keys can't be greater than number of args")
	}
	keys := toStrings(args[2 : 2+numKeys])
	argv := toStrings(args[2+numKeys:])
	db, errReply := e.selectDB(c.GetDBIndex())
	if errReply != nil {
		return errReply
	}
	script := string(args[0])
	var result redis.Reply
	if useSha {
		result = e.scripts.EvalSha(&dbBoundEngine{Engine: e, db: db}, c, script, keys, argv)
	} else {
		result = e.scripts.Eval(&dbBoundEngine{Engine: e, db: db}, c, script, keys, argv)
	}
	// EVAL/EVALSHA never goes through db.execNormalCommand (it needs the
	// whole Engine, not just a DB), so it has to persist itself here —
	// the verbatim call, not its expanded effects, the same
	// whole-script-replay approach real Redis AOF used before effects
	// replication became the default.
	if !protocol.IsErrorReply(result) {
		db.addAof(cmdLine)
	}
	return result
}

// execEvalQueued and execEvalShaQueued back the cmdTable entries EVAL
// and EVALSHA need only so EXEC can replay them out of a queued MULTI
// batch; the interactive path never reaches these, Engine.Exec handles
// EVAL/EVALSHA itself before cmdTable lookup happens.
func execEvalQueued(db *DB, args [][]byte) redis.Reply {
	return runQueuedEval(db, args, false)
}

func execEvalShaQueued(db *DB, args [][]byte) redis.Reply {
	return runQueuedEval(db, args, true)
}

func runQueuedEval(db *DB, args [][]byte, useSha bool) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("eval")
	}
	numKeys, err := strconv.Atoi(string(args[1]))
	if err != nil || numKeys < 0 || 2+numKeys > len(args) {
		return protocol.MakeErrReply("ERR Number of keys can't be greater than number of args")
	}
	keys := toStrings(args[2 : 2+numKeys])
	argv := toStrings(args[2+numKeys:])
	return db.evalCmd(string(args[0]), keys, argv, useSha)
}

// evalPrepareKeys reports every script key as needing a write lock —
// conservative, since a script can write any key it names in KEYS.
func evalPrepareKeys(args [][]byte) ([]string, []string) {
	if len(args) < 2 {
		return nil, nil
	}
	numKeys, err := strconv.Atoi(string(args[1]))
	if err != nil || numKeys < 0 || 2+numKeys > len(args) {
		return nil, nil
	}
	return toStrings(args[2 : 2+numKeys]), nil
}

func init() {
	RegisterCommand("eval", execEvalQueued, evalPrepareKeys, nil, -3, flagWrite)
	RegisterCommand("evalsha", execEvalShaQueued, evalPrepareKeys, nil, -3, flagWrite)
}

func (e *Engine) execScript(args [][]byte) redis.Reply {
	if len(args) == 0 {
		return protocol.MakeArgNumErrReply("script")
	}
	switch strings.ToUpper(string(args[0])) {
	case "LOAD":
		if len(args) != 2 {
			return protocol.MakeArgNumErrReply("script|load")
		}
		return protocol.MakeBulkReply([]byte(e.scripts.Load(string(args[1]))))
	case "EXISTS":
		replies := make([]redis.Reply, len(args)-1)
		for i, digest := range args[1:] {
			if e.scripts.Exists(string(digest)) {
				replies[i] = protocol.MakeIntReply(1)
			} else {
				replies[i] = protocol.MakeIntReply(0)
			}
		}
		return protocol.MakeMultiRawReply(replies)
	case "FLUSH":
		e.scripts.Flush()
		return protocol.MakeOkReply()
	case "KILL":
		if e.scripts.Kill() {
			return protocol.MakeOkReply()
		}
		return protocol.MakeErrReply("NOTBUSY No scripts in execution right now.")
	default:
		return protocol.MakeErrReply("ERR Unknown SCRIPT subcommand")
	}
}
