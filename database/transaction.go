// Transaction control: MULTI/EXEC/DISCARD/WATCH. None of these shipped
// in the retrieved tree even though database.go already called them;
// written from scratch following the command shapes database.go's Exec
// switch expects, and the optimistic-concurrency model SPEC_FULL.md's
// WATCH section describes (digest comparison, not version counters).
package database

import (
	"strings"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// StartMulti begins queuing mode on c. Nested MULTI is an error.
func StartMulti(c redis.Connection) redis.Reply {
	if c.InMultiState() {
		return protocol.MakeErrReply("ERR MULTI calls can not be nested")
	}
	c.SetMultiState(true)
	return protocol.MakeOkReply()
}

// DiscardMulti abandons a queued transaction.
func DiscardMulti(c redis.Connection) redis.Reply {
	if !c.InMultiState() {
		return protocol.MakeErrReply("ERR DISCARD without MULTI")
	}
	c.ClearTxState()
	return protocol.MakeOkReply()
}

// EnqueueCmd validates and queues one command line while c is in MULTI
// state. An unknown command or bad arity marks the transaction dirty
// (EXECABORT on EXEC) without queuing it, matching real Redis.
func EnqueueCmd(c redis.Connection, cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	cmd, ok := cmdTable[cmdName]
	if !ok {
		err := protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
		c.AddTxError(err)
		return err
	}
	if !validateArity(cmd.arity, cmdLine) {
		err := protocol.MakeArgNumErrReply(cmdName)
		c.AddTxError(err)
		return err
	}
	c.EnqueueCmd(cmdLine)
	return protocol.MakeQueuedReply()
}

// Watch records the current digest of each key; EXEC aborts if any of
// them changed by the time it runs.
func Watch(db *DB, c redis.Connection, args [][]byte) redis.Reply {
	watching := c.GetWatching()
	for _, arg := range args {
		key := string(arg)
		watching[key] = db.Digest(key)
	}
	return protocol.MakeOkReply()
}

// isWatchingChanged reports whether any watched key's digest no longer
// matches what was recorded at WATCH time.
func isWatchingChanged(db *DB, watching map[string]string) bool {
	for key, digest := range watching {
		if db.Digest(key) != digest {
			return true
		}
	}
	return false
}

// prescreenGates is spec.md §4.3 step 4: before a queued batch ever
// touches a key, every queued write is checked against the OOM/NOREPLICAS
// gates and every queued read against the MASTERDOWN gate, as a batch —
// one gate failure anywhere in the queue aborts the whole transaction
// instead of executing part of it.
func prescreenGates(db *DB, c redis.Connection, cmdLines []CmdLine) redis.Reply {
	for _, cmdLine := range cmdLines {
		cmdName := strings.ToLower(string(cmdLine[0]))
		if errReply := db.gateCheck(c, cmdName); errReply != nil {
			reason := cmdName
			if asErr, ok := errReply.(error); ok {
				reason = asErr.Error()
			}
			return protocol.MakeExecAbortErrReplyWithReason(reason)
		}
	}
	return nil
}

// execMulti runs every queued command atomically: all write/read keys
// across the whole queue are locked together up front so no other
// command execution (from another connection, if the server ever grows
// more than one command goroutine) can interleave.
func execMulti(db *DB, c redis.Connection) redis.Reply {
	if !c.InMultiState() {
		return protocol.MakeErrReply("ERR EXEC without MULTI")
	}
	defer c.ClearTxState()

	if len(c.GetTxErrors()) > 0 {
		return protocol.MakeExecAbortErrReply()
	}

	cmdLines := c.GetQueuedCmdLine()
	if isWatchingChanged(db, c.GetWatching()) {
		return protocol.MakeNullReply()
	}
	if errReply := prescreenGates(db, c, cmdLines); errReply != nil {
		return errReply
	}

	var writeKeysAll, readKeysAll []string
	for _, cmdLine := range cmdLines {
		cmdName := strings.ToLower(string(cmdLine[0]))
		cmd, ok := cmdTable[cmdName]
		if !ok {
			continue
		}
		w, r := cmd.prepare(cmdLine[1:])
		writeKeysAll = append(writeKeysAll, w...)
		readKeysAll = append(readKeysAll, r...)
	}
	db.RWLocks(writeKeysAll, readKeysAll)
	defer db.RWUnLocks(writeKeysAll, readKeysAll)

	results := make([]redis.Reply, 0, len(cmdLines))
	for _, cmdLine := range cmdLines {
		result := db.execWithLock(cmdLine)
		results = append(results, result)
		cmdName := strings.ToLower(string(cmdLine[0]))
		if cmd, ok := cmdTable[cmdName]; ok && cmd.flags&flagWrite > 0 && !protocol.IsErrorReply(result) {
			db.addAof(cmdLine)
		}
	}
	db.replicateMulti(cmdLines, results)
	return protocol.MakeMultiRawReply(results)
}

// ExecMultiBatch runs cmdLines atomically against db the same way
// execMulti does, without requiring a live connection's queue/watch
// state — the body of the engine-level DBEngine.ExecMulti surface
// (Engine.ExecMulti), which nothing in this module calls.
func ExecMultiBatch(db *DB, c redis.Connection, watching map[string]string, cmdLines []CmdLine) redis.Reply {
	if isWatchingChanged(db, watching) {
		return protocol.MakeNullReply()
	}
	if errReply := prescreenGates(db, c, cmdLines); errReply != nil {
		return errReply
	}

	var writeKeysAll, readKeysAll []string
	for _, cmdLine := range cmdLines {
		cmdName := strings.ToLower(string(cmdLine[0]))
		cmd, ok := cmdTable[cmdName]
		if !ok {
			continue
		}
		w, r := cmd.prepare(cmdLine[1:])
		writeKeysAll = append(writeKeysAll, w...)
		readKeysAll = append(readKeysAll, r...)
	}
	db.RWLocks(writeKeysAll, readKeysAll)
	defer db.RWUnLocks(writeKeysAll, readKeysAll)

	results := make([]redis.Reply, 0, len(cmdLines))
	for _, cmdLine := range cmdLines {
		result := db.execWithLock(cmdLine)
		results = append(results, result)
		cmdName := strings.ToLower(string(cmdLine[0]))
		if cmd, ok := cmdTable[cmdName]; ok && cmd.flags&flagWrite > 0 && !protocol.IsErrorReply(result) {
			db.addAof(cmdLine)
		}
	}
	db.replicateMulti(cmdLines, results)
	return protocol.MakeMultiRawReply(results)
}

// replicateMulti is EXEC's replication-journal step (spec.md §4.3's
// transaction controller, step 6): a single resulting write is journaled
// as one event, more than one is wrapped in MULTI/EXEC markers so a
// replica applies them atomically too, and a batch that issued
// REPLICAOF/SLAVEOF is never journaled at all.
func (db *DB) replicateMulti(cmdLines []CmdLine, results []redis.Reply) {
	for _, cmdLine := range cmdLines {
		name := strings.ToLower(string(cmdLine[0]))
		if name == "replicaof" || name == "slaveof" {
			return
		}
	}
	var events []CmdLine
	for i, cmdLine := range cmdLines {
		name := strings.ToLower(string(cmdLine[0]))
		cmd, ok := cmdTable[name]
		if !ok || cmd.flags&flagWrite == 0 || protocol.IsErrorReply(results[i]) {
			continue
		}
		if rewritten := rewriteForJournal(db, name, cmdLine[1:], results[i]); rewritten != nil {
			events = append(events, rewritten)
		}
	}
	switch len(events) {
	case 0:
		return
	case 1:
		db.replicate(events[0])
	default:
		db.replicate(CmdLine{[]byte("MULTI")})
		for _, e := range events {
			db.replicate(e)
		}
		db.replicate(CmdLine{[]byte("EXEC")})
	}
}
