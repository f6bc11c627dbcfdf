// Package database implements the keyspace engine: one DB per logical
// database index, a command table, and the transaction/digest machinery
// EXEC and WATCH need. Kept on the teacher's database/database.go shape
// (a DB wraps a data dict + ttl dict + striped locks); WATCH compares
// content digests computed on demand (digest.go) instead of a version
// counter.
package database

import (
	"strings"
	"time"

	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/lock"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

const (
	dataDictSize = 1 << 16
	ttlDictSize  = 1 << 10
	lockerSize   = 1024
)

// DB is one logical database (SELECT 0..15 by default).
type DB struct {
	index  int
	data   dict.Dict
	ttlMap dict.Dict

	locker *lock.Locks
	addAof func(CmdLine)

	// replicate appends a journal-rewritten command line to the owning
	// Engine's replication journal, wired the same way addAof is. A DB
	// built by makeBasicDB gets a no-op func here, for engines that never
	// serve replicas (NewBasicEngine's AOF-replay scratch engine, most
	// notably).
	replicate func(CmdLine)

	blockers *blockerRegistry

	// evalCmd runs an EVAL/EVALSHA body against this db's owning Engine,
	// wired the same way addAof is: a closure the Engine hands every DB
	// it creates, so EVAL can be queued and replayed through execWithLock
	// like any other write command.
	evalCmd func(script string, keys, argv []string, useSha bool) redis.Reply

	// gateCheck re-screens one queued command's dispatcher gates at EXEC
	// time (spec.md §4.3 step 4): OOM/NOREPLICAS for a write, MASTERDOWN
	// for a read. Wired by the owning Engine the same way evalCmd is;
	// makeBasicDB installs noGateCheck, which never rejects anything
	// (NewBasicEngine's AOF-replay scratch engine has no gates to re-screen).
	gateCheck func(c redis.Connection, cmdName string) redis.Reply
}

// CmdLine is one command and its arguments.
type CmdLine = [][]byte

// ExecFunc executes one command against db; args excludes the command name.
type ExecFunc func(db *DB, args [][]byte) redis.Reply

// PreFunc inspects args ahead of execution and returns the keys that
// need write locks and the keys that need read locks.
type PreFunc func(args [][]byte) ([]string, []string)

// UndoFunc returns the command lines that would undo this command,
// captured before execution for transaction rollback.
type UndoFunc func(db *DB, args [][]byte) []CmdLine

func noEvalCmd(script string, keys, argv []string, useSha bool) redis.Reply {
	return protocol.MakeErrReply("ERR scripting unavailable on this engine")
}

func noGateCheck(c redis.Connection, cmdName string) redis.Reply {
	return nil
}

func makeDB() *DB {
	return &DB{
		data:      dict.MakeConcurrent(dataDictSize),
		ttlMap:    dict.MakeConcurrent(ttlDictSize),
		locker:    lock.Make(lockerSize),
		addAof:    func(line CmdLine) {},
		replicate: func(line CmdLine) {},
		blockers:  newBlockerRegistry(),
		evalCmd:   noEvalCmd,
		gateCheck: noGateCheck,
	}
}

func makeBasicDB() *DB {
	return &DB{
		data:      dict.MakeSimple(),
		ttlMap:    dict.MakeSimple(),
		locker:    lock.Make(1),
		addAof:    func(line CmdLine) {},
		replicate: func(line CmdLine) {},
		blockers:  newBlockerRegistry(),
		evalCmd:   noEvalCmd,
		gateCheck: noGateCheck,
	}
}

// Exec dispatches cmdLine: transaction control verbs are intercepted
// here (they must work even while MULTI-queuing is active), everything
// else is queued if the connection is mid-transaction or executed
// immediately otherwise.
func (db *DB) Exec(c redis.Connection, cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	switch cmdName {
	case "multi":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return StartMulti(c)
	case "discard":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return DiscardMulti(c)
	case "exec":
		if len(cmdLine) != 1 {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		return execMulti(db, c)
	case "watch":
		if !validateArity(-2, cmdLine) {
			return protocol.MakeArgNumErrReply(cmdName)
		}
		if c != nil && c.InMultiState() {
			return protocol.MakeErrReply("ERR WATCH inside MULTI is not allowed")
		}
		return Watch(db, c, cmdLine[1:])
	case "unwatch":
		if c != nil {
			c.GetWatching()
			for k := range c.GetWatching() {
				delete(c.GetWatching(), k)
			}
		}
		return protocol.MakeOkReply()
	}
	if c != nil && c.InMultiState() {
		return EnqueueCmd(c, cmdLine)
	}
	return db.execNormalCommand(cmdLine)
}

func (db *DB) execNormalCommand(cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	cmd, ok := cmdTable[cmdName]
	if !ok {
		return protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
	}
	if !validateArity(cmd.arity, cmdLine) {
		return protocol.MakeArgNumErrReply(cmdName)
	}

	write, read := cmd.prepare(cmdLine[1:])
	db.locker.RWLocks(write, read)
	defer db.locker.RWUnLocks(write, read)
	result := cmd.executor(db, cmdLine[1:])
	if cmd.flags&flagWrite > 0 && !protocol.IsErrorReply(result) {
		db.addAof(cmdLine)
		if rewritten := rewriteForJournal(db, cmdName, cmdLine[1:], result); rewritten != nil {
			db.replicate(rewritten)
		}
	}
	return result
}

// execWithLock executes cmdLine without acquiring locks, for callers
// (EXEC, AOF replay) that already hold the right locks or don't need
// them because they run single-threaded at load time.
func (db *DB) execWithLock(cmdLine [][]byte) redis.Reply {
	cmdName := strings.ToLower(string(cmdLine[0]))
	cmd, ok := cmdTable[cmdName]
	if !ok {
		return protocol.MakeErrReply("ERR unknown command '" + cmdName + "'")
	}
	if !validateArity(cmd.arity, cmdLine) {
		return protocol.MakeArgNumErrReply(cmdName)
	}
	return cmd.executor(db, cmdLine[1:])
}

func validateArity(arity int, cmdArgs [][]byte) bool {
	argNum := len(cmdArgs)
	if arity >= 0 {
		return argNum == arity
	}
	return argNum >= -arity
}

/* ---- data access ---- */

func (db *DB) GetEntity(key string) (*database.DataEntity, bool) {
	raw, ok := db.data.Get(key)
	if !ok {
		return nil, false
	}
	if db.IsExpired(key) {
		return nil, false
	}
	entity, _ := raw.(*database.DataEntity)
	return entity, true
}

func (db *DB) PutEntity(key string, entity *database.DataEntity) int {
	return db.data.Put(key, entity)
}

func (db *DB) PutIfExists(key string, entity *database.DataEntity) int {
	return db.data.PutIfExists(key, entity)
}

func (db *DB) PutIfAbsent(key string, entity *database.DataEntity) int {
	return db.data.PutIfAbsent(key, entity)
}

func (db *DB) Remove(key string) {
	db.data.Remove(key)
	db.ttlMap.Remove(key)
}

func (db *DB) Removes(keys ...string) (deleted int) {
	for _, key := range keys {
		if _, exists := db.data.Get(key); exists {
			db.Remove(key)
			deleted++
		}
	}
	return deleted
}

// Flush clears every key. Backs FLUSHDB and FLUSHALL.
func (db *DB) Flush() {
	db.data.Clear()
	db.ttlMap.Clear()
	db.locker = lock.Make(lockerSize)
}

func (db *DB) RWLocks(writeKeys []string, readKeys []string) {
	db.locker.RWLocks(writeKeys, readKeys)
}

func (db *DB) RWUnLocks(writeKeys []string, readKeys []string) {
	db.locker.RWUnLocks(writeKeys, readKeys)
}

// Expire records an absolute expiration deadline for key. Actual removal
// happens lazily on access (IsExpired) or during the periodic active
// expire cycle (Engine.ActiveExpireCycle), not via a per-key timer: the
// spec's TTL model is lazy + sampled-active, unlike the teacher's
// timewheel-per-key design.
func (db *DB) Expire(key string, expireTime time.Time) {
	db.ttlMap.Put(key, expireTime)
}

func (db *DB) Persist(key string) {
	db.ttlMap.Remove(key)
}

// IsExpired reports whether key has a TTL that has passed, removing it
// from both dicts (lazy expiration) if so.
func (db *DB) IsExpired(key string) bool {
	rawExpireTime, ok := db.ttlMap.Get(key)
	if !ok {
		return false
	}
	expireTime, _ := rawExpireTime.(time.Time)
	if time.Now().After(expireTime) {
		db.Remove(key)
		return true
	}
	return false
}

func (db *DB) TTL(key string) (time.Time, bool) {
	raw, ok := db.ttlMap.Get(key)
	if !ok {
		return time.Time{}, false
	}
	t, _ := raw.(time.Time)
	return t, true
}

func (db *DB) ForEach(cb func(key string, data *database.DataEntity, expiration *time.Time) bool) {
	db.data.ForEach(func(key string, raw interface{}) bool {
		entity, _ := raw.(*database.DataEntity)
		var expiration *time.Time
		if rawExpireTime, ok := db.ttlMap.Get(key); ok {
			expireTime, _ := rawExpireTime.(time.Time)
			expiration = &expireTime
		}
		return cb(key, entity, expiration)
	})
}

// Size reports key count and TTL-tracked key count, for GetDBSize.
func (db *DB) Size() (int, int) {
	return db.data.Len(), db.ttlMap.Len()
}
