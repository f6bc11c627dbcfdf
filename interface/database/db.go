// Package database defines the contract between the transport/command
// layer and the keyspace engine, kept close to the teacher's
// interface/database/db.go shape (DB/DBEngine/DataEntity) and extended
// for digest-based WATCH and size introspection the spec requires.
package database

import (
	"time"

	"github.com/alsatianco/peadb/interface/redis"
)

// CmdLine is one command and its arguments, e.g. [SET, foo, bar].
type CmdLine = [][]byte

// DB is the per-logical-database execution surface.
type DB interface {
	Exec(client redis.Connection, cmdLine CmdLine) redis.Reply
	AfterClientConnect(c redis.Connection)
	AfterClientClose(c redis.Connection)
	Close()
}

// DBEngine is the whole-server surface: all 16 DBs, transactions, and
// maintenance operations that need direct engine access.
type DBEngine interface {
	DB
	ExecWithLock(conn redis.Connection, cmdLine CmdLine) redis.Reply
	ExecMulti(conn redis.Connection, watching map[string]string, cmdLines []CmdLine) redis.Reply
	GetUndoLogs(dbIndex int, cmdLine CmdLine) []CmdLine
	ForEach(dbIndex int, cb func(key string, data *DataEntity, expiration *time.Time) bool)
	RWLocks(dbIndex int, writeKeys []string, readKeys []string)
	RWUnLocks(dbIndex int, writeKeys []string, readKeys []string)
	GetDBSize(dbIndex int) (int, int)
	// Digest returns a short content digest for key, used by WATCH/EXEC
	// optimistic-concurrency checks; "" if the key is absent.
	Digest(dbIndex int, key string) string
}

// DataEntity wraps any one of the typed values a key can hold: []byte,
// *List.LinkedList, dict.Dict (hash), *set.Set, *SortedSet, or
// *stream.Stream. Type-switching on Data is the teacher's pattern for
// keeping one generic dict.Dict able to store every value kind.
type DataEntity struct {
	Data interface{}
}
