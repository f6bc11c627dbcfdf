// Package replication holds the in-memory replication journal, the
// SYNC/PSYNC session bookkeeping built on it, and the REPLICAOF-driven
// client that replays a master's stream into this node's dispatcher.
// No repo in the pack implements Redis replication; the journal shape
// is grounded directly on spec.md's §4.5 contract, and the PSYNC
// handshake on qinran6271-codecrafters-redis-go's replication.go.
package replication

import (
	"strconv"
	"sync"

	"github.com/alsatianco/peadb/redis/protocol"
)

// Event is one journaled command together with the db index it targets.
type Event struct {
	DB      int
	CmdLine [][]byte
}

// Journal is the single growing, in-memory sequence of RESP-encoded
// write commands in global commit order that spec.md §4.5 describes.
// Sessions that have entered replica-stream mode hold a Cursor into it.
type Journal struct {
	mu     sync.Mutex
	events []Event
	lastDB int
	offset int64
	replID string
}

func NewJournal(replID string) *Journal {
	return &Journal{lastDB: -1, replID: replID}
}

// Append records cmdLine against dbIndex, inserting a SELECT marker
// first when dbIndex differs from the last-journaled db, and advances
// master_repl_offset by the RESP-encoded size of what was appended.
func (j *Journal) Append(dbIndex int, cmdLine [][]byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if dbIndex != j.lastDB {
		sel := [][]byte{[]byte("SELECT"), []byte(strconv.Itoa(dbIndex))}
		j.events = append(j.events, Event{DB: dbIndex, CmdLine: sel})
		j.offset += int64(len(protocol.MakeMultiBulkReply(sel).ToBytes()))
		j.lastDB = dbIndex
	}
	j.events = append(j.events, Event{DB: dbIndex, CmdLine: cmdLine})
	j.offset += int64(len(protocol.MakeMultiBulkReply(cmdLine).ToBytes()))
}

func (j *Journal) Offset() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.offset
}

func (j *Journal) ReplID() string {
	return j.replID
}

// NewCursor returns a cursor positioned at the journal's current tail,
// the starting point for a freshly full-resynced replica session.
func (j *Journal) NewCursor() *Cursor {
	j.mu.Lock()
	defer j.mu.Unlock()
	return &Cursor{j: j, next: len(j.events)}
}

// Cursor tracks one replica-stream session's position in the journal.
// Drain is non-blocking: the server loop polls it once per tick (spec.md
// §4.7 step 4) rather than parking a goroutine per replica.
type Cursor struct {
	j    *Journal
	next int
}

func (c *Cursor) Drain() []Event {
	c.j.mu.Lock()
	defer c.j.mu.Unlock()
	if c.next >= len(c.j.events) {
		return nil
	}
	out := append([]Event(nil), c.j.events[c.next:]...)
	c.next = len(c.j.events)
	return out
}
