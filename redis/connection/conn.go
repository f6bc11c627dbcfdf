// Package connection implements redis.Connection, the per-client state
// the engine reads and mutates while executing commands: subscriptions,
// transaction queue/watch set, selected DB, and now RESP version and
// blocking/cluster one-shot flags the spec's extended contract adds.
package connection

import (
	"net"
	"sync"
	"time"

	"github.com/alsatianco/peadb/lib/logger"
	"github.com/alsatianco/peadb/lib/sync/wait"
)

const (
	flagSlave = uint64(1 << iota)
	flagMaster
	flagMulti
	flagAsking
)

// rawConn is the minimal socket surface Connection needs. net.Conn
// satisfies it directly; the server package wraps a gnet.Conn in a small
// adapter (gnetConn) whose Write goes through AsyncWrite.
type rawConn interface {
	Write(b []byte) (int, error)
	Close() error
	RemoteAddr() net.Addr
}

// Connection represents one client's session state.
type Connection struct {
	conn rawConn

	// sendingData blocks Close until in-flight writes finish.
	sendingData wait.Wait

	mu    sync.Mutex
	flags uint64

	subs     map[string]bool
	patterns map[string]bool

	password string

	queue    [][][]byte
	watching map[string]string
	txErrors []error

	selectedDB int

	respVersion int
	blockedTask string
}

var connPool = sync.Pool{
	New: func() interface{} {
		return &Connection{respVersion: 2}
	},
}

// RemoteAddr returns the client's address string.
func (c *Connection) RemoteAddr() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.RemoteAddr().String()
}

// Close flushes pending writes, resets state, and returns c to the pool.
func (c *Connection) Close() error {
	c.sendingData.WaitWithTimeout(10 * time.Second)
	if c.conn != nil {
		_ = c.conn.Close()
	}
	c.subs = nil
	c.patterns = nil
	c.password = ""
	c.queue = nil
	c.watching = nil
	c.txErrors = nil
	c.selectedDB = 0
	c.respVersion = 2
	c.blockedTask = ""
	c.flags = 0
	connPool.Put(c)
	return nil
}

// NewConn wraps conn in a pooled Connection.
func NewConn(conn rawConn) *Connection {
	c, ok := connPool.Get().(*Connection)
	if !ok {
		logger.Error("connection pool produced unexpected type")
		return &Connection{conn: conn, respVersion: 2}
	}
	c.conn = conn
	return c
}

// NewFakeConn builds a Connection with no backing socket, for AOF/RDB
// replay and command execution that needs a Connection but discards
// output (the teacher's aof.LoadAof called this function without it
// ever having been written).
func NewFakeConn() *Connection {
	return &Connection{respVersion: 2}
}

func (c *Connection) Write(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	if c.conn == nil {
		return len(b), nil
	}
	c.sendingData.Add(1)
	defer c.sendingData.Done()
	return c.conn.Write(b)
}

func (c *Connection) Name() string {
	return c.RemoteAddr()
}

func (c *Connection) Subscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs == nil {
		c.subs = make(map[string]bool)
	}
	c.subs[channel] = true
}

func (c *Connection) UnSubscribe(channel string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.subs) == 0 {
		return
	}
	delete(c.subs, channel)
}

func (c *Connection) SubsCount() int {
	return len(c.subs)
}

func (c *Connection) GetChannels() []string {
	if c.subs == nil {
		return nil
	}
	channels := make([]string, 0, len(c.subs))
	for channel := range c.subs {
		channels = append(channels, channel)
	}
	return channels
}

func (c *Connection) PSubscribe(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.patterns == nil {
		c.patterns = make(map[string]bool)
	}
	c.patterns[pattern] = true
}

func (c *Connection) PUnSubscribe(pattern string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.patterns, pattern)
}

func (c *Connection) GetPatterns() []string {
	if c.patterns == nil {
		return nil
	}
	patterns := make([]string, 0, len(c.patterns))
	for p := range c.patterns {
		patterns = append(patterns, p)
	}
	return patterns
}

func (c *Connection) SetPassword(password string) { c.password = password }
func (c *Connection) GetPassword() string         { return c.password }

func (c *Connection) InMultiState() bool {
	return c.flags&flagMulti > 0
}

func (c *Connection) SetMultiState(state bool) {
	if !state {
		c.watching = nil
		c.queue = nil
		c.txErrors = nil
		c.flags &^= flagMulti
		return
	}
	c.flags |= flagMulti
}

func (c *Connection) GetQueuedCmdLine() [][][]byte { return c.queue }

func (c *Connection) EnqueueCmd(cmdLine [][]byte) {
	c.queue = append(c.queue, cmdLine)
}

func (c *Connection) ClearQueuedCmds() { c.queue = nil }

func (c *Connection) GetTxErrors() []error { return c.txErrors }

func (c *Connection) AddTxError(err error) {
	c.txErrors = append(c.txErrors, err)
}

func (c *Connection) ClearTxState() {
	c.watching = nil
	c.queue = nil
	c.txErrors = nil
	c.flags &^= flagMulti
}

// GetWatching returns key -> digest captured at WATCH time.
func (c *Connection) GetWatching() map[string]string {
	if c.watching == nil {
		c.watching = make(map[string]string)
	}
	return c.watching
}

func (c *Connection) GetDBIndex() int { return c.selectedDB }
func (c *Connection) SelectDB(n int)  { c.selectedDB = n }

func (c *Connection) SetSlave()     { c.flags |= flagSlave }
func (c *Connection) IsSlave() bool { return c.flags&flagSlave > 0 }

func (c *Connection) SetMaster()     { c.flags |= flagMaster }
func (c *Connection) IsMaster() bool { return c.flags&flagMaster > 0 }

func (c *Connection) RESPVersion() int { return c.respVersion }
func (c *Connection) SetRESPVersion(v int) {
	if v != 2 && v != 3 {
		return
	}
	c.respVersion = v
}

func (c *Connection) SetBlockedTask(key string) { c.blockedTask = key }
func (c *Connection) BlockedTask() string       { return c.blockedTask }

func (c *Connection) SetAsking(v bool) {
	if v {
		c.flags |= flagAsking
	} else {
		c.flags &^= flagAsking
	}
}
func (c *Connection) IsAsking() bool { return c.flags&flagAsking > 0 }
