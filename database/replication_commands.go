package database

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/lib/logger"
	"github.com/alsatianco/peadb/rdb"
	"github.com/alsatianco/peadb/redis/connection"
	"github.com/alsatianco/peadb/redis/protocol"
	"github.com/alsatianco/peadb/replication"
)

// replicaSession is one connected replica's position in this node's
// journal, registered on SYNC/PSYNC and drained once per server tick
// (Engine.ReplicationTick, called from the gnet loop's Tick handler).
type replicaSession struct {
	conn      redis.Connection
	cursor    *replication.Cursor
	ackOffset int64
}

// replicaLink is the client side of this node being a replica of
// another node: the goroutine running the PSYNC handshake and replay
// loop, started by REPLICAOF and stopped by REPLICAOF NO ONE.
type replicaLink struct {
	client *replication.Client
	host   string
	port   int

	// synced reports whether the full-resync snapshot has been applied;
	// checkStaleReplica uses this as the MASTERDOWN gate's link-health
	// signal while it is false.
	synced atomic.Bool
}

func (e *Engine) execSync(c redis.Connection) redis.Reply {
	return e.beginFullResync(c, false)
}

func (e *Engine) execPsync(c redis.Connection, args [][]byte) redis.Reply {
	return e.beginFullResync(c, true)
}

// beginFullResync answers every SYNC/PSYNC with a full resync: the
// snapshot payload is this node's own RESTORE-command envelope (the same
// one MIGRATE and DUMP/RESTORE use), not a byte-compatible RDB file —
// both ends of a peadb replication link understand it, which is all that
// is required. Partial resync (picking up an existing replica from a
// cached backlog) is out of scope: the journal is purely in-memory and
// carries no backlog across a restart to resume from.
func (e *Engine) beginFullResync(c redis.Connection, withStatusLine bool) redis.Reply {
	lines := e.snapshotCmdLines()
	var payload []byte
	for _, l := range lines {
		payload = append(payload, protocol.MakeMultiBulkReply(l).ToBytes()...)
	}

	cursor := e.journal.NewCursor()
	c.SetSlave()
	e.replMu.Lock()
	e.replicas[c] = &replicaSession{conn: c, cursor: cursor}
	e.replMu.Unlock()

	var out []byte
	if withStatusLine {
		status := "FULLRESYNC " + e.journal.ReplID() + " " + strconv.FormatInt(e.journal.Offset(), 10)
		out = append(out, protocol.MakeStatusReply(status).ToBytes()...)
	}
	out = append(out, protocol.MakeBulkReply(payload).ToBytes()...)
	return protocol.MakeRawReply(out)
}

// snapshotCmdLines flattens every db's current keyspace into a
// SELECT/RESTORE command sequence, the full-resync payload's contents.
func (e *Engine) snapshotCmdLines() []CmdLine {
	var lines []CmdLine
	for i, db := range e.dbSet {
		keys, _ := db.Size()
		if keys == 0 {
			continue
		}
		lines = append(lines, CmdLine{[]byte("SELECT"), []byte(strconv.Itoa(i))})
		db.ForEach(func(key string, data *database.DataEntity, expiration *time.Time) bool {
			dumped, err := rdb.Dump(data.Data)
			if err != nil {
				return true
			}
			var ttlMs int64
			if expiration != nil {
				ttlMs = int64(time.Until(*expiration) / time.Millisecond)
				if ttlMs <= 0 {
					ttlMs = 1
				}
			}
			lines = append(lines, CmdLine{
				[]byte("RESTORE"), []byte(key), []byte(strconv.FormatInt(ttlMs, 10)), dumped, []byte("REPLACE"),
			})
			return true
		})
	}
	return lines
}

// execReplConf handles the handshake and heartbeat subcommands a
// connected replica sends: LISTENING-PORT/CAPA during the handshake
// (answered +OK) and ACK <offset> once streaming (recorded against that
// connection's replicaSession, answered with no reply at all, matching
// real Redis — the replica doesn't wait for one).
func (e *Engine) execReplConf(c redis.Connection, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("replconf")
	}
	switch strings.ToUpper(string(args[0])) {
	case "ACK":
		offset, err := strconv.ParseInt(string(args[1]), 10, 64)
		if err == nil {
			e.replMu.Lock()
			if sess, ok := e.replicas[c]; ok {
				sess.ackOffset = offset
			}
			e.replMu.Unlock()
		}
		return &protocol.NoReply{}
	case "GETACK":
		return &protocol.NoReply{}
	default:
		return protocol.MakeOkReply()
	}
}

// execReplicaOf implements REPLICAOF/SLAVEOF host port, and the
// NO ONE form that stops an active replica link. Real Redis runs this
// through an external helper script; spec.md explicitly invites a native
// PSYNC client instead, started on its own goroutine per spec.md §5's
// allowance for an off-loop replica-of bootstrap.
func (e *Engine) execReplicaOf(args [][]byte) redis.Reply {
	if len(args) != 2 {
		return protocol.MakeArgNumErrReply("replicaof")
	}
	if strings.EqualFold(string(args[0]), "no") && strings.EqualFold(string(args[1]), "one") {
		e.stopReplicaLink()
		return protocol.MakeOkReply()
	}
	host := string(args[0])
	port, err := strconv.Atoi(string(args[1]))
	if err != nil {
		return protocol.MakeErrReply("ERR Invalid master port")
	}
	e.startReplicaLink(host, port)
	return protocol.MakeOkReply()
}

// ReplicaOf starts a replication link to host:port, the programmatic
// form of REPLICAOF used to honor a --replicaof startup flag before any
// client connection exists to issue the command interactively.
func (e *Engine) ReplicaOf(host string, port int) {
	e.startReplicaLink(host, port)
}

func (e *Engine) startReplicaLink(host string, port int) {
	e.stopReplicaLink()

	listeningPort := config.Properties.Port
	fakeConn := connection.NewFakeConn()
	fakeConn.SetMaster()
	link := &replicaLink{host: host, port: port}
	client := replication.NewClient(host+":"+strconv.Itoa(port), listeningPort, func(cmdLine [][]byte) {
		e.Exec(fakeConn, cmdLine)
	})
	client.OnSynced = func() { link.synced.Store(true) }
	link.client = client
	e.replMu.Lock()
	e.replicaOf = link
	e.replMu.Unlock()

	go func() {
		if err := client.Run(); err != nil {
			logger.Warn("replication link to " + host + ":" + strconv.Itoa(port) + " ended: " + err.Error())
		}
		link.synced.Store(false)
	}()
}

func (e *Engine) stopReplicaLink() {
	e.replMu.Lock()
	link := e.replicaOf
	e.replicaOf = nil
	e.replMu.Unlock()
	if link != nil {
		link.client.Stop()
	}
}

// execWait implements WAIT numreplicas timeout: a bounded busy loop
// polling connected replicas' ack_offset against the journal's current
// offset, 10 ms per spec.md §5 (deliberately blocking the loop thread —
// WAIT is rare and semantically requires this).
func (e *Engine) execWait(args [][]byte) redis.Reply {
	if len(args) != 2 {
		return protocol.MakeArgNumErrReply("wait")
	}
	numReplicas, err := strconv.Atoi(string(args[0]))
	if err != nil {
		return protocol.MakeErrReply("ERR value is not an integer or out of range")
	}
	timeoutMs, err := strconv.Atoi(string(args[1]))
	if err != nil || timeoutMs < 0 {
		return protocol.MakeErrReply("ERR timeout is not an integer or out of range")
	}
	target := e.journal.Offset()
	deadline := time.Now().Add(time.Duration(timeoutMs) * time.Millisecond)
	for {
		acked := e.countAcked(target)
		if acked >= numReplicas || (timeoutMs > 0 && time.Now().After(deadline)) {
			return protocol.MakeIntReply(int64(acked))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (e *Engine) countAcked(offset int64) int {
	e.replMu.Lock()
	defer e.replMu.Unlock()
	count := 0
	for _, sess := range e.replicas {
		if sess.ackOffset >= offset {
			count++
		}
	}
	return count
}

// ReplicationTick drains every connected replica's cursor and streams
// whatever is new, called once per server tick alongside ActiveExpireCycle
// (spec.md §4.7 step 4's "stream replication events for replica-stream
// sessions").
func (e *Engine) ReplicationTick() {
	e.replMu.Lock()
	sessions := make([]*replicaSession, 0, len(e.replicas))
	for _, sess := range e.replicas {
		sessions = append(sessions, sess)
	}
	e.replMu.Unlock()

	for _, sess := range sessions {
		events := sess.cursor.Drain()
		if len(events) == 0 {
			continue
		}
		var buf []byte
		for _, ev := range events {
			buf = append(buf, protocol.MakeMultiBulkReply(ev.CmdLine).ToBytes()...)
		}
		if _, err := sess.conn.Write(buf); err != nil {
			e.removeReplica(sess.conn)
		}
	}
}

func (e *Engine) removeReplica(c redis.Connection) {
	e.replMu.Lock()
	delete(e.replicas, c)
	e.replMu.Unlock()
}

// replicationInfo renders INFO's # Replication section, the same two
// shapes the teacher's GetReplicationInfo produced (role:master with
// replid/offset, role:slave with master_host/master_port) generalized
// to peadb's journal-backed offset and connected-replica count.
func (e *Engine) replicationInfo() string {
	e.replMu.Lock()
	link := e.replicaOf
	replicaCount := len(e.replicas)
	e.replMu.Unlock()

	var sb strings.Builder
	sb.WriteString("# Replication\r\n")
	if link != nil {
		sb.WriteString("role:slave\r\n")
		sb.WriteString("master_host:" + link.host + "\r\n")
		sb.WriteString("master_port:" + strconv.Itoa(link.port) + "\r\n")
	} else {
		sb.WriteString("role:master\r\n")
	}
	sb.WriteString("connected_slaves:" + strconv.Itoa(replicaCount) + "\r\n")
	sb.WriteString("master_replid:" + e.journal.ReplID() + "\r\n")
	sb.WriteString("master_repl_offset:" + strconv.FormatInt(e.journal.Offset(), 10) + "\r\n")
	return sb.String()
}
