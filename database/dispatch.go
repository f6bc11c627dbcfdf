package database

import (
	"runtime"
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// isWriteCommand reports whether name is registered with flagWrite, the
// predicate gates 5/6/7 below all share: none of them have anything to
// say about a read.
func isWriteCommand(name string) bool {
	cmd, ok := cmdTable[strings.ToLower(name)]
	return ok && cmd.flags&flagWrite > 0
}

// checkOOM is dispatcher gate 5: maxmemory enforcement. No repo in the
// pack carries a memory accounting library, and peadb's own heap is the
// only thing maxmemory could plausibly bound, so this reads
// runtime.MemStats directly rather than reaching for an ecosystem
// package that would have nothing peadb-specific to measure.
func (e *Engine) checkOOM(cmdName string) redis.Reply {
	if !isWriteCommand(cmdName) {
		return nil
	}
	limit, ok := parseMaxmemory(config.Properties.Maxmemory)
	if !ok || limit <= 0 {
		return nil
	}
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	if int64(mem.Alloc) < limit {
		return nil
	}
	return protocol.MakeErrReply("OOM command not allowed when used memory > 'maxmemory'")
}

// parseMaxmemory reads a redis.conf-style size ("100mb", "1gb", "512",
// case-insensitive, optional "b" suffix) into bytes.
func parseMaxmemory(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" || s == "0" {
		return 0, false
	}
	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "gb"):
		mult = 1 << 30
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "mb"):
		mult = 1 << 20
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "kb"):
		mult = 1 << 10
		s = s[:len(s)-2]
	case strings.HasSuffix(s, "b"):
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, false
	}
	return n * mult, true
}

// checkMinReplicas is dispatcher gate 6: refuse a write if fewer than
// min-replicas-to-write replicas are connected, the same contract
// real Redis's min-replicas-to-write/min-replicas-max-lag pair
// enforces (simplified here to a connection count, since WAIT already
// covers the ack-offset half of that contract for callers who need it).
func (e *Engine) checkMinReplicas(cmdName string) redis.Reply {
	if !isWriteCommand(cmdName) {
		return nil
	}
	if config.Properties.MinReplicasToWrite <= 0 {
		return nil
	}
	e.replMu.Lock()
	connected := len(e.replicas)
	e.replMu.Unlock()
	if connected >= config.Properties.MinReplicasToWrite {
		return nil
	}
	return protocol.MakeErrReply("NOREPLICAS Not enough good replicas to write")
}

// checkReplicaRole is dispatcher gate 7: a node currently replicating
// from a master refuses client writes of its own (they would just be
// overwritten by the next replicated command and silently diverge the
// two nodes). Writes arriving over the replication link itself are
// exempt — they come in tagged via the fake connection
// startReplicaLink marks with SetMaster, the one thing flagMaster on
// redis/connection.Connection actually gets used for.
func (e *Engine) checkReplicaRole(c redis.Connection, cmdName string) redis.Reply {
	if !isWriteCommand(cmdName) {
		return nil
	}
	e.replMu.Lock()
	isReplica := e.replicaOf != nil
	e.replMu.Unlock()
	if !isReplica {
		return nil
	}
	if c != nil && c.IsMaster() {
		return nil
	}
	return protocol.MakeErrReply("READONLY You can't write against a read only replica.")
}

// staleReplicaAllowList is the set of commands checkStaleReplica still
// lets through while a replica's link to its master is down: the
// handshake-recovery and introspection commands a client needs in order
// to fix or inspect the link in the first place.
var staleReplicaAllowList = map[string]bool{
	"replicaof": true,
	"slaveof":   true,
	"info":      true,
	"multi":     true,
	"exec":      true,
	"discard":   true,
	"command":   true,
	"config":    true,
}

// checkStaleReplica is the other half of dispatcher gate 7: a replica
// configured with replica-serve-stale-data=no refuses reads too once its
// master link hasn't completed a full resync (never connected, or the
// connection dropped and hasn't come back).
func (e *Engine) checkStaleReplica(c redis.Connection, cmdName string) redis.Reply {
	if c != nil && c.IsMaster() {
		return nil
	}
	if !strings.EqualFold(config.Properties.ReplicaServeStaleData, "no") {
		return nil
	}
	e.replMu.Lock()
	link := e.replicaOf
	e.replMu.Unlock()
	if link == nil || link.synced.Load() {
		return nil
	}
	if staleReplicaAllowList[cmdName] {
		return nil
	}
	return protocol.MakeMasterDownErrReply()
}
