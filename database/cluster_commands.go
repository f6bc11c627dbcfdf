package database

import (
	"strconv"
	"strings"
	"time"

	"github.com/alsatianco/peadb/cluster"
	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/rdb"
	"github.com/alsatianco/peadb/redis/protocol"
)

// checkSlotRoute is gate 8 of the dispatcher: every command with a first
// key gets its slot checked against this node's router before executing.
// A non-cluster-enabled node's router owns every slot, so this is a
// no-op there — only relevant once CLUSTER SETSLOT has marked a slot
// Moved or Ask.
func (e *Engine) checkSlotRoute(c redis.Connection, cmdName string, args [][]byte) redis.Reply {
	key, ok := firstKey(cmdName, args)
	if !ok {
		return nil
	}
	slot := cluster.Keyslot(key)
	state, addr := e.router.Route(slot)
	switch state {
	case cluster.Moved:
		return protocol.MakeMovedErrReply(slot, addr)
	case cluster.Ask:
		if c != nil && c.IsAsking() {
			c.SetAsking(false)
			return nil
		}
		return protocol.MakeAskErrReply(slot, addr)
	default:
		return nil
	}
}

func execDump(db *DB, args [][]byte) redis.Reply {
	entity, ok := db.GetEntity(string(args[0]))
	if !ok {
		return protocol.MakeNullBulkReply()
	}
	data, err := rdb.Dump(entity.Data)
	if err != nil {
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	return protocol.MakeBulkReply(data)
}

func execRestore(db *DB, args [][]byte) redis.Reply {
	if len(args) < 3 {
		return protocol.MakeArgNumErrReply("restore")
	}
	key := string(args[0])
	ttlMs, err := strconv.ParseInt(string(args[1]), 10, 64)
	if err != nil || ttlMs < 0 {
		return protocol.MakeErrReply("ERR Invalid TTL value, must be >= 0")
	}
	replace, absTTL := false, false
	for _, a := range args[3:] {
		if strings.EqualFold(string(a), "REPLACE") {
			replace = true
		} else if strings.EqualFold(string(a), "ABSTTL") {
			absTTL = true
		}
	}
	if _, exists := db.GetEntity(key); exists && !replace {
		return protocol.MakeBusyKeyErrReply()
	}
	value, decodeErr := rdb.Restore(args[2])
	if decodeErr != nil {
		return protocol.MakeErrReply(decodeErr.Error())
	}
	db.PutEntity(key, &database.DataEntity{Data: value})
	if ttlMs > 0 && absTTL {
		db.Expire(key, time.UnixMilli(ttlMs))
	} else if ttlMs > 0 {
		db.Expire(key, time.Now().Add(time.Duration(ttlMs)*time.Millisecond))
	} else {
		db.Persist(key)
	}
	return protocol.MakeOkReply()
}

func restoreFirstKey(args [][]byte) ([]string, []string) {
	if len(args) == 0 {
		return nil, nil
	}
	return []string{string(args[0])}, nil
}

func init() {
	RegisterCommand("dump", execDump, readFirstKey, nil, 2, flagReadOnly)
	RegisterCommand("restore", execRestore, restoreFirstKey, nil, -4, flagWrite)
}

// execMigrate implements MIGRATE host port key destination-db timeout
// [COPY] [REPLACE]: dump the key locally, RESTORE it onto the peer over
// a synchronous connection, then remove the local copy unless COPY was
// given. No cluster-wide migration protocol — one key, one connection.
func (e *Engine) execMigrate(c redis.Connection, args [][]byte) redis.Reply {
	if len(args) < 5 {
		return protocol.MakeArgNumErrReply("migrate")
	}
	host, port, key := string(args[0]), string(args[1]), string(args[2])
	timeoutMs, err := strconv.Atoi(string(args[4]))
	if err != nil || timeoutMs < 0 {
		return protocol.MakeErrReply("ERR timeout is not an integer or out of range")
	}
	copyMode, replace := false, false
	for _, a := range args[5:] {
		switch strings.ToUpper(string(a)) {
		case "COPY":
			copyMode = true
		case "REPLACE":
			replace = true
		}
	}

	db, errReply := e.selectDB(c.GetDBIndex())
	if errReply != nil {
		return errReply
	}
	entity, ok := db.GetEntity(key)
	if !ok {
		return protocol.MakeStatusReply("NOKEY")
	}
	dumped, err := rdb.Dump(entity.Data)
	if err != nil {
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	var ttlMs int64
	if expireAt, hasTTL := db.TTL(key); hasTTL {
		ttlMs = int64(time.Until(expireAt) / time.Millisecond)
		if ttlMs < 0 {
			ttlMs = 0
		}
	}

	timeout := time.Duration(timeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = time.Second
	}
	if err := cluster.MigrateKey(host+":"+port, timeout, key, ttlMs, dumped, replace); err != nil {
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	if !copyMode {
		db.Remove(key)
	}
	return protocol.MakeOkReply()
}

// execCluster implements the minimal CLUSTER surface spec.md §4.6 names:
// KEYSLOT, and SETSLOT's NODE/MIGRATING/IMPORTING/STABLE forms. A node's
// own address/id comes from config.Properties.Self; any other SETSLOT
// NODE target is treated as a bare "host:port" redirect address rather
// than a separately resolved node id, since this layer keeps no
// node-id-to-address directory beyond that one self-identifier.
func (e *Engine) execCluster(args [][]byte) redis.Reply {
	if len(args) == 0 {
		return protocol.MakeArgNumErrReply("cluster")
	}
	switch strings.ToUpper(string(args[0])) {
	case "KEYSLOT":
		if len(args) != 2 {
			return protocol.MakeArgNumErrReply("cluster|keyslot")
		}
		return protocol.MakeIntReply(int64(cluster.Keyslot(string(args[1]))))
	case "SETSLOT":
		if len(args) < 3 {
			return protocol.MakeArgNumErrReply("cluster|setslot")
		}
		slot, err := strconv.Atoi(string(args[1]))
		if err != nil || slot < 0 || slot >= cluster.SlotCount {
			return protocol.MakeErrReply("ERR Invalid slot")
		}
		switch strings.ToUpper(string(args[2])) {
		case "NODE":
			if len(args) != 4 {
				return protocol.MakeArgNumErrReply("cluster|setslot")
			}
			target := string(args[3])
			if target == "self" || target == config.Properties.Self {
				e.router.SetNode(slot, "")
			} else {
				e.router.SetNode(slot, target)
			}
			return protocol.MakeOkReply()
		case "MIGRATING":
			if len(args) != 4 {
				return protocol.MakeArgNumErrReply("cluster|setslot")
			}
			e.router.SetMigrating(slot, string(args[3]))
			return protocol.MakeOkReply()
		case "IMPORTING":
			e.router.SetImporting(slot)
			return protocol.MakeOkReply()
		case "STABLE":
			e.router.SetStable(slot)
			return protocol.MakeOkReply()
		default:
			return protocol.MakeErrReply("ERR Unknown CLUSTER SETSLOT subcommand")
		}
	case "INFO":
		return protocol.MakeBulkReply([]byte("cluster_enabled:" + boolFlag(config.Properties.ClusterEnabled == "yes") +
			"\r\ncluster_known_nodes:" + strconv.Itoa(len(config.Properties.Peers)+1) + "\r\n"))
	default:
		return protocol.MakeErrReply("ERR Unknown CLUSTER subcommand")
	}
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
