package database

import (
	"testing"

	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/connection"
	"github.com/alsatianco/peadb/redis/protocol"
)

func withMaxmemory(t *testing.T, value string) {
	t.Helper()
	old := config.Properties.Maxmemory
	config.Properties.Maxmemory = value
	t.Cleanup(func() { config.Properties.Maxmemory = old })
}

func withMinReplicas(t *testing.T, value int) {
	t.Helper()
	old := config.Properties.MinReplicasToWrite
	config.Properties.MinReplicasToWrite = value
	t.Cleanup(func() { config.Properties.MinReplicasToWrite = old })
}

func TestCheckOOMIgnoresReadCommands(t *testing.T) {
	withMaxmemory(t, "1b")
	e := &Engine{}
	if reply := e.checkOOM("get"); reply != nil {
		t.Errorf("checkOOM(get) = %v, want nil (reads are never gated)", reply)
	}
}

func TestCheckOOMUnsetLimitNeverGates(t *testing.T) {
	withMaxmemory(t, "")
	e := &Engine{}
	if reply := e.checkOOM("set"); reply != nil {
		t.Errorf("checkOOM with no maxmemory configured = %v, want nil", reply)
	}
}

func TestCheckOOMRejectsWriteOverLimit(t *testing.T) {
	withMaxmemory(t, "1b")
	e := &Engine{}
	reply := e.checkOOM("set")
	if reply == nil || !protocol.IsErrorReply(reply) {
		t.Fatalf("checkOOM(set) over a 1-byte limit = %v, want an OOM error", reply)
	}
}

func TestCheckMinReplicasRejectsWriteWhenUnmet(t *testing.T) {
	withMinReplicas(t, 1)
	e := &Engine{replicas: map[redis.Connection]*replicaSession{}}
	reply := e.checkMinReplicas("set")
	if reply == nil || !protocol.IsErrorReply(reply) {
		t.Fatalf("checkMinReplicas(set) with 0/1 replicas connected = %v, want a NOREPLICAS error", reply)
	}
}

func TestCheckMinReplicasPassesWhenSatisfied(t *testing.T) {
	withMinReplicas(t, 1)
	e := &Engine{replicas: map[redis.Connection]*replicaSession{
		connection.NewFakeConn(): {},
	}}
	if reply := e.checkMinReplicas("set"); reply != nil {
		t.Errorf("checkMinReplicas(set) with enough replicas connected = %v, want nil", reply)
	}
}

func TestCheckReplicaRoleRejectsClientWrites(t *testing.T) {
	e := &Engine{replicaOf: &replicaLink{host: "10.0.0.1", port: 6379}}
	reply := e.checkReplicaRole(connection.NewFakeConn(), "set")
	if reply == nil || !protocol.IsErrorReply(reply) {
		t.Fatalf("checkReplicaRole(set) on a replica node = %v, want a READONLY error", reply)
	}
}

func TestCheckReplicaRoleAllowsMasterLinkWrites(t *testing.T) {
	e := &Engine{replicaOf: &replicaLink{host: "10.0.0.1", port: 6379}}
	masterConn := connection.NewFakeConn()
	masterConn.SetMaster()
	if reply := e.checkReplicaRole(masterConn, "set"); reply != nil {
		t.Errorf("checkReplicaRole(set) from the master link = %v, want nil", reply)
	}
}

func TestCheckReplicaRoleAllowsWritesWhenNotAReplica(t *testing.T) {
	e := &Engine{}
	if reply := e.checkReplicaRole(connection.NewFakeConn(), "set"); reply != nil {
		t.Errorf("checkReplicaRole(set) on a master node = %v, want nil", reply)
	}
}
