package cluster

import (
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/alsatianco/peadb/redis/parser"
	"github.com/alsatianco/peadb/redis/protocol"
)

// MigrateKey dials addr and sends RESTORE key ttlMs dumped [REPLACE],
// waiting for the peer's reply — the one piece of real network I/O this
// package performs, and the whole of MIGRATE's data movement: one
// synchronous client connection per key, no cluster-wide migration
// protocol.
func MigrateKey(addr string, timeout time.Duration, key string, ttlMs int64, dumped []byte, replace bool) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return err
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	cmdLine := [][]byte{[]byte("RESTORE"), []byte(key), []byte(strconv.FormatInt(ttlMs, 10)), dumped}
	if replace {
		cmdLine = append(cmdLine, []byte("REPLACE"))
	}
	if _, err := conn.Write(protocol.MakeMultiBulkReply(cmdLine).ToBytes()); err != nil {
		return err
	}

	ch := parser.ParseStream(conn)
	payload := <-ch
	if payload == nil {
		return errors.New("ERR peer closed connection during MIGRATE")
	}
	if payload.Err != nil {
		return payload.Err
	}
	if protocol.IsErrorReply(payload.Data) {
		return errors.New(payload.Data.(error).Error())
	}
	return nil
}
