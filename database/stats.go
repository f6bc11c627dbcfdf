package database

import (
	"strconv"
	"strings"

	"go.uber.org/atomic"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// engineStats is gate 10's bookkeeping: per-command call/error counters
// plus the connected-client gauge INFO reports, using go.uber.org/atomic
// rather than a mutex-guarded map since every field here is a flat
// counter incremented from whichever event-loop goroutine currently
// owns this connection — the same dependency the teacher's logger
// package already pulls in for its own atomic level flag.
type engineStats struct {
	connections   atomic.Int64
	totalCommands atomic.Int64
	totalErrors   atomic.Int64
	expiredKeys   atomic.Int64
}

func newEngineStats() *engineStats {
	return &engineStats{}
}

func (s *engineStats) recordConnect() {
	s.connections.Inc()
}

func (s *engineStats) recordDisconnect() {
	s.connections.Dec()
}

func (s *engineStats) recordCommand(result redis.Reply) {
	s.totalCommands.Inc()
	if result != nil && protocol.IsErrorReply(result) {
		s.totalErrors.Inc()
	}
}

func (s *engineStats) recordExpired(n int) {
	if n > 0 {
		s.expiredKeys.Add(int64(n))
	}
}

// statsInfo renders INFO's # Stats and # Clients sections.
func (s *engineStats) statsInfo() string {
	var sb strings.Builder
	sb.WriteString("# Clients\r\n")
	sb.WriteString("connected_clients:" + strconv.FormatInt(s.connections.Load(), 10) + "\r\n")
	sb.WriteString("# Stats\r\n")
	sb.WriteString("total_commands_processed:" + strconv.FormatInt(s.totalCommands.Load(), 10) + "\r\n")
	sb.WriteString("total_error_replies:" + strconv.FormatInt(s.totalErrors.Load(), 10) + "\r\n")
	sb.WriteString("expired_keys:" + strconv.FormatInt(s.expiredKeys.Load(), 10) + "\r\n")
	return sb.String()
}
