// Package server wires the keyspace Engine to a gnet event loop, the
// same react/onOpen split the teacher's network package prototyped
// (github.com/panjf2000/gnet, one goroutine per event-loop shard
// instead of one goroutine per connection), generalized to run the
// actual RESP protocol instead of a fixed PONG stub.
package server

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/panjf2000/gnet"

	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/database"
	dbiface "github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/lib/logger"
)

// Server is the gnet.EventHandler driving the whole instance: every
// accepted connection gets a *session parking its unparsed bytes and
// its *connection.Connection, and every command line that finishes
// parsing is executed against the shared Engine.
type Server struct {
	gnet.EventServer
	engine       dbiface.DBEngine
	activeExpire time.Duration
}

// New builds a Server around engine, ready to pass to gnet.Serve.
func New(engine dbiface.DBEngine) *Server {
	return &Server{engine: engine, activeExpire: 100 * time.Millisecond}
}

func (s *Server) OnInitComplete(srv gnet.Server) gnet.Action {
	raiseFileLimit(config.Properties.MaxClients)
	logger.Info(fmt.Sprintf("peadb listening on %s, multicore=%v", srv.Addr.String(), srv.Multicore))
	return gnet.None
}

func (s *Server) OnOpened(c gnet.Conn) (out []byte, action gnet.Action) {
	sess := newSession(c)
	c.SetContext(sess)
	s.engine.AfterClientConnect(sess.conn)
	return nil, gnet.None
}

func (s *Server) OnClosed(c gnet.Conn, err error) (action gnet.Action) {
	if sess, ok := c.Context().(*session); ok {
		s.engine.AfterClientClose(sess.conn)
	}
	return gnet.None
}

// Tick drives the active-expire cycle, the periodic bounded TTL sweep
// that replaces the teacher's per-key timewheel task.
func (s *Server) Tick() (delay time.Duration, action gnet.Action) {
	if eng, ok := s.engine.(*database.Engine); ok {
		eng.ActiveExpireCycle()
		eng.ReplicationTick()
	}
	return s.activeExpire, gnet.None
}

func (s *Server) React(frame []byte, c gnet.Conn) (out []byte, action gnet.Action) {
	sess, ok := c.Context().(*session)
	if !ok {
		return nil, gnet.Close
	}
	defer func() {
		if r := recover(); r != nil {
			logger.Error(fmt.Sprintf("panic handling connection %s: %v\n%s", sess.conn.RemoteAddr(), r, debug.Stack()))
		}
	}()

	sess.feed(frame)
	reply := sess.drain(s.engine)
	if len(reply) > 0 {
		_ = c.AsyncWrite(reply)
	}
	if sess.shouldClose {
		return nil, gnet.Close
	}
	return nil, gnet.None
}

// ListenAndServe starts the event loop on cfg.Bind:cfg.Port, blocking
// until the process receives a termination signal or gnet.Serve fails.
func ListenAndServe(engine dbiface.DBEngine, cfg *config.ServerProperties) error {
	addr := fmt.Sprintf("tcp://%s:%d", cfg.Bind, cfg.Port)
	srv := New(engine)
	// Multicore off: peadb pins itself to exactly one event-loop goroutine
	// so MULTI/EXEC, scripting, and the replication journal never need
	// their own locking against concurrent command dispatch.
	return gnet.Serve(srv, addr, gnet.WithMulticore(false), gnet.WithTicker(true))
}
