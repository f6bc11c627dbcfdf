package server

import (
	"net"
	"strings"

	"github.com/panjf2000/gnet"
	"github.com/valyala/bytebufferpool"

	dbiface "github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/redis/connection"
	"github.com/alsatianco/peadb/redis/parser"
	"github.com/alsatianco/peadb/redis/protocol"
)

// gnetConn adapts a gnet.Conn to redis/connection's rawConn interface.
// Writes from outside the connection's own event-loop goroutine (pub/sub
// fan-out, most notably) must go through AsyncWrite, which is the only
// gnet write primitive safe to call cross-goroutine.
type gnetConn struct {
	c gnet.Conn
}

func (g gnetConn) Write(b []byte) (int, error) {
	if err := g.c.AsyncWrite(b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (g gnetConn) Close() error {
	return g.c.Close()
}

func (g gnetConn) RemoteAddr() net.Addr {
	return g.c.RemoteAddr()
}

// session holds one connection's unparsed bytes between React calls —
// gnet hands over whatever arrived since the last call, which may be a
// partial RESP frame, several frames, or a frame split across calls.
type session struct {
	conn        *connection.Connection
	pending     *bytebufferpool.ByteBuffer
	shouldClose bool
}

func newSession(c gnet.Conn) *session {
	return &session{
		conn:    connection.NewConn(gnetConn{c: c}),
		pending: &bytebufferpool.ByteBuffer{},
	}
}

func (s *session) feed(frame []byte) {
	_, _ = s.pending.Write(frame)
}

// drain parses and executes every complete command line currently
// buffered, returning the concatenated wire bytes of their replies.
func (s *session) drain(engine dbiface.DBEngine) []byte {
	var out []byte
	buf := s.pending.Bytes()
	offset := 0
	for {
		args, consumed, err := parser.ParseFrame(buf[offset:])
		if err == parser.ErrIncomplete {
			break
		}
		if err != nil {
			out = append(out, protocol.MakeProtocolErrReply(err.Error()).ToBytes()...)
			s.shouldClose = true
			break
		}
		offset += consumed
		if len(args) == 0 {
			continue
		}
		if strings.EqualFold(string(args[0]), "quit") {
			out = append(out, protocol.MakeOkReply().ToBytes()...)
			s.shouldClose = true
			break
		}
		reply := engine.Exec(s.conn, args)
		out = append(out, reply.ToBytes()...)
	}
	remaining := append([]byte{}, buf[offset:]...)
	s.pending.Reset()
	_, _ = s.pending.Write(remaining)
	return out
}
