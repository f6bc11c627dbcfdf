package replication

import (
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/parser"
	"github.com/alsatianco/peadb/redis/protocol"
)

var errStopped = errors.New("replication: client stopped")

// Client runs the replica side of one PSYNC session against a master:
// the handshake grounded on qinran6271-codecrafters-redis-go's
// replication.go (PING, REPLCONF listening-port, REPLCONF capa psync2,
// PSYNC ? -1), then a full-resync snapshot followed by the live command
// stream, each line handed to Apply.
type Client struct {
	Addr          string
	ListeningPort int
	Apply         func(cmdLine [][]byte)

	// OnSynced, if set, fires once the full-resync snapshot has been
	// applied and the client is about to enter the live command stream.
	OnSynced func()

	stop chan struct{}
}

func NewClient(addr string, listeningPort int, apply func([][]byte)) *Client {
	return &Client{Addr: addr, ListeningPort: listeningPort, Apply: apply, stop: make(chan struct{})}
}

// Stop ends the Run loop at its next read; Run returns errStopped.
func (c *Client) Stop() {
	close(c.stop)
}

// Run blocks performing the handshake and then the replay loop. Callers
// start it on its own goroutine — the one other off-loop actor besides
// BGSAVE and MIGRATE spec.md §5 allows.
func (c *Client) Run() error {
	conn, err := net.DialTimeout("tcp", c.Addr, 5*time.Second)
	if err != nil {
		return err
	}
	defer conn.Close()

	send := func(args ...string) error {
		cmdLine := make([][]byte, len(args))
		for i, a := range args {
			cmdLine[i] = []byte(a)
		}
		_, err := conn.Write(protocol.MakeMultiBulkReply(cmdLine).ToBytes())
		return err
	}

	stream := parser.ParseStream(conn)
	next := func() (redis.Reply, error) {
		select {
		case p, ok := <-stream:
			if !ok || p == nil {
				return nil, io.ErrUnexpectedEOF
			}
			if p.Err != nil {
				return nil, p.Err
			}
			return p.Data, nil
		case <-c.stop:
			return nil, errStopped
		}
	}

	if err := send("PING"); err != nil {
		return err
	}
	if _, err := next(); err != nil {
		return err
	}

	if err := send("REPLCONF", "listening-port", strconv.Itoa(c.ListeningPort)); err != nil {
		return err
	}
	if _, err := next(); err != nil {
		return err
	}

	if err := send("REPLCONF", "capa", "psync2"); err != nil {
		return err
	}
	if _, err := next(); err != nil {
		return err
	}

	if err := send("PSYNC", "?", "-1"); err != nil {
		return err
	}
	fullResync, err := next()
	if err != nil {
		return err
	}
	if status, ok := fullResync.(*protocol.StatusReply); !ok || len(status.Status) < 10 || status.Status[:10] != "FULLRESYNC" {
		return errors.New("replication: master did not reply FULLRESYNC")
	}

	snapshot, err := next()
	if err != nil {
		return err
	}
	bulk, ok := snapshot.(*protocol.BulkReply)
	if !ok {
		return errors.New("replication: expected bulk snapshot payload")
	}
	lines, err := parser.ParseBytes(bulk.Arg)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if multi, ok := line.(*protocol.MultiBulkReply); ok {
			c.Apply(multi.Args)
		}
	}

	if c.OnSynced != nil {
		c.OnSynced()
	}

	for {
		reply, err := next()
		if err != nil {
			return err
		}
		if multi, ok := reply.(*protocol.MultiBulkReply); ok {
			c.Apply(multi.Args)
		}
	}
}
