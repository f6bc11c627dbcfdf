// Package redis defines the contract a transport-layer connection must
// satisfy for the database engine to drive it, generalized from the
// teacher's interface/redis/connection.go to also carry RESP protocol
// version, blocking/ASKING state, and replication-stream markers.
package redis

// Connection is the engine's view of one client socket. The concrete
// implementation (redis/connection.Connection) adapts a gnet.Conn.
type Connection interface {
	Write([]byte) (int, error)
	Close() error

	RemoteAddr() string
	Name() string

	SetPassword(string)
	GetPassword() string

	// Pub/Sub subscriptions this connection holds.
	Subscribe(channel string)
	UnSubscribe(channel string)
	SubsCount() int
	GetChannels() []string
	PSubscribe(pattern string)
	PUnSubscribe(pattern string)
	GetPatterns() []string

	InMultiState() bool
	SetMultiState(bool)
	GetQueuedCmdLine() [][][]byte
	EnqueueCmd([][]byte)
	ClearQueuedCmds()
	// GetWatching returns key -> content digest captured at WATCH time,
	// not a version counter: EXEC recomputes each digest and compares.
	GetWatching() map[string]string
	AddTxError(err error)
	GetTxErrors() []error
	ClearTxState()

	GetDBIndex() int
	SelectDB(int)

	SetSlave()
	IsSlave() bool

	SetMaster()
	IsMaster() bool

	// RESP protocol version negotiated via HELLO (2 or 3).
	RESPVersion() int
	SetRESPVersion(int)

	// Blocking command bookkeeping: which deadline-wheel task is parking
	// this connection, if any.
	SetBlockedTask(key string)
	BlockedTask() string

	// ASKING is a one-shot flag set by the ASKING command, consumed by
	// the next command's cluster slot check.
	SetAsking(bool)
	IsAsking() bool
}
