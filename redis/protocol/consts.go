package protocol

// PongReply is the fixed reply to a bare PING.
type PongReply struct{}

var pongBytes = []byte("+PONG\r\n")

func MakePongReply() *PongReply { return &PongReply{} }

func (r *PongReply) ToBytes() []byte { return pongBytes }

// OkReply is the fixed "+OK" reply shared by every command that doesn't
// need a distinct status string.
type OkReply struct{}

var okBytes = []byte("+OK\r\n")

var theOkReply = &OkReply{}

func MakeOkReply() *OkReply { return theOkReply }

func (r *OkReply) ToBytes() []byte { return okBytes }

var nullBulkBytes = []byte("$-1\r\n")

var emptyMultiBulkBytes = []byte("*0\r\n")

var theEmptyMultiBulkReply = &EmptyMultiBulkReply{}

func MakeEmptyMultiBulkReply() *EmptyMultiBulkReply { return theEmptyMultiBulkReply }

var theNullBulkReply = &BulkReply{Arg: nil}

func MakeNullBulkReply() *BulkReply { return theNullBulkReply }

// NullMultiBulkReply is the RESP2 null array ("*-1"), the reply a
// blocking command sends back when its timeout elapses with nothing
// delivered — distinct from EmptyMultiBulkReply's "*0", a present but
// empty array.
type NullMultiBulkReply struct{}

var nullMultiBulkBytes = []byte("*-1\r\n")

var theNullMultiBulkReply = &NullMultiBulkReply{}

func MakeNullMultiBulkReply() *NullMultiBulkReply { return theNullMultiBulkReply }

func (r *NullMultiBulkReply) ToBytes() []byte { return nullMultiBulkBytes }

// QueuedReply is returned for any command enqueued inside MULTI.
type QueuedReply struct{}

var queuedBytes = []byte("+QUEUED\r\n")

var theQueuedReply = &QueuedReply{}

func MakeQueuedReply() *QueuedReply { return theQueuedReply }

func (r *QueuedReply) ToBytes() []byte { return queuedBytes }
