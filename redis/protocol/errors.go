package protocol

import "strconv"

// UnknownErrReply is returned when no reply could be constructed at all.
type UnknownErrReply struct{}

var unknownErrBytes = []byte("-ERR unknown\r\n")

func (r *UnknownErrReply) ToBytes() []byte { return unknownErrBytes }
func (r *UnknownErrReply) Error() string   { return "ERR unknown" }

// ArgNumErrReply reports a wrong argument count for a known command.
type ArgNumErrReply struct {
	Cmd string
}

func MakeArgNumErrReply(cmd string) *ArgNumErrReply {
	return &ArgNumErrReply{Cmd: cmd}
}

func (r *ArgNumErrReply) ToBytes() []byte {
	return []byte("-ERR wrong number of arguments for '" + r.Cmd + "' command\r\n")
}

func (r *ArgNumErrReply) Error() string {
	return "ERR wrong number of arguments for '" + r.Cmd + "' command"
}

// SyntaxErrReply reports a malformed option list.
type SyntaxErrReply struct{}

var syntaxErrBytes = []byte("-ERR syntax error\r\n")
var theSyntaxErrReply = &SyntaxErrReply{}

func MakeSyntaxErrReply() *SyntaxErrReply { return theSyntaxErrReply }
func (r *SyntaxErrReply) ToBytes() []byte { return syntaxErrBytes }
func (r *SyntaxErrReply) Error() string   { return "ERR syntax error" }

// WrongTypeErrReply reports an operation against a key of the wrong type.
type WrongTypeErrReply struct{}

var wrongTypeErrBytes = []byte("-WRONGTYPE Operation against a key holding the wrong kind of value\r\n")
var theWrongTypeErrReply = &WrongTypeErrReply{}

func MakeWrongTypeErrReply() *WrongTypeErrReply { return theWrongTypeErrReply }
func (r *WrongTypeErrReply) ToBytes() []byte    { return wrongTypeErrBytes }
func (r *WrongTypeErrReply) Error() string {
	return "WRONGTYPE Operation against a key holding the wrong kind of value"
}

// ProtocolErrReply reports a malformed RESP frame.
type ProtocolErrReply struct {
	Msg string
}

func MakeProtocolErrReply(msg string) *ProtocolErrReply {
	return &ProtocolErrReply{Msg: msg}
}

func (r *ProtocolErrReply) ToBytes() []byte {
	return []byte("-ERR Protocol error: '" + r.Msg + "'\r\n")
}

func (r *ProtocolErrReply) Error() string {
	return "ERR Protocol error: '" + r.Msg + "'"
}

// prefixedErr is the shared shape behind the rest of the prefixed error
// constructors below: "-PREFIX message\r\n".
type prefixedErr struct {
	prefix string
	msg    string
}

func (r *prefixedErr) ToBytes() []byte {
	return []byte("-" + r.prefix + " " + r.msg + CRLF)
}

func (r *prefixedErr) Error() string {
	return r.prefix + " " + r.msg
}

func MakeOutOfMemoryErrReply() ErrorReply {
	return &prefixedErr{"OOM", "command not allowed when used memory > 'maxmemory'."}
}

func MakeNoScriptErrReply(sha string) ErrorReply {
	return &prefixedErr{"NOSCRIPT", "No matching script. Please use EVAL. (sha1: " + sha + ")"}
}

func MakeBusyErrReply() ErrorReply {
	return &prefixedErr{"BUSY", "Redis is busy running a script. You can only call SCRIPT KILL or SHUTDOWN NOSAVE."}
}

func MakeNotBusyErrReply() ErrorReply {
	return &prefixedErr{"NOTBUSY", "No scripts in execution right now."}
}

func MakeBusyKeyErrReply() ErrorReply {
	return &prefixedErr{"BUSYKEY", "Target key name already exists."}
}

func MakeBusyGroupErrReply() ErrorReply {
	return &prefixedErr{"BUSYGROUP", "Consumer Group name already exists"}
}

func MakeNoGroupErrReply(group, key string) ErrorReply {
	return &prefixedErr{"NOGROUP", "No such key '" + key + "' or consumer group '" + group + "'"}
}

func MakeNoReplicasErrReply() ErrorReply {
	return &prefixedErr{"NOREPLICAS", "Not enough good replicas to write."}
}

func MakeReadonlyErrReply() ErrorReply {
	return &prefixedErr{"READONLY", "You can't write against a read only replica."}
}

func MakeMasterDownErrReply() ErrorReply {
	return &prefixedErr{"MASTERDOWN", "Link with MASTER is down and replica-serve-stale-data is set to 'no'."}
}

func MakeMovedErrReply(slot int, addr string) ErrorReply {
	return &prefixedErr{"MOVED", strconv.Itoa(slot) + " " + addr}
}

func MakeAskErrReply(slot int, addr string) ErrorReply {
	return &prefixedErr{"ASK", strconv.Itoa(slot) + " " + addr}
}

func MakeCrossSlotErrReply() ErrorReply {
	return &prefixedErr{"CROSSSLOT", "Keys in request don't hash to the same slot"}
}

func MakeClusterDownErrReply() ErrorReply {
	return &prefixedErr{"CLUSTERDOWN", "The cluster is down"}
}

func MakeExecAbortErrReply() ErrorReply {
	return &prefixedErr{"EXECABORT", "Transaction discarded because of previous errors."}
}

// MakeExecAbortErrReplyWithReason wraps the gate error that failed a
// queued command's EXEC-time pre-screen (spec.md §4.3 step 4) into the
// transaction's EXECABORT reply.
func MakeExecAbortErrReplyWithReason(reason string) ErrorReply {
	return &prefixedErr{"EXECABORT", "Transaction discarded: " + reason}
}

func MakeNoProtoErrReply() ErrorReply {
	return &prefixedErr{"NOPROTO", "unsupported protocol version"}
}

func MakeIOErrReply(detail string) ErrorReply {
	return &prefixedErr{"IOERR", detail}
}

func MakeNoAuthErrReply() ErrorReply {
	return &prefixedErr{"NOAUTH", "Authentication required."}
}

func MakeWrongPassErrReply() ErrorReply {
	return &prefixedErr{"WRONGPASS", "invalid username-password pair or user is disabled."}
}
