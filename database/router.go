package database

import "strings"

var cmdTable = make(map[string]*command)

// command is the registration record for one Redis command: how to run
// it, how to lock for it, how to undo it, and its argument/flag shape.
type command struct {
	executor ExecFunc
	prepare  PreFunc
	undo     UndoFunc
	arity    int
	flags    int
}

const (
	flagWrite    = 1 << 0
	flagReadOnly = 1 << 1
	flagSpecial  = 1 << 2 // handled outside the normal dispatch path (MULTI, EXEC, ...)
)

// RegisterCommand adds name to the dispatch table. arity follows the
// Redis convention: positive means exact argument count (including the
// command name), negative means "at least abs(arity)".
func RegisterCommand(name string, executor ExecFunc, prepare PreFunc, undo UndoFunc, arity int, flags int) {
	name = strings.ToLower(name)
	cmdTable[name] = &command{
		executor: executor,
		prepare:  prepare,
		undo:     undo,
		arity:    arity,
		flags:    flags,
	}
}

func isReadOnlyCommand(name string) bool {
	name = strings.ToLower(name)
	cmd := cmdTable[name]
	if cmd == nil {
		return false
	}
	return cmd.flags&flagReadOnly > 0
}

// firstKey returns the first key RegisterCommand's prepare func would
// write- or read-lock for cmdLine (args, not including the command
// name), preferring a write key over a read key — the cluster slot-
// routing gate's notion of "the command's first key".
func firstKey(cmdName string, args [][]byte) (string, bool) {
	cmd, ok := cmdTable[cmdName]
	if !ok {
		return "", false
	}
	write, read := cmd.prepare(args)
	if len(write) > 0 {
		return write[0], true
	}
	if len(read) > 0 {
		return read[0], true
	}
	return "", false
}
