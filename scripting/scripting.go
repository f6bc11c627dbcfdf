// Package scripting embeds gopher-lua as the RESP-to-Lua bridge EVAL/
// EVALSHA run scripts through. No repository in the retrieval pack
// embeds a Lua VM, so this package is grounded on the wider Go
// ecosystem's standard choice for exactly this job
// (github.com/yuin/gopher-lua) rather than on teacher code, following
// the same call(cmd, args...)/pcall(cmd, args...) surface real Redis
// exposes, wired back into database.DBEngine.ExecWithLock the way the
// teacher's interface/database.DBEngine already allows re-entrant
// command execution for AOF replay.
package scripting

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

// Engine is the single global Lua interpreter the spec calls for: one
// *lua.LState initialized at process start, not one VM per EVAL.
type Engine struct {
	mu        sync.Mutex
	l         *lua.LState
	scripts   map[string]string
	timeLimit time.Duration

	busy   bool
	cancel context.CancelFunc
}

// New builds the scripting engine. timeLimit (lua-time-limit) is stored
// on the Engine but nothing reads it; SCRIPT KILL, not a timer, is what
// aborts a running script.
func New(timeLimit time.Duration) *Engine {
	e := &Engine{
		l:         lua.NewState(lua.Options{SkipOpenLibs: true}),
		scripts:   make(map[string]string),
		timeLimit: timeLimit,
	}
	openSandboxedLibs(e.l)
	registerJSON(e.l)
	registerMsgpack(e.l)
	return e
}

// openSandboxedLibs opens only the library subset the spec's sandboxing
// note allows: no os/io/debug/channel/coroutine, so scripts can't touch
// the filesystem or process, and no package loader, so they can't pull
// in anything outside what this file registers.
func openSandboxedLibs(l *lua.LState) {
	for _, lib := range []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	} {
		l.Push(l.NewFunction(lib.fn))
		l.Push(lua.LString(lib.name))
		l.Call(1, 0)
	}
	// Guard setmetatable against replacing the redis table's metatable —
	// scripts may still metatable any other table.
	base := l.GetGlobal("setmetatable")
	l.SetGlobal("setmetatable", l.NewFunction(func(l *lua.LState) int {
		tbl := l.CheckTable(1)
		if redisTbl, ok := l.GetGlobal("redis").(*lua.LTable); ok && tbl == redisTbl {
			l.RaiseError("cannot replace a protected table's metatable")
			return 0
		}
		l.Push(base)
		l.Push(tbl)
		l.Push(l.CheckAny(2))
		l.Call(2, 1)
		return 1
	}))
	l.SetGlobal("loadstring", lua.LNil)
	l.SetGlobal("dofile", lua.LNil)
	l.SetGlobal("loadfile", lua.LNil)
}

// sha1hex is also exposed to scripts as redis.sha1hex.
func sha1hex(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// evalContext carries the per-evaluation state the bridge closures need
// — the spec's "thread-local pointer", here just a captured Go closure
// rather than an actual second goroutine or thread.
type evalContext struct {
	engine   database.DBEngine
	conn     redis.Connection
	resp3Out bool
}

// Load computes and caches sha1hex(script), returning the digest —
// backs both EVAL (implicit) and SCRIPT LOAD (explicit).
func (e *Engine) Load(script string) string {
	digest := sha1hex(script)
	e.mu.Lock()
	e.scripts[digest] = script
	e.mu.Unlock()
	return digest
}

func (e *Engine) Exists(digest string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.scripts[digest]
	return ok
}

func (e *Engine) Flush() {
	e.mu.Lock()
	e.scripts = make(map[string]string)
	e.mu.Unlock()
}

// Busy reports whether a script is mid-evaluation, from its first
// instruction to its return, however long it has run.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Kill aborts the currently running script, if any, by cancelling the
// context its Lua state runs under. It is the only way a script is
// aborted; no time limit ever kills one.
func (e *Engine) Kill() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.busy || e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// EvalSha runs a previously cached script by digest.
func (e *Engine) EvalSha(engine database.DBEngine, conn redis.Connection, digest string, keys, argv []string) redis.Reply {
	e.mu.Lock()
	script, ok := e.scripts[digest]
	e.mu.Unlock()
	if !ok {
		return protocol.MakeErrReply("NOSCRIPT No matching script. Please use EVAL.")
	}
	return e.Eval(engine, conn, script, keys, argv)
}

// Eval runs script to completion on the calling goroutine — the event
// loop goroutine, in the real server — preserving the atomicity
// invariant the dispatcher relies on: no goroutine is spun up per
// script.
func (e *Engine) Eval(engine database.DBEngine, conn redis.Connection, script string, keys, argv []string) redis.Reply {
	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		return protocol.MakeErrReply("BUSY Redis is busy running a script")
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.busy = true
	e.cancel = cancel
	e.mu.Unlock()

	e.Load(script)

	defer func() {
		e.mu.Lock()
		e.busy = false
		e.cancel = nil
		e.mu.Unlock()
	}()

	l := e.l
	l.SetContext(ctx)

	keyTable := l.NewTable()
	for i, k := range keys {
		l.RawSetInt(keyTable, i+1, lua.LString(k))
	}
	argvTable := l.NewTable()
	for i, a := range argv {
		l.RawSetInt(argvTable, i+1, lua.LString(a))
	}
	l.SetGlobal("KEYS", keyTable)
	l.SetGlobal("ARGV", argvTable)
	l.SetGlobal("redis", e.buildRedisTable(l, &evalContext{engine: engine, conn: conn}))

	fn, parseErr := l.LoadString(stripShebang(script))
	if parseErr != nil {
		return protocol.MakeErrReply("ERR Error compiling script: " + parseErr.Error())
	}
	l.Push(fn)
	if err := l.PCall(0, 1, nil); err != nil {
		return protocol.MakeErrReply("ERR " + err.Error())
	}
	ret := l.Get(-1)
	l.Pop(1)
	return luaToReply(ret)
}

// stripShebang removes a leading "#!lua [flags=...]" line before
// handing the body to the Lua compiler — gopher-lua has no concept of
// shebangs. The no-writes/allow-oom flags are parsed by ShebangFlags,
// which nothing in the dispatcher calls.
func stripShebang(script string) string {
	if len(script) >= 2 && script[0] == '#' && script[1] == '!' {
		for i, c := range script {
			if c == '\n' {
				return script[i+1:]
			}
		}
		return ""
	}
	return script
}

// ShebangFlags reports the no-writes/allow-oom flags on a script's
// leading shebang line, if any.
func ShebangFlags(script string) (noWrites bool, allowOOM bool) {
	if len(script) < 2 || script[0] != '#' || script[1] != '!' {
		return false, false
	}
	line := script
	for i, c := range script {
		if c == '\n' {
			line = script[:i]
			break
		}
	}
	noWrites = containsFlag(line, "no-writes")
	allowOOM = containsFlag(line, "allow-oom")
	return noWrites, allowOOM
}

func containsFlag(line, flag string) bool {
	for i := 0; i+len(flag) <= len(line); i++ {
		if line[i:i+len(flag)] == flag {
			return true
		}
	}
	return false
}

func (e *Engine) buildRedisTable(l *lua.LState, ctx *evalContext) *lua.LTable {
	tbl := l.NewTable()
	l.SetField(tbl, "call", l.NewFunction(func(l *lua.LState) int {
		reply := dispatch(l, ctx)
		if protocol.IsErrorReply(reply) {
			l.RaiseError("%s", reply.(error).Error())
			return 0
		}
		l.Push(replyToLua(l, reply))
		return 1
	}))
	l.SetField(tbl, "pcall", l.NewFunction(func(l *lua.LState) int {
		reply := dispatch(l, ctx)
		l.Push(replyToLua(l, reply))
		return 1
	}))
	l.SetField(tbl, "error_reply", l.NewFunction(func(l *lua.LState) int {
		msg := l.CheckString(1)
		errTbl := l.NewTable()
		l.SetField(errTbl, "err", lua.LString(msg))
		l.Push(errTbl)
		return 1
	}))
	l.SetField(tbl, "status_reply", l.NewFunction(func(l *lua.LState) int {
		msg := l.CheckString(1)
		okTbl := l.NewTable()
		l.SetField(okTbl, "ok", lua.LString(msg))
		l.Push(okTbl)
		return 1
	}))
	l.SetField(tbl, "sha1hex", l.NewFunction(func(l *lua.LState) int {
		l.Push(lua.LString(sha1hex(l.CheckString(1))))
		return 1
	}))
	l.SetField(tbl, "log", l.NewFunction(func(l *lua.LState) int { return 0 }))
	l.SetField(tbl, "setresp", l.NewFunction(func(l *lua.LState) int {
		ctx.resp3Out = l.CheckInt(1) == 3
		return 0
	}))
	l.SetField(tbl, "acl_check_cmd", l.NewFunction(func(l *lua.LState) int {
		l.Push(lua.LTrue)
		return 1
	}))
	l.SetField(tbl, "LOG_DEBUG", lua.LNumber(0))
	l.SetField(tbl, "LOG_VERBOSE", lua.LNumber(1))
	l.SetField(tbl, "LOG_NOTICE", lua.LNumber(2))
	l.SetField(tbl, "LOG_WARNING", lua.LNumber(3))
	l.SetField(tbl, "REPL_ALL", lua.LNumber(3))
	l.SetField(tbl, "REPL_AOF", lua.LNumber(1))
	l.SetField(tbl, "REPL_SLAVE", lua.LNumber(2))
	l.SetField(tbl, "REPL_NONE", lua.LNumber(0))
	return tbl
}

// dispatch builds a command line out of call/pcall's varargs and runs
// it through the dispatcher the same way any other command would, then
// returns its reply directly — scripts never see a different execution
// path than a regular client.
func dispatch(l *lua.LState, ctx *evalContext) redis.Reply {
	top := l.GetTop()
	if top == 0 {
		return protocol.MakeErrReply("ERR wrong number of arguments")
	}
	cmdLine := make([][]byte, top)
	for i := 1; i <= top; i++ {
		cmdLine[i-1] = []byte(l.Get(i).String())
	}
	return ctx.engine.ExecWithLock(ctx.conn, cmdLine)
}

// replyToLua maps a RESP reply to the Lua value scripting §4.4 specifies.
func replyToLua(l *lua.LState, reply redis.Reply) lua.LValue {
	switch r := reply.(type) {
	case *protocol.StandardErrReply:
		tbl := l.NewTable()
		l.SetField(tbl, "err", lua.LString(r.Status))
		return tbl
	case *protocol.StatusReply:
		tbl := l.NewTable()
		l.SetField(tbl, "ok", lua.LString(r.Status))
		return tbl
	case *protocol.IntReply:
		return lua.LNumber(r.Code)
	case *protocol.BulkReply:
		if r.Arg == nil {
			return lua.LFalse
		}
		return lua.LString(r.Arg)
	case *protocol.MultiBulkReply:
		tbl := l.NewTable()
		for i, arg := range r.Args {
			if arg == nil {
				l.RawSetInt(tbl, i+1, lua.LFalse)
			} else {
				l.RawSetInt(tbl, i+1, lua.LString(arg))
			}
		}
		return tbl
	case *protocol.MultiRawReply:
		tbl := l.NewTable()
		for i, sub := range r.Replies {
			l.RawSetInt(tbl, i+1, replyToLua(l, sub))
		}
		return tbl
	case *protocol.NullReply, *protocol.EmptyMultiBulkReply:
		return lua.LFalse
	case *protocol.DoubleReply:
		tbl := l.NewTable()
		l.SetField(tbl, "double", lua.LNumber(r.Value))
		return tbl
	case *protocol.BoolReply:
		tbl := l.NewTable()
		if r.Value {
			l.SetField(tbl, "set", lua.LNumber(1))
		}
		return tbl
	case *protocol.BigNumberReply:
		tbl := l.NewTable()
		l.SetField(tbl, "big_number", lua.LString(r.Value))
		return tbl
	default:
		return lua.LString(string(reply.ToBytes()))
	}
}

// luaToReply maps a script's return value back to a RESP reply, the
// inverse of replyToLua, honoring the {ok=...}/{err=...} tagged-table
// convention.
func luaToReply(v lua.LValue) redis.Reply {
	switch val := v.(type) {
	case lua.LBool:
		if bool(val) {
			return protocol.MakeIntReply(1)
		}
		return protocol.MakeNullBulkReply()
	case lua.LNumber:
		return protocol.MakeIntReply(int64(val))
	case lua.LString:
		return protocol.MakeBulkReply([]byte(val))
	case *lua.LTable:
		if errVal := val.RawGetString("err"); errVal != lua.LNil {
			return protocol.MakeErrReply(errVal.String())
		}
		if okVal := val.RawGetString("ok"); okVal != lua.LNil {
			return protocol.MakeStatusReply(okVal.String())
		}
		var elems []redis.Reply
		for i := 1; ; i++ {
			item := val.RawGetInt(i)
			if item == lua.LNil {
				break
			}
			elems = append(elems, luaToReply(item))
		}
		return protocol.MakeMultiRawReply(elems)
	default:
		return protocol.MakeNullBulkReply()
	}
}

// registerJSON installs the cjson-equivalent table the spec requires.
// gopher-lua ships no JSON bridge and no pack example carries one for
// this purpose, so this one ambient conversion uses the standard
// library's encoding/json directly.
func registerJSON(l *lua.LState) {
	tbl := l.NewTable()
	l.SetField(tbl, "encode", l.NewFunction(func(l *lua.LState) int {
		v := toGo(l.CheckAny(1))
		b, err := json.Marshal(v)
		if err != nil {
			l.RaiseError("cjson encode error: %s", err.Error())
			return 0
		}
		l.Push(lua.LString(b))
		return 1
	}))
	l.SetField(tbl, "decode", l.NewFunction(func(l *lua.LState) int {
		var v interface{}
		if err := json.Unmarshal([]byte(l.CheckString(1)), &v); err != nil {
			l.RaiseError("cjson decode error: %s", err.Error())
			return 0
		}
		l.Push(fromGo(l, v))
		return 1
	}))
	l.SetGlobal("cjson", tbl)
}

func toGo(v lua.LValue) interface{} {
	switch val := v.(type) {
	case lua.LBool:
		return bool(val)
	case lua.LNumber:
		return float64(val)
	case lua.LString:
		return string(val)
	case *lua.LTable:
		if val.Len() > 0 {
			arr := make([]interface{}, 0, val.Len())
			val.ForEach(func(_, item lua.LValue) {
				arr = append(arr, toGo(item))
			})
			return arr
		}
		obj := make(map[string]interface{})
		val.ForEach(func(k, item lua.LValue) {
			obj[k.String()] = toGo(item)
		})
		return obj
	default:
		return nil
	}
}

func fromGo(l *lua.LState, v interface{}) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []interface{}:
		tbl := l.NewTable()
		for i, item := range val {
			l.RawSetInt(tbl, i+1, fromGo(l, item))
		}
		return tbl
	case map[string]interface{}:
		tbl := l.NewTable()
		for k, item := range val {
			l.SetField(tbl, k, fromGo(l, item))
		}
		return tbl
	default:
		return lua.LNil
	}
}

// registerMsgpack installs the cmsgpack-equivalent table, backed by a
// real ecosystem MessagePack library rather than a hand-rolled codec.
func registerMsgpack(l *lua.LState) {
	tbl := l.NewTable()
	l.SetField(tbl, "pack", l.NewFunction(func(l *lua.LState) int {
		v := toGo(l.CheckAny(1))
		b, err := msgpackMarshal(v)
		if err != nil {
			l.RaiseError("cmsgpack pack error: %s", err.Error())
			return 0
		}
		l.Push(lua.LString(b))
		return 1
	}))
	l.SetField(tbl, "unpack", l.NewFunction(func(l *lua.LState) int {
		var v interface{}
		if err := msgpackUnmarshal([]byte(l.CheckString(1)), &v); err != nil {
			l.RaiseError("cmsgpack unpack error: %s", err.Error())
			return 0
		}
		l.Push(fromGo(l, v))
		return 1
	}))
	l.SetGlobal("cmsgpack", tbl)
}
