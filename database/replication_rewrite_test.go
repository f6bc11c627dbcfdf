package database

import (
	"strconv"
	"testing"
	"time"

	"github.com/alsatianco/peadb/interface/database"
	"github.com/alsatianco/peadb/redis/protocol"
)

func newTestDB() *DB {
	return makeBasicDB()
}

func putString(db *DB, key, value string) {
	db.PutEntity(key, &database.DataEntity{Data: []byte(value)})
}

func TestRewriteSetWithExpireBecomesAbsolutePXAT(t *testing.T) {
	db := newTestDB()
	putString(db, "k", "v")
	db.Expire("k", time.Now().Add(10*time.Second))

	rewritten := rewriteSet(db, [][]byte{[]byte("k"), []byte("v"), []byte("EX"), []byte("10")})
	if string(rewritten[0]) != "SET" {
		t.Fatalf("rewritten[0] = %q, want SET", rewritten[0])
	}
	found := false
	for i, arg := range rewritten {
		if string(arg) == "PXAT" {
			found = true
			if i+1 >= len(rewritten) {
				t.Fatalf("PXAT has no following timestamp argument")
			}
			ms, err := strconv.ParseInt(string(rewritten[i+1]), 10, 64)
			if err != nil {
				t.Fatalf("PXAT argument %q is not an integer: %v", rewritten[i+1], err)
			}
			if ms <= time.Now().UnixMilli() {
				t.Errorf("PXAT timestamp %d is not in the future", ms)
			}
		}
	}
	if !found {
		t.Errorf("rewritten SET %v does not contain PXAT", rewritten)
	}
}

func TestRewriteSetWithoutTTLOptionPassesThrough(t *testing.T) {
	db := newTestDB()
	rewritten := rewriteSet(db, [][]byte{[]byte("k"), []byte("v"), []byte("NX")})
	want := CmdLine{[]byte("SET"), []byte("k"), []byte("v"), []byte("NX")}
	assertCmdLineEqual(t, rewritten, want)
}

func TestRewriteExpireOnMissingKeyBecomesDel(t *testing.T) {
	db := newTestDB()
	rewritten := rewriteExpire(db, "absent")
	assertCmdLineEqual(t, rewritten, CmdLine{[]byte("DEL"), []byte("absent")})
}

func TestRewriteExpireOnExistingKeyBecomesPexpireat(t *testing.T) {
	db := newTestDB()
	putString(db, "k", "v")
	db.Expire("k", time.Now().Add(time.Minute))

	rewritten := rewriteExpire(db, "k")
	if string(rewritten[0]) != "PEXPIREAT" || string(rewritten[1]) != "k" {
		t.Fatalf("rewritten = %v, want PEXPIREAT k <ts>", rewritten)
	}
}

func TestRewriteForJournalSuppressesZeroEffectDel(t *testing.T) {
	db := newTestDB()
	rewritten := rewriteForJournal(db, "del", [][]byte{[]byte("k")}, protocol.MakeIntReply(0))
	if rewritten != nil {
		t.Errorf("rewriteForJournal(del, reply=0) = %v, want nil (suppressed)", rewritten)
	}
}

func TestRewriteForJournalKeepsEffectfulDel(t *testing.T) {
	db := newTestDB()
	rewritten := rewriteForJournal(db, "del", [][]byte{[]byte("k")}, protocol.MakeIntReply(1))
	assertCmdLineEqual(t, rewritten, CmdLine{[]byte("DEL"), []byte("k")})
}

func TestRewriteForJournalSuppressesScriptingCommands(t *testing.T) {
	db := newTestDB()
	for _, name := range []string{"script", "eval", "evalsha", "fcall", "fcall_ro", "xreadgroup"} {
		if rewritten := rewriteForJournal(db, name, nil, protocol.MakeOkReply()); rewritten != nil {
			t.Errorf("rewriteForJournal(%s) = %v, want nil (suppressed)", name, rewritten)
		}
	}
}

func TestRewriteIncrByFloatBecomesSetKeepttl(t *testing.T) {
	db := newTestDB()
	rewritten := rewriteForJournal(db, "incrbyfloat", [][]byte{[]byte("k"), []byte("1.5")}, protocol.MakeBulkReply([]byte("3.5")))
	assertCmdLineEqual(t, rewritten, CmdLine{[]byte("SET"), []byte("k"), []byte("3.5"), []byte("KEEPTTL")})
}

func TestRewriteGetDelBecomesDel(t *testing.T) {
	db := newTestDB()
	rewritten := rewriteForJournal(db, "getdel", [][]byte{[]byte("k")}, protocol.MakeBulkReply([]byte("v")))
	assertCmdLineEqual(t, rewritten, CmdLine{[]byte("DEL"), []byte("k")})
}

func assertCmdLineEqual(t *testing.T, got, want CmdLine) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("CmdLine = %v, want %v", got, want)
	}
	for i := range got {
		if string(got[i]) != string(want[i]) {
			t.Fatalf("CmdLine = %v, want %v", got, want)
		}
	}
}
