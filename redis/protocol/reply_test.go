package protocol

import (
	"bytes"
	"testing"
)

func TestBulkReplyEncoding(t *testing.T) {
	r := MakeBulkReply([]byte("hello"))
	want := "$5\r\nhello\r\n"
	if got := string(r.ToBytes()); got != want {
		t.Errorf("BulkReply.ToBytes() = %q, want %q", got, want)
	}
}

func TestBulkReplyNilIsNullBulk(t *testing.T) {
	r := MakeBulkReply(nil)
	want := "$-1\r\n"
	if got := string(r.ToBytes()); got != want {
		t.Errorf("BulkReply(nil).ToBytes() = %q, want %q", got, want)
	}
}

func TestMultiBulkReplyEncoding(t *testing.T) {
	r := MakeMultiBulkReply([][]byte{[]byte("SET"), []byte("k"), []byte("v")})
	want := "*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"
	if got := string(r.ToBytes()); got != want {
		t.Errorf("MultiBulkReply.ToBytes() = %q, want %q", got, want)
	}
}

func TestMultiBulkReplyWithNilElement(t *testing.T) {
	r := MakeMultiBulkReply([][]byte{[]byte("a"), nil})
	want := "*2\r\n$1\r\na\r\n$-1\r\n"
	if got := string(r.ToBytes()); got != want {
		t.Errorf("MultiBulkReply with nil element = %q, want %q", got, want)
	}
}

func TestStatusReplyEncoding(t *testing.T) {
	r := MakeStatusReply("OK")
	if got, want := string(r.ToBytes()), "+OK\r\n"; got != want {
		t.Errorf("StatusReply.ToBytes() = %q, want %q", got, want)
	}
}

func TestIntReplyEncoding(t *testing.T) {
	r := MakeIntReply(42)
	if got, want := string(r.ToBytes()), ":42\r\n"; got != want {
		t.Errorf("IntReply.ToBytes() = %q, want %q", got, want)
	}
}

func TestErrReplyEncodingAndIsErrorReply(t *testing.T) {
	r := MakeErrReply("ERR bad thing")
	if got, want := string(r.ToBytes()), "-ERR bad thing\r\n"; got != want {
		t.Errorf("StandardErrReply.ToBytes() = %q, want %q", got, want)
	}
	if !IsErrorReply(r) {
		t.Error("IsErrorReply(StandardErrReply) = false, want true")
	}
	if IsErrorReply(MakeStatusReply("OK")) {
		t.Error("IsErrorReply(StatusReply) = true, want false")
	}
}

func TestIsOKReply(t *testing.T) {
	if !IsOKReply(MakeStatusReply("OK")) {
		t.Error("IsOKReply(+OK) = false, want true")
	}
	if IsOKReply(MakeStatusReply("PONG")) {
		t.Error("IsOKReply(+PONG) = true, want false")
	}
}

func TestRawReplyPassesBytesThroughVerbatim(t *testing.T) {
	status := MakeStatusReply("FULLRESYNC abc123 0").ToBytes()
	bulk := MakeBulkReply([]byte("payload")).ToBytes()
	combined := append(append([]byte{}, status...), bulk...)

	raw := MakeRawReply(combined)
	if !bytes.Equal(raw.ToBytes(), combined) {
		t.Errorf("RawReply.ToBytes() = %q, want %q", raw.ToBytes(), combined)
	}
}

func TestBoolReplyEncoding(t *testing.T) {
	if got, want := string(MakeBoolReply(true).ToBytes()), "#t\r\n"; got != want {
		t.Errorf("BoolReply(true).ToBytes() = %q, want %q", got, want)
	}
	if got, want := string(MakeBoolReply(false).ToBytes()), "#f\r\n"; got != want {
		t.Errorf("BoolReply(false).ToBytes() = %q, want %q", got, want)
	}
}

func TestDoubleReplyEncoding(t *testing.T) {
	r := MakeDoubleReply(3.14)
	if got, want := string(r.ToBytes()), ",3.14\r\n"; got != want {
		t.Errorf("DoubleReply.ToBytes() = %q, want %q", got, want)
	}
}
