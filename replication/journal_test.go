package replication

import "testing"

func cmdLine(args ...string) [][]byte {
	out := make([][]byte, len(args))
	for i, a := range args {
		out[i] = []byte(a)
	}
	return out
}

func TestNewCursorStartsAtTail(t *testing.T) {
	j := NewJournal(GenerateID())
	j.Append(0, cmdLine("SET", "a", "1"))

	cursor := j.NewCursor()
	if events := cursor.Drain(); events != nil {
		t.Fatalf("Drain() on a fresh cursor = %v, want nil", events)
	}

	j.Append(0, cmdLine("SET", "b", "2"))
	events := cursor.Drain()
	if len(events) != 1 {
		t.Fatalf("Drain() returned %d events, want 1", len(events))
	}
	if string(events[0].CmdLine[1]) != "b" {
		t.Errorf("Drain()[0] key = %q, want %q", events[0].CmdLine[1], "b")
	}
}

func TestAppendInsertsSelectOnDBChange(t *testing.T) {
	j := NewJournal(GenerateID())
	cursor := j.NewCursor()

	j.Append(2, cmdLine("SET", "a", "1"))
	events := cursor.Drain()
	if len(events) != 2 {
		t.Fatalf("expected a synthetic SELECT before the first event, got %d events", len(events))
	}
	if string(events[0].CmdLine[0]) != "SELECT" || string(events[0].CmdLine[1]) != "2" {
		t.Errorf("events[0] = %v, want SELECT 2", events[0].CmdLine)
	}
	if string(events[1].CmdLine[0]) != "SET" {
		t.Errorf("events[1] = %v, want the SET", events[1].CmdLine)
	}

	j.Append(2, cmdLine("SET", "b", "2"))
	events = cursor.Drain()
	if len(events) != 1 {
		t.Fatalf("Append on the same db re-emitted SELECT: got %d events, want 1", len(events))
	}
}

func TestOffsetAdvancesWithEachAppend(t *testing.T) {
	j := NewJournal(GenerateID())
	if j.Offset() != 0 {
		t.Fatalf("fresh journal offset = %d, want 0", j.Offset())
	}
	j.Append(0, cmdLine("SET", "a", "1"))
	after := j.Offset()
	if after <= 0 {
		t.Fatalf("offset after one append = %d, want > 0", after)
	}
	j.Append(0, cmdLine("SET", "b", "2"))
	if j.Offset() <= after {
		t.Errorf("offset did not advance on second append: %d -> %d", after, j.Offset())
	}
}

func TestGenerateIDLengthAndCharset(t *testing.T) {
	id := GenerateID()
	if len(id) != 40 {
		t.Fatalf("GenerateID() length = %d, want 40", len(id))
	}
	for _, r := range id {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			t.Fatalf("GenerateID() contains unexpected rune %q", r)
		}
	}
}
