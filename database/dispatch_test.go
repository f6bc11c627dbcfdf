package database

import "testing"

func TestParseMaxmemory(t *testing.T) {
	cases := []struct {
		in     string
		want   int64
		wantOK bool
	}{
		{"", 0, false},
		{"0", 0, false},
		{"100", 100, true},
		{"100b", 100, true},
		{"1kb", 1024, true},
		{"4mb", 4 * 1024 * 1024, true},
		{"2gb", 2 * 1024 * 1024 * 1024, true},
		{"2GB", 2 * 1024 * 1024 * 1024, true},
		{"not-a-number", 0, false},
	}
	for _, c := range cases {
		got, ok := parseMaxmemory(c.in)
		if ok != c.wantOK {
			t.Errorf("parseMaxmemory(%q) ok = %v, want %v", c.in, ok, c.wantOK)
			continue
		}
		if ok && got != c.want {
			t.Errorf("parseMaxmemory(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}

func TestIsWriteCommand(t *testing.T) {
	if !isWriteCommand("set") {
		t.Error(`isWriteCommand("set") = false, want true`)
	}
	if isWriteCommand("get") {
		t.Error(`isWriteCommand("get") = true, want false`)
	}
	if isWriteCommand("not-a-real-command") {
		t.Error(`isWriteCommand of an unknown command = true, want false`)
	}
}
