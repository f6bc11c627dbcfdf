package rdb

import (
	"bytes"
	"sort"
	"testing"

	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/datastruct/set"
)

func TestDumpRestoreString(t *testing.T) {
	original := []byte("hello world")
	dumped, err := Dump(original)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	restored, err := Restore(dumped)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, ok := restored.([]byte)
	if !ok {
		t.Fatalf("Restore returned %T, want []byte", restored)
	}
	if !bytes.Equal(got, original) {
		t.Errorf("round-trip = %q, want %q", got, original)
	}
}

func TestDumpRestoreList(t *testing.T) {
	original := list.Make([]byte("a"), []byte("b"), []byte("c"))
	dumped, err := Dump(original)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	restored, err := Restore(dumped)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, ok := restored.(*list.LinkedList)
	if !ok {
		t.Fatalf("Restore returned %T, want *list.LinkedList", restored)
	}
	if got.Len() != original.Len() {
		t.Fatalf("round-trip length = %d, want %d", got.Len(), original.Len())
	}
	for i := 0; i < original.Len(); i++ {
		want := original.Get(i).([]byte)
		have := got.Get(i).([]byte)
		if !bytes.Equal(have, want) {
			t.Errorf("element %d = %q, want %q", i, have, want)
		}
	}
}

func TestDumpRestoreSet(t *testing.T) {
	original := set.Make("one", "two", "three")
	dumped, err := Dump(original)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	restored, err := Restore(dumped)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	got, ok := restored.(*set.Set)
	if !ok {
		t.Fatalf("Restore returned %T, want *set.Set", restored)
	}
	wantMembers := original.ToSlice()
	haveMembers := got.ToSlice()
	sort.Strings(wantMembers)
	sort.Strings(haveMembers)
	if len(wantMembers) != len(haveMembers) {
		t.Fatalf("round-trip has %d members, want %d", len(haveMembers), len(wantMembers))
	}
	for i := range wantMembers {
		if wantMembers[i] != haveMembers[i] {
			t.Errorf("member %d = %q, want %q", i, haveMembers[i], wantMembers[i])
		}
	}
}

func TestRestoreRejectsCorruptedPayload(t *testing.T) {
	dumped, err := Dump([]byte("payload"))
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	dumped[0] ^= 0xFF
	if _, err := Restore(dumped); err == nil {
		t.Error("Restore accepted a payload with a flipped byte")
	}
}

func TestRestoreRejectsShortPayload(t *testing.T) {
	if _, err := Restore([]byte{1, 2, 3}); err == nil {
		t.Error("Restore accepted a payload shorter than the version+CRC footer")
	}
}
