package cluster

import "testing"

func TestCrc16CheckValue(t *testing.T) {
	// The standard CRC-16/XMODEM check value for "123456789" is 0x31C3,
	// independent of anything Redis-specific — confirms the table
	// construction in init() matches the algorithm before trusting
	// Keyslot's hash-tag behavior below.
	got := crc16([]byte("123456789"))
	want := uint16(0x31C3)
	if got != want {
		t.Errorf("crc16(%q) = %#04x, want %#04x", "123456789", got, want)
	}
}

func TestKeyslotRange(t *testing.T) {
	for _, key := range []string{"foo", "bar", "", "a-very-long-key-name-indeed"} {
		slot := Keyslot(key)
		if slot < 0 || slot >= SlotCount {
			t.Errorf("Keyslot(%q) = %d, out of [0, %d)", key, slot, SlotCount)
		}
	}
}

func TestKeyslotHashTag(t *testing.T) {
	base := Keyslot("user1000")
	tagged := Keyslot("{user1000}.following")
	other := Keyslot("{user1000}.followers")
	if tagged != base {
		t.Errorf("Keyslot({user1000}.following) = %d, want same slot as user1000 (%d)", tagged, base)
	}
	if other != base {
		t.Errorf("Keyslot({user1000}.followers) = %d, want same slot as user1000 (%d)", other, base)
	}
}

func TestKeyslotEmptyHashTagFallsBackToWholeKey(t *testing.T) {
	// An empty {} tag ("end > 0" fails for end == 0) must hash the whole
	// key rather than the empty substring between the braces.
	got := Keyslot("foo{}bar")
	want := int(crc16([]byte("foo{}bar")) % SlotCount)
	if got != want {
		t.Errorf("Keyslot(foo{}bar) = %d, want whole-key slot %d", got, want)
	}
}

func TestKeyslotUnmatchedBraceUsesWholeKey(t *testing.T) {
	got := Keyslot("foo{bar")
	want := int(crc16([]byte("foo{bar")) % SlotCount)
	if got != want {
		t.Errorf("Keyslot(foo{bar) = %d, want whole-key slot %d", got, want)
	}
}
