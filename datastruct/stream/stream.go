// Package stream implements the Redis stream type: an append-only log of
// (ID, fields) entries plus named consumer groups, grounded on
// original_source/include/datastore.hpp's Entry.StreamGroup (last_delivered_id,
// pending_to_consumer, pending_per_consumer) and rewritten in the teacher's
// idiom (plain structs + slices, no STL containers).
package stream

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ID is a stream entry identifier, strictly monotonic per key (invariant 6).
type ID struct {
	Ms  uint64
	Seq uint64
}

func (id ID) String() string {
	return strconv.FormatUint(id.Ms, 10) + "-" + strconv.FormatUint(id.Seq, 10)
}

func (id ID) Less(other ID) bool {
	if id.Ms != other.Ms {
		return id.Ms < other.Ms
	}
	return id.Seq < other.Seq
}

func (id ID) Equal(other ID) bool { return id.Ms == other.Ms && id.Seq == other.Seq }

func (id ID) Compare(other ID) int {
	if id.Ms != other.Ms {
		if id.Ms < other.Ms {
			return -1
		}
		return 1
	}
	if id.Seq != other.Seq {
		if id.Seq < other.Seq {
			return -1
		}
		return 1
	}
	return 0
}

// ParseID parses "ms-seq", "ms" (seq defaults to 0), or the special tokens
// "-" / "+" used as open range bounds by XRANGE.
func ParseID(s string) (ID, error) {
	if s == "-" {
		return ID{0, 0}, nil
	}
	if s == "+" {
		return ID{^uint64(0), ^uint64(0)}, nil
	}
	parts := strings.SplitN(s, "-", 2)
	ms, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return ID{}, errors.New("ERR Invalid stream ID specified as stream command argument")
	}
	if len(parts) == 1 {
		return ID{Ms: ms}, nil
	}
	seq, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return ID{}, errors.New("ERR Invalid stream ID specified as stream command argument")
	}
	return ID{Ms: ms, Seq: seq}, nil
}

// Field is one field=value pair, kept ordered the way XADD received them.
type Field struct {
	Key, Value string
}

// Entry is one stream record.
type Entry struct {
	ID     ID
	Fields []Field
}

// Group is a consumer group: its delivery cursor plus a pending-entries
// list (PEL) mapping delivered-but-unacked entry IDs to the consumer that
// received them, with a per-consumer delivery counter.
type Group struct {
	LastDelivered  ID
	Pending        map[ID]string // entry ID -> consumer name
	ConsumerCounts map[string]int64
}

func newGroup(start ID) *Group {
	return &Group{
		LastDelivered:  start,
		Pending:        make(map[ID]string),
		ConsumerCounts: make(map[string]int64),
	}
}

// Stream holds entries in ID order plus named consumer groups.
type Stream struct {
	Entries []Entry
	Groups  map[string]*Group
	lastID  ID
}

// Make creates an empty stream.
func Make() *Stream {
	return &Stream{Groups: make(map[string]*Group)}
}

// Len returns the number of entries currently stored.
func (s *Stream) Len() int { return len(s.Entries) }

// TopID returns the highest ID ever assigned, even if that entry was
// later deleted by XDEL (IDs never reuse, matching invariant 6).
func (s *Stream) TopID() ID { return s.lastID }

// NextID computes the ID that "*" would assign at the given wall-clock ms:
// strictly greater than the current top ID.
func (s *Stream) NextID(nowMs uint64) ID {
	if nowMs > s.lastID.Ms {
		return ID{Ms: nowMs, Seq: 0}
	}
	return ID{Ms: s.lastID.Ms, Seq: s.lastID.Seq + 1}
}

// Add appends an entry with the given ID, rejecting it if it is not
// strictly greater than the current top ID.
func (s *Stream) Add(id ID, fields []Field) error {
	if len(s.Entries) > 0 || s.lastID != (ID{}) {
		if id.Compare(s.lastID) <= 0 {
			return errors.New("ERR The ID specified in XADD is equal or smaller than the target stream top item")
		}
	}
	s.Entries = append(s.Entries, Entry{ID: id, Fields: fields})
	s.lastID = id
	return nil
}

// find returns the index of the entry with id, or -1.
func (s *Stream) find(id ID) int {
	lo, hi := 0, len(s.Entries)
	for lo < hi {
		mid := (lo + hi) / 2
		if s.Entries[mid].ID.Compare(id) < 0 {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(s.Entries) && s.Entries[lo].ID.Equal(id) {
		return lo
	}
	return -1
}

// Range returns entries with start <= id <= stop (or reversed).
func (s *Stream) Range(start, stop ID, rev bool) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.ID.Compare(start) >= 0 && e.ID.Compare(stop) <= 0 {
			out = append(out, e)
		}
	}
	if rev {
		sort.SliceStable(out, func(i, j int) bool { return out[i].ID.Compare(out[j].ID) > 0 })
	}
	return out
}

// Del removes entries by ID, cleaning them out of every group's PEL too.
func (s *Stream) Del(ids []ID) int64 {
	var removed int64
	for _, id := range ids {
		idx := s.find(id)
		if idx < 0 {
			continue
		}
		s.Entries = append(s.Entries[:idx], s.Entries[idx+1:]...)
		removed++
		for _, g := range s.Groups {
			delete(g.Pending, id)
		}
	}
	return removed
}

// GroupCreate creates a consumer group rooted at startID ("$" means "the
// current top ID"). Returns an error if the group already exists.
func (s *Stream) GroupCreate(name string, startID ID, isDollar bool) error {
	if _, ok := s.Groups[name]; ok {
		return errors.New("BUSYGROUP Consumer Group name already exists")
	}
	if isDollar {
		startID = s.lastID
	}
	s.Groups[name] = newGroup(startID)
	return nil
}

func (s *Stream) GroupSetID(name string, id ID, isDollar bool) error {
	g, ok := s.Groups[name]
	if !ok {
		return fmt.Errorf("NOGROUP No such consumer group '%s' for key name", name)
	}
	if isDollar {
		id = s.lastID
	}
	g.LastDelivered = id
	return nil
}

// ReadGroup delivers every undelivered entry (ID strictly after
// LastDelivered) to consumer, adding each to the group's PEL and
// advancing LastDelivered.
func (s *Stream) ReadGroup(group, consumer string, count int) ([]Entry, error) {
	g, ok := s.Groups[group]
	if !ok {
		return nil, fmt.Errorf("NOGROUP No such key or consumer group")
	}
	var delivered []Entry
	for _, e := range s.Entries {
		if e.ID.Compare(g.LastDelivered) <= 0 {
			continue
		}
		delivered = append(delivered, e)
		g.Pending[e.ID] = consumer
		g.ConsumerCounts[consumer]++
		g.LastDelivered = e.ID
		if count > 0 && len(delivered) >= count {
			break
		}
	}
	return delivered, nil
}

// Ack removes ids from group's PEL, returning the number actually removed.
func (s *Stream) Ack(group string, ids []ID) (int64, error) {
	g, ok := s.Groups[group]
	if !ok {
		return 0, fmt.Errorf("NOGROUP No such consumer group")
	}
	var acked int64
	for _, id := range ids {
		if _, ok := g.Pending[id]; ok {
			delete(g.Pending, id)
			acked++
		}
	}
	return acked, nil
}

// PendingSummary returns (count, min id, max id, distinct consumer count).
func (s *Stream) PendingSummary(group string) (int64, *ID, *ID, int64, error) {
	g, ok := s.Groups[group]
	if !ok {
		return 0, nil, nil, 0, fmt.Errorf("NOGROUP No such consumer group")
	}
	if len(g.Pending) == 0 {
		return 0, nil, nil, 0, nil
	}
	var minID, maxID ID
	first := true
	consumers := make(map[string]struct{})
	for id, consumer := range g.Pending {
		if first || id.Compare(minID) < 0 {
			minID = id
		}
		if first || id.Compare(maxID) > 0 {
			maxID = id
		}
		first = false
		consumers[consumer] = struct{}{}
	}
	return int64(len(g.Pending)), &minID, &maxID, int64(len(consumers)), nil
}
