// Package lock provides striped read/write locks keyed by string, used by
// database.DB to lock the keys a command touches. Most command execution
// runs on a single event-loop goroutine (see server/); these locks keep
// the commands that run on goroutines of their own (the replica link's
// apply loop, retries of parked blocking commands) from touching the same
// keys as the loop goroutine at the same time.
package lock

import (
	"sort"
	"sync"

	"github.com/spaolacci/murmur3"
)

// Locks is a fixed-size array of RWMutex, each guarding the keys that hash
// into it. Keys are locked in a stable sorted order to avoid deadlocks when
// a caller locks several keys at once.
type Locks struct {
	table []*sync.RWMutex
}

// Make creates a Locks with at least size stripes, rounded up to a power
// of two.
func Make(size int) *Locks {
	if size < 1 {
		size = 1
	}
	n := 1
	for n < size {
		n <<= 1
	}
	table := make([]*sync.RWMutex, n)
	for i := range table {
		table[i] = &sync.RWMutex{}
	}
	return &Locks{table: table}
}

func (l *Locks) spread(key string) uint32 {
	h := murmur3.Sum32([]byte(key))
	return h & uint32(len(l.table)-1)
}

// toLockIndices returns the sorted, deduplicated stripe indices for keys.
// Sorting the indices (not the keys) guarantees a total lock order across
// any two overlapping calls regardless of key content, so concurrent
// multi-key lock calls can never deadlock each other.
func (l *Locks) toLockIndices(keys []string, reverse bool) []int {
	indexMap := make(map[int]struct{}, len(keys))
	for _, k := range keys {
		indexMap[int(l.spread(k))] = struct{}{}
	}
	indices := make([]int, 0, len(indexMap))
	for idx := range indexMap {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	if reverse {
		for i, j := 0, len(indices)-1; i < j; i, j = i+1, j-1 {
			indices[i], indices[j] = indices[j], indices[i]
		}
	}
	return indices
}

// Lock locks the write-stripe for key.
func (l *Locks) Lock(key string) {
	l.table[l.spread(key)].Lock()
}

// UnLock unlocks the write-stripe for key.
func (l *Locks) UnLock(key string) {
	l.table[l.spread(key)].Unlock()
}

// Locks locks write-stripes for all keys in ascending stripe order.
func (l *Locks) Locks(keys ...string) {
	for _, idx := range l.toLockIndices(keys, false) {
		l.table[idx].Lock()
	}
}

// UnLocks unlocks write-stripes for all keys in descending stripe order.
func (l *Locks) UnLocks(keys ...string) {
	for _, idx := range l.toLockIndices(keys, true) {
		l.table[idx].Unlock()
	}
}

// RWLocks locks write-stripes for writeKeys and read-stripes for readKeys
// (deduplicated against writeKeys) in one total order.
func (l *Locks) RWLocks(writeKeys []string, readKeys []string) {
	writeSet := make(map[int]struct{}, len(writeKeys))
	all := make([]string, 0, len(writeKeys)+len(readKeys))
	all = append(all, writeKeys...)
	for _, k := range writeKeys {
		writeSet[int(l.spread(k))] = struct{}{}
	}
	for _, k := range readKeys {
		if _, ok := writeSet[int(l.spread(k))]; !ok {
			all = append(all, k)
		}
	}
	indices := l.toLockIndices(all, false)
	for _, idx := range indices {
		if _, ok := writeSet[idx]; ok {
			l.table[idx].Lock()
		} else {
			l.table[idx].RLock()
		}
	}
}

// RWUnLocks is the inverse of RWLocks.
func (l *Locks) RWUnLocks(writeKeys []string, readKeys []string) {
	writeSet := make(map[int]struct{}, len(writeKeys))
	all := make([]string, 0, len(writeKeys)+len(readKeys))
	all = append(all, writeKeys...)
	for _, k := range writeKeys {
		writeSet[int(l.spread(k))] = struct{}{}
	}
	for _, k := range readKeys {
		if _, ok := writeSet[int(l.spread(k))]; !ok {
			all = append(all, k)
		}
	}
	indices := l.toLockIndices(all, true)
	for _, idx := range indices {
		if _, ok := writeSet[idx]; ok {
			l.table[idx].Unlock()
		} else {
			l.table[idx].RUnlock()
		}
	}
}
