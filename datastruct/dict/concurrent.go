package dict

import (
	"math/rand"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/spaolacci/murmur3"
)

// shard is one stripe of the concurrent dict: its own map guarded by its
// own lock, the way the teacher's legacy datastruct.Dict sharded on
// MyDictType.HashFunction (murmur3) before that file was retired in favor
// of this generalized, Dict-interface-conforming version.
type shard struct {
	mu sync.RWMutex
	m  map[string]interface{}
}

// ConcurrentDict is a fixed-shard-count concurrent map. Keys are routed to
// shards by murmur3(key) & mask, matching the hash function the teacher's
// DictType already used for its own (unsharded) dict.
type ConcurrentDict struct {
	shards []*shard
	mask   uint32
	count  int32
}

// MakeConcurrent creates a ConcurrentDict with at least shardCount shards,
// rounded up to the next power of two.
func MakeConcurrent(shardCount int) *ConcurrentDict {
	if shardCount < 1 {
		shardCount = 1
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{m: make(map[string]interface{})}
	}
	d := &ConcurrentDict{shards: shards, mask: uint32(n - 1)}
	return d
}

func (d *ConcurrentDict) spread(key string) uint32 {
	if d == nil {
		panic("dict is nil")
	}
	h := murmur3.Sum32([]byte(key))
	return h & d.mask
}

func (d *ConcurrentDict) getShard(index uint32) *shard {
	return d.shards[index]
}

func (d *ConcurrentDict) Get(key string) (val interface{}, exists bool) {
	s := d.getShard(d.spread(key))
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, exists = s.m[key]
	return
}

func (d *ConcurrentDict) Len() int {
	return int(atomic.LoadInt32(&d.count))
}

func (d *ConcurrentDict) Put(key string, val interface{}) (result int) {
	s := d.getShard(d.spread(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		s.m[key] = val
		return 0
	}
	s.m[key] = val
	atomic.AddInt32(&d.count, 1)
	return 1
}

func (d *ConcurrentDict) PutIfAbsent(key string, val interface{}) (result int) {
	s := d.getShard(d.spread(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		return 0
	}
	s.m[key] = val
	atomic.AddInt32(&d.count, 1)
	return 1
}

func (d *ConcurrentDict) PutIfExists(key string, val interface{}) (result int) {
	s := d.getShard(d.spread(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		s.m[key] = val
		return 1
	}
	return 0
}

func (d *ConcurrentDict) Remove(key string) (result int) {
	s := d.getShard(d.spread(key))
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[key]; ok {
		delete(s.m, key)
		atomic.AddInt32(&d.count, -1)
		return 1
	}
	return 0
}

func (d *ConcurrentDict) ForEach(consumer Consumer) {
	for _, s := range d.shards {
		s.mu.RLock()
		for k, v := range s.m {
			if !consumer(k, v) {
				s.mu.RUnlock()
				return
			}
		}
		s.mu.RUnlock()
	}
}

func (d *ConcurrentDict) Keys() []string {
	keys := make([]string, 0, d.Len())
	d.ForEach(func(key string, _ interface{}) bool {
		keys = append(keys, key)
		return true
	})
	return keys
}

func (d *ConcurrentDict) RandomKeys(limit int) []string {
	size := d.Len()
	if limit > size {
		limit = size
	}
	result := make([]string, 0, limit)
	nR := rand.New(rand.NewSource(rand.Int63()))
	for len(result) < limit && size > 0 {
		idx := nR.Intn(len(d.shards))
		s := d.shards[idx]
		s.mu.RLock()
		for k := range s.m {
			result = append(result, k)
			break
		}
		s.mu.RUnlock()
		if len(result) >= limit {
			break
		}
	}
	return result
}

func (d *ConcurrentDict) RandomDistinctKeys(limit int) []string {
	size := d.Len()
	if limit >= size {
		return d.Keys()
	}
	seen := make(map[string]struct{}, limit)
	result := make([]string, 0, limit)
	attempts := 0
	maxAttempts := limit * 10
	if maxAttempts < 50 {
		maxAttempts = 50
	}
	for len(result) < limit && attempts < maxAttempts {
		attempts++
		keys := d.RandomKeys(1)
		if len(keys) == 0 {
			break
		}
		k := keys[0]
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		result = append(result, k)
	}
	return result
}

func (d *ConcurrentDict) Clear() {
	for _, s := range d.shards {
		s.mu.Lock()
		s.m = make(map[string]interface{})
		s.mu.Unlock()
	}
	atomic.StoreInt32(&d.count, 0)
}

// Scan performs a cursor-based incremental scan over the dict's keys in
// sorted order. It returns the next cursor (0 once exhausted) and up to
// count keys. Unlike Redis's reverse-binary cursor over a rehashing table,
// the cursor is a flat index into that sorted key list, which is stable
// across calls while the dict is unchanged.
func (d *ConcurrentDict) Scan(cursor uint64, count int) (uint64, []string) {
	allKeys := d.Keys()
	sort.Strings(allKeys)
	if cursor >= uint64(len(allKeys)) {
		return 0, nil
	}
	end := cursor + uint64(count)
	if end >= uint64(len(allKeys)) {
		return 0, allKeys[cursor:]
	}
	return end, allKeys[cursor:end]
}
