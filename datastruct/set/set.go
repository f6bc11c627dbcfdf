// Package set implements the Redis set type on top of datastruct/dict, the
// same "wrap a Dict, store nothing but presence" shape the teacher's
// datastruct.dict package was designed around for hashes.
package set

import "github.com/alsatianco/peadb/datastruct/dict"

type placeholder struct{}

var present = placeholder{}

// Set is an unordered collection of distinct members.
type Set struct {
	dict dict.Dict
}

// Make creates a Set, optionally pre-populated with members.
func Make(members ...string) *Set {
	s := &Set{dict: dict.MakeSimple()}
	for _, m := range members {
		s.Add(m)
	}
	return s
}

// Add inserts member, returning 1 if it was new, 0 if it already existed.
func (s *Set) Add(member string) int {
	return s.dict.Put(member, present)
}

// Remove deletes member, returning 1 if it existed, 0 otherwise.
func (s *Set) Remove(member string) int {
	return s.dict.Remove(member)
}

// Has reports whether member is present.
func (s *Set) Has(member string) bool {
	_, ok := s.dict.Get(member)
	return ok
}

// Len returns the member count.
func (s *Set) Len() int {
	return s.dict.Len()
}

// ToSlice returns all members in unspecified order.
func (s *Set) ToSlice() []string {
	return s.dict.Keys()
}

// ForEach iterates members; stop early by returning false.
func (s *Set) ForEach(consumer func(member string) bool) {
	s.dict.ForEach(func(key string, _ interface{}) bool {
		return consumer(key)
	})
}

// RandomMembers returns up to limit members, possibly with duplicates.
func (s *Set) RandomMembers(limit int) []string {
	return s.dict.RandomKeys(limit)
}

// RandomDistinctMembers returns up to limit distinct members.
func (s *Set) RandomDistinctMembers(limit int) []string {
	return s.dict.RandomDistinctKeys(limit)
}

// Intersect, Union and Diff support the SINTER/SUNION/SDIFF family even
// though spec.md's §4.2 set surface only names the single-set primitives;
// SPEC_FULL.md's domain-stack expansion keeps every original set operation
// in scope, so these are wired in for the multi-key variants.
func (s *Set) Intersect(other *Set) *Set {
	result := Make()
	if s.Len() > other.Len() {
		s, other = other, s
	}
	s.ForEach(func(member string) bool {
		if other.Has(member) {
			result.Add(member)
		}
		return true
	})
	return result
}

func (s *Set) Union(other *Set) *Set {
	result := Make()
	s.ForEach(func(member string) bool {
		result.Add(member)
		return true
	})
	other.ForEach(func(member string) bool {
		result.Add(member)
		return true
	})
	return result
}

func (s *Set) Diff(other *Set) *Set {
	result := Make()
	s.ForEach(func(member string) bool {
		if !other.Has(member) {
			result.Add(member)
		}
		return true
	})
	return result
}
