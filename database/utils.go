package database

import (
	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/datastruct/set"
	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/datastruct/stream"
	"github.com/alsatianco/peadb/interface/database"
)

// typeName reports the Redis TYPE name for the value stored in a DataEntity.
func typeName(data interface{}) string {
	switch data.(type) {
	case []byte:
		return "string"
	case *list.LinkedList:
		return "list"
	case dict.Dict:
		return "hash"
	case *set.Set:
		return "set"
	case *sortedset.SortedSet:
		return "zset"
	case *stream.Stream:
		return "stream"
	default:
		return "none"
	}
}

// entityCopy makes a shallow value copy of entity's container so COPY and
// internal duplication commands don't alias the source key's structure.
func entityCopy(entity *database.DataEntity) *database.DataEntity {
	switch val := entity.Data.(type) {
	case []byte:
		cp := make([]byte, len(val))
		copy(cp, val)
		return &database.DataEntity{Data: cp}
	case *list.LinkedList:
		newList := list.Make()
		val.ForEach(func(i int, v interface{}) bool {
			newList.Add(v)
			return true
		})
		return &database.DataEntity{Data: newList}
	case dict.Dict:
		newDict := dict.MakeSimple()
		val.ForEach(func(field string, v interface{}) bool {
			newDict.Put(field, v)
			return true
		})
		return &database.DataEntity{Data: newDict}
	case *set.Set:
		newSet := set.Make()
		val.ForEach(func(member string) bool {
			newSet.Add(member)
			return true
		})
		return &database.DataEntity{Data: newSet}
	case *sortedset.SortedSet:
		newZSet := sortedset.Make()
		val.ForEach(0, val.Len(), false, func(e *sortedset.Element) bool {
			newZSet.Add(e.Member, e.Score)
			return true
		})
		return &database.DataEntity{Data: newZSet}
	default:
		return &database.DataEntity{Data: entity.Data}
	}
}
