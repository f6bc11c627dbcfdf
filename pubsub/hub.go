// Package pubsub implements the PUBLISH/SUBSCRIBE/PSUBSCRIBE fan-out
// hub, kept on the teacher's "dict of channel -> subscriber list, guarded
// by striped locks" shape and extended with pattern subscriptions.
package pubsub

import (
	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/lock"
)

// Hub stores channel and pattern subscription relations.
type Hub struct {
	subs        dict.Dict // channel -> *list.LinkedList of redis.Connection
	patternSubs dict.Dict // pattern -> *list.LinkedList of redis.Connection
	subsLocker  *lock.Locks
}

// MakeHub creates a new, empty Hub.
func MakeHub() *Hub {
	return &Hub{
		subs:        dict.MakeConcurrent(4),
		patternSubs: dict.MakeConcurrent(4),
		subsLocker:  lock.Make(16),
	}
}
