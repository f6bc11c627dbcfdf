package pubsub

import (
	"strconv"

	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/lib/utils"
	"github.com/alsatianco/peadb/lib/wildcard"
	"github.com/alsatianco/peadb/redis/protocol"
)

var (
	messageBytes        = []byte("message")
	pmessageBytes       = []byte("pmessage")
	unSubscribeNothing  = []byte("*3\r\n$11\r\nunsubscribe\r\n$-1\r\n:0\r\n")
	punSubscribeNothing = []byte("*3\r\n$13\r\npunsubscribe\r\n$-1\r\n:0\r\n")
)

func makeMsg(t string, channel string, code int64) []byte {
	return []byte("*3\r\n$" + strconv.Itoa(len(t)) + protocol.CRLF + t + protocol.CRLF +
		"$" + strconv.Itoa(len(channel)) + protocol.CRLF + channel + protocol.CRLF +
		":" + strconv.FormatInt(code, 10) + protocol.CRLF)
}

func subscribe0(hub *Hub, channel string, client redis.Connection) bool {
	client.Subscribe(channel)

	raw, ok := hub.subs.Get(channel)
	var subscribers *list.LinkedList
	if ok {
		subscribers, _ = raw.(*list.LinkedList)
	} else {
		subscribers = list.Make()
		hub.subs.Put(channel, subscribers)
	}
	if subscribers.Contains(func(a interface{}) bool { return a == client }) {
		return false
	}
	subscribers.Add(client)
	return true
}

func unsubscribe0(hub *Hub, channel string, client redis.Connection) bool {
	client.UnSubscribe(channel)

	raw, ok := hub.subs.Get(channel)
	if ok {
		subscribers, _ := raw.(*list.LinkedList)
		subscribers.RemoveAllByVal(func(a interface{}) bool { return utils.Equals(a, client) })
		if subscribers.Len() == 0 {
			hub.subs.Remove(channel)
		}
		return true
	}
	return false
}

func psubscribe0(hub *Hub, pattern string, client redis.Connection) bool {
	client.PSubscribe(pattern)

	raw, ok := hub.patternSubs.Get(pattern)
	var subscribers *list.LinkedList
	if ok {
		subscribers, _ = raw.(*list.LinkedList)
	} else {
		subscribers = list.Make()
		hub.patternSubs.Put(pattern, subscribers)
	}
	if subscribers.Contains(func(a interface{}) bool { return a == client }) {
		return false
	}
	subscribers.Add(client)
	return true
}

func punsubscribe0(hub *Hub, pattern string, client redis.Connection) bool {
	client.PUnSubscribe(pattern)

	raw, ok := hub.patternSubs.Get(pattern)
	if ok {
		subscribers, _ := raw.(*list.LinkedList)
		subscribers.RemoveAllByVal(func(a interface{}) bool { return utils.Equals(a, client) })
		if subscribers.Len() == 0 {
			hub.patternSubs.Remove(pattern)
		}
		return true
	}
	return false
}

// Subscribe adds c to each named channel.
func Subscribe(hub *Hub, c redis.Connection, args [][]byte) redis.Reply {
	channels := make([]string, len(args))
	for i, b := range args {
		channels[i] = string(b)
	}

	hub.subsLocker.Locks(channels...)
	defer hub.subsLocker.UnLocks(channels...)

	for _, channel := range channels {
		if subscribe0(hub, channel, c) {
			_, _ = c.Write(makeMsg("subscribe", channel, int64(c.SubsCount())))
		}
	}
	return &protocol.NoReply{}
}

// PSubscribe adds c to each pattern.
func PSubscribe(hub *Hub, c redis.Connection, args [][]byte) redis.Reply {
	patterns := make([]string, len(args))
	for i, b := range args {
		patterns[i] = string(b)
	}

	hub.subsLocker.Locks(patterns...)
	defer hub.subsLocker.UnLocks(patterns...)

	for _, pattern := range patterns {
		if psubscribe0(hub, pattern, c) {
			_, _ = c.Write(makeMsg("psubscribe", pattern, int64(len(c.GetPatterns()))))
		}
	}
	return &protocol.NoReply{}
}

// UnsubscribeAll removes c from every channel and pattern it holds.
func UnsubscribeAll(hub *Hub, c redis.Connection) {
	channels := c.GetChannels()
	hub.subsLocker.Locks(channels...)
	for _, channel := range channels {
		unsubscribe0(hub, channel, c)
	}
	hub.subsLocker.UnLocks(channels...)

	patterns := c.GetPatterns()
	hub.subsLocker.Locks(patterns...)
	for _, pattern := range patterns {
		punsubscribe0(hub, pattern, c)
	}
	hub.subsLocker.UnLocks(patterns...)
}

// UnSubscribe removes c from the named channels, or all of them if args
// is empty.
func UnSubscribe(hub *Hub, c redis.Connection, args [][]byte) redis.Reply {
	var channels []string
	if len(args) > 0 {
		channels = make([]string, len(args))
		for i, b := range args {
			channels[i] = string(b)
		}
	} else {
		channels = c.GetChannels()
	}

	hub.subsLocker.Locks(channels...)
	defer hub.subsLocker.UnLocks(channels...)

	if len(channels) == 0 {
		_, _ = c.Write(unSubscribeNothing)
		return &protocol.NoReply{}
	}

	for _, channel := range channels {
		if unsubscribe0(hub, channel, c) {
			_, _ = c.Write(makeMsg("unsubscribe", channel, int64(c.SubsCount())))
		}
	}
	return &protocol.NoReply{}
}

// PUnSubscribe removes c from the named patterns, or all of them if args
// is empty.
func PUnSubscribe(hub *Hub, c redis.Connection, args [][]byte) redis.Reply {
	var patterns []string
	if len(args) > 0 {
		patterns = make([]string, len(args))
		for i, b := range args {
			patterns[i] = string(b)
		}
	} else {
		patterns = c.GetPatterns()
	}

	hub.subsLocker.Locks(patterns...)
	defer hub.subsLocker.UnLocks(patterns...)

	if len(patterns) == 0 {
		_, _ = c.Write(punSubscribeNothing)
		return &protocol.NoReply{}
	}

	for _, pattern := range patterns {
		if punsubscribe0(hub, pattern, c) {
			_, _ = c.Write(makeMsg("punsubscribe", pattern, int64(len(c.GetPatterns()))))
		}
	}
	return &protocol.NoReply{}
}

// Channels returns active channel names, optionally filtered by a glob
// pattern, for PUBSUB CHANNELS.
func Channels(hub *Hub, pattern string) []string {
	var result []string
	hub.subs.ForEach(func(channel string, raw interface{}) bool {
		if pattern == "" || wildcard.IsMatch(pattern, channel) {
			result = append(result, channel)
		}
		return true
	})
	return result
}

// NumSub returns the subscriber count for each named channel, for
// PUBSUB NUMSUB.
func NumSub(hub *Hub, channels []string) map[string]int64 {
	result := make(map[string]int64, len(channels))
	for _, channel := range channels {
		raw, ok := hub.subs.Get(channel)
		if !ok {
			result[channel] = 0
			continue
		}
		subscribers, _ := raw.(*list.LinkedList)
		result[channel] = int64(subscribers.Len())
	}
	return result
}

// NumPat reports the number of distinct active pattern subscriptions,
// for PUBSUB NUMPAT.
func NumPat(hub *Hub) int64 {
	return int64(hub.patternSubs.Len())
}

// Publish delivers message to every direct subscriber of channel plus
// every pattern subscriber whose pattern matches it, returning the
// total number of receivers.
func Publish(hub *Hub, args [][]byte) redis.Reply {
	if len(args) != 2 {
		return protocol.MakeArgNumErrReply("publish")
	}
	channel := string(args[0])
	message := args[1]

	hub.subsLocker.Lock(channel)
	var delivered int64
	if raw, ok := hub.subs.Get(channel); ok {
		subscribers, _ := raw.(*list.LinkedList)
		subscribers.ForEach(func(i int, c interface{}) bool {
			client, _ := c.(redis.Connection)
			replyArgs := [][]byte{messageBytes, []byte(channel), message}
			_, _ = client.Write(protocol.MakeMultiBulkReply(replyArgs).ToBytes())
			delivered++
			return true
		})
	}
	hub.subsLocker.UnLock(channel)

	hub.patternSubs.ForEach(func(pattern string, raw interface{}) bool {
		if !wildcard.IsMatch(pattern, channel) {
			return true
		}
		subscribers, _ := raw.(*list.LinkedList)
		subscribers.ForEach(func(i int, c interface{}) bool {
			client, _ := c.(redis.Connection)
			replyArgs := [][]byte{pmessageBytes, []byte(pattern), []byte(channel), message}
			_, _ = client.Write(protocol.MakeMultiBulkReply(replyArgs).ToBytes())
			delivered++
			return true
		})
		return true
	})

	return protocol.MakeIntReply(delivered)
}
