// Package parser turns raw RESP bytes into redis.Reply values (used for
// AOF replay and replica streams) and, via ParseFrame, into bare command
// argument slices for the event-loop's non-blocking socket reads.
package parser

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"runtime/debug"
	"strconv"

	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/lib/logger"
	"github.com/alsatianco/peadb/redis/protocol"
)

// Payload carries one parsed reply or the error that ended the stream.
type Payload struct {
	Data redis.Reply
	Err  error
}

// ParseStream parses everything reader yields, asynchronously.
func ParseStream(reader io.Reader) <-chan *Payload {
	ch := make(chan *Payload)
	go parse0(reader, ch)
	return ch
}

// ParseBytes parses a closed byte slice and returns every reply found.
func ParseBytes(data []byte) ([]redis.Reply, error) {
	ch := make(chan *Payload)
	reader := bytes.NewReader(data)
	go parse0(reader, ch)
	var results []redis.Reply
	for payload := range ch {
		if payload == nil {
			return nil, errors.New("no protocol")
		}
		if payload.Err != nil {
			if payload.Err == io.EOF {
				break
			}
			return nil, payload.Err
		}
		results = append(results, payload.Data)
	}
	return results, nil
}

// ParseOne parses the first reply found in data.
func ParseOne(data []byte) (redis.Reply, error) {
	ch := make(chan *Payload)
	reader := bytes.NewReader(data)
	go parse0(reader, ch)
	payload := <-ch
	if payload == nil {
		return nil, errors.New("no protocol")
	}
	return payload.Data, payload.Err
}

func parse0(rawReader io.Reader, ch chan<- *Payload) {
	defer func() {
		if err := recover(); err != nil {
			logger.Error(err, string(debug.Stack()))
		}
	}()

	reader := bufio.NewReader(rawReader)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			ch <- &Payload{Err: err}
			close(ch)
			return
		}
		length := len(line)
		if length <= 2 || line[length-2] != '\r' {
			continue
		}
		line = bytes.TrimSuffix(line, []byte{'\r', '\n'})
		switch line[0] {
		case '+':
			ch <- &Payload{Data: protocol.MakeStatusReply(string(line[1:]))}
		case '-':
			ch <- &Payload{Data: protocol.MakeErrReply(string(line[1:]))}
		case ':':
			value, err := strconv.ParseInt(string(line[1:]), 10, 64)
			if err != nil {
				protocolError(ch, "illegal number "+string(line[1:]))
				continue
			}
			ch <- &Payload{Data: protocol.MakeIntReply(value)}
		case '$':
			err = parseBulkString(line, reader, ch)
			if err != nil {
				ch <- &Payload{Err: err}
				close(ch)
				return
			}
		case '*':
			err = parseArray(line, reader, ch)
			if err != nil {
				ch <- &Payload{Err: err}
				close(ch)
				return
			}
		default:
			args := bytes.Split(line, []byte{' '})
			ch <- &Payload{Data: protocol.MakeMultiBulkReply(args)}
		}
	}
}

func parseBulkString(header []byte, reader *bufio.Reader, ch chan<- *Payload) error {
	strLen, err := strconv.ParseInt(string(header[1:]), 10, 64)
	if err != nil || strLen < -1 {
		protocolError(ch, "illegal bulk string header: "+string(header))
		return nil
	} else if strLen == -1 {
		ch <- &Payload{Data: protocol.MakeNullBulkReply()}
		return nil
	}
	body := make([]byte, strLen+2)
	_, err = io.ReadFull(reader, body)
	if err != nil {
		return err
	}
	ch <- &Payload{Data: protocol.MakeBulkReply(body[:len(body)-2])}
	return nil
}

func parseArray(header []byte, reader *bufio.Reader, ch chan<- *Payload) error {
	nStrs, err := strconv.ParseInt(string(header[1:]), 10, 64)
	if err != nil || nStrs < 0 {
		protocolError(ch, "illegal array header "+string(header[1:]))
		return nil
	} else if nStrs == 0 {
		ch <- &Payload{Data: protocol.MakeEmptyMultiBulkReply()}
		return nil
	}

	lines := make([][]byte, 0, nStrs)
	for i := int64(0); i < nStrs; i++ {
		var line []byte
		line, err = reader.ReadBytes('\n')
		if err != nil {
			return err
		}
		length := len(line)
		if length < 4 || line[length-2] != '\r' || line[0] != '$' {
			protocolError(ch, "illegal bulk string header "+string(line))
			break
		}
		strLen, err := strconv.ParseInt(string(line[1:length-2]), 10, 64)
		if err != nil || strLen < -1 {
			protocolError(ch, "illegal bulk string length "+string(line))
			break
		} else if strLen == -1 {
			lines = append(lines, []byte{})
		} else {
			body := make([]byte, strLen+2)
			_, err := io.ReadFull(reader, body)
			if err != nil {
				return err
			}
			lines = append(lines, body[:len(body)-2])
		}
	}
	ch <- &Payload{Data: protocol.MakeMultiBulkReply(lines)}
	return nil
}

func protocolError(ch chan<- *Payload, msg string) {
	ch <- &Payload{Err: errors.New("protocol error: " + msg)}
}

// ErrIncomplete signals ParseFrame needs more bytes before it can decode
// a full command; the caller should keep buf and wait for the next read.
var ErrIncomplete = errors.New("incomplete frame")

// ParseFrame decodes one command (RESP array-of-bulk-strings, or an
// inline command for clients too simple to speak RESP) from the head of
// buf without blocking, returning the argument list and how many bytes
// it consumed. gnet's React callback calls this in a loop: each
// consumed prefix is sliced off, and a returned ErrIncomplete means
// "wait for more data, don't slice anything yet."
func ParseFrame(buf []byte) (args [][]byte, consumed int, err error) {
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}
	if buf[0] != '*' {
		return parseInlineFrame(buf)
	}
	return parseArrayFrame(buf)
}

func parseInlineFrame(buf []byte) ([][]byte, int, error) {
	idx := bytes.IndexByte(buf, '\n')
	if idx < 0 {
		if len(buf) > 64*1024 {
			return nil, 0, protocol.MakeProtocolErrReply("too big inline request")
		}
		return nil, 0, ErrIncomplete
	}
	line := buf[:idx+1]
	trimmed := bytes.TrimRight(line, "\r\n")
	if len(trimmed) == 0 {
		return [][]byte{}, idx + 1, nil
	}
	return bytes.Fields(trimmed), idx + 1, nil
}

func parseArrayFrame(buf []byte) ([][]byte, int, error) {
	headerEnd := bytes.IndexByte(buf, '\n')
	if headerEnd < 0 {
		return nil, 0, ErrIncomplete
	}
	header := buf[:headerEnd+1]
	if len(header) < 4 || header[len(header)-2] != '\r' {
		return nil, 0, protocol.MakeProtocolErrReply("invalid multibulk length")
	}
	nStrs, err := strconv.ParseInt(string(header[1:len(header)-2]), 10, 64)
	if err != nil || nStrs < 0 {
		return nil, 0, protocol.MakeProtocolErrReply("invalid multibulk length")
	}
	pos := headerEnd + 1
	if nStrs == 0 {
		return [][]byte{}, pos, nil
	}

	args := make([][]byte, 0, nStrs)
	for i := int64(0); i < nStrs; i++ {
		if pos >= len(buf) {
			return nil, 0, ErrIncomplete
		}
		lineEnd := bytes.IndexByte(buf[pos:], '\n')
		if lineEnd < 0 {
			return nil, 0, ErrIncomplete
		}
		lineEnd += pos
		line := buf[pos : lineEnd+1]
		if len(line) < 4 || line[0] != '$' || line[len(line)-2] != '\r' {
			return nil, 0, protocol.MakeProtocolErrReply("expected '$', got something else")
		}
		strLen, err := strconv.ParseInt(string(line[1:len(line)-2]), 10, 64)
		if err != nil || strLen < 0 {
			return nil, 0, protocol.MakeProtocolErrReply("invalid bulk length")
		}
		bodyStart := lineEnd + 1
		bodyEnd := bodyStart + int(strLen)
		if bodyEnd+2 > len(buf) {
			return nil, 0, ErrIncomplete
		}
		args = append(args, buf[bodyStart:bodyEnd])
		pos = bodyEnd + 2
	}
	return args, pos, nil
}
