// Package rdb implements the DUMP/RESTORE wire format: a self-contained
// encoding of one key's typed value plus a version and CRC64 footer, the
// same envelope shape real Redis's DUMP command produces. It backs the
// DUMP/RESTORE commands directly and MIGRATE's synchronous peer
// connection, which sends this exact payload as the RESTORE argument on
// the other side (cluster/migrate.go).
//
// Full RDB snapshot files (the on-disk format SAVE/BGSAVE would produce)
// are out of scope here — SPEC_FULL.md names the RDB codec as an
// external collaborator, not a component this repository implements; only
// the single-value DUMP/RESTORE envelope is built.
package rdb

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc64"
	"math"

	"github.com/alsatianco/peadb/datastruct/dict"
	"github.com/alsatianco/peadb/datastruct/list"
	"github.com/alsatianco/peadb/datastruct/set"
	"github.com/alsatianco/peadb/datastruct/sortedset"
	"github.com/alsatianco/peadb/datastruct/stream"
)

const (
	typeString byte = iota
	typeList
	typeHash
	typeSet
	typeZSet
	typeStream
)

const dumpVersion uint16 = 1

// crcTable uses the standard library's ISO polynomial rather than real
// Redis's Jones polynomial: this footer only ever needs to validate a
// payload this same codec produced, between peadb nodes, so there is no
// wire-compatibility reason to hand-roll the Jones variant the way
// cluster/crc16.go has to hand-roll CRC16/XMODEM (no stdlib table for
// that one exists at all).
var crcTable = crc64.MakeTable(crc64.ISO)

// Dump serializes value — one of the concrete types
// interface/database.DataEntity.Data can hold — into a DUMP-format
// payload: type tag, encoded body, 2-byte version, 8-byte CRC64 of
// everything before it.
func Dump(value interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, value); err != nil {
		return nil, err
	}
	out := buf.Bytes()
	var verBuf [2]byte
	binary.LittleEndian.PutUint16(verBuf[:], dumpVersion)
	out = append(out, verBuf[:]...)
	var crcBuf [8]byte
	binary.LittleEndian.PutUint64(crcBuf[:], crc64.Checksum(out, crcTable))
	return append(out, crcBuf[:]...), nil
}

// Restore validates data's CRC64 footer and decodes its payload back into
// one of the concrete value types Dump accepts.
func Restore(data []byte) (interface{}, error) {
	if len(data) < 10 {
		return nil, errors.New("ERR DUMP payload version or checksum are wrong")
	}
	body := data[:len(data)-8]
	wantCrc := binary.LittleEndian.Uint64(data[len(data)-8:])
	if crc64.Checksum(body, crcTable) != wantCrc {
		return nil, errors.New("ERR DUMP payload version or checksum are wrong")
	}
	payload := body[:len(body)-2]
	return decodeValue(bytes.NewReader(payload))
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeFloat(buf *bytes.Buffer, f float64) {
	writeUint64(buf, math.Float64bits(f))
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := readFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if _, err := readFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readFloat(r *bytes.Reader) (float64, error) {
	bits, err := readUint64(r)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	n, err := r.Read(b)
	if err == nil && n < len(b) {
		err = errors.New("ERR Bad data format")
	}
	return n, err
}

func encodeValue(buf *bytes.Buffer, value interface{}) error {
	switch v := value.(type) {
	case []byte:
		buf.WriteByte(typeString)
		writeBytes(buf, v)
	case *list.LinkedList:
		buf.WriteByte(typeList)
		writeUint64(buf, uint64(v.Len()))
		v.ForEach(func(_ int, val interface{}) bool {
			writeBytes(buf, val.([]byte))
			return true
		})
	case dict.Dict:
		buf.WriteByte(typeHash)
		writeUint64(buf, uint64(v.Len()))
		v.ForEach(func(key string, val interface{}) bool {
			writeBytes(buf, []byte(key))
			writeBytes(buf, val.([]byte))
			return true
		})
	case *set.Set:
		buf.WriteByte(typeSet)
		writeUint64(buf, uint64(v.Len()))
		v.ForEach(func(member string) bool {
			writeBytes(buf, []byte(member))
			return true
		})
	case *sortedset.SortedSet:
		buf.WriteByte(typeZSet)
		writeUint64(buf, uint64(v.Len()))
		v.ForEach(0, v.Len(), false, func(e *sortedset.Element) bool {
			writeBytes(buf, []byte(e.Member))
			writeFloat(buf, e.Score)
			return true
		})
	case *stream.Stream:
		buf.WriteByte(typeStream)
		writeUint64(buf, uint64(v.Len()))
		for _, entry := range v.Entries {
			writeUint64(buf, entry.ID.Ms)
			writeUint64(buf, entry.ID.Seq)
			writeUint64(buf, uint64(len(entry.Fields)))
			for _, f := range entry.Fields {
				writeBytes(buf, []byte(f.Key))
				writeBytes(buf, []byte(f.Value))
			}
		}
	default:
		return errors.New("ERR unsupported value type for DUMP")
	}
	return nil
}

func decodeValue(r *bytes.Reader) (interface{}, error) {
	tag, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	switch tag {
	case typeString:
		return readBytes(r)
	case typeList:
		n, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		l := list.Make()
		for i := uint64(0); i < n; i++ {
			b, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			l.Add(b)
		}
		return l, nil
	case typeHash:
		n, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		d := dict.MakeSimple()
		for i := uint64(0); i < n; i++ {
			k, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			val, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			d.Put(string(k), val)
		}
		return d, nil
	case typeSet:
		n, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		s := set.Make()
		for i := uint64(0); i < n; i++ {
			m, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			s.Add(string(m))
		}
		return s, nil
	case typeZSet:
		n, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		zs := sortedset.Make()
		for i := uint64(0); i < n; i++ {
			m, err := readBytes(r)
			if err != nil {
				return nil, err
			}
			score, err := readFloat(r)
			if err != nil {
				return nil, err
			}
			zs.Add(string(m), score)
		}
		return zs, nil
	case typeStream:
		n, err := readUint64(r)
		if err != nil {
			return nil, err
		}
		st := stream.Make()
		for i := uint64(0); i < n; i++ {
			ms, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			seq, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			nf, err := readUint64(r)
			if err != nil {
				return nil, err
			}
			fields := make([]stream.Field, nf)
			for j := uint64(0); j < nf; j++ {
				k, err := readBytes(r)
				if err != nil {
					return nil, err
				}
				val, err := readBytes(r)
				if err != nil {
					return nil, err
				}
				fields[j] = stream.Field{Key: string(k), Value: string(val)}
			}
			if err := st.Add(stream.ID{Ms: ms, Seq: seq}, fields); err != nil {
				return nil, err
			}
		}
		return st, nil
	default:
		return nil, errors.New("ERR Bad data format")
	}
}
