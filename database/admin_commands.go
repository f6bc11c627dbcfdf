package database

import (
	"reflect"
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/interface/redis"
	"github.com/alsatianco/peadb/redis/protocol"
)

func execFlushAll(db *DB, args [][]byte) redis.Reply {
	db.Flush()
	return protocol.MakeOkReply()
}

// execConfig implements the subset of CONFIG GET/SET that reads and
// writes config.Properties' cfg-tagged fields via reflection, the same
// mechanism config.Load uses to populate them from the config file.
func execConfig(db *DB, args [][]byte) redis.Reply {
	if len(args) < 2 {
		return protocol.MakeArgNumErrReply("config")
	}
	sub := strings.ToUpper(string(args[0]))
	switch sub {
	case "GET":
		return configGet(string(args[1]))
	case "SET":
		if len(args) != 3 {
			return protocol.MakeArgNumErrReply("config")
		}
		return configSet(string(args[1]), string(args[2]))
	default:
		return protocol.MakeErrReply("ERR unknown CONFIG subcommand")
	}
}

func configGet(pattern string) redis.Reply {
	v := reflect.ValueOf(config.Properties).Elem()
	t := v.Type()
	var result [][]byte
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("cfg")
		if tag == "" {
			continue
		}
		if !strings.EqualFold(tag, pattern) {
			continue
		}
		result = append(result, []byte(tag), []byte(formatFieldValue(v.Field(i))))
	}
	return protocol.MakeMultiBulkReply(result)
}

func formatFieldValue(v reflect.Value) string {
	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Bool:
		if v.Bool() {
			return "yes"
		}
		return "no"
	case reflect.Int:
		return strconv.FormatInt(v.Int(), 10)
	default:
		return ""
	}
}

func configSet(key, value string) redis.Reply {
	v := reflect.ValueOf(config.Properties).Elem()
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("cfg")
		if !strings.EqualFold(tag, key) {
			continue
		}
		field := v.Field(i)
		if !field.CanSet() {
			break
		}
		switch field.Kind() {
		case reflect.String:
			field.SetString(value)
		case reflect.Bool:
			field.SetBool(strings.EqualFold(value, "yes") || value == "1")
		case reflect.Int:
			n, err := strconv.Atoi(value)
			if err != nil {
				return protocol.MakeErrReply("ERR Invalid argument '" + value + "' for CONFIG SET '" + key + "'")
			}
			field.SetInt(int64(n))
		}
		return protocol.MakeOkReply()
	}
	return protocol.MakeErrReply("ERR unknown config parameter '" + key + "'")
}

func init() {
	RegisterCommand("flushall", execFlushAll, noPrepare, nil, -1, flagWrite)
	RegisterCommand("config", execConfig, noPrepare, nil, -3, flagSpecial)
}
