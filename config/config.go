// Package config holds the server's global, tag-driven configuration,
// generalizing the teacher's ServerProperties (cfg: tags were already
// present but no loader ever read them) with a reflect-based Load and
// the settings the spec's extra components (cluster, scripting,
// replication, maxmemory) need.
package config

import (
	"bufio"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/alsatianco/peadb/lib/utils"
)

var (
	ClusterMode    = "cluster"
	StandaloneMode = "standalone"
)

// ServerProperties holds every tunable the server reads at startup.
// Field tags name the matching directive in a redis.conf-style file.
type ServerProperties struct {
	RunID                 string `cfg:"runid"`
	Bind                  string `cfg:"bind"`
	Port                  int    `cfg:"port"`
	AppendOnly            bool   `cfg:"appendonly"`
	AppendFilename        string `cfg:"appendfilename"`
	AppendFsync           string `cfg:"appendfsync"`
	MaxClients            int    `cfg:"maxclients"`
	RequirePass           string `cfg:"requirepass"`
	Databases             int    `cfg:"databases"`
	RDBFilename           string `cfg:"dbfilename"`
	Dir                   string `cfg:"dir"`
	MasterAuth            string `cfg:"masterauth"`
	SlaveAnnouncePort     int    `cfg:"slave-announce-port"`
	SlaveAnnounceIP       string `cfg:"slave-announce-ip"`
	ReplTimeout           int    `cfg:"repl-timeout"`
	Maxmemory             string `cfg:"maxmemory"`
	LuaTimeLimit          int    `cfg:"lua-time-limit"`
	MinReplicasToWrite    int    `cfg:"min-replicas-to-write"`
	ReplicaServeStaleData string `cfg:"replica-serve-stale-data"`

	ClusterEnabled string   `cfg:"cluster-enabled"`
	Peers          []string `cfg:"peers"`
	Self           string   `cfg:"self"`

	LogLevel string `cfg:"loglevel"`
	LogFile  string `cfg:"logfile"`

	CfPath string `cfg:"cf,omitempty"`
}

type ServerInfo struct {
	StartUpTime time.Time
}

var Properties *ServerProperties

var EachTimeServerInfo *ServerInfo

func init() {
	EachTimeServerInfo = &ServerInfo{StartUpTime: time.Now()}
	Properties = &ServerProperties{
		Bind:                  "127.0.0.1",
		Port:                  6379,
		AppendOnly:            false,
		AppendFsync:           "everysec",
		Databases:             16,
		MaxClients:            10000,
		LuaTimeLimit:          5000,
		ReplicaServeStaleData: "yes",
		LogLevel:              "info",
		RunID:                 utils.RandString(40),
	}
}

// Load parses a redis.conf-style file ("directive value value...", '#'
// comments, blank lines ignored) into a fresh ServerProperties using the
// struct's cfg tags, the way the teacher's tags implied but never had a
// reader built for them.
func Load(configFilename string) (*ServerProperties, error) {
	file, err := os.Open(configFilename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	rawMap := make(map[string][]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		key := strings.ToLower(fields[0])
		rawMap[key] = append(rawMap[key], fields[1:]...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	props := &ServerProperties{}
	*props = *Properties
	props.CfPath = configFilename

	t := reflect.TypeOf(*props)
	v := reflect.ValueOf(props).Elem()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("cfg")
		if tag == "" {
			tag = strings.ToLower(field.Name)
		}
		tag = strings.Split(tag, ",")[0]
		values, ok := rawMap[tag]
		if !ok {
			continue
		}
		fieldVal := v.Field(i)
		switch field.Type.Kind() {
		case reflect.String:
			fieldVal.SetString(strings.Join(values, " "))
		case reflect.Int:
			n, err := strconv.Atoi(values[0])
			if err == nil {
				fieldVal.SetInt(int64(n))
			}
		case reflect.Bool:
			fieldVal.SetBool(strings.ToLower(values[0]) == "yes" || values[0] == "1")
		case reflect.Slice:
			fieldVal.Set(reflect.ValueOf(values))
		}
	}
	Properties = props
	return props, nil
}
