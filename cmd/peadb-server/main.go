// Command peadb-server starts the RESP-compatible store, wiring config
// loading, logging, the keyspace engine, and the gnet event loop the
// way the teacher's prototype cmd entrypoint was headed before it
// stalled on an unrelated skip-list demo.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alsatianco/peadb/config"
	"github.com/alsatianco/peadb/database"
	"github.com/alsatianco/peadb/lib/logger"
	"github.com/alsatianco/peadb/server"
)

func main() {
	configPath := flag.String("config", "", "path to a redis.conf-style config file")
	port := flag.Int("port", 0, "listening port")
	bind := flag.String("bind", "", "listening address")
	loglevel := flag.String("loglevel", "", "error|warn|info|debug")
	dir := flag.String("dir", "", "working directory for persisted files")
	dbfilename := flag.String("dbfilename", "", "RDB snapshot filename")
	replicaof := flag.String("replicaof", "", "\"host port\" of a master to replicate from at startup")
	flag.Parse()

	if *configPath != "" {
		if _, err := config.Load(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "peadb: failed to load config %s: %v\n", *configPath, err)
			os.Exit(1)
		}
	}
	if *port != 0 {
		config.Properties.Port = *port
	}
	if *bind != "" {
		config.Properties.Bind = *bind
	}
	if *loglevel != "" {
		config.Properties.LogLevel = *loglevel
	}
	if *dir != "" {
		config.Properties.Dir = *dir
	}
	if *dbfilename != "" {
		config.Properties.RDBFilename = *dbfilename
	}

	logger.Setup(logger.Settings{
		Level:    config.Properties.LogLevel,
		Filename: config.Properties.LogFile,
	})

	engine := database.NewStandaloneEngine()
	defer engine.Close()

	if *replicaof != "" {
		parts := strings.Fields(*replicaof)
		if len(parts) != 2 {
			fmt.Fprintf(os.Stderr, "peadb: --replicaof must be \"host port\"\n")
			os.Exit(1)
		}
		masterPort, err := strconv.Atoi(parts[1])
		if err != nil {
			fmt.Fprintf(os.Stderr, "peadb: invalid --replicaof port %q\n", parts[1])
			os.Exit(1)
		}
		engine.ReplicaOf(parts[0], masterPort)
	}

	if err := server.ListenAndServe(engine, config.Properties); err != nil {
		logger.Errorf("peadb: server exited: %v", err)
		os.Exit(1)
	}
}
