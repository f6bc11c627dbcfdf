//go:build unix

package server

import (
	"strconv"

	"golang.org/x/sys/unix"

	"github.com/alsatianco/peadb/lib/logger"
)

// raiseFileLimit tries to raise RLIMIT_NOFILE to maxClients plus enough
// headroom for internal listeners, the same ceiling real Redis's own
// startup checks against. Best-effort: a container without permission
// to raise its own hard limit just keeps whatever ulimit it started
// with, logged rather than treated as fatal.
func raiseFileLimit(maxClients int) {
	want := uint64(maxClients + 64)
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		logger.Warn("rlimit: could not read RLIMIT_NOFILE: " + err.Error())
		return
	}
	if limit.Cur >= want {
		return
	}
	target := want
	if limit.Max < target {
		target = limit.Max
	}
	limit.Cur = target
	if err := unix.Setrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		logger.Warn("rlimit: could not raise RLIMIT_NOFILE to " + strconv.FormatUint(target, 10) + ": " + err.Error())
	}
}
