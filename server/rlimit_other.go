//go:build !unix

package server

// raiseFileLimit is a no-op outside unix targets; RLIMIT_NOFILE has no
// equivalent on the other platforms gnet builds for.
func raiseFileLimit(maxClients int) {}
