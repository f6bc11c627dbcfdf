package replication

import "crypto/rand"

const replIDChars = "abcdefghijklmnopqrstuvwxyz0123456789"

// GenerateID returns a 40-char replication ID, the same construction the
// teacher's replication.go used for its master_replid (a random byte per
// position folded into the digit/lowercase alphabet via modulo).
func GenerateID() string {
	b := make([]byte, 40)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	for i := range b {
		b[i] = replIDChars[int(b[i])%len(replIDChars)]
	}
	return string(b)
}
