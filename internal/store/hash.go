package store

import (
	"encoding/hex"

	"github.com/minio/highwayhash"
)

var scriptHashKey = []byte("gofacts-run-log-script-hash-key!")

// ScriptHash fingerprints script source so runs of the same script can be
// grouped.
func ScriptHash(src []byte) string {
	sum := highwayhash.Sum64(src, scriptHashKey)
	var b [8]byte
	for i := range b {
		b[i] = byte(sum >> (56 - 8*i))
	}
	return hex.EncodeToString(b[:])
}
