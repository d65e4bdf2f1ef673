package redpipe

import (
	"github.com/zeebo/xxh3"
)

// ServerSelector picks which server handles a given routing key. It
// receives the key and the number of configured servers and returns an
// index into the server list.
type ServerSelector func(key string, serverCount int) int

// DefaultServerSelector hashes the key with xxh3 and maps it to a server
// with Jump consistent hashing, so adding or removing servers moves as
// few keys as possible.
func DefaultServerSelector(key string, serverCount int) int {
	return jumpHash(xxh3.HashString(key), serverCount)
}

// jumpHash implements Google's Jump consistent hash
// (https://arxiv.org/abs/1406.2294).
func jumpHash(key uint64, numBuckets int) int {
	if numBuckets <= 0 {
		return 0
	}

	var b int64 = -1
	var j int64

	for j < int64(numBuckets) {
		b = j
		key = key*2862933555777941757 + 1
		j = int64(float64(b+1) * (float64(int64(1)<<31) / float64((key>>33)+1)))
	}

	return int(b)
}