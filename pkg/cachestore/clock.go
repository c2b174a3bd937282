package cachestore

import "time"

// Clock abstracts wall-clock access so freshness/staleness windows can be
// tested deterministically.
type Clock interface {
	NowMS() uint64
}

// SystemClock is the default Clock backed by time.Now().
type SystemClock struct{}

func (SystemClock) NowMS() uint64 {
	return uint64(time.Now().UnixMilli())
}
