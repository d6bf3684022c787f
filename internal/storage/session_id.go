package storage

import (
	"strconv"
	"sync/atomic"
	"time"
)

var lastSessionID atomic.Int64

// NewSessionID 生成基于毫秒时间戳的会话 ID，同一进程内严格递增
// NewSessionID returns the current Unix time in milliseconds as a decimal
// string, bumped so ids are strictly increasing within the process.
func NewSessionID() string {
	for {
		now := time.Now().UnixMilli()
		last := lastSessionID.Load()
		if now <= last {
			now = last + 1
		}
		if lastSessionID.CompareAndSwap(last, now) {
			return strconv.FormatInt(now, 10)
		}
	}
}
