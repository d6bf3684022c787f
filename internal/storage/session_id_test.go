package storage

import (
	"strconv"
	"testing"
)

func TestNewSessionIDStrictlyIncreasing(t *testing.T) {
	prev := int64(0)
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		n, err := strconv.ParseInt(id, 10, 64)
		if err != nil {
			t.Fatalf("id %q is not numeric: %v", id, err)
		}
		if n <= prev {
			t.Fatalf("id %d not greater than previous %d", n, prev)
		}
		prev = n
	}
}
