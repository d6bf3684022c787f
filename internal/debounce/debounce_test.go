package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestScheduleCoalescesToLastCall(t *testing.T) {
	s := New()
	defer s.Stop()

	var (
		mu    sync.Mutex
		calls []int
		done  = make(chan struct{}, 1)
	)
	for i := 1; i <= 10; i++ {
		i := i
		s.Schedule("history", 30*time.Millisecond, func() {
			mu.Lock()
			calls = append(calls, i)
			mu.Unlock()
			done <- struct{}{}
		})
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("debounced call never ran")
	}
	time.Sleep(60 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{10}, calls)
}

func TestKeysAreIndependent(t *testing.T) {
	s := New()
	var history, settings atomic.Int32
	s.Schedule("history", time.Hour, func() { history.Add(1) })
	s.Schedule("settings", time.Hour, func() { settings.Add(1) })

	require.True(t, s.Flush("settings"))
	assert.Equal(t, int32(0), history.Load())
	assert.Equal(t, int32(1), settings.Load())
	assert.True(t, s.Pending("history"))

	s.Stop()
	assert.Equal(t, int32(1), history.Load())
	assert.False(t, s.Pending("history"))
}

func TestCancelDropsPendingCall(t *testing.T) {
	s := New()
	defer s.Stop()

	var n atomic.Int32
	s.Schedule("k", time.Hour, func() { n.Add(1) })
	require.True(t, s.Cancel("k"))
	assert.False(t, s.Cancel("k"))
	assert.False(t, s.Flush("k"))
	assert.Equal(t, int32(0), n.Load())
}

func TestScheduleAfterStopRunsImmediately(t *testing.T) {
	s := New()
	s.Stop()

	var n atomic.Int32
	s.Schedule("k", time.Hour, func() { n.Add(1) })
	assert.Equal(t, int32(1), n.Load())
}
