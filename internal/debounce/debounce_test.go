package debounce

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu  sync.Mutex
	got []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.got = append(r.got, s)
	r.mu.Unlock()
}

func (r *recorder) values() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.got...)
}

func TestOnlyLatestValueFires(t *testing.T) {
	var rec recorder
	d := New(30*time.Millisecond, rec.add)
	for _, s := range []string{"r", "re", "red"} {
		d.Trigger(s)
		time.Sleep(5 * time.Millisecond)
	}
	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"red"}, rec.values())
	assert.False(t, d.Pending())
}

func TestQuietWindowsFireSeparately(t *testing.T) {
	var rec recorder
	d := New(10*time.Millisecond, rec.add)
	d.Trigger("a")
	require.Eventually(t, func() bool { return len(rec.values()) == 1 }, time.Second, 2*time.Millisecond)
	d.Trigger("b")
	require.Eventually(t, func() bool { return len(rec.values()) == 2 }, time.Second, 2*time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, rec.values())
}

func TestFlush(t *testing.T) {
	var rec recorder
	d := New(time.Hour, rec.add)
	assert.False(t, d.Flush())
	d.Trigger("lip")
	assert.True(t, d.Pending())
	assert.True(t, d.Flush())
	assert.Equal(t, []string{"lip"}, rec.values())
	assert.False(t, d.Flush())
}

func TestStopDropsPending(t *testing.T) {
	var rec recorder
	d := New(10*time.Millisecond, rec.add)
	d.Trigger("x")
	d.Stop()
	d.Trigger("y")
	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, rec.values())
	assert.False(t, d.Flush())
}
