package ringchan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func drain[T any](rc *Channel[T]) []T {
	var got []T
	for {
		select {
		case v, ok := <-rc.C():
			if !ok {
				return got
			}
			got = append(got, v)
		default:
			return got
		}
	}
}

func TestForceSendDropsOldest(t *testing.T) {
	rc := New[int](3)
	dropped := 0
	for i := 0; i < 10; i++ {
		if rc.ForceSend(i) {
			dropped++
		}
	}
	assert.Equal(t, 7, dropped)
	assert.Equal(t, []int{7, 8, 9}, drain(rc))

	m := rc.GetMetrics()
	assert.EqualValues(t, 10, m.Written)
	assert.EqualValues(t, 7, m.Overwritten)
}

func TestCloseIsIdempotentAndStopsSends(t *testing.T) {
	rc := New[int](2)
	rc.ForceSend(1)
	rc.Close()
	rc.Close()

	assert.False(t, rc.ForceSend(2))
	assert.Equal(t, []int{1}, drain(rc))

	_, ok := <-rc.C()
	assert.False(t, ok)
	assert.EqualValues(t, 1, rc.GetMetrics().Written)
}

func TestNewPanicsOnZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}
