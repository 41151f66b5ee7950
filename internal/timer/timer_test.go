package timer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdvanceFiresInDeadlineOrder(t *testing.T) {
	m := NewManager()
	var fired []float64
	m.Schedule(3.0, func(now float64) { fired = append(fired, 3.0) })
	m.Schedule(1.0, func(now float64) { fired = append(fired, 1.0) })
	m.Schedule(2.0, func(now float64) { fired = append(fired, 2.0) })

	n := m.Advance(2.5, 100)
	assert.Equal(t, 2, n)
	assert.Equal(t, []float64{1.0, 2.0}, fired)
	assert.Equal(t, 1, m.Size())
}

func TestAdvanceRespectsBudget(t *testing.T) {
	m := NewManager()
	count := 0
	for i := 0; i < 5; i++ {
		m.Schedule(float64(i), func(now float64) { count++ })
	}
	n := m.Advance(10.0, 2)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, count)
	assert.Equal(t, 3, m.Size())
}

func TestCancelPreventsFiring(t *testing.T) {
	m := NewManager()
	fired := false
	h := m.Schedule(1.0, func(now float64) { fired = true })
	m.Cancel(h)
	n := m.Advance(10.0, 10)
	assert.Equal(t, 0, n)
	assert.False(t, fired)
	assert.Equal(t, 0, m.Size())
}

func TestScheduleDuringAdvanceCallback(t *testing.T) {
	m := NewManager()
	var order []int
	m.Schedule(1.0, func(now float64) {
		order = append(order, 1)
		m.Schedule(1.0, func(now float64) { order = append(order, 2) })
	})
	// A timer scheduled from within a firing callback, with a deadline
	// still <= now, is itself eligible within the same Advance call.
	n := m.Advance(10.0, 10)
	assert.Equal(t, 2, n)
	assert.Equal(t, []int{1, 2}, order)
}
