package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCellSetNotifiesSubscribers(t *testing.T) {
	c := NewCell(0)

	var seen []int
	unsub := c.Subscribe(func(v int) { seen = append(seen, v) })

	c.Set(1)
	c.Set(2)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, 2, c.Get())

	unsub()
	c.Set(3)
	assert.Equal(t, []int{1, 2}, seen)
	assert.Equal(t, 3, c.Get())
}

func TestCellUpdate(t *testing.T) {
	c := NewCell(10)

	var seen []int
	c.Subscribe(func(v int) { seen = append(seen, v) })

	got := c.Update(func(v int) int { return v + 5 })
	assert.Equal(t, 15, got)
	assert.Equal(t, []int{15}, seen)
}

func TestCellMultipleSubscribersInOrder(t *testing.T) {
	c := NewCell("")

	var order []string
	c.Subscribe(func(string) { order = append(order, "first") })
	c.Subscribe(func(string) { order = append(order, "second") })

	c.Set("x")
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestCellDoesNotReplayCurrentValue(t *testing.T) {
	c := NewCell(42)

	called := false
	c.Subscribe(func(int) { called = true })
	assert.False(t, called)
}
