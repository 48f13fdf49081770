package loading

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestService(t *testing.T) {
	s := New()
	var changes []bool
	s.Init(func(visible bool) { changes = append(changes, visible) })

	assert.False(t, s.Status())

	s.Show()
	s.Show()
	assert.True(t, s.Status())

	s.Hide()
	assert.True(t, s.Status())
	s.Hide()
	assert.False(t, s.Status())

	s.Hide()
	assert.False(t, s.Status())
	s.Show()
	assert.True(t, s.Status())

	s.Reset()
	assert.False(t, s.Status())

	assert.Equal(t, []bool{true, false, true, false}, changes)
}

func TestService_WithoutInit(t *testing.T) {
	s := New()
	s.Show()
	assert.True(t, s.Status())
	s.Hide()
	assert.False(t, s.Status())
}
