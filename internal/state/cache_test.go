package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rise-fleet/rise/internal/state"
)

func TestPasswordCache_SetGetClear(t *testing.T) {
	c := state.NewPasswordCache()
	c.Set("host-1", []byte("hunter2"))
	c.Set("host-2", []byte("other"))

	assert.Equal(t, []byte("hunter2"), c.Get("host-1"))
	assert.Equal(t, []byte("other"), c.Get("host-2"))

	c.Clear("host-1")
	assert.Nil(t, c.Get("host-1"))
	assert.Equal(t, []byte("other"), c.Get("host-2"))
}

func TestPasswordCache_GetMissing(t *testing.T) {
	c := state.NewPasswordCache()
	assert.Nil(t, c.Get("nonexistent"))
}
