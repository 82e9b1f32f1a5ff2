package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSteppingClock(t *testing.T) {
	c := NewSteppingClock()

	assert.Equal(t, Epoch.Add(time.Second), c.Now())
	assert.Equal(t, Epoch.Add(2*time.Second), c.Now())
	assert.Equal(t, Epoch.Add(3*time.Second), c.Now())
}

func TestSteppingClock_CurrentDoesNotAdvance(t *testing.T) {
	c := NewSteppingClock()
	c.Now()
	c.Now()

	assert.Equal(t, Epoch.Add(2*time.Second), c.Current())
	assert.Equal(t, c.Current(), c.Current())
}
