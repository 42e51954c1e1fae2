package clock_test

import (
	"testing"
	"time"

	"templeops/internal/clock"

	"github.com/stretchr/testify/assert"
)

func TestManual_SetAndAdvance(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	c := clock.NewManual(start)

	assert.Equal(t, start, c.Now())

	assert.Equal(t, start.Add(time.Minute), c.Advance(time.Minute))
	assert.Equal(t, start.Add(time.Minute), c.Now())

	later := start.AddDate(0, 0, 1)
	c.Set(later)
	assert.Equal(t, later, c.Now())
}

func TestFunc_Now(t *testing.T) {
	fixed := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	var c clock.Clock = clock.Func(func() time.Time { return fixed })

	assert.Equal(t, fixed, c.Now())
}
