package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressSampler_Buckets(t *testing.T) {
	s := NewProgressSampler(25)

	var logged []int
	for _, p := range []int{0, 5, 10, 24, 25, 30, 49, 50, 74, 100, 100} {
		if s.ShouldLog(p, "rows") {
			logged = append(logged, p)
		}
	}
	assert.Equal(t, []int{0, 25, 50, 100}, logged)
}

func TestProgressSampler_StageChangeResets(t *testing.T) {
	s := NewProgressSampler(10)

	assert.True(t, s.ShouldLog(80, "rows"))
	assert.False(t, s.ShouldLog(85, "rows"))
	assert.True(t, s.ShouldLog(0, "aggregate"))
	assert.False(t, s.ShouldLog(5, " aggregate "))
}

func TestProgressSampler_Defaults(t *testing.T) {
	var nilSampler *ProgressSampler
	assert.True(t, nilSampler.ShouldLog(1, ""))
	nilSampler.Reset()

	s := NewProgressSampler(0)
	assert.True(t, s.ShouldLog(0, ""))
	assert.False(t, s.ShouldLog(9, ""))
	assert.True(t, s.ShouldLog(10, ""))

	s.Reset()
	assert.True(t, s.ShouldLog(10, ""))
}
