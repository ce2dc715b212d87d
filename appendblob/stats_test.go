package appendblob

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStats(t *testing.T) {
	stats := NewStats()
	assert.Equal(t, time.Duration(0), stats.Average())

	stats.Update(100*time.Millisecond, 10)
	stats.Update(300*time.Millisecond, 20)
	stats.rotated()
	stats.created()
	stats.created()

	assert.Equal(t, 200*time.Millisecond, stats.Average())
	assert.Equal(t, int64(2), stats.Blocks())
	assert.Equal(t, int64(30), stats.Bytes())
	assert.Equal(t, int64(1), stats.Rotations())
	assert.Equal(t, int64(2), stats.Creations())
}
