package calc

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHitRatio(t *testing.T) {
	assert.Equal(t, 0.0, HitRatio(0, 0))
	assert.Equal(t, 0.9, HitRatio(900, 100))
	assert.Equal(t, 1.0, HitRatio(5, 0))
	assert.Equal(t, 0.0, HitRatio(0, 5))
}

func TestHitRatio_Bounds(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		h := r.Int63n(1 << 40)
		m := r.Int63n(1 << 40)
		got := HitRatio(h, m)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, 1.0)
		if h+m > 0 {
			assert.InDelta(t, float64(h)/float64(h+m), got, 1e-12)
		}
	}
}

func TestUtilizationPercentage(t *testing.T) {
	assert.InDelta(t, 9.765625, UtilizationPercentage(100, 1024), 1e-9)
	assert.Equal(t, 0.0, UtilizationPercentage(100, 0))
}

func TestCPUPercentage(t *testing.T) {
	assert.Equal(t, 0.0, CPUPercentage(10, 5, 0))
	assert.InDelta(t, 1.5, CPUPercentage(10, 5, 1000), 1e-9)
}

func TestAOFGrowthPercentage(t *testing.T) {
	assert.Equal(t, 0.0, AOFGrowthPercentage(100, 0))
	assert.InDelta(t, 50.0, AOFGrowthPercentage(150, 100), 1e-9)
	assert.InDelta(t, -50.0, AOFGrowthPercentage(50, 100), 1e-9)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-3, 0, 100))
	assert.Equal(t, 100.0, Clamp(130, 0, 100))
	assert.Equal(t, 42.0, Clamp(42, 0, 100))
	assert.Equal(t, 0.0, Clamp(math.NaN(), 0, 100))
}

func TestUptimeDays(t *testing.T) {
	assert.Equal(t, 2.0, UptimeDays(172800))
}
