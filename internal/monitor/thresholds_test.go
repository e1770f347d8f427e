package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeThresholds(t *testing.T) {
	tests := []struct {
		name       string
		avgPrice   float64
		stopPct    float64
		targetPct  float64
		wantStop   float64
		wantTarget float64
	}{
		{"reference scenario", 100, 2, 5, 98, 105},
		{"zero percentages", 100, 0, 0, 100, 100},
		{"fractional price", 52.5, 10, 20, 47.25, 63},
		{"full stop-loss", 200, 100, 50, 0, 300},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := ComputeThresholds(tt.avgPrice, tt.stopPct, tt.targetPct)
			assert.InDelta(t, tt.wantStop, th.StopLoss, 1e-9)
			assert.InDelta(t, tt.wantTarget, th.Target, 1e-9)
		})
	}
}

func TestThresholdsBracketEntryPrice(t *testing.T) {
	prices := []float64{0.05, 1, 99.95, 1250, 100000}
	percents := []float64{0, 0.5, 2, 5, 25, 100}

	for _, p := range prices {
		for _, s := range percents {
			for _, tgt := range percents {
				th := ComputeThresholds(p, s, tgt)
				assert.LessOrEqual(t, th.StopLoss, p)
				assert.GreaterOrEqual(t, th.Target, p)
			}
		}
	}
}
