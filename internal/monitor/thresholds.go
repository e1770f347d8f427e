package monitor

// Thresholds is the immutable stop-loss/target price pair derived once from a
// position's average entry price.
type Thresholds struct {
	StopLoss float64
	Target   float64
}

// ComputeThresholds derives the exit prices from the entry price and the two
// configured percentages. For any price p > 0 and percentages s, t >= 0 the
// result satisfies StopLoss <= p <= Target.
func ComputeThresholds(avgPrice, stopLossPercent, targetPercent float64) Thresholds {
	return Thresholds{
		StopLoss: avgPrice * (1 - stopLossPercent/100),
		Target:   avgPrice * (1 + targetPercent/100),
	}
}
