package agent

import "time"

// Outcome maps an execution result to [0,1]: 1 for success within the
// expected latency, expected/actual for a slow success, 0 for failure.
func Outcome(success bool, latency, expected time.Duration) float64 {
	if !success {
		return 0
	}
	if expected <= 0 || latency <= expected {
		return 1
	}
	return float64(expected) / float64(latency)
}

// UpdateScore applies the exponential moving average
// score' = alpha*outcome + (1-alpha)*score.
func UpdateScore(score, outcome, alpha float64) float64 {
	if alpha <= 0 || alpha > 1 {
		return score
	}
	return alpha*outcome + (1-alpha)*score
}
