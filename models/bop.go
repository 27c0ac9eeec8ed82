package models

import (
	"math"

	"github.com/YuminosukeSato/xclf/core/model"
)

// utility is the set-size discount g(s) = delta/s - gamma/s^2.
func utility(s int, delta, gamma float64) float64 {
	if s < 1 {
		return math.Inf(-1)
	}
	f := float64(s)
	return delta/f - gamma/(f*f)
}

// bestPrefix returns the prefix of ranked (descending by value) maximizing
// g(s) times the summed probability of the prefix. The shortest prefix wins
// ties.
func bestPrefix(ranked []model.Prediction, delta, gamma float64) []model.Prediction {
	best, bestU := 0, math.Inf(-1)
	sum := 0.0
	for i, p := range ranked {
		sum += p.Value
		if u := utility(i+1, delta, gamma) * sum; u > bestU {
			best, bestU = i+1, u
		}
	}
	return ranked[:best]
}
