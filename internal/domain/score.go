package domain

import "math"

// SeverityScore rates one bucket from its level statistics and mean axis
// displacements. A zero mean returns 0 when max and std are also zero and
// max+std otherwise. NaN inputs yield NaN; the result is never clamped.
func SeverityScore(mean, max, std, dispX, dispY, dispZ float64) float64 {
	severity, _, _ := severityTerms(mean, max, std, dispX, dispY, dispZ)
	return severity
}

// severityTerms returns the severity with its velocity score and mean
// displacement. The intermediate terms are persisted alongside the score.
func severityTerms(mean, max, std, dispX, dispY, dispZ float64) (severity, velocityScore, meanDisp float64) {
	meanDisp = MeanDisplacement(dispX, dispY, dispZ)
	if mean == 0 {
		if max == 0 && std == 0 {
			return 0, 0, meanDisp
		}
		return max + std, max + std, meanDisp
	}

	velocityScore = VelocityScore(mean, max, std)
	dispFactor := (meanDisp / mean) * 0.5
	return velocityScore * (1 + dispFactor), velocityScore, meanDisp
}

// VelocityScore weights the mean level by how far the peak and spread exceed it.
// mean must be non-zero.
func VelocityScore(mean, max, std float64) float64 {
	peak := 0.0
	switch {
	case math.IsNaN(max):
		peak = math.NaN()
	case max > mean:
		peak = (max/mean - 1) * 0.5
	}
	variability := std / mean
	return mean * (1 + peak) * (1 + variability)
}

// MeanDisplacement is the average of the three axis displacement means.
func MeanDisplacement(dispX, dispY, dispZ float64) float64 {
	return (dispX + dispY + dispZ) / 3
}
