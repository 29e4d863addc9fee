package analyzer

import "math"

// olsFit runs ordinary least squares of y against x. ok is false when the
// fit is degenerate (fewer than two points or zero variance in x); rsq is
// additionally undefined when y has zero variance, reported via rsqDefined.
func olsFit(x, y []float64) (slope, rsq float64, ok, rsqDefined bool) {
	n := len(x)
	if n < 2 || len(y) != n {
		return 0, 0, false, false
	}

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / float64(n)
	meanY := sumY / float64(n)

	var sxx, sxy, syy float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		dy := y[i] - meanY
		sxx += dx * dx
		sxy += dx * dy
		syy += dy * dy
	}
	if sxx == 0 {
		return 0, 0, false, false
	}
	slope = sxy / sxx
	if syy == 0 {
		// Perfectly flat series: slope is zero and R² has no meaning.
		return slope, 0, true, false
	}
	rsq = (sxy * sxy) / (sxx * syy)
	return slope, rsq, true, true
}

// consistency is the fraction of adjacent pairs that strictly increased.
func consistency(y []float64) float64 {
	if len(y) < 2 {
		return 0
	}
	up := 0
	for i := 1; i < len(y); i++ {
		if y[i] > y[i-1] {
			up++
		}
	}
	return float64(up) / float64(len(y)-1)
}

// autocorrelation at the given lag, guarded against zero variance.
func autocorrelation(y []float64, lag int) (float64, bool) {
	n := len(y)
	if lag < 1 || lag >= n {
		return 0, false
	}

	var sum float64
	for _, v := range y {
		sum += v
	}
	mean := sum / float64(n)

	var denom float64
	for _, v := range y {
		d := v - mean
		denom += d * d
	}
	if denom == 0 {
		return 0, false
	}

	var num float64
	for i := 0; i < n-lag; i++ {
		num += (y[i] - mean) * (y[i+lag] - mean)
	}
	return num / denom, true
}

// bestAutocorrelation scans lags 2..maxLag and returns the strongest value.
func bestAutocorrelation(y []float64, maxLag int) float64 {
	best := math.Inf(-1)
	found := false
	for lag := 2; lag <= maxLag; lag++ {
		if ac, ok := autocorrelation(y, lag); ok {
			found = true
			if ac > best {
				best = ac
			}
		}
	}
	if !found {
		return 0
	}
	return best
}

// localExtrema counts strict local maxima and minima of the series.
func localExtrema(y []float64) (maxima, minima int) {
	for i := 1; i < len(y)-1; i++ {
		if y[i] > y[i-1] && y[i] > y[i+1] {
			maxima++
		}
		if y[i] < y[i-1] && y[i] < y[i+1] {
			minima++
		}
	}
	return maxima, minima
}
