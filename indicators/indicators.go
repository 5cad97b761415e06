// Package indicators provides the technical series the signal strategies
// consume. All functions take a chronologically ascending price series and
// return a series of equal length, with NaN for slots inside the warmup
// window. Callers must NaN-check before acting on a value.
package indicators

import "math"

// SMA returns the simple moving average of values over period. Windows that
// contain a NaN input (e.g. a derived series still inside its own warmup)
// stay NaN.
func SMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	for i := period - 1; i < len(values); i++ {
		sum := 0.0
		valid := true
		for j := i - period + 1; j <= i; j++ {
			if math.IsNaN(values[j]) {
				valid = false
				break
			}
			sum += values[j]
		}
		if valid {
			out[i] = sum / float64(period)
		}
	}
	return out
}

// EMA returns the exponential moving average of values with the standard
// span smoothing 2/(period+1), seeded with the first value.
func EMA(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) == 0 {
		return out
	}

	alpha := 2.0 / float64(period+1)
	ema := values[0]
	out[0] = ema
	for i := 1; i < len(values); i++ {
		ema = (values[i]-ema)*alpha + ema
		out[i] = ema
	}
	return out
}

// RSI returns the relative strength index over period, using simple moving
// averages of gains and losses.
func RSI(values []float64, period int) []float64 {
	out := nanSeries(len(values))
	if period <= 0 || len(values) < period+1 {
		return out
	}

	gains := make([]float64, len(values))
	losses := make([]float64, len(values))
	for i := 1; i < len(values); i++ {
		delta := values[i] - values[i-1]
		if delta > 0 {
			gains[i] = delta
		} else {
			losses[i] = -delta
		}
	}

	avgGain := SMA(gains[1:], period)
	avgLoss := SMA(losses[1:], period)

	for i := range avgGain {
		if math.IsNaN(avgGain[i]) || math.IsNaN(avgLoss[i]) {
			continue
		}
		idx := i + 1
		if avgLoss[i] == 0 {
			out[idx] = 100
			continue
		}
		rs := avgGain[i] / avgLoss[i]
		out[idx] = 100 - (100 / (1 + rs))
	}
	return out
}

// Bollinger returns the middle band (SMA), upper and lower bands at k
// standard deviations.
func Bollinger(values []float64, period int, k float64) (middle, upper, lower []float64) {
	middle = SMA(values, period)
	upper = nanSeries(len(values))
	lower = nanSeries(len(values))

	for i := period - 1; i < len(values); i++ {
		if math.IsNaN(middle[i]) {
			continue
		}
		var sq float64
		for j := i - period + 1; j <= i; j++ {
			d := values[j] - middle[i]
			sq += d * d
		}
		// Sample standard deviation over the window.
		sd := math.Sqrt(sq / float64(period-1))
		upper[i] = middle[i] + k*sd
		lower[i] = middle[i] - k*sd
	}
	return middle, upper, lower
}

// MACD returns the MACD line, its signal line and the histogram for the
// given fast/slow/signal periods.
func MACD(values []float64, fast, slow, signal int) (macd, signalLine, hist []float64) {
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)

	macd = nanSeries(len(values))
	for i := range values {
		if math.IsNaN(emaFast[i]) || math.IsNaN(emaSlow[i]) {
			continue
		}
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signalLine = EMA(macd, signal)
	hist = nanSeries(len(values))
	for i := range values {
		if math.IsNaN(macd[i]) || math.IsNaN(signalLine[i]) {
			continue
		}
		hist[i] = macd[i] - signalLine[i]
	}
	return macd, signalLine, hist
}

func nanSeries(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = math.NaN()
	}
	return out
}
