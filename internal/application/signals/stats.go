package signals

import "math"

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// stdev es la desviación estándar muestral (n-1). Con menos de dos valores es 0.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func maxOf(xs []float64) float64 {
	m := math.Inf(-1)
	for _, x := range xs {
		m = math.Max(m, x)
	}
	return m
}

func minOf(xs []float64) float64 {
	m := math.Inf(1)
	for _, x := range xs {
		m = math.Min(m, x)
	}
	return m
}

// percentChange devuelve (to-from)/from en %, 0 si from no es positivo.
func percentChange(from, to float64) float64 {
	if from <= 0 {
		return 0
	}
	return (to - from) / from * 100
}

// stepChanges devuelve los cambios % periodo a periodo.
func stepChanges(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		out = append(out, percentChange(prices[i-1], prices[i]))
	}
	return out
}

// absStepChanges es stepChanges en valor absoluto.
func absStepChanges(prices []float64) []float64 {
	out := stepChanges(prices)
	for i := range out {
		out[i] = math.Abs(out[i])
	}
	return out
}

func clamp01(x float64) float64 {
	return math.Max(0, math.Min(1, x))
}
