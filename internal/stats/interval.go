package stats

import (
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// FailureRate is 1 - auto/scored. A run with nothing scored failed entirely.
func FailureRate(auto, scored float64) float64 {
	if scored == 0 {
		return 1
	}
	return 1 - auto/scored
}

// DefaultSeed seeds every resampling routine unless the caller overrides it.
const DefaultSeed = 42

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type BetaOptions struct {
	Samples int
	// Width is the probability mass the interval must hold.
	Width float64
	// Threshold is the failure rate below which a draw counts toward PBelow.
	Threshold float64
	Seed      uint64
}

// DefaultBetaOptions draws 50,000 samples for a 95% interval and P(FR < 10%).
func DefaultBetaOptions() BetaOptions {
	return BetaOptions{Samples: 50_000, Width: 0.95, Threshold: 0.10, Seed: DefaultSeed}
}

type BetaInterval struct {
	Lower, Upper float64
	Width        float64
	// PBelow is the share of draws under the threshold.
	PBelow float64
}

// BetaHDI treats the failure rate as Beta(failures+1, successes+1) and reports the shortest interval holding opts.Width of a
// Monte-Carlo sample drawn by inverse-CDF sampling.
func BetaHDI(successes, trials int, opts BetaOptions) BetaInterval {
	def := DefaultBetaOptions()
	if opts.Samples <= 0 {
		opts.Samples = def.Samples
	}
	if opts.Width <= 0 || opts.Width > 1 {
		opts.Width = def.Width
	}
	if opts.Threshold == 0 {
		opts.Threshold = def.Threshold
	}
	nan := BetaInterval{Lower: math.NaN(), Upper: math.NaN(), Width: math.NaN(), PBelow: math.NaN()}
	if trials < 0 || successes < 0 || successes > trials {
		return nan
	}

	dist := distuv.Beta{Alpha: float64(trials-successes) + 1, Beta: float64(successes) + 1}
	rng := newRand(opts.Seed)
	samples := make([]float64, opts.Samples)
	below := 0
	for i := range samples {
		samples[i] = dist.Quantile(rng.Float64())
		if samples[i] < opts.Threshold {
			below++
		}
	}
	sort.Float64s(samples)

	lo, hi := shortestInterval(samples, opts.Width)
	return BetaInterval{Lower: lo, Upper: hi, Width: hi - lo, PBelow: float64(below) / float64(len(samples))}
}

// shortestInterval returns the narrowest [s[i], s[i+k-1]] covering width of the sorted sample.
func shortestInterval(sorted []float64, width float64) (lo, hi float64) {
	k := int(math.Ceil(width * float64(len(sorted))))
	if k < 1 {
		k = 1
	}
	if k > len(sorted) {
		k = len(sorted)
	}
	best := 0
	for i := 1; i+k-1 < len(sorted); i++ {
		if sorted[i+k-1]-sorted[i] < sorted[best+k-1]-sorted[best] {
			best = i
		}
	}
	return sorted[best], sorted[best+k-1]
}

type CI struct {
	Mean, Lower, Upper float64
}

// BootstrapMeanCI is the percentile bootstrap of the mean: resamples means of len(values) draws with replacement and cuts the
// sorted means at the level's tails. It is not bias-corrected.
func BootstrapMeanCI(values []float64, resamples int, level float64, seed uint64) CI {
	n := len(values)
	switch n {
	case 0:
		return CI{}
	case 1:
		return CI{Mean: values[0], Lower: values[0], Upper: values[0]}
	}
	if resamples <= 0 {
		resamples = 10_000
	}
	mean := stat.Mean(values, nil)
	alpha := (1 - level) / 2

	rng := newRand(seed)
	means := make([]float64, resamples)
	for b := range means {
		sum := 0.0
		for range n {
			sum += values[rng.IntN(n)]
		}
		means[b] = sum / float64(n)
	}
	sort.Float64s(means)

	lowerIdx := max(0, int(math.Floor(alpha*float64(resamples))))
	upperIdx := min(resamples-1, int(math.Ceil((1-alpha)*float64(resamples)))-1)
	return CI{Mean: mean, Lower: means[lowerIdx], Upper: means[upperIdx]}
}

// Percentile is the p-th percentile (0-100) of sorted values with linear interpolation between closest ranks.
func Percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return math.NaN()
	}
	h := (float64(len(sorted)) - 1) * p / 100
	lo := math.Floor(h)
	i := int(lo)
	if i+1 >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	return sorted[i] + (h-lo)*(sorted[i+1]-sorted[i])
}

type Spread struct {
	Lower, Upper, Width float64
}

// PercentileHDI is the [lo, hi] percentile band of values, the empirical interval reported per model.
func PercentileHDI(values []float64, lo, hi float64) Spread {
	if len(values) == 0 {
		return Spread{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	l, h := Percentile(sorted, lo), Percentile(sorted, hi)
	return Spread{Lower: l, Upper: h, Width: h - l}
}

// ShareBelow is the fraction of values strictly under threshold.
func ShareBelow(values []float64, threshold float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	n := 0
	for _, v := range values {
		if v < threshold {
			n++
		}
	}
	return float64(n) / float64(len(values))
}

// Variance is the sample variance (n-1 denominator).
func Variance(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}
	return stat.Variance(values, nil)
}

// Mean is the arithmetic mean, NaN for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	return stat.Mean(values, nil)
}

type LeveneResult struct {
	W, P float64
}

// Levene is the median-centered (Brown-Forsythe) test for equal variances. Empty groups are ignored; fewer than two
// remaining groups give NaN.
func Levene(groups ...[]float64) LeveneResult {
	nan := LeveneResult{W: math.NaN(), P: math.NaN()}
	var dev [][]float64
	total := 0
	for _, g := range groups {
		if len(g) == 0 {
			continue
		}
		sorted := append([]float64(nil), g...)
		sort.Float64s(sorted)
		med := Percentile(sorted, 50)
		z := make([]float64, len(g))
		for i, v := range g {
			z[i] = math.Abs(v - med)
		}
		dev = append(dev, z)
		total += len(g)
	}
	k := len(dev)
	if k < 2 || total <= k {
		return nan
	}

	grand := 0.0
	means := make([]float64, k)
	for i, z := range dev {
		means[i] = stat.Mean(z, nil)
		grand += means[i] * float64(len(z))
	}
	grand /= float64(total)

	between, within := 0.0, 0.0
	for i, z := range dev {
		d := means[i] - grand
		between += float64(len(z)) * d * d
		for _, v := range z {
			within += (v - means[i]) * (v - means[i])
		}
	}
	if within == 0 {
		return nan
	}
	w := float64(total-k) / float64(k-1) * between / within
	f := distuv.F{D1: float64(k - 1), D2: float64(total - k)}
	return LeveneResult{W: w, P: f.Survival(w)}
}
