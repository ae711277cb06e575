// Package stats implements the non-parametric tests and intervals used to compare skill-file conditions. Degenerate inputs
// yield NaN rather than errors so callers can sweep every (model, domain, condition) slice without guarding each one.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat/distuv"
)

// Magnitude is the Romano et al. label for |delta|.
type Magnitude string

const (
	Negligible  Magnitude = "negligible"
	Small       Magnitude = "small"
	Medium      Magnitude = "medium"
	Large       Magnitude = "large"
	NoMagnitude Magnitude = "n/a"
)

// Rank orders magnitudes from Negligible (0) to Large (3). NoMagnitude ranks -1.
func (m Magnitude) Rank() int {
	switch m {
	case Negligible:
		return 0
	case Small:
		return 1
	case Medium:
		return 2
	case Large:
		return 3
	}
	return -1
}

// Short is the abbreviated label used in tables.
func (m Magnitude) Short() string {
	if m == Negligible {
		return "negl."
	}
	return string(m)
}

// MagnitudeOf bands |delta| at 0.147, 0.33 and 0.474.
func MagnitudeOf(delta float64) Magnitude {
	if math.IsNaN(delta) {
		return NoMagnitude
	}
	switch d := math.Abs(delta); {
	case d < 0.147:
		return Negligible
	case d < 0.33:
		return Small
	case d < 0.474:
		return Medium
	}
	return Large
}

type EffectSize struct {
	Delta     float64
	Magnitude Magnitude
}

// CliffsDelta is (#(x>y) - #(x<y)) / (|x|·|y|) over every pair. Positive means x tends to be larger.
func CliffsDelta(x, y []float64) EffectSize {
	if len(x) == 0 || len(y) == 0 {
		return EffectSize{Delta: math.NaN(), Magnitude: NoMagnitude}
	}
	var more, less int
	for _, xi := range x {
		for _, yj := range y {
			switch {
			case xi > yj:
				more++
			case xi < yj:
				less++
			}
		}
	}
	delta := float64(more-less) / float64(len(x)*len(y))
	return EffectSize{Delta: delta, Magnitude: MagnitudeOf(delta)}
}

// Alternative is the hypothesis a rank test checks.
type Alternative int

const (
	TwoSided Alternative = iota
	// Greater tests whether x is stochastically larger than y.
	Greater
	Less
)

func (a Alternative) String() string {
	switch a {
	case Greater:
		return "greater"
	case Less:
		return "less"
	}
	return "two-sided"
}

// exactLimit is the largest sample size for which the exact U distribution is used.
const exactLimit = 8

type RankTest struct {
	// U is the statistic for x: the number of (x, y) pairs with x > y, ties counting one half.
	U float64
	P float64
}

// MannWhitneyU runs the Wilcoxon rank-sum test. Small tie-free samples use the exact null distribution; otherwise the
// normal approximation with tie and continuity correction is used.
func MannWhitneyU(x, y []float64, alt Alternative) RankTest {
	n1, n2 := len(x), len(y)
	if n1 == 0 || n2 == 0 {
		return RankTest{U: math.NaN(), P: math.NaN()}
	}

	ranks, tieTerm, tied := rank(append(append([]float64(nil), x...), y...))
	r1 := 0.0
	for _, r := range ranks[:n1] {
		r1 += r
	}
	u1 := r1 - float64(n1*(n1+1))/2
	u2 := float64(n1*n2) - u1

	var u float64
	switch alt {
	case Greater:
		u = u1
	case Less:
		u = u2
	default:
		u = math.Max(u1, u2)
	}

	var p float64
	if n1 <= exactLimit && n2 <= exactLimit && !tied {
		p = exactSurvival(int(math.Round(u)), n1, n2)
	} else {
		n := float64(n1 + n2)
		s := math.Sqrt(float64(n1*n2) / 12 * ((n + 1) - tieTerm/(n*(n-1))))
		if s == 0 || math.IsNaN(s) {
			return RankTest{U: u1, P: math.NaN()}
		}
		z := (u - float64(n1*n2)/2 - 0.5) / s
		p = distuv.UnitNormal.Survival(z)
	}
	if alt == TwoSided {
		p *= 2
	}
	return RankTest{U: u1, P: math.Min(math.Max(p, 0), 1)}
}

// rank assigns average ranks (1-based). tieTerm is Σ(t³-t) over tie groups.
func rank(values []float64) (ranks []float64, tieTerm float64, tied bool) {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] < values[idx[b]] })

	ranks = make([]float64, len(values))
	for i := 0; i < len(idx); {
		j := i + 1
		for j < len(idx) && values[idx[j]] == values[idx[i]] {
			j++
		}
		avg := float64(i+j+1) / 2
		for k := i; k < j; k++ {
			ranks[idx[k]] = avg
		}
		if t := float64(j - i); t > 1 {
			tieTerm += t*t*t - t
			tied = true
		}
		i = j
	}
	return ranks, tieTerm, tied
}

// exactSurvival is P(U >= k) under the null for sample sizes m and n.
func exactSurvival(k, m, n int) float64 {
	counts := uCounts(m, n)
	total, tail := 0.0, 0.0
	for u, c := range counts {
		total += c
		if u >= k {
			tail += c
		}
	}
	return tail / total
}

// uCounts[u] is the number of orderings of m x's and n y's whose U statistic is u.
func uCounts(m, n int) []float64 {
	// f[i][j] holds the counts for i x's and j y's.
	f := make([][][]float64, m+1)
	for i := range f {
		f[i] = make([][]float64, n+1)
	}
	for i := 0; i <= m; i++ {
		for j := 0; j <= n; j++ {
			c := make([]float64, i*j+1)
			switch {
			case i == 0 || j == 0:
				c[0] = 1
			default:
				// The largest value is either an x (beating all j y's) or a y.
				for u, v := range f[i-1][j] {
					c[u+j] += v
				}
				for u, v := range f[i][j-1] {
					c[u] += v
				}
			}
			f[i][j] = c
		}
	}
	return f[m][n]
}

// SignTest is the binomial test of positive successes out of n trials against a fair coin. Greater gives P(X >= positive);
// TwoSided doubles the smaller tail. No trials give 1.
func SignTest(positive, n int, alt Alternative) float64 {
	if n <= 0 {
		return 1
	}
	b := distuv.Binomial{N: float64(n), P: 0.5}
	upper := 1.0
	if positive > 0 {
		upper = 1 - b.CDF(float64(positive-1))
	}
	lower := b.CDF(float64(positive))
	var p float64
	switch alt {
	case Greater:
		p = upper
	case Less:
		p = lower
	default:
		p = 2 * math.Min(upper, lower)
	}
	return math.Min(math.Max(p, 0), 1)
}
