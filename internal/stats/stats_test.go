package stats

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCliffsDeltaSeparatedSamples(t *testing.T) {
	t.Parallel()

	x := []float64{0.1, 0.2, 0.3}
	y := []float64{0.4, 0.5, 0.6}

	require.Equal(t, EffectSize{Delta: -1, Magnitude: Large}, CliffsDelta(x, y))
	require.Equal(t, EffectSize{Delta: 1, Magnitude: Large}, CliffsDelta(y, x))
}

func TestCliffsDeltaEmpty(t *testing.T) {
	t.Parallel()

	got := CliffsDelta(nil, []float64{1})
	assert.True(t, math.IsNaN(got.Delta))
	assert.Equal(t, NoMagnitude, got.Magnitude)
}

func TestCliffsDeltaProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	sample := func() []float64 {
		out := make([]float64, 1+rng.IntN(12))
		for i := range out {
			out[i] = float64(rng.IntN(5)) / 4
		}
		return out
	}
	for range 200 {
		x, y := sample(), sample()
		xy, yx := CliffsDelta(x, y), CliffsDelta(y, x)
		require.InDelta(t, -xy.Delta, yx.Delta, 1e-12)
		require.GreaterOrEqual(t, xy.Delta, -1.0)
		require.LessOrEqual(t, xy.Delta, 1.0)
		require.Equal(t, xy.Magnitude, yx.Magnitude)
	}
}

func TestMagnitudeBands(t *testing.T) {
	t.Parallel()

	tests := []struct {
		delta float64
		want  Magnitude
	}{
		{0, Negligible},
		{0.146, Negligible},
		{-0.147, Small},
		{0.329, Small},
		{0.33, Medium},
		{-0.473, Medium},
		{0.474, Large},
		{-1, Large},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, MagnitudeOf(tt.delta), "delta=%v", tt.delta)
	}

	prev := -1
	for d := 0.0; d <= 1.0; d += 0.01 {
		r := MagnitudeOf(d).Rank()
		require.GreaterOrEqual(t, r, prev, "magnitude must not shrink as |delta| grows (delta=%v)", d)
		prev = r
	}
	assert.Equal(t, "negl.", Negligible.Short())
}

func TestMannWhitneyExact(t *testing.T) {
	t.Parallel()

	x := []float64{0.1, 0.2, 0.3}
	y := []float64{0.4, 0.5, 0.6}

	got := MannWhitneyU(x, y, Greater)
	assert.Equal(t, 0.0, got.U)
	assert.InDelta(t, 1.0, got.P, 1e-12)

	got = MannWhitneyU(x, y, Less)
	assert.Equal(t, 0.0, got.U)
	assert.InDelta(t, 0.05, got.P, 1e-12)

	got = MannWhitneyU(x, y, TwoSided)
	assert.InDelta(t, 0.1, got.P, 1e-12)
}

func TestMannWhitneyNormalApproximation(t *testing.T) {
	t.Parallel()

	x := []float64{3, 4, 5, 6, 7, 8, 9, 10, 11}
	y := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9}

	got := MannWhitneyU(x, y, Greater)
	assert.Equal(t, 56.5, got.U)
	assert.InDelta(t, 0.0847746, got.P, 1e-6)

	assert.InDelta(t, 0.9281673, MannWhitneyU(x, y, Less).P, 1e-6)
	assert.InDelta(t, 0.1695491, MannWhitneyU(x, y, TwoSided).P, 1e-6)
}

// Reference p-values match scipy.stats.mannwhitneyu with method="auto" and use_continuity=True: exact when both samples
// have at most 8 values and no ties, normal approximation with tie correction otherwise.
func TestMannWhitneyMethodBoundary(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		x, y    []float64
		u       float64
		greater float64
		less    float64
		twoSide float64
	}{
		{
			name:    "8 vs 8 interleaved uses exact",
			x:       []float64{2, 4, 6, 8, 10, 12, 14, 16},
			y:       []float64{1, 3, 5, 7, 9, 11, 13, 15},
			u:       36,
			greater: 0.36045066045066043,
			less:    0.6773115773115773,
			twoSide: 0.7209013209013209,
		},
		{
			name:    "8 vs 8 separated uses exact",
			x:       []float64{9, 10, 11, 12, 13, 14, 15, 16},
			y:       []float64{1, 2, 3, 4, 5, 6, 7, 8},
			u:       64,
			greater: 1.0 / 12870,
			less:    1,
			twoSide: 2.0 / 12870,
		},
		{
			name:    "8 vs 9 uses normal",
			x:       []float64{2, 4, 6, 8, 10, 12, 14, 16},
			y:       []float64{1, 3, 5, 7, 9, 11, 13, 15, 17},
			u:       36,
			greater: 0.5191867168469313,
			less:    0.5191867168469313,
			twoSide: 1,
		},
		{
			name:    "ties use corrected normal",
			x:       []float64{1, 2, 2, 3, 4, 4, 5, 6},
			y:       []float64{2, 3, 3, 5, 6, 6, 7, 8},
			u:       17.5,
			greater: 0.944283640877083,
			less:    0.06868357734065345,
			twoSide: 0.1373671546813069,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := MannWhitneyU(tc.x, tc.y, Greater)
			assert.Equal(t, tc.u, got.U)
			assert.InDelta(t, tc.greater, got.P, 1e-9)
			assert.InDelta(t, tc.less, MannWhitneyU(tc.x, tc.y, Less).P, 1e-9)
			assert.InDelta(t, tc.twoSide, MannWhitneyU(tc.x, tc.y, TwoSided).P, 1e-9)
		})
	}
}

func TestMannWhitneyDegenerate(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsNaN(MannWhitneyU(nil, []float64{1}, Greater).P))
	// Every value tied: no variance in ranks.
	assert.True(t, math.IsNaN(MannWhitneyU([]float64{1, 1, 1}, []float64{1, 1}, TwoSided).P))
}

func TestSignTest(t *testing.T) {
	t.Parallel()

	// Four of four domains in the expected direction.
	assert.InDelta(t, 1.0/16, SignTest(4, 4, Greater), 1e-12)
	assert.InDelta(t, 0.125, SignTest(4, 4, TwoSided), 1e-12)
	assert.InDelta(t, 1.0, SignTest(4, 4, Less), 1e-12)

	assert.InDelta(t, 11.0/16, SignTest(2, 4, Greater), 1e-12)
	assert.InDelta(t, 1.0, SignTest(2, 4, TwoSided), 1e-12)
	assert.InDelta(t, 1.0, SignTest(0, 6, Greater), 1e-12)
	assert.InDelta(t, 7.0/64, SignTest(5, 6, Greater), 1e-12)
	assert.Equal(t, 1.0, SignTest(0, 0, Greater))
}

func TestUCountsSumToBinomial(t *testing.T) {
	t.Parallel()

	total := 0.0
	for _, c := range uCounts(4, 3) {
		total += c
	}
	assert.Equal(t, 35.0, total)
}

func TestBetaHDI(t *testing.T) {
	t.Parallel()

	uniform := BetaHDI(0, 0, DefaultBetaOptions())
	assert.InDelta(t, 0.95, uniform.Width, 0.01)
	assert.InDelta(t, 0.10, uniform.PBelow, 0.01)

	allPass := BetaHDI(20, 20, DefaultBetaOptions())
	assert.InDelta(t, 0.0, allPass.Lower, 0.001)
	assert.InDelta(t, 0.1329, allPass.Upper, 0.005)
	assert.InDelta(t, 0.8906, allPass.PBelow, 0.01)

	require.Equal(t, allPass, BetaHDI(20, 20, DefaultBetaOptions()), "same seed, same draws")

	bad := BetaHDI(5, 3, DefaultBetaOptions())
	assert.True(t, math.IsNaN(bad.Width))
}

func TestBootstrapMeanCI(t *testing.T) {
	t.Parallel()

	assert.Equal(t, CI{}, BootstrapMeanCI(nil, 100, 0.95, DefaultSeed))
	assert.Equal(t, CI{Mean: 7, Lower: 7, Upper: 7}, BootstrapMeanCI([]float64{7}, 100, 0.95, DefaultSeed))
	assert.Equal(t, CI{Mean: 2, Lower: 2, Upper: 2}, BootstrapMeanCI([]float64{2, 2, 2}, 500, 0.95, DefaultSeed))

	values := []float64{1, 2, 3, 4, 5, 6, 7, 8}
	ci := BootstrapMeanCI(values, 2000, 0.95, DefaultSeed)
	assert.Equal(t, 4.5, ci.Mean)
	assert.Less(t, ci.Lower, ci.Mean)
	assert.Greater(t, ci.Upper, ci.Mean)
	assert.GreaterOrEqual(t, ci.Lower, 1.0)
	assert.LessOrEqual(t, ci.Upper, 8.0)
	assert.Equal(t, ci, BootstrapMeanCI(values, 2000, 0.95, DefaultSeed))
}

func TestPercentileHDI(t *testing.T) {
	t.Parallel()

	got := PercentileHDI([]float64{4, 1, 3, 2}, 5, 95)
	assert.InDelta(t, 1.15, got.Lower, 1e-12)
	assert.InDelta(t, 3.85, got.Upper, 1e-12)
	assert.InDelta(t, 2.7, got.Width, 1e-12)

	assert.Equal(t, Spread{}, PercentileHDI(nil, 5, 95))
	assert.Equal(t, 2.5, Percentile([]float64{1, 2, 3, 4}, 50))
}

func TestLevene(t *testing.T) {
	t.Parallel()

	got := Levene([]float64{1, 2, 3, 4, 5}, []float64{1, 3, 5, 7, 9})
	assert.InDelta(t, 2.0571429, got.W, 1e-6)
	assert.InDelta(t, 0.1894, got.P, 1e-3)

	got = Levene([]float64{0.1, 0.2, 0.3, 0.9}, nil, []float64{0.4, 0.45, 0.5, 0.55})
	assert.InDelta(t, 1.47, got.W, 1e-9)

	assert.True(t, math.IsNaN(Levene([]float64{1, 2}).W))
	assert.True(t, math.IsNaN(Levene([]float64{1, 1}, []float64{2, 2}).P))
}

func TestFailureRate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, FailureRate(0, 0))
	assert.Equal(t, 1.0, FailureRate(0, 12))
	assert.InDelta(t, 0.25, FailureRate(9, 12), 1e-12)
	assert.InDelta(t, 0.5, ShareBelow([]float64{0.05, 0.2, 0.0, 0.5}, 0.10), 1e-12)
}
