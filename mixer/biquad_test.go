package mixer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEQBypassAtUnity(t *testing.T) {
	eq := &eq3Band{}
	eq.update(44100, 0, 0, 0)
	assert.False(t, eq.active)

	for i := 0; i < 64; i++ {
		x := float32(math.Sin(float64(i) * 0.1))
		assert.Equal(t, x, eq.process(x, 0))
	}
}

func TestEQActivatesOnGain(t *testing.T) {
	eq := &eq3Band{}
	eq.update(44100, -12, 0, 0)
	assert.True(t, eq.active)

	// A cut must not blow up the signal
	var peak float32
	for i := 0; i < 4096; i++ {
		x := float32(math.Sin(2 * math.Pi * 100 * float64(i) / 44100))
		y := eq.process(x, 0)
		if y > peak {
			peak = y
		}
	}
	assert.True(t, peak > 0 && peak < 1.2, "peak %f", peak)
}

func TestEQLowShelfCutsBass(t *testing.T) {
	eq := &eq3Band{}
	eq.update(44100, -60, 0, 0)

	// 60 Hz sine, well inside the low shelf
	var inRMS, outRMS float64
	for i := 0; i < 44100; i++ {
		x := float32(math.Sin(2 * math.Pi * 60 * float64(i) / 44100))
		y := eq.process(x, 0)
		if i > 4410 { // skip the filter settle
			inRMS += float64(x) * float64(x)
			outRMS += float64(y) * float64(y)
		}
	}
	assert.True(t, outRMS < inRMS/100, "low shelf kill left %.6f of %.6f", outRMS, inRMS)
}

func TestEQRecomputeThreshold(t *testing.T) {
	eq := &eq3Band{}
	eq.update(44100, -6, 0, 0)
	coeffs := eq.lowCoeffs

	// Sub-threshold change keeps coefficients
	eq.maybeUpdate(44100, -6.005, 0, 0)
	assert.Equal(t, coeffs, eq.lowCoeffs)
	assert.Equal(t, -6.0, eq.lowDB)

	// Real change recomputes
	eq.maybeUpdate(44100, -12, 0, 0)
	assert.NotEqual(t, coeffs, eq.lowCoeffs)
	assert.Equal(t, -12.0, eq.lowDB)
}

func TestEQReset(t *testing.T) {
	eq := &eq3Band{}
	eq.update(44100, -12, 6, -3)

	for i := 0; i < 100; i++ {
		eq.process(0.5, 0)
		eq.process(-0.5, 1)
	}
	assert.NotEqual(t, float32(0), eq.lowState[0].z1)

	eq.reset()
	for ch := 0; ch < 2; ch++ {
		assert.Equal(t, float32(0), eq.lowState[ch].z1)
		assert.Equal(t, float32(0), eq.lowState[ch].z2)
		assert.Equal(t, float32(0), eq.midState[ch].z1)
		assert.Equal(t, float32(0), eq.highState[ch].z1)
	}
}

func TestBiquadCoefficientsFinite(t *testing.T) {
	for _, gain := range []float64{-60, -12, 0, 6, 12} {
		for _, mk := range []func() biquadCoeffs{
			func() biquadCoeffs { return makeLowShelf(44100, 250, gain) },
			func() biquadCoeffs { return makePeaking(44100, 1000, gain, 0.707) },
			func() biquadCoeffs { return makeHighShelf(44100, 4000, gain) },
		} {
			c := mk()
			for _, v := range []float32{c.b0, c.b1, c.b2, c.a1, c.a2} {
				assert.False(t, math.IsNaN(float64(v)) || math.IsInf(float64(v), 0))
			}
		}
	}
}
