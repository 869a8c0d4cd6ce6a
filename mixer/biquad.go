package mixer

import "math"

// 3-band EQ crossover points.
const (
	eqLowShelfHz  = 250.0
	eqPeakingHz   = 1000.0
	eqHighShelfHz = 4000.0
	eqPeakingQ    = 0.707

	// Band gains are considered unchanged below this delta, so coefficients
	// stay put between blocks.
	eqGainEpsilonDB = 0.01
)

// biquadCoeffs holds normalized filter coefficients (a0 divided out).
type biquadCoeffs struct {
	b0, b1, b2 float32
	a1, a2     float32
}

// biquadState is a single-channel direct-form II transposed section.
type biquadState struct {
	z1, z2 float32
}

func (s *biquadState) process(x float32, c *biquadCoeffs) float32 {
	y := c.b0*x + s.z1
	s.z1 = c.b1*x - c.a1*y + s.z2
	s.z2 = c.b2*x - c.a2*y
	return y
}

func (s *biquadState) reset() {
	s.z1 = 0
	s.z2 = 0
}

// Audio-EQ-Cookbook shelving and peaking sections.

func makeLowShelf(sampleRate, freq, gainDB float64) biquadCoeffs {
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cs := math.Cos(w0)
	sn := math.Sin(w0)
	alpha := sn / 2 * math.Sqrt2

	a0 := (A + 1) + (A-1)*cs + 2*math.Sqrt(A)*alpha
	return biquadCoeffs{
		b0: float32(A * ((A + 1) - (A-1)*cs + 2*math.Sqrt(A)*alpha) / a0),
		b1: float32(2 * A * ((A - 1) - (A+1)*cs) / a0),
		b2: float32(A * ((A + 1) - (A-1)*cs - 2*math.Sqrt(A)*alpha) / a0),
		a1: float32(-2 * ((A - 1) + (A+1)*cs) / a0),
		a2: float32(((A + 1) + (A-1)*cs - 2*math.Sqrt(A)*alpha) / a0),
	}
}

func makeHighShelf(sampleRate, freq, gainDB float64) biquadCoeffs {
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cs := math.Cos(w0)
	sn := math.Sin(w0)
	alpha := sn / 2 * math.Sqrt2

	a0 := (A + 1) - (A-1)*cs + 2*math.Sqrt(A)*alpha
	return biquadCoeffs{
		b0: float32(A * ((A + 1) + (A-1)*cs + 2*math.Sqrt(A)*alpha) / a0),
		b1: float32(-2 * A * ((A - 1) + (A+1)*cs) / a0),
		b2: float32(A * ((A + 1) + (A-1)*cs - 2*math.Sqrt(A)*alpha) / a0),
		a1: float32(2 * ((A - 1) - (A+1)*cs) / a0),
		a2: float32(((A + 1) - (A-1)*cs - 2*math.Sqrt(A)*alpha) / a0),
	}
}

func makePeaking(sampleRate, freq, gainDB, q float64) biquadCoeffs {
	A := math.Pow(10, gainDB/40)
	w0 := 2 * math.Pi * freq / sampleRate
	cs := math.Cos(w0)
	sn := math.Sin(w0)
	alpha := sn / (2 * q)

	a0 := 1 + alpha/A
	return biquadCoeffs{
		b0: float32((1 + alpha*A) / a0),
		b1: float32(-2 * cs / a0),
		b2: float32((1 - alpha*A) / a0),
		a1: float32(-2 * cs / a0),
		a2: float32((1 - alpha/A) / a0),
	}
}

// eq3Band is a per-deck 3-band EQ: low shelf, peaking mid, high shelf,
// cascaded per channel. Coefficients recompute only when a band gain moves
// more than eqGainEpsilonDB; with all gains at unity the cascade is bypassed
// entirely.
type eq3Band struct {
	lowCoeffs, midCoeffs, highCoeffs biquadCoeffs
	lowState, midState, highState    [2]biquadState

	lowDB, midDB, highDB float64
	sampleRate           float64
	active               bool
}

func (eq *eq3Band) update(sampleRate, lowDB, midDB, highDB float64) {
	eq.sampleRate = sampleRate
	eq.lowDB = lowDB
	eq.midDB = midDB
	eq.highDB = highDB
	eq.active = math.Abs(lowDB) > eqGainEpsilonDB ||
		math.Abs(midDB) > eqGainEpsilonDB ||
		math.Abs(highDB) > eqGainEpsilonDB

	if eq.active {
		eq.lowCoeffs = makeLowShelf(sampleRate, eqLowShelfHz, lowDB)
		eq.midCoeffs = makePeaking(sampleRate, eqPeakingHz, midDB, eqPeakingQ)
		eq.highCoeffs = makeHighShelf(sampleRate, eqHighShelfHz, highDB)
	}
}

// maybeUpdate recomputes coefficients only on a real gain change.
func (eq *eq3Band) maybeUpdate(sampleRate, lowDB, midDB, highDB float64) {
	if math.Abs(lowDB-eq.lowDB) > eqGainEpsilonDB ||
		math.Abs(midDB-eq.midDB) > eqGainEpsilonDB ||
		math.Abs(highDB-eq.highDB) > eqGainEpsilonDB ||
		sampleRate != eq.sampleRate {
		eq.update(sampleRate, lowDB, midDB, highDB)
	}
}

func (eq *eq3Band) process(x float32, channel int) float32 {
	if !eq.active {
		return x
	}
	x = eq.lowState[channel].process(x, &eq.lowCoeffs)
	x = eq.midState[channel].process(x, &eq.midCoeffs)
	x = eq.highState[channel].process(x, &eq.highCoeffs)
	return x
}

func (eq *eq3Band) reset() {
	for ch := 0; ch < 2; ch++ {
		eq.lowState[ch].reset()
		eq.midState[ch].reset()
		eq.highState[ch].reset()
	}
}
