package analyze

import (
	"math"
	"testing"

	"github.com/ayvan/automix/decoder"
	"github.com/ayvan/automix/tracks"
	"github.com/stretchr/testify/assert"
)

// clickTrack synthesizes a stereo click track at the given tempo: short
// noise bursts on every beat over a quiet sine bed.
func clickTrack(bpm float64, seconds float64, sr int) *decoder.AudioBuffer {
	frames := int(seconds * float64(sr))
	samples := make([]float32, frames*2)
	beatPeriod := int(60.0 / bpm * float64(sr))

	for i := 0; i < frames; i++ {
		v := 0.05 * math.Sin(2*math.Pi*220*float64(i)/float64(sr))
		if beatPeriod > 0 && i%beatPeriod < 800 {
			decay := 1.0 - float64(i%beatPeriod)/800.0
			v += 0.8 * decay * math.Sin(2*math.Pi*1000*float64(i)/float64(sr))
		}
		samples[i*2] = float32(v)
		samples[i*2+1] = float32(v)
	}
	return &decoder.AudioBuffer{Samples: samples, SampleRate: sr}
}

func TestAnalyzeRejectsEmpty(t *testing.T) {
	_, err := Analyze(nil)
	assert.Error(t, err)

	_, err = Analyze(&decoder.AudioBuffer{SampleRate: 44100})
	assert.Error(t, err)
}

func TestAnalyzeProducesValidRecord(t *testing.T) {
	buf := clickTrack(120, 12, 44100)

	res, err := Analyze(buf)
	assert.NoError(t, err)

	assert.True(t, res.BPM >= 60 && res.BPM <= 200, "bpm %f", res.BPM)
	assert.InDelta(t, 12.0, res.Duration, 0.1)
	assert.Len(t, res.MFCC, tracks.MFCCSize)
	assert.Len(t, res.Chroma, tracks.ChromaSize)
	assert.NotEmpty(t, res.EnergyCurve)
	assert.NotEmpty(t, res.Beats)
	assert.True(t, res.LoudnessDB < 0)

	// Chroma normalized, non-negative
	sum := 0.0
	for _, v := range res.Chroma {
		assert.True(t, v >= 0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-6)

	// Energy curve in [0,1]
	for _, e := range res.EnergyCurve {
		assert.True(t, e >= 0 && e <= 1)
	}

	// Beat grid strictly increasing
	for i := 1; i < len(res.Beats); i++ {
		assert.True(t, res.Beats[i] > res.Beats[i-1])
	}

	// The whole result satisfies the track record invariants
	track := &tracks.Track{FilePath: "/x.mp3"}
	res.Apply(track)
	assert.NoError(t, track.Validate())
	assert.True(t, track.HasMFCC())
	assert.True(t, track.HasChroma())

	// Key parses as a Camelot code
	assert.Regexp(t, `^\d{1,2}[AB]$`, res.Key)
}

func TestAnalyzeDetectsClickTempo(t *testing.T) {
	buf := clickTrack(128, 20, 44100)

	res, err := Analyze(buf)
	assert.NoError(t, err)

	// Allow octave folding but expect the 128 family
	family := []float64{64, 128}
	closest := math.Inf(1)
	for _, f := range family {
		if d := math.Abs(res.BPM - f); d < closest {
			closest = d
		}
	}
	assert.True(t, closest < 4, "bpm %f not near the 128 family", res.BPM)
}

func TestCamelotFromRoot(t *testing.T) {
	assert.Equal(t, "8A", camelotFromRoot(9, true))   // A minor
	assert.Equal(t, "8B", camelotFromRoot(0, false))  // C major
	assert.Equal(t, "9B", camelotFromRoot(7, false))  // G major
	assert.Equal(t, "5A", camelotFromRoot(0, true))   // C minor
	assert.Equal(t, "12A", camelotFromRoot(1, true))  // C# minor
	assert.Equal(t, "12B", camelotFromRoot(4, false)) // E major
}

func TestDetectKeyPureTriad(t *testing.T) {
	// Chroma energy concentrated on A, C, E: A minor territory
	chroma := make([]float64, 12)
	chroma[9] = 0.5 // A
	chroma[0] = 0.3 // C
	chroma[4] = 0.2 // E

	key := detectKey(chroma)
	assert.Regexp(t, `^\d{1,2}[AB]$`, key)
}

func TestEnergyCurveNormalization(t *testing.T) {
	mono := make([]float64, 44100*4)
	for i := range mono {
		amp := 0.1
		if i > len(mono)/2 {
			amp = 0.9
		}
		mono[i] = amp * math.Sin(2*math.Pi*440*float64(i)/44100)
	}

	curve := energyCurve(mono)
	assert.NotEmpty(t, curve)

	peak := 0.0
	for _, e := range curve {
		assert.True(t, e >= 0 && e <= 1)
		if e > peak {
			peak = e
		}
	}
	assert.InDelta(t, 1.0, peak, 1e-9)

	// The loud half reads higher than the quiet half
	assert.True(t, curve[len(curve)-2] > curve[1]*2)
}

func TestBeatGridAnchorsAndFills(t *testing.T) {
	onset := make([]float64, 1000)
	onset[50] = 10 // strongest onset well inside the first seconds

	beats := beatGrid(onset, 44100, 30, 120)
	assert.NotEmpty(t, beats)
	for i := 1; i < len(beats); i++ {
		assert.InDelta(t, 0.5, beats[i]-beats[i-1], 0.01)
	}
	assert.True(t, beats[0] < 0.7)
	assert.True(t, beats[len(beats)-1] < 30)
}
