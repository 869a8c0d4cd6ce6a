package analyze

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"

	"github.com/ayvan/automix/decoder"
	"github.com/ayvan/automix/tracks"
	"github.com/sirupsen/logrus"
)

const (
	onsetFrameSize = 2048
	onsetHopSize   = 512

	chromaFrameSize = 4096
	chromaHopSize   = 2048

	energyFrameSize = 2048
	energyHopSize   = 1024

	melFilterCount = 26
)

// Result carries the per-track features the matcher consumes.
type Result struct {
	BPM         float64
	Beats       []float64
	Key         string // Camelot notation
	MFCC        []float64
	Chroma      []float64
	EnergyCurve []float64
	Duration    float64
	LoudnessDB  float64
}

// Analyze extracts tempo, beat grid, key, timbre and energy features from a
// decoded track. Offline only; never called from the audio path.
func Analyze(buf *decoder.AudioBuffer) (*Result, error) {
	if buf == nil || len(buf.Samples) == 0 || buf.SampleRate <= 0 {
		return nil, fmt.Errorf("empty audio buffer")
	}

	mono := monoMixdown(buf.Samples)
	sr := buf.SampleRate
	duration := buf.Duration()

	onset := onsetEnvelope(mono, sr)
	bpm := estimateBPM(onset, sr)
	beats := beatGrid(onset, sr, duration, bpm)

	chroma := chromaVector(mono, sr)
	key := detectKey(chroma)

	res := &Result{
		BPM:         bpm,
		Beats:       beats,
		Key:         key,
		MFCC:        mfccVector(mono, sr),
		Chroma:      chroma,
		EnergyCurve: energyCurve(mono),
		Duration:    duration,
		LoudnessDB:  loudnessDB(mono),
	}

	logrus.Debugf("analyzed %.1fs: bpm %.1f key %s, %d beats", duration, bpm, key, len(beats))

	return res, nil
}

// Apply copies the analysis into a track record.
func (r *Result) Apply(track *tracks.Track) {
	track.BPM = r.BPM
	track.Beats = r.Beats
	track.Key = r.Key
	track.MFCC = r.MFCC
	track.Chroma = r.Chroma
	track.EnergyCurve = r.EnergyCurve
	track.Duration = r.Duration
	track.LoudnessDB = r.LoudnessDB
}

func monoMixdown(samples []float32) []float64 {
	mono := make([]float64, len(samples)/2)
	for i := range mono {
		mono[i] = (float64(samples[i*2]) + float64(samples[i*2+1])) / 2
	}
	return mono
}

// --- FFT ---

func nextPow2(n int) int {
	v := 1
	for v < n {
		v <<= 1
	}
	return v
}

// fft is an in-place iterative radix-2 Cooley-Tukey transform.
func fft(x []complex128) {
	n := len(x)
	if n <= 1 {
		return
	}

	// Bit reversal permutation
	j := 0
	for i := 0; i < n-1; i++ {
		if i < j {
			x[i], x[j] = x[j], x[i]
		}
		m := n >> 1
		for j >= m && m > 0 {
			j -= m
			m >>= 1
		}
		j += m
	}

	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		step := -2 * math.Pi / float64(size)
		wLen := complex(math.Cos(step), math.Sin(step))
		for i := 0; i < n; i += size {
			w := complex(1, 0)
			for k := 0; k < half; k++ {
				u := x[i+k]
				v := x[i+k+half] * w
				x[i+k] = u + v
				x[i+k+half] = u - v
				w *= wLen
			}
		}
	}
}

func hannWindow(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
	}
	return w
}

// --- Tempo ---

// onsetEnvelope computes the spectral-flux onset strength per hop.
func onsetEnvelope(mono []float64, sr int) []float64 {
	numFrames := (len(mono) - onsetFrameSize) / onsetHopSize
	if numFrames <= 0 {
		return nil
	}

	fftSize := nextPow2(onsetFrameSize)
	window := hannWindow(onsetFrameSize)
	onset := make([]float64, numFrames)
	prevMag := make([]float64, fftSize/2+1)
	mag := make([]float64, fftSize/2+1)
	frame := make([]complex128, fftSize)

	for i := 0; i < numFrames; i++ {
		start := i * onsetHopSize
		for k := range frame {
			frame[k] = 0
		}
		for j := 0; j < onsetFrameSize && start+j < len(mono); j++ {
			frame[j] = complex(mono[start+j]*window[j], 0)
		}
		fft(frame)

		flux := 0.0
		for j := 0; j <= fftSize/2; j++ {
			mag[j] = cmplx.Abs(frame[j])
			if d := mag[j] - prevMag[j]; d > 0 {
				flux += d
			}
		}
		onset[i] = flux
		copy(prevMag, mag)
	}

	return onset
}

// estimateBPM autocorrelates the onset envelope over the 60-200 BPM lag
// range, with a perceptual bias toward club tempos to avoid octave errors.
func estimateBPM(onset []float64, sr int) float64 {
	if len(onset) < 100 {
		return 120
	}

	minLag := sr * 60 / (200 * onsetHopSize)
	maxLag := sr * 60 / (60 * onsetHopSize)
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if minLag < 1 {
		minLag = 1
	}

	bestLag := minLag
	bestCorr := -1.0
	for lag := minLag; lag <= maxLag; lag++ {
		corr := 0.0
		count := 0
		for i := 0; i+lag < len(onset); i++ {
			corr += onset[i] * onset[i+lag]
			count++
		}
		if count > 0 {
			corr /= float64(count)
		}

		bpmApprox := 60.0 / (float64(lag) * float64(onsetHopSize) / float64(sr))
		weight := math.Exp(-0.5 * math.Pow((bpmApprox-120)/40, 2))
		if weighted := corr * (0.8 + 0.2*weight); weighted > bestCorr {
			bestCorr = weighted
			bestLag = lag
		}
	}

	period := float64(bestLag) * float64(onsetHopSize) / float64(sr)
	if period <= 0 {
		return 120
	}
	bpm := 60.0 / period

	for bpm > 200 {
		bpm /= 2
	}
	for bpm < 60 {
		bpm *= 2
	}
	return math.Round(bpm*10) / 10
}

// beatGrid lays a fixed grid anchored on the strongest onset in the opening
// seconds.
func beatGrid(onset []float64, sr int, duration, bpm float64) []float64 {
	if bpm <= 0 {
		bpm = 120
	}
	beatPeriod := 60.0 / bpm

	anchor := 0.0
	if len(onset) > 0 {
		searchFrames := int(5 * float64(sr) / float64(onsetHopSize))
		if searchFrames > len(onset) {
			searchFrames = len(onset)
		}
		bestIdx, bestVal := 0, 0.0
		for i := 0; i < searchFrames; i++ {
			if onset[i] > bestVal {
				bestVal = onset[i]
				bestIdx = i
			}
		}
		anchor = float64(bestIdx) * float64(onsetHopSize) / float64(sr)
	}

	var beats []float64
	for t := anchor; t >= 0; t -= beatPeriod {
		beats = append(beats, math.Round(t*1000)/1000)
	}
	for t := anchor + beatPeriod; t < duration; t += beatPeriod {
		beats = append(beats, math.Round(t*1000)/1000)
	}

	sort.Float64s(beats)

	// The grid must be strictly increasing for the track record invariants
	dedup := beats[:0]
	for i, b := range beats {
		if i == 0 || b > dedup[len(dedup)-1] {
			dedup = append(dedup, b)
		}
	}
	return dedup
}

// --- Key / chroma ---

var (
	majProfile = []float64{6.35, 2.23, 3.48, 2.33, 4.38, 4.09, 2.52, 5.19, 2.39, 3.66, 2.29, 2.88}
	minProfile = []float64{6.33, 2.68, 3.52, 5.38, 2.60, 3.53, 2.54, 4.75, 3.98, 2.69, 3.34, 3.17}
)

// chromaVector accumulates pitch-class energy over the whole track,
// normalized to sum 1.
func chromaVector(mono []float64, sr int) []float64 {
	chroma := make([]float64, tracks.ChromaSize)

	numFrames := (len(mono) - chromaFrameSize) / chromaHopSize
	if numFrames <= 0 {
		chroma[0] = 1
		return chroma
	}

	fftSize := nextPow2(chromaFrameSize)
	window := hannWindow(chromaFrameSize)
	frame := make([]complex128, fftSize)

	for i := 0; i < numFrames; i++ {
		start := i * chromaHopSize
		for k := range frame {
			frame[k] = 0
		}
		for j := 0; j < chromaFrameSize && start+j < len(mono); j++ {
			frame[j] = complex(mono[start+j]*window[j], 0)
		}
		fft(frame)

		for bin := 1; bin <= fftSize/2; bin++ {
			freq := float64(bin) * float64(sr) / float64(fftSize)
			if freq < 65 || freq > 4000 {
				continue
			}
			semitones := 12 * math.Log2(freq/261.63)
			pc := ((int(math.Round(semitones)) % 12) + 12) % 12
			chroma[pc] += cmplx.Abs(frame[bin])
		}
	}

	total := 0.0
	for _, v := range chroma {
		total += v
	}
	if total <= 0 {
		chroma[0] = 1
		return chroma
	}
	for i := range chroma {
		chroma[i] /= total
	}
	return chroma
}

// detectKey matches the chroma against Krumhansl key profiles and maps the
// winner onto the Camelot wheel.
func detectKey(chroma []float64) string {
	bestCorr := math.Inf(-1)
	bestRoot := 0
	bestMinor := false

	rolled := make([]float64, 12)
	for rot := 0; rot < 12; rot++ {
		for j := 0; j < 12; j++ {
			rolled[j] = chroma[(j+rot)%12]
		}
		if corr := pearson(rolled, majProfile); corr > bestCorr {
			bestCorr = corr
			bestRoot = rot
			bestMinor = false
		}
		if corr := pearson(rolled, minProfile); corr > bestCorr {
			bestCorr = corr
			bestRoot = rot
			bestMinor = true
		}
	}

	return camelotFromRoot(bestRoot, bestMinor)
}

// camelotFromRoot converts a pitch-class root (0 = C) and mode to Camelot
// notation. Minor wheel numbers follow n = (5 + 7·root) mod 12; a major key
// shares the number of its relative minor, whose root sits a minor third
// below the major root.
func camelotFromRoot(root int, minor bool) string {
	r := root
	mode := byte('A')
	if !minor {
		r = ((root-3)%12 + 12) % 12
		mode = 'B'
	}

	n := (5 + 7*r) % 12
	if n == 0 {
		n = 12
	}
	return fmt.Sprintf("%d%c", n, mode)
}

func pearson(a, b []float64) float64 {
	n := len(a)
	if n == 0 || n != len(b) {
		return 0
	}
	var sumA, sumB, sumAB, sumA2, sumB2 float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
		sumAB += a[i] * b[i]
		sumA2 += a[i] * a[i]
		sumB2 += b[i] * b[i]
	}
	num := float64(n)*sumAB - sumA*sumB
	den := math.Sqrt((float64(n)*sumA2 - sumA*sumA) * (float64(n)*sumB2 - sumB*sumB))
	if den < 1e-12 {
		return 0
	}
	return num / den
}

// --- MFCC ---

// mfccVector computes 13 cepstral coefficients from the average log mel
// spectrum of the track.
func mfccVector(mono []float64, sr int) []float64 {
	fftSize := nextPow2(onsetFrameSize)
	numFrames := (len(mono) - onsetFrameSize) / onsetHopSize
	if numFrames <= 0 {
		return make([]float64, tracks.MFCCSize)
	}
	// Averaging every 4th frame is plenty for a whole-track timbre summary
	window := hannWindow(onsetFrameSize)
	avgPower := make([]float64, fftSize/2+1)
	frame := make([]complex128, fftSize)
	frames := 0

	for i := 0; i < numFrames; i += 4 {
		start := i * onsetHopSize
		for k := range frame {
			frame[k] = 0
		}
		for j := 0; j < onsetFrameSize && start+j < len(mono); j++ {
			frame[j] = complex(mono[start+j]*window[j], 0)
		}
		fft(frame)
		for j := 0; j <= fftSize/2; j++ {
			m := cmplx.Abs(frame[j])
			avgPower[j] += m * m
		}
		frames++
	}
	for j := range avgPower {
		avgPower[j] /= float64(frames)
	}

	melEnergies := melFilterbank(avgPower, sr, fftSize)

	// DCT-II of the log filterbank energies
	mfcc := make([]float64, tracks.MFCCSize)
	for k := 0; k < tracks.MFCCSize; k++ {
		sum := 0.0
		for m := 0; m < melFilterCount; m++ {
			sum += math.Log(melEnergies[m]+1e-10) *
				math.Cos(math.Pi*float64(k)*(float64(m)+0.5)/melFilterCount)
		}
		mfcc[k] = sum
	}
	return mfcc
}

func hzToMel(hz float64) float64 {
	return 2595 * math.Log10(1+hz/700)
}

func melToHz(mel float64) float64 {
	return 700 * (math.Pow(10, mel/2595) - 1)
}

// melFilterbank applies triangular mel-spaced filters to the power spectrum.
func melFilterbank(power []float64, sr, fftSize int) []float64 {
	lowMel := hzToMel(0)
	highMel := hzToMel(float64(sr) / 2)

	points := make([]int, melFilterCount+2)
	for i := range points {
		mel := lowMel + (highMel-lowMel)*float64(i)/float64(melFilterCount+1)
		points[i] = int(melToHz(mel) * float64(fftSize) / float64(sr))
		if points[i] > len(power)-1 {
			points[i] = len(power) - 1
		}
	}

	energies := make([]float64, melFilterCount)
	for m := 1; m <= melFilterCount; m++ {
		left, center, right := points[m-1], points[m], points[m+1]
		for bin := left; bin < right && bin < len(power); bin++ {
			var weight float64
			if bin < center && center > left {
				weight = float64(bin-left) / float64(center-left)
			} else if bin >= center && right > center {
				weight = float64(right-bin) / float64(right-center)
			}
			energies[m-1] += power[bin] * weight
		}
	}
	return energies
}

// --- Energy ---

// energyCurve is the per-hop RMS level normalized to [0, 1].
func energyCurve(mono []float64) []float64 {
	numFrames := (len(mono) - energyFrameSize) / energyHopSize
	if numFrames <= 0 {
		return []float64{0.5}
	}

	curve := make([]float64, numFrames)
	maxE := 0.0
	for i := 0; i < numFrames; i++ {
		start := i * energyHopSize
		sum := 0.0
		for j := 0; j < energyFrameSize && start+j < len(mono); j++ {
			sum += mono[start+j] * mono[start+j]
		}
		curve[i] = math.Sqrt(sum / energyFrameSize)
		if curve[i] > maxE {
			maxE = curve[i]
		}
	}

	if maxE > 1e-6 {
		for i := range curve {
			curve[i] /= maxE
		}
	}
	return curve
}

func loudnessDB(mono []float64) float64 {
	sum := 0.0
	for _, s := range mono {
		sum += s * s
	}
	avg := sum / float64(len(mono)+1)
	return 20 * math.Log10(math.Sqrt(avg)+1e-6)
}
