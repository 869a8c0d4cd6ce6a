package match

import (
	"math"
	"sort"

	"github.com/ayvan/automix/camelot"
	"github.com/ayvan/automix/tracks"
)

const energyResampleLen = 100

// Similarity measures how mixable two analyzed tracks are. The distance is a
// weighted sum over six feature dimensions, normalized by the weight of the
// dimensions both tracks actually carry.
type Similarity struct {
	weights SimilarityWeights
}

func NewSimilarity(weights SimilarityWeights) *Similarity {
	return &Similarity{weights: weights}
}

func (s *Similarity) SetWeights(weights SimilarityWeights) {
	s.weights = weights
}

// Distance returns the weighted feature distance between two tracks. Lower is
// more similar; identical tracks give 0.
func (s *Similarity) Distance(a, b *tracks.Track) float64 {
	d := 0.0
	totalWeight := 0.0

	if s.weights.BPM > 0 && a.BPM > 0 && b.BPM > 0 {
		d += s.weights.BPM * BPMDistance(a.BPM, b.BPM)
		totalWeight += s.weights.BPM
	}

	if s.weights.Key > 0 && a.Key != "" && b.Key != "" {
		d += s.weights.Key * float64(camelot.Distance(a.Key, b.Key)) / 6.0
		totalWeight += s.weights.Key
	}

	if s.weights.MFCC > 0 && a.HasMFCC() && b.HasMFCC() {
		d += s.weights.MFCC * cosineDistance(a.MFCC, b.MFCC)
		totalWeight += s.weights.MFCC
	}

	if s.weights.Energy > 0 && len(a.EnergyCurve) > 0 && len(b.EnergyCurve) > 0 {
		d += s.weights.Energy * energyDistance(a.EnergyCurve, b.EnergyCurve)
		totalWeight += s.weights.Energy
	}

	if s.weights.Chroma > 0 && a.HasChroma() && b.HasChroma() {
		d += s.weights.Chroma * cosineDistance(a.Chroma, b.Chroma)
		totalWeight += s.weights.Chroma
	}

	if s.weights.Duration > 0 && a.Duration > 0 && b.Duration > 0 {
		d += s.weights.Duration * durationDistance(a.Duration, b.Duration)
		totalWeight += s.weights.Duration
	}

	if totalWeight <= 0 {
		return 0
	}
	return d / totalWeight
}

// Score maps the distance into (0, 1]; identical tracks score 1.
func (s *Similarity) Score(a, b *tracks.Track) float64 {
	return 1.0 / (1.0 + s.Distance(a, b))
}

// Similar is a candidate with its distance to the target.
type Similar struct {
	Track    *tracks.Track
	Distance float64
}

// FindSimilar ranks candidates by ascending distance to the target, skipping
// the target itself, and returns at most count results.
func (s *Similarity) FindSimilar(target *tracks.Track, candidates []*tracks.Track, count int) []Similar {
	results := make([]Similar, 0, len(candidates))

	for _, candidate := range candidates {
		if candidate.ID == target.ID {
			continue
		}
		results = append(results, Similar{Track: candidate, Distance: s.Distance(target, candidate)})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Distance < results[j].Distance })

	if count >= 0 && len(results) > count {
		results = results[:count]
	}

	return results
}

// AreCompatible is the hard gate applied before any scoring: BPM within
// tolerance, key within the wheel distance budget, energy shapes close
// enough.
func (s *Similarity) AreCompatible(a, b *tracks.Track, rules Rules) bool {
	if rules.BPMTolerance > 0 && a.BPM > 0 && b.BPM > 0 {
		if BPMDistance(a.BPM, b.BPM) > rules.BPMTolerance {
			return false
		}
	}

	if a.Key != "" && b.Key != "" {
		keyDist := camelot.Distance(a.Key, b.Key)
		if !rules.AllowKeyChange {
			if keyDist > 0 {
				return false
			}
		} else if rules.MaxKeyDistance > 0 && keyDist > rules.MaxKeyDistance {
			return false
		}
	}

	if rules.MinEnergyMatch > 0 && len(a.EnergyCurve) > 0 && len(b.EnergyCurve) > 0 {
		if 1.0-energyDistance(a.EnergyCurve, b.EnergyCurve) < rules.MinEnergyMatch {
			return false
		}
	}

	return true
}

// BPMDistance measures tempo mismatch as a ratio, treating half- and
// double-time as equivalent tempos.
func BPMDistance(bpm1, bpm2 float64) float64 {
	if bpm1 <= 0 || bpm2 <= 0 {
		return 0
	}

	ratio := bpm1 / bpm2
	d := math.Abs(1 - ratio)
	if half := math.Abs(2 - ratio); half < d {
		d = half
	}
	if double := math.Abs(0.5 - ratio); double < d {
		d = double
	}
	return d
}

func cosineDistance(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 1
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 1
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return clamp(1-sim, 0, 1)
}

func durationDistance(dur1, dur2 float64) float64 {
	if dur1 <= 0 || dur2 <= 0 {
		return 0
	}
	ratio := math.Max(dur1, dur2) / math.Min(dur1, dur2)
	return clamp(1.0-1.0/ratio, 0, 1)
}

// energyDistance blends a global Pearson correlation of the two curves with a
// five-segment mean/deviation comparison, both computed on curves resampled
// to a common length.
func energyDistance(curve1, curve2 []float64) float64 {
	if len(curve1) == 0 || len(curve2) == 0 {
		return 0
	}

	e1 := resampleCurve(curve1, energyResampleLen)
	e2 := resampleCurve(curve2, energyResampleLen)

	var mean1, mean2 float64
	for i := 0; i < energyResampleLen; i++ {
		mean1 += e1[i]
		mean2 += e2[i]
	}
	mean1 /= energyResampleLen
	mean2 /= energyResampleLen

	var numerator, var1, var2 float64
	for i := 0; i < energyResampleLen; i++ {
		d1 := e1[i] - mean1
		d2 := e2[i] - mean2
		numerator += d1 * d2
		var1 += d1 * d1
		var2 += d2 * d2
	}

	correlation := 0.0
	if denominator := math.Sqrt(var1 * var2); denominator > 1e-10 {
		correlation = numerator / denominator
	}
	globalDistance := (1 - correlation) / 2

	segDistance := segmentEnergyDistance(e1, e2, 5)

	return clamp(0.6*globalDistance+0.4*segDistance, 0, 1)
}

// segmentEnergyDistance splits both curves into equal windows and compares
// the mean level and level spread of each window.
func segmentEnergyDistance(e1, e2 []float64, segments int) float64 {
	if len(e1) != len(e2) || len(e1) == 0 || segments <= 0 {
		return 0
	}

	segLen := len(e1) / segments
	if segLen == 0 {
		segLen = 1
	}

	totalDiff := 0.0
	actual := 0

	for s := 0; s < segments; s++ {
		start := s * segLen
		end := (s + 1) * segLen
		if s == segments-1 {
			end = len(e1)
		}
		if start >= len(e1) {
			break
		}

		var sum1, sum2, sq1, sq2 float64
		count := float64(end - start)
		for i := start; i < end; i++ {
			sum1 += e1[i]
			sum2 += e2[i]
			sq1 += e1[i] * e1[i]
			sq2 += e2[i] * e2[i]
		}

		mean1 := sum1 / count
		mean2 := sum2 / count
		sigma1 := math.Sqrt(math.Max(0, sq1/count-mean1*mean1))
		sigma2 := math.Sqrt(math.Max(0, sq2/count-mean2*mean2))

		totalDiff += 0.7*math.Abs(mean1-mean2) + 0.3*math.Abs(sigma1-sigma2)
		actual++
	}

	if actual == 0 {
		return 0
	}
	return clamp(totalDiff/float64(actual), 0, 1)
}

func resampleCurve(curve []float64, length int) []float64 {
	resampled := make([]float64, length)
	if len(curve) <= 1 {
		v := 0.0
		if len(curve) == 1 {
			v = curve[0]
		}
		for i := range resampled {
			resampled[i] = v
		}
		return resampled
	}

	for i := 0; i < length; i++ {
		srcIdx := float64(i) * float64(len(curve)-1) / float64(length-1)
		idx0 := int(srcIdx)
		idx1 := idx0 + 1
		if idx1 > len(curve)-1 {
			idx1 = len(curve) - 1
		}
		frac := srcIdx - float64(idx0)
		resampled[i] = curve[idx0]*(1-frac) + curve[idx1]*frac
	}
	return resampled
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
