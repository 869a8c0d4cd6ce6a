package match

import (
	"math"
	"sort"

	"github.com/ayvan/automix/camelot"
	"github.com/ayvan/automix/tracks"
)

const (
	outPointSamples = 40
	beatsPerBar     = 4
	phraseAlignSpan = 2.0 // seconds to the nearest phrase boundary for zero alignment credit
)

// Planner decides where and how to mix out of one track and into the next:
// beat-snapped out/in points, time-stretch ratio, pitch-shift metadata, EQ
// swap envelope and crossfade length.
type Planner struct {
	config tracks.TransitionConfig
}

func NewPlanner(config tracks.TransitionConfig) *Planner {
	return &Planner{config: config}
}

func (p *Planner) SetConfig(config tracks.TransitionConfig) {
	p.config = config
}

func (p *Planner) Config() tracks.TransitionConfig {
	return p.config
}

// CreatePlan builds the full transition plan from one track into the next.
func (p *Planner) CreatePlan(from, to *tracks.Track) tracks.TransitionPlan {
	plan := tracks.TransitionPlan{
		FromTrackID:  from.ID,
		ToTrackID:    to.ID,
		StretchRatio: 1.0,
	}

	plan.OutPoint = p.FindOutPoint(from)
	plan.InPoint = p.FindInPoint(to)

	if from.BPM > 0 && to.BPM > 0 {
		plan.StretchRatio = p.stretchRatio(from.BPM, to.BPM)
	}

	plan.PitchShiftSemitone = p.pitchShift(from.Key, to.Key)
	plan.CrossfadeDuration = p.crossfadeDuration(from.BPM, to.BPM)
	plan.EQHint = p.eqHint(plan.OutPoint, plan.InPoint)

	return plan
}

// FindOutPoint scores beat-snapped candidates in the last stretch of the
// track, preferring low energy, phrase alignment, proximity to the customary
// 16-seconds-from-end spot and a falling energy trend.
func (p *Planner) FindOutPoint(track *tracks.Track) tracks.TransitionPoint {
	if track.Duration <= 0 {
		return tracks.TransitionPoint{}
	}

	searchStart := math.Max(0, track.Duration-p.config.MaxTransitionSeconds)
	searchEnd := math.Max(0, track.Duration-p.config.MinTransitionSeconds)

	if searchStart >= searchEnd {
		// Track too short for a proper search window.
		return p.pointAt(track, track.Duration*0.7)
	}

	defaultOut := math.Max(0, track.Duration-16)
	phrases := phraseBoundaries(track.Beats)

	bestTime := defaultOut
	bestScore := math.Inf(1)

	for _, t := range p.candidates(track, searchStart, searchEnd, phrases) {
		energy := track.EnergyAt(t)
		align := phraseAlign(t, phrases)
		trend := energyTrend(track, t)

		score := 0.35*energy +
			0.30*align +
			0.15*math.Abs(t-defaultOut)/track.Duration +
			0.20*((trend+1)/2)

		if score < bestScore {
			bestScore = score
			bestTime = t
		}
	}

	return p.pointAt(track, bestTime)
}

// FindInPoint scores beat-snapped candidates in the opening stretch of the
// track, preferring low energy, phrase alignment and a rising energy trend.
func (p *Planner) FindInPoint(track *tracks.Track) tracks.TransitionPoint {
	if track.Duration <= 0 {
		return tracks.TransitionPoint{}
	}

	searchStart := p.config.MinTransitionSeconds
	searchEnd := math.Min(track.Duration, p.config.MaxTransitionSeconds)

	if searchStart >= searchEnd {
		return p.pointAt(track, 0)
	}

	phrases := phraseBoundaries(track.Beats)

	bestTime := searchStart
	bestScore := math.Inf(1)

	for _, t := range p.candidates(track, searchStart, searchEnd, phrases) {
		energy := track.EnergyAt(t)
		align := phraseAlign(t, phrases)
		trend := energyTrend(track, t)

		score := 0.35*energy +
			0.35*align +
			0.30*((-trend+1)/2)

		if score < bestScore {
			bestScore = score
			bestTime = t
		}
	}

	return p.pointAt(track, bestTime)
}

// candidates returns beat-snapped candidate times inside the window: uniform
// samples plus every phrase boundary that falls in the window. Candidates
// that snap outside the window are dropped.
func (p *Planner) candidates(track *tracks.Track, searchStart, searchEnd float64, phrases []float64) []float64 {
	raw := make([]float64, 0, outPointSamples+len(phrases))
	for i := 0; i < outPointSamples; i++ {
		raw = append(raw, searchStart+(searchEnd-searchStart)*float64(i)/float64(outPointSamples-1))
	}
	for _, b := range phrases {
		if b >= searchStart && b <= searchEnd {
			raw = append(raw, b)
		}
	}

	snapped := raw[:0]
	for _, t := range raw {
		if idx := track.ClosestBeat(t); idx >= 0 {
			t = track.Beats[idx]
		}
		if t < searchStart || t > searchEnd {
			continue
		}
		snapped = append(snapped, t)
	}
	return snapped
}

func (p *Planner) pointAt(track *tracks.Track, t float64) tracks.TransitionPoint {
	point := tracks.TransitionPoint{TimeSeconds: t}
	if idx := track.ClosestBeat(t); idx >= 0 {
		point.BeatIndex = idx
	}
	point.Energy = track.EnergyAt(point.TimeSeconds)
	return point
}

// stretchRatio folds half/double time into the natural range and falls back
// to 1.0 when the required stretch exceeds the configured limit.
func (p *Planner) stretchRatio(targetBPM, sourceBPM float64) float64 {
	ratio := targetBPM / sourceBPM

	if ratio > 1.5 {
		ratio /= 2
	}
	if ratio < 0.67 {
		ratio *= 2
	}

	if math.Abs(1-ratio) > p.config.StretchLimit {
		return 1.0
	}
	return ratio
}

// pitchShift computes the pitch-shift metadata for nearly compatible keys.
// It is never applied during playback; the mixer treats it as advisory.
func (p *Planner) pitchShift(fromKey, toKey string) int {
	dist := camelot.Distance(fromKey, toKey)
	if dist == 0 || dist > 2 {
		return 0
	}

	diff, err := camelot.SemitoneDiff(toKey, fromKey)
	if err != nil {
		return 0
	}
	if diff < -2 || diff > 2 {
		return 0
	}
	return diff
}

func (p *Planner) crossfadeDuration(fromBPM, toBPM float64) float64 {
	avgBPM := 120.0
	if fromBPM > 0 && toBPM > 0 {
		avgBPM = (fromBPM + toBPM) / 2
	}

	duration := 60.0 / avgBPM * p.config.CrossfadeBeats
	return clamp(duration, p.config.MinTransitionSeconds, p.config.MaxTransitionSeconds)
}

// eqHint lays out the low-band swap envelope. A hot outgoing section cuts
// bass earlier; a quiet incoming section restores it later.
func (p *Planner) eqHint(outPoint, inPoint tracks.TransitionPoint) tracks.EQTransitionHint {
	hint := tracks.EQTransitionHint{
		UseEQSwap:       p.config.UseEQSwap,
		LowCutStart:     0.0,
		LowCutEnd:       0.5,
		LowRestoreStart: 0.5,
		LowRestoreEnd:   1.0,
	}

	if outPoint.Energy > 0.7 {
		hint.LowCutEnd = 0.4
	}
	if inPoint.Energy < 0.3 {
		hint.LowRestoreStart = 0.6
	}

	return hint
}

// phraseBoundaries picks beats at 8- and 16-bar spacings as musical anchors.
func phraseBoundaries(beats []float64) []float64 {
	if len(beats) == 0 {
		return nil
	}

	boundarySet := make(map[int]bool)
	for _, barsPerPhrase := range []int{8, 16} {
		step := barsPerPhrase * beatsPerBar
		for i := 0; i < len(beats); i += step {
			boundarySet[i] = true
		}
	}

	boundaries := make([]float64, 0, len(boundarySet))
	for idx := range boundarySet {
		boundaries = append(boundaries, beats[idx])
	}
	sort.Float64s(boundaries)
	return boundaries
}

// phraseAlign returns 0 on a boundary, 1 at phraseAlignSpan seconds or more
// away.
func phraseAlign(t float64, boundaries []float64) float64 {
	if len(boundaries) == 0 {
		return 1
	}

	minDist := math.Inf(1)
	for _, b := range boundaries {
		if d := math.Abs(t - b); d < minDist {
			minDist = d
		}
	}
	return clamp(minDist/phraseAlignSpan, 0, 1)
}

// energyTrend measures the slope of the energy curve around t over a two
// second window, clamped to [-1, 1].
func energyTrend(track *tracks.Track, t float64) float64 {
	trend := track.EnergyAt(t+1) - track.EnergyAt(t-1)
	return clamp(trend, -1, 1)
}
