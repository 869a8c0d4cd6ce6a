package match

import (
	"fmt"

	"github.com/Knetic/govaluate"
	"github.com/ayvan/automix/tracks"
)

// SimilarityWeights controls how much each feature dimension contributes to
// the track distance.
type SimilarityWeights struct {
	BPM      float64 `json:"bpm" yaml:"bpm"`
	Key      float64 `json:"key" yaml:"key"`
	MFCC     float64 `json:"mfcc" yaml:"mfcc"`
	Energy   float64 `json:"energy" yaml:"energy"`
	Chroma   float64 `json:"chroma" yaml:"chroma"`
	Duration float64 `json:"duration" yaml:"duration"`
}

// DefaultWeights returns the stock balance between tempo and harmony.
func DefaultWeights() SimilarityWeights {
	return SimilarityWeights{BPM: 1.0, Key: 1.0, MFCC: 0.5, Energy: 0.3, Chroma: 0.4, Duration: 0.2}
}

// ElectronicWeights favors tempo and key, the dimensions that matter most for
// beat-matched club music.
func ElectronicWeights() SimilarityWeights {
	return SimilarityWeights{BPM: 1.5, Key: 1.2, MFCC: 0.3, Energy: 0.5, Chroma: 0.3, Duration: 0.1}
}

// AmbientWeights favors timbre and energy shape over tempo.
func AmbientWeights() SimilarityWeights {
	return SimilarityWeights{BPM: 0.3, Key: 0.8, MFCC: 0.8, Energy: 1.0, Chroma: 0.6, Duration: 0.3}
}

// EnergyArc shapes the energy progression of a generated playlist.
type EnergyArc int

const (
	ArcNone EnergyArc = iota
	ArcAscending
	ArcPeak
	ArcDescending
	ArcWave
)

func (a EnergyArc) String() string {
	switch a {
	case ArcAscending:
		return "ascending"
	case ArcPeak:
		return "peak"
	case ArcDescending:
		return "descending"
	case ArcWave:
		return "wave"
	default:
		return "none"
	}
}

// ParseEnergyArc parses an arc name as used in configs and API requests.
func ParseEnergyArc(name string) (EnergyArc, error) {
	switch name {
	case "", "none":
		return ArcNone, nil
	case "ascending":
		return ArcAscending, nil
	case "peak":
		return ArcPeak, nil
	case "descending":
		return ArcDescending, nil
	case "wave":
		return ArcWave, nil
	}
	return ArcNone, fmt.Errorf("unknown energy arc %q", name)
}

// Rules constrains playlist generation.
type Rules struct {
	BPMTolerance   float64 `json:"bpm_tolerance"`    // 0 = unrestricted
	AllowKeyChange bool    `json:"allow_key_change"`
	MaxKeyDistance int     `json:"max_key_distance"` // 0 = unrestricted
	MinEnergyMatch float64 `json:"min_energy_match"` // 0-1

	Weights SimilarityWeights `json:"weights"`

	EnergyArc EnergyArc `json:"energy_arc"`

	BPMStepLimit         float64 `json:"bpm_step_limit"` // percent, 0 = off
	PreferBPMProgression bool    `json:"prefer_bpm_progression"`

	// Filter is an optional govaluate expression evaluated against each
	// candidate with parameters bpm, key, duration and energy. Tracks the
	// expression rejects never enter the pool.
	Filter string `json:"filter"`

	RandomSeed uint32 `json:"random_seed"` // 0 = non-deterministic
}

// DefaultRules allows everything and uses the default weights.
func DefaultRules() Rules {
	return Rules{
		AllowKeyChange: true,
		Weights:        DefaultWeights(),
	}
}

// relaxed returns a copy with every hard constraint lifted, used for the
// second candidate pass when the strict rules leave nothing to play.
func (r Rules) relaxed() Rules {
	relaxed := r
	relaxed.BPMTolerance = 0
	relaxed.MaxKeyDistance = 12
	relaxed.AllowKeyChange = true
	relaxed.MinEnergyMatch = 0
	relaxed.BPMStepLimit = 0
	return relaxed
}

// trackFilter compiles the rules filter expression once per generation run.
type trackFilter struct {
	expr *govaluate.EvaluableExpression
}

func newTrackFilter(filter string) (*trackFilter, error) {
	if filter == "" {
		return &trackFilter{}, nil
	}
	expr, err := govaluate.NewEvaluableExpression(filter)
	if err != nil {
		return nil, fmt.Errorf("bad filter expression: %s", err)
	}
	return &trackFilter{expr: expr}, nil
}

func (f *trackFilter) matches(track *tracks.Track) bool {
	if f.expr == nil {
		return true
	}

	params := map[string]interface{}{
		"bpm":      track.BPM,
		"key":      track.Key,
		"duration": track.Duration,
		"energy":   track.MeanEnergy(),
	}

	res, err := f.expr.Evaluate(params)
	if err != nil {
		return false
	}
	ok, isBool := res.(bool)
	return isBool && ok
}
