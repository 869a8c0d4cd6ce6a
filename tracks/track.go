package tracks

import (
	"encoding/json"
	"fmt"
	"time"
)

// Feature vector sizes produced by the analyzer.
const (
	MFCCSize   = 13
	ChromaSize = 12
)

type Model struct {
	ID        int64      `json:"id" gorm:"primary_key"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"-" sql:"index"`
}

// Track is an analyzed music track. Feature vectors are stored as JSON blobs
// so the whole record survives a round trip through sqlite without extra
// tables.
type Track struct {
	Model
	FilePath string `json:"file_path"`

	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album"`
	SearchSlug string `json:"-"`
	Played     uint64 `json:"played"`

	// Analysis
	BPM         float64   `json:"bpm"`
	Key         string    `json:"key"` // Camelot notation, e.g. "8A"
	Duration    float64   `json:"duration"`
	Beats       []float64 `json:"beats" gorm:"-"`
	MFCC        []float64 `json:"mfcc" gorm:"-"`
	Chroma      []float64 `json:"chroma" gorm:"-"`
	EnergyCurve []float64 `json:"energy_curve" gorm:"-"`

	BeatsJSON       []byte `json:"-"`
	MFCCJSON        []byte `json:"-"`
	ChromaJSON      []byte `json:"-"`
	EnergyCurveJSON []byte `json:"-"`

	// Loudness
	LoudnessDB float64 `json:"loudness_db"`

	AnalyzedAt     int64 `json:"analyzed_at"`
	FileModifiedAt int64 `json:"file_modified_at"`
}

func (t *Track) BeforeSave() error {
	return t.packVectors()
}

func (t *Track) BeforeUpdate() error {
	return t.packVectors()
}

func (t *Track) AfterFind() error {
	return t.unpackVectors()
}

func (t *Track) packVectors() (err error) {
	if t.BeatsJSON, err = json.Marshal(t.Beats); err != nil {
		return
	}
	if t.MFCCJSON, err = json.Marshal(t.MFCC); err != nil {
		return
	}
	if t.ChromaJSON, err = json.Marshal(t.Chroma); err != nil {
		return
	}
	t.EnergyCurveJSON, err = json.Marshal(t.EnergyCurve)
	return
}

func (t *Track) unpackVectors() (err error) {
	for _, pair := range []struct {
		raw []byte
		dst *[]float64
	}{
		{t.BeatsJSON, &t.Beats},
		{t.MFCCJSON, &t.MFCC},
		{t.ChromaJSON, &t.Chroma},
		{t.EnergyCurveJSON, &t.EnergyCurve},
	} {
		*pair.dst = nil
		if len(pair.raw) == 0 {
			continue
		}
		if err = json.Unmarshal(pair.raw, pair.dst); err != nil {
			return
		}
	}
	return
}

// Validate checks the record invariants. Feature vectors of the wrong length
// are reported separately by HasMFCC/HasChroma: similarity simply skips the
// broken dimension.
func (t *Track) Validate() error {
	if t.FilePath == "" {
		return fmt.Errorf("track %d: empty file path", t.ID)
	}
	if t.BPM <= 0 {
		return fmt.Errorf("track %d: bpm must be positive, got %f", t.ID, t.BPM)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("track %d: duration must be positive", t.ID)
	}
	for i := 1; i < len(t.Beats); i++ {
		if t.Beats[i] <= t.Beats[i-1] {
			return fmt.Errorf("track %d: beat times not strictly increasing at %d", t.ID, i)
		}
	}
	for _, e := range t.EnergyCurve {
		if e < 0 || e > 1 {
			return fmt.Errorf("track %d: energy curve value %f out of [0,1]", t.ID, e)
		}
	}
	return nil
}

// HasMFCC reports whether the MFCC vector is present and well-formed.
func (t *Track) HasMFCC() bool {
	return len(t.MFCC) == MFCCSize
}

// HasChroma reports whether the chroma vector is present and well-formed.
func (t *Track) HasChroma() bool {
	return len(t.Chroma) == ChromaSize
}

// MeanEnergy returns the average of the energy curve, 0.5 when absent.
func (t *Track) MeanEnergy() float64 {
	if len(t.EnergyCurve) == 0 {
		return 0.5
	}
	sum := 0.0
	for _, e := range t.EnergyCurve {
		sum += e
	}
	return sum / float64(len(t.EnergyCurve))
}

// EnergyAt linearly interpolates the energy curve at the given time.
// Returns 0.5 when the curve is missing.
func (t *Track) EnergyAt(timeSeconds float64) float64 {
	if len(t.EnergyCurve) == 0 || t.Duration <= 0 {
		return 0.5
	}

	pos := timeSeconds / t.Duration
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}

	indexF := pos * float64(len(t.EnergyCurve)-1)
	index := int(indexF)
	if index >= len(t.EnergyCurve)-1 {
		return t.EnergyCurve[len(t.EnergyCurve)-1]
	}

	frac := indexF - float64(index)
	return t.EnergyCurve[index]*(1-frac) + t.EnergyCurve[index+1]*frac
}

// ClosestBeat returns the index of the beat nearest to the given time, or -1
// when the track has no beat grid.
func (t *Track) ClosestBeat(timeSeconds float64) int {
	if len(t.Beats) == 0 {
		return -1
	}

	lo, hi := 0, len(t.Beats)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Beats[mid] < timeSeconds {
			lo = mid + 1
		} else {
			hi = mid
		}
	}

	if lo == len(t.Beats) {
		return len(t.Beats) - 1
	}
	if lo == 0 {
		return 0
	}
	if t.Beats[lo]-timeSeconds < timeSeconds-t.Beats[lo-1] {
		return lo
	}
	return lo - 1
}
