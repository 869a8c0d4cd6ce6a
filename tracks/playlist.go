package tracks

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TransitionPoint marks a position in a track where a transition starts or
// lands.
type TransitionPoint struct {
	TimeSeconds float64 `json:"time_seconds"`
	BeatIndex   int     `json:"beat_index"`
	Energy      float64 `json:"energy"`
}

// EQTransitionHint describes the low-band swap envelope for an EQ transition.
// All phase values are fractions of the transition progress in [0,1].
type EQTransitionHint struct {
	UseEQSwap       bool    `json:"use_eq_swap"`
	LowCutStart     float64 `json:"low_cut_start"`
	LowCutEnd       float64 `json:"low_cut_end"`
	LowRestoreStart float64 `json:"low_restore_start"`
	LowRestoreEnd   float64 `json:"low_restore_end"`
}

// TransitionPlan describes how to mix from one track into the next.
type TransitionPlan struct {
	FromTrackID int64 `json:"from_track_id"`
	ToTrackID   int64 `json:"to_track_id"`

	OutPoint TransitionPoint `json:"out_point"`
	InPoint  TransitionPoint `json:"in_point"`

	StretchRatio       float64 `json:"stretch_ratio"`        // 1.0 = no stretch
	PitchShiftSemitone int     `json:"pitch_shift_semitone"` // metadata only, never auto-applied
	CrossfadeDuration  float64 `json:"crossfade_duration"`   // seconds

	EQHint EQTransitionHint `json:"eq_hint"`
}

// PlaylistEntry is one step of a mix: a track plus the plan into the next
// entry. The last entry carries no plan.
type PlaylistEntry struct {
	TrackID          int64           `json:"track_id"`
	TransitionToNext *TransitionPlan `json:"transition_to_next,omitempty"`
}

// Playlist is an ordered mix of tracks with per-edge transition plans.
type Playlist struct {
	Model
	UUID        string          `json:"uuid"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Entries     []PlaylistEntry `json:"entries" gorm:"-"`
	EntriesJSON []byte          `json:"-"`
}

type PlaylistSlice []Playlist

func (ps PlaylistSlice) String() (res string) {
	for _, playlist := range ps {
		if playlist.Description != "" {
			res += fmt.Sprintf("%s (%d tracks) - %s\n", playlist.Name, len(playlist.Entries), playlist.Description)
		} else {
			res += fmt.Sprintf("%s (%d tracks)\n", playlist.Name, len(playlist.Entries))
		}
	}

	res = strings.TrimRight(res, "\n")
	return
}

func (p *Playlist) Size() int {
	return len(p.Entries)
}

func (p *Playlist) Empty() bool {
	return len(p.Entries) == 0
}

// TrackIDs returns the ordered track ids of the playlist.
func (p *Playlist) TrackIDs() []int64 {
	ids := make([]int64, len(p.Entries))
	for i, e := range p.Entries {
		ids[i] = e.TrackID
	}
	return ids
}

// Validate checks the playlist invariants: unique track ids, transition
// endpoints matching the entry ordering, and no plan on the last entry.
func (p *Playlist) Validate() error {
	seen := make(map[int64]bool, len(p.Entries))
	for i, entry := range p.Entries {
		if seen[entry.TrackID] {
			return fmt.Errorf("duplicate track %d at entry %d", entry.TrackID, i)
		}
		seen[entry.TrackID] = true

		last := i == len(p.Entries)-1
		if last {
			if entry.TransitionToNext != nil {
				return fmt.Errorf("last entry carries a transition plan")
			}
			continue
		}
		plan := entry.TransitionToNext
		if plan == nil {
			continue
		}
		if plan.FromTrackID != entry.TrackID {
			return fmt.Errorf("entry %d: plan from_track %d != entry track %d", i, plan.FromTrackID, entry.TrackID)
		}
		if plan.ToTrackID != p.Entries[i+1].TrackID {
			return fmt.Errorf("entry %d: plan to_track %d != next entry track %d", i, plan.ToTrackID, p.Entries[i+1].TrackID)
		}
	}
	return nil
}

func (p *Playlist) BeforeSave() (err error) {
	p.EntriesJSON, err = json.Marshal(p.Entries)
	return
}

func (p *Playlist) BeforeUpdate() (err error) {
	p.EntriesJSON, err = json.Marshal(p.Entries)
	return
}

func (p *Playlist) AfterFind() (err error) {
	p.Entries = make([]PlaylistEntry, 0)
	if len(p.EntriesJSON) != 0 {
		err = json.Unmarshal(p.EntriesJSON, &p.Entries)
	}
	return
}

// TransitionConfig controls how transitions are planned and executed.
type TransitionConfig struct {
	CrossfadeBeats       float64 `json:"crossfade_beats" yaml:"crossfade_beats"`
	UseEQSwap            bool    `json:"use_eq_swap" yaml:"use_eq_swap"`
	StretchLimit         float64 `json:"stretch_limit" yaml:"stretch_limit"`
	MinTransitionSeconds float64 `json:"min_transition_seconds" yaml:"min_transition_seconds"`
	MaxTransitionSeconds float64 `json:"max_transition_seconds" yaml:"max_transition_seconds"`
}

// DefaultTransitionConfig returns the stock 16-beat equal-power setup.
func DefaultTransitionConfig() TransitionConfig {
	return TransitionConfig{
		CrossfadeBeats:       16,
		UseEQSwap:            false,
		StretchLimit:         0.06,
		MinTransitionSeconds: 4,
		MaxTransitionSeconds: 32,
	}
}

// Validate rejects impossible transition windows.
func (c TransitionConfig) Validate() error {
	if c.MinTransitionSeconds >= c.MaxTransitionSeconds {
		return fmt.Errorf("min transition %.1fs must be below max %.1fs", c.MinTransitionSeconds, c.MaxTransitionSeconds)
	}
	if c.CrossfadeBeats <= 0 {
		return fmt.Errorf("crossfade beats must be positive")
	}
	if c.StretchLimit < 0 {
		return fmt.Errorf("stretch limit must not be negative")
	}
	return nil
}
