package tracks

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testTrack(id int64) *Track {
	track := &Track{
		FilePath: "/music/test.mp3",
		BPM:      128,
		Key:      "8A",
		Duration: 240,
	}
	track.ID = id
	for t := 0.0; t < 240; t += 60.0 / 128.0 {
		track.Beats = append(track.Beats, t)
	}
	for i := 0; i < 100; i++ {
		track.EnergyCurve = append(track.EnergyCurve, 0.5)
	}
	return track
}

func TestTrackValidate(t *testing.T) {
	track := testTrack(1)
	assert.NoError(t, track.Validate())

	bad := testTrack(2)
	bad.BPM = 0
	assert.Error(t, bad.Validate())

	bad = testTrack(3)
	bad.FilePath = ""
	assert.Error(t, bad.Validate())

	bad = testTrack(4)
	bad.Beats = []float64{0, 1, 1}
	assert.Error(t, bad.Validate())

	bad = testTrack(5)
	bad.EnergyCurve = []float64{0.5, 1.5}
	assert.Error(t, bad.Validate())
}

func TestEnergyAt(t *testing.T) {
	track := testTrack(1)
	track.EnergyCurve = []float64{0, 1}

	assert.InDelta(t, 0.0, track.EnergyAt(0), 1e-9)
	assert.InDelta(t, 1.0, track.EnergyAt(240), 1e-9)
	assert.InDelta(t, 0.5, track.EnergyAt(120), 1e-9)

	// Out-of-range times clamp
	assert.InDelta(t, 0.0, track.EnergyAt(-10), 1e-9)
	assert.InDelta(t, 1.0, track.EnergyAt(500), 1e-9)

	// Missing curve falls back to middle energy
	track.EnergyCurve = nil
	assert.InDelta(t, 0.5, track.EnergyAt(100), 1e-9)
}

func TestClosestBeat(t *testing.T) {
	track := &Track{Beats: []float64{0, 0.5, 1.0, 1.5, 2.0}}

	assert.Equal(t, 0, track.ClosestBeat(-1))
	assert.Equal(t, 0, track.ClosestBeat(0.1))
	assert.Equal(t, 1, track.ClosestBeat(0.4))
	assert.Equal(t, 2, track.ClosestBeat(1.1))
	assert.Equal(t, 4, track.ClosestBeat(10))

	empty := &Track{}
	assert.Equal(t, -1, empty.ClosestBeat(1))
}

func TestVectorRoundTrip(t *testing.T) {
	track := testTrack(1)
	track.MFCC = make([]float64, MFCCSize)
	track.Chroma = make([]float64, ChromaSize)

	assert.NoError(t, track.BeforeSave())
	assert.NotEmpty(t, track.BeatsJSON)

	restored := &Track{
		BeatsJSON:       track.BeatsJSON,
		MFCCJSON:        track.MFCCJSON,
		ChromaJSON:      track.ChromaJSON,
		EnergyCurveJSON: track.EnergyCurveJSON,
	}
	assert.NoError(t, restored.AfterFind())
	assert.Equal(t, track.Beats, restored.Beats)
	assert.Equal(t, track.MFCC, restored.MFCC)
	assert.Equal(t, track.Chroma, restored.Chroma)
	assert.Equal(t, track.EnergyCurve, restored.EnergyCurve)
}

func TestPlaylistValidate(t *testing.T) {
	playlist := &Playlist{
		Entries: []PlaylistEntry{
			{TrackID: 1, TransitionToNext: &TransitionPlan{FromTrackID: 1, ToTrackID: 2}},
			{TrackID: 2, TransitionToNext: &TransitionPlan{FromTrackID: 2, ToTrackID: 3}},
			{TrackID: 3},
		},
	}
	assert.NoError(t, playlist.Validate())
	assert.Equal(t, []int64{1, 2, 3}, playlist.TrackIDs())

	dup := &Playlist{
		Entries: []PlaylistEntry{{TrackID: 1}, {TrackID: 1}},
	}
	assert.Error(t, dup.Validate())

	wrongEdge := &Playlist{
		Entries: []PlaylistEntry{
			{TrackID: 1, TransitionToNext: &TransitionPlan{FromTrackID: 1, ToTrackID: 5}},
			{TrackID: 2},
		},
	}
	assert.Error(t, wrongEdge.Validate())

	lastWithPlan := &Playlist{
		Entries: []PlaylistEntry{
			{TrackID: 1, TransitionToNext: &TransitionPlan{FromTrackID: 1, ToTrackID: 1}},
		},
	}
	assert.Error(t, lastWithPlan.Validate())
}

func TestTransitionConfigValidate(t *testing.T) {
	cfg := DefaultTransitionConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, 16.0, cfg.CrossfadeBeats)
	assert.Equal(t, 0.06, cfg.StretchLimit)

	cfg.MinTransitionSeconds = 40
	assert.Error(t, cfg.Validate())
}
