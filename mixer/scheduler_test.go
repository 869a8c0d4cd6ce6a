package mixer

import (
	"fmt"
	"testing"

	"github.com/ayvan/automix/decoder"
	"github.com/ayvan/automix/tracks"
	"github.com/stretchr/testify/assert"
)

func testLoader(buffers map[int64]*decoder.AudioBuffer) TrackLoader {
	return func(trackID int64) (*decoder.AudioBuffer, error) {
		buf, ok := buffers[trackID]
		if !ok {
			return nil, fmt.Errorf("track %d not in fixture", trackID)
		}
		return buf, nil
	}
}

func twoTrackPlaylist(outPoint, inPoint, crossfade float64) tracks.Playlist {
	return tracks.Playlist{
		Entries: []tracks.PlaylistEntry{
			{
				TrackID: 1,
				TransitionToNext: &tracks.TransitionPlan{
					FromTrackID:       1,
					ToTrackID:         2,
					OutPoint:          tracks.TransitionPoint{TimeSeconds: outPoint},
					InPoint:           tracks.TransitionPoint{TimeSeconds: inPoint},
					StretchRatio:      1.0,
					CrossfadeDuration: crossfade,
				},
			},
			{TrackID: 2},
		},
	}
}

func newTestScheduler() (*Scheduler, map[int64]*decoder.AudioBuffer) {
	buffers := map[int64]*decoder.AudioBuffer{
		1: sineBuffer(440, 2, 44100),
		2: sineBuffer(880, 2, 44100),
	}
	s := NewScheduler(1024)
	s.SetTrackLoader(testLoader(buffers))
	return s, buffers
}

func TestSchedulerLoadAndPlay(t *testing.T) {
	s, _ := newTestScheduler()

	err := s.LoadPlaylist(twoTrackPlaylist(1.5, 0, 0.3))
	assert.NoError(t, err)
	assert.Equal(t, int64(1), s.CurrentTrackID())
	assert.Equal(t, int64(2), s.NextTrackID())

	assert.NoError(t, s.Play())
	assert.Equal(t, StatePlaying, s.State())
}

func TestSchedulerRejectsEmptyPlaylist(t *testing.T) {
	s, _ := newTestScheduler()
	assert.Error(t, s.LoadPlaylist(tracks.Playlist{}))
	assert.Error(t, s.Play())
}

func TestSchedulerPauseSilencesOutput(t *testing.T) {
	s, _ := newTestScheduler()
	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(1.5, 0, 0.3)))
	assert.NoError(t, s.Play())

	out := make([]float32, 512*2)
	s.Render(out, 512, 44100)

	s.Pause()
	assert.Equal(t, StatePaused, s.State())

	frames := s.Render(out, 512, 44100)
	assert.Equal(t, 512, frames)
	for i, v := range out {
		assert.Equal(t, float32(0), v, "sample %d", i)
	}

	s.Resume()
	assert.Equal(t, StatePlaying, s.State())
	s.Render(out, 512, 44100)
	var energy float64
	for _, v := range out {
		energy += float64(v) * float64(v)
	}
	assert.True(t, energy > 0.01)
}

func TestSchedulerRealTimeTransition(t *testing.T) {
	s, _ := newTestScheduler()
	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(1.5, 0, 0.3)))
	assert.NoError(t, s.Play())

	out := make([]float32, 512*2)
	sawTransition := false

	// 1.6 seconds of 512-frame blocks, one poll per block
	blocks := int(1.6 * 44100 / 512)
	for b := 0; b < blocks; b++ {
		frames := s.Render(out, 512, 44100)
		assert.Equal(t, 512, frames)

		// Invariant: output always within [-1, 1]
		for _, v := range out {
			assert.True(t, v >= -1 && v <= 1)
		}

		s.Poll()

		if s.State() == StateTransitioning {
			sawTransition = true
			var energy float64
			for _, v := range out {
				energy += float64(v) * float64(v)
			}
			assert.True(t, energy > 0.01, "silent block during transition")
		}
	}

	assert.True(t, sawTransition, "transition never started")
	state := s.State()
	assert.True(t, state == StateTransitioning || state == StatePlaying)
}

func TestSchedulerDeckSwapAfterTransition(t *testing.T) {
	s, _ := newTestScheduler()
	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(0.2, 0, 0.1)))
	assert.NoError(t, s.Play())

	prevNext := s.NextTrackID()
	assert.Equal(t, int64(2), prevNext)

	out := make([]float32, 512*2)
	for b := 0; b < 100 && s.CurrentTrackID() != prevNext; b++ {
		s.Render(out, 512, 44100)
		s.Poll()
	}

	// After the crossfade completes the old next deck is the active one
	assert.Equal(t, prevNext, s.CurrentTrackID())
	assert.Equal(t, StatePlaying, s.State())
	assert.Equal(t, int64(0), s.NextTrackID())
}

func TestSchedulerSkip(t *testing.T) {
	s, _ := newTestScheduler()
	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(1.9, 0, 0.1)))
	assert.NoError(t, s.Play())

	s.Skip()
	s.Poll()
	assert.Equal(t, StateTransitioning, s.State())

	// Skip with no further track stops playback
	out := make([]float32, 512*2)
	for b := 0; b < 100 && s.State() == StateTransitioning; b++ {
		s.Render(out, 512, 44100)
		s.Poll()
	}
	assert.Equal(t, StatePlaying, s.State())

	s.Skip()
	assert.Equal(t, StateStopped, s.State())
}

func TestSchedulerStopClearsEverything(t *testing.T) {
	s, _ := newTestScheduler()
	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(0.2, 0, 0.1)))
	assert.NoError(t, s.Play())

	out := make([]float32, 512*2)
	s.Render(out, 512, 44100)
	s.Stop()

	assert.Equal(t, StateStopped, s.State())
	assert.Equal(t, int64(0), s.CurrentTrackID())
	assert.False(t, s.decks[0].IsLoaded())
	assert.False(t, s.decks[1].IsLoaded())
	assert.InDelta(t, -1.0, s.crossfader.Position(), 1e-6)

	frames := s.Render(out, 512, 44100)
	assert.Equal(t, 512, frames)
	for _, v := range out {
		assert.Equal(t, float32(0), v)
	}
}

func TestSchedulerStatusCallbackFromPoll(t *testing.T) {
	s, _ := newTestScheduler()

	type status struct {
		state   PlaybackState
		current int64
		next    int64
	}
	var statuses []status
	s.SetStatusCallback(func(state PlaybackState, currentTrackID int64, position float64, nextTrackID int64) {
		statuses = append(statuses, status{state, currentTrackID, nextTrackID})
	})

	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(1.5, 0, 0.3)))
	assert.NoError(t, s.Play())

	// The callback fires in Poll, not in Play
	assert.Empty(t, statuses)
	s.Poll()
	if assert.NotEmpty(t, statuses) {
		assert.Equal(t, StatePlaying, statuses[0].state)
		assert.Equal(t, int64(1), statuses[0].current)
		assert.Equal(t, int64(2), statuses[0].next)
	}

	// No state change, no extra callback
	n := len(statuses)
	s.Poll()
	assert.Equal(t, n, len(statuses))
}

func TestSchedulerFailedPreloadBlocksTransition(t *testing.T) {
	buffers := map[int64]*decoder.AudioBuffer{
		1: sineBuffer(440, 2, 44100),
		// Track 2 missing: load fails
	}
	s := NewScheduler(1024)
	s.SetTrackLoader(testLoader(buffers))

	err := s.LoadPlaylist(twoTrackPlaylist(0.2, 0, 0.1))
	assert.NoError(t, err) // only the active track is fatal at load time
	assert.NoError(t, s.Play())

	out := make([]float32, 512*2)
	for b := 0; b < 40; b++ {
		s.Render(out, 512, 44100)
		s.Poll()
	}

	// The transition keeps failing; the current track keeps playing
	assert.Equal(t, StatePlaying, s.State())
	assert.Equal(t, int64(1), s.CurrentTrackID())
}

func TestSchedulerTransitionConfigValidation(t *testing.T) {
	s, _ := newTestScheduler()

	bad := tracks.DefaultTransitionConfig()
	bad.MinTransitionSeconds = 60
	assert.Error(t, s.SetTransitionConfig(bad))

	good := tracks.DefaultTransitionConfig()
	good.UseEQSwap = true
	assert.NoError(t, s.SetTransitionConfig(good))
}

func TestSchedulerPlaybackFinishedAdvances(t *testing.T) {
	// The plan's out point lies beyond the end of the first track, so the
	// crossfade never triggers; playback runs to the end and the scheduler
	// advances to the preloaded deck.
	buffers := map[int64]*decoder.AudioBuffer{
		1: sineBuffer(440, 0.05, 44100),
		2: sineBuffer(880, 2, 44100),
	}
	s := NewScheduler(1024)
	s.SetTrackLoader(testLoader(buffers))

	assert.NoError(t, s.LoadPlaylist(twoTrackPlaylist(10, 0, 0.1)))
	assert.NoError(t, s.Play())

	out := make([]float32, 512*2)
	for b := 0; b < 60 && s.CurrentTrackID() != 2; b++ {
		s.Render(out, 512, 44100)
		s.Poll()
	}

	assert.Equal(t, int64(2), s.CurrentTrackID())
	assert.Equal(t, StatePlaying, s.State())
}
