package mixer

import (
	"fmt"
	"sync"

	"github.com/ayvan/automix/decoder"
	"github.com/ayvan/automix/match"
	"github.com/ayvan/automix/tracks"
	"github.com/sirupsen/logrus"
)

// Error kinds the engine originates. Wrapped errors carry the detail.
var (
	ErrInvalidArgument = fmt.Errorf("invalid argument")
	ErrTrackNotFound   = fmt.Errorf("track not found")
	ErrLoadFailed      = fmt.Errorf("load failed")
	ErrPlayback        = fmt.Errorf("playback error")
)

// EngineSampleRate is the internal mixing rate; decoded tracks at other
// rates are resampled at load time.
const EngineSampleRate = 44100

// Engine wires the store, decoder, playlist generator and scheduler into the
// control surface the host drives. All methods except Render belong to the
// control thread.
type Engine struct {
	store     tracks.TrackStore
	generator *match.Generator
	scheduler *Scheduler

	mu        sync.Mutex
	config    tracks.TransitionConfig
	lastError string
}

func NewEngine(store tracks.TrackStore, maxBufferFrames int) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("%w: nil track store", ErrInvalidArgument)
	}

	config := tracks.DefaultTransitionConfig()

	e := &Engine{
		store:     store,
		generator: match.NewGenerator(config),
		scheduler: NewScheduler(maxBufferFrames),
		config:    config,
	}

	// The scheduler gets the loader as an owned capability; no back-pointer
	// to the engine crosses into it.
	e.scheduler.SetTrackLoader(func(trackID int64) (*decoder.AudioBuffer, error) {
		return loadTrackAudio(store, trackID)
	})
	e.scheduler.SetSampleRate(EngineSampleRate)

	return e, nil
}

// Close stops playback and releases the decks.
func (e *Engine) Close() {
	e.scheduler.Stop()
}

func loadTrackAudio(store tracks.TrackStore, trackID int64) (*decoder.AudioBuffer, error) {
	track, err := store.Track(trackID)
	if err != nil {
		if err == tracks.ErrorNotFound {
			return nil, fmt.Errorf("%w: id %d", ErrTrackNotFound, trackID)
		}
		return nil, err
	}

	buffer, err := decoder.Decode(track.FilePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLoadFailed, err)
	}

	buffer, err = decoder.Resample(buffer, EngineSampleRate)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrLoadFailed, err)
	}

	return buffer, nil
}

// GeneratePlaylist builds a playlist from the stored tracks. Pure with
// respect to playback state.
func (e *Engine) GeneratePlaylist(seedTrackID int64, count int, rules match.Rules) (*tracks.Playlist, error) {
	seed, err := e.store.Track(seedTrackID)
	if err != nil {
		if err == tracks.ErrorNotFound {
			return nil, e.fail(fmt.Errorf("%w: seed id %d", ErrTrackNotFound, seedTrackID))
		}
		return nil, e.fail(err)
	}

	candidates, err := e.store.Tracks()
	if err != nil {
		return nil, e.fail(err)
	}

	playlist, err := e.generator.Generate(seed, candidates, count, rules)
	if err != nil {
		return nil, e.fail(fmt.Errorf("%w: %s", ErrInvalidArgument, err))
	}

	return playlist, nil
}

// CreatePlaylist builds a playlist with the given fixed ordering, planning
// every edge. Unknown ids are an error.
func (e *Engine) CreatePlaylist(trackIDs []int64) (*tracks.Playlist, error) {
	if len(trackIDs) == 0 {
		return nil, e.fail(fmt.Errorf("%w: no track ids", ErrInvalidArgument))
	}

	ordered := make([]*tracks.Track, 0, len(trackIDs))
	for _, id := range trackIDs {
		track, err := e.store.Track(id)
		if err != nil {
			if err == tracks.ErrorNotFound {
				return nil, e.fail(fmt.Errorf("%w: id %d", ErrTrackNotFound, id))
			}
			return nil, e.fail(err)
		}
		ordered = append(ordered, track)
	}

	return e.generator.CreateWithTransitions(ordered), nil
}

// Play loads the playlist into the scheduler and starts the first track.
func (e *Engine) Play(playlist *tracks.Playlist) error {
	if playlist == nil || playlist.Empty() {
		return e.fail(fmt.Errorf("%w: empty playlist", ErrPlayback))
	}

	if err := e.scheduler.LoadPlaylist(*playlist); err != nil {
		return e.fail(fmt.Errorf("%w: %s", ErrPlayback, err))
	}

	if err := e.scheduler.Play(); err != nil {
		return e.fail(fmt.Errorf("%w: %s", ErrPlayback, err))
	}

	return nil
}

func (e *Engine) Pause()  { e.scheduler.Pause() }
func (e *Engine) Resume() { e.scheduler.Resume() }
func (e *Engine) Stop()   { e.scheduler.Stop() }
func (e *Engine) Skip()   { e.scheduler.Skip() }

// Seek moves the active deck. Control thread.
func (e *Engine) Seek(positionSeconds float64) error {
	if positionSeconds < 0 {
		return e.fail(fmt.Errorf("%w: negative seek", ErrInvalidArgument))
	}
	e.scheduler.Seek(positionSeconds)
	return nil
}

// Render pulls one block of interleaved stereo audio. Audio thread.
func (e *Engine) Render(out []float32, frames int) int {
	return e.scheduler.Render(out, frames, EngineSampleRate)
}

// Poll services scheduler flags and delivers status callbacks. Call from the
// control thread every 10-50 ms.
func (e *Engine) Poll() {
	e.scheduler.Poll()
}

// SetTransitionConfig applies to planning and to the next transition onward.
func (e *Engine) SetTransitionConfig(config tracks.TransitionConfig) error {
	if err := config.Validate(); err != nil {
		return e.fail(fmt.Errorf("%w: %s", ErrInvalidArgument, err))
	}

	e.mu.Lock()
	e.config = config
	e.mu.Unlock()

	e.generator.SetTransitionConfig(config)
	return e.scheduler.SetTransitionConfig(config)
}

func (e *Engine) SetStatusCallback(callback StatusCallback) {
	e.scheduler.SetStatusCallback(callback)
}

func (e *Engine) PlaybackState() PlaybackState {
	return e.scheduler.State()
}

func (e *Engine) Position() float64 {
	return e.scheduler.Position()
}

func (e *Engine) CurrentTrackID() int64 {
	return e.scheduler.CurrentTrackID()
}

func (e *Engine) NextTrackID() int64 {
	return e.scheduler.NextTrackID()
}

// LastError returns the most recent control-call failure, for surfaces that
// only see a success flag.
func (e *Engine) LastError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

func (e *Engine) fail(err error) error {
	logrus.Error(err)
	e.mu.Lock()
	e.lastError = err.Error()
	e.mu.Unlock()
	return err
}
