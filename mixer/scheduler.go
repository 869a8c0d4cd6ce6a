package mixer

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/ayvan/automix/decoder"
	"github.com/ayvan/automix/tracks"
	"github.com/sirupsen/logrus"
)

// PlaybackState of the scheduler.
type PlaybackState int32

const (
	StateStopped PlaybackState = iota
	StatePlaying
	StatePaused
	StateTransitioning
)

func (s PlaybackState) String() string {
	switch s {
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	case StateTransitioning:
		return "transitioning"
	default:
		return "stopped"
	}
}

// TrackLoader supplies decoded audio for a track id. The scheduler owns the
// loader as a capability; it never holds a reference back to the engine.
type TrackLoader func(trackID int64) (*decoder.AudioBuffer, error)

// StatusCallback reports one scheduler snapshot. Invoked from Poll only.
type StatusCallback func(state PlaybackState, currentTrackID int64, positionSeconds float64, nextTrackID int64)

const defaultMaxBufferFrames = 4096

// Scheduler orchestrates two decks and a crossfader over a playlist.
//
// Thread model:
//   Render — real-time audio thread: no allocation, no I/O, no callbacks;
//            communicates through single-producer/single-consumer edge flags.
//   Poll   — control thread: loading, deck swaps, callback delivery.
type Scheduler struct {
	decks      [2]*Deck
	activeIdx  int32 // index into decks; swapped only in Poll
	crossfader *Crossfader

	playlist     tracks.Playlist // set while stopped, read-only afterwards
	currentIndex int32

	config            tracks.TransitionConfig
	maxTransitionBits uint64 // float64 bits of config.MaxTransitionSeconds, for the audio thread

	state      int32
	sampleRate int32

	// SPSC edge flags across the thread boundary
	transitioning            uint32
	transitionTriggerPending uint32
	transitionFinished       uint32
	playbackFinished         uint32
	skipRequested            uint32
	needStatusNotify         uint32

	maxBufferFrames int
	bufA            []float32
	bufB            []float32

	loader         TrackLoader
	statusCallback StatusCallback
}

func NewScheduler(maxBufferFrames int) *Scheduler {
	if maxBufferFrames <= 0 {
		maxBufferFrames = defaultMaxBufferFrames
	}

	s := &Scheduler{
		decks:           [2]*Deck{NewDeck(), NewDeck()},
		crossfader:      NewCrossfader(),
		maxBufferFrames: maxBufferFrames,
		bufA:            make([]float32, maxBufferFrames*2),
		bufB:            make([]float32, maxBufferFrames*2),
	}
	s.SetSampleRate(44100)
	s.setConfig(tracks.DefaultTransitionConfig())
	return s
}

func (s *Scheduler) SetTrackLoader(loader TrackLoader) {
	s.loader = loader
}

func (s *Scheduler) SetStatusCallback(callback StatusCallback) {
	s.statusCallback = callback
}

func (s *Scheduler) SetSampleRate(sampleRate int) {
	if sampleRate > 0 {
		atomic.StoreInt32(&s.sampleRate, int32(sampleRate))
	}
}

func (s *Scheduler) SampleRate() int {
	return int(atomic.LoadInt32(&s.sampleRate))
}

// SetTransitionConfig applies from the next transition onward.
func (s *Scheduler) SetTransitionConfig(config tracks.TransitionConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.setConfig(config)
	return nil
}

func (s *Scheduler) setConfig(config tracks.TransitionConfig) {
	s.config = config
	atomic.StoreUint64(&s.maxTransitionBits, math.Float64bits(config.MaxTransitionSeconds))
}

func (s *Scheduler) State() PlaybackState {
	return PlaybackState(atomic.LoadInt32(&s.state))
}

func (s *Scheduler) setState(state PlaybackState) {
	atomic.StoreInt32(&s.state, int32(state))
}

func (s *Scheduler) activeDeck() *Deck {
	return s.decks[atomic.LoadInt32(&s.activeIdx)]
}

func (s *Scheduler) nextDeck() *Deck {
	return s.decks[1-atomic.LoadInt32(&s.activeIdx)]
}

func (s *Scheduler) swapDecks() {
	atomic.StoreInt32(&s.activeIdx, 1-atomic.LoadInt32(&s.activeIdx))
}

func (s *Scheduler) isTransitioning() bool {
	return atomic.LoadUint32(&s.transitioning) == 1
}

// LoadPlaylist installs the playlist and loads the first track into the
// active deck, preloading the second. Control thread.
func (s *Scheduler) LoadPlaylist(playlist tracks.Playlist) error {
	s.Stop()

	if playlist.Empty() {
		return fmt.Errorf("empty playlist")
	}
	if err := playlist.Validate(); err != nil {
		return fmt.Errorf("invalid playlist: %s", err)
	}

	s.playlist = playlist
	atomic.StoreInt32(&s.currentIndex, 0)

	if err := s.loadTrackToDeck(s.activeDeck(), playlist.Entries[0].TrackID); err != nil {
		return err
	}

	if playlist.Size() > 1 {
		if err := s.loadTrackToDeck(s.nextDeck(), playlist.Entries[1].TrackID); err != nil {
			// The transition will retry; only the first track is fatal here
			logrus.Errorf("preload failed: %s", err)
		}
	}

	s.crossfader.SetPosition(-1)

	return nil
}

// Play starts the active deck. Control thread.
func (s *Scheduler) Play() error {
	if s.playlist.Empty() || !s.activeDeck().IsLoaded() {
		return fmt.Errorf("no playlist loaded")
	}

	s.activeDeck().Play()
	s.setState(StatePlaying)
	s.requestStatusNotify()
	return nil
}

func (s *Scheduler) Pause() {
	s.activeDeck().Pause()
	s.nextDeck().Pause()
	s.setState(StatePaused)
	s.requestStatusNotify()
}

func (s *Scheduler) Resume() {
	if s.State() != StatePaused {
		return
	}

	s.activeDeck().Play()
	if s.isTransitioning() {
		s.nextDeck().Play()
		s.setState(StateTransitioning)
	} else {
		s.setState(StatePlaying)
	}
	s.requestStatusNotify()
}

// Stop unloads both decks and clears every cross-thread flag. Control thread.
func (s *Scheduler) Stop() {
	s.decks[0].Pause()
	s.decks[1].Pause()
	s.decks[0].Unload()
	s.decks[1].Unload()

	atomic.StoreUint32(&s.transitioning, 0)
	atomic.StoreUint32(&s.transitionTriggerPending, 0)
	atomic.StoreUint32(&s.transitionFinished, 0)
	atomic.StoreUint32(&s.playbackFinished, 0)
	atomic.StoreUint32(&s.skipRequested, 0)

	s.crossfader.StopAutomation()
	s.crossfader.SetPosition(-1)

	s.setState(StateStopped)
	s.requestStatusNotify()
}

// Skip requests a transition to the next track. Safe to call from the
// control thread at any time; the topology change itself happens in Poll.
func (s *Scheduler) Skip() {
	if int(atomic.LoadInt32(&s.currentIndex))+1 >= s.playlist.Size() {
		s.Stop()
		return
	}
	atomic.StoreUint32(&s.skipRequested, 1)
}

func (s *Scheduler) Seek(positionSeconds float64) {
	if s.activeDeck().IsLoaded() {
		s.activeDeck().Seek(positionSeconds)
	}
}

func (s *Scheduler) Position() float64 {
	return s.activeDeck().Position()
}

func (s *Scheduler) CurrentTrackID() int64 {
	return s.activeDeck().TrackID()
}

func (s *Scheduler) NextTrackID() int64 {
	idx := int(atomic.LoadInt32(&s.currentIndex))
	if idx+1 < s.playlist.Size() {
		return s.playlist.Entries[idx+1].TrackID
	}
	return 0
}

// =========================================================================
// Render — AUDIO THREAD
// =========================================================================

// Render mixes both decks into out and advances the crossfader. The block
// (clamped to the buffer capacity) is written in full; gaps are silence.
// Returns frames when stopped or paused, otherwise the larger of the two
// decks' rendered frame counts.
func (s *Scheduler) Render(out []float32, frames int, sampleRate int) int {
	if frames > len(out)/2 {
		frames = len(out) / 2
	}

	state := s.State()
	if state == StateStopped || state == StatePaused {
		zeroFill(out, frames)
		return frames
	}

	s.SetSampleRate(sampleRate)

	if frames > s.maxBufferFrames {
		frames = s.maxBufferFrames
	}

	s.rtUpdate()

	mix := s.crossfader.MixParams(frames)

	deckA := s.activeDeck()
	deckB := s.nextDeck()

	renderedA, renderedB := 0, 0

	if deckA.IsPlaying() {
		deckA.SetVolume(mix.VolumeA)
		deckA.SetEQ(mix.EQLowA, mix.EQMidA, mix.EQHighA)
		renderedA = deckA.Render(s.bufA, frames)
	} else {
		zeroFill(s.bufA, frames)
	}

	if deckB.IsPlaying() {
		deckB.SetVolume(mix.VolumeB)
		deckB.SetEQ(mix.EQLowB, mix.EQMidB, mix.EQHighB)
		renderedB = deckB.Render(s.bufB, frames)
	} else {
		zeroFill(s.bufB, frames)
	}

	for i := 0; i < frames*2; i++ {
		v := s.bufA[i] + s.bufB[i]
		if v > 1 {
			v = 1
		} else if v < -1 {
			v = -1
		}
		out[i] = v
	}

	if renderedB > renderedA {
		return renderedB
	}
	return renderedA
}

// rtUpdate inspects playback progress and raises edge flags for the control
// thread. Audio thread; the flags are atomics, and the position and duration
// reads take the active deck's mutex, as Deck.Render does.
func (s *Scheduler) rtUpdate() {
	active := s.activeDeck()
	if !active.IsLoaded() {
		return
	}

	position := active.Position()
	duration := active.Duration()
	idx := int(atomic.LoadInt32(&s.currentIndex))

	if !s.isTransitioning() && idx < s.playlist.Size() {
		transitionPoint := duration - math.Float64frombits(atomic.LoadUint64(&s.maxTransitionBits))
		if plan := s.playlist.Entries[idx].TransitionToNext; plan != nil {
			transitionPoint = plan.OutPoint.TimeSeconds
		}

		if position >= transitionPoint && idx+1 < s.playlist.Size() {
			atomic.StoreUint32(&s.transitionTriggerPending, 1)
		}
	}

	if s.isTransitioning() && !s.crossfader.IsAutomating() {
		atomic.StoreUint32(&s.transitionFinished, 1)
	}

	if active.IsFinished() && !s.isTransitioning() {
		atomic.StoreUint32(&s.playbackFinished, 1)
	}
}

// =========================================================================
// Poll — CONTROL THREAD
// =========================================================================

// Poll services the edge flags raised by the audio thread: transition
// triggers, deck swaps, playlist advancement and status delivery.
func (s *Scheduler) Poll() {
	if s.State() == StateStopped {
		s.deliverStatus()
		return
	}

	if atomic.CompareAndSwapUint32(&s.skipRequested, 1, 0) {
		if err := s.startTransition(); err != nil {
			logrus.Errorf("skip transition failed: %s", err)
		}
	}

	if atomic.CompareAndSwapUint32(&s.transitionTriggerPending, 1, 0) {
		if !s.isTransitioning() {
			if err := s.startTransition(); err != nil {
				logrus.Debugf("transition not started: %s", err)
			}
		}
	}

	if atomic.CompareAndSwapUint32(&s.transitionFinished, 1, 0) {
		s.finishTransition()
	}

	if atomic.CompareAndSwapUint32(&s.playbackFinished, 1, 0) {
		s.handlePlaybackFinished()
	}

	s.deliverStatus()
}

func (s *Scheduler) finishTransition() {
	s.swapDecks()

	old := s.nextDeck()
	old.Pause()
	old.Unload()

	atomic.AddInt32(&s.currentIndex, 1)
	atomic.StoreUint32(&s.transitioning, 0)
	s.setState(StatePlaying)

	idx := int(atomic.LoadInt32(&s.currentIndex))
	if idx+1 < s.playlist.Size() {
		if err := s.loadTrackToDeck(s.nextDeck(), s.playlist.Entries[idx+1].TrackID); err != nil {
			logrus.Errorf("preload failed: %s", err)
		}
	}

	s.crossfader.SetPosition(-1)
	s.requestStatusNotify()
}

func (s *Scheduler) handlePlaybackFinished() {
	idx := int(atomic.LoadInt32(&s.currentIndex))
	if idx+1 >= s.playlist.Size() {
		s.Stop()
		return
	}

	atomic.AddInt32(&s.currentIndex, 1)
	s.swapDecks()
	s.activeDeck().Play()

	idx++
	if idx+1 < s.playlist.Size() {
		if err := s.loadTrackToDeck(s.nextDeck(), s.playlist.Entries[idx+1].TrackID); err != nil {
			logrus.Errorf("preload failed: %s", err)
		}
	}

	s.requestStatusNotify()
}

// startTransition arms the crossfade into the next playlist entry. Control
// thread only; every plan field is published before the scheduler flips to
// Transitioning.
func (s *Scheduler) startTransition() error {
	idx := int(atomic.LoadInt32(&s.currentIndex))
	if idx+1 >= s.playlist.Size() {
		return fmt.Errorf("no next track")
	}

	next := s.nextDeck()
	if !next.IsLoaded() {
		if err := s.loadTrackToDeck(next, s.playlist.Entries[idx+1].TrackID); err != nil {
			return err
		}
	}

	// Defaults when the playlist carries no plan
	crossfadeDuration := s.config.CrossfadeBeats * 60.0 / 120.0
	stretchRatio := 1.0
	inPoint := 0.0
	planWantsEQSwap := false

	if plan := s.playlist.Entries[idx].TransitionToNext; plan != nil {
		crossfadeDuration = plan.CrossfadeDuration
		stretchRatio = plan.StretchRatio
		inPoint = plan.InPoint.TimeSeconds
		planWantsEQSwap = plan.EQHint.UseEQSwap
	}

	next.SetStretchRatio(stretchRatio)
	next.Seek(inPoint)
	next.Play()

	if s.config.UseEQSwap || planWantsEQSwap {
		s.crossfader.SetCurve(CurveEQSwap)
	} else {
		s.crossfader.SetCurve(CurveEqualPower)
	}

	crossfadeFrames := int(math.Round(crossfadeDuration * float64(s.SampleRate())))
	s.crossfader.StartAutomation(-1, 1, crossfadeFrames)

	atomic.StoreUint32(&s.transitioning, 1)
	s.setState(StateTransitioning)
	s.requestStatusNotify()

	return nil
}

func (s *Scheduler) loadTrackToDeck(deck *Deck, trackID int64) error {
	if s.loader == nil {
		return fmt.Errorf("no track loader configured")
	}

	buffer, err := s.loader(trackID)
	if err != nil {
		return fmt.Errorf("load track %d: %s", trackID, err)
	}

	if !deck.Load(buffer, trackID) {
		return fmt.Errorf("load track %d: bad audio buffer", trackID)
	}
	return nil
}

func (s *Scheduler) requestStatusNotify() {
	atomic.StoreUint32(&s.needStatusNotify, 1)
}

// deliverStatus fires the status callback with one consistent snapshot.
// Control thread only.
func (s *Scheduler) deliverStatus() {
	if !atomic.CompareAndSwapUint32(&s.needStatusNotify, 1, 0) {
		return
	}
	if s.statusCallback == nil {
		return
	}

	s.statusCallback(s.State(), s.CurrentTrackID(), s.Position(), s.NextTrackID())
}
