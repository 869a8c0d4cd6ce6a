package mixer

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/ayvan/automix/decoder"
)

const (
	stretchBlockFrames = 512

	minStretchRatio = 0.5
	maxStretchRatio = 2.0

	minEQGainDB = -60.0
	maxEQGainDB = 12.0
)

// Deck plays a single loaded track: position, volume ramp, 3-band EQ and
// optional time-stretch. Control inputs cross the thread boundary through
// atomics; the sample buffer is swapped only under the deck mutex on the
// control thread.
type Deck struct {
	mu sync.Mutex

	buffer *decoder.AudioBuffer

	// Atomic control inputs
	loaded       uint32
	playing      uint32
	finished     uint32
	volume       uint32 // float32 bits
	stretchRatio uint32 // float32 bits
	eqLowDB      uint32 // float32 bits
	eqMidDB      uint32 // float32 bits
	eqHighDB     uint32 // float32 bits
	trackID      int64

	// Playback cursor in source frames; the fractional part lives in
	// stretchPos while stretching.
	positionFrames int64
	stretchPos     float64

	// Render-thread state
	prevVolume float32
	eq         eq3Band

	// Pre-allocated deinterleave scratch for the stretcher. Sized for the
	// widest source span one output block can consume at the maximum
	// stretch ratio.
	scratchL []float32
	scratchR []float32
}

func NewDeck() *Deck {
	d := &Deck{
		prevVolume: -1,
		scratchL:   make([]float32, stretchBlockFrames*int(maxStretchRatio)+2),
		scratchR:   make([]float32, stretchBlockFrames*int(maxStretchRatio)+2),
	}
	d.SetVolume(1)
	d.SetStretchRatio(1)
	return d
}

// Load installs a decoded track. Control thread only.
func (d *Deck) Load(buffer *decoder.AudioBuffer, trackID int64) bool {
	if buffer == nil || buffer.SampleRate <= 0 || len(buffer.Samples) == 0 {
		return false
	}

	d.mu.Lock()
	d.buffer = buffer
	atomic.StoreInt64(&d.positionFrames, 0)
	d.stretchPos = 0
	d.prevVolume = -1
	d.eq.reset()
	d.eq.update(float64(buffer.SampleRate), 0, 0, 0)
	d.mu.Unlock()

	atomic.StoreInt64(&d.trackID, trackID)
	atomic.StoreUint32(&d.finished, 0)
	atomic.StoreUint32(&d.loaded, 1)
	return true
}

// Unload drops the current track. Control thread only.
func (d *Deck) Unload() {
	atomic.StoreUint32(&d.playing, 0)
	atomic.StoreUint32(&d.loaded, 0)
	atomic.StoreInt64(&d.trackID, 0)
	d.SetEQ(0, 0, 0)

	d.mu.Lock()
	d.buffer = nil
	atomic.StoreInt64(&d.positionFrames, 0)
	d.stretchPos = 0
	d.prevVolume = -1
	d.eq.reset()
	d.mu.Unlock()
}

func (d *Deck) IsLoaded() bool {
	return atomic.LoadUint32(&d.loaded) == 1
}

func (d *Deck) TrackID() int64 {
	return atomic.LoadInt64(&d.trackID)
}

func (d *Deck) Play() {
	if d.IsLoaded() {
		atomic.StoreUint32(&d.playing, 1)
	}
}

func (d *Deck) Pause() {
	atomic.StoreUint32(&d.playing, 0)
}

func (d *Deck) IsPlaying() bool {
	return atomic.LoadUint32(&d.playing) == 1
}

func (d *Deck) IsFinished() bool {
	return atomic.LoadUint32(&d.finished) == 1
}

// Seek moves the cursor, clamped to the track bounds. Control thread only.
func (d *Deck) Seek(positionSeconds float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buffer == nil {
		return
	}

	frame := int64(positionSeconds * float64(d.buffer.SampleRate))
	if frame < 0 {
		frame = 0
	}
	if max := int64(d.buffer.FrameCount()); frame > max {
		frame = max
	}
	atomic.StoreInt64(&d.positionFrames, frame)
	d.stretchPos = float64(frame)
	atomic.StoreUint32(&d.finished, 0)
}

// Position returns the cursor in seconds.
func (d *Deck) Position() float64 {
	d.mu.Lock()
	buffer := d.buffer
	d.mu.Unlock()

	if buffer == nil || buffer.SampleRate <= 0 {
		return 0
	}
	return float64(atomic.LoadInt64(&d.positionFrames)) / float64(buffer.SampleRate)
}

// Duration returns the loaded track length in seconds.
func (d *Deck) Duration() float64 {
	d.mu.Lock()
	buffer := d.buffer
	d.mu.Unlock()

	if buffer == nil {
		return 0
	}
	return buffer.Duration()
}

func (d *Deck) SampleRate() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buffer == nil {
		return 0
	}
	return d.buffer.SampleRate
}

func (d *Deck) SetVolume(volume float64) {
	atomic.StoreUint32(&d.volume, math.Float32bits(float32(clampF(volume, 0, 1))))
}

func (d *Deck) Volume() float64 {
	return float64(math.Float32frombits(atomic.LoadUint32(&d.volume)))
}

func (d *Deck) SetStretchRatio(ratio float64) {
	atomic.StoreUint32(&d.stretchRatio, math.Float32bits(float32(clampF(ratio, minStretchRatio, maxStretchRatio))))
}

func (d *Deck) StretchRatio() float64 {
	return float64(math.Float32frombits(atomic.LoadUint32(&d.stretchRatio)))
}

func (d *Deck) SetEQ(lowDB, midDB, highDB float64) {
	atomic.StoreUint32(&d.eqLowDB, math.Float32bits(float32(clampF(lowDB, minEQGainDB, maxEQGainDB))))
	atomic.StoreUint32(&d.eqMidDB, math.Float32bits(float32(clampF(midDB, minEQGainDB, maxEQGainDB))))
	atomic.StoreUint32(&d.eqHighDB, math.Float32bits(float32(clampF(highDB, minEQGainDB, maxEQGainDB))))
}

func (d *Deck) EQ() (lowDB, midDB, highDB float64) {
	lowDB = float64(math.Float32frombits(atomic.LoadUint32(&d.eqLowDB)))
	midDB = float64(math.Float32frombits(atomic.LoadUint32(&d.eqMidDB)))
	highDB = float64(math.Float32frombits(atomic.LoadUint32(&d.eqHighDB)))
	return
}

// Render writes up to frames stereo frames into out. Audio thread. Returns
// the number of frames actually produced from the track; the rest of out is
// zero-filled.
func (d *Deck) Render(out []float32, frames int) int {
	if frames*2 > len(out) {
		frames = len(out) / 2
	}

	if !d.IsPlaying() || !d.IsLoaded() {
		zeroFill(out, frames)
		return 0
	}

	volume := float32(d.Volume())
	stretch := d.StretchRatio()
	lowDB, midDB, highDB := d.EQ()

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.buffer == nil {
		zeroFill(out, frames)
		return 0
	}

	d.eq.maybeUpdate(float64(d.buffer.SampleRate), lowDB, midDB, highDB)

	volStart := d.prevVolume
	if volStart < 0 {
		volStart = volume
	}
	volEnd := volume
	d.prevVolume = volume

	var rendered int
	if math.Abs(stretch-1) > 0.001 {
		rendered = d.renderStretched(out, frames, stretch, volStart, volEnd)
	} else {
		rendered = d.renderDirect(out, frames, volStart, volEnd)
	}

	for i := rendered; i < frames; i++ {
		out[i*2] = 0
		out[i*2+1] = 0
	}

	if atomic.LoadInt64(&d.positionFrames) >= int64(d.buffer.FrameCount()) {
		atomic.StoreUint32(&d.finished, 1)
	}

	return rendered
}

func (d *Deck) renderDirect(out []float32, frames int, volStart, volEnd float32) int {
	samples := d.buffer.Samples
	frameCount := int64(d.buffer.FrameCount())
	pos := atomic.LoadInt64(&d.positionFrames)

	rendered := 0
	for rendered < frames && pos < frameCount {
		vol := rampVolume(volStart, volEnd, rendered, frames)

		out[rendered*2] = d.eq.process(samples[pos*2], 0) * vol
		out[rendered*2+1] = d.eq.process(samples[pos*2+1], 1) * vol

		pos++
		rendered++
	}

	atomic.StoreInt64(&d.positionFrames, pos)
	d.stretchPos = float64(pos)
	return rendered
}

// renderStretched produces output at a playback rate of stretch source
// frames per output frame, pulling the source through the pre-allocated
// deinterleave scratch in blocks of at most stretchBlockFrames.
func (d *Deck) renderStretched(out []float32, frames int, stretch float64, volStart, volEnd float32) int {
	samples := d.buffer.Samples
	frameCount := d.buffer.FrameCount()

	rendered := 0
	for rendered < frames {
		block := frames - rendered
		if block > stretchBlockFrames {
			block = stretchBlockFrames
		}

		srcStart := int(d.stretchPos)
		if srcStart >= frameCount {
			break
		}

		// Source span this block can touch, plus one frame for interpolation
		srcEnd := int(d.stretchPos+float64(block)*stretch) + 2
		if srcEnd > frameCount {
			srcEnd = frameCount
		}
		span := srcEnd - srcStart
		if span <= 0 {
			break
		}
		if span > len(d.scratchL) {
			span = len(d.scratchL)
			srcEnd = srcStart + span
		}

		for i := 0; i < span; i++ {
			d.scratchL[i] = samples[(srcStart+i)*2]
			d.scratchR[i] = samples[(srcStart+i)*2+1]
		}

		produced := 0
		for produced < block {
			rel := d.stretchPos - float64(srcStart)
			idx := int(rel)
			if srcStart+idx+1 >= srcEnd {
				break
			}

			frac := float32(rel - float64(idx))
			vol := rampVolume(volStart, volEnd, rendered+produced, frames)

			l := d.scratchL[idx]*(1-frac) + d.scratchL[idx+1]*frac
			r := d.scratchR[idx]*(1-frac) + d.scratchR[idx+1]*frac

			out[(rendered+produced)*2] = d.eq.process(l, 0) * vol
			out[(rendered+produced)*2+1] = d.eq.process(r, 1) * vol

			d.stretchPos += stretch
			produced++
		}

		rendered += produced
		atomic.StoreInt64(&d.positionFrames, int64(d.stretchPos))

		if produced == 0 {
			// Last source frame reached; nothing further to interpolate.
			atomic.StoreInt64(&d.positionFrames, int64(frameCount))
			break
		}
	}

	return rendered
}

func rampVolume(volStart, volEnd float32, index, frames int) float32 {
	if frames <= 1 {
		return volEnd
	}
	t := float32(index) / float32(frames-1)
	return volStart + t*(volEnd-volStart)
}

func zeroFill(out []float32, frames int) {
	for i := 0; i < frames*2; i++ {
		out[i] = 0
	}
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
